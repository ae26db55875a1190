// Package drafts persists per-thread unsent input text on the client. The
// thread state store is the only caller; everything else reaches drafts
// through it.
package drafts

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/tursodatabase/go-libsql"
)

// Store maps thread ids to unsent draft text. Setting empty text removes the
// entry instead of storing "".
type Store interface {
	Get(threadID string) (string, error)
	Set(threadID, text string) error
	Clear(threadID string) error
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	thread_id TEXT PRIMARY KEY,
	text      TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteStore implements Store using SQLite/libsql
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a draft store at the given database path
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("libsql", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the draft for a thread, or "" if none is stored.
func (s *SQLiteStore) Get(threadID string) (string, error) {
	var text string
	err := s.db.QueryRow(`SELECT text FROM drafts WHERE thread_id = ?`, threadID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load draft: %w", err)
	}
	return text, nil
}

// Set stores the draft for a thread. Empty text deletes the row.
func (s *SQLiteStore) Set(threadID, text string) error {
	if text == "" {
		return s.Clear(threadID)
	}
	_, err := s.db.Exec(`INSERT INTO drafts (thread_id, text) VALUES (?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET text = excluded.text, updated_at = CURRENT_TIMESTAMP`,
		threadID, text)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Clear removes the draft for a thread.
func (s *SQLiteStore) Clear(threadID string) error {
	if _, err := s.db.Exec(`DELETE FROM drafts WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to clear draft: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// MemoryStore is an in-memory Store for tests and ephemeral sessions
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string]string
}

// NewMemoryStore creates an empty in-memory draft store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]string)}
}

func (s *MemoryStore) Get(threadID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[threadID], nil
}

func (s *MemoryStore) Set(threadID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		delete(s.drafts, threadID)
		return nil
	}
	s.drafts[threadID] = text
	return nil
}

func (s *MemoryStore) Clear(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, threadID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
