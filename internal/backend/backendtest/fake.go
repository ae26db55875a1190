// Package backendtest provides an in-memory backend.Client fake for unit
// tests: configurable failures, recorded calls, and hand-driven subscription
// snapshots.
package backendtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/model"
)

// Cache is a plain map-backed backend.QueryCache
type Cache struct {
	mu    sync.Mutex
	pages map[string]backend.MessagePage
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{pages: make(map[string]backend.MessagePage)}
}

func (c *Cache) Read(key string) (backend.MessagePage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, ok := c.pages[key]
	return page, ok
}

func (c *Cache) Write(key string, page backend.MessagePage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[key] = page
}

// Fake is a scriptable backend.Client
type Fake struct {
	mu sync.Mutex

	// Cache receives optimistic updates attached to mutations.
	Cache *Cache

	// Err fields make the corresponding call fail.
	SendErr    error
	CreateErr  error
	HandoffErr error
	EmailErr   error
	AdminErr   error
	UploadErr  error

	// CreateDelay, when non-nil, is closed by the test to release a blocked
	// CreateThread, letting tests overlap calls deterministically.
	CreateDelay chan struct{}

	// Call records
	SendCalls      []backend.SendMessageArgs
	CreateCalls    int
	HandoffCalls   []string
	EmailCalls     []string
	AssignCalls    [][2]string
	StatusCalls    [][2]string
	PriorityCalls  [][2]string
	NoteCalls      [][2]string
	ListThreadArgs []backend.ListThreadsArgs

	// Canned results
	ThreadID     string
	MessageID    string
	ThreadPage   backend.ThreadPage
	FileRef      backend.FileRef
	UploadTarget backend.UploadTarget

	subs map[string]chan backend.Snapshot
}

// New returns a fake with sensible canned results.
func New() *Fake {
	return &Fake{
		Cache:        NewCache(),
		ThreadID:     "thread-1",
		MessageID:    "msg-1",
		UploadTarget: backend.UploadTarget{UploadURL: "http://upload.invalid", StorageKey: "key-1"},
		FileRef:      backend.FileRef{FileID: "file-1", URL: "http://files.invalid/file-1"},
		subs:         make(map[string]chan backend.Snapshot),
	}
}

// ListMessages returns a channel the test drives via PushSnapshot.
func (f *Fake) ListMessages(ctx context.Context, args backend.ListMessagesArgs) (<-chan backend.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan backend.Snapshot, 16)
	f.subs[args.Key()] = ch
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.subs[args.Key()] == ch {
			delete(f.subs, args.Key())
			close(ch)
		}
	}()
	return ch, nil
}

// PushSnapshot delivers a snapshot to the subscriber of the given query.
func (f *Fake) PushSnapshot(args backend.ListMessagesArgs, page backend.MessagePage) error {
	f.mu.Lock()
	ch, ok := f.subs[args.Key()]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscriber for %s", args.Key())
	}
	ch <- backend.Snapshot{Args: args, Page: page}
	return nil
}

func (f *Fake) SendMessage(ctx context.Context, args backend.SendMessageArgs, update backend.CacheUpdate) (backend.SendMessageResult, error) {
	f.mu.Lock()
	f.SendCalls = append(f.SendCalls, args)
	err := f.SendErr
	f.mu.Unlock()
	if update != nil && err == nil {
		update(f.Cache)
	}
	if err != nil {
		return backend.SendMessageResult{}, err
	}
	return backend.SendMessageResult{MessageID: f.MessageID}, nil
}

func (f *Fake) CreateThread(ctx context.Context, args backend.CreateThreadArgs) (backend.CreateThreadResult, error) {
	f.mu.Lock()
	f.CreateCalls++
	err := f.CreateErr
	delay := f.CreateDelay
	id := f.ThreadID
	f.mu.Unlock()
	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return backend.CreateThreadResult{}, ctx.Err()
		}
	}
	if err != nil {
		return backend.CreateThreadResult{}, err
	}
	return backend.CreateThreadResult{ThreadID: id}, nil
}

func (f *Fake) UpdateThreadHandoff(ctx context.Context, threadID string, update backend.CacheUpdate) error {
	f.mu.Lock()
	f.HandoffCalls = append(f.HandoffCalls, threadID)
	err := f.HandoffErr
	f.mu.Unlock()
	if update != nil && err == nil {
		update(f.Cache)
	}
	return err
}

func (f *Fake) UpdateNotificationEmail(ctx context.Context, threadID, email string, update backend.CacheUpdate) error {
	f.mu.Lock()
	f.EmailCalls = append(f.EmailCalls, email)
	err := f.EmailErr
	f.mu.Unlock()
	if update != nil && err == nil {
		update(f.Cache)
	}
	return err
}

func (f *Fake) ListThreads(ctx context.Context, args backend.ListThreadsArgs) (backend.ThreadPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListThreadArgs = append(f.ListThreadArgs, args)
	if f.AdminErr != nil {
		return backend.ThreadPage{}, f.AdminErr
	}
	return f.ThreadPage, nil
}

func (f *Fake) AssignThread(ctx context.Context, threadID, adminID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AssignCalls = append(f.AssignCalls, [2]string{threadID, adminID})
	return f.AdminErr
}

func (f *Fake) UpdateThreadStatus(ctx context.Context, threadID string, status model.TriageStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatusCalls = append(f.StatusCalls, [2]string{threadID, string(status)})
	return f.AdminErr
}

func (f *Fake) UpdateThreadPriority(ctx context.Context, threadID string, priority model.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PriorityCalls = append(f.PriorityCalls, [2]string{threadID, string(priority)})
	return f.AdminErr
}

func (f *Fake) AddInternalNote(ctx context.Context, threadID, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NoteCalls = append(f.NoteCalls, [2]string{threadID, note})
	return f.AdminErr
}

func (f *Fake) GenerateUploadURL(ctx context.Context, filename string) (backend.UploadTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UploadErr != nil {
		return backend.UploadTarget{}, f.UploadErr
	}
	return f.UploadTarget, nil
}

func (f *Fake) RegisterFile(ctx context.Context, storageKey, filename string) (backend.FileRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UploadErr != nil {
		return backend.FileRef{}, f.UploadErr
	}
	return f.FileRef, nil
}
