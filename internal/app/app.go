// Package app wires the chat core together: config, draft storage, the
// notification broker, the backend client, the thread store, and the
// orchestrator.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/admin"
	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/backend/httpapi"
	"github.com/parleyhq/parley/internal/chat"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/drafts"
	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/internal/thread"
	"github.com/parleyhq/parley/internal/upload"
)

// App holds the assembled chat core
type App struct {
	Config       *config.Config
	Broker       *events.Broker
	Client       backend.Client
	Store        *thread.Store
	Orchestrator *chat.Orchestrator
	Uploader     *upload.Uploader
	Admin        *admin.ViewModel

	draftStore drafts.Store
}

// New assembles the application from configuration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	draftStore, err := openDrafts(cfg)
	if err != nil {
		return nil, err
	}

	userID := cfg.UserID
	if userID == "" {
		// Anonymous visitors still need a stable id for the session.
		userID = "anon-" + uuid.New().String()
	}

	broker := events.NewBroker()
	client := httpapi.New(httpapi.Options{
		BaseURL:      cfg.BaseURL,
		WebsocketURL: cfg.WebsocketURL,
		AuthToken:    cfg.AuthToken,
	})

	store := thread.NewStore(thread.Options{
		Drafts:   draftStore,
		UserID:   userID,
		PageURL:  cfg.PageURL,
		PageSize: cfg.PageSize,
	})

	return &App{
		Config:       cfg,
		Broker:       broker,
		Client:       client,
		Store:        store,
		Orchestrator: chat.New(store, client, broker),
		Uploader:     upload.New(client, &http.Client{Timeout: cfg.UploadTimeout}),
		Admin:        admin.New(client, broker, cfg.AdminID, cfg.PageSize),
		draftStore:   draftStore,
	}, nil
}

func openDrafts(cfg *config.Config) (drafts.Store, error) {
	path := cfg.DraftDBPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Warn("no home directory, using in-memory drafts", "err", err)
			return drafts.NewMemoryStore(), nil
		}
		path = filepath.Join(home, ".config", "parley", "drafts.db")
	}
	store, err := drafts.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open draft store: %w", err)
	}
	return store, nil
}

// Close releases the app's resources.
func (a *App) Close() error {
	a.Orchestrator.Detach()
	a.Broker.Shutdown()
	return a.draftStore.Close()
}
