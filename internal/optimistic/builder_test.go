package optimistic

import (
	"testing"
	"time"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/backend/backendtest"
	"github.com/parleyhq/parley/internal/model"
)

func listArgs() backend.ListMessagesArgs {
	return backend.ListMessagesArgs{ThreadID: "t1", NumItems: 50, Mode: backend.ModeList}
}

func TestSendUpdate(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	t.Run("appends optimistic entry to cached page", func(t *testing.T) {
		cache := backendtest.NewCache()
		args := listArgs()
		cache.Write(args.Key(), backend.MessagePage{Messages: []model.Message{
			{ID: "m1", Role: model.RoleUser, Order: 3, Text: "earlier"},
		}})

		update := SendUpdate(args, PendingMessage{Role: model.RoleUser, Text: "Hello"}, now)
		update(cache)

		page, ok := cache.Read(args.Key())
		if !ok {
			t.Fatal("Expected page in cache")
		}
		if len(page.Messages) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(page.Messages))
		}
		added := page.Messages[1]
		if !added.Optimistic() {
			t.Errorf("Expected optimistic id, got %q", added.ID)
		}
		if added.Text != "Hello" || added.Role != model.RoleUser {
			t.Errorf("Unexpected synthetic message: %+v", added)
		}
		if added.Order != 4 {
			t.Errorf("Expected order 4, got %d", added.Order)
		}
		if added.Status != model.StatusPending {
			t.Errorf("Expected pending status, got %q", added.Status)
		}
	})

	t.Run("missing cached query is a no-op", func(t *testing.T) {
		cache := backendtest.NewCache()
		update := SendUpdate(listArgs(), PendingMessage{Role: model.RoleUser, Text: "Hello"}, now)
		update(cache)
		if _, ok := cache.Read(listArgs().Key()); ok {
			t.Error("Expected nothing written for an uncached query")
		}
	})

	t.Run("re-derived update appends a fresh entry each time", func(t *testing.T) {
		cache := backendtest.NewCache()
		args := listArgs()
		cache.Write(args.Key(), backend.MessagePage{})

		SendUpdate(args, PendingMessage{Role: model.RoleUser, Text: "a"}, now)(cache)
		SendUpdate(args, PendingMessage{Role: model.RoleUser, Text: "b"}, now)(cache)

		page, _ := cache.Read(args.Key())
		if len(page.Messages) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(page.Messages))
		}
		if page.Messages[0].ID == page.Messages[1].ID {
			t.Error("Expected distinct optimistic ids")
		}
	})
}

func TestThreadPatch(t *testing.T) {
	t.Run("patches thread metadata in place", func(t *testing.T) {
		cache := backendtest.NewCache()
		args := listArgs()
		cache.Write(args.Key(), backend.MessagePage{Thread: &model.Thread{ID: "t1"}})

		ThreadPatch(args, func(page *backend.MessagePage) {
			page.Thread.HandedOff = true
		})(cache)

		page, _ := cache.Read(args.Key())
		if !page.Thread.HandedOff {
			t.Error("Expected handoff flag patched")
		}
	})

	t.Run("missing page is a no-op", func(t *testing.T) {
		cache := backendtest.NewCache()
		called := false
		ThreadPatch(listArgs(), func(page *backend.MessagePage) { called = true })(cache)
		if called {
			t.Error("Expected patch not to run without a cached page")
		}
	})
}
