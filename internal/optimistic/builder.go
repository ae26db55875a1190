// Package optimistic builds speculative local cache mutations for in-flight
// sends. A builder output is a backend.CacheUpdate: a pure closure the
// backend adapter applies against its cache view before the mutation round
// trip completes, and simply never commits if the mutation fails.
package optimistic

import (
	"time"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/model"
)

// PendingMessage describes the user message being sent speculatively.
type PendingMessage struct {
	Role        model.Role
	Text        string
	Attachments []model.Attachment
}

// SendUpdate returns a cache update that appends a synthetic optimistic
// message to the cached page of the given list-messages query. If the page is
// not cached locally there is nothing to patch and the update is a no-op.
// The closure is cheap to re-derive, so callers build a fresh one per send.
func SendUpdate(args backend.ListMessagesArgs, pending PendingMessage, now func() time.Time) backend.CacheUpdate {
	return func(cache backend.QueryCache) {
		page, ok := cache.Read(args.Key())
		if !ok {
			return
		}
		order := 0
		if n := len(page.Messages); n > 0 {
			order = page.Messages[n-1].Order + 1
		}
		page.Messages = append(page.Messages, model.Message{
			ID:          model.NewOptimisticID(),
			ThreadID:    args.ThreadID,
			Role:        pending.Role,
			Order:       order,
			Status:      model.StatusPending,
			Text:        pending.Text,
			Attachments: pending.Attachments,
			CreatedAt:   now(),
		})
		cache.Write(args.Key(), page)
	}
}

// ThreadPatch returns a cache update that rewrites every cached message page
// of the thread through patch. Used for optimistic thread-level field changes
// such as the handoff flag and the notification email, where the thread's
// metadata rides along with its message query.
func ThreadPatch(args backend.ListMessagesArgs, patch func(*backend.MessagePage)) backend.CacheUpdate {
	return func(cache backend.QueryCache) {
		page, ok := cache.Read(args.Key())
		if !ok {
			return
		}
		patch(&page)
		cache.Write(args.Key(), page)
	}
}
