package thread

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/backend/backendtest"
	"github.com/parleyhq/parley/internal/drafts"
	"github.com/parleyhq/parley/internal/model"
)

func newTestStore(clock backend.Clock) *Store {
	s := NewStore(Options{
		Drafts: drafts.NewMemoryStore(),
		Clock:  clock,
		UserID: "u1",
	})
	s.SelectThread(model.Thread{ID: ""})
	return s
}

func TestNavigation(t *testing.T) {
	s := NewStore(Options{})

	assert.Equal(t, ViewOverview, s.View())

	s.SelectThread(model.Thread{ID: "t1", HandedOff: true, NotificationEmail: "a@b.c"})
	assert.Equal(t, ViewChat, s.View())
	assert.Equal(t, "t1", s.ThreadID())
	assert.True(t, s.HandedOff())
	assert.Equal(t, "a@b.c", s.NotificationEmail())

	// Back keeps the thread id around for the exit animation.
	s.GoBack()
	assert.Equal(t, ViewOverview, s.View())
	assert.Equal(t, "t1", s.ThreadID())

	s.StartNewThread(context.Background(), nil)
	assert.Equal(t, ViewChat, s.View())
	assert.Equal(t, "", s.ThreadID())
	assert.True(t, s.NewConversation())
}

func TestEnsureThread(t *testing.T) {
	t.Run("returns existing id without a call", func(t *testing.T) {
		fake := backendtest.New()
		s := NewStore(Options{})
		s.SelectThread(model.Thread{ID: "existing"})

		id, err := s.EnsureThread(context.Background(), fake)
		require.NoError(t, err)
		assert.Equal(t, "existing", id)
		assert.Equal(t, 0, fake.CreateCalls)
	})

	t.Run("concurrent calls create exactly one thread", func(t *testing.T) {
		fake := backendtest.New()
		fake.CreateDelay = make(chan struct{})
		s := newTestStore(nil)

		var wg sync.WaitGroup
		ids := make([]string, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := s.EnsureThread(context.Background(), fake)
				require.NoError(t, err)
				ids[i] = id
			}(i)
		}
		// Give both goroutines time to reach the creation path, then
		// release the blocked mutation.
		time.Sleep(20 * time.Millisecond)
		close(fake.CreateDelay)
		wg.Wait()

		assert.Equal(t, 1, fake.CreateCalls)
		assert.Equal(t, "thread-1", ids[0])
		assert.Equal(t, "thread-1", ids[1])
		assert.Equal(t, "thread-1", s.ThreadID())
	})

	t.Run("id not committed after navigating away", func(t *testing.T) {
		fake := backendtest.New()
		fake.CreateDelay = make(chan struct{})
		s := newTestStore(nil)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, err := s.EnsureThread(context.Background(), fake)
			require.NoError(t, err)
		}()
		time.Sleep(20 * time.Millisecond)
		s.GoBack()
		close(fake.CreateDelay)
		<-done

		assert.Equal(t, "", s.ThreadID(), "id must not land after leaving the chat view")
	})
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("empty text is refused locally", func(t *testing.T) {
		fake := backendtest.New()
		s := newTestStore(nil)
		_, err := s.SendMessage(ctx, fake, "   \n", SendOptions{})
		assert.ErrorIs(t, err, ErrEmptyMessage)
		assert.Empty(t, fake.SendCalls)
		assert.Empty(t, s.Optimistic())
	})

	t.Run("double rapid send creates one thread", func(t *testing.T) {
		fake := backendtest.New()
		s := newTestStore(nil)
		// Handed off so the second send is not refused as busy.
		s.SetHandedOff(true)

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.SendMessage(ctx, fake, "hi", SendOptions{})
				require.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, fake.CreateCalls, "rapid sends must not create duplicate threads")
		assert.Len(t, fake.SendCalls, 2)
	})

	t.Run("refused while a turn is in flight", func(t *testing.T) {
		fake := backendtest.New()
		s := newTestStore(nil)
		_, err := s.SendMessage(ctx, fake, "first", SendOptions{})
		require.NoError(t, err)
		assert.True(t, s.AwaitingStream())

		_, err = s.SendMessage(ctx, fake, "second", SendOptions{})
		assert.ErrorIs(t, err, ErrBusy)
		assert.Len(t, fake.SendCalls, 1)
	})

	t.Run("handed-off sends are unblocked and skip awaiting", func(t *testing.T) {
		fake := backendtest.New()
		s := newTestStore(nil)
		s.SetHandedOff(true)

		_, err := s.SendMessage(ctx, fake, "first", SendOptions{})
		require.NoError(t, err)
		assert.False(t, s.AwaitingStream())

		_, err = s.SendMessage(ctx, fake, "second", SendOptions{})
		require.NoError(t, err)
		assert.Len(t, fake.SendCalls, 2)
	})

	t.Run("failure leaves optimistic entry and sets error", func(t *testing.T) {
		fake := backendtest.New()
		fake.SendErr = &backend.Error{Message: "boom"}
		s := newTestStore(nil)

		_, err := s.SendMessage(ctx, fake, "hello", SendOptions{})
		require.Error(t, err)
		assert.NotEmpty(t, s.LastError())
		require.Len(t, s.Optimistic(), 1, "optimistic entry is kept for later reconciliation")
		assert.Equal(t, "hello", s.Optimistic()[0].Text)
		assert.False(t, s.Sending())
	})

	t.Run("optimistic cache update targets the list query", func(t *testing.T) {
		fake := backendtest.New()
		s := newTestStore(nil)
		args := s.ListArgs("thread-1")
		fake.Cache.Write(args.Key(), backend.MessagePage{})

		_, err := s.SendMessage(ctx, fake, "cached hello", SendOptions{})
		require.NoError(t, err)

		page, ok := fake.Cache.Read(args.Key())
		require.True(t, ok)
		require.Len(t, page.Messages, 1)
		assert.Equal(t, "cached hello", page.Messages[0].Text)
		assert.True(t, page.Messages[0].Optimistic())
	})
}

func TestReconcile(t *testing.T) {
	fake := backendtest.New()
	s := newTestStore(nil)
	s.SetHandedOff(true)

	ctx := context.Background()
	_, err := s.SendMessage(ctx, fake, "Hello", SendOptions{})
	require.NoError(t, err)
	_, err = s.SendMessage(ctx, fake, "Bye", SendOptions{})
	require.NoError(t, err)
	require.Len(t, s.Optimistic(), 2)

	t.Run("different text does not match", func(t *testing.T) {
		s.Reconcile([]model.Message{{ID: "m1", Role: model.RoleUser, Text: "Something else"}})
		assert.Len(t, s.Optimistic(), 2)
	})

	t.Run("same role and text removes the optimistic entry", func(t *testing.T) {
		s.Reconcile([]model.Message{{ID: "m1", Role: model.RoleUser, Text: "Hello"}})
		remaining := s.Optimistic()
		require.Len(t, remaining, 1)
		assert.Equal(t, "Bye", remaining[0].Text)
	})

	t.Run("assistant message with same text does not match", func(t *testing.T) {
		s.Reconcile([]model.Message{{ID: "m2", Role: model.RoleAssistant, Text: "Bye"}})
		assert.Len(t, s.Optimistic(), 1)
	})
}

func TestRequestHandoff(t *testing.T) {
	ctx := context.Background()

	t.Run("success flips the flag", func(t *testing.T) {
		fake := backendtest.New()
		s := newTestStore(nil)
		s.SelectThread(model.Thread{ID: "t1"})

		require.NoError(t, s.RequestHandoff(ctx, fake))
		assert.True(t, s.HandedOff())
		assert.Equal(t, []string{"t1"}, fake.HandoffCalls)
	})

	t.Run("rejection rolls the flag back and records the error", func(t *testing.T) {
		fake := backendtest.New()
		fake.HandoffErr = &backend.Error{Message: "nope"}
		s := newTestStore(nil)
		s.SelectThread(model.Thread{ID: "t1"})

		require.Error(t, s.RequestHandoff(ctx, fake))
		assert.False(t, s.HandedOff())
		assert.NotEmpty(t, s.LastError())
	})

	t.Run("already handed off is a no-op", func(t *testing.T) {
		fake := backendtest.New()
		s := newTestStore(nil)
		s.SetHandedOff(true)
		require.NoError(t, s.RequestHandoff(ctx, fake))
		assert.Empty(t, fake.HandoffCalls)
	})
}

func TestSetNotificationEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes and commits after the round trip", func(t *testing.T) {
		fake := backendtest.New()
		s := newTestStore(nil)
		s.SelectThread(model.Thread{ID: "t1"})

		require.NoError(t, s.SetNotificationEmail(ctx, fake, "  User@Example.COM "))
		assert.Equal(t, "user@example.com", s.NotificationEmail())
		assert.Equal(t, []string{"user@example.com"}, fake.EmailCalls)
		assert.False(t, s.EmailPending())
	})

	t.Run("failure clears pending without committing", func(t *testing.T) {
		fake := backendtest.New()
		fake.EmailErr = &backend.Error{Message: "bad"}
		s := newTestStore(nil)
		s.SelectThread(model.Thread{ID: "t1"})

		require.Error(t, s.SetNotificationEmail(ctx, fake, "x@y.z"))
		assert.Equal(t, "", s.NotificationEmail())
		assert.False(t, s.EmailPending())
		assert.NotEmpty(t, s.LastError())
	})
}

func TestDrafts(t *testing.T) {
	s := NewStore(Options{Drafts: drafts.NewMemoryStore()})

	s.SetDraft("t1", "Need help with billing")
	s.SetDraft("t2", "")

	// Switch away and back: the draft must survive verbatim.
	assert.Equal(t, "", s.Draft("t2"))
	assert.Equal(t, "Need help with billing", s.Draft("t1"))

	s.ClearDraft("t1")
	assert.Equal(t, "", s.Draft("t1"))
}

func TestRateLimit(t *testing.T) {
	clock := backendtest.NewClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewStore(Options{Clock: clock})

	assert.False(t, s.IsRateLimited())

	s.SetRateLimited(60 * time.Second)
	assert.True(t, s.IsRateLimited())
	assert.False(t, s.RateLimitedUntil().IsZero())

	clock.Advance(59 * time.Second)
	assert.True(t, s.IsRateLimited())

	clock.Advance(2 * time.Second)
	assert.False(t, s.IsRateLimited())
	assert.True(t, s.RateLimitedUntil().IsZero(), "auto-clear must reset the expiry")
}

func TestReset(t *testing.T) {
	fake := backendtest.New()
	s := newTestStore(nil)
	s.SetHandedOff(true)
	_, err := s.SendMessage(context.Background(), fake, "hi", SendOptions{})
	require.NoError(t, err)

	s.Reset()
	assert.Equal(t, ViewOverview, s.View())
	assert.Equal(t, "", s.ThreadID())
	assert.Empty(t, s.Optimistic())
	assert.False(t, s.HandedOff())
}
