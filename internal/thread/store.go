// Package thread holds the client-visible state of the active support
// conversation: navigation view, thread identity, optimistic messages,
// sending flags, handoff status, rate limiting, and drafts. The store is an
// explicitly constructed object passed to its collaborators; it is mutated
// only by the orchestration layer and direct user-triggered handlers.
package thread

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/drafts"
	"github.com/parleyhq/parley/internal/model"
	"github.com/parleyhq/parley/internal/optimistic"
)

// View is the widget's navigation state
type View string

const (
	ViewOverview View = "overview"
	ViewChat     View = "chat"
	ViewCompose  View = "compose"
)

// HandoffPrompt is the fixed message inserted when a user escalates to a
// human agent.
const HandoffPrompt = "Talk to support"

var (
	// ErrEmptyMessage is returned when a send is attempted with no text.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrBusy is returned when a send is refused because a previous turn is
	// still in flight and the thread has not been handed off.
	ErrBusy = errors.New("previous message still in flight")
)

// SendOptions carries optional send parameters
type SendOptions struct {
	FileIDs     []string
	Attachments []model.Attachment
}

// creation tracks a single in-flight thread creation so rapid double sends
// join it instead of creating duplicate threads.
type creation struct {
	done chan struct{}
	id   string
	err  error
}

// Store is the single source of truth for the active thread's client state
type Store struct {
	mu sync.Mutex

	view            View
	threadID        string
	newConversation bool

	sending        bool
	awaitingStream bool
	streaming      bool
	handedOff      bool

	notificationEmail string
	emailPending      bool

	lastError string

	optimisticMsgs []model.Message
	creating       *creation

	rateLimitedUntil time.Time
	rateLimitTimer   *time.Timer

	drafts   drafts.Store
	clock    backend.Clock
	userID   string
	pageURL  string
	pageSize int
}

// Options configures a new Store
type Options struct {
	Drafts   drafts.Store
	Clock    backend.Clock
	UserID   string
	PageURL  string
	PageSize int
}

// NewStore creates a store in the overview view.
func NewStore(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = backend.SystemClock{}
	}
	if opts.Drafts == nil {
		opts.Drafts = drafts.NewMemoryStore()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	return &Store{
		view:     ViewOverview,
		drafts:   opts.Drafts,
		clock:    opts.Clock,
		userID:   opts.UserID,
		pageURL:  opts.PageURL,
		pageSize: opts.PageSize,
	}
}

// Reset returns the store to its initial state. Created once per widget
// mount, reset explicitly.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateLimitTimer != nil {
		s.rateLimitTimer.Stop()
	}
	s.view = ViewOverview
	s.threadID = ""
	s.newConversation = false
	s.sending = false
	s.awaitingStream = false
	s.streaming = false
	s.handedOff = false
	s.notificationEmail = ""
	s.emailPending = false
	s.lastError = ""
	s.optimisticMsgs = nil
	s.creating = nil
	s.rateLimitedUntil = time.Time{}
	s.rateLimitTimer = nil
}

// View returns the current navigation view.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// ThreadID returns the active thread id, or "" before one exists.
func (s *Store) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// SelectThread navigates to an existing thread's chat view.
func (s *Store) SelectThread(t model.Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setThreadLocked(t.ID)
	s.view = ViewChat
	s.newConversation = false
	s.handedOff = t.HandedOff
	s.notificationEmail = t.NotificationEmail
}

// StartNewThread navigates to the chat view for a fresh conversation. When a
// backend client handle is available the thread is pre-created eagerly in the
// background so the first send does not pay the creation round trip.
func (s *Store) StartNewThread(ctx context.Context, client backend.Client) {
	s.mu.Lock()
	s.setThreadLocked("")
	s.view = ViewChat
	s.newConversation = true
	s.handedOff = false
	s.notificationEmail = ""
	s.mu.Unlock()

	if client != nil {
		go func() {
			if _, err := s.EnsureThread(ctx, client); err != nil {
				log.Warn("eager thread creation failed", "err", err)
			}
		}()
	}
}

// GoBack returns to the overview. The thread id and messages are left intact
// so the exit animation still has content to show; they are cleared by the
// next SelectThread or StartNewThread.
func (s *Store) GoBack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == ViewChat || s.view == ViewCompose {
		s.view = ViewOverview
	}
}

// setThreadLocked swaps the active thread, clearing per-thread state.
func (s *Store) setThreadLocked(id string) {
	s.threadID = id
	s.optimisticMsgs = nil
	s.sending = false
	s.awaitingStream = false
	s.streaming = false
	s.lastError = ""
	s.emailPending = false
}

// ListArgs returns the canonical list-messages query arguments for the active
// thread. The orchestrator subscribes with the same arguments so optimistic
// cache updates target the exact page the subscription populates.
func (s *Store) ListArgs(threadID string) backend.ListMessagesArgs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return backend.ListMessagesArgs{
		ThreadID: threadID,
		NumItems: s.pageSize,
		Mode:     backend.ModeList,
	}
}

// EnsureThread returns the active thread id, creating the thread if needed.
// Concurrent calls while a creation is in flight join it, so rapid double
// invocation issues exactly one creation mutation. The new id is committed
// into store state only if the user is still in the chat view and no thread
// id arrived in the interim.
func (s *Store) EnsureThread(ctx context.Context, client backend.Client) (string, error) {
	s.mu.Lock()
	if s.threadID != "" {
		id := s.threadID
		s.mu.Unlock()
		return id, nil
	}
	if c := s.creating; c != nil {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c.id, c.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c := &creation{done: make(chan struct{})}
	s.creating = c
	userID, pageURL := s.userID, s.pageURL
	s.mu.Unlock()

	res, err := client.CreateThread(ctx, backend.CreateThreadArgs{UserID: userID, PageURL: pageURL})

	s.mu.Lock()
	c.id, c.err = res.ThreadID, err
	s.creating = nil
	if err == nil && s.view == ViewChat && s.threadID == "" {
		s.threadID = res.ThreadID
		if res.NotificationEmail != "" {
			s.notificationEmail = res.NotificationEmail
		}
	}
	s.mu.Unlock()
	close(c.done)

	return c.id, c.err
}

// SendMessage validates and sends a user message with an optimistic local
// echo. While a previous turn is in flight sends are refused, except on
// handed-off threads where human-to-human exchanges are fire-and-forget. On
// failure the optimistic entry is deliberately left in place: text-match
// reconciliation removes it once a real message arrives, or the UI retries.
func (s *Store) SendMessage(ctx context.Context, client backend.Client, text string, opts SendOptions) (backend.SendMessageResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return backend.SendMessageResult{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if (s.sending || s.awaitingStream || s.streaming) && !s.handedOff {
		s.mu.Unlock()
		return backend.SendMessageResult{}, ErrBusy
	}
	handedOff := s.handedOff
	s.sending = true
	s.lastError = ""
	s.optimisticMsgs = append(s.optimisticMsgs, model.Message{
		ID:          model.NewOptimisticID(),
		ThreadID:    s.threadID,
		Role:        model.RoleUser,
		Status:      model.StatusPending,
		Text:        text,
		Attachments: opts.Attachments,
		CreatedAt:   s.clock.Now(),
	})
	userID := s.userID
	s.mu.Unlock()

	threadID, err := s.EnsureThread(ctx, client)
	if err != nil {
		s.fail("failed to create thread", err)
		return backend.SendMessageResult{}, err
	}

	update := optimistic.SendUpdate(s.ListArgs(threadID), optimistic.PendingMessage{
		Role:        model.RoleUser,
		Text:        text,
		Attachments: opts.Attachments,
	}, s.clock.Now)

	res, err := client.SendMessage(ctx, backend.SendMessageArgs{
		ThreadID: threadID,
		Prompt:   text,
		UserID:   userID,
		FileIDs:  opts.FileIDs,
	}, update)

	s.mu.Lock()
	s.sending = false
	if err != nil {
		s.lastError = err.Error()
	} else if !handedOff {
		s.awaitingStream = true
	}
	s.mu.Unlock()

	if err != nil {
		return backend.SendMessageResult{}, err
	}
	return res, nil
}

func (s *Store) fail(msg string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false
	s.lastError = msg + ": " + err.Error()
}

// RequestHandoff escalates the thread to human support. The handoff flag is
// flipped optimistically and rolled back if the mutation fails; escalation is
// permanent once the backend confirms it.
func (s *Store) RequestHandoff(ctx context.Context, client backend.Client) error {
	s.mu.Lock()
	if s.handedOff {
		s.mu.Unlock()
		return nil
	}
	prev := s.handedOff
	s.handedOff = true
	threadID := s.threadID
	s.mu.Unlock()

	update := optimistic.SendUpdate(s.ListArgs(threadID), optimistic.PendingMessage{
		Role: model.RoleUser,
		Text: HandoffPrompt,
	}, s.clock.Now)

	if err := client.UpdateThreadHandoff(ctx, threadID, update); err != nil {
		s.mu.Lock()
		s.handedOff = prev
		s.lastError = "failed to request handoff: " + err.Error()
		s.mu.Unlock()
		return err
	}
	return nil
}

// SetNotificationEmail normalizes and saves the notification address. The
// pending flag stays up until the round trip settles so the confirmation
// indicator never appears early.
func (s *Store) SetNotificationEmail(ctx context.Context, client backend.Client, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	s.emailPending = true
	threadID := s.threadID
	s.mu.Unlock()

	update := optimistic.ThreadPatch(s.ListArgs(threadID), func(page *backend.MessagePage) {
		if page.Thread != nil {
			page.Thread.NotificationEmail = email
		}
	})

	err := client.UpdateNotificationEmail(ctx, threadID, email, update)

	s.mu.Lock()
	s.emailPending = false
	if err != nil {
		s.lastError = "failed to update notification email: " + err.Error()
	} else {
		s.notificationEmail = email
	}
	s.mu.Unlock()
	return err
}

// Draft returns the saved draft for a thread.
func (s *Store) Draft(threadID string) string {
	text, err := s.drafts.Get(threadID)
	if err != nil {
		log.Warn("failed to load draft", "thread", threadID, "err", err)
		return ""
	}
	return text
}

// SetDraft saves the draft for a thread; empty text removes it.
func (s *Store) SetDraft(threadID, text string) {
	if err := s.drafts.Set(threadID, text); err != nil {
		log.Warn("failed to save draft", "thread", threadID, "err", err)
	}
}

// ClearDraft removes the draft for a thread.
func (s *Store) ClearDraft(threadID string) {
	if err := s.drafts.Clear(threadID); err != nil {
		log.Warn("failed to clear draft", "thread", threadID, "err", err)
	}
}

// SetRateLimited arms the rate-limit window for the given duration and
// schedules the automatic clear.
func (s *Store) SetRateLimited(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitedUntil = s.clock.Now().Add(d)
	if s.rateLimitTimer != nil {
		s.rateLimitTimer.Stop()
	}
	s.rateLimitTimer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.rateLimitedUntil.After(s.clock.Now()) {
			s.rateLimitedUntil = time.Time{}
		}
	})
}

// IsRateLimited reports whether the rate-limit window is still open.
func (s *Store) IsRateLimited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateLimitedUntil.After(s.clock.Now())
}

// RateLimitedUntil returns the window expiry, or the zero time when clear.
func (s *Store) RateLimitedUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateLimitedUntil
}

// Optimistic returns a copy of the locally held optimistic messages.
func (s *Store) Optimistic() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.optimisticMsgs))
	copy(out, s.optimisticMsgs)
	return out
}

// RemoveOptimistic removes a specific optimistic message by id.
func (s *Store) RemoveOptimistic(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.optimisticMsgs {
		if m.ID == id {
			s.optimisticMsgs = append(s.optimisticMsgs[:i], s.optimisticMsgs[i+1:]...)
			return
		}
	}
}

// Reconcile drops optimistic messages that now have a confirmed counterpart
// in the query page, matched by identical role and text. Each confirmed
// message consumes at most one optimistic entry, oldest first.
func (s *Store) Reconcile(confirmed []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.optimisticMsgs) == 0 {
		return
	}
	remaining := s.optimisticMsgs[:0]
	matched := make([]bool, len(confirmed))
outer:
	for _, opt := range s.optimisticMsgs {
		for i, c := range confirmed {
			if !matched[i] && c.Role == opt.Role && c.Text == opt.Text {
				matched[i] = true
				continue outer
			}
		}
		remaining = append(remaining, opt)
	}
	s.optimisticMsgs = remaining
}

// Sending reports whether a send mutation is in flight.
func (s *Store) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// AwaitingStream reports whether an assistant response is expected but has
// not started streaming yet.
func (s *Store) AwaitingStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingStream
}

// SetStreaming records whether an assistant response is actively streaming.
// Entering the streaming state clears the awaiting flag.
func (s *Store) SetStreaming(streaming bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = streaming
	if streaming {
		s.awaitingStream = false
	}
}

// Streaming reports whether an assistant response is actively streaming.
func (s *Store) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// HandedOff reports whether the thread has been escalated to a human.
func (s *Store) HandedOff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handedOff
}

// SetHandedOff records a server-confirmed handoff state.
func (s *Store) SetHandedOff(handedOff bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handedOff = handedOff
}

// NotificationEmail returns the confirmed notification address.
func (s *Store) NotificationEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notificationEmail
}

// EmailPending reports whether a notification-email update is in flight.
func (s *Store) EmailPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emailPending
}

// LastError returns the most recent user-visible error message, or "".
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// ClearError clears the user-visible error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// NewConversation reports whether the chat view was opened for a thread that
// does not exist yet.
func (s *Store) NewConversation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newConversation
}
