// Package backend defines the capability interfaces through which the chat
// core talks to the managed conversation platform. The platform itself
// (persistence, real-time fan-out, transactional mutations) is an external
// collaborator; everything here is a contract, implemented by an adapter such
// as httpapi or by test fakes.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/parleyhq/parley/internal/model"
)

// ListMode selects what a list-messages subscription delivers
type ListMode string

const (
	// ModeList delivers paginated message pages plus stream metadata
	ModeList ListMode = "list"
	// ModeDeltas delivers raw streaming deltas keyed by per-stream cursor
	ModeDeltas ListMode = "deltas"
)

// ListMessagesArgs are the exact arguments of a list-messages query. They
// double as the cache identity for optimistic updates, so two queries with
// equal args must produce equal keys.
type ListMessagesArgs struct {
	ThreadID string   `json:"thread_id"`
	NumItems int      `json:"num_items"`
	Cursor   string   `json:"cursor,omitempty"`
	Mode     ListMode `json:"mode"`
	// Cursors holds the last-seen delta cursor per stream id, used in
	// ModeDeltas to request only unseen fragments.
	Cursors map[string]int `json:"cursors,omitempty"`
}

// Key returns the canonical cache key for these query arguments.
func (a ListMessagesArgs) Key() string {
	return fmt.Sprintf("listMessages/%s/%d/%s/%s", a.ThreadID, a.NumItems, a.Cursor, a.Mode)
}

// MessagePage is one snapshot of a list-messages query. In ModeList the
// thread's metadata rides along so thread-level optimistic patches (handoff
// flag, notification email) have something to rewrite.
type MessagePage struct {
	Thread     *model.Thread   `json:"thread,omitempty"`
	Messages   []model.Message `json:"messages"`
	Streams    []model.Stream  `json:"streams,omitempty"`
	Deltas     []Delta         `json:"deltas,omitempty"`
	HasMore    bool            `json:"has_more"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// FragmentKind identifies the type of a streamed content fragment
type FragmentKind string

const (
	FragmentTextStart      FragmentKind = "text-start"
	FragmentTextDelta      FragmentKind = "text-delta"
	FragmentReasoningStart FragmentKind = "reasoning-start"
	FragmentReasoningDelta FragmentKind = "reasoning-delta"
)

// Fragment is one piece of streamed assistant output
type Fragment struct {
	Kind   FragmentKind `json:"kind"`
	PartID string       `json:"part_id"`
	Text   string       `json:"text,omitempty"`
}

// Delta carries fragments covering the [Start, End) cursor range of a stream
type Delta struct {
	StreamID  string     `json:"stream_id"`
	Start     int        `json:"start"`
	End       int        `json:"end"`
	Fragments []Fragment `json:"fragments"`
}

// SendMessageArgs are the arguments of the send-message mutation
type SendMessageArgs struct {
	ThreadID string   `json:"thread_id"`
	Prompt   string   `json:"prompt"`
	UserID   string   `json:"user_id,omitempty"`
	FileIDs  []string `json:"file_ids,omitempty"`
}

// SendMessageResult is the confirmation of a send-message mutation
type SendMessageResult struct {
	MessageID string `json:"message_id"`
}

// CreateThreadArgs are the arguments of the create-thread mutation
type CreateThreadArgs struct {
	UserID  string `json:"user_id,omitempty"`
	PageURL string `json:"page_url,omitempty"`
}

// CreateThreadResult is the confirmation of a create-thread mutation
type CreateThreadResult struct {
	ThreadID          string `json:"thread_id"`
	NotificationEmail string `json:"notification_email,omitempty"`
}

// AssignmentScope filters admin thread listings by assignee
type AssignmentScope string

const (
	ScopeAll        AssignmentScope = "all"
	ScopeUnassigned AssignmentScope = "unassigned"
	ScopeMine       AssignmentScope = "mine"
)

// ListThreadsArgs are the arguments of the admin thread listing
type ListThreadsArgs struct {
	Scope    AssignmentScope    `json:"scope"`
	AdminID  string             `json:"admin_id,omitempty"`
	Status   model.TriageStatus `json:"status"`
	Search   string             `json:"search,omitempty"`
	NumItems int                `json:"num_items"`
	Cursor   string             `json:"cursor,omitempty"`
}

// ThreadPage is one page of an admin thread listing
type ThreadPage struct {
	Threads    []model.Thread `json:"threads"`
	HasMore    bool           `json:"has_more"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// UploadTarget is a one-time destination for a direct file transfer
type UploadTarget struct {
	UploadURL string `json:"upload_url"`
	// StorageKey identifies the transferred bytes when registering the file.
	StorageKey string `json:"storage_key"`
}

// FileRef is a durable backend file reference usable in a message
type FileRef struct {
	FileID string `json:"file_id"`
	URL    string `json:"url"`
}

// QueryCache is the client-side cache the optimistic update builder patches.
// Implementations are per-adapter; the contract is a plain read/write pair
// over canonical query keys.
type QueryCache interface {
	Read(key string) (MessagePage, bool)
	Write(key string, page MessagePage)
}

// CacheUpdate is a speculative local cache mutation attached to an outgoing
// mutation call. The adapter applies it against its cache view before the
// round trip completes and discards it (by never committing) if the mutation
// fails. It must not perform network calls.
type CacheUpdate func(cache QueryCache)

// Snapshot is one delivery from a live query subscription
type Snapshot struct {
	Args ListMessagesArgs
	Page MessagePage
	Err  error
}

// Client is the full backend collaborator surface
type Client interface {
	// ListMessages subscribes to a live list-messages query. Snapshots are
	// delivered until ctx is cancelled; each snapshot is a monotonically
	// updated view of that single query, with no cross-query ordering
	// guarantee.
	ListMessages(ctx context.Context, args ListMessagesArgs) (<-chan Snapshot, error)

	// SendMessage sends a user message. An optional CacheUpdate is applied to
	// the local cache before the call and discarded on failure.
	SendMessage(ctx context.Context, args SendMessageArgs, update CacheUpdate) (SendMessageResult, error)

	CreateThread(ctx context.Context, args CreateThreadArgs) (CreateThreadResult, error)
	UpdateThreadHandoff(ctx context.Context, threadID string, update CacheUpdate) error
	UpdateNotificationEmail(ctx context.Context, threadID, email string, update CacheUpdate) error

	// Admin triage surface
	ListThreads(ctx context.Context, args ListThreadsArgs) (ThreadPage, error)
	AssignThread(ctx context.Context, threadID, adminID string) error
	UpdateThreadStatus(ctx context.Context, threadID string, status model.TriageStatus) error
	UpdateThreadPriority(ctx context.Context, threadID string, priority model.Priority) error
	AddInternalNote(ctx context.Context, threadID, note string) error

	// File upload surface
	GenerateUploadURL(ctx context.Context, filename string) (UploadTarget, error)
	RegisterFile(ctx context.Context, storageKey, filename string) (FileRef, error)
}

// Clock abstracts time for rate-limit and scheduling logic so tests can
// advance it without sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) *time.Timer
}

// SystemClock is the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) *time.Timer {
	return time.AfterFunc(d, f)
}
