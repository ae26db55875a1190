// Package admin is the support-staff triage view-model: it translates UI
// filter selections into paginated backend listing calls and wraps the triage
// mutations with success/failure toasts. It adds no caching of its own; the
// backend's live-subscription layer already provides that.
package admin

import (
	"context"
	"strings"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/internal/model"
)

// Filters are the UI filter selections for the thread list
type Filters struct {
	Scope  backend.AssignmentScope
	Status model.TriageStatus
	Search string
}

// ViewModel drives the admin triage screens
type ViewModel struct {
	client   backend.Client
	broker   *events.Broker
	adminID  string
	pageSize int
}

// New creates a triage view-model for the given admin.
func New(client backend.Client, broker *events.Broker, adminID string, pageSize int) *ViewModel {
	if pageSize <= 0 {
		pageSize = 25
	}
	return &ViewModel{client: client, broker: broker, adminID: adminID, pageSize: pageSize}
}

// ListArgs translates filter selections into the shape the backend listing
// expects. The "mine" scope pins the listing to this view-model's admin id.
func (v *ViewModel) ListArgs(f Filters, cursor string) backend.ListThreadsArgs {
	args := backend.ListThreadsArgs{
		Scope:    f.Scope,
		Status:   f.Status,
		Search:   strings.TrimSpace(f.Search),
		NumItems: v.pageSize,
		Cursor:   cursor,
	}
	if args.Scope == "" {
		args.Scope = backend.ScopeAll
	}
	if args.Status == "" {
		args.Status = model.TriageOpen
	}
	if args.Scope == backend.ScopeMine {
		args.AdminID = v.adminID
	}
	return args
}

// ListThreads fetches one page of threads for the given filters.
func (v *ViewModel) ListThreads(ctx context.Context, f Filters, cursor string) (backend.ThreadPage, error) {
	return v.client.ListThreads(ctx, v.ListArgs(f, cursor))
}

// Assign assigns a thread to an admin; an empty adminID assigns to self.
func (v *ViewModel) Assign(ctx context.Context, threadID, adminID string) error {
	if adminID == "" {
		adminID = v.adminID
	}
	if err := v.client.AssignThread(ctx, threadID, adminID); err != nil {
		v.broker.Publish(events.ToastError, threadID, "Failed to assign thread", err)
		return err
	}
	v.broker.Publish(events.TriageAssigned, threadID, adminID)
	v.broker.Publish(events.ToastSuccess, threadID, "Thread assigned")
	return nil
}

// SetStatus updates the triage status of a thread.
func (v *ViewModel) SetStatus(ctx context.Context, threadID string, status model.TriageStatus) error {
	if err := v.client.UpdateThreadStatus(ctx, threadID, status); err != nil {
		v.broker.Publish(events.ToastError, threadID, "Failed to update status", err)
		return err
	}
	v.broker.Publish(events.TriageStatusChanged, threadID, string(status))
	v.broker.Publish(events.ToastSuccess, threadID, "Status updated")
	return nil
}

// SetPriority updates the priority of a thread.
func (v *ViewModel) SetPriority(ctx context.Context, threadID string, priority model.Priority) error {
	if err := v.client.UpdateThreadPriority(ctx, threadID, priority); err != nil {
		v.broker.Publish(events.ToastError, threadID, "Failed to update priority", err)
		return err
	}
	v.broker.Publish(events.TriagePriorityChanged, threadID, string(priority))
	v.broker.Publish(events.ToastSuccess, threadID, "Priority updated")
	return nil
}

// AddNote records an internal staff-only note on a thread.
func (v *ViewModel) AddNote(ctx context.Context, threadID, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil
	}
	if err := v.client.AddInternalNote(ctx, threadID, note); err != nil {
		v.broker.Publish(events.ToastError, threadID, "Failed to add note", err)
		return err
	}
	v.broker.Publish(events.TriageNoteAdded, threadID, note)
	v.broker.Publish(events.ToastSuccess, threadID, "Note added")
	return nil
}
