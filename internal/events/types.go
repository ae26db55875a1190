package events

import (
	"time"
)

// EventType identifies the type of event
type EventType string

// Core event types
const (
	// Chat events
	ChatMessageSent      EventType = "chat.message.sent"
	ChatMessageArrived   EventType = "chat.message.arrived"
	ChatThreadCreated    EventType = "chat.thread.created"
	ChatHandoffRequested EventType = "chat.handoff.requested"
	ChatRateLimited      EventType = "chat.rate.limited"

	// Triage events
	TriageAssigned        EventType = "triage.assigned"
	TriageStatusChanged   EventType = "triage.status.changed"
	TriagePriorityChanged EventType = "triage.priority.changed"
	TriageNoteAdded       EventType = "triage.note.added"

	// Toast events
	ToastInfo    EventType = "toast.info"
	ToastSuccess EventType = "toast.success"
	ToastError   EventType = "toast.error"
)

// Event is a single notification published on the broker
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Err       string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Filter decides whether a subscriber receives an event
type Filter func(Event) bool

// FilterByType creates a filter for specific event types
func FilterByType(eventTypes ...EventType) Filter {
	typeMap := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeMap[t] = true
	}
	return func(event Event) bool {
		return typeMap[event.Type]
	}
}

// FilterByThread creates a filter for a specific thread id
func FilterByThread(threadID string) Filter {
	return func(event Event) bool {
		return event.ThreadID == threadID
	}
}

// Toasts matches the three toast event types
func Toasts() Filter {
	return FilterByType(ToastInfo, ToastSuccess, ToastError)
}
