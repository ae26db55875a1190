package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OptimisticIDPrefix marks client-generated message ids that have not been
// confirmed by the backend yet.
const OptimisticIDPrefix = "local-"

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MessageStatus tracks a message through its lifecycle
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStreaming MessageStatus = "streaming"
	StatusSuccess   MessageStatus = "success"
	StatusFailed    MessageStatus = "failed"
)

// ThreadStatus is the archival state of a thread
type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadArchived ThreadStatus = "archived"
)

// TriageStatus is the support-staff workflow state of a thread
type TriageStatus string

const (
	TriageOpen TriageStatus = "open"
	TriageDone TriageStatus = "done"
)

// Priority is the triage priority of a thread
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Thread represents a conversation container
type Thread struct {
	ID                string       `json:"id"`
	Title             string       `json:"title,omitempty"`
	Summary           string       `json:"summary,omitempty"`
	Status            ThreadStatus `json:"status"`
	TriageStatus      TriageStatus `json:"triage_status"`
	AssignedAdminID   string       `json:"assigned_admin_id,omitempty"`
	Priority          Priority     `json:"priority,omitempty"`
	HandedOff         bool         `json:"handed_off"`
	NotificationEmail string       `json:"notification_email,omitempty"`
	UserID            string       `json:"user_id,omitempty"`
	AnonymousID       string       `json:"anonymous_id,omitempty"`
	LastMessage       string       `json:"last_message,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Message represents one chat turn
type Message struct {
	ID        string        `json:"id"`
	ThreadID  string        `json:"thread_id"`
	Role      Role          `json:"role"`
	Order     int           `json:"order"`
	StepOrder int           `json:"step_order"`
	Status    MessageStatus `json:"status"`
	Text      string        `json:"text"`
	Reasoning string        `json:"reasoning,omitempty"`
	Parts     []Part        `json:"parts,omitempty"`
	// Attachments only exist on optimistic messages, for preview before the
	// upload confirms.
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Optimistic reports whether the message carries a client-generated id.
func (m Message) Optimistic() bool {
	return strings.HasPrefix(m.ID, OptimisticIDPrefix)
}

// NewOptimisticID returns a fresh client-generated message id.
func NewOptimisticID() string {
	return OptimisticIDPrefix + uuid.New().String()
}

// PartKind identifies the type of a structured message part
type PartKind string

const (
	PartText      PartKind = "text"
	PartReasoning PartKind = "reasoning"
	PartToolCall  PartKind = "tool_call"
	PartFile      PartKind = "file"
)

// Part is a structured component of a message (tool call, file reference, ...)
type Part struct {
	Kind   PartKind `json:"kind"`
	Text   string   `json:"text,omitempty"`
	FileID string   `json:"file_id,omitempty"`
	Tool   string   `json:"tool,omitempty"`
}

// StreamStatus is the server-side state of an in-progress assistant response
type StreamStatus string

const (
	StreamStreaming StreamStatus = "streaming"
	StreamFinished  StreamStatus = "finished"
	StreamAborted   StreamStatus = "aborted"
)

// Stream identifies a server-side assistant response in progress
type Stream struct {
	ID     string       `json:"id"`
	Order  int          `json:"order"`
	Status StreamStatus `json:"status"`
}

// AttachmentKind distinguishes the four attachment shapes
type AttachmentKind string

const (
	AttachmentLocalFile       AttachmentKind = "local_file"
	AttachmentLocalScreenshot AttachmentKind = "local_screenshot"
	AttachmentRemoteImage     AttachmentKind = "remote_image"
	AttachmentRemoteFile      AttachmentKind = "remote_file"
)

// UploadState tracks a local attachment's transfer
type UploadState string

const (
	UploadPending  UploadState = "pending"
	UploadActive   UploadState = "uploading"
	UploadComplete UploadState = "complete"
	UploadFailed   UploadState = "failed"
)

// Attachment is a file or screenshot tied to a message. Local variants carry
// upload progress; remote variants carry a durable backend file reference.
type Attachment struct {
	Kind      AttachmentKind `json:"kind"`
	FileName  string         `json:"file_name,omitempty"`
	MimeType  string         `json:"mime_type,omitempty"`
	SizeBytes int64          `json:"size_bytes,omitempty"`

	// Local-only fields
	Progress    float64     `json:"progress,omitempty"`
	UploadState UploadState `json:"upload_state,omitempty"`

	// Remote fields, valid once uploaded
	FileID string `json:"file_id,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Remote reports whether the attachment carries a durable file reference.
func (a Attachment) Remote() bool {
	return a.Kind == AttachmentRemoteImage || a.Kind == AttachmentRemoteFile
}
