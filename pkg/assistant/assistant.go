package assistant

import (
	"context"
	"strings"
)

// Role is the author of a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StatusKind is the closed set of job states the orchestrator distinguishes.
type StatusKind int

const (
	StatusPending StatusKind = iota
	StatusCompleted
	StatusFailed
	StatusUnknown
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobStatus is a remote job state. Raw keeps the label the remote service sent.
type JobStatus struct {
	Kind StatusKind
	Raw  string
	// LastError is the remote failure message, if the service reported one.
	LastError string
}

// Terminal reports whether polling can stop.
func (s JobStatus) Terminal() bool {
	return s.Kind == StatusCompleted || s.Kind == StatusFailed
}

func (s JobStatus) String() string {
	if s.Raw != "" {
		return s.Raw
	}
	return s.Kind.String()
}

// ParseStatus maps a remote run label onto a JobStatus.
// Labels that are not known are kept as Unknown and polled like pending ones.
func ParseStatus(raw string) JobStatus {
	label := strings.ToLower(strings.TrimSpace(raw))
	switch label {
	case "queued", "in_progress", "requires_action", "cancelling":
		return JobStatus{Kind: StatusPending, Raw: label}
	case "completed":
		return JobStatus{Kind: StatusCompleted, Raw: label}
	case "failed", "cancelled", "expired", "incomplete":
		return JobStatus{Kind: StatusFailed, Raw: label}
	default:
		return JobStatus{Kind: StatusUnknown, Raw: raw}
	}
}

// Job is one in-flight assistant invocation against a conversation.
type Job struct {
	ID             string
	ConversationID string
	Status         JobStatus
}

// Content is one block of a message. Only text blocks carry Text.
type Content struct {
	Type string
	Text string
}

// Message is a message read back from a conversation.
type Message struct {
	ID      string
	Role    Role
	Content []Content
}

// FirstText returns the text of the first content block.
func (m Message) FirstText() (string, bool) {
	if len(m.Content) == 0 {
		return "", false
	}
	c := m.Content[0]
	if c.Type != "" && c.Type != "text" {
		return "", false
	}
	return c.Text, true
}

// Assistant describes the remote agent definition.
type Assistant struct {
	ID    string
	Name  string
	Model string
}

// Client is the remote assistant API as seen by the orchestrator.
// ListMessages returns the most recent message first.
type Client interface {
	CreateConversation(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, conversationID string, role Role, text string) error
	StartJob(ctx context.Context, conversationID string, assistantID string) (Job, error)
	GetJobStatus(ctx context.Context, conversationID string, jobID string) (JobStatus, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	GetAssistant(ctx context.Context, assistantID string) (Assistant, error)
}
