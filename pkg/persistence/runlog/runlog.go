package runlog

import "context"

// JobRecord is the diagnostic trace of one turn's job.
type JobRecord struct {
	ID             string   `json:"id" yaml:"id"`
	SessionID      string   `json:"session_id" yaml:"session_id"`
	ConversationID string   `json:"conversation_id" yaml:"conversation_id"`
	JobID          string   `json:"job_id" yaml:"job_id"`
	Statuses       []string `json:"statuses" yaml:"statuses"`
	Polls          int      `json:"polls" yaml:"polls"`
	Outcome        string   `json:"outcome" yaml:"outcome"`
	Message        string   `json:"message,omitempty" yaml:"message,omitempty"`
	StartedAtMs    int64    `json:"started_at_ms" yaml:"started_at_ms"`
	FinishedAtMs   int64    `json:"finished_at_ms" yaml:"finished_at_ms"`
}

// Query describes filters for loading job records. Results are newest first.
type Query struct {
	SessionID      string
	ConversationID string
	Outcome        string
	Limit          int
}

// Store keeps job records for inspection/debugging. It never holds message
// content, so conversations cannot be resumed from it.
type Store interface {
	Save(ctx context.Context, rec JobRecord) error
	List(ctx context.Context, q Query) ([]JobRecord, error)
	Close() error
}
