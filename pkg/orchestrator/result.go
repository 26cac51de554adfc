package orchestrator

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies why a turn did not produce an assistant reply.
type ErrorKind string

const (
	KindNotInitialized ErrorKind = "not_initialized"
	KindSubmission     ErrorKind = "submission"
	KindJobFailed      ErrorKind = "job_failed"
	KindTimeout        ErrorKind = "timeout"
	KindExtraction     ErrorKind = "extraction"
	KindCanceled       ErrorKind = "canceled"
)

// Result is the outcome of one turn: either the assistant text or an error
// kind with a message. Kind is empty on success.
type Result struct {
	Text    string
	Kind    ErrorKind
	Message string

	ConversationID string
	JobID          string
	Polls          int
}

func Ok(text string) Result {
	return Result{Text: text}
}

func Err(kind ErrorKind, message string) Result {
	return Result{Kind: kind, Message: message}
}

func (r Result) OK() bool {
	return r.Kind == ""
}

// Outcome is "ok" or the error kind, as recorded in events and the run log.
func (r Result) Outcome() string {
	if r.OK() {
		return "ok"
	}
	return string(r.Kind)
}

// Display flattens the result to the text shown in the transcript.
func (r Result) Display() string {
	if r.OK() {
		return r.Text
	}
	return "Error: " + r.Message
}

// Err returns the failure as a Go error, or nil on success.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &TurnError{Kind: r.Kind, Message: r.Message}
}

// ErrNotInitialized matches the error of a turn submitted before bootstrap.
var ErrNotInitialized = errors.New("assistant not initialized")

type TurnError struct {
	Kind    ErrorKind
	Message string
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TurnError) Is(target error) bool {
	return target == ErrNotInitialized && e.Kind == KindNotInitialized
}
