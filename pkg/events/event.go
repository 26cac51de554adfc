package events

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TopicTurns carries the lifecycle events of every turn.
const TopicTurns = "minerba.turns"

type Type string

const (
	TypeTurnSubmitted Type = "turn.submitted"
	TypeJobStarted    Type = "job.started"
	TypeJobPolled     Type = "job.polled"
	TypeJobFinished   Type = "job.finished"
)

// Event describes one step of a turn. Outcome is set on job.finished and is
// either "ok" or the error kind of the turn.
type Event struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	SessionID      string    `json:"session_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	JobID          string    `json:"job_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	Attempt        int       `json:"attempt,omitempty"`
	Outcome        string    `json:"outcome,omitempty"`
	Message        string    `json:"message,omitempty"`
	Time           time.Time `json:"time"`
}

func NewEvent(t Type) Event {
	return Event{ID: uuid.NewString(), Type: t, Time: time.Now()}
}

func (e Event) ToMessage() (*message.Message, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event")
	}
	msg := message.NewMessage(e.ID, b)
	msg.Metadata.Set("type", string(e.Type))
	return msg, nil
}

func FromMessage(msg *message.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return Event{}, errors.Wrap(err, "unmarshal event")
	}
	return e, nil
}
