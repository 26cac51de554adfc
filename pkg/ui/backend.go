package ui

import (
	"context"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/minerba/pkg/events"
	"github.com/go-go-golems/minerba/pkg/orchestrator"
	"github.com/go-go-golems/minerba/pkg/session"
	"github.com/go-go-golems/minerba/pkg/transcript"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TurnFinishedMsg is sent to the program when a turn has produced its reply.
type TurnFinishedMsg struct {
	Result orchestrator.Result
}

// JobEventMsg carries a turn lifecycle event to the program.
type JobEventMsg struct {
	Event events.Event
}

// TurnBackend runs one turn at a time against the orchestrator and records
// both sides in the transcript.
type TurnBackend struct {
	responder  transcript.Responder
	session    *session.Session
	transcript *transcript.Transcript

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
}

func NewTurnBackend(r transcript.Responder, s *session.Session, tr *transcript.Transcript) *TurnBackend {
	if tr == nil {
		tr = transcript.New()
	}
	return &TurnBackend{
		responder:  r,
		session:    s,
		transcript: tr,
	}
}

func (b *TurnBackend) Transcript() *transcript.Transcript {
	return b.transcript
}

func (b *TurnBackend) Session() *session.Session {
	return b.session
}

// Start appends the user turn right away and returns a command that blocks
// until the assistant turn is appended.
func (b *TurnBackend) Start(ctx context.Context, userText string) (tea.Cmd, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, errors.New("empty message")
	}
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return nil, errors.New("a turn is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.isRunning = true
	b.mu.Unlock()

	b.transcript.Append(transcript.UserTurn(userText))

	return func() tea.Msg {
		res := b.responder.Respond(ctx, b.session, userText)
		b.transcript.Append(transcript.ReplyTurn(res))

		b.mu.Lock()
		b.isRunning = false
		b.cancel = nil
		b.mu.Unlock()
		cancel()

		if !res.OK() {
			log.Debug().Str("kind", string(res.Kind)).Str("error", res.Message).Msg("turn ended with error")
		}
		return TurnFinishedMsg{Result: res}
	}, nil
}

// Interrupt cancels the running turn. The remote run keeps going.
func (b *TurnBackend) Interrupt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	} else {
		log.Debug().Msg("no turn running")
	}
}

func (b *TurnBackend) IsFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.isRunning
}

// Sender is the part of *tea.Program the forwarder needs.
type Sender interface {
	Send(msg tea.Msg)
}

// TurnEventForwardFunc forwards watermill messages to the UI by turning them
// into JobEventMsg. Events of other sessions are dropped when sessionID is set.
func TurnEventForwardFunc(p Sender, sessionID string) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		e, err := events.FromMessage(msg)
		if err != nil {
			log.Error().Err(err).Str("payload", string(msg.Payload)).Msg("Failed to parse event")
			return err
		}
		if sessionID != "" && e.SessionID != sessionID {
			return nil
		}
		log.Trace().Str("type", string(e.Type)).Str("job_id", e.JobID).Msg("Dispatching event to UI")
		p.Send(JobEventMsg{Event: e})
		return nil
	}
}
