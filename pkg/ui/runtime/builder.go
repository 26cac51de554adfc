package runtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/minerba/pkg/events"
	"github.com/go-go-golems/minerba/pkg/session"
	"github.com/go-go-golems/minerba/pkg/transcript"
	"github.com/go-go-golems/minerba/pkg/ui"
	"github.com/pkg/errors"
)

// HandlerContext provides runtime objects for building a Watermill handler.
type HandlerContext struct {
	Session *ChatSession
	Program *tea.Program
	Router  *events.Router
}

// HandlerFactory produces a Watermill handler bound to the provided context.
type HandlerFactory func(HandlerContext) func(*message.Message) error

// ChatBuilder constructs the chat program and the handler that forwards turn
// events into it.
type ChatBuilder struct {
	ctx            context.Context
	responder      transcript.Responder
	session        *session.Session
	initErr        error
	transcript     *transcript.Transcript
	router         *events.Router
	programOptions []tea.ProgramOption
	modelOptions   []ui.ModelOption
	handlerFactory HandlerFactory
}

func NewChatBuilder() *ChatBuilder {
	return &ChatBuilder{
		ctx: context.Background(),
	}
}

func (b *ChatBuilder) WithContext(ctx context.Context) *ChatBuilder {
	if ctx != nil {
		b.ctx = ctx
	}
	return b
}

func (b *ChatBuilder) WithResponder(r transcript.Responder) *ChatBuilder {
	b.responder = r
	return b
}

// WithSession sets the bootstrapped session, or the error bootstrap returned.
func (b *ChatBuilder) WithSession(s *session.Session, initErr error) *ChatBuilder {
	b.session = s
	b.initErr = initErr
	return b
}

func (b *ChatBuilder) WithTranscript(tr *transcript.Transcript) *ChatBuilder {
	b.transcript = tr
	return b
}

func (b *ChatBuilder) WithRouter(r *events.Router) *ChatBuilder {
	b.router = r
	return b
}

func (b *ChatBuilder) WithProgramOptions(opts ...tea.ProgramOption) *ChatBuilder {
	b.programOptions = append(b.programOptions, opts...)
	return b
}

func (b *ChatBuilder) WithModelOptions(opts ...ui.ModelOption) *ChatBuilder {
	b.modelOptions = append(b.modelOptions, opts...)
	return b
}

// WithHandlerFactory replaces the default TurnEventForwardFunc handler.
func (b *ChatBuilder) WithHandlerFactory(f HandlerFactory) *ChatBuilder {
	b.handlerFactory = f
	return b
}

// ChatSession holds references to runtime components and exposes a bound event handler.
type ChatSession struct {
	Router  *events.Router
	Backend *ui.TurnBackend

	handler func(*message.Message) error
	program *tea.Program
}

// EventHandler returns the bound Watermill->UI handler.
func (cs *ChatSession) EventHandler() func(*message.Message) error {
	return cs.handler
}

func (cs *ChatSession) Program() *tea.Program {
	return cs.program
}

// BuildModel creates the backend and the chat model without a program, for
// embedding or tests.
func (b *ChatBuilder) BuildModel() (*ChatSession, ui.Model, error) {
	if b.responder == nil {
		return nil, ui.Model{}, errors.New("responder is required")
	}
	if b.session == nil && b.initErr == nil {
		return nil, ui.Model{}, errors.New("session or init error is required")
	}

	backend := ui.NewTurnBackend(b.responder, b.session, b.transcript)
	opts := append([]ui.ModelOption{ui.WithContext(b.ctx)}, b.modelOptions...)
	if b.initErr != nil {
		opts = append(opts, ui.WithInitError(b.initErr))
	}
	model := ui.NewModel(backend, opts...)

	return &ChatSession{Router: b.router, Backend: backend}, model, nil
}

// BuildProgram creates the backend, the chat model and a ready-to-run Bubble
// Tea program. When a router is set, the event handler is registered on it.
func (b *ChatBuilder) BuildProgram() (*ChatSession, *tea.Program, error) {
	sess, model, err := b.BuildModel()
	if err != nil {
		return nil, nil, err
	}
	program := tea.NewProgram(model, b.programOptions...)
	sess.program = program

	if b.handlerFactory != nil {
		sess.handler = b.handlerFactory(HandlerContext{Session: sess, Program: program, Router: b.router})
	} else {
		sessionID := ""
		if b.session != nil {
			sessionID = b.session.ID
		}
		sess.handler = ui.TurnEventForwardFunc(program, sessionID)
	}

	if b.router != nil {
		b.router.AddHandler("ui", events.TopicTurns, sess.handler)
	}
	return sess, program, nil
}
