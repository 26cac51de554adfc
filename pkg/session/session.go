package session

import (
	"context"
	"strings"

	"github.com/go-go-golems/minerba/pkg/assistant"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ConversationScope decides whether a remote conversation outlives a turn.
type ConversationScope string

const (
	// ScopePersistent creates the conversation on the first turn and reuses it.
	ScopePersistent ConversationScope = "persistent"
	// ScopePerTurn creates a fresh conversation for every turn.
	ScopePerTurn ConversationScope = "per-turn"
)

func ParseScope(s string) (ConversationScope, error) {
	switch ConversationScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopePersistent:
		return ScopePersistent, nil
	case ScopePerTurn, "per_turn", "stateless":
		return ScopePerTurn, nil
	default:
		return "", errors.Errorf("unknown conversation scope %q (expected persistent or per-turn)", s)
	}
}

// Session holds the state kept across turns for one user.
// It is not safe for concurrent turns; callers serialize input.
type Session struct {
	ID             string
	Client         assistant.Client
	AssistantID    string
	AssistantName  string
	ConversationID string
	Scope          ConversationScope
}

// Initialized reports whether a turn may be submitted.
func (s *Session) Initialized() bool {
	return s != nil && s.Client != nil && strings.TrimSpace(s.AssistantID) != ""
}

// InitError is returned when the session cannot be set up. The UI shows it
// once and keeps input disabled.
type InitError struct {
	Reason string
	Err    error
}

func (e *InitError) Error() string {
	if e.Err == nil {
		return "error initializing assistant: " + e.Reason
	}
	return "error initializing assistant: " + e.Reason + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error { return e.Err }

// Bootstrap validates the assistant identity against the remote service and
// returns a ready session.
func Bootstrap(ctx context.Context, client assistant.Client, assistantID string, scope ConversationScope) (*Session, error) {
	if client == nil {
		return nil, &InitError{Reason: "no client (is the api key set?)"}
	}
	if strings.TrimSpace(assistantID) == "" {
		return nil, &InitError{Reason: "no assistant id configured"}
	}
	if scope == "" {
		scope = ScopePersistent
	}

	a, err := client.GetAssistant(ctx, assistantID)
	if err != nil {
		return nil, &InitError{Reason: "could not retrieve assistant " + assistantID, Err: err}
	}

	s := &Session{
		ID:            uuid.NewString(),
		Client:        client,
		AssistantID:   a.ID,
		AssistantName: a.Name,
		Scope:         scope,
	}
	if s.AssistantID == "" {
		s.AssistantID = assistantID
	}
	log.Info().
		Str("session_id", s.ID).
		Str("assistant_id", s.AssistantID).
		Str("assistant_name", s.AssistantName).
		Str("scope", string(s.Scope)).
		Msg("assistant initialized")
	return s, nil
}

// EnsureConversation returns the conversation to post the next turn to,
// creating one according to the session scope.
func (s *Session) EnsureConversation(ctx context.Context) (string, error) {
	if !s.Initialized() {
		return "", errors.New("session not initialized")
	}
	if s.Scope != ScopePerTurn && s.ConversationID != "" {
		return s.ConversationID, nil
	}
	id, err := s.Client.CreateConversation(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", errors.New("remote returned an empty conversation id")
	}
	s.ConversationID = id
	log.Debug().
		Str("session_id", s.ID).
		Str("conversation_id", id).
		Str("scope", string(s.Scope)).
		Msg("created conversation")
	return id, nil
}
