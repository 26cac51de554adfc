// Package transcript holds the ordered list of turns shown to the user.
package transcript

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/minerba/pkg/assistant"
	"github.com/go-go-golems/minerba/pkg/orchestrator"
	"github.com/go-go-golems/minerba/pkg/session"
)

// Turn is one entry of the transcript. Failed marks assistant turns whose
// content is a flattened error.
type Turn struct {
	Role    assistant.Role
	Content string
	Failed  bool
}

// Transcript is append-only. It is safe for concurrent use.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

func New() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Append(turn Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
}

// Turns returns a copy of the turns in order.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Turn(nil), t.turns...)
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Last returns the newest turn with the given role.
func (t *Transcript) Last(role assistant.Role) (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Role == role {
			return t.turns[i], true
		}
	}
	return Turn{}, false
}

// Text joins all turn contents, used for token counting.
func (t *Transcript) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	parts := make([]string, 0, len(t.turns))
	for _, turn := range t.turns {
		parts = append(parts, turn.Content)
	}
	return strings.Join(parts, "\n")
}

// Responder produces the assistant side of a turn.
type Responder interface {
	Respond(ctx context.Context, s *session.Session, userText string) orchestrator.Result
}

// Exchange appends the user turn, asks the responder and appends the reply,
// so every submitted message is followed by exactly one assistant turn.
func Exchange(ctx context.Context, tr *Transcript, r Responder, s *session.Session, userText string) orchestrator.Result {
	tr.Append(UserTurn(userText))
	res := r.Respond(ctx, s, userText)
	tr.Append(ReplyTurn(res))
	return res
}

func UserTurn(text string) Turn {
	return Turn{Role: assistant.RoleUser, Content: text}
}

// ReplyTurn flattens a result into the assistant turn shown to the user.
func ReplyTurn(res orchestrator.Result) Turn {
	return Turn{Role: assistant.RoleAssistant, Content: res.Display(), Failed: !res.OK()}
}
