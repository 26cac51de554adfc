// Package assistanttest provides a scripted in-memory assistant.Client for tests.
package assistanttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-go-golems/minerba/pkg/assistant"
	"github.com/pkg/errors"
)

const (
	OpCreateConversation = "CreateConversation"
	OpPostMessage        = "PostMessage"
	OpStartJob           = "StartJob"
	OpGetJobStatus       = "GetJobStatus"
	OpListMessages       = "ListMessages"
	OpGetAssistant       = "GetAssistant"
)

type job struct {
	conversationID string
	statuses       []string
	idx            int
	answered       bool
}

// Client replays a fixed status sequence for every job. The first status is
// returned by StartJob, the following ones by successive GetJobStatus calls.
// The last status repeats once the sequence is exhausted. When a job reaches
// "completed" the assistant reply is appended to the conversation.
type Client struct {
	Statuses   []string
	Reply      string
	ReplyFunc  func(userText string) string
	Assistants map[string]assistant.Assistant
	Errors     map[string]error
	LastError  string

	mu            sync.Mutex
	calls         []string
	nextID        int
	conversations map[string][]assistant.Message
	order         []string
	jobs          map[string]*job
}

var _ assistant.Client = &Client{}

func NewClient(statuses ...string) *Client {
	return &Client{
		Statuses: statuses,
		Reply:    "ok",
		Assistants: map[string]assistant.Assistant{
			"asst_test": {ID: "asst_test", Name: "Test Assistant", Model: "gpt-4o"},
		},
		Errors: map[string]error{},
	}
}

func (c *Client) record(op string) error {
	c.calls = append(c.calls, op)
	if c.conversations == nil {
		c.conversations = map[string][]assistant.Message{}
		c.jobs = map[string]*job{}
	}
	if err, ok := c.Errors[op]; ok && err != nil {
		return err
	}
	return nil
}

func (c *Client) id(prefix string) string {
	c.nextID++
	return fmt.Sprintf("%s_%d", prefix, c.nextID)
}

func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpCreateConversation); err != nil {
		return "", err
	}
	id := c.id("thread")
	c.conversations[id] = nil
	c.order = append(c.order, id)
	return id, nil
}

func (c *Client) PostMessage(ctx context.Context, conversationID string, role assistant.Role, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpPostMessage); err != nil {
		return err
	}
	if _, ok := c.conversations[conversationID]; !ok {
		return errors.Errorf("no such thread: %s", conversationID)
	}
	c.conversations[conversationID] = append(c.conversations[conversationID], assistant.Message{
		ID:      c.id("msg"),
		Role:    role,
		Content: []assistant.Content{{Type: "text", Text: text}},
	})
	return nil
}

func (c *Client) StartJob(ctx context.Context, conversationID string, assistantID string) (assistant.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpStartJob); err != nil {
		return assistant.Job{}, err
	}
	if _, ok := c.conversations[conversationID]; !ok {
		return assistant.Job{}, errors.Errorf("no such thread: %s", conversationID)
	}
	statuses := c.Statuses
	if len(statuses) == 0 {
		statuses = []string{"completed"}
	}
	j := &job{conversationID: conversationID, statuses: statuses}
	id := c.id("run")
	c.jobs[id] = j
	return assistant.Job{ID: id, ConversationID: conversationID, Status: c.advance(j)}, nil
}

func (c *Client) GetJobStatus(ctx context.Context, conversationID string, jobID string) (assistant.JobStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpGetJobStatus); err != nil {
		return assistant.JobStatus{}, err
	}
	j, ok := c.jobs[jobID]
	if !ok || j.conversationID != conversationID {
		return assistant.JobStatus{}, errors.Errorf("no such run: %s", jobID)
	}
	return c.advance(j), nil
}

// advance must be called with c.mu held.
func (c *Client) advance(j *job) assistant.JobStatus {
	raw := j.statuses[len(j.statuses)-1]
	if j.idx < len(j.statuses) {
		raw = j.statuses[j.idx]
		j.idx++
	}
	s := assistant.ParseStatus(raw)
	if s.Kind == assistant.StatusFailed {
		s.LastError = c.LastError
	}
	if s.Kind == assistant.StatusCompleted && !j.answered {
		j.answered = true
		c.conversations[j.conversationID] = append(c.conversations[j.conversationID], assistant.Message{
			ID:      c.id("msg"),
			Role:    assistant.RoleAssistant,
			Content: []assistant.Content{{Type: "text", Text: c.reply(j.conversationID)}},
		})
	}
	return s
}

func (c *Client) reply(conversationID string) string {
	if c.ReplyFunc == nil {
		return c.Reply
	}
	msgs := c.conversations[conversationID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == assistant.RoleUser {
			text, _ := msgs[i].FirstText()
			return c.ReplyFunc(text)
		}
	}
	return c.ReplyFunc("")
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]assistant.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpListMessages); err != nil {
		return nil, err
	}
	msgs, ok := c.conversations[conversationID]
	if !ok {
		return nil, errors.Errorf("no such thread: %s", conversationID)
	}
	ret := make([]assistant.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		ret = append(ret, msgs[i])
	}
	return ret, nil
}

func (c *Client) GetAssistant(ctx context.Context, assistantID string) (assistant.Assistant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpGetAssistant); err != nil {
		return assistant.Assistant{}, err
	}
	a, ok := c.Assistants[assistantID]
	if !ok {
		return assistant.Assistant{}, errors.Errorf("no assistant found with id '%s'", assistantID)
	}
	return a, nil
}

// Count returns how many times op was called.
func (c *Client) Count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == op {
			n++
		}
	}
	return n
}

// Calls returns the operations in call order.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Conversations returns conversation ids in creation order.
func (c *Client) Conversations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// UserTurns returns the number of user messages posted to a conversation.
func (c *Client) UserTurns(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.conversations[conversationID] {
		if m.Role == assistant.RoleUser {
			n++
		}
	}
	return n
}
