package assistant

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client on top of the OpenAI Assistants API
// (threads, messages and runs).
type OpenAIClient struct {
	client *openai.Client
}

var _ Client = &OpenAIClient{}

type OpenAIOption func(*openai.ClientConfig)

// WithBaseURL points the client at a different API root, e.g. a proxy or a test server.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(c *openai.ClientConfig) {
		if strings.TrimSpace(baseURL) != "" {
			c.BaseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func NewOpenAIClient(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: empty api key")
	}
	cfg := openai.DefaultConfig(apiKey)
	for _, o := range opts {
		o(&cfg)
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}, nil
}

func (c *OpenAIClient) CreateConversation(ctx context.Context) (string, error) {
	thread, err := c.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", errors.Wrap(err, "create thread")
	}
	log.Debug().Str("component", "assistant").Str("thread_id", thread.ID).Msg("created thread")
	return thread.ID, nil
}

func (c *OpenAIClient) PostMessage(ctx context.Context, conversationID string, role Role, text string) error {
	msg, err := c.client.CreateMessage(ctx, conversationID, openai.MessageRequest{
		Role:    string(role),
		Content: text,
	})
	if err != nil {
		return errors.Wrap(err, "create message")
	}
	log.Debug().Str("component", "assistant").
		Str("thread_id", conversationID).
		Str("message_id", msg.ID).
		Msg("added message to thread")
	return nil
}

func (c *OpenAIClient) StartJob(ctx context.Context, conversationID string, assistantID string) (Job, error) {
	run, err := c.client.CreateRun(ctx, conversationID, openai.RunRequest{
		AssistantID: assistantID,
	})
	if err != nil {
		return Job{}, errors.Wrap(err, "create run")
	}
	log.Debug().Str("component", "assistant").
		Str("thread_id", conversationID).
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Msg("created run")
	return Job{ID: run.ID, ConversationID: conversationID, Status: runStatus(run)}, nil
}

func (c *OpenAIClient) GetJobStatus(ctx context.Context, conversationID string, jobID string) (JobStatus, error) {
	run, err := c.client.RetrieveRun(ctx, conversationID, jobID)
	if err != nil {
		return JobStatus{}, errors.Wrap(err, "retrieve run")
	}
	return runStatus(run), nil
}

func (c *OpenAIClient) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	order := "desc"
	list, err := c.client.ListMessage(ctx, conversationID, nil, &order, nil, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	ret := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		msg := Message{ID: m.ID, Role: Role(m.Role)}
		for _, mc := range m.Content {
			content := Content{Type: mc.Type}
			if mc.Text != nil {
				content.Text = mc.Text.Value
			}
			msg.Content = append(msg.Content, content)
		}
		ret = append(ret, msg)
	}
	log.Debug().Str("component", "assistant").
		Str("thread_id", conversationID).
		Int("count", len(ret)).
		Msg("retrieved messages")
	return ret, nil
}

func (c *OpenAIClient) GetAssistant(ctx context.Context, assistantID string) (Assistant, error) {
	a, err := c.client.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return Assistant{}, errors.Wrap(err, "retrieve assistant")
	}
	ret := Assistant{ID: a.ID, Model: a.Model}
	if a.Name != nil {
		ret.Name = *a.Name
	}
	return ret, nil
}

func runStatus(run openai.Run) JobStatus {
	s := ParseStatus(string(run.Status))
	if run.LastError != nil {
		s.LastError = run.LastError.Message
	}
	return s
}
