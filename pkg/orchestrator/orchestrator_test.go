package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/minerba/pkg/assistant"
	"github.com/go-go-golems/minerba/pkg/assistant/assistanttest"
	"github.com/go-go-golems/minerba/pkg/events"
	"github.com/go-go-golems/minerba/pkg/persistence/runlog"
	"github.com/go-go-golems/minerba/pkg/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Now() time.Time { return c.now }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := []events.Type{}
	for _, e := range p.events {
		ret = append(ret, e.Type)
	}
	return ret
}

func newTestSession(c *assistanttest.Client, scope session.ConversationScope) *session.Session {
	return &session.Session{ID: "sess-1", Client: c, AssistantID: "asst_test", Scope: scope}
}

func newTestOrchestrator(clock *fakeClock, opts ...Option) *Orchestrator {
	opts = append([]Option{WithSleeper(clock), WithClock(clock.Now)}, opts...)
	return New(opts...)
}

func TestRespond_Scenario(t *testing.T) {
	c := assistanttest.NewClient("in_progress", "completed")
	c.Reply = "4"
	clock := newFakeClock()
	o := newTestOrchestrator(clock)

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "2+2?")
	require.True(t, res.OK(), res.Display())
	require.Equal(t, "4", res.Display())
	require.Equal(t, []time.Duration{500 * time.Millisecond}, clock.sleeps)
	require.Equal(t, 1, res.Polls)
	require.NotEmpty(t, res.JobID)
	require.NotEmpty(t, res.ConversationID)
}

func TestRespond_PollCountUntilCompleted(t *testing.T) {
	c := assistanttest.NewClient("queued", "in_progress", "in_progress", "completed")
	clock := newFakeClock()
	o := newTestOrchestrator(clock)

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
	require.True(t, res.OK())
	require.Equal(t, 3, c.Count(assistanttest.OpGetJobStatus))
	require.Equal(t, 3, res.Polls)
	require.Len(t, clock.sleeps, 3)
	require.Equal(t, 1, c.Count(assistanttest.OpListMessages))
}

func TestRespond_FailedJobDoesNotListMessages(t *testing.T) {
	c := assistanttest.NewClient("queued", "failed")
	o := newTestOrchestrator(newFakeClock())

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
	require.False(t, res.OK())
	require.Equal(t, KindJobFailed, res.Kind)
	require.Equal(t, "Error: Run failed", res.Display())
	require.Equal(t, 1, c.Count(assistanttest.OpGetJobStatus))
	require.Equal(t, 0, c.Count(assistanttest.OpListMessages))
}

func TestRespond_FailedJobIncludesRemoteError(t *testing.T) {
	c := assistanttest.NewClient("queued", "failed")
	c.LastError = "rate limit exceeded"
	o := newTestOrchestrator(newFakeClock())

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
	require.Equal(t, "Error: Run failed: rate limit exceeded", res.Display())
}

func TestRespond_TerminalInitialStatusSkipsPolling(t *testing.T) {
	c := assistanttest.NewClient("completed")
	c.Reply = "instant"
	clock := newFakeClock()
	o := newTestOrchestrator(clock)

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
	require.Equal(t, "instant", res.Display())
	require.Equal(t, 0, c.Count(assistanttest.OpGetJobStatus))
	require.Empty(t, clock.sleeps)
}

func TestRespond_UnknownStatusIsPolled(t *testing.T) {
	c := assistanttest.NewClient("queued", "warming_up", "completed")
	o := newTestOrchestrator(newFakeClock())

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
	require.True(t, res.OK())
	require.Equal(t, 2, res.Polls)
}

func TestRespond_PersistentScopeReusesConversation(t *testing.T) {
	c := assistanttest.NewClient("completed")
	s := newTestSession(c, session.ScopePersistent)
	o := newTestOrchestrator(newFakeClock())

	first := o.Respond(context.Background(), s, "one")
	second := o.Respond(context.Background(), s, "two")
	require.True(t, first.OK())
	require.True(t, second.OK())
	require.Equal(t, first.ConversationID, second.ConversationID)
	require.Equal(t, 1, c.Count(assistanttest.OpCreateConversation))
	require.Equal(t, 2, c.UserTurns(first.ConversationID))
}

func TestRespond_PerTurnScopeIsolatesConversations(t *testing.T) {
	c := assistanttest.NewClient("completed")
	s := newTestSession(c, session.ScopePerTurn)
	o := newTestOrchestrator(newFakeClock())

	seen := map[string]bool{}
	for _, text := range []string{"one", "two", "three"} {
		res := o.Respond(context.Background(), s, text)
		require.True(t, res.OK())
		require.False(t, seen[res.ConversationID])
		seen[res.ConversationID] = true
	}
	require.Len(t, c.Conversations(), 3)
	for _, conv := range c.Conversations() {
		require.Equal(t, 1, c.UserTurns(conv))
	}
}

func TestRespond_ExtractionIsIdempotent(t *testing.T) {
	c := assistanttest.NewClient("completed")
	c.Reply = "same"
	s := newTestSession(c, session.ScopePersistent)
	o := newTestOrchestrator(newFakeClock())

	res := o.Respond(context.Background(), s, "hi")
	require.True(t, res.OK())

	for i := 0; i < 3; i++ {
		again := o.extract(context.Background(), testLogger(), s, res.ConversationID)
		require.Equal(t, res.Text, again.Text)
	}
}

func TestRespond_ClientErrorsBecomeResults(t *testing.T) {
	for _, op := range []string{
		assistanttest.OpCreateConversation,
		assistanttest.OpPostMessage,
		assistanttest.OpStartJob,
		assistanttest.OpGetJobStatus,
		assistanttest.OpListMessages,
	} {
		t.Run(op, func(t *testing.T) {
			c := assistanttest.NewClient("queued", "completed")
			c.Errors[op] = errors.New("connection reset by peer")
			o := newTestOrchestrator(newFakeClock())

			var res Result
			require.NotPanics(t, func() {
				res = o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
			})
			require.Equal(t, KindSubmission, res.Kind)
			require.Regexp(t, "^Error: ", res.Display())
			require.Contains(t, res.Message, "connection reset by peer")
			require.Error(t, res.Err())
		})
	}
}

func TestRespond_NotInitialized(t *testing.T) {
	o := newTestOrchestrator(newFakeClock())

	res := o.Respond(context.Background(), nil, "hi")
	require.Equal(t, KindNotInitialized, res.Kind)

	c := assistanttest.NewClient()
	res = o.Respond(context.Background(), &session.Session{Client: c}, "hi")
	require.Equal(t, KindNotInitialized, res.Kind)
	require.Empty(t, c.Calls())
}

func TestRespond_EmptyMessage(t *testing.T) {
	c := assistanttest.NewClient()
	o := newTestOrchestrator(newFakeClock())

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "   ")
	require.Equal(t, KindSubmission, res.Kind)
	require.Empty(t, c.Calls())
}

func TestRespond_MaxAttempts(t *testing.T) {
	c := assistanttest.NewClient("queued", "in_progress")
	o := newTestOrchestrator(newFakeClock(), WithPollPolicy(PollPolicy{
		Interval:    time.Second,
		MaxAttempts: 4,
	}))

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
	require.Equal(t, KindTimeout, res.Kind)
	require.Equal(t, 4, c.Count(assistanttest.OpGetJobStatus))
	require.Equal(t, 0, c.Count(assistanttest.OpListMessages))
}

func TestRespond_WallClockTimeout(t *testing.T) {
	c := assistanttest.NewClient("queued")
	clock := newFakeClock()
	o := newTestOrchestrator(clock, WithPollPolicy(PollPolicy{
		Interval: 500 * time.Millisecond,
		Timeout:  2 * time.Second,
	}))

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
	require.Equal(t, KindTimeout, res.Kind)
	require.Len(t, clock.sleeps, 4)
	require.Equal(t, 4, res.Polls)
}

func TestRespond_CanceledContext(t *testing.T) {
	c := assistanttest.NewClient("queued", "in_progress")
	o := newTestOrchestrator(newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())

	sleeper := SleeperFunc(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
	o.sleeper = sleeper

	res := o.Respond(ctx, newTestSession(c, session.ScopePersistent), "hi")
	require.Equal(t, KindCanceled, res.Kind)
	require.Equal(t, 0, c.Count(assistanttest.OpGetJobStatus))
}

// stubMessages overrides what the remote returns once a job completes.
type stubMessages struct {
	*assistanttest.Client
	msgs []assistant.Message
}

func (s *stubMessages) ListMessages(ctx context.Context, conversationID string) ([]assistant.Message, error) {
	if _, err := s.Client.ListMessages(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.msgs, nil
}

func TestRespond_ExtractionErrors(t *testing.T) {
	cases := []struct {
		name string
		msgs []assistant.Message
	}{
		{name: "no messages"},
		{name: "no content", msgs: []assistant.Message{{ID: "m1", Role: assistant.RoleAssistant}}},
		{name: "image content", msgs: []assistant.Message{{
			ID:      "m1",
			Role:    assistant.RoleAssistant,
			Content: []assistant.Content{{Type: "image_file"}},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &stubMessages{Client: assistanttest.NewClient("completed"), msgs: tc.msgs}
			s := &session.Session{ID: "sess-1", Client: c, AssistantID: "asst_test", Scope: session.ScopePersistent}
			o := newTestOrchestrator(newFakeClock())

			res := o.Respond(context.Background(), s, "hi")
			require.Equal(t, KindExtraction, res.Kind)
			require.Regexp(t, "^Error: ", res.Display())
		})
	}
}

func TestRespond_EmptyTextReplyIsReturned(t *testing.T) {
	c := assistanttest.NewClient("completed")
	c.Reply = ""
	o := newTestOrchestrator(newFakeClock())

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
	require.True(t, res.OK())
	require.Equal(t, "", res.Display())
}

func TestRespond_PublishesLifecycleAndRecordsRun(t *testing.T) {
	c := assistanttest.NewClient("queued", "in_progress", "completed")
	pub := &recordingPublisher{}
	runs := runlog.NewInMemoryStore(10)
	o := newTestOrchestrator(newFakeClock(), WithPublisher(pub), WithRunLog(runs))

	res := o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
	require.True(t, res.OK())
	require.Equal(t, []events.Type{
		events.TypeTurnSubmitted,
		events.TypeJobStarted,
		events.TypeJobPolled,
		events.TypeJobPolled,
		events.TypeJobFinished,
	}, pub.types())

	last := pub.events[len(pub.events)-1]
	require.Equal(t, "ok", last.Outcome)
	require.Equal(t, "completed", last.Status)
	require.Equal(t, res.JobID, last.JobID)

	recs, err := runs.List(context.Background(), runlog.Query{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, []string{"queued", "in_progress", "completed"}, recs[0].Statuses)
	require.Equal(t, 2, recs[0].Polls)
	require.Equal(t, "ok", recs[0].Outcome)
}

func TestRespond_RecordsFailures(t *testing.T) {
	c := assistanttest.NewClient("queued", "failed")
	runs := runlog.NewInMemoryStore(10)
	o := newTestOrchestrator(newFakeClock(), WithRunLog(runs))

	_ = o.Respond(context.Background(), newTestSession(c, session.ScopePersistent), "hi")
	recs, err := runs.List(context.Background(), runlog.Query{Outcome: string(KindJobFailed)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "Run failed", recs[0].Message)
}

// stalledClient blocks the named operation until its context is done.
type stalledClient struct {
	*assistanttest.Client
	op string
}

func (s *stalledClient) wait(ctx context.Context, op string) error {
	if s.op != op {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stalledClient) PostMessage(ctx context.Context, conversationID string, role assistant.Role, text string) error {
	if err := s.wait(ctx, assistanttest.OpPostMessage); err != nil {
		return err
	}
	return s.Client.PostMessage(ctx, conversationID, role, text)
}

func (s *stalledClient) GetJobStatus(ctx context.Context, conversationID string, jobID string) (assistant.JobStatus, error) {
	if err := s.wait(ctx, assistanttest.OpGetJobStatus); err != nil {
		return assistant.JobStatus{}, err
	}
	return s.Client.GetJobStatus(ctx, conversationID, jobID)
}

func respondWithin(t *testing.T, ctx context.Context, o *Orchestrator, s *session.Session, limit time.Duration) Result {
	t.Helper()
	done := make(chan Result, 1)
	go func() { done <- o.Respond(ctx, s, "hi") }()
	select {
	case res := <-done:
		return res
	case <-time.After(limit):
		t.Fatalf("Respond still blocked after %s", limit)
		return Result{}
	}
}

func TestRespond_TimeoutBoundsStalledRemoteCalls(t *testing.T) {
	for _, op := range []string{assistanttest.OpGetJobStatus, assistanttest.OpPostMessage} {
		t.Run(op, func(t *testing.T) {
			c := &stalledClient{Client: assistanttest.NewClient("queued", "completed"), op: op}
			o := New(
				WithSleeper(SleeperFunc(func(ctx context.Context, d time.Duration) error { return ctx.Err() })),
				WithPollPolicy(PollPolicy{Interval: 10 * time.Millisecond, Timeout: 100 * time.Millisecond}),
			)
			s := &session.Session{ID: "sess-1", Client: c, AssistantID: "asst_test", Scope: session.ScopePersistent}

			res := respondWithin(t, context.Background(), o, s, 2*time.Second)
			require.Equal(t, KindTimeout, res.Kind)
			require.Equal(t, "Error: Run did not finish within 100ms", res.Display())
			require.Equal(t, 0, c.Count(assistanttest.OpListMessages))
		})
	}
}

func TestRespond_CallerContextEndsStalledCall(t *testing.T) {
	c := &stalledClient{Client: assistanttest.NewClient("queued", "completed"), op: assistanttest.OpGetJobStatus}
	o := New(
		WithSleeper(SleeperFunc(func(ctx context.Context, d time.Duration) error { return ctx.Err() })),
		WithPollPolicy(PollPolicy{Interval: 10 * time.Millisecond, Timeout: time.Minute}),
	)
	s := &session.Session{ID: "sess-1", Client: c, AssistantID: "asst_test", Scope: session.ScopePersistent}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := respondWithin(t, ctx, o, s, 2*time.Second)
	require.Equal(t, KindTimeout, res.Kind)
	require.NotContains(t, res.Message, "within 1m0s")

	ctx2, cancel2 := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel2)
	res = respondWithin(t, ctx2, o, s, 2*time.Second)
	require.Equal(t, KindCanceled, res.Kind)
}
