package orchestrator

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-go-golems/minerba/pkg/assistant"
	"github.com/go-go-golems/minerba/pkg/events"
	"github.com/go-go-golems/minerba/pkg/persistence/runlog"
	"github.com/go-go-golems/minerba/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errTurnDeadline = errors.New("turn deadline exceeded")

// Orchestrator runs one user turn against the remote assistant: it makes sure
// a conversation exists, posts the user message, starts a job, polls it until
// it is terminal and reads back the newest message.
//
// Respond never returns a Go error. Every failure ends up as a Result so the
// transcript always gets an entry.
type Orchestrator struct {
	policy    PollPolicy
	sleeper   Sleeper
	now       func() time.Time
	publisher events.Publisher
	runs      runlog.Store
}

type Option func(*Orchestrator)

func WithPollPolicy(p PollPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithClock replaces time.Now for the wall-clock poll deadline.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithRunLog(s runlog.Store) Option {
	return func(o *Orchestrator) { o.runs = s }
}

func New(options ...Option) *Orchestrator {
	o := &Orchestrator{
		policy:  DefaultPollPolicy(),
		sleeper: TimerSleeper,
		now:     time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	if o.policy.Interval <= 0 {
		o.policy.Interval = DefaultPollPolicy().Interval
	}
	return o
}

// turnTrace collects what the run log and the final event need.
type turnTrace struct {
	started  time.Time
	statuses []string
}

func (o *Orchestrator) Respond(ctx context.Context, s *session.Session, userText string) (res Result) {
	if !s.Initialized() {
		return Err(KindNotInitialized, "Please initialize the assistant first")
	}
	logger := log.With().
		Str("component", "orchestrator").
		Str("session_id", s.ID).
		Logger()

	if strings.TrimSpace(userText) == "" {
		return Err(KindSubmission, "empty message")
	}

	trace := &turnTrace{started: o.now()}
	defer func() {
		o.finish(ctx, logger, s, trace, res)
	}()

	// the deadline also bounds remote calls that never return
	if o.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, o.policy.Timeout, errTurnDeadline)
		defer cancel()
	}

	conversationID, err := s.EnsureConversation(ctx)
	if err != nil {
		return o.remoteErr(ctx, KindSubmission, err, "create conversation")
	}
	logger = logger.With().Str("conversation_id", conversationID).Logger()

	if err := s.Client.PostMessage(ctx, conversationID, assistant.RoleUser, userText); err != nil {
		return o.remoteErr(ctx, KindSubmission, err, "").in(conversationID, "")
	}
	o.publish(ctx, logger, events.TypeTurnSubmitted, s, conversationID, "", func(e *events.Event) {
		e.Message = userText
	})

	job, err := s.Client.StartJob(ctx, conversationID, s.AssistantID)
	if err != nil {
		return o.remoteErr(ctx, KindSubmission, err, "").in(conversationID, "")
	}
	logger = logger.With().Str("job_id", job.ID).Logger()
	logger.Debug().Str("status", job.Status.String()).Msg("job started")
	trace.statuses = append(trace.statuses, job.Status.String())
	o.publish(ctx, logger, events.TypeJobStarted, s, conversationID, job.ID, func(e *events.Event) {
		e.Status = job.Status.String()
	})

	status, polls, res, done := o.poll(ctx, logger, s, conversationID, job, trace)
	if done {
		res.Polls = polls
		return res.in(conversationID, job.ID)
	}

	if status.Kind == assistant.StatusFailed {
		msg := "Run " + status.String()
		if status.LastError != "" {
			msg += ": " + status.LastError
		}
		logger.Warn().Str("status", status.String()).Str("last_error", status.LastError).Msg("job failed")
		res = Err(KindJobFailed, msg).in(conversationID, job.ID)
		res.Polls = polls
		return res
	}

	res = o.extract(ctx, logger, s, conversationID).in(conversationID, job.ID)
	res.Polls = polls
	return res
}

// poll waits until the job is terminal. When done is true, res holds the
// failure that stopped polling.
func (o *Orchestrator) poll(
	ctx context.Context,
	logger zerolog.Logger,
	s *session.Session,
	conversationID string,
	job assistant.Job,
	trace *turnTrace,
) (status assistant.JobStatus, polls int, res Result, done bool) {
	status = job.Status
	for !status.Terminal() {
		if o.policy.MaxAttempts > 0 && polls >= o.policy.MaxAttempts {
			logger.Warn().Int("polls", polls).Msg("job did not finish within max attempts")
			return status, polls, Err(KindTimeout, "Run did not finish after "+strconv.Itoa(polls)+" status checks"), true
		}
		if o.policy.Timeout > 0 && o.now().Sub(trace.started) >= o.policy.Timeout {
			logger.Warn().Dur("timeout", o.policy.Timeout).Msg("job did not finish before deadline")
			return status, polls, o.deadlineErr(), true
		}

		if err := o.sleeper.Sleep(ctx, o.policy.Interval); err != nil {
			return status, polls, o.remoteErr(ctx, KindSubmission, err, "wait for run"), true
		}

		var err error
		status, err = s.Client.GetJobStatus(ctx, conversationID, job.ID)
		polls++
		if err != nil {
			return status, polls, o.remoteErr(ctx, KindSubmission, err, ""), true
		}
		trace.statuses = append(trace.statuses, status.String())
		logger.Debug().Str("status", status.String()).Int("attempt", polls).Msg("run status")
		o.publish(ctx, logger, events.TypeJobPolled, s, conversationID, job.ID, func(e *events.Event) {
			e.Status = status.String()
			e.Attempt = polls
		})
	}
	return status, polls, Result{}, false
}

func (o *Orchestrator) extract(ctx context.Context, logger zerolog.Logger, s *session.Session, conversationID string) Result {
	msgs, err := s.Client.ListMessages(ctx, conversationID)
	if err != nil {
		return o.remoteErr(ctx, KindSubmission, err, "")
	}
	logger.Debug().Int("count", len(msgs)).Msg("retrieved messages")
	if len(msgs) == 0 {
		return Err(KindExtraction, "conversation has no messages")
	}
	text, ok := msgs[0].FirstText()
	if !ok {
		return Err(KindExtraction, "latest message has no text content")
	}
	return Ok(text)
}

func (o *Orchestrator) deadlineErr() Result {
	return Err(KindTimeout, "Run did not finish within "+o.policy.Timeout.String())
}

// remoteErr classifies a client error, preferring the caller's context state.
func (o *Orchestrator) remoteErr(ctx context.Context, kind ErrorKind, err error, wrap string) Result {
	if ctx.Err() != nil {
		if errors.Is(context.Cause(ctx), errTurnDeadline) {
			log.Warn().Dur("timeout", o.policy.Timeout).Msg("remote call did not return before deadline")
			return o.deadlineErr()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Err(KindTimeout, ctx.Err().Error())
		}
		return Err(KindCanceled, "turn canceled")
	}
	if wrap != "" {
		err = errors.Wrap(err, wrap)
	}
	return Err(kind, err.Error())
}

func (o *Orchestrator) publish(
	ctx context.Context,
	logger zerolog.Logger,
	t events.Type,
	s *session.Session,
	conversationID string,
	jobID string,
	fill func(e *events.Event),
) {
	if o.publisher == nil {
		return
	}
	e := events.NewEvent(t)
	e.SessionID = s.ID
	e.ConversationID = conversationID
	e.JobID = jobID
	if fill != nil {
		fill(&e)
	}
	if err := o.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn().Err(err).Str("type", string(t)).Msg("failed to publish turn event")
	}
}

func (o *Orchestrator) finish(ctx context.Context, logger zerolog.Logger, s *session.Session, trace *turnTrace, res Result) {
	finished := o.now()
	ev := logger.Info()
	if !res.OK() {
		ev = logger.Warn().Str("kind", string(res.Kind)).Str("error", res.Message)
	}
	ev.Int("polls", res.Polls).Dur("elapsed", finished.Sub(trace.started)).Msg("turn finished")

	o.publish(ctx, logger, events.TypeJobFinished, s, res.ConversationID, res.JobID, func(e *events.Event) {
		e.Outcome = res.Outcome()
		e.Attempt = res.Polls
		if !res.OK() {
			e.Message = res.Message
		}
		if len(trace.statuses) > 0 {
			e.Status = trace.statuses[len(trace.statuses)-1]
		}
	})

	if o.runs == nil {
		return
	}
	err := o.runs.Save(context.WithoutCancel(ctx), runlog.JobRecord{
		SessionID:      s.ID,
		ConversationID: res.ConversationID,
		JobID:          res.JobID,
		Statuses:       trace.statuses,
		Polls:          res.Polls,
		Outcome:        res.Outcome(),
		Message:        res.Message,
		StartedAtMs:    trace.started.UnixMilli(),
		FinishedAtMs:   finished.UnixMilli(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to record job in run log")
	}
}

func (r Result) in(conversationID, jobID string) Result {
	r.ConversationID = conversationID
	r.JobID = jobID
	return r
}
