package orchestrator

import (
	"context"
	"time"
)

// PollPolicy bounds the wait for a job. A zero MaxAttempts or Timeout
// disables that bound.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval: 500 * time.Millisecond,
		Timeout:  2 * time.Minute,
	}
}

// Sleeper waits between polls. It returns early with ctx.Err() when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer.
var TimerSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})
