package unit

import (
	"context"
	"errors"
	"time"
)

// DefaultRetryInterval is the wait between open attempts on a locked unit.
const DefaultRetryInterval = 100 * time.Millisecond

// ErrRetriesExhausted is returned once a RetryPolicy's attempt cap is reached.
var ErrRetriesExhausted = errors.New("unit: retries exhausted")

// RetryPolicy paces retries on lock contention. The zero value waits
// DefaultRetryInterval between attempts, forever; callers bound it with
// MaxAttempts or a context deadline.
type RetryPolicy struct {
	Interval    time.Duration // base wait, DefaultRetryInterval if zero
	MaxAttempts int           // 0 = unbounded
	// Backoff maps an attempt number (1-based) and the base interval to a wait.
	// Nil means a constant wait.
	Backoff func(attempt int, interval time.Duration) time.Duration
}

// Delay returns the wait before the given attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	if p.Backoff == nil {
		return interval
	}
	return p.Backoff(attempt, interval)
}

// Wait sleeps before the given attempt. It returns ErrRetriesExhausted past
// MaxAttempts and ctx.Err() if ctx ends first.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return ErrRetriesExhausted
	}
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExponentialBackoff doubles the wait on every attempt up to max.
func ExponentialBackoff(max time.Duration) func(int, time.Duration) time.Duration {
	return func(attempt int, interval time.Duration) time.Duration {
		d := interval
		for i := 1; i < attempt && d < max; i++ {
			d *= 2
		}
		if d > max {
			d = max
		}
		return d
	}
}
