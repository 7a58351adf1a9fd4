// internal/wait/wait.go

// Package wait implements the polling synchronization primitive the rest of
// the harness is built on: evaluate a predicate against remote UI state at a
// fixed cadence until it holds or a budget runs out.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultInterval is the probe cadence used when the caller passes a
	// non-positive interval.
	DefaultInterval = 1 * time.Second
	// DefaultTimeout is the wait budget used when the caller passes a
	// non-positive timeout.
	DefaultTimeout = 10 * time.Second
)

// Predicate reports whether the awaited condition currently holds. It must be
// safe to call repeatedly and must only observe state, never mutate it. An
// error does not abort the wait; it is recorded and the condition is treated
// as not-yet-true, since predicates routinely probe elements that do not
// exist yet.
type Predicate func(ctx context.Context) (bool, error)

// TimeoutError is returned when a predicate never became true within the
// budget. It carries the elapsed wall time and, if the predicate ever failed,
// the last error it produced.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Elapsed time.Duration
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("wait for %s timed out after %v (budget %v)", e.Op, e.Elapsed.Round(time.Millisecond), e.Timeout)
	if e.LastErr != nil {
		msg += fmt.Sprintf("; last probe error: %v", e.LastErr)
	}
	return msg
}

// Unwrap lets callers detect the timeout with
// errors.Is(err, context.DeadlineExceeded).
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// IsTimeout reports whether err is a wait timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Until polls pred until it returns true, the budget elapses, or ctx is
// canceled. The first probe runs immediately; subsequent probes are spaced by
// interval using a cancellation-aware limiter, so a probe whose slot falls at
// or after the deadline never runs (a probe already in flight when the
// deadline passes may still decide the wait). On budget exhaustion the error
// is a *TimeoutError; caller cancellation surfaces as ctx.Err() unchanged.
func Until(ctx context.Context, op string, pred Predicate, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Burst of one: the first Wait returns immediately, later calls pace at
	// the interval. Wait fails as soon as the deadline precludes the next slot.
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	var lastErr error
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &TimeoutError{
				Op:      op,
				Timeout: timeout,
				Elapsed: time.Since(start),
				LastErr: lastErr,
			}
		}

		ok, err := pred(waitCtx)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return nil
		}
	}
}
