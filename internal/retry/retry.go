// Package retry provides the exponential-backoff wrapper used by pipeline
// steps that call external network services.
//
// The schedule matches the analysis handoff contract: the first retry fires
// immediately, subsequent retries back off exponentially from the base delay
// (0s, base, 2*base, ...). Sleeps are context-aware and never block unrelated
// goroutines.
package retry

import (
	"context"
	"fmt"
	"time"
)

// DefaultMaxDelay caps the backoff between attempts.
const DefaultMaxDelay = 30 * time.Second

// ExhaustedError reports that every attempt failed. It wraps the last error
// so callers can classify the underlying failure with errors.Is/As.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Options tunes the retry schedule.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// sleep is overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Do invokes op up to maxAttempts times, sleeping between attempts per the
// backoff schedule. It returns nil on the first success; on exhaustion it
// returns an *ExhaustedError wrapping the last failure. A context error ends
// the loop immediately.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func(ctx context.Context) error) error {
	return DoWithOptions(ctx, Options{MaxAttempts: maxAttempts, BaseDelay: baseDelay}, op)
}

// DoWithOptions is Do with an explicit Options value.
func DoWithOptions(ctx context.Context, opts Options, op func(ctx context.Context) error) error {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	sleep := opts.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := delayBeforeAttempt(attempt, opts.BaseDelay, maxDelay); delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: lastErr}
}

// delayBeforeAttempt returns 0 for the first attempt and the immediate first
// retry, then doubles from the base delay: attempt 3 waits base, attempt 4
// waits 2*base, and so on.
func delayBeforeAttempt(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt <= 2 || base <= 0 {
		return 0
	}
	delay := base
	for i := 3; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
