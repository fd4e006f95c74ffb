package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, time.Second, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoFirstRetryFiresImmediately(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := DoWithOptions(context.Background(), Options{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		sleep:       recordingSleep(&delays),
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("DoWithOptions returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	// No sleep before the second attempt, one base-delay sleep before the
	// third. Total wait stays under 3s for a 2s base.
	if len(delays) != 1 || delays[0] != 2*time.Second {
		t.Fatalf("expected a single 2s sleep, got %v", delays)
	}
}

func TestDoBackoffDoubles(t *testing.T) {
	var delays []time.Duration
	failing := errors.New("still failing")
	err := DoWithOptions(context.Background(), Options{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		sleep:       recordingSleep(&delays),
	}, func(context.Context) error {
		return failing
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", exhausted.Attempts)
	}
	if !errors.Is(err, failing) {
		t.Fatal("exhausted error should wrap the last failure")
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), delays)
	}
	for i, d := range want {
		if delays[i] != d {
			t.Fatalf("sleep %d: expected %s, got %s", i, d, delays[i])
		}
	}
}

func TestDoCapsDelay(t *testing.T) {
	var delays []time.Duration
	err := DoWithOptions(context.Background(), Options{
		MaxAttempts: 6,
		BaseDelay:   10 * time.Second,
		MaxDelay:    15 * time.Second,
		sleep:       recordingSleep(&delays),
	}, func(context.Context) error {
		return errors.New("no")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	for i, d := range delays {
		if d > 15*time.Second {
			t.Fatalf("sleep %d exceeded cap: %s", i, d)
		}
	}
	if last := delays[len(delays)-1]; last != 15*time.Second {
		t.Fatalf("expected final sleep at cap, got %s", last)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := DoWithOptions(ctx, Options{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		sleep: func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		},
	}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail then cancel")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDoZeroAttemptsTreatedAsOne(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 0, 0, func(context.Context) error {
		calls++
		return errors.New("once")
	})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 1 {
		t.Fatalf("expected single-attempt exhaustion, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
