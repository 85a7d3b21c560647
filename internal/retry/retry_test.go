package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	cause := errors.New("still broken")

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", exhausted.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected error to wrap the last cause")
	}
}

func TestDoIfStopsOnNonRetryableError(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	permanent := errors.New("already published")

	calls := 0
	err := p.DoIf(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	}, func(err error) bool {
		return !errors.Is(err, permanent)
	})

	if calls != 1 {
		t.Errorf("non-retryable error must not be retried, got %d calls", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("expected original error, got %v", err)
	}

	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Errorf("non-retryable failure must not be wrapped as exhausted")
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	attempted := make(chan struct{})
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(ctx context.Context) error {
			calls++
			if calls == 1 {
				close(attempted)
			}
			return errors.New("transient")
		})
	}()

	// Cancel only once the first attempt has run, so Do is parked in the
	// backoff sleep when the context ends.
	<-attempted
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected a single call before cancellation, got %d", calls)
	}
}

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, BackoffFactor: 2}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}
