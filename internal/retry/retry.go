package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes a bounded retry with exponential backoff.
// A zero BackoffFactor means no growth between attempts.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
}

// ExhaustedError is returned when every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs op, retrying transient failures up to MaxAttempts.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	return p.DoIf(ctx, op, nil)
}

// DoIf runs op, retrying only while shouldRetry returns true for the error.
// A nil shouldRetry retries every failure. The delay before attempt n+1 is
// BaseDelay * BackoffFactor^(n-1), and the sleep is abandoned if ctx ends.
func (p Policy) DoIf(ctx context.Context, op func(ctx context.Context) error, shouldRetry func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(p.delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// delay returns the backoff before the attempt following attempt n.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	for i := 1; i < attempt; i++ {
		d *= factor
	}
	return time.Duration(d)
}
