package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Backoff is an exponential retry schedule with symmetric jitter.
type Backoff struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	// Retryable reports whether a failed attempt is worth repeating. Nil
	// retries everything except context cancellation.
	Retryable func(error) bool
}

func (b *Backoff) fill() {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 10 * time.Second
	}
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	if b.Jitter < 0 || b.Jitter >= 1 {
		b.Jitter = 0.1
	}
	if b.Retryable == nil {
		b.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}
	}
}

// Delay returns the pause before attempt n+1, for n >= 1.
func (b Backoff) Delay(n int) time.Duration {
	d := float64(b.Initial)
	for i := 1; i < n; i++ {
		d *= b.Multiplier
		if d >= float64(b.Max) {
			break
		}
	}
	d += d * b.Jitter * (2*rand.Float64() - 1)
	return min(time.Duration(d), b.Max)
}

// Retry calls fn until it succeeds, the schedule is exhausted, the error is
// not retryable or ctx ends. fn receives the 1-based attempt number.
func Retry(ctx context.Context, name string, b Backoff, fn func(attempt int) error) error {
	b.fill()
	logger := slog.Default().With("component", "retry", "operation", name)
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !b.Retryable(err) {
			return fmt.Errorf("%s: %w", name, err)
		}
		if attempt == b.Attempts {
			return fmt.Errorf("%s: all %d attempts failed: %w", name, b.Attempts, err)
		}

		delay := b.Delay(attempt)
		logger.Warn("attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", b.Attempts,
			"next_delay", delay,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: aborted after %d attempts: %w", name, attempt, ctx.Err())
		}
	}
}
