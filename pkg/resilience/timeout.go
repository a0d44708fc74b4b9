package resilience

import (
	"context"
	"fmt"
	"time"
)

// Call runs fn under a deadline of timeout derived from ctx and returns its
// outputs. When the deadline passes first the outputs are discarded and an
// error wrapping context.DeadlineExceeded is returned; fn keeps running
// until it observes its context. A non-positive timeout calls fn directly.
func Call[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := fn(ctx)
		done <- outcome{val, err}
	}()

	var zero T
	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != context.DeadlineExceeded {
			return zero, fmt.Errorf("%s: %w", name, cause)
		}
		return zero, fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	}
}
