package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func TestBreakerTripsAndRecovers(t *testing.T) {
	var changes []State
	b := NewBreaker("test", BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange: func(_ string, _, to State) {
			changes = append(changes, to)
		},
	})
	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open circuit let a call through: err=%v called=%v", err, called)
	}

	time.Sleep(30 * time.Millisecond)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %s, want %s", i, changes[i], want[i])
		}
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	b.Do(func() error { return errBackend })
	time.Sleep(15 * time.Millisecond)
	b.Do(func() error { return errBackend })
	if b.State() != StateOpen {
		t.Errorf("state = %s, want open", b.State())
	}
	if s := b.Snapshot(); s.OpenedAt.IsZero() || s.Failures != 2 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	errMiss := errors.New("miss")
	b := NewBreaker("test", BreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, errMiss) },
	})
	for i := 0; i < 5; i++ {
		if err := b.Do(func() error { return errMiss }); !errors.Is(err, errMiss) {
			t.Fatalf("err = %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		failUntil int
		retryable func(error) bool
		wantCalls int
		wantErr   bool
	}{
		{"first try", 0, nil, 1, false},
		{"succeeds on third", 2, nil, 3, false},
		{"exhausted", 10, nil, 3, true},
		{"permanent", 10, func(error) bool { return false }, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), "op", Backoff{
				Attempts:  3,
				Initial:   time.Millisecond,
				Retryable: tt.retryable,
			}, func(attempt int) error {
				calls++
				if attempt != calls {
					t.Errorf("attempt = %d, want %d", attempt, calls)
				}
				if calls <= tt.failUntil {
					return errBackend
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v", err)
			}
			if err != nil && !errors.Is(err, errBackend) {
				t.Errorf("err %v does not wrap the last failure", err)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, "op", Backoff{Attempts: 5, Initial: time.Second}, func(int) error {
		calls++
		cancel()
		return errBackend
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	b := Backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond}
	b.fill()
	for n := 1; n < 20; n++ {
		if d := b.Delay(n); d <= 0 || d > b.Max {
			t.Errorf("Delay(%d) = %v", n, d)
		}
	}
}

func TestCall(t *testing.T) {
	got, err := Call(context.Background(), time.Second, "fast", func(context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("got %d, %v", got, err)
	}

	got, err = Call(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) (int, error) {
		time.Sleep(100 * time.Millisecond)
		return 9, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) || got != 0 {
		t.Errorf("got %d, %v; want zero value and deadline exceeded", got, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Call(ctx, time.Second, "cancelled", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want canceled", err)
	}
}
