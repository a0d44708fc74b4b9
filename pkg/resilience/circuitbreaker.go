// Package resilience guards calls to the optional backing services: a
// circuit breaker for the search cache, backoff retry for event publishing
// and a deadline wrapper for per-term searches.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// circuit is open or its half-open probes are used up.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the phase of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls when a circuit trips and how it recovers.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenProbes   int

	// IsFailure decides whether an error counts against the circuit. Errors
	// it rejects are returned to the caller but treated as healthy
	// responses. Nil counts every error.
	IsFailure func(error) bool

	// OnStateChange is called with the breaker lock held; it must not call
	// back into the breaker.
	OnStateChange func(name string, from, to State)
}

func (c *BreakerConfig) fill() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 1
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return err != nil }
	}
}

// BreakerSnapshot is a point-in-time view of a breaker.
type BreakerSnapshot struct {
	Name     string    `json:"name"`
	State    string    `json:"state"`
	Failures int       `json:"consecutive_failures"`
	OpenedAt time.Time `json:"opened_at,omitzero"`
}

// Breaker counts consecutive failures of a dependency and, past the
// threshold, fails calls fast until ResetTimeout has elapsed. It then lets
// HalfOpenProbes calls through; one success closes it, one failure reopens
// it.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

// NewBreaker creates a closed breaker. Zero config fields take defaults.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	cfg.fill()
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Do calls fn unless the circuit is open and records the outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(b.cfg.IsFailure(err))
	return err
}

// State returns the current phase.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := BreakerSnapshot{
		Name:     b.name,
		State:    b.state.String(),
		Failures: b.failures,
	}
	if b.state != StateClosed {
		s.OpenedAt = b.openedAt
	}
	return s
}

// Reset closes the circuit and clears its failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.transition(StateClosed)
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		wait := b.cfg.ResetTimeout - time.Since(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, b.name, wait.Round(time.Millisecond))
		}
		b.transition(StateHalfOpen)
		b.probes = 1
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, b.name)
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !failed {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		return
	}
	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.openedAt = time.Now()
		b.transition(StateOpen)
	case b.state == StateClosed && b.failures >= b.cfg.FailureThreshold:
		b.openedAt = time.Now()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.probes = 0
	b.logger.Info("circuit state changed", "from", from.String(), "to", to.String(), "failures", b.failures)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}
