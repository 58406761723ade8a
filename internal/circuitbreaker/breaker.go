package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls to the provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// Config configures a Breaker. Zero values take the defaults noted per field.
type Config struct {
	FailureThreshold int           // consecutive provider failures before opening (5)
	SuccessThreshold int           // half-open successes before closing (2)
	OpenTimeout      time.Duration // time spent open before half-open (30s)
	OnStateChange    func(from, to State)
	// IsFailure reports whether an error counts against the provider.
	// The default counts everything except caller cancellation.
	IsFailure func(error) bool
}

// Breaker guards a remote provider. It opens after FailureThreshold
// consecutive failures, rejects calls for OpenTimeout, then admits trial calls
// until SuccessThreshold of them succeed or one fails.
type Breaker struct {
	cfg   Config
	nowFn func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	trials   int
	openedAt time.Time
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return &Breaker{cfg: cfg, nowFn: time.Now}
}

// Execute runs fn when the breaker admits the call and records its outcome.
// Errors that IsFailure rejects are returned without touching the counters.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	if err == nil {
		b.RecordSuccess()
	} else if b.cfg.IsFailure(err) {
		b.RecordFailure()
	}
	return err
}

// Allow returns nil when a call may proceed. The returned error wraps
// ErrCircuitOpen and names the remaining cool-down.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFn()
	b.maybeHalfOpenLocked(now)
	if b.state != StateOpen {
		return nil
	}
	remaining := b.cfg.OpenTimeout - now.Sub(b.openedAt)
	return fmt.Errorf("%w: retry in %s", ErrCircuitOpen, remaining.Round(time.Millisecond))
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != StateHalfOpen {
		return
	}
	b.trials++
	if b.trials >= b.cfg.SuccessThreshold {
		b.transitionLocked(StateClosed)
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.trials = 0
	switch b.state {
	case StateHalfOpen:
		b.openLocked()
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.openLocked()
		}
	case StateOpen:
		b.openedAt = b.nowFn()
	}
}

// GetState returns the current state. An open breaker whose timeout has
// elapsed reports half-open.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked(b.nowFn())
	return b.state
}

func (b *Breaker) maybeHalfOpenLocked(now time.Time) {
	if b.state == StateOpen && now.Sub(b.openedAt) > b.cfg.OpenTimeout {
		b.transitionLocked(StateHalfOpen)
	}
}

func (b *Breaker) openLocked() {
	b.openedAt = b.nowFn()
	b.transitionLocked(StateOpen)
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.trials = 0
	if to == StateClosed {
		b.failures = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}
