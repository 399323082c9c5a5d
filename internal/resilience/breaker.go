// Package resilience guards calls to dependencies that may be down.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open, or while a half-open probe is already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the position of a breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Breaker stops calling a dependency after maxFailures consecutive failures.
// After cooldown one probe call is let through; its outcome closes or reopens
// the circuit. Caller cancellation is not counted against the dependency.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed breaker. name labels it in logs and metrics.
func NewBreaker(name string, maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		name:        name,
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		now:         time.Now,
		state:       StateClosed,
	}
}

// Name returns the label given to NewBreaker.
func (b *Breaker) Name() string { return b.name }

// Execute calls fn unless the circuit is open and records its outcome.
func (b *Breaker) Execute(fn func() error) error {
	probe, ok := b.admit()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()
	b.record(probe, err)
	return err
}

// State returns the current position, reporting an open breaker whose cooldown
// has passed as half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cooledDown() {
		return StateHalfOpen
	}
	return b.state
}

// IsOpen reports 1 while calls are being rejected and 0 otherwise, for gauges.
func (b *Breaker) IsOpen() float64 {
	if b.State() == StateOpen {
		return 1
	}
	return 0
}

func (b *Breaker) cooledDown() bool {
	return b.now().Sub(b.openedAt) >= b.cooldown
}

// admit decides whether a call may proceed and whether it is the probe.
func (b *Breaker) admit() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if !b.cooledDown() {
			return false, false
		}
		b.state = StateHalfOpen
	}
	if b.probing {
		return false, false
	}
	b.probing = true
	return true, true
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}

	switch {
	case err == nil:
		if b.state != StateClosed {
			slog.Info("circuit breaker closed", "breaker", b.name)
		}
		b.state = StateClosed
		b.failures = 0
	case errors.Is(err, context.Canceled):
		if probe {
			// Nothing was learned; let the next caller probe.
			return
		}
	default:
		b.failures++
		if probe || (b.state == StateClosed && b.failures >= b.maxFailures) {
			if b.state != StateOpen {
				slog.Warn("circuit breaker opened", "breaker", b.name, "failures", b.failures)
			}
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
}
