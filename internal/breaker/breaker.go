// Package breaker implements a circuit breaker for the inference backend.
// Consecutive failures open the circuit; after the reset window a single
// probe is allowed through, and its outcome closes or re-opens the circuit.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State identifies the breaker position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned by Allow when the circuit is rejecting calls.
var ErrOpen = errors.New("circuit open")

// Breaker tracks consecutive failures against a limit.
type Breaker struct {
	mu           sync.Mutex
	failureLimit int
	resetWindow  time.Duration

	state    State
	failures int
	openedAt time.Time
	probing  bool

	now     func() time.Time
	onState func(State)
}

// New creates a closed breaker. onState, when non-nil, is invoked outside
// call paths whenever the state changes.
func New(failureLimit int, resetWindow time.Duration, onState func(State)) *Breaker {
	if failureLimit <= 0 {
		failureLimit = 1
	}
	return &Breaker{
		failureLimit: failureLimit,
		resetWindow:  resetWindow,
		state:        StateClosed,
		now:          time.Now,
		onState:      onState,
	}
}

// Allow reports whether a call may proceed. While open, calls are rejected
// with ErrOpen until the reset window elapses; then exactly one probe is
// admitted in the half-open state.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetWindow {
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// Success records a successful call and closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		b.setState(StateClosed)
	}
}

// Failure records a failed call. In the closed state it counts toward the
// failure limit; in the half-open state it re-opens immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureLimit {
			b.open()
		}
	case StateHalfOpen:
		b.probing = false
		b.open()
	case StateOpen:
		// Late failure from a call admitted before opening; nothing to do.
	}
}

// State returns the current breaker position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.setState(StateOpen)
}

func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}
	b.state = state
	if b.onState != nil {
		callback := b.onState
		go callback(state)
	}
}
