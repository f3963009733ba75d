// ABOUTME: This file implements a sliding-window circuit breaker for the delivery path
// ABOUTME: Opens after repeated recent failures and admits a single probe after cooldown
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the current admission mode of the breaker.
type State int

const (
	// StateClosed admits all calls.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits exactly one probe call.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected without being attempted.
var ErrOpen = errors.New("circuit breaker open")

type Config struct {
	// FailureThreshold is the number of failures inside FailureWindow that
	// opens the breaker.
	FailureThreshold int
	// FailureWindow is the sliding window over which failures are counted.
	FailureWindow time.Duration
	// Cooldown is how long the breaker stays open before admitting a probe.
	Cooldown time.Duration
}

// Breaker tracks recent failure timestamps and gates calls to a downstream.
// Failures outside the window are forgotten, so a slow trickle of errors
// never opens the circuit.
type Breaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	failures []time.Time
	openedAt time.Time
	probing  bool

	// now is swappable in tests.
	now func() time.Time

	// OnStateChange, if set, is invoked outside the lock after a transition.
	OnStateChange func(from, to State)
}

func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Allow reports whether a call may proceed right now. An open breaker whose
// cooldown has elapsed moves to half-open and admits exactly one caller; any
// concurrent callers are rejected until that probe reports its outcome.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(StateHalfOpen)
	}

	switch b.state {
	case StateOpen:
		b.mu.Unlock()
		return ErrOpen
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
	}

	b.mu.Unlock()
	return nil
}

// RecordSuccess reports a successful call. A half-open probe success closes
// the breaker and clears the failure window.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	if b.state == StateHalfOpen {
		b.failures = b.failures[:0]
		b.probing = false
		b.transition(StateClosed)
	}
	b.mu.Unlock()
}

// RecordFailure reports a failed call. A half-open probe failure reopens the
// breaker immediately; otherwise the failure joins the window and the breaker
// opens once the windowed count reaches the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	now := b.now()

	if b.state == StateHalfOpen {
		b.probing = false
		b.openedAt = now
		b.transition(StateOpen)
		b.mu.Unlock()
		return
	}

	b.failures = append(b.failures, now)
	b.prune(now)

	if b.state == StateClosed && len(b.failures) >= b.cfg.FailureThreshold {
		b.openedAt = now
		b.transition(StateOpen)
	}
	b.mu.Unlock()
}

// Do runs fn under breaker admission, recording the outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// State returns the current state, applying any due open-to-half-open move.
func (b *Breaker) State() State {
	b.mu.Lock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(StateHalfOpen)
	}
	state := b.state
	b.mu.Unlock()
	return state
}

// FailureCount returns the number of failures currently inside the window.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	b.prune(b.now())
	n := len(b.failures)
	b.mu.Unlock()
	return n
}

// prune drops failures older than the window. Caller holds the lock.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}

// transition sets the state and schedules the hook. Caller holds the lock.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.OnStateChange != nil {
		hook := b.OnStateChange
		go hook(from, to)
	}
}
