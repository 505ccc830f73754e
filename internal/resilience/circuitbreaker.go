// Package resilience keeps a failing speech or language backend from taking
// the whole assistant down with it.
//
// A [CircuitBreaker] stops calling a backend after repeated failures and
// probes it again once a cool-down has passed. A [FallbackGroup] puts one
// breaker in front of every configured backend and walks them in order. The
// typed wrappers ([LLMFallback], [STTFallback], [TTSFallback]) satisfy the
// provider interfaces so callers never see the group.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling a backend whose breaker is
// open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout has passed.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
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
	}
	return "unknown"
}

// Breaker defaults.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take the
// package defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines, usually the provider name.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// It also caps concurrent probes.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the backend. By
	// default everything except caller cancellation and deadline expiry
	// counts.
	IsFailure func(error) bool

	// Now replaces time.Now.
	Now func() time.Time
}

// callerError reports whether err came from the caller's own context.
func callerError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// CircuitBreaker is a three-state breaker. It is safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive, while closed
	openedAt time.Time // last transition to open
	probes   int       // in flight, while half-open
	passed   int       // successful probes, while half-open
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !callerError(err) }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute calls fn unless the breaker is open or out of probe slots, in which
// case it returns [ErrCircuitOpen]. Errors from fn are returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// State returns the current state. An open breaker whose timeout has passed
// reports half-open; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if !cb.cooledDown() {
			return false, ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen, "reset timeout elapsed")
	}
	if cb.state == StateClosed {
		return false, nil
	}
	if cb.probes+cb.passed >= cb.cfg.HalfOpenMax {
		return false, ErrCircuitOpen
	}
	cb.probes++
	return true, nil
}

// settle books the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	counts := err != nil && cb.cfg.IsFailure(err)
	if !probe {
		// A probe from an earlier half-open phase may finish after the state
		// moved on; closed-state bookkeeping only applies while closed.
		if cb.state != StateClosed {
			return
		}
		switch {
		case err == nil:
			cb.failures = 0
		case counts:
			cb.failures++
			if cb.failures >= cb.cfg.MaxFailures {
				cb.moveTo(StateOpen, "consecutive failures")
			}
		}
		return
	}

	if cb.state != StateHalfOpen {
		return
	}
	cb.probes--
	switch {
	case err == nil:
		cb.passed++
		if cb.passed >= cb.cfg.HalfOpenMax {
			cb.moveTo(StateClosed, "probes succeeded")
		}
	case counts:
		cb.moveTo(StateOpen, "probe failed")
	}
}

// moveTo switches state and resets the per-state counters. cb.mu must be held.
func (cb *CircuitBreaker) moveTo(to State, reason string) {
	from := cb.state
	cb.state = to
	cb.failures, cb.probes, cb.passed = 0, 0, 0
	if to == StateOpen {
		cb.openedAt = cb.cfg.Now()
	}

	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"name", cb.cfg.Name, "from", from.String(), "to", to.String(), "reason", reason)
}
