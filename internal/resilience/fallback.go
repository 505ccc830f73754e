package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed wraps the last backend error when no entry of a
// [FallbackGroup] could serve a call.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is applied to every entry of a group.
type FallbackConfig struct {
	// CircuitBreaker is copied per entry with Name set to the entry's name.
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds interchangeable backends in preference order. Each
// has its own [CircuitBreaker]; a call goes to the first entry whose breaker
// admits it and whose call succeeds.
//
// Cancellation or deadline expiry of the caller's context ends the walk
// immediately, since the next backend would fail the same way.
//
// Register all entries before sharing the group; calls are then safe for
// concurrent use.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup creates a group whose first and preferred entry is
// primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends a backend after those already registered.
func (g *FallbackGroup[T]) AddFallback(name string, v T) {
	cb := g.cfg.CircuitBreaker
	cb.Name = name
	g.members = append(g.members, member[T]{name: name, value: v, breaker: NewCircuitBreaker(cb)})
}

// Names lists the entries in the order they are tried.
func (g *FallbackGroup[T]) Names() []string {
	out := make([]string, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m.name)
	}
	return out
}

// Primary returns the preferred backend.
func (g *FallbackGroup[T]) Primary() T { return g.members[0].value }

// Execute runs fn against the entries in order until one succeeds.
func (g *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := Call(g, func(v T) (struct{}, error) { return struct{}{}, fn(v) })
	return err
}

// Call is Execute for functions that return a value. It is a function rather
// than a method because methods cannot declare type parameters.
func Call[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i, m := range g.members {
		var res R
		err := m.breaker.Execute(func() (err error) {
			res, err = fn(m.value)
			return err
		})
		switch {
		case err == nil:
			if i > 0 {
				slog.Info("served by fallback provider", "provider", m.name, "position", i)
			}
			return res, nil
		case callerError(err):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", m.name)
		default:
			slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
