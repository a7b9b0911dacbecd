package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed reports that every provider in a [FallbackGroup] either
// failed or was skipped because its breaker is open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is applied to the circuit breaker created for each
// provider added to a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// FallbackGroup chains instances of one provider type in priority order,
// the primary first. Every link carries its own circuit breaker, so a
// flapping primary stops being consulted and traffic flows to the next
// healthy provider; the classifier uses this to keep the rule fallback
// behind the LLM. Safe for concurrent use once assembled.
type FallbackGroup[T any] struct {
	chain []link[T]
	cfg   FallbackConfig
}

// link is one provider in the chain.
type link[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// NewFallbackGroup starts a chain with its primary provider.
func NewFallbackGroup[T any](primary T, name string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(name, primary)
	return fg
}

// AddFallback appends a provider consulted after everything added before
// it.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.chain = append(fg.chain, link[T]{name: name, value: value, breaker: NewCircuitBreaker(cbCfg)})
}

// Execute runs fn down the chain until a provider succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn down the chain until a provider returns a
// value, wrapping the last error in [ErrAllFailed] when none does. A
// package-level function because methods cannot add type parameters.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.chain {
		l := &fg.chain[i]
		var out R
		err := l.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(l.value)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider skipped, breaker open", "provider", l.name)
			continue
		}
		slog.Warn("provider failed, trying next in chain", "provider", l.name, "error", err)
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
