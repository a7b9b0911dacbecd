// Package resilience carries the failure handling shared by Vaani's
// outbound dependencies: circuit breakers around the hospital backend,
// retry policies with exponential backoff for each dependency class, and
// ordered failover across speech and language-model providers.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is the fail-fast error for a tripped breaker: the guarded
// dependency is presumed down and the call is rejected without being tried.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a circuit breaker's operating mode.
type State int

const (
	// StateClosed forwards every call and counts consecutive failures.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// timeout has passed since the last failure.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls to find out
	// whether the dependency has recovered.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take the
// defaults noted per field.
type CircuitBreakerConfig struct {
	// Name labels the guarded dependency in log lines ("his", "llm").
	Name string

	// MaxFailures is the consecutive-failure count that trips the
	// breaker. Default 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before
	// probing again. Default one minute.
	ResetTimeout time.Duration

	// HalfOpenMax bounds the probes per half-open round; that many
	// successes close the breaker. Default 1: the first success closes.
	HalfOpenMax int
}

// CircuitBreaker fails fast when a dependency keeps failing, giving the
// hospital backend or a speech provider room to recover instead of being
// hammered mid-call. Safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int // consecutive failures while closed
	lastFailure time.Time
	probes      int // calls admitted this half-open round
	probeFails  int
}

// NewCircuitBreaker builds a breaker from cfg, filling zero fields with
// the defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn unless the breaker is rejecting calls, and feeds the
// outcome back into the breaker state.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.observe(err, probing)
	return err
}

// admit decides whether a call may go out, moving an open breaker to
// half-open once the reset timeout has passed. It reports whether the
// admitted call counts as a half-open probe.
func (cb *CircuitBreaker) admit() (probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.probeFails = 0, 0
		slog.Info("circuit breaker probing", "dependency", cb.cfg.Name)
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

// observe records one call outcome.
func (cb *CircuitBreaker) observe(err error, probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil && probing:
		if cb.probes-cb.probeFails >= cb.cfg.HalfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			slog.Info("circuit breaker closed", "dependency", cb.cfg.Name)
		}
	case err == nil:
		cb.failures = 0
	case probing:
		// One failed probe re-opens for another full timeout.
		cb.probeFails++
		cb.state = StateOpen
		cb.lastFailure = time.Now()
		cb.failures = cb.cfg.MaxFailures
		slog.Warn("circuit breaker re-opened", "dependency", cb.cfg.Name)
	default:
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.state = StateOpen
			slog.Warn("circuit breaker opened",
				"dependency", cb.cfg.Name, "consecutive_failures", cb.failures)
		}
	}
}

// State reports the breaker's mode. An open breaker whose reset timeout
// has passed reports half-open; the real transition happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}
