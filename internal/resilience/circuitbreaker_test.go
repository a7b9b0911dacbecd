package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackendDown = errors.New("his unreachable")

func TestBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "his"})
	if cb.cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.cfg.MaxFailures)
	}
	if cb.cfg.ResetTimeout != time.Minute {
		t.Errorf("ResetTimeout = %v, want 1m", cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenMax != 1 {
		t.Errorf("HalfOpenMax = %d, want 1", cb.cfg.HalfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("fresh breaker state = %v, want closed", cb.State())
	}
}

func TestBreakerTripsOnConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "his", MaxFailures: 3, ResetTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errBackendDown })
	}
	if cb.State() != StateClosed {
		t.Fatal("two failures must not trip a three-failure breaker")
	}

	if err := cb.Execute(func() error { return errBackendDown }); !errors.Is(err, errBackendDown) {
		t.Fatalf("tripping call: err = %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	err := cb.Execute(func() error {
		t.Error("call must not reach the backend while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessClearsTheStreak(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "his", MaxFailures: 2, ResetTimeout: time.Hour})

	_ = cb.Execute(func() error { return errBackendDown })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBackendDown })

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, interleaved successes must keep the breaker closed", cb.State())
	}
}

func TestBreakerClosesOnFirstProbeSuccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "his", MaxFailures: 1, ResetTimeout: 5 * time.Millisecond})

	_ = cb.Execute(func() error { return errBackendDown })
	if cb.State() != StateOpen {
		t.Fatal("expected open after the single allowed failure")
	}

	time.Sleep(10 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open once the reset timeout passed", cb.State())
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after one successful probe", cb.State())
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "his", MaxFailures: 1, ResetTimeout: 5 * time.Millisecond})

	_ = cb.Execute(func() error { return errBackendDown })
	time.Sleep(10 * time.Millisecond)

	if err := cb.Execute(func() error { return errBackendDown }); !errors.Is(err, errBackendDown) {
		t.Fatalf("failing probe must surface its error, got %v", err)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen right after a failed probe", err)
	}
}

func TestBreakerNeedsEveryProbeWhenConfigured(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm", MaxFailures: 1, ResetTimeout: 5 * time.Millisecond, HalfOpenMax: 2})

	_ = cb.Execute(func() error { return errBackendDown })
	time.Sleep(10 * time.Millisecond)

	_ = cb.Execute(func() error { return nil })
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, one probe is not enough for HalfOpenMax 2", cb.State())
	}
	_ = cb.Execute(func() error { return nil })
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after both probes", cb.State())
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
