package health

import (
	"context"
	"fmt"

	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/session"
)

// HIS probes the hospital backend. The check fails while the circuit
// breaker is open even if a probe request would get through, so readiness
// reflects what callers actually experience.
func HIS(client *his.Client) Checker {
	return Checker{
		Name: "his",
		Check: func(ctx context.Context) error {
			if state := client.BreakerState(); state == "open" {
				return fmt.Errorf("circuit breaker %s", state)
			}
			return client.Ping(ctx)
		},
	}
}

// Sessions reports the in-memory session store. It fails only when the
// store was never wired, which would mean every conversation endpoint 404s.
func Sessions(store *session.Store) Checker {
	return Checker{
		Name: "sessions",
		Check: func(context.Context) error {
			if store == nil {
				return fmt.Errorf("session store not configured")
			}
			return nil
		},
	}
}
