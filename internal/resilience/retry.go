package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy describes the retry behaviour for one dependency class.
// Delays grow exponentially from InitialDelay up to MaxDelay with jitter.
type RetryPolicy struct {
	// Name labels the policy in log messages (e.g. "llm", "his_api").
	Name string

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialDelay is the first backoff interval.
	InitialDelay time.Duration

	// MaxDelay caps the backoff interval.
	MaxDelay time.Duration
}

// Retry policies for the three dependency classes the receptionist talks to.
// The LLM is slow but worth waiting for; the HIS backend and the speech
// providers sit on the caller's critical path and get shorter budgets.
var (
	LLMRetry    = RetryPolicy{Name: "llm", MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second}
	HISRetry    = RetryPolicy{Name: "his_api", MaxRetries: 2, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
	SpeechRetry = RetryPolicy{Name: "speech", MaxRetries: 2, InitialDelay: 500 * time.Millisecond, MaxDelay: 3 * time.Second}
)

// Retry runs op under the policy, retrying transient failures with
// exponential backoff. Wrap an error with [Permanent] inside op to stop
// retrying immediately. Context cancellation aborts between attempts.
func Retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	if p.InitialDelay > 0 {
		eb.InitialInterval = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		eb.MaxInterval = p.MaxDelay
	}
	eb.Reset()

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(p.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("retrying after failure",
				"policy", p.Name,
				"wait", wait,
				"error", err)
		}),
	)
}

// Permanent marks err as non-retryable for [Retry].
func Permanent(err error) error {
	return backoff.Permanent(err)
}
