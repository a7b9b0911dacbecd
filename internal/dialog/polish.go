package dialog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/karunya-health/vaani/internal/resilience"
)

const polishTimeout = 5 * time.Second

// polishPrompt keeps the model on a short leash: tone only, never facts.
// Appointment numbers, tokens, dates and names must survive verbatim.
const polishPrompt = `You are the voice of a hospital receptionist. Rewrite the
given reply in a warm, natural spoken tone suitable for a phone call.

Rules:
- Keep EVERY number, date, time, name, department and identifier exactly as
  written. Do not add, drop or reformat any of them.
- Do not add information that is not in the reply.
- Keep it short; one or two sentences more than the input is too long.
- Respond with ONLY the rewritten reply, no quotes, no prose around it.`

// Polisher rewrites workflow replies in a warmer register before they are
// spoken. It is strictly best-effort: any failure, timeout or suspicious
// rewrite returns the original reply unchanged. A nil *Polisher is a valid
// no-op so call sites never need nil checks.
type Polisher struct {
	llm   LLM
	retry resilience.RetryPolicy
}

// NewPolisher returns a Polisher backed by llm.
func NewPolisher(llm LLM) *Polisher {
	return &Polisher{llm: llm, retry: resilience.LLMRetry}
}

// Polish rewrites reply for tone. The rewrite is discarded when it is empty,
// wildly longer than the input, or drops a digit sequence the original
// carried — those are the fields callers write down.
func (p *Polisher) Polish(ctx context.Context, reply string) string {
	if p == nil || p.llm == nil || strings.TrimSpace(reply) == "" {
		return reply
	}
	ctx, cancel := context.WithTimeout(ctx, polishTimeout)
	defer cancel()

	out, err := resilience.Retry(ctx, p.retry, func() (string, error) {
		return p.llm.Complete(ctx, polishPrompt, reply)
	})
	if err != nil {
		slog.Warn("reply polish failed, using original", "error", err)
		return reply
	}
	polished := strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `"`))
	if polished == "" || len(polished) > 2*len(reply)+160 {
		return reply
	}
	if !keepsDigitRuns(reply, polished) {
		slog.Warn("reply polish dropped a number, using original")
		return reply
	}
	return polished
}

// keepsDigitRuns reports whether every run of 2+ digits in original also
// appears in polished.
func keepsDigitRuns(original, polished string) bool {
	var run strings.Builder
	flush := func() bool {
		defer run.Reset()
		if run.Len() < 2 {
			return true
		}
		return strings.Contains(polished, run.String())
	}
	for _, r := range original {
		if r >= '0' && r <= '9' {
			run.WriteRune(r)
			continue
		}
		if !flush() {
			return false
		}
	}
	return flush()
}
