// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/karunya-health/vaani/pkg/provider/tts"
)

// Call records a single invocation of Synthesize.
type Call struct {
	Text string
	Opts tts.Options
}

// Provider is a mock implementation of tts.Provider. With no fields set,
// Synthesize returns a small deterministic PCM buffer derived from the text
// so callers can assert non-empty audio.
type Provider struct {
	mu sync.Mutex

	// Audio, when non-nil, is returned by every Synthesize call.
	Audio []byte

	// Err, if non-nil, is returned instead of audio.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, text string, opts tts.Options) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, Call{Text: text, Opts: opts})
	if p.Err != nil {
		return nil, p.Err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if p.Audio != nil {
		return p.Audio, nil
	}
	// Two bytes of silence per character stands in for real PCM.
	return make([]byte, 2*len(text)), nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "mock" }
