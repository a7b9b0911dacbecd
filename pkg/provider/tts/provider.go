// Package tts defines the Provider interface for text-to-speech backends.
//
// Replies are short receptionist sentences, so the interface synthesises one
// complete reply per call and returns the full audio buffer. Providers that
// stream internally assemble the chunks before returning.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"fmt"
)

// Options tunes one synthesis call. The zero value means provider defaults.
type Options struct {
	// Voice overrides the provider's configured voice ID.
	Voice string

	// Speed adjusts speaking rate (0.5-2.0, 0 = provider default).
	Speed float64

	// Pitch adjusts pitch (-10 to +10, 0 = default). Providers without
	// pitch control ignore it.
	Pitch float64
}

// Validate rejects out-of-range values before they reach a provider.
func (o Options) Validate() error {
	if o.Speed != 0 && (o.Speed < 0.5 || o.Speed > 2.0) {
		return fmt.Errorf("tts: speed %.2f out of range [0.5, 2.0]", o.Speed)
	}
	if o.Pitch < -10 || o.Pitch > 10 {
		return fmt.Errorf("tts: pitch %.1f out of range [-10, 10]", o.Pitch)
	}
	return nil
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into audio and returns the complete buffer,
	// 16 kHz mono PCM unless the provider documents otherwise.
	Synthesize(ctx context.Context, text string, opts Options) ([]byte, error)

	// Name identifies the backend ("elevenlabs", "mock") for logging and
	// metrics.
	Name() string
}
