// Package stt defines the Provider interface for speech-to-text backends.
//
// Caller audio arrives as one complete utterance per turn, so the interface
// is a single batch transcription call over a finished recording rather than
// a streaming session.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Request carries one utterance recording to the provider.
type Request struct {
	// Audio is the encoded or raw audio payload. WAV containers are
	// self-describing; raw PCM needs SampleRate set.
	Audio []byte

	// MIMEType describes the payload ("audio/wav", "audio/webm"). Empty
	// means the provider's default container.
	MIMEType string

	// SampleRate is the sample rate in Hz for raw PCM payloads. Ignored
	// for self-describing containers.
	SampleRate int

	// Language is the BCP-47 language tag for recognition. Empty lets the
	// provider use its configured default.
	Language string
}

// Result is the transcription of one utterance.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0-1.0). Zero when the
	// provider does not report confidence.
	Confidence float64

	// Duration is the length of the recognised speech, when reported.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one utterance recording into text. It returns an
	// error when the provider cannot be reached or rejects the audio; an
	// empty transcript with no error means silence.
	Transcribe(ctx context.Context, req Request) (Result, error)

	// Name identifies the backend ("deepgram", "mock") for logging and
	// metrics.
	Name() string
}
