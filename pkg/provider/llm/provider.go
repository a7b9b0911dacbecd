// Package llm defines the Provider interface for language model backends.
//
// The receptionist uses a language model for exactly one thing: turning a
// caller utterance plus conversation context into a structured intent
// classification. The interface is therefore a single synchronous completion
// call; streaming, tool calling and token accounting are deliberately out of
// the contract.
//
// Implementations must be safe for concurrent use and must return promptly
// when ctx is cancelled.
package llm

import "context"

// Provider is the abstraction over any language model backend.
type Provider interface {
	// Complete sends the system prompt and one user message to the model
	// and returns the full text of the reply.
	Complete(ctx context.Context, system, user string) (string, error)

	// Name identifies the backend ("openai", "anthropic", "mock") for
	// logging and metrics.
	Name() string
}
