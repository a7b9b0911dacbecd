// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify prompts and feed controlled
// classification replies without a live model backend.
//
// Example:
//
//	p := &mock.Provider{Response: `{"intent":"GREETING","confidence":0.99}`}
//	out, err := p.Complete(ctx, system, user)
package mock

import (
	"context"
	"sync"
)

// Call records a single invocation of Complete.
type Call struct {
	System string
	User   string
}

// Provider is a mock implementation of llm.Provider. Zero values cause
// Complete to return ("", nil). Set Err to inject a failure; set Responses
// to script a sequence of replies (consumed in order, the last one repeats).
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when Responses is empty.
	Response string

	// Responses, when non-empty, is consumed one reply per call; the last
	// element repeats once the script is exhausted.
	Responses []string

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Calls records every invocation in order.
	Calls []Call

	next int
}

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, system, user string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, Call{System: system, User: user})
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Responses) > 0 {
		i := p.next
		if i >= len(p.Responses) {
			i = len(p.Responses) - 1
		}
		p.next++
		return p.Responses[i], nil
	}
	return p.Response, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "mock" }

// CallCount returns how many times Complete ran.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
