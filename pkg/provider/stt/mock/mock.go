// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/karunya-health/vaani/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider. Zero values cause
// Transcribe to return an empty Result and nil error.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call.
	Result stt.Result

	// Err, if non-nil, is returned instead of Result.
	Err error

	// Requests records every invocation in order.
	Requests []stt.Request
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(_ context.Context, req stt.Request) (stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return stt.Result{}, p.Err
	}
	return p.Result, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "mock" }
