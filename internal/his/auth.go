package his

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// defaultTokenTTL is slightly under the backend's 24 hour token lifetime so
// a refresh happens before the old token goes stale mid-call.
const defaultTokenTTL = 23 * time.Hour

// tokenSource caches the service-account bearer token and makes sure that,
// no matter how many turns race on an expired token, exactly one login hits
// the backend.
type tokenSource struct {
	login func(ctx context.Context) (string, error)
	ttl   time.Duration

	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newTokenSource(ttl time.Duration, login func(ctx context.Context) (string, error)) *tokenSource {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &tokenSource{login: login, ttl: ttl}
}

// Token returns a valid bearer token, logging in if the cached one is
// missing or expired.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	if ts.token != "" && time.Now().Before(ts.expiry) {
		tok := ts.token
		ts.mu.Unlock()
		return tok, nil
	}
	ts.mu.Unlock()

	v, err, _ := ts.group.Do("login", func() (any, error) {
		tok, err := ts.login(ctx)
		if err != nil {
			return "", err
		}
		ts.mu.Lock()
		ts.token = tok
		ts.expiry = time.Now().Add(ts.ttl)
		ts.mu.Unlock()
		slog.Info("his login succeeded", "token_ttl", ts.ttl)
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token if it is still the one the failed
// request used. A token refreshed by another goroutine in the meantime is
// left alone.
func (ts *tokenSource) Invalidate(stale string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token == stale {
		ts.token = ""
		ts.expiry = time.Time{}
	}
}
