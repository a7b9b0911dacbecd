package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned when a session's idle timeout has passed.
	// The session is marked inactive and will be swept.
	ErrExpired = errors.New("session expired")

	// ErrSessionFull is returned when the turn cap has been reached.
	ErrSessionFull = errors.New("session reached max turns")

	// ErrInactive is returned when a turn arrives for an ended session.
	ErrInactive = errors.New("session is no longer active")
)

const (
	defaultIdleTimeout   = 5 * time.Minute
	defaultMaxTurns      = 20
	defaultSweepInterval = 30 * time.Second
)

// StoreConfig tunes a [Store]. Zero values use the defaults above.
type StoreConfig struct {
	IdleTimeout   time.Duration
	MaxTurns      int
	SweepInterval time.Duration
}

// entry pairs a session with its own lock so turns on the same session
// serialise without blocking other sessions.
type entry struct {
	mu   sync.Mutex
	sess *Session
}

// Store is the in-memory session registry. A coarse lock guards the map;
// each session carries its own lock held for the duration of a turn.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	idleTimeout   time.Duration
	maxTurns      int
	sweepInterval time.Duration
}

// NewStore creates an empty session store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return &Store{
		entries:       make(map[string]*entry),
		idleTimeout:   cfg.IdleTimeout,
		maxTurns:      cfg.MaxTurns,
		sweepInterval: cfg.SweepInterval,
	}
}

// MaxTurns returns the configured per-session turn cap.
func (st *Store) MaxTurns() int { return st.maxTurns }

// Create registers a new session and returns its id.
func (st *Store) Create(callerID string, channel Channel) string {
	id := uuid.NewString()
	now := time.Now()
	sess := &Session{
		ID:           id,
		CallerID:     callerID,
		Channel:      channel,
		StartedAt:    now,
		LastActivity: now,
		Active:       true,
		Entities:     map[string]string{},
	}

	st.mu.Lock()
	st.entries[id] = &entry{sess: sess}
	st.mu.Unlock()

	slog.Info("session created", "session_id", id, "caller_id", callerID, "channel", channel)
	return id
}

// lookup finds the entry for id without touching the per-session lock.
func (st *Store) lookup(id string) (*entry, error) {
	st.mu.Lock()
	e, ok := st.entries[id]
	st.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// WithSession runs fn with exclusive access to the session. The per-session
// lock is held for the whole call, so two simultaneous turns on the same id
// serialise. Expired sessions are marked inactive and reported as
// [ErrExpired] without running fn.
func (st *Store) WithSession(id string, fn func(*Session) error) error {
	e, err := st.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if st.expired(e.sess) {
		e.sess.Active = false
		slog.Info("session expired", "session_id", id)
		return ErrExpired
	}
	return fn(e.sess)
}

// Snapshot returns a deep copy of the session for read-only use (the HTTP
// inspection endpoint). The live session stays private to the store.
func (st *Store) Snapshot(id string) (*Session, error) {
	var snap *Session
	err := st.WithSession(id, func(s *Session) error {
		snap = cloneSession(s)
		return nil
	})
	return snap, err
}

// AppendTurn appends a turn under the session lock, assigning the next
// contiguous turn id, bumping last-activity, and merging the turn's
// entities into the session bag. Hitting the turn cap deactivates the
// session and returns [ErrSessionFull].
func (st *Store) AppendTurn(id string, t Turn) error {
	return st.WithSession(id, func(s *Session) error {
		return appendTurn(s, t, st.maxTurns)
	})
}

// appendTurn is the lock-free core of AppendTurn, also used by callers
// already inside WithSession.
func appendTurn(s *Session, t Turn, maxTurns int) error {
	if !s.Active {
		return ErrInactive
	}
	if len(s.Turns) >= maxTurns {
		s.Active = false
		slog.Warn("session reached max turns", "session_id", s.ID, "max_turns", maxTurns)
		return ErrSessionFull
	}

	t.ID = len(s.Turns) + 1
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.Turns = append(s.Turns, t)
	s.LastActivity = t.Timestamp
	s.MergeEntities(t.Entities)

	if len(s.Turns) >= maxTurns {
		s.Active = false
	}
	return nil
}

// AppendUnresolved records a turn whose classification could not be acted
// on, bumping the consecutive failed-intent counter that feeds
// auto-escalation. The turn itself is appended like any other; the counter
// resets when a later turn completes a workflow step.
func (st *Store) AppendUnresolved(id string, t Turn) error {
	return st.WithSession(id, func(s *Session) error {
		s.FailedIntents++
		return appendTurn(s, t, st.maxTurns)
	})
}

// Append records a turn on a session already held via [Store.WithSession].
func (st *Store) Append(s *Session, t Turn) error {
	return appendTurn(s, t, st.maxTurns)
}

// End marks a session inactive. The record remains readable until swept.
func (st *Store) End(id string) error {
	return st.WithSession(id, func(s *Session) error {
		s.Active = false
		slog.Info("session ended", "session_id", id, "total_turns", len(s.Turns))
		return nil
	})
}

// Delete removes a session outright.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.entries[id]; !ok {
		return ErrNotFound
	}
	delete(st.entries, id)
	return nil
}

// Len returns the number of sessions currently held, expired or not.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

// Sweep removes expired sessions and returns how many were dropped.
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	var dropped int
	for id, e := range st.entries {
		if st.expired(e.sess) {
			delete(st.entries, id)
			dropped++
		}
	}
	if dropped > 0 {
		slog.Info("swept expired sessions", "count", dropped)
	}
	return dropped
}

// Run sweeps periodically until ctx is cancelled.
func (st *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(st.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep()
		}
	}
}

func (st *Store) expired(s *Session) bool {
	return time.Since(s.LastActivity) > st.idleTimeout
}

func cloneSession(s *Session) *Session {
	cp := *s
	cp.Turns = make([]Turn, len(s.Turns))
	copy(cp.Turns, s.Turns)
	cp.Entities = make(map[string]string, len(s.Entities))
	for k, v := range s.Entities {
		cp.Entities[k] = v
	}
	cp.WorkflowState = make(map[string]any, len(s.WorkflowState))
	for k, v := range s.WorkflowState {
		cp.WorkflowState[k] = v
	}
	return &cp
}
