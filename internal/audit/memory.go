package audit

import (
	"context"
	"sync"
)

// defaultRingSize caps the in-memory trail when no size is configured.
const defaultRingSize = 1024

// MemoryStore keeps the newest events in a fixed-size ring. It is the
// default store for deployments without a database; the trail survives only
// as long as the process.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
	next   int
	filled bool
}

// NewMemoryStore returns a ring holding the newest size events. size <= 0
// uses the default of 1024.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = defaultRingSize
	}
	return &MemoryStore{events: make([]Event, size)}
}

func (m *MemoryStore) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[m.next] = ev
	m.next++
	if m.next == len(m.events) {
		m.next = 0
		m.filled = true
	}
	return nil
}

func (m *MemoryStore) SessionEvents(_ context.Context, sessionID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.ordered() {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// ordered returns the ring contents oldest first.
func (m *MemoryStore) ordered() []Event {
	if !m.filled {
		return m.events[:m.next]
	}
	out := make([]Event, 0, len(m.events))
	out = append(out, m.events[m.next:]...)
	out = append(out, m.events[:m.next]...)
	return out
}

func (m *MemoryStore) Close() {}
