package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store with the same CAS semantics as the
// Postgres implementation. Useful for tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]CallSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]CallSession)}
}

func (m *MemoryStore) Insert(ctx context.Context, s CallSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = s
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (CallSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, sessionID string, expected, next Status, endedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if s.Status != expected {
		if s.Status.Terminal() {
			return ErrAlreadyTerminal
		}
		return ErrInvalidTransition
	}
	s.Status = next
	s.EndedAt = endedAt
	m.sessions[sessionID] = s
	return nil
}
