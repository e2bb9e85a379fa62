package session

import (
	"context"
	"sync"
	"time"

	"github.com/cashpoint-io/atmd/internal/atm"
)

// MemoryStorage is an in-memory Storage used in tests and when Redis is not
// configured. Sessions are copied on the way in and out so callers never
// share a snapshot with the store.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStorage returns an empty in-memory Storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]Session),
	}
}

// Get returns the stored session or ErrSessionNotFound.
func (s *MemoryStorage) Get(_ context.Context, terminalID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[terminalID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := sess
	copied.Machine = cloneMachine(sess.Machine)
	return &copied, nil
}

// Set saves a copy of the session and stamps UpdatedAt, mirroring the
// Redis implementation.
func (s *MemoryStorage) Set(_ context.Context, terminalID string, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.UpdatedAt = time.Now().UTC()
	copied := *sess
	copied.Machine = cloneMachine(sess.Machine)
	s.sessions[terminalID] = copied
	return nil
}

// Delete removes the session for the terminal.
func (s *MemoryStorage) Delete(_ context.Context, terminalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, terminalID)
	return nil
}

// All returns copies of every stored session.
func (s *MemoryStorage) All(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		copied := sess
		copied.Machine = cloneMachine(sess.Machine)
		result = append(result, &copied)
	}

	return result, nil
}

func cloneMachine(m atm.Machine) atm.Machine {
	out := m
	if len(m.Register) > 0 {
		out.Register = append([]atm.Key(nil), m.Register...)
	}
	return out
}
