package session

import (
	"context"
	"sync"

	"github.com/voxloop/voxloop/internal/domain"
)

// MemoryStore is an in-process Store. It backs local development and the
// degraded no-persistence mode; state does not survive the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.CallSession
	callers  map[string]*domain.CallerProfile
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.CallSession),
		callers:  make(map[string]*domain.CallerProfile),
	}
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*domain.CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, sess *domain.CallSession, expectedTurnCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[sess.SessionID]
	if ok {
		if cur.TurnCount != expectedTurnCount {
			return &ConflictError{SessionID: sess.SessionID, Expected: expectedTurnCount}
		}
	} else if expectedTurnCount != 0 {
		// A nonzero expectation for a missing row means the session was
		// purged mid-call; treat it like any other lost race.
		return &ConflictError{SessionID: sess.SessionID, Expected: expectedTurnCount}
	}
	s.sessions[sess.SessionID] = sess.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Profile(ctx context.Context, callerNumber string) (*domain.CallerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.callers[callerNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *MemoryStore) RecordCall(ctx context.Context, sess *domain.CallSession) error {
	if sess.CallerNumber == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.callers[sess.CallerNumber]
	if !ok {
		p = &domain.CallerProfile{CallerNumber: sess.CallerNumber}
		s.callers[sess.CallerNumber] = p
	}
	foldCall(p, sess)
	return nil
}
