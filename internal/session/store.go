// Package session persists per-call conversation state between
// invocations. The store is the sole durable owner of a CallSession; the
// orchestrator checks a session out, applies one turn, and checks it back
// in guarded by an optimistic concurrency check on the turn counter.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxloop/voxloop/internal/domain"
)

// ErrNotFound is returned by Load when no session exists for the ID.
// Callers construct a fresh session with a zero turn count.
var ErrNotFound = errors.New("session not found")

// ConflictError is returned by Save when the stored turn count no longer
// matches the expected value, meaning another invocation for the same call
// committed first.
type ConflictError struct {
	SessionID string
	Expected  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %s: turn count changed, expected %d", e.SessionID, e.Expected)
}

// Store is the session state store contract.
type Store interface {
	// Load returns the session for the ID, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*domain.CallSession, error)

	// Save persists the session if the stored turn count still equals
	// expectedTurnCount. A mismatch returns *ConflictError.
	Save(ctx context.Context, sess *domain.CallSession, expectedTurnCount int) error

	// Delete removes a session. Missing sessions are not an error.
	Delete(ctx context.Context, sessionID string) error
}
