package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop/voxloop/internal/domain"
	"github.com/voxloop/voxloop/internal/metrics"
)

// brokenStore fails every operation with an infrastructure error.
type brokenStore struct{}

func (brokenStore) Load(ctx context.Context, id string) (*domain.CallSession, error) {
	return nil, errors.New("store unreachable")
}

func (brokenStore) Save(ctx context.Context, sess *domain.CallSession, expected int) error {
	return errors.New("store unreachable")
}

func (brokenStore) Delete(ctx context.Context, id string) error {
	return errors.New("store unreachable")
}

func TestResilientDegradesToMemory(t *testing.T) {
	r := NewResilient(brokenStore{}, metrics.Nop{}, silentLog())
	ctx := context.Background()

	// Load against a dead store reports not-found so the caller starts fresh.
	_, err := r.Load(ctx, "call-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Save must not fail the turn.
	sess := domain.NewCallSession("call-1", "", time.Now())
	sess.RecordTurn(domain.Turn{CallerText: "hi", Timestamp: time.Now()}, 20)
	require.NoError(t, r.Save(ctx, sess, 0))

	// The degraded session is served on the next invocation.
	got, err := r.Load(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount)
}

func TestResilientPassesThroughWhenHealthy(t *testing.T) {
	primary := NewMemoryStore()
	r := NewResilient(primary, metrics.Nop{}, silentLog())
	ctx := context.Background()

	sess := domain.NewCallSession("call-2", "", time.Now())
	require.NoError(t, r.Save(ctx, sess, 0))

	got, err := primary.Load(ctx, "call-2")
	require.NoError(t, err)
	assert.Equal(t, "call-2", got.SessionID)
}

func TestResilientPropagatesConflict(t *testing.T) {
	primary := NewMemoryStore()
	r := NewResilient(primary, metrics.Nop{}, silentLog())
	ctx := context.Background()

	sess := domain.NewCallSession("call-3", "", time.Now())
	sess.RecordTurn(domain.Turn{Timestamp: time.Now()}, 20)
	require.NoError(t, r.Save(ctx, sess, 0))

	stale := domain.NewCallSession("call-3", "", time.Now())
	stale.RecordTurn(domain.Turn{Timestamp: time.Now()}, 20)
	err := r.Save(ctx, stale, 0)

	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestResilientDeleteNeverFails(t *testing.T) {
	r := NewResilient(brokenStore{}, metrics.Nop{}, silentLog())
	assert.NoError(t, r.Delete(context.Background(), "call-4"))
}
