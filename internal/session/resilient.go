package session

import (
	"context"
	"errors"

	"github.com/voxloop/voxloop/internal/domain"
	"github.com/voxloop/voxloop/internal/logging"
	"github.com/voxloop/voxloop/internal/metrics"
)

// Resilient wraps a durable Store so that store unavailability degrades to
// a best-effort in-memory session instead of failing the call. Persistence
// failures are logged and counted, never fatal to a turn; conflicts pass
// through untouched so the orchestrator can run its retry.
type Resilient struct {
	primary  Store
	fallback *MemoryStore
	pub      metrics.Publisher
	log      *logging.Logger
}

// NewResilient wraps primary with an in-memory degraded mode.
func NewResilient(primary Store, pub metrics.Publisher, log *logging.Logger) *Resilient {
	return &Resilient{
		primary:  primary,
		fallback: NewMemoryStore(),
		pub:      pub,
		log:      log.Sub("session.resilient"),
	}
}

func (r *Resilient) Load(ctx context.Context, sessionID string) (*domain.CallSession, error) {
	sess, err := r.primary.Load(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, ErrNotFound) {
		// A session written only to the fallback during an earlier outage
		// is still better than starting over.
		if cached, ferr := r.fallback.Load(ctx, sessionID); ferr == nil {
			return cached, nil
		}
		return nil, ErrNotFound
	}

	r.log.Warn().Err(err).Str("sessionId", sessionID).Msg("store load failed, degrading to memory")
	r.pub.Count("StoreDegradedLoad", 1)

	if cached, ferr := r.fallback.Load(ctx, sessionID); ferr == nil {
		return cached, nil
	}
	return nil, ErrNotFound
}

func (r *Resilient) Save(ctx context.Context, sess *domain.CallSession, expectedTurnCount int) error {
	err := r.primary.Save(ctx, sess, expectedTurnCount)
	if err == nil {
		// Keep the fallback coherent for subsequent degraded loads.
		_ = r.fallback.Save(ctx, sess, expectedTurnCount)
		return nil
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return err
	}

	r.log.Warn().Err(err).Str("sessionId", sess.SessionID).Msg("store save failed, keeping session in memory only")
	r.pub.Count("StoreDegradedSave", 1)

	if ferr := r.fallback.Save(ctx, sess, expectedTurnCount); ferr != nil {
		// Even the fallback conflicting means a duplicate invocation won
		// locally; surface that so the orchestrator retries.
		return ferr
	}
	return nil
}

func (r *Resilient) Delete(ctx context.Context, sessionID string) error {
	_ = r.fallback.Delete(ctx, sessionID)
	if err := r.primary.Delete(ctx, sessionID); err != nil {
		r.log.Warn().Err(err).Str("sessionId", sessionID).Msg("store delete failed")
	}
	return nil
}
