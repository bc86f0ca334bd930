package session

import (
	"context"
	"strings"

	"github.com/voxloop/voxloop/internal/domain"
)

// prefAttrPrefix marks session attributes worth carrying across calls.
// "pref_language: es" on one call becomes the "language" preference on
// the next.
const prefAttrPrefix = "pref_"

// Directory remembers callers across calls, keyed by phone number. It is
// the cross-call counterpart of the per-call Store: a session dies with
// the call, a profile accumulates. All store backends implement it.
type Directory interface {
	// Profile returns what is known about a caller, or ErrNotFound for a
	// first-time number.
	Profile(ctx context.Context, callerNumber string) (*domain.CallerProfile, error)

	// RecordCall folds a finished session into the caller's profile:
	// bumps the call counter, advances last-seen, and merges any
	// preference attributes the call picked up.
	RecordCall(ctx context.Context, sess *domain.CallSession) error
}

// foldCall applies one finished session onto a profile in place. The
// shared upsert logic for every Directory backend.
func foldCall(p *domain.CallerProfile, sess *domain.CallSession) {
	p.TotalCalls++
	if sess.LastActivityAt.After(p.LastSeenAt) {
		p.LastSeenAt = sess.LastActivityAt
	}
	for k, v := range sess.Attributes {
		name, ok := strings.CutPrefix(k, prefAttrPrefix)
		if !ok || name == "" {
			continue
		}
		if p.Preferences == nil {
			p.Preferences = make(map[string]string)
		}
		p.Preferences[name] = v
	}
}

func cloneProfile(p *domain.CallerProfile) *domain.CallerProfile {
	c := *p
	if p.Preferences != nil {
		c.Preferences = make(map[string]string, len(p.Preferences))
		for k, v := range p.Preferences {
			c.Preferences[k] = v
		}
	}
	return &c
}
