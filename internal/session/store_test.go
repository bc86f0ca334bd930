package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop/voxloop/internal/domain"
	"github.com/voxloop/voxloop/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:", time.Hour, silentLog())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newSession(id string) *domain.CallSession {
	sess := domain.NewCallSession(id, "+15551230000", time.Now().UTC().Truncate(time.Millisecond))
	sess.Channel = "VOICE"
	return sess
}

// stores returns each Store implementation under test.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": openTestSQLite(t),
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := newSession("call-1")
			sess.Attributes["intent"] = "billing"
			sess.RecordTurn(domain.Turn{
				CallerText: "what are your hours",
				AgentText:  "we're open nine to five",
				Action:     domain.ActionContinue,
				Verdict:    domain.VerdictAllowed,
				Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
				Latency:    250 * time.Millisecond,
			}, 20)

			require.NoError(t, s.Save(ctx, sess, 0))

			got, err := s.Load(ctx, "call-1")
			require.NoError(t, err)

			assert.Equal(t, sess.SessionID, got.SessionID)
			assert.Equal(t, sess.TurnCount, got.TurnCount)
			assert.Equal(t, domain.StateActive, got.State)
			assert.Equal(t, "billing", got.Attributes["intent"])
			require.Len(t, got.History, 1)
			assert.Equal(t, "what are your hours", got.History[0].CallerText)
			assert.Equal(t, domain.ActionContinue, got.History[0].Action)
			assert.Equal(t, 250*time.Millisecond, got.History[0].Latency)
		})
	}
}

// Round-trip property: save(load(id)) with no mutation changes nothing
// observable.
func TestSaveLoadIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := newSession("call-rt")
			sess.RecordTurn(domain.Turn{CallerText: "hi", Timestamp: time.Now().UTC()}, 20)
			require.NoError(t, s.Save(ctx, sess, 0))

			loaded, err := s.Load(ctx, "call-rt")
			require.NoError(t, err)
			require.NoError(t, s.Save(ctx, loaded, loaded.TurnCount))

			again, err := s.Load(ctx, "call-rt")
			require.NoError(t, err)
			assert.Equal(t, loaded.TurnCount, again.TurnCount)
			assert.Equal(t, len(loaded.History), len(again.History))
		})
	}
}

func TestSaveConflictOnStaleTurnCount(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := newSession("call-c")
			require.NoError(t, s.Save(ctx, sess, 0))

			// First invocation commits turn 1.
			a, err := s.Load(ctx, "call-c")
			require.NoError(t, err)
			a.RecordTurn(domain.Turn{CallerText: "a", Timestamp: time.Now().UTC()}, 20)
			require.NoError(t, s.Save(ctx, a, 0))

			// A duplicate invocation that loaded before the commit must not
			// double-apply its turn.
			b := sess.Clone()
			b.RecordTurn(domain.Turn{CallerText: "b", Timestamp: time.Now().UTC()}, 20)
			err = s.Save(ctx, b, 0)

			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, "call-c", conflict.SessionID)

			got, err := s.Load(ctx, "call-c")
			require.NoError(t, err)
			assert.Equal(t, 1, got.TurnCount)
			assert.Equal(t, "a", got.History[0].CallerText)
		})
	}
}

func TestSaveConflictOnMissingSessionWithNonzeroExpected(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			sess := newSession("call-m")
			sess.TurnCount = 3
			err := s.Save(context.Background(), sess, 3)

			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, newSession("call-d"), 0))
			require.NoError(t, s.Delete(ctx, "call-d"))

			_, err := s.Load(ctx, "call-d")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting a missing session is not an error.
			assert.NoError(t, s.Delete(ctx, "call-d"))
		})
	}
}

func TestSQLiteRetentionPurge(t *testing.T) {
	s, err := OpenSQLite(":memory:", time.Millisecond, silentLog())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	sess := newSession("call-exp")
	require.NoError(t, s.Save(ctx, sess, 0))

	time.Sleep(5 * time.Millisecond)

	_, err = s.Load(ctx, "call-exp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/sessions.db"

	s1, err := OpenSQLite(path, time.Hour, silentLog())
	require.NoError(t, err)

	sess := newSession("call-p")
	sess.RecordTurn(domain.Turn{CallerText: "hi", Timestamp: time.Now().UTC()}, 20)
	require.NoError(t, s1.Save(context.Background(), sess, 0))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(path, time.Hour, silentLog())
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Load(context.Background(), "call-p")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount)
}

func TestMemoryStoreCheckoutIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sess := newSession("call-i")
	require.NoError(t, s.Save(ctx, sess, 0))

	a, err := s.Load(ctx, "call-i")
	require.NoError(t, err)
	a.Attributes["x"] = "mutated"

	b, err := s.Load(ctx, "call-i")
	require.NoError(t, err)
	assert.Empty(t, b.Attributes["x"])
}

// directories returns each Directory implementation under test.
func directories(t *testing.T) map[string]Directory {
	return map[string]Directory{
		"memory": NewMemoryStore(),
		"sqlite": openTestSQLite(t),
	}
}

func TestProfileUnknownCaller(t *testing.T) {
	for name, d := range directories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := d.Profile(context.Background(), "+15559999999")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRecordCallAccumulatesAcrossCalls(t *testing.T) {
	for name, d := range directories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			number := "+15551230000"

			first := newSession("call-1")
			first.Attributes["pref_language"] = "es"
			first.Attributes["scratch"] = "not a preference"
			first.RecordTurn(domain.Turn{AgentText: "hola", Timestamp: time.Now().Add(-time.Hour)}, 20)
			require.NoError(t, d.RecordCall(ctx, first))

			second := newSession("call-2")
			second.Attributes["pref_callback_window"] = "mornings"
			second.RecordTurn(domain.Turn{AgentText: "bye", Timestamp: time.Now()}, 20)
			require.NoError(t, d.RecordCall(ctx, second))

			p, err := d.Profile(ctx, number)
			require.NoError(t, err)
			assert.Equal(t, 2, p.TotalCalls)
			assert.Equal(t, "es", p.Preferences["language"])
			assert.Equal(t, "mornings", p.Preferences["callback_window"])
			assert.NotContains(t, p.Preferences, "scratch")
			assert.WithinDuration(t, second.LastActivityAt, p.LastSeenAt, time.Second)
		})
	}
}

func TestRecordCallSkipsAnonymousSessions(t *testing.T) {
	for name, d := range directories(t) {
		t.Run(name, func(t *testing.T) {
			sess := domain.NewCallSession("call-a", "", time.Now())
			require.NoError(t, d.RecordCall(context.Background(), sess))
		})
	}
}
