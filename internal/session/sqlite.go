package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/voxloop/voxloop/internal/domain"
	"github.com/voxloop/voxloop/internal/logging"
)

// SQLiteStore is a Store backed by SQLite. It serves the local gateway
// mode; the Lambda deployment uses DynamoStore instead.
type SQLiteStore struct {
	db        *sql.DB
	retention time.Duration
	log       *logging.Logger
}

// OpenSQLite opens (or creates) a SQLite database at the given path and
// runs migrations. Use ":memory:" for tests. retention bounds how long a
// finished session is kept before opportunistic purging.
func OpenSQLite(path string, retention time.Duration, log *logging.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, retention: retention, log: log.Sub("session.sqlite")}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.log.Info().Str("path", path).Msg("session database opened")
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*domain.CallSession, error) {
	s.purgeExpired(ctx)

	var sess domain.CallSession
	var startedAt, lastActivity string
	var attrs sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, caller_number, channel, state, turn_count,
		        started_at, last_activity_at, attributes, evicted, failures
		 FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(
		&sess.SessionID, &sess.CallerNumber, &sess.Channel, &sess.State,
		&sess.TurnCount, &startedAt, &lastActivity, &attrs,
		&sess.Evicted, &sess.Failures,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	sess.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	sess.LastActivityAt, _ = time.Parse(time.RFC3339Nano, lastActivity)
	if attrs.Valid && attrs.String != "" {
		_ = json.Unmarshal([]byte(attrs.String), &sess.Attributes)
	}

	turns, err := s.loadTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.History = turns

	return &sess, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess *domain.CallSession, expectedTurnCount int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save: %w", err)
	}
	defer tx.Rollback()

	var stored int
	err = tx.QueryRowContext(ctx,
		`SELECT turn_count FROM sessions WHERE session_id = ?`, sess.SessionID,
	).Scan(&stored)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if expectedTurnCount != 0 {
			return &ConflictError{SessionID: sess.SessionID, Expected: expectedTurnCount}
		}
	case err != nil:
		return fmt.Errorf("checking session %s: %w", sess.SessionID, err)
	case stored != expectedTurnCount:
		return &ConflictError{SessionID: sess.SessionID, Expected: expectedTurnCount}
	}

	attrs := "{}"
	if len(sess.Attributes) > 0 {
		if data, merr := json.Marshal(sess.Attributes); merr == nil {
			attrs = string(data)
		}
	}

	expiresAt := sess.LastActivityAt.Add(s.retention)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions
		   (session_id, caller_number, channel, state, turn_count,
		    started_at, last_activity_at, attributes, evicted, failures, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   state = excluded.state,
		   turn_count = excluded.turn_count,
		   last_activity_at = excluded.last_activity_at,
		   attributes = excluded.attributes,
		   evicted = excluded.evicted,
		   failures = excluded.failures,
		   expires_at = excluded.expires_at`,
		sess.SessionID, sess.CallerNumber, sess.Channel, string(sess.State),
		sess.TurnCount,
		sess.StartedAt.UTC().Format(time.RFC3339Nano),
		sess.LastActivityAt.UTC().Format(time.RFC3339Nano),
		attrs, sess.Evicted, sess.Failures,
		expiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", sess.SessionID, err)
	}

	for _, t := range sess.History {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO turns
			   (session_id, turn_index, caller_text, agent_text, action, verdict, timestamp, latency_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.SessionID, t.Index, t.CallerText, t.AgentText,
			string(t.Action), string(t.Verdict),
			t.Timestamp.UTC().Format(time.RFC3339Nano),
			t.Latency.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("saving turn %d of %s: %w", t.Index, sess.SessionID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Profile(ctx context.Context, callerNumber string) (*domain.CallerProfile, error) {
	var p domain.CallerProfile
	var lastSeen string
	var prefs sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT caller_number, total_calls, last_seen_at, preferences
		 FROM callers WHERE caller_number = ?`, callerNumber,
	).Scan(&p.CallerNumber, &p.TotalCalls, &lastSeen, &prefs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading caller %s: %w", callerNumber, err)
	}

	p.LastSeenAt, _ = time.Parse(time.RFC3339Nano, lastSeen)
	if prefs.Valid && prefs.String != "" {
		_ = json.Unmarshal([]byte(prefs.String), &p.Preferences)
	}
	return &p, nil
}

func (s *SQLiteStore) RecordCall(ctx context.Context, sess *domain.CallSession) error {
	if sess.CallerNumber == "" {
		return nil
	}

	p, err := s.Profile(ctx, sess.CallerNumber)
	if errors.Is(err, ErrNotFound) {
		p = &domain.CallerProfile{CallerNumber: sess.CallerNumber}
	} else if err != nil {
		return err
	}
	foldCall(p, sess)

	prefs := "{}"
	if len(p.Preferences) > 0 {
		if data, merr := json.Marshal(p.Preferences); merr == nil {
			prefs = string(data)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO callers (caller_number, total_calls, last_seen_at, preferences)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(caller_number) DO UPDATE SET
		   total_calls = excluded.total_calls,
		   last_seen_at = excluded.last_seen_at,
		   preferences = excluded.preferences`,
		p.CallerNumber, p.TotalCalls,
		p.LastSeenAt.UTC().Format(time.RFC3339Nano), prefs,
	)
	if err != nil {
		return fmt.Errorf("recording call for %s: %w", p.CallerNumber, err)
	}
	return nil
}

func (s *SQLiteStore) loadTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_index, caller_text, agent_text, action, verdict, timestamp, latency_ms
		 FROM turns WHERE session_id = ? ORDER BY turn_index`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading turns for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var ts string
		var latencyMs int64
		if err := rows.Scan(&t.Index, &t.CallerText, &t.AgentText, &t.Action, &t.Verdict, &ts, &latencyMs); err != nil {
			continue
		}
		t.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		t.Latency = time.Duration(latencyMs) * time.Millisecond
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// purgeExpired drops sessions past their retention window. Best-effort,
// run opportunistically on load.
func (s *SQLiteStore) purgeExpired(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to purge expired sessions")
	}
}
