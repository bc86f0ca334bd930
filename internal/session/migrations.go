package session

import "fmt"

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and turns",
		SQL: `
			CREATE TABLE sessions (
				session_id       TEXT PRIMARY KEY,
				caller_number    TEXT NOT NULL DEFAULT '',
				channel          TEXT NOT NULL DEFAULT '',
				state            TEXT NOT NULL,
				turn_count       INTEGER NOT NULL DEFAULT 0,
				started_at       TEXT NOT NULL,
				last_activity_at TEXT NOT NULL,
				attributes       TEXT,
				evicted          INTEGER NOT NULL DEFAULT 0,
				failures         INTEGER NOT NULL DEFAULT 0,
				expires_at       TEXT NOT NULL
			);

			CREATE INDEX idx_sessions_expires ON sessions (expires_at);

			CREATE TABLE turns (
				session_id   TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
				turn_index   INTEGER NOT NULL,
				caller_text  TEXT NOT NULL DEFAULT '',
				agent_text   TEXT NOT NULL DEFAULT '',
				action       TEXT NOT NULL,
				verdict      TEXT NOT NULL,
				timestamp    TEXT NOT NULL,
				latency_ms   INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (session_id, turn_index)
			);
		`,
	},
	{
		Version: 2,
		Name:    "create callers",
		SQL: `
			CREATE TABLE callers (
				caller_number TEXT PRIMARY KEY,
				total_calls   INTEGER NOT NULL DEFAULT 0,
				last_seen_at  TEXT NOT NULL,
				preferences   TEXT
			);
		`,
	},
}

// migrate runs all pending migrations inside transactions, tracking
// applied versions in schema_migrations.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version,
		).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
