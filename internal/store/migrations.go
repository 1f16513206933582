package store

import (
	"context"
	"fmt"
)

type migration struct {
	version int
	stmts   []string
}

// migrations are keyed by sqlx driver name; the SQL dialects differ only in
// their timestamp types.
var migrations = map[string][]migration{
	"postgres": {
		{
			version: 1,
			stmts: []string{
				`CREATE TABLE IF NOT EXISTS notifications (
					id          TEXT PRIMARY KEY,
					user_id     TEXT NOT NULL,
					kind        TEXT NOT NULL,
					title       TEXT NOT NULL,
					message     TEXT NOT NULL,
					link        TEXT NOT NULL DEFAULT '',
					priority    TEXT NOT NULL DEFAULT 'medium',
					created_at  TIMESTAMPTZ NOT NULL,
					sent        BOOLEAN NOT NULL DEFAULT FALSE,
					sent_at     TIMESTAMPTZ,
					claimed_id  TEXT,
					claimed_at  TIMESTAMPTZ
				)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_due ON notifications (sent, claimed_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_claim ON notifications (claimed_id)`,
				`CREATE TABLE IF NOT EXISTS users (
					id               TEXT PRIMARY KEY,
					email            TEXT NOT NULL DEFAULT '',
					phone            TEXT NOT NULL DEFAULT '',
					notify_reminders BOOLEAN NOT NULL DEFAULT FALSE,
					notify_sms       BOOLEAN NOT NULL DEFAULT FALSE
				)`,
			},
		},
	},
	"sqlite": {
		{
			version: 1,
			stmts: []string{
				`CREATE TABLE IF NOT EXISTS notifications (
					id          TEXT PRIMARY KEY,
					user_id     TEXT NOT NULL,
					kind        TEXT NOT NULL,
					title       TEXT NOT NULL,
					message     TEXT NOT NULL,
					link        TEXT NOT NULL DEFAULT '',
					priority    TEXT NOT NULL DEFAULT 'medium',
					created_at  DATETIME NOT NULL,
					sent        BOOLEAN NOT NULL DEFAULT FALSE,
					sent_at     DATETIME,
					claimed_id  TEXT,
					claimed_at  DATETIME
				)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_due ON notifications (sent, claimed_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_claim ON notifications (claimed_id)`,
				`CREATE TABLE IF NOT EXISTS users (
					id               TEXT PRIMARY KEY,
					email            TEXT NOT NULL DEFAULT '',
					phone            TEXT NOT NULL DEFAULT '',
					notify_reminders BOOLEAN NOT NULL DEFAULT FALSE,
					notify_sms       BOOLEAN NOT NULL DEFAULT FALSE
				)`,
			},
		},
	},
}

// Migrate applies outstanding schema versions in order.
func (s *SQLStore) Migrate(ctx context.Context) error {
	steps, ok := migrations[s.db.DriverName()]
	if !ok {
		return fmt.Errorf("no migrations for driver %q", s.db.DriverName())
	}

	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}

	current := 0
	if err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range steps {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
