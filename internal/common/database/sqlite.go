package database

import (
	"fmt"
	"strings"

	"riseready-notifications/internal/common/config"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// NewSQLite opens a local SQLite database for development and tests.
// ":memory:" is pinned to a single connection so every query sees the same
// database. File databases get WAL and a busy timeout on every pooled
// connection, since several dispatchers may claim from the same file.
func NewSQLite(cfg config.SQLiteConfig) (*sqlx.DB, error) {
	if cfg.Path == ":memory:" {
		db, err := sqlx.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite %s: %w", cfg.Path, err)
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return db, nil
	}

	db, err := sqlx.Open("sqlite", SQLiteDSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", cfg.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite %s: %w", cfg.Path, err)
	}
	return db, nil
}

// SQLiteDSN adds the connection pragmas to path. Pragmas in the DSN are
// applied by the driver to each new connection.
func SQLiteDSN(path string) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
