// ABOUTME: SQLite implementation of the ledger using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode and creates the schema on startup

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// Parent directories and the schema are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Serialize writers; SQLite allows one at a time anyway.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS widget_sessions (
			id             TEXT PRIMARY KEY,
			origin         TEXT,
			user_agent     TEXT,
			mounted_at     TEXT NOT NULL,
			unmounted_at   TEXT,
			unmount_reason TEXT,
			submissions    INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_widget_sessions_mounted
			ON widget_sessions(mounted_at);

		CREATE TABLE IF NOT EXISTS generations (
			id            TEXT PRIMARY KEY,
			session_id    TEXT NOT NULL,
			request_id    TEXT NOT NULL,
			outcome       TEXT NOT NULL,
			model         TEXT,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			reply_tokens  INTEGER NOT NULL DEFAULT 0,
			total_tokens  INTEGER NOT NULL DEFAULT 0,
			latency_ms    INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES widget_sessions(id),
			CHECK (outcome IN ('reply', 'empty', 'failure'))
		);

		CREATE INDEX IF NOT EXISTS idx_generations_session
			ON generations(session_id);

		CREATE INDEX IF NOT EXISTS idx_generations_created
			ON generations(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure SQLiteStore implements the full ledger.
var _ Store = (*SQLiteStore)(nil)
