// ABOUTME: SQLite implementation of the widget session ledger
// ABOUTME: Records mounts, unmounts and per-session submission counts

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordMount inserts a new session row.
func (s *SQLiteStore) RecordMount(ctx context.Context, session *WidgetSession) error {
	query := `
		INSERT INTO widget_sessions (id, origin, user_agent, mounted_at, submissions)
		VALUES (?, ?, ?, ?, 0)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		nullString(session.Origin),
		nullString(session.UserAgent),
		session.MountedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting widget session: %w", err)
	}

	s.logger.Debug("recorded mount", "session_id", session.ID, "origin", session.Origin)
	return nil
}

// RecordUnmount marks a session unmounted. Unmounting twice keeps the first
// record and is not an error.
func (s *SQLiteStore) RecordUnmount(ctx context.Context, id, reason string, at time.Time) error {
	query := `
		UPDATE widget_sessions
		SET unmounted_at = ?, unmount_reason = ?
		WHERE id = ? AND unmounted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339), reason, id)
	if err != nil {
		return fmt.Errorf("updating widget session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
	}

	s.logger.Debug("recorded unmount", "session_id", id, "reason", reason)
	return nil
}

// IncrementSubmissions bumps the accepted submission counter.
func (s *SQLiteStore) IncrementSubmissions(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE widget_sessions SET submissions = submissions + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing submissions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession retrieves a session row by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*WidgetSession, error) {
	query := `
		SELECT id, origin, user_agent, mounted_at, unmounted_at, unmount_reason, submissions
		FROM widget_sessions
		WHERE id = ?
	`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*WidgetSession, error) {
	query := `
		SELECT id, origin, user_agent, mounted_at, unmounted_at, unmount_reason, submissions
		FROM widget_sessions
		WHERE 1=1
	`
	args := []any{}

	if filter.ActiveOnly {
		query += " AND unmounted_at IS NULL"
	}
	query += " ORDER BY mounted_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying widget sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*WidgetSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating widget session rows: %w", err)
	}

	return sessions, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*WidgetSession, error) {
	var session WidgetSession
	var origin, userAgent, unmountedAt, reason sql.NullString
	var mountedAtStr string

	err := row.Scan(
		&session.ID,
		&origin,
		&userAgent,
		&mountedAtStr,
		&unmountedAt,
		&reason,
		&session.Submissions,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning widget session row: %w", err)
	}

	session.Origin = origin.String
	session.UserAgent = userAgent.String
	session.UnmountReason = reason.String

	session.MountedAt, err = time.Parse(time.RFC3339, mountedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing mounted_at: %w", err)
	}
	if unmountedAt.Valid {
		t, err := time.Parse(time.RFC3339, unmountedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing unmounted_at: %w", err)
		}
		session.UnmountedAt = &t
	}

	return &session, nil
}
