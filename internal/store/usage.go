// ABOUTME: SQLite implementation of the generation usage ledger
// ABOUTME: Stores one row per generation call and aggregates them for reporting

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveGeneration stores a generation record.
func (s *SQLiteStore) SaveGeneration(ctx context.Context, gen *Generation) error {
	query := `
		INSERT INTO generations (
			id, session_id, request_id, outcome, model,
			prompt_tokens, reply_tokens, total_tokens, latency_ms,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		gen.ID,
		gen.SessionID,
		gen.RequestID,
		string(gen.Outcome),
		nullString(gen.Model),
		gen.PromptTokens,
		gen.ReplyTokens,
		gen.TotalTokens,
		gen.Latency.Milliseconds(),
		gen.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting generation: %w", err)
	}

	s.logger.Debug("saved generation",
		"id", gen.ID,
		"session_id", gen.SessionID,
		"outcome", gen.Outcome,
		"total_tokens", gen.TotalTokens,
	)
	return nil
}

// GetSessionGenerations retrieves all generation records for a session.
func (s *SQLiteStore) GetSessionGenerations(ctx context.Context, sessionID string) ([]*Generation, error) {
	query := `
		SELECT id, session_id, request_id, outcome, model,
		       prompt_tokens, reply_tokens, total_tokens, latency_ms,
		       created_at
		FROM generations
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying session generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var gens []*Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, gen)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating generation rows: %w", err)
	}

	return gens, nil
}

// GetUsageStats returns aggregated usage statistics with optional filters.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'reply' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'empty' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(reply_tokens), 0),
			COALESCE(SUM(total_tokens), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM generations
		WHERE 1=1
	`
	args := []any{}

	if filter.SessionID != nil {
		query += " AND session_id = ?"
		args = append(args, *filter.SessionID)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	var stats UsageStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Requests,
		&stats.Replies,
		&stats.Empty,
		&stats.Failures,
		&stats.PromptTokens,
		&stats.ReplyTokens,
		&stats.TotalTokens,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}

	return &stats, nil
}

func scanGeneration(rows *sql.Rows) (*Generation, error) {
	var gen Generation
	var outcome, createdAtStr string
	var model sql.NullString
	var latencyMs int64

	err := rows.Scan(
		&gen.ID,
		&gen.SessionID,
		&gen.RequestID,
		&outcome,
		&model,
		&gen.PromptTokens,
		&gen.ReplyTokens,
		&gen.TotalTokens,
		&latencyMs,
		&createdAtStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning generation row: %w", err)
	}

	gen.Outcome = GenerationOutcome(outcome)
	gen.Model = model.String
	gen.Latency = time.Duration(latencyMs) * time.Millisecond

	gen.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &gen, nil
}
