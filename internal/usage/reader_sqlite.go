package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteReader implements Reader for SQLite databases.
type SQLiteReader struct {
	db *sql.DB
}

// NewSQLiteReader creates a new SQLite usage reader.
func NewSQLiteReader(db *sql.DB) (*SQLiteReader, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteReader{db: db}, nil
}

// Totals returns per-model aggregates since the given time.
func (r *SQLiteReader) Totals(ctx context.Context, since time.Time) ([]ModelTotals, error) {
	query := `SELECT model, COUNT(*),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(CASE WHEN error_type != '' THEN 1 ELSE 0 END), 0)
		FROM usage`
	var args []interface{}

	if !since.IsZero() {
		query += " WHERE timestamp >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query += " GROUP BY model ORDER BY SUM(total_tokens) DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage totals: %w", err)
	}
	defer rows.Close()

	result := make([]ModelTotals, 0)
	for rows.Next() {
		var t ModelTotals
		if err := rows.Scan(&t.Model, &t.Requests, &t.PromptTokens, &t.CompletionTokens, &t.TotalTokens, &t.Errors); err != nil {
			return nil, fmt.Errorf("failed to scan totals row: %w", err)
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating totals rows: %w", err)
	}

	return result, nil
}

// Recent returns the most recent entries, newest first.
func (r *SQLiteReader) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx, `SELECT id, timestamp, request_id, endpoint, model, operation,
			stream, duration_ns, status_code, prompt_tokens, completion_tokens, total_tokens, error_type
		FROM usage ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent usage: %w", err)
	}
	defer rows.Close()

	result := make([]*Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.RequestID, &e.Endpoint, &e.Model, &e.Operation,
			&e.Stream, &e.DurationNs, &e.StatusCode, &e.PromptTokens, &e.CompletionTokens,
			&e.TotalTokens, &e.ErrorType); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = parsed
		}
		result = append(result, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}

	return result, nil
}
