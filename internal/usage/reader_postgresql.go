package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLReader implements Reader for PostgreSQL databases.
type PostgreSQLReader struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLReader creates a new PostgreSQL usage reader.
func NewPostgreSQLReader(pool *pgxpool.Pool) (*PostgreSQLReader, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PostgreSQLReader{pool: pool}, nil
}

// Totals returns per-model aggregates since the given time.
func (r *PostgreSQLReader) Totals(ctx context.Context, since time.Time) ([]ModelTotals, error) {
	query := `SELECT model, COUNT(*),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(CASE WHEN error_type != '' THEN 1 ELSE 0 END), 0)
		FROM usage`
	var args []interface{}

	if !since.IsZero() {
		query += " WHERE timestamp >= $1"
		args = append(args, since.UTC())
	}
	query += " GROUP BY model ORDER BY SUM(total_tokens) DESC"

	rows, err := r.pool.Query(ctx, query, args...)
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
func (r *PostgreSQLReader) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	limit = clampLimit(limit)

	rows, err := r.pool.Query(ctx, `SELECT id, timestamp, request_id, endpoint, model, operation,
			stream, duration_ns, status_code, prompt_tokens, completion_tokens, total_tokens, error_type
		FROM usage ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent usage: %w", err)
	}
	defer rows.Close()

	result := make([]*Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.RequestID, &e.Endpoint, &e.Model, &e.Operation,
			&e.Stream, &e.DurationNs, &e.StatusCode, &e.PromptTokens, &e.CompletionTokens,
			&e.TotalTokens, &e.ErrorType); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		result = append(result, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}

	return result, nil
}
