package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements Store on a pgx connection pool. Like the
// SQLite store it enforces retention with a periodic delete sweep.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgreSQLStore creates the usage table and indexes if missing and
// starts the retention sweep when retentionDays is positive.
func NewPostgreSQLStore(pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS usage (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			endpoint TEXT NOT NULL,
			model TEXT NOT NULL,
			operation TEXT NOT NULL,
			stream BOOLEAN NOT NULL DEFAULT FALSE,
			duration_ns BIGINT NOT NULL DEFAULT 0,
			status_code INTEGER NOT NULL DEFAULT 0,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			error_type TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage table: %w", err)
	}

	// Indexes backing the reader's time-window and per-model queries.
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_usage_model ON usage(model)",
		"CREATE INDEX IF NOT EXISTS idx_usage_request_id ON usage(request_id)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	if retentionDays > 0 {
		go runCleanupLoop(store.stopCleanup, store.sweep)
	}

	return store, nil
}

const insertEntrySQL = `
	INSERT INTO usage (id, timestamp, request_id, endpoint, model, operation,
		stream, duration_ns, status_code, prompt_tokens, completion_tokens, total_tokens, error_type)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO NOTHING
`

// WriteBatch queues one insert per entry into a pgx batch and sends them
// in a single round trip. Conflicting IDs are skipped, and a failed row
// does not stop the remaining inserts.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertEntrySQL,
			e.ID, e.Timestamp.UTC(), e.RequestID, e.Endpoint, e.Model, e.Operation,
			e.Stream, e.DurationNs, e.StatusCode, e.PromptTokens, e.CompletionTokens,
			e.TotalTokens, e.ErrorType)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	var errs []error
	for _, e := range entries {
		if _, err := results.Exec(); err != nil {
			slog.Warn("failed to insert usage entry", "error", err, "id", e.ID)
			errs = append(errs, fmt.Errorf("insert %s: %w", e.ID, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to insert %d of %d usage entries: %w", len(errs), len(entries), errors.Join(errs...))
	}
	return nil
}

// Flush is a no-op: batch sends are synchronous.
func (s *PostgreSQLStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the retention sweep. The pool stays open; the storage
// layer owns it. Idempotent.
func (s *PostgreSQLStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

// sweep deletes entries older than the retention window.
func (s *PostgreSQLStore) sweep() {
	if s.retentionDays <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	result, err := s.pool.Exec(ctx, "DELETE FROM usage WHERE timestamp < $1", cutoff)
	if err != nil {
		slog.Error("failed to delete expired usage entries", "error", err)
		return
	}

	if result.RowsAffected() > 0 {
		slog.Info("expired usage entries removed", "deleted", result.RowsAffected())
	}
}
