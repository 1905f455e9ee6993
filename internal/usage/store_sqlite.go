package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite caps bindable parameters at 999 per statement
// (SQLITE_MAX_VARIABLE_NUMBER). At 13 columns per entry that allows
// 76 rows per INSERT, so larger batches are split.
const (
	maxSQLiteParams    = 999
	columnsPerEntry    = 13
	maxEntriesPerBatch = maxSQLiteParams / columnsPerEntry // 76 entries
)

// SQLiteStore implements Store on a local SQLite database. Retention is
// enforced by a periodic delete sweep because SQLite has no TTL support.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the usage table and indexes if missing, applies
// column migrations, and starts the retention sweep when retentionDays
// is positive.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usage (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			endpoint TEXT NOT NULL,
			model TEXT NOT NULL,
			operation TEXT NOT NULL,
			stream INTEGER NOT NULL DEFAULT 0,
			duration_ns INTEGER NOT NULL DEFAULT 0,
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

	// Columns added after the first release (idempotent: SQLite lacks
	// IF NOT EXISTS for ALTER TABLE ADD COLUMN)
	migrations := []string{
		"ALTER TABLE usage ADD COLUMN status_code INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE usage ADD COLUMN error_type TEXT NOT NULL DEFAULT ''",
	}
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			// "duplicate column name" means the column already exists
			if !strings.Contains(err.Error(), "duplicate column") {
				return nil, fmt.Errorf("failed to run migration %q: %w", migration, err)
			}
		}
	}

	// Indexes backing the reader's time-window and per-model queries.
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_usage_model ON usage(model)",
		"CREATE INDEX IF NOT EXISTS idx_usage_request_id ON usage(request_id)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	if retentionDays > 0 {
		go runCleanupLoop(store.stopCleanup, store.sweep)
	}

	return store, nil
}

// WriteBatch inserts entries as multi-row INSERTs, chunked to fit the
// parameter limit. Duplicate IDs are ignored rather than rejected, so a
// retried flush cannot fail on rows that already landed.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	for i := 0; i < len(entries); i += maxEntriesPerBatch {
		end := i + maxEntriesPerBatch
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]interface{}, 0, len(chunk)*columnsPerEntry)

		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

			values = append(values,
				e.ID,
				e.Timestamp.UTC().Format(time.RFC3339Nano),
				e.RequestID,
				e.Endpoint,
				e.Model,
				e.Operation,
				e.Stream,
				e.DurationNs,
				e.StatusCode,
				e.PromptTokens,
				e.CompletionTokens,
				e.TotalTokens,
				e.ErrorType,
			)
		}

		query := `INSERT OR IGNORE INTO usage (id, timestamp, request_id, endpoint, model, operation,
			stream, duration_ns, status_code, prompt_tokens, completion_tokens, total_tokens,
			error_type) VALUES ` +
			strings.Join(placeholders, ",")

		_, err := s.db.ExecContext(ctx, query, values...)
		if err != nil {
			return fmt.Errorf("failed to insert usage batch %d: %w", i/maxEntriesPerBatch, err)
		}
	}

	return nil
}

// Flush is a no-op: inserts are synchronous.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the retention sweep. The *sql.DB stays open; the storage
// layer owns it. Idempotent.
func (s *SQLiteStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

// sweep deletes entries older than the retention window.
func (s *SQLiteStore) sweep() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC().Format(time.RFC3339Nano)

	result, err := s.db.Exec("DELETE FROM usage WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to delete expired usage entries", "error", err)
		return
	}

	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		slog.Info("expired usage entries removed", "deleted", deleted)
	}
}
