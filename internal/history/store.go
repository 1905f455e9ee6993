package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// Store persists conversation records in a SQLite database with an
// accompanying vec0 virtual table for embeddings. A Store owns its database
// connection; Close releases it.
type Store struct {
	db   *sql.DB
	dims int
}

// New opens (or creates) the history database at opts.Path and ensures the
// schema exists. The sqlite-vec extension is compiled into the driver, so
// the vector table is always available.
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("history database path is required")
	}
	dims := opts.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	dsn := opts.Path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		dsn = "file:" + opts.Path +
			"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(normal)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// The vec0 table keeps per-connection state; a single connection avoids
	// surprises with the in-memory DSN used by tests.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dims: dims}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL,
			endpoint TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL,
			prompt TEXT NOT NULL,
			reply TEXT NOT NULL,
			finish_reason TEXT NOT NULL DEFAULT '',
			prompt_hash TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_conversations_prompt_hash ON conversations(prompt_hash)",
		"CREATE INDEX IF NOT EXISTS idx_conversations_model ON conversations(model)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	// The vector table shares rowids with conversations; rows are inserted
	// explicitly by AddEmbedding, so records without embeddings are fine.
	_, err = s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_conversations USING vec0(
			embedding float[%d] distance_metric=cosine
		)
	`, s.dims))
	if err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Dimensions returns the embedding vector size of the semantic index.
func (s *Store) Dimensions() int {
	return s.dims
}

// Append records one exchange. Missing ID, CreatedAt, and PromptHash fields
// are filled in. When a record with the same prompt hash exists within the
// last minute, its reply is updated instead of inserting a new row, so
// re-running the same prompt doesn't flood the log; the record's ID is
// rewritten to the existing row's ID in that case.
func (s *Store) Append(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.PromptHash == "" {
		rec.PromptHash = HashPrompt(rec.Model, rec.Prompt)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := rec.CreatedAt.Add(-dupWindow).Format(time.RFC3339Nano)

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE prompt_hash = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT 1`,
		rec.PromptHash, cutoff,
	).Scan(&existingID)

	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET created_at = ?, reply = ?, finish_reason = ?,
				prompt_tokens = ?, completion_tokens = ? WHERE id = ?`,
			rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.Reply, rec.FinishReason,
			rec.PromptTokens, rec.CompletionTokens, existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to update history record: %w", err)
		}
		rec.ID = existingID

	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversations (id, created_at, endpoint, model, prompt, reply,
				finish_reason, prompt_hash, prompt_tokens, completion_tokens)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.Endpoint, rec.Model,
			rec.Prompt, rec.Reply, rec.FinishReason, rec.PromptHash,
			rec.PromptTokens, rec.CompletionTokens,
		)
		if err != nil {
			return fmt.Errorf("failed to insert history record: %w", err)
		}

	default:
		return fmt.Errorf("failed to check for duplicate prompt: %w", err)
	}

	return tx.Commit()
}

// Recent returns the most recent records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM conversations ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Search returns records whose prompt or reply contains the given text,
// newest first. Matching is a plain substring match; see SemanticSearch for
// embedding-based lookup.
func (s *Store) Search(ctx context.Context, text string, limit int) ([]*Record, error) {
	limit = clampLimit(limit)
	pattern := "%" + escapeLike(text) + "%"

	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM conversations
		 WHERE prompt LIKE ? ESCAPE '\' OR reply LIKE ? ESCAPE '\'
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// SemanticSearch returns the records whose embeddings are nearest to the
// given query embedding by cosine distance. Records without embeddings are
// never returned.
func (s *Store) SemanticSearch(ctx context.Context, embedding []float32, limit int) ([]*Result, error) {
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("embedding has %d dimensions, index expects %d", len(embedding), s.dims)
	}
	limit = clampLimit(limit)

	vec, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query embedding: %w", err)
	}

	// KNN runs against the vec0 table alone, then the matches are joined
	// back to their records.
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.created_at, c.endpoint, c.model, c.prompt, c.reply,
			c.finish_reason, c.prompt_hash, c.prompt_tokens, c.completion_tokens,
			knn.distance
		FROM (
			SELECT rowid, distance FROM vec_conversations
			WHERE embedding MATCH ? AND k = ?
			ORDER BY distance
		) AS knn
		JOIN conversations c ON c.rowid = knn.rowid
		ORDER BY knn.distance`,
		string(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run semantic search: %w", err)
	}
	defer rows.Close()

	results := make([]*Result, 0, limit)
	for rows.Next() {
		var r Result
		var created string
		if err := rows.Scan(&r.ID, &created, &r.Endpoint, &r.Model, &r.Prompt, &r.Reply,
			&r.FinishReason, &r.PromptHash, &r.PromptTokens, &r.CompletionTokens,
			&r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = parsed
		}
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// AddEmbedding attaches an embedding to an existing record, replacing any
// previous one. The record must already have been appended.
func (s *Store) AddEmbedding(ctx context.Context, id string, embedding []float32) error {
	if len(embedding) != s.dims {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(embedding), s.dims)
	}

	var rowid int64
	err := s.db.QueryRowContext(ctx, `SELECT rowid FROM conversations WHERE id = ?`, id).Scan(&rowid)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no history record with id %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up history record: %w", err)
	}

	vec, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin embedding transaction: %w", err)
	}
	defer tx.Rollback()

	// vec0 tables take delete-then-insert instead of upsert
	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_conversations WHERE rowid = ?`, rowid); err != nil {
		return fmt.Errorf("failed to clear previous embedding: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vec_conversations (rowid, embedding) VALUES (?, ?)`,
		rowid, string(vec)); err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}

	return tx.Commit()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const selectColumns = `SELECT id, created_at, endpoint, model, prompt, reply,
	finish_reason, prompt_hash, prompt_tokens, completion_tokens`

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	result := make([]*Record, 0)
	for rows.Next() {
		var r Record
		var created string
		if err := rows.Scan(&r.ID, &created, &r.Endpoint, &r.Model, &r.Prompt, &r.Reply,
			&r.FinishReason, &r.PromptHash, &r.PromptTokens, &r.CompletionTokens); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = parsed
		}
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return result, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// escapeLike escapes LIKE wildcards in user-entered search text so they
// match literally.
func escapeLike(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(text)
}
