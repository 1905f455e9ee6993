package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/tsahiduek/ai-on-eks/internal/storage"
)

// ModelTotals holds aggregated token counts for one model.
type ModelTotals struct {
	Model            string `json:"model"`
	Requests         int    `json:"requests"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Errors           int    `json:"errors"`
}

// Reader provides read access to recorded usage for the usage subcommand.
type Reader interface {
	// Totals returns per-model aggregates for entries recorded at or after
	// since. A zero since returns all-time totals. Results are sorted by
	// total tokens descending.
	Totals(ctx context.Context, since time.Time) ([]ModelTotals, error)

	// Recent returns the most recent entries, newest first.
	Recent(ctx context.Context, limit int) ([]*Entry, error)
}

// NewReader creates a Reader for the given storage backend.
func NewReader(store storage.Storage) (Reader, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteReader(store.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLReader(store.PostgreSQLPool())
	case storage.TypeMongoDB:
		return NewMongoDBReader(store.MongoDatabase())
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

// clampLimit normalises the Recent limit: defaults to 20, capped at 500.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 500 {
		return 500
	}
	return limit
}
