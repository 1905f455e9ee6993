// Package usage provides per-request token accounting for the inference
// client. Entries are buffered in memory and flushed to a storage backend
// asynchronously so the request path never blocks on a database write.
package usage

import (
	"context"
	"time"
)

// Operation labels for usage entries.
const (
	OpChat       = "chat"
	OpCompletion = "completion"
	OpEmbeddings = "embeddings"
)

// Store defines the interface for usage storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch writes multiple usage entries to storage.
	// This is called by the Logger when flushing buffered entries.
	WriteBatch(ctx context.Context, entries []*Entry) error

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases resources and flushes pending writes.
	Close() error
}

// Entry represents a single token usage record.
type Entry struct {
	// ID is a unique identifier for this usage entry (UUID)
	ID string `json:"id" bson:"_id"`

	// Timestamp is when the request completed
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// RequestID is the caller-supplied correlation ID, if any
	// (forwarded to the server as X-Request-Id)
	RequestID string `json:"request_id,omitempty" bson:"request_id"`

	// Request context
	Endpoint  string `json:"endpoint" bson:"endpoint"`
	Model     string `json:"model" bson:"model"`
	Operation string `json:"operation" bson:"operation"`
	Stream    bool   `json:"stream,omitempty" bson:"stream"`

	// DurationNs is the wall-clock request duration in nanoseconds
	DurationNs int64 `json:"duration_ns" bson:"duration_ns"`

	// StatusCode is the HTTP status of the response, or 0 when the
	// request never reached the server
	StatusCode int `json:"status_code" bson:"status_code"`

	// Token counts as reported by the server
	PromptTokens     int `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" bson:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" bson:"total_tokens"`

	// ErrorType classifies a failed request (empty on success)
	ErrorType string `json:"error_type,omitempty" bson:"error_type"`
}

// Config holds usage tracking configuration
type Config struct {
	// Enabled controls whether usage tracking is active
	Enabled bool

	// BufferSize is the number of usage entries to buffer before flushing
	BufferSize int

	// FlushInterval is how often to flush buffered entries
	FlushInterval time.Duration

	// RetentionDays is how long to keep usage data (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 30,
	}
}
