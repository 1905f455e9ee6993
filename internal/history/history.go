// Package history provides a local conversation log with optional semantic
// search. Records live in a single SQLite file; when embeddings are added,
// similar prompts can be found by cosine distance via the sqlite-vec
// extension. Recording works without embeddings, in which case search falls
// back to substring matching.
package history

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// dupWindow is how far back Append looks for a record with the same prompt
// hash before deciding to update it instead of inserting a new row.
const dupWindow = time.Minute

// DefaultDimensions is the embedding vector size used when none is
// configured. It matches the all-MiniLM family of sentence embedding models.
const DefaultDimensions = 384

// Record is one prompt/reply exchange.
type Record struct {
	// ID is a unique identifier for this record (UUID)
	ID string `json:"id"`

	// CreatedAt is when the exchange completed
	CreatedAt time.Time `json:"created_at"`

	// Endpoint and Model identify where the reply came from
	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`

	// Prompt is the user message, Reply the assistant content
	Prompt string `json:"prompt"`
	Reply  string `json:"reply"`

	// FinishReason is the server's finish reason for the first choice
	FinishReason string `json:"finish_reason,omitempty"`

	// PromptHash identifies re-runs of the same prompt against the same
	// model. See HashPrompt.
	PromptHash string `json:"prompt_hash"`

	// Token counts as reported by the server
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// Result is a semantic search hit: a record plus its cosine distance from
// the query embedding (0 = identical direction, 2 = opposite).
type Result struct {
	Record
	Distance float64 `json:"distance"`
}

// HashPrompt returns the hex-encoded 64-bit hash identifying a
// (model, prompt) pair. The NUL separator keeps ("ab","c") and ("a","bc")
// from colliding.
func HashPrompt(model, prompt string) string {
	h := xxhash.New()
	_, _ = h.WriteString(model)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(prompt)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Options configures a history store.
type Options struct {
	// Path is the SQLite database file. ":memory:" opens a transient
	// in-memory database.
	Path string

	// Dimensions is the embedding vector size for the semantic index.
	// Defaults to DefaultDimensions. All embeddings added to one store
	// must have this length.
	Dimensions int
}
