package usage

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tsahiduek/ai-on-eks/internal/core"
)

// FromChatResponse builds a usage entry from a successful chat completion.
func FromChatResponse(resp *core.ChatResponse, requestID, endpoint string, duration time.Duration) *Entry {
	if resp == nil {
		return nil
	}
	return &Entry{
		ID:               uuid.New().String(),
		Timestamp:        time.Now().UTC(),
		RequestID:        requestID,
		Endpoint:         endpoint,
		Model:            resp.Model,
		Operation:        OpChat,
		DurationNs:       duration.Nanoseconds(),
		StatusCode:       http.StatusOK,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
}

// FromCompletionResponse builds a usage entry from a successful text completion.
func FromCompletionResponse(resp *core.CompletionResponse, requestID, endpoint string, duration time.Duration) *Entry {
	if resp == nil {
		return nil
	}
	return &Entry{
		ID:               uuid.New().String(),
		Timestamp:        time.Now().UTC(),
		RequestID:        requestID,
		Endpoint:         endpoint,
		Model:            resp.Model,
		Operation:        OpCompletion,
		DurationNs:       duration.Nanoseconds(),
		StatusCode:       http.StatusOK,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
}

// FromEmbeddings builds a usage entry from a successful embeddings call.
// Embeddings responses report prompt tokens only.
func FromEmbeddings(resp *core.EmbeddingsResponse, requestID, endpoint string, duration time.Duration) *Entry {
	if resp == nil {
		return nil
	}
	return &Entry{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		RequestID:    requestID,
		Endpoint:     endpoint,
		Model:        resp.Model,
		Operation:    OpEmbeddings,
		DurationNs:   duration.Nanoseconds(),
		StatusCode:   http.StatusOK,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
}

// FromError builds a usage entry for a failed request so failures show up
// in the usage log alongside successes. Token counts are zero; the error
// type and status are taken from the client error when available.
func FromError(err error, requestID, endpoint, model, operation string, duration time.Duration) *Entry {
	entry := &Entry{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		RequestID:  requestID,
		Endpoint:   endpoint,
		Model:      model,
		Operation:  operation,
		DurationNs: duration.Nanoseconds(),
	}

	var cerr *core.ClientError
	if errors.As(err, &cerr) {
		entry.ErrorType = string(cerr.Type)
		entry.StatusCode = cerr.StatusCode
		if cerr.Endpoint != "" {
			entry.Endpoint = cerr.Endpoint
		}
	} else if err != nil {
		entry.ErrorType = string(core.ErrorTypeConnection)
	}

	return entry
}
