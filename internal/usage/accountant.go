package usage

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// StreamAccountant accumulates usage for one streaming chat completion.
// It observes raw SSE data payloads as the stream reader scans them and
// emits a single usage entry when closed. Payload inspection uses gjson
// path lookups, so chunks are never unmarshaled a second time on the
// read path.
//
// Servers that report stream usage put it on the final chunk; earlier
// chunks carry "usage":null or omit the field entirely. The accountant
// keeps a copy of the last payload whose usage field is an actual object.
type StreamAccountant struct {
	logger    LoggerInterface
	requestID string
	endpoint  string
	model     string
	start     time.Time
	final     []byte // copy of the last payload carrying a usage object
	finish    string
	closed    bool
}

// NewStreamAccountant creates an accountant for a stream that is starting
// now. Attach Observe to the stream reader, then Close after the stream
// is drained.
func NewStreamAccountant(logger LoggerInterface, requestID, endpoint, model string) *StreamAccountant {
	return &StreamAccountant{
		logger:    logger,
		requestID: requestID,
		endpoint:  endpoint,
		model:     model,
		start:     time.Now(),
	}
}

// Observe inspects one raw SSE data payload. The payload is only valid
// for the duration of the call; the accountant copies what it keeps.
func (a *StreamAccountant) Observe(payload []byte) {
	if a.closed || len(payload) == 0 {
		return
	}

	if r := gjson.GetBytes(payload, "choices.0.finish_reason"); r.Type == gjson.String && r.Str != "" {
		a.finish = r.Str
	}
	if gjson.GetBytes(payload, "usage").IsObject() {
		a.final = append(a.final[:0], payload...)
	}
}

// Close emits the usage entry for the stream. Idempotent; only the first
// call writes.
func (a *StreamAccountant) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	entry := &Entry{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		RequestID:  a.requestID,
		Endpoint:   a.endpoint,
		Model:      a.model,
		Operation:  OpChat,
		Stream:     true,
		DurationNs: time.Since(a.start).Nanoseconds(),
		StatusCode: http.StatusOK,
	}

	if len(a.final) > 0 {
		u := gjson.GetBytes(a.final, "usage")
		entry.PromptTokens = int(u.Get("prompt_tokens").Int())
		entry.CompletionTokens = int(u.Get("completion_tokens").Int())
		entry.TotalTokens = int(u.Get("total_tokens").Int())
		if m := gjson.GetBytes(a.final, "model"); m.Str != "" {
			entry.Model = m.Str
		}
	}

	// A stream that never delivered a finish reason was cut off mid-flight;
	// mark the entry so truncated streams are visible in the usage log.
	if a.finish == "" {
		entry.ErrorType = "incomplete_stream"
	}

	if a.logger != nil {
		a.logger.Write(entry)
	}
	return nil
}
