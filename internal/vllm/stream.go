package vllm

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/tsahiduek/ai-on-eks/internal/core"
)

// maxSSELineSize bounds a single SSE line (1 MiB). Chunks carrying long
// content deltas stay far below this.
const maxSSELineSize = 1024 * 1024

// StreamReader yields chat completion chunks from an SSE stream.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//	\n
//
// Malformed chunks are logged and skipped.
type StreamReader struct {
	endpoint string
	body     io.ReadCloser
	scanner  *bufio.Scanner
	observe  func(payload []byte)
	err      error
	done     bool
}

func newStreamReader(endpoint string, body io.ReadCloser) *StreamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &StreamReader{
		endpoint: endpoint,
		body:     body,
		scanner:  scanner,
	}
}

// SetObserver registers a function called with each raw data payload
// before it is parsed, the [DONE] sentinel excluded. Usage accounting
// attaches here so chunks are not unmarshaled twice on the read path.
// The payload is only valid for the duration of the call.
func (s *StreamReader) SetObserver(fn func(payload []byte)) {
	s.observe = fn
}

// Recv returns the next chunk from the stream. It returns io.EOF after the
// [DONE] sentinel or when the server closes the stream.
func (s *StreamReader) Recv() (*core.ChatCompletionChunk, error) {
	if s.done {
		return nil, io.EOF
	}
	if s.err != nil {
		return nil, s.err
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// SSE lines that don't start with "data: " are ignored
		// (empty lines, comments starting with ":").
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		if payload == "[DONE]" {
			s.done = true
			return nil, io.EOF
		}

		if s.observe != nil {
			s.observe([]byte(payload))
		}

		var chunk core.ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed stream chunk",
				"error", err.Error(),
				"data", truncate(payload, 200),
			)
			continue
		}
		return &chunk, nil
	}

	if err := s.scanner.Err(); err != nil {
		s.err = core.NewConnectionError(s.endpoint, err)
		return nil, s.err
	}

	// Stream ended without [DONE]; treat as a normal end.
	s.done = true
	return nil, io.EOF
}

// Close closes the underlying response body. Safe to call after Recv has
// returned io.EOF.
func (s *StreamReader) Close() error {
	return s.body.Close()
}

// truncate limits a string to maxLen characters for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
