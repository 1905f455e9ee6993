package usage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockStore implements Store for testing
type mockStore struct {
	entries []*Entry
	mu      sync.Mutex
	closed  bool
}

func (m *mockStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockStore) Flush(ctx context.Context) error {
	return nil
}

func (m *mockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockStore) getEntries() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*Entry, len(m.entries))
	copy(result, m.entries)
	return result
}

func TestLogger(t *testing.T) {
	store := &mockStore{}
	cfg := Config{
		Enabled:       true,
		BufferSize:    100,
		FlushInterval: 100 * time.Millisecond,
	}

	logger := NewLogger(store, cfg)

	// Write some entries
	for i := 0; i < 5; i++ {
		logger.Write(&Entry{
			ID:               fmt.Sprintf("test-%d", i),
			RequestID:        fmt.Sprintf("req-%d", i),
			Model:            "meta-llama/Llama-3-8B",
			Operation:        OpChat,
			PromptTokens:     100,
			CompletionTokens: 50,
			TotalTokens:      150,
		})
	}

	// Wait for flush interval
	time.Sleep(200 * time.Millisecond)

	// Check entries were written
	entries := store.getEntries()
	if len(entries) != 5 {
		t.Errorf("expected 5 entries, got %d", len(entries))
	}

	// Close logger
	if err := logger.Close(); err != nil {
		t.Errorf("logger close error: %v", err)
	}

	// Verify store was closed
	if !store.closed {
		t.Error("store should be closed")
	}
}

func TestLoggerClose(t *testing.T) {
	store := &mockStore{}
	cfg := Config{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: 1 * time.Hour, // Long interval so flush is triggered by close
	}

	logger := NewLogger(store, cfg)

	// Write entries
	for i := 0; i < 10; i++ {
		logger.Write(&Entry{
			ID:        fmt.Sprintf("test-%d", i),
			RequestID: fmt.Sprintf("req-%d", i),
		})
	}

	// Close immediately - should flush pending entries
	if err := logger.Close(); err != nil {
		t.Errorf("logger close error: %v", err)
	}

	// Verify all entries were flushed
	entries := store.getEntries()
	if len(entries) != 10 {
		t.Errorf("expected 10 entries after close, got %d", len(entries))
	}
}

func TestLoggerCloseIdempotent(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{Enabled: true, BufferSize: 10, FlushInterval: time.Hour})

	if err := logger.Close(); err != nil {
		t.Fatalf("first close error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second close error: %v", err)
	}

	// Writes after close are silently discarded
	logger.Write(&Entry{ID: "after-close"})
	if got := len(store.getEntries()); got != 0 {
		t.Errorf("expected 0 entries after close, got %d", got)
	}
}

func TestLoggerBufferFull(t *testing.T) {
	store := &mockStore{}
	cfg := Config{
		Enabled:       true,
		BufferSize:    2, // Very small buffer
		FlushInterval: 1 * time.Hour,
	}

	logger := NewLogger(store, cfg)
	defer logger.Close()

	// Try to write more than buffer size
	for i := 0; i < 10; i++ {
		logger.Write(&Entry{ID: fmt.Sprintf("test-%d", i)})
	}

	// The flush loop may drain a few while we write, but with a buffer of 2
	// most of the 10 entries must have been dropped.
	if dropped := logger.Dropped(); dropped == 0 {
		t.Error("expected dropped entries with full buffer, got 0")
	}
}

func TestLoggerNilEntry(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{Enabled: true, BufferSize: 10, FlushInterval: time.Hour})
	defer logger.Close()

	// Nil entries are ignored, not queued
	logger.Write(nil)

	if err := logger.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if got := len(store.getEntries()); got != 0 {
		t.Errorf("expected 0 entries, got %d", got)
	}
}

func TestNoopLogger(t *testing.T) {
	logger := &NoopLogger{}

	// Write should not panic
	logger.Write(&Entry{ID: "test"})

	// Config should show disabled
	cfg := logger.Config()
	if cfg.Enabled {
		t.Error("NoopLogger should report disabled")
	}

	// Close should not error
	if err := logger.Close(); err != nil {
		t.Errorf("NoopLogger close error: %v", err)
	}
}
