package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// flushThreshold is the batch size that triggers an immediate write,
	// ahead of the periodic timer.
	flushThreshold = 100

	// writeTimeout bounds a single batch write to the store.
	writeTimeout = 30 * time.Second

	// drainTimeout bounds the final store flush during Close.
	drainTimeout = 10 * time.Second
)

// Logger buffers usage entries in memory and writes them to a Store in
// batches from a background goroutine. Write never blocks: when the buffer
// is full the entry is dropped and counted instead.
type Logger struct {
	store   Store
	config  Config
	buffer  chan *Entry
	done    chan struct{}
	wg      sync.WaitGroup
	writes  sync.WaitGroup // in-flight Write calls
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewLogger starts a Logger backed by the given store. Zero or negative
// buffer and interval settings fall back to the defaults.
func NewLogger(s Store, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		store:  s,
		config: cfg,
		buffer: make(chan *Entry, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.run()

	return l
}

// Write queues an entry for the next batch. Nil entries and writes after
// Close are ignored; a full buffer drops the entry with a warning.
func (l *Logger) Write(entry *Entry) {
	if entry == nil {
		return
	}
	if l.closed.Load() {
		return
	}

	// Register before re-checking closed: Close waits on this group before
	// the run loop closes the buffer channel, so a send that passes the
	// second check cannot race with that close.
	l.writes.Add(1)
	defer l.writes.Done()
	if l.closed.Load() {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		l.dropped.Add(1)
		slog.Warn("usage buffer full, dropping entry",
			"model", entry.Model,
			"operation", entry.Operation,
			"dropped_total", l.dropped.Load(),
		)
	}
}

// Dropped returns the number of entries discarded because the buffer was full.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Config returns the logger configuration after defaulting.
func (l *Logger) Config() Config {
	return l.config
}

// Close stops accepting entries, writes whatever is buffered, and closes
// the store. It is idempotent.
func (l *Logger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	// Let in-flight Write calls finish before the run loop tears down the
	// buffer channel.
	l.writes.Wait()

	close(l.done)
	l.wg.Wait()

	return l.store.Close()
}

// run is the flush loop. It accumulates entries into a batch and writes it
// when the batch is full or the interval elapses, then drains on shutdown.
func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, flushThreshold)

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= flushThreshold {
				l.writeBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.writeBatch(batch)
				batch = batch[:0]
			}

		case <-l.done:
			l.drain(batch)
			return
		}
	}
}

// drain empties the buffer after Close, writes the final batch, and gives
// the store a chance to flush its own pending state.
func (l *Logger) drain(batch []*Entry) {
	// closed is already set, so no new sends can start; close the channel
	// so the range below terminates.
	close(l.buffer)
	for entry := range l.buffer {
		batch = append(batch, entry)
	}
	if len(batch) > 0 {
		l.writeBatch(batch)
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := l.store.Flush(ctx); err != nil {
		slog.Error("failed to flush usage store", "error", err)
	}
}

// writeBatch writes one batch to the store. Failures are logged and the
// batch is dropped; usage recording never fails a request.
func (l *Logger) writeBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write usage batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger discards all entries. It stands in for a real Logger when
// usage tracking is disabled so callers never need a nil check.
type NoopLogger struct{}

// Write discards the entry.
func (l *NoopLogger) Write(_ *Entry) {}

// Config reports usage tracking as disabled.
func (l *NoopLogger) Config() Config {
	return Config{Enabled: false}
}

// Close does nothing.
func (l *NoopLogger) Close() error {
	return nil
}

// LoggerInterface is satisfied by both Logger and NoopLogger.
type LoggerInterface interface {
	Write(entry *Entry)
	Config() Config
	Close() error
}
