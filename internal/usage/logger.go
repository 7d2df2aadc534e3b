package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// BatchFlushThreshold is the batch size that triggers a write without waiting for the ticker.
const BatchFlushThreshold = 100

// Recorder accepts usage entries. Both Logger and NoopLogger implement it.
type Recorder interface {
	Write(entry *UsageEntry)
	Close() error
}

// Logger buffers entries in a channel and writes them to a UsageStore in
// batches, either when BatchFlushThreshold is reached or on every FlushInterval.
type Logger struct {
	store    UsageStore
	buffer   chan *UsageEntry
	done     chan struct{}
	wg       sync.WaitGroup
	inflight sync.WaitGroup
	interval time.Duration
	closed   atomic.Bool
}

// NewLogger creates a Logger and starts its flush goroutine.
func NewLogger(store UsageStore, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		store:    store,
		buffer:   make(chan *UsageEntry, cfg.BufferSize),
		done:     make(chan struct{}),
		interval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.run()

	return l
}

// Write queues entry without blocking. Entries are dropped with a warning
// when the buffer is full, and silently after Close.
func (l *Logger) Write(entry *UsageEntry) {
	if entry == nil || l.closed.Load() {
		return
	}

	l.inflight.Add(1)
	defer l.inflight.Done()

	// Close may have started between the first check and Add.
	if l.closed.Load() {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		slog.Warn("usage buffer full, dropping entry",
			"request_id", entry.RequestID,
			"user_id", entry.UserID,
			"provider", entry.Provider,
		)
	}
}

// Close drains the buffer, writes what is left and closes the store.
// It is safe to call more than once.
func (l *Logger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	l.inflight.Wait()
	close(l.done)
	l.wg.Wait()

	return l.store.Close()
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	batch := make([]*UsageEntry, 0, BatchFlushThreshold)
	flush := func() {
		if len(batch) > 0 {
			l.writeBatch(batch)
			batch = make([]*UsageEntry, 0, BatchFlushThreshold)
		}
	}

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= BatchFlushThreshold {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-l.done:
			close(l.buffer)
			for entry := range l.buffer {
				batch = append(batch, entry)
			}
			flush()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				slog.Error("failed to flush usage store", "error", err)
			}
			cancel()
			return
		}
	}
}

func (l *Logger) writeBatch(batch []*UsageEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write usage batch", "error", err, "count", len(batch))
	}
}

// NoopLogger discards entries; used when usage tracking is disabled.
type NoopLogger struct{}

func (NoopLogger) Write(*UsageEntry) {}

func (NoopLogger) Close() error { return nil }
