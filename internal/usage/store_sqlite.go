package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite allows at most 999 bound parameters per statement.
const (
	maxSQLiteParams      = 999
	columnsPerUsageEntry = 11
	maxEntriesPerBatch   = maxSQLiteParams / columnsPerUsageEntry
)

// SQLiteStore implements UsageStore and UsageReader for SQLite.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the usage table if needed and starts retention
// cleanup when retentionDays > 0.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_entries (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_usage_user_timestamp ON usage_entries(user_id, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_entries(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_usage_request_id ON usage_entries(request_id)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// WriteBatch inserts entries in chunks that fit the parameter limit.
// Entries whose ID already exists are skipped.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*UsageEntry) error {
	for i := 0; i < len(entries); i += maxEntriesPerBatch {
		chunk := entries[i:min(i+maxEntriesPerBatch, len(entries))]

		placeholders := make([]string, len(chunk))
		values := make([]any, 0, len(chunk)*columnsPerUsageEntry)
		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
			values = append(values,
				e.ID, e.RequestID, e.UserID, e.ProviderID, e.Timestamp.UnixMilli(),
				e.Provider, e.Model, e.Endpoint,
				e.InputTokens, e.OutputTokens, e.TotalTokens,
			)
		}

		query := `INSERT OR IGNORE INTO usage_entries (id, request_id, user_id, provider_id, timestamp,
			provider, model, endpoint, input_tokens, output_tokens, total_tokens) VALUES ` +
			strings.Join(placeholders, ",")

		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert usage batch %d: %w", i/maxEntriesPerBatch, err)
		}
	}
	return nil
}

// Summary aggregates the user's entries by provider.
func (s *SQLiteStore) Summary(ctx context.Context, userID string, since time.Time) (*Summary, error) {
	var sinceMillis int64
	if !since.IsZero() {
		sinceMillis = since.UnixMilli()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		FROM usage_entries
		WHERE user_id = ? AND timestamp >= ?
		GROUP BY provider
		ORDER BY provider`, userID, sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	defer rows.Close()

	var out []ProviderUsage
	for rows.Next() {
		var p ProviderUsage
		if err := rows.Scan(&p.Provider, &p.Requests, &p.InputTokens, &p.OutputTokens, &p.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage summary: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage summary rows: %w", err)
	}
	return summarize(out), nil
}

// Flush is a no-op; writes are synchronous.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. The database is owned by the storage layer.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *SQLiteStore) cleanup() {
	res, err := s.db.Exec("DELETE FROM usage_entries WHERE timestamp < ?", retentionCutoff(s.retentionDays).UnixMilli())
	if err != nil {
		logCleanup(0, err)
		return
	}
	n, err := res.RowsAffected()
	logCleanup(n, err)
}
