package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements UsageStore and UsageReader on a pgx pool.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

const insertUsageSQL = `
	INSERT INTO usage_entries (id, request_id, user_id, provider_id, timestamp,
		provider, model, endpoint, input_tokens, output_tokens, total_tokens)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO NOTHING`

// NewPostgreSQLStore creates the usage table if needed and starts retention
// cleanup when retentionDays > 0.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS usage_entries (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
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
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// WriteBatch sends all inserts in one pgx batch inside a transaction.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, entries []*UsageEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertUsageSQL,
			e.ID, e.RequestID, e.UserID, e.ProviderID, e.Timestamp,
			e.Provider, e.Model, e.Endpoint,
			e.InputTokens, e.OutputTokens, e.TotalTokens,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert %d usage entries: %w", len(entries), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Summary aggregates the user's entries by provider.
func (s *PostgreSQLStore) Summary(ctx context.Context, userID string, since time.Time) (*Summary, error) {
	if since.IsZero() {
		since = time.Unix(0, 0)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT provider, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		FROM usage_entries
		WHERE user_id = $1 AND timestamp >= $2
		GROUP BY provider
		ORDER BY provider`, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ProviderUsage, error) {
		var p ProviderUsage
		err := row.Scan(&p.Provider, &p.Requests, &p.InputTokens, &p.OutputTokens, &p.TotalTokens)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan usage summary: %w", err)
	}
	return summarize(out), nil
}

// Flush is a no-op; writes are synchronous.
func (s *PostgreSQLStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. The pool is owned by the storage layer.
func (s *PostgreSQLStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *PostgreSQLStore) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	tag, err := s.pool.Exec(ctx, "DELETE FROM usage_entries WHERE timestamp < $1", retentionCutoff(s.retentionDays))
	logCleanup(tag.RowsAffected(), err)
}
