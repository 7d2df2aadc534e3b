// Package store persists users, provider keys, chat histories, memory entries
// and refresh tokens on SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"keyring/internal/storage"
)

var (
	// ErrNotFound is returned when the requested row does not exist for the user.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// Timestamps are stored as unix milliseconds so the same schema and queries
// run on both backends.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		bio TEXT,
		avatar_url TEXT,
		password_hash TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider TEXT NOT NULL,
		secret TEXT NOT NULL,
		is_valid BOOLEAN NOT NULL DEFAULT TRUE,
		models TEXT NOT NULL DEFAULT '[]',
		last_validated BIGINT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE (user_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_histories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		messages TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		deleted_at BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_histories_user_updated ON chat_histories(user_id, updated_at)`,
	`CREATE TABLE IF NOT EXISTS memory_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		entry_key TEXT NOT NULL,
		entry_value TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE (user_id, entry_key)
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id)`,
}

// Store is the relational data access layer. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect storage.Dialect
	now     func() time.Time
}

// New creates a Store on a relational storage backend and ensures the tables exist.
func New(ctx context.Context, s storage.Storage) (*Store, error) {
	if s == nil || s.DB() == nil {
		return nil, fmt.Errorf("store requires a sqlite or postgresql storage")
	}

	st := &Store{db: s.DB(), dialect: s.Dialect(), now: time.Now}
	for _, stmt := range schema {
		if _, err := st.db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return st, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

// nowMillis returns the current time truncated to the stored precision.
func (s *Store) nowMillis() (time.Time, int64) {
	ms := s.now().UnixMilli()
	return time.UnixMilli(ms).UTC(), ms
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// affected maps a zero-row write to ErrNotFound.
func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
