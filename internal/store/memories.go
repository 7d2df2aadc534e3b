package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"keyring/internal/memory"
)

const memoryColumns = `id, user_id, entry_key, entry_value, created_at, updated_at`

// ListMemory returns the user's entries, most recently updated first.
// limit <= 0 returns all of them.
func (s *Store) ListMemory(ctx context.Context, userID string, limit int) ([]memory.Entry, error) {
	q := `SELECT ` + memoryColumns + ` FROM memory_entries WHERE user_id = ? ORDER BY updated_at DESC, entry_key`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory: %w", err)
	}
	defer rows.Close()

	entries := make([]memory.Entry, 0)
	for rows.Next() {
		var (
			e                memory.Entry
			created, updated int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Key, &e.Value, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan memory entry: %w", err)
		}
		e.CreatedAt = fromMillis(created)
		e.UpdatedAt = fromMillis(updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetMemory upserts key for userID after checking the size budget against the
// user's current entries. Budget overflow returns a *memory.BudgetError.
func (s *Store) SetMemory(ctx context.Context, userID, key, value string) (*memory.Entry, error) {
	existing, err := s.ListMemory(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	if err := memory.CheckBudget(existing, key, value); err != nil {
		return nil, err
	}

	_, ms := s.nowMillis()
	_, err = s.exec(ctx, `
		INSERT INTO memory_entries (id, user_id, entry_key, entry_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, entry_key) DO UPDATE SET
			entry_value = excluded.entry_value,
			updated_at = excluded.updated_at`,
		uuid.NewString(), userID, key, value, ms, ms)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert memory entry: %w", err)
	}

	var (
		e                memory.Entry
		created, updated int64
	)
	err = s.queryRow(ctx, `SELECT `+memoryColumns+` FROM memory_entries WHERE user_id = ? AND entry_key = ?`, userID, key).
		Scan(&e.ID, &e.UserID, &e.Key, &e.Value, &created, &updated)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return &e, nil
}

// DeleteMemory removes one entry.
func (s *Store) DeleteMemory(ctx context.Context, userID, key string) error {
	return affected(s.exec(ctx, `DELETE FROM memory_entries WHERE user_id = ? AND entry_key = ?`, userID, key))
}

// ClearMemory removes all of the user's entries.
func (s *Store) ClearMemory(ctx context.Context, userID string) error {
	_, err := s.exec(ctx, `DELETE FROM memory_entries WHERE user_id = ?`, userID)
	return err
}
