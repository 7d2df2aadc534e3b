package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"keyring/internal/core"
)

const keyColumns = `id, user_id, provider, secret, is_valid, models, last_validated, created_at, updated_at`

func scanKey(row interface{ Scan(...any) error }) (*core.Credential, error) {
	var (
		c                core.Credential
		provider, models string
		lastValidated    sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.UserID, &provider, &c.Secret, &c.IsValid, &models, &lastValidated, &created, &updated); err != nil {
		return nil, wrapNotFound(err)
	}
	c.Provider = core.Provider(provider)
	if err := json.Unmarshal([]byte(models), &c.Models); err != nil {
		return nil, fmt.Errorf("failed to decode models for %s: %w", provider, err)
	}
	if c.Models == nil {
		c.Models = []string{}
	}
	c.LastValidated = fromNullMillis(lastValidated)
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

// UpsertKey stores secret for (userID, provider). The key is marked valid and
// its validation time reset. Cached models are kept on update.
func (s *Store) UpsertKey(ctx context.Context, userID string, provider core.Provider, secret string) (*core.Credential, error) {
	_, ms := s.nowMillis()
	_, err := s.exec(ctx, `
		INSERT INTO api_keys (id, user_id, provider, secret, is_valid, models, last_validated, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '[]', ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			secret = excluded.secret,
			is_valid = excluded.is_valid,
			last_validated = excluded.last_validated,
			updated_at = excluded.updated_at`,
		uuid.NewString(), userID, string(provider), secret, true, ms, ms, ms)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert api key: %w", err)
	}
	return s.GetKey(ctx, userID, provider)
}

// GetKey returns the stored credential for (userID, provider).
func (s *Store) GetKey(ctx context.Context, userID string, provider core.Provider) (*core.Credential, error) {
	return scanKey(s.queryRow(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE user_id = ? AND provider = ?`, userID, string(provider)))
}

// ListKeys returns the user's credentials ordered by provider.
func (s *Store) ListKeys(ctx context.Context, userID string) ([]core.Credential, error) {
	rows, err := s.query(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE user_id = ? ORDER BY provider`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]core.Credential, 0)
	for rows.Next() {
		c, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *c)
	}
	return keys, rows.Err()
}

// DeleteKey removes the credential for (userID, provider).
func (s *Store) DeleteKey(ctx context.Context, userID string, provider core.Provider) error {
	return affected(s.exec(ctx, `DELETE FROM api_keys WHERE user_id = ? AND provider = ?`, userID, string(provider)))
}

// UpdateKeyModels replaces the cached model list and stamps the validation time.
func (s *Store) UpdateKeyModels(ctx context.Context, userID string, provider core.Provider, models []string) (*core.Credential, error) {
	if models == nil {
		models = []string{}
	}
	raw, err := json.Marshal(models)
	if err != nil {
		return nil, fmt.Errorf("failed to encode models: %w", err)
	}
	_, ms := s.nowMillis()
	err = affected(s.exec(ctx,
		`UPDATE api_keys SET models = ?, last_validated = ?, updated_at = ? WHERE user_id = ? AND provider = ?`,
		string(raw), ms, ms, userID, string(provider)))
	if err != nil {
		return nil, err
	}
	return s.GetKey(ctx, userID, provider)
}
