package store

import (
	"context"
	"fmt"
	"time"
)

// SaveRefreshToken records an issued refresh token.
func (s *Store) SaveRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, ms := s.nowMillis()
	_, err := s.exec(ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		token, userID, expiresAt.UnixMilli(), ms)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// LookupRefreshToken returns the owner of a stored, unexpired token.
func (s *Store) LookupRefreshToken(ctx context.Context, token string) (string, error) {
	_, ms := s.nowMillis()
	var userID string
	err := s.queryRow(ctx,
		`SELECT user_id FROM refresh_tokens WHERE token = ? AND expires_at > ?`, token, ms).Scan(&userID)
	if err != nil {
		return "", wrapNotFound(err)
	}
	return userID, nil
}

// RevokeRefreshToken deletes a token. It returns ErrNotFound when the token was
// not stored, which lets rotation detect a concurrent reuse.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	return affected(s.exec(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, token))
}

// PurgeExpiredTokens deletes expired refresh tokens and reports how many were removed.
func (s *Store) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	_, ms := s.nowMillis()
	res, err := s.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, ms)
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	return res.RowsAffected()
}
