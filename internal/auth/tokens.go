// Package auth issues and verifies the JWT access and refresh tokens used by
// the API, and hashes account passwords.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"keyring/internal/store"
)

// Token lifetimes.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// ErrInvalidToken is returned for any token that fails verification,
// has expired, or has already been revoked.
var ErrInvalidToken = errors.New("invalid token")

// TokenStore persists issued refresh tokens so they can be rotated and revoked.
// Lookup and revoke report a missing token with store.ErrNotFound.
type TokenStore interface {
	SaveRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error
	// LookupRefreshToken returns the owner of a stored, unexpired token.
	LookupRefreshToken(ctx context.Context, token string) (string, error)
	// RevokeRefreshToken deletes a token and fails if it was not stored.
	RevokeRefreshToken(ctx context.Context, token string) error
}

// Tokens is an issued access/refresh pair.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type claims struct {
	UserID string `json:"userId"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens. Access and refresh tokens use separate
// HMAC secrets.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	store         TokenStore
	now           func() time.Time
}

// NewIssuer creates an Issuer. Both secrets are required.
func NewIssuer(accessSecret, refreshSecret string, tokens TokenStore) (*Issuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("JWT secrets are required")
	}
	if tokens == nil {
		return nil, errors.New("token store is required")
	}
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		store:         tokens,
		now:           time.Now,
	}, nil
}

// Issue creates a new token pair for userID and stores the refresh token.
func (i *Issuer) Issue(ctx context.Context, userID string) (*Tokens, error) {
	now := i.now()

	access, err := i.sign(userID, tokenTypeAccess, now, AccessTokenTTL, i.accessSecret)
	if err != nil {
		return nil, err
	}
	refreshExp := now.Add(RefreshTokenTTL)
	refresh, err := i.sign(userID, tokenTypeRefresh, now, RefreshTokenTTL, i.refreshSecret)
	if err != nil {
		return nil, err
	}

	if err := i.store.SaveRefreshToken(ctx, refresh, userID, refreshExp); err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *Issuer) sign(userID, typ string, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	c := claims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (i *Issuer) parse(token, typ string, secret []byte) (string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Type != typ || c.UserID == "" {
		return "", ErrInvalidToken
	}
	return c.UserID, nil
}

// VerifyAccess returns the user ID of a valid access token.
func (i *Issuer) VerifyAccess(token string) (string, error) {
	return i.parse(token, tokenTypeAccess, i.accessSecret)
}

// Refresh verifies a refresh token, revokes it and issues a new pair.
// A token can be exchanged once; a second exchange fails with ErrInvalidToken.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	userID, err := i.parse(refreshToken, tokenTypeRefresh, i.refreshSecret)
	if err != nil {
		return nil, err
	}

	owner, err := i.store.LookupRefreshToken(ctx, refreshToken)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrInvalidToken
	case err != nil:
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	case owner != userID:
		return nil, ErrInvalidToken
	}

	// Losing the revoke race means another request already rotated this token.
	if err := i.store.RevokeRefreshToken(ctx, refreshToken); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return i.Issue(ctx, userID)
}

// Revoke deletes a refresh token. Unknown tokens are ignored.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) {
	if err := i.store.RevokeRefreshToken(ctx, refreshToken); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("failed to revoke refresh token", "error", err)
	}
}
