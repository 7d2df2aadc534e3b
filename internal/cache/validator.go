package cache

import (
	"context"
	"log/slog"
	"time"

	"keyring/internal/core"
)

// KeyValidator probes a provider key and returns the models it can use.
type KeyValidator interface {
	ValidateKey(ctx context.Context, provider core.Provider, rawKey string) ([]string, error)
}

// Validator puts a Cache in front of a KeyValidator. Only successful probes
// are cached, so a rejected key is re-checked on the next request. Cache
// failures are logged and fall through to the provider.
type Validator struct {
	next  KeyValidator
	cache Cache
}

// NewValidator wraps next with c. A nil c disables caching.
func NewValidator(next KeyValidator, c Cache) *Validator {
	return &Validator{next: next, cache: c}
}

// ValidateKey returns cached models for the key or probes the provider.
func (v *Validator) ValidateKey(ctx context.Context, provider core.Provider, rawKey string) ([]string, error) {
	if v.cache == nil {
		return v.next.ValidateKey(ctx, provider, rawKey)
	}

	fp := Fingerprint(provider, rawKey)
	cached, err := v.cache.Get(ctx, fp)
	if err != nil {
		slog.Warn("validation cache read failed", "provider", provider, "error", err)
	}
	if cached != nil {
		return cached.Models, nil
	}

	models, err := v.next.ValidateKey(ctx, provider, rawKey)
	if err != nil {
		return nil, err
	}

	res := &ValidationResult{Models: models, ValidatedAt: time.Now().UTC()}
	if err := v.cache.Set(ctx, fp, res); err != nil {
		slog.Warn("validation cache write failed", "provider", provider, "error", err)
	}
	return models, nil
}
