// Package cache remembers successful provider key validations so repeated
// checks of the same key do not hit the provider again. Supports an in-process
// backend and Redis for multi-instance deployments.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"keyring/internal/core"
)

// DefaultTTL is how long a validation result is reused.
const DefaultTTL = 10 * time.Minute

// ValidationResult is the cached outcome of a successful key probe.
type ValidationResult struct {
	Models      []string  `json:"models"`
	ValidatedAt time.Time `json:"validated_at"`
}

// Cache stores validation results by key fingerprint.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached result, or nil, nil when there is none.
	Get(ctx context.Context, fingerprint string) (*ValidationResult, error)

	// Set stores result for the cache's TTL.
	Set(ctx context.Context, fingerprint string, result *ValidationResult) error

	// Close releases any resources held by the cache.
	Close() error
}

// Fingerprint identifies a (provider, key) pair without retaining the key.
func Fingerprint(provider core.Provider, rawKey string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(rawKey))
	return hex.EncodeToString(h.Sum(nil))
}
