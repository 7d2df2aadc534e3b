package cache

import (
	"context"
	"sync"
	"time"
)

// LocalCache implements Cache in process memory.
// This is suitable for single-instance deployments.
type LocalCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]localEntry
	now     func() time.Time
}

type localEntry struct {
	result    ValidationResult
	expiresAt time.Time
}

// NewLocalCache creates an in-memory cache whose entries live for ttl.
func NewLocalCache(ttl time.Duration) *LocalCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LocalCache{
		ttl:     ttl,
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached result. Expired entries are removed on read.
func (c *LocalCache) Get(_ context.Context, fingerprint string) (*ValidationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, fingerprint)
		return nil, nil
	}

	res := e.result
	res.Models = append([]string(nil), e.result.Models...)
	return &res, nil
}

// Set stores a copy of result.
func (c *LocalCache) Set(_ context.Context, fingerprint string, result *ValidationResult) error {
	if result == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// Sweep on write so keys that are never read again do not accumulate.
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}

	stored := *result
	stored.Models = append([]string(nil), result.Models...)
	c.entries[fingerprint] = localEntry{result: stored, expiresAt: now.Add(c.ttl)}
	return nil
}

// Close is a no-op for local cache.
func (c *LocalCache) Close() error {
	return nil
}
