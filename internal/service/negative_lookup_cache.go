package service

import (
	"context"
	"sync"
	"time"
)

// NegativeLookupCache remembers hashes that were recently looked up and
// not found, so floods of junk-hash pings stop short of the database.
// Entries expire on their own; device hashes are random 256-bit values,
// so a cached miss can never shadow a newly created device.
type NegativeLookupCache interface {
	Contains(ctx context.Context, hash string) (bool, error)
	Add(ctx context.Context, hash string, ttl time.Duration) error
}

type InMemoryNegativeLookupCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewInMemoryNegativeLookupCache() *InMemoryNegativeLookupCache {
	return &InMemoryNegativeLookupCache{entries: make(map[string]time.Time)}
}

func (c *InMemoryNegativeLookupCache) Contains(_ context.Context, hash string) (bool, error) {
	now := time.Now().UTC()
	c.mu.RLock()
	expiresAt, ok := c.entries[hash]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(expiresAt) {
		c.mu.Lock()
		if exp, ok := c.entries[hash]; ok && now.After(exp) {
			delete(c.entries, hash)
		}
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *InMemoryNegativeLookupCache) Add(_ context.Context, hash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = time.Now().UTC().Add(ttl)
	return nil
}
