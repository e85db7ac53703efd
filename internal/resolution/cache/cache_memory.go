// Package cache holds identifier cache backends. Only found identifiers are
// stored; negatives and errors are always re-resolved.
package cache

import (
	"context"
	"sync"
	"time"

	"innsearch/internal/person"
	"innsearch/pkg/platform/sentinel"
)

type cachedOutcome struct {
	outcome  person.SearchOutcome
	storedAt time.Time
}

// InMemoryCache keeps identifiers for the lifetime of the process, with TTL
// expiration.
type InMemoryCache struct {
	mu       sync.RWMutex
	entries  map[string]cachedOutcome
	cacheTTL time.Duration
	now      func() time.Time
}

func NewInMemoryCache(cacheTTL time.Duration) *InMemoryCache {
	return &InMemoryCache{
		entries:  make(map[string]cachedOutcome),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Save stores a found outcome. Anything else is ignored.
func (c *InMemoryCache) Save(_ context.Context, personID string, outcome person.SearchOutcome) error {
	if !outcome.Found() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[personID] = cachedOutcome{outcome: outcome, storedAt: c.now()}
	return nil
}

// Find returns sentinel.ErrNotFound if the entry is absent or expired.
func (c *InMemoryCache) Find(_ context.Context, personID string) (person.SearchOutcome, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.entries[personID]; ok {
		if c.now().Sub(cached.storedAt) < c.cacheTTL {
			return cached.outcome, nil
		}
	}
	return person.SearchOutcome{}, sentinel.ErrNotFound
}
