package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"innsearch/internal/person"
	"innsearch/pkg/platform/sentinel"
)

const keyPrefix = "innsearch:identifier:"

// RedisCache shares identifiers between runs and hosts.
type RedisCache struct {
	client   *redis.Client
	cacheTTL time.Duration
}

func NewRedisCache(client *redis.Client, cacheTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, cacheTTL: cacheTTL}
}

type redisEntry struct {
	Identifier string `json:"identifier"`
	Source     string `json:"source"`
}

func (c *RedisCache) Save(ctx context.Context, personID string, outcome person.SearchOutcome) error {
	if !outcome.Found() {
		return nil
	}
	payload, err := json.Marshal(redisEntry{Identifier: outcome.Identifier, Source: outcome.Source})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+personID, payload, c.cacheTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Find(ctx context.Context, personID string) (person.SearchOutcome, error) {
	raw, err := c.client.Get(ctx, keyPrefix+personID).Bytes()
	if errors.Is(err, redis.Nil) {
		return person.SearchOutcome{}, sentinel.ErrNotFound
	}
	if err != nil {
		return person.SearchOutcome{}, fmt.Errorf("redis get: %w", err)
	}
	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return person.SearchOutcome{}, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.Identifier == "" {
		return person.SearchOutcome{}, sentinel.ErrNotFound
	}
	return person.FoundOutcome(entry.Source, entry.Identifier), nil
}
