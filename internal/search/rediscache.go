package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	pkgredis "github.com/docstream-labs/docsearch/pkg/redis"
)

const redisKeyPrefix = "search:"

// cachedResult is the JSON envelope stored in Redis. Results round-trip
// through the exact Hit schema; nothing stored is ever re-interpreted as
// anything but this struct.
type cachedResult struct {
	Generation uint64 `json:"generation"`
	Hits       []Hit  `json:"hits"`
}

// RedisCache is a ResultCache backed by Redis, for deployments that want the
// cache to survive process restarts. Redis errors degrade to cache misses.
type RedisCache struct {
	client *pkgredis.Client
	ttl    time.Duration
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache creates a RedisCache with the given entry TTL.
func NewRedisCache(client *pkgredis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "result-cache"),
	}
}

// Get returns the stored hits for the key when present and computed against
// the given generation.
func (c *RedisCache) Get(ctx context.Context, key CacheKey, generation uint64) ([]Hit, bool) {
	redisKey := redisKeyPrefix + key.String()
	data, err := c.client.Get(ctx, redisKey)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", redisKey, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result cachedResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", redisKey, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if result.Generation != generation {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return result.Hits, true
}

// Put stores hits for the key, overwriting any previous entry.
func (c *RedisCache) Put(ctx context.Context, key CacheKey, generation uint64, hits []Hit) {
	redisKey := redisKeyPrefix + key.String()
	data, err := json.Marshal(cachedResult{Generation: generation, Hits: hits})
	if err != nil {
		c.logger.Error("cache marshal failed", "key", redisKey, "error", err)
		return
	}
	if err := c.client.Set(ctx, redisKey, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", redisKey, "error", err)
	}
}

// InvalidateAll deletes every search entry.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, redisKeyPrefix+"*")
	if err != nil {
		return err
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counts.
func (c *RedisCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
