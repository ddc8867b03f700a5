package report

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a small redis-backed read cache for the hot dashboard and live
// endpoints. Misses and redis failures fall through to a fresh computation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewCache wraps a redis client with a TTL.
func NewCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, ttl: ttl, log: log}
}

func cacheGet[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c == nil || c.client == nil {
		return zero, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Warn("discarding malformed cache entry", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return out, true
}

func cacheSet(ctx context.Context, c *Cache, key string, val any) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Debug("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
