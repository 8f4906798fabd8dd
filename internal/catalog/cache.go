package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tradepost/internal/domain"
	"tradepost/internal/platform/redis"
)

// RedisCache caches item lookups in Redis with a bounded TTL. A purchase
// invalidates the entry, so the availability flag is never stale across the
// write path; reads may lag by at most the TTL after an eviction race.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func itemKey(id int64) string {
	return fmt.Sprintf("tradepost:item:%d", id)
}

func (c *RedisCache) GetItem(ctx context.Context, id int64) (domain.Item, bool, error) {
	raw, err := c.client.Get(ctx, itemKey(id)).Bytes()
	if err == goredis.Nil {
		return domain.Item{}, false, nil
	}
	if err != nil {
		return domain.Item{}, false, fmt.Errorf("cache get: %w", err)
	}
	var item domain.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		// A corrupt entry is treated as a miss and overwritten on refill.
		return domain.Item{}, false, nil
	}
	return item, true, nil
}

func (c *RedisCache) SetItem(ctx context.Context, item domain.Item) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, itemKey(item.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, itemKey(id)).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return nil
}

// NoopCache is used when Redis is not configured; every read goes to the
// store.
type NoopCache struct{}

var _ Cache = NoopCache{}

func (NoopCache) GetItem(ctx context.Context, id int64) (domain.Item, bool, error) {
	return domain.Item{}, false, nil
}

func (NoopCache) SetItem(ctx context.Context, item domain.Item) error { return nil }

func (NoopCache) Invalidate(ctx context.Context, id int64) error { return nil }
