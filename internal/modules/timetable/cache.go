// README: Redis-backed service-instance cache.
package timetable

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "instance:"

// RedisCache shortcuts instance re-derivation. Entries carry a TTL so
// timetable edits become visible without explicit invalidation.
type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{redis: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Instance, bool, error) {
	val, err := c.redis.Get(ctx, cacheKeyPrefix+key).Result()
	if err == redis.Nil {
		return Instance{}, false, nil
	}
	if err != nil {
		return Instance{}, false, err
	}
	var inst Instance
	if err := json.Unmarshal([]byte(val), &inst); err != nil {
		return Instance{}, false, err
	}
	return inst, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, inst Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, cacheKeyPrefix+key, data, c.ttl).Err()
}
