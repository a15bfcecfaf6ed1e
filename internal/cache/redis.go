package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCache implements Cache on a go-redis client.
type RedisCache struct {
	rdb        *redis.Client
	defaultTTL time.Duration
	log        zerolog.Logger
}

func NewRedisCache(rdb *redis.Client, defaultTTL time.Duration, log zerolog.Logger) *RedisCache {
	return &RedisCache{
		rdb:        rdb,
		defaultTTL: defaultTTL,
		log:        log.With().Str("component", "cache").Logger(),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("cache get failed")
		return nil, false
	}
	return val, true
}

// Set stores value under key. A non-positive ttl means the default TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	c.log.Debug().Str("key", key).Dur("ttl", ttl).Msg("cached")
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Exists(ctx context.Context, key string) bool {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("cache exists failed")
		return false
	}
	return n > 0
}
