package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayush/medical-report-worker/internal/store"
)

// Open connects the Redis backend at redisURL, or builds a MemoryCache when
// memory is set. The returned close func releases the Redis client and is
// never nil on success.
func Open(ctx context.Context, memory bool, redisURL string, defaultTTL time.Duration, log zerolog.Logger) (Cache, func() error, error) {
	if memory {
		log.Warn().Msg("using in-process cache, entries are not shared between processes")
		return NewMemoryCache(defaultTTL), func() error { return nil }, nil
	}
	rdb, err := store.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	return NewRedisCache(rdb, defaultTTL, log), rdb.Close, nil
}
