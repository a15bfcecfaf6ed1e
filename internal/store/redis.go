package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ayush/medical-report-worker/internal/apperrors"
)

// NewRedisClient parses a redis:// URL, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, apperrors.TransientInfra("redis ping", err)
	}
	return rdb, nil
}
