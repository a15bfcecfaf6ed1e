// Package cache is the time-bounded copy layer in front of the document
// store. Nothing read from here is authoritative: entries may expire or be
// evicted at any time and callers must fall back to MongoDB.
package cache

import (
	"context"
	"time"
)

// Cache is a key/value store with per-entry expiry.
//
// Get and Exists never fail: a backend error reads as a miss. Set and Delete
// return backend errors so callers can log them.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool
}

func inputKey(userID string) string {
	return "input:" + userID
}

func reportKey(reportID string) string {
	return "report:" + reportID
}
