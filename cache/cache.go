// Package cache defines a minimal TTL key/value contract used for staging
// short-lived flow state, with Redis and in-memory implementations.
package cache

import (
	"context"
	"time"
)

// Cache is a volatile string store with per-entry expiry. Expired entries
// behave exactly like absent ones.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	TryGet(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}
