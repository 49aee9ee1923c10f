package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "idc"

// ErrUnavailable wraps backend failures; absence of a key is never an error.
var ErrUnavailable = errors.New("cache unavailable")

// Redis is the production Cache.
type Redis struct {
	redis  *redis.Client
	prefix string
}

// NewRedis returns a Redis cache. An empty prefix selects the default.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{redis: client, prefix: prefix}
}

func (c *Redis) key(key string) string {
	return c.prefix + ":" + key
}

// Set stores value under key for ttl.
func (c *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache ttl must be positive")
	}
	if err := c.redis.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// TryGet returns the live value under key, reporting presence separately
// from backend failure.
func (c *Redis) TryGet(ctx context.Context, key string) (string, bool, error) {
	value, err := c.redis.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Redis) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
