// Package cache wraps the Redis client used for cross-instance coordination.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// AcquireTickLock claims the scheduler tick lock for this instance. Only one
// instance may drive room lifecycle transitions at a time; the TTL keeps a
// crashed holder from blocking ticks forever.
func (c *RedisCache) AcquireTickLock(ctx context.Context, instanceID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, tickLockKey(), instanceID, ttl).Result()
}

// ReleaseTickLock releases the tick lock if this instance still holds it.
func (c *RedisCache) ReleaseTickLock(ctx context.Context, instanceID string) error {
	holder, err := c.client.Get(ctx, tickLockKey()).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if holder != instanceID {
		return nil
	}
	return c.client.Del(ctx, tickLockKey()).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func tickLockKey() string {
	return "lock:scheduler:tick"
}
