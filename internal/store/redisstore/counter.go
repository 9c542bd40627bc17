package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter implements scrape.RateCounter on Redis. INCR and EXPIRE travel in
// one pipeline so the counter never outlives its window by more than the
// grace period.
type Counter struct {
	client *redis.Client
}

// NewCounter wraps an existing Redis client.
func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// Incr bumps the counter and refreshes its expiry, returning the new value.
func (c *Counter) Incr(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), nil
}
