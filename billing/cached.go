package billing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studio233/batchd/data/cache"
	"github.com/studio233/batchd/logging/logger"
)

// Cached serves Balance from Redis and invalidates on every mutation
type Cached struct {
	Service
	cache *cache.Cache[int64]
	ttl   time.Duration
}

// NewCached wraps svc with a balance cache
func NewCached(svc Service, rc *redis.Client, ttl time.Duration) *Cached {
	return &Cached{Service: svc, cache: cache.NewCache[int64](rc, "quota:balance"), ttl: ttl}
}

func (c *Cached) Balance(ctx context.Context, userID string) (int64, error) {
	if v, err := c.cache.Get(ctx, userID); err == nil && v != nil {
		return *v, nil
	} else if err != nil {
		logger.Warn(ctx, "balance cache read failed", "user_id", userID, "error", err)
	}
	b, err := c.Service.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := c.cache.Set(ctx, userID, &b, c.ttl); err != nil {
		logger.Warn(ctx, "balance cache write failed", "user_id", userID, "error", err)
	}
	return b, nil
}

func (c *Cached) Debit(ctx context.Context, userID string, amount int64, key string) error {
	defer c.invalidate(ctx, userID)
	return c.Service.Debit(ctx, userID, amount, key)
}

func (c *Cached) Refund(ctx context.Context, userID string, amount int64, key string) error {
	defer c.invalidate(ctx, userID)
	return c.Service.Refund(ctx, userID, amount, key)
}

func (c *Cached) Grant(ctx context.Context, userID string, amount int64, key string) error {
	defer c.invalidate(ctx, userID)
	return c.Service.Grant(ctx, userID, amount, key)
}

func (c *Cached) invalidate(ctx context.Context, userID string) {
	if err := c.cache.Delete(ctx, userID); err != nil {
		logger.Warn(ctx, "balance cache invalidate failed", "user_id", userID, "error", err)
	}
}
