package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/idempotency"
	"github.com/ilindan-dev/notifyhub/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ idempotency.FastCache = (*IdempotencyCache)(nil)

// IdempotencyCache implements idempotency.FastCache over go-redis: the
// fast-lookup tier and distributed lock backing the C1 idempotency store
// (§4.1).
type IdempotencyCache struct {
	redis  *goredis.Client
	logger zerolog.Logger
}

// NewIdempotencyCache builds the redis-backed idempotency.FastCache.
func NewIdempotencyCache(redis *goredis.Client, logger *zerolog.Logger) *IdempotencyCache {
	return &IdempotencyCache{redis: redis, logger: logger.With().Str("layer", "redis_cache").Str("role", "idempotency_fast_cache").Logger()}
}

func (c *IdempotencyCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.redis.Exists(ctx, keybuilder.Idempotency(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: idempotency exists: %w", err)
	}
	return n > 0, nil
}

func (c *IdempotencyCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.redis.Set(ctx, keybuilder.Idempotency(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: idempotency set: %w", err)
	}
	return nil
}

func (c *IdempotencyCache) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.redis.SetNX(ctx, keybuilder.IdempotencyLock(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: idempotency setnx: %w", err)
	}
	return ok, nil
}

func (c *IdempotencyCache) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, keybuilder.IdempotencyLock(key)).Err(); err != nil {
		return fmt.Errorf("redis: idempotency delete: %w", err)
	}
	return nil
}
