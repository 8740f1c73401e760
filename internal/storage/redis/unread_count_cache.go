package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ilindan-dev/notifyhub/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// UnreadCountCache implements inbox.UnreadCountCache over go-redis.
type UnreadCountCache struct {
	redis  *goredis.Client
	logger zerolog.Logger
}

// NewUnreadCountCache builds the redis-backed UnreadCountCache.
func NewUnreadCountCache(redis *goredis.Client, logger *zerolog.Logger) *UnreadCountCache {
	return &UnreadCountCache{redis: redis, logger: logger.With().Str("layer", "redis_cache").Str("entity", "unread_count").Logger()}
}

func (c *UnreadCountCache) Get(ctx context.Context, userID string) (int, bool, error) {
	val, err := c.redis.Get(ctx, keybuilder.UnreadCount(userID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis: get unread count: %w", err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("redis: malformed cached unread count: %w", err)
	}
	return count, true, nil
}

func (c *UnreadCountCache) Set(ctx context.Context, userID string, count int, ttl time.Duration) error {
	if err := c.redis.Set(ctx, keybuilder.UnreadCount(userID), strconv.Itoa(count), ttl).Err(); err != nil {
		return fmt.Errorf("redis: set unread count: %w", err)
	}
	return nil
}

func (c *UnreadCountCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.redis.Del(ctx, keybuilder.UnreadCount(userID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate unread count: %w", err)
	}
	return nil
}
