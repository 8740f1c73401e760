package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ repo.NotificationCache = (*NotificationCache)(nil)

// NotificationCache implements repository.NotificationCache over go-redis.
type NotificationCache struct {
	redis  *goredis.Client
	logger zerolog.Logger
}

// NewNotificationCache builds the redis-backed NotificationCache.
func NewNotificationCache(logger *zerolog.Logger, redis *goredis.Client) *NotificationCache {
	return &NotificationCache{redis: redis, logger: logger.With().Str("layer", "redis_cache").Str("entity", "notification").Logger()}
}

func (c *NotificationCache) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	key := keybuilder.Notification(id.String())
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repo.ErrNotFound
		}
		c.logger.Error().Err(err).Str("key", key).Msg("failed to get key from redis")
		return nil, err
	}

	var n model.Notification
	if err := json.Unmarshal([]byte(val), &n); err != nil {
		return nil, fmt.Errorf("redis: unmarshal cached notification: %w", err)
	}
	return &n, nil
}

func (c *NotificationCache) Set(ctx context.Context, n *model.Notification, expiration time.Duration) error {
	key := keybuilder.Notification(n.NotificationID.String())
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("redis: marshal notification for cache: %w", err)
	}
	if err := c.redis.Set(ctx, key, b, expiration).Err(); err != nil {
		return fmt.Errorf("redis: set key: %w", err)
	}
	return nil
}

func (c *NotificationCache) Delete(ctx context.Context, id uuid.UUID) error {
	key := keybuilder.Notification(id.String())
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: delete key: %w", err)
	}
	return nil
}
