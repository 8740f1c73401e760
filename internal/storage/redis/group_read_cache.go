package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ repo.GroupReadCache = (*GroupReadCache)(nil)

// GroupReadCache tracks per-user GroupNotification read state, keyed
// groupRead(userId, groupNotificationId) (§3, §4.10). Presence of the key
// means read; there is no durable fallback, matching fanout-on-read's design
// of never storing one row per recipient.
type GroupReadCache struct {
	redis  *goredis.Client
	logger zerolog.Logger
}

// NewGroupReadCache builds the redis-backed GroupReadCache.
func NewGroupReadCache(redis *goredis.Client, logger *zerolog.Logger) *GroupReadCache {
	return &GroupReadCache{redis: redis, logger: logger.With().Str("layer", "redis_cache").Str("entity", "group_read").Logger()}
}

func (c *GroupReadCache) IsRead(ctx context.Context, userID string, groupID uuid.UUID) (bool, error) {
	key := keybuilder.GroupRead(userID, groupID.String())
	n, err := c.redis.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check group read state: %w", err)
	}
	return n > 0, nil
}

func (c *GroupReadCache) MarkRead(ctx context.Context, userID string, groupID uuid.UUID, ttl time.Duration) error {
	key := keybuilder.GroupRead(userID, groupID.String())
	if err := c.redis.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis: mark group read: %w", err)
	}
	return nil
}

// notFoundOnNil maps a go-redis Nil sentinel to repo.ErrNotFound, used by
// adapters in this package that model absence as ErrNotFound rather than a
// boolean, for parity with the durable-store contracts they sit in front of.
func notFoundOnNil(err error) error {
	if errors.Is(err, goredis.Nil) {
		return repo.ErrNotFound
	}
	return err
}
