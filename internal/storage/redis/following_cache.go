package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ilindan-dev/notifyhub/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// FollowingCache caches the per-(user, actor) is-following relationship
// backing the C10 inbox's relevance check against GroupNotifications
// (§4.10), as a read-through entry with a single TTL, independent of the
// follower-count cache used by the C8 fanout decision. It has no
// stale-while-revalidate window: once the TTL lapses the next call goes to
// the source.
type FollowingCache struct {
	redis  *goredis.Client
	source FollowingSource
	ttl    time.Duration
	logger zerolog.Logger
}

// FollowingSource is the external, out-of-module service resolving whether
// userID follows actorUserID on a cache miss.
type FollowingSource interface {
	IsFollowing(ctx context.Context, userID, actorUserID string) (bool, error)
}

// NewFollowingCache builds the redis-backed FollowingCache, implementing
// inbox.FollowingChecker.
func NewFollowingCache(redis *goredis.Client, source FollowingSource, ttl time.Duration, logger *zerolog.Logger) *FollowingCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &FollowingCache{redis: redis, source: source, ttl: ttl, logger: logger.With().Str("layer", "redis_cache").Str("entity", "following").Logger()}
}

// IsFollowing answers the relevance check, reading through to FollowingSource
// on a cache miss and caching the result either way.
func (c *FollowingCache) IsFollowing(ctx context.Context, userID, actorUserID string) (bool, error) {
	key := keybuilder.Following(userID, actorUserID)
	val, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		return val == "1", nil
	}
	if !errors.Is(err, goredis.Nil) {
		c.logger.Error().Err(err).Str("key", key).Msg("following cache lookup failed, falling through to source")
	}

	following, err := c.source.IsFollowing(ctx, userID, actorUserID)
	if err != nil {
		return false, fmt.Errorf("redis: resolve following state: %w", err)
	}

	cached := "0"
	if following {
		cached = "1"
	}
	if err := c.redis.Set(ctx, key, cached, c.ttl).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("failed to cache following state")
	}
	return following, nil
}
