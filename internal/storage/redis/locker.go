package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/stampede"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ stampede.DistributedLocker = (*Locker)(nil)

// Locker implements stampede.DistributedLocker via Redis SETNX, so only one
// process runs a background SWR refresh for a given key at a time (§4.3).
type Locker struct {
	redis  *goredis.Client
	logger zerolog.Logger
}

// NewLocker builds the redis-backed DistributedLocker.
func NewLocker(redis *goredis.Client, logger *zerolog.Logger) *Locker {
	return &Locker{redis: redis, logger: logger.With().Str("layer", "redis_cache").Str("role", "locker").Logger()}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.redis.SetNX(ctx, "lock:"+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: try lock: %w", err)
	}
	return ok, nil
}

func (l *Locker) Unlock(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, "lock:"+key).Err(); err != nil {
		return fmt.Errorf("redis: unlock: %w", err)
	}
	return nil
}
