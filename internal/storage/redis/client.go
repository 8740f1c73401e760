// Package redis implements every cache-tier contract in internal/domain
// against go-redis/v9: the read-through NotificationCache, the stampede
// guard's DurableCache/DistributedLocker, the idempotency store's FastCache,
// the C10 inbox's UnreadCountCache/GroupReadCache/FollowingChecker, the auth
// middleware's revoked-credential Blocklist, and the C12 monitor's GaugeSink.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/config"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient builds the shared go-redis client and verifies connectivity.
func NewClient(cfg *config.Config, logger *zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis client established")
	return client, nil
}
