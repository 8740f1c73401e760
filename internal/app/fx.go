package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/auth"
	"github.com/ilindan-dev/notifyhub/internal/breaker"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/consumer"
	deliveryHTTP "github.com/ilindan-dev/notifyhub/internal/delivery/http"
	"github.com/ilindan-dev/notifyhub/internal/deliveryworker"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/internal/eventhandler"
	"github.com/ilindan-dev/notifyhub/internal/fanout"
	"github.com/ilindan-dev/notifyhub/internal/gateway"
	"github.com/ilindan-dev/notifyhub/internal/idempotency"
	"github.com/ilindan-dev/notifyhub/internal/inbox"
	"github.com/ilindan-dev/notifyhub/internal/logger"
	"github.com/ilindan-dev/notifyhub/internal/monitor"
	"github.com/ilindan-dev/notifyhub/internal/outboxrelay"
	"github.com/ilindan-dev/notifyhub/internal/scheduler"
	"github.com/ilindan-dev/notifyhub/internal/socialclient"
	"github.com/ilindan-dev/notifyhub/internal/stampede"
	"github.com/ilindan-dev/notifyhub/internal/storage/postgres"
	"github.com/ilindan-dev/notifyhub/internal/storage/rabbitmq"
	"github.com/ilindan-dev/notifyhub/internal/storage/redis"
	"github.com/ilindan-dev/notifyhub/internal/tokenlifecycle"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// Sub-config extractors. fx resolves by return type, so a single
// *config.Config cannot feed two constructors that both want, say,
// config.GatewayCredentials — each gateway gets its own named extractor
// below instead of a shared provider for that type.

func provideWorkerConfig(cfg *config.Config) config.WorkerConfig     { return cfg.Worker }
func provideBreakerConfig(cfg *config.Config) config.BreakerConfig   { return cfg.Breaker }
func provideFanoutConfig(cfg *config.Config) config.FanoutConfig     { return cfg.Fanout }
func provideCacheTTLConfig(cfg *config.Config) config.CacheTTLConfig { return cfg.Cache }
func provideAuthConfig(cfg *config.Config) config.AuthConfig         { return cfg.Auth }
func provideArchiveConfig(cfg *config.Config) config.ArchiveConfig   { return cfg.Archive }
func provideSocialConfig(cfg *config.Config) config.SocialConfig     { return cfg.Social }

func provideHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func newFCMGateway(cfg *config.Config, client *http.Client, logger *zerolog.Logger) *gateway.FCMGateway {
	return gateway.NewFCMGateway(cfg.Gateways.FCM, client, logger)
}

func newAPNsGateway(cfg *config.Config, client *http.Client, logger *zerolog.Logger) *gateway.APNsGateway {
	return gateway.NewAPNsGateway(cfg.Gateways.APNs, client, logger)
}

func provideGatewayMap(fcm *gateway.FCMGateway, apns *gateway.APNsGateway) map[model.Platform]gateway.Gateway {
	return map[model.Platform]gateway.Gateway{
		model.PlatformAndroid: fcm,
		model.PlatformIOS:     apns,
	}
}

func provideOutboxRelayConfig() outboxrelay.Config {
	return outboxrelay.DefaultConfig()
}

func provideMonitorCounters() *monitor.Counters {
	return &monitor.Counters{}
}

// CommonModule provides every dependency shared between the API and the
// worker process: config, logging, storage adapters (with the cache-aside
// repository decorators layered in via fx.Decorate/fx.Annotate), and the
// domain components neither process owns exclusively.
var CommonModule = fx.Options(
	fx.Provide(
		config.NewConfig,
		logger.NewLogger,
		provideHTTPClient,

		provideWorkerConfig,
		provideBreakerConfig,
		provideFanoutConfig,
		provideCacheTTLConfig,
		provideAuthConfig,
		provideArchiveConfig,
		provideSocialConfig,
		provideOutboxRelayConfig,
		provideMonitorCounters,

		// Postgres storage layer. Every repository is provided under its
		// domain interface via fx.As so the constructors above can keep
		// depending on repository.X rather than storage/postgres.X.
		postgres.NewPool,
		postgres.NewNotificationRepository,
		fx.Annotate(postgres.NewDeviceRepository, fx.As(new(repo.DeviceRepository))),
		fx.Annotate(postgres.NewPreferencesRepository, fx.As(new(repo.PreferencesRepository))),
		fx.Annotate(postgres.NewGroupNotificationRepository, fx.As(new(repo.GroupNotificationRepository))),
		fx.Annotate(postgres.NewOutboxRepository, fx.As(new(repo.OutboxRepository))),
		fx.Annotate(postgres.NewIdempotencyRepository, fx.As(new(repo.IdempotencyRepository))),
		fx.Annotate(postgres.NewDeliveryLogRepository, fx.As(new(repo.DeliveryLogRepository))),
		fx.Annotate(postgres.NewTransactor, fx.As(new(repo.Transactor))),

		// Redis storage layer.
		redis.NewClient,
		redis.NewNotificationCache,
		fx.Annotate(redis.NewUnreadCountCache, fx.As(new(inbox.UnreadCountCache))),
		fx.Annotate(redis.NewGroupReadCache, fx.As(new(repo.GroupReadCache))),
		fx.Annotate(redis.NewIdempotencyCache, fx.As(new(idempotency.FastCache))),
		fx.Annotate(redis.NewDurableCache, fx.As(new(stampede.DurableCache))),
		fx.Annotate(redis.NewLocker, fx.As(new(stampede.DistributedLocker))),
		fx.Annotate(redis.NewBlocklist, fx.As(new(auth.Blocklist))),
		fx.Annotate(redis.NewGaugeSink, fx.As(new(monitor.GaugeSink))),

		// RabbitMQ storage layer.
		rabbitmq.NewConnection,
		fx.Annotate(rabbitmq.NewPublisher, fx.As(new(repo.EventPublisher))),

		// External social-graph client, backing two distinct interfaces
		// owned by two different packages.
		fx.Annotate(socialclient.New, fx.As(new(fanout.FollowerService)), fx.As(new(redis.FollowingSource))),

		// Push gateways.
		newFCMGateway,
		newAPNsGateway,
		provideGatewayMap,

		// Domain components shared by both processes.
		idempotency.NewStore,
		stampede.NewGuard,
		breaker.NewRegistry,
		tokenlifecycle.NewManager,
		fanout.NewSelector,
		eventhandler.NewHandler,
		outboxrelay.NewRelay,
	),

	// repository.NotificationRepository is read far more than it is
	// written, so the Postgres repository gets a read-cache decorator in
	// front of it, matching the teacher's single cached-repository seam.
	fx.Decorate(func(pgRepo *postgres.NotificationRepository, cache *redis.NotificationCache, logger *zerolog.Logger) repo.NotificationRepository {
		return redis.NewCachedNotificationRepository(pgRepo, cache, logger)
	}),

	// redis.FollowingCache wraps the social-service client with a Redis
	// TTL cache and is what the inbox relevance check actually consumes.
	fx.Provide(
		fx.Annotate(
			func(redisClient *goredis.Client, source redis.FollowingSource, cacheCfg config.CacheTTLConfig, logger *zerolog.Logger) *redis.FollowingCache {
				return redis.NewFollowingCache(redisClient, source, cacheCfg.FollowingFresh, logger)
			},
			fx.As(new(inbox.FollowingChecker)),
		),
	),
)

// APIModule wires the read-facing HTTP process: device/preferences/inbox
// handlers plus the health surface, behind the bearer/internal-token auth
// middleware.
var APIModule = fx.Options(
	CommonModule,
	fx.Provide(
		auth.New,
		inbox.New,
		deliveryHTTP.NewHandlers,
		deliveryHTTP.NewServer,
	),

	fx.Invoke(func(server *deliveryHTTP.Server, lc fx.Lifecycle) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						panic(err)
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
		})
	}),
)

// WorkerModule wires the background process: the broker consumer feeding
// the event handler, the C6 outbox relay, the C9 delivery worker pool (one
// instance per config.Worker.Count), the C11 scheduler, and the C12
// resource monitor, all started as independent goroutines under one fx
// lifecycle.
var WorkerModule = fx.Options(
	CommonModule,
	fx.Provide(
		consumer.New,
		scheduler.New,
	),

	fx.Invoke(func(c *consumer.Consumer, lc fx.Lifecycle) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := c.Start(context.Background()); err != nil {
						panic(fmt.Errorf("consumer start: %w", err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return nil
			},
		})
	}),

	fx.Invoke(func(relay *outboxrelay.Relay, lc fx.Lifecycle) {
		var cancel context.CancelFunc
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				var runCtx context.Context
				runCtx, cancel = context.WithCancel(context.Background())
				go relay.Run(runCtx)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				if cancel != nil {
					cancel()
				}
				return nil
			},
		})
	}),

	fx.Invoke(func(sched *scheduler.Scheduler, lc fx.Lifecycle) {
		var cancel context.CancelFunc
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				var runCtx context.Context
				runCtx, cancel = context.WithCancel(context.Background())
				go sched.Run(runCtx)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				if cancel != nil {
					cancel()
				}
				return nil
			},
		})
	}),

	fx.Invoke(func(breakers *breaker.Registry, counters *monitor.Counters, sink monitor.GaugeSink, cfg *config.Config, logger *zerolog.Logger, lc fx.Lifecycle) {
		mon := monitor.New(breakers, counters, sink, cfg.Worker.MonitorSampleInterval, logger)
		var cancel context.CancelFunc
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				var runCtx context.Context
				runCtx, cancel = context.WithCancel(context.Background())
				go mon.Run(runCtx)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				if cancel != nil {
					cancel()
				}
				return nil
			},
		})
	}),

	// The delivery worker pool has no single fx-constructible instance:
	// cfg.Worker.Count independent Pool values share the same dependencies
	// but each needs a distinct workerID, so they're built directly here
	// rather than through fx.Provide.
	fx.Invoke(func(
		notifications repo.NotificationRepository,
		devices repo.DeviceRepository,
		preferences repo.PreferencesRepository,
		deliveryLogs repo.DeliveryLogRepository,
		gateways map[model.Platform]gateway.Gateway,
		breakers *breaker.Registry,
		tokens *tokenlifecycle.Manager,
		cfg *config.Config,
		logger *zerolog.Logger,
		lc fx.Lifecycle,
	) {
		var cancel context.CancelFunc
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				var runCtx context.Context
				runCtx, cancel = context.WithCancel(context.Background())
				count := cfg.Worker.Count
				if count <= 0 {
					count = 1
				}
				for i := 0; i < count; i++ {
					workerID := fmt.Sprintf("delivery-worker-%d", i+1)
					pool := deliveryworker.New(workerID, notifications, devices, preferences, deliveryLogs, gateways, breakers, tokens, cfg.Worker, logger)
					go pool.Run(runCtx)
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				if cancel != nil {
					cancel()
				}
				return nil
			},
		})
	}),
)
