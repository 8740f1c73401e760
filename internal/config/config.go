package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the main struct that holds all configuration for the application.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Gateways  GatewaysConfig  `mapstructure:"gateways"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
	Cache     CacheTTLConfig  `mapstructure:"cache"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Social    SocialConfig    `mapstructure:"social"`
}

// LoggerConfig holds logging-specific settings.
type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

// HTTPConfig holds HTTP server-specific settings.
type HTTPConfig struct {
	Port    string `mapstructure:"port"`
	GinMode string `mapstructure:"gin_mode"`
}

// PostgresConfig holds all settings for the PostgreSQL database connection.
type PostgresConfig struct {
	MasterDSN string     `mapstructure:"master_dsn"`
	SlaveDSNs []string   `mapstructure:"slave_dsns"`
	Pool      PoolConfig `mapstructure:"pool"`
}

// PoolConfig defines the connection pool settings for the database.
type PoolConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	WaitQueueSize   int           `mapstructure:"wait_queue_size"`
}

// RabbitMQConfig holds all settings for the RabbitMQ connection.
type RabbitMQConfig struct {
	DSN      string `mapstructure:"dsn"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
	Prefetch int    `mapstructure:"prefetch"`
}

// RedisConfig holds all settings for the Redis connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GatewayCredentials holds per-gateway credentials and environment.
type GatewayCredentials struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	Environment     string `mapstructure:"environment"` // sandbox | production
	ProjectID       string `mapstructure:"project_id"`  // FCM project, ignored by APNs
	BundleID        string `mapstructure:"bundle_id"`   // APNs topic, ignored by FCM
}

// GatewaysConfig holds FCM/APNs gateway settings.
type GatewaysConfig struct {
	FCM  GatewayCredentials `mapstructure:"fcm"`
	APNs GatewayCredentials `mapstructure:"apns"`
}

// WorkerConfig holds delivery worker pool and scheduler tunables (§4.9, §4.11).
type WorkerConfig struct {
	Count                int           `mapstructure:"count"`
	BatchSize            int           `mapstructure:"batch_size"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryBaseDelay       time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay        time.Duration `mapstructure:"retry_max_delay"`
	SchedulerInterval    time.Duration `mapstructure:"scheduler_interval"`
	RetrySweepInterval   time.Duration `mapstructure:"retry_sweep_interval"`
	ArchiverInterval     time.Duration `mapstructure:"archiver_interval"`
	MonitorSampleInterval time.Duration `mapstructure:"monitor_sample_interval"`
}

// BreakerConfig holds circuit-breaker parameters (§4.2 defaults).
type BreakerConfig struct {
	ErrorThreshold           float64       `mapstructure:"error_threshold"`
	WindowSize               time.Duration `mapstructure:"window_size"`
	MinimumRequests          int           `mapstructure:"minimum_requests"`
	OpenTimeout              time.Duration `mapstructure:"open_timeout"`
	HalfOpenSuccessThreshold int           `mapstructure:"half_open_success_threshold"`
	HalfOpenMaxRequests      int           `mapstructure:"half_open_max_requests"`
	ErrorDuration            time.Duration `mapstructure:"error_duration"`
}

// FanoutConfig holds the fanout-on-read threshold (§4.8).
type FanoutConfig struct {
	FollowerThreshold int `mapstructure:"follower_threshold"`
	TopicReachThreshold int `mapstructure:"topic_reach_threshold"`
}

// CacheTTLConfig holds every cache TTL enumerated in §6.
type CacheTTLConfig struct {
	FollowerCountFresh time.Duration `mapstructure:"follower_count_fresh"`
	FollowerCountStale time.Duration `mapstructure:"follower_count_stale"`
	FollowingFresh     time.Duration `mapstructure:"following_fresh"`
	FollowingStale     time.Duration `mapstructure:"following_stale"`
	UnreadCount        time.Duration `mapstructure:"unread_count"`
	GroupRead          time.Duration `mapstructure:"group_read"`
}

// AuthConfig holds JWT verification keys and the internal-service token (§6).
type AuthConfig struct {
	PrimaryKey        string        `mapstructure:"primary_key"`
	PreviousKey       string        `mapstructure:"previous_key"`
	OldKeyExpiry      time.Duration `mapstructure:"old_key_expiry"`
	InternalToken     string        `mapstructure:"internal_token"`
}

// ArchiveConfig holds the archiver's thresholds (§4.11).
type ArchiveConfig struct {
	ThresholdDays     int `mapstructure:"threshold_days"`
	BatchSize         int `mapstructure:"batch_size"`
	MaxRecordsPerRun  int `mapstructure:"max_records_per_run"`
	MaxBatchesPerRun  int `mapstructure:"max_batches_per_run"`
	DryRun            bool `mapstructure:"dry_run"`
}

// SocialConfig points at the external service this module asks for a user's
// follower count and following relation (§4.8, §4.10) — out of this
// module's own domain, reached over plain HTTP.
type SocialConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NewConfig parses the YAML file and environment variables to return a configuration struct.
func NewConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigFile("configs/config.yaml")

	v.SetDefault("logger.level", "info")
	v.SetDefault("http.port", ":8080")
	v.SetDefault("http.gin_mode", "release")

	v.SetDefault("postgres.pool.max_open_conns", 20)
	v.SetDefault("postgres.pool.max_idle_conns", 5)
	v.SetDefault("postgres.pool.conn_max_lifetime", time.Hour)
	v.SetDefault("postgres.pool.wait_queue_size", 100)

	v.SetDefault("rabbitmq.exchange", "notifications.exchange")
	v.SetDefault("rabbitmq.queue", "notification.events")
	v.SetDefault("rabbitmq.prefetch", 10)

	v.SetDefault("gateways.fcm.environment", "production")
	v.SetDefault("gateways.apns.environment", "sandbox")

	v.SetDefault("worker.count", 5)
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.lock_ttl", 5*time.Minute)
	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.max_retries", 5)
	v.SetDefault("worker.retry_base_delay", time.Minute)
	v.SetDefault("worker.retry_max_delay", time.Hour)
	v.SetDefault("worker.scheduler_interval", time.Minute)
	v.SetDefault("worker.retry_sweep_interval", 15*time.Minute)
	v.SetDefault("worker.archiver_interval", 24*time.Hour)
	v.SetDefault("worker.monitor_sample_interval", 15*time.Second)

	v.SetDefault("breaker.error_threshold", 0.05)
	v.SetDefault("breaker.window_size", time.Hour)
	v.SetDefault("breaker.minimum_requests", 10)
	v.SetDefault("breaker.open_timeout", 10*time.Minute)
	v.SetDefault("breaker.half_open_success_threshold", 10)
	v.SetDefault("breaker.half_open_max_requests", 10)
	v.SetDefault("breaker.error_duration", 2*time.Minute)

	v.SetDefault("fanout.follower_threshold", 10000)
	v.SetDefault("fanout.topic_reach_threshold", 50000)

	v.SetDefault("cache.follower_count_fresh", 5*time.Minute)
	v.SetDefault("cache.follower_count_stale", 10*time.Minute)
	v.SetDefault("cache.following_fresh", 5*time.Minute)
	v.SetDefault("cache.following_stale", 10*time.Minute)
	v.SetDefault("cache.unread_count", 30*time.Second)
	v.SetDefault("cache.group_read", 30*24*time.Hour)

	v.SetDefault("archive.threshold_days", 30)
	v.SetDefault("archive.batch_size", 1000)
	v.SetDefault("archive.max_records_per_run", 100000)
	v.SetDefault("archive.max_batches_per_run", 100)
	v.SetDefault("archive.dry_run", false)

	v.SetDefault("social.base_url", "http://social-service.internal")
	v.SetDefault("social.timeout", 2*time.Second)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
