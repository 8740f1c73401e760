// Package postgres implements every durable repository contract in
// internal/domain/repository against PostgreSQL via pgx/v5, following the
// teacher's pool-plus-mapper shape: each repository wraps the shared pool,
// maps domain models to/from pgtype-wrapped rows, and translates
// pgx.ErrNoRows/pgerrcode.UniqueViolation into the repository package's
// sentinel errors at the boundary.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NewPool builds the shared connection pool off the master DSN, applying the
// §postgres.pool tunables (max_open_conns, max_idle_conns, conn_max_lifetime).
func NewPool(cfg *config.Config, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.MasterDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if cfg.Postgres.Pool.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.Postgres.Pool.MaxOpenConns)
	}
	if cfg.Postgres.Pool.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.Postgres.Pool.MaxIdleConns)
	}
	if cfg.Postgres.Pool.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.Postgres.Pool.ConnMaxLifetime
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	logger.Info().Int32("max_conns", poolCfg.MaxConns).Msg("postgres pool established")
	return pool, nil
}
