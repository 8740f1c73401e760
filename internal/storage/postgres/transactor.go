package postgres

import (
	"context"
	"fmt"

	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// querier is the subset of pgxpool.Pool and pgx.Tx every repository needs;
// repositories code against it so the same method runs standalone or inside
// a Transactor.WithinTx call without change.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txContextKey struct{}

// Transactor implements repository.Transactor against the shared pool.
type Transactor struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

var _ repo.Transactor = (*Transactor)(nil)

// NewTransactor builds the postgres Transactor.
func NewTransactor(pool *pgxpool.Pool, logger *zerolog.Logger) *Transactor {
	return &Transactor{pool: pool, logger: logger.With().Str("component", "postgres_transactor").Logger()}
}

// WithinTx begins a transaction, stores the handle on ctx so participating
// repositories read it back via db(ctx), and commits on success or rolls back
// on error/panic (§4.6: notification write + outbox insert must commit or
// abort together).
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	txCtx := context.WithValue(ctx, txContextKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			t.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// db returns the active transaction from ctx if WithinTx is in progress,
// otherwise the shared pool. Every repository method calls this first.
func db(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}
