package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var _ repo.OutboxRepository = (*OutboxRepository)(nil)

// OutboxRepository persists model.OutboxEvent rows for the C6 relay (§4.6).
// Insert resolves its handle through db(): inside a Transactor.WithinTx call
// it joins that transaction, so the row commits or aborts with the domain
// write it accompanies; outside one it writes through the shared pool.
type OutboxRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOutboxRepository builds the postgres-backed OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *OutboxRepository {
	return &OutboxRepository{pool: pool, logger: logger.With().Str("layer", "postgres_repository").Str("entity", "outbox").Logger()}
}

func (r *OutboxRepository) Insert(ctx context.Context, e *model.OutboxEvent) error {
	_, err := db(ctx, r.pool).Exec(ctx, `
		INSERT INTO outbox_events (outbox_id, event_id, event_type, payload, published, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.OutboxID, e.EventID, e.EventType, e.Payload, e.Published, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert outbox event: %w", err)
	}
	return nil
}

func (r *OutboxRepository) FindUnpublished(ctx context.Context, batchSize int) ([]*model.OutboxEvent, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `
		SELECT outbox_id, event_id, event_type, payload, published, created_at, published_at, retry_count, last_error, next_attempt_at
		FROM outbox_events
		WHERE published = false AND (next_attempt_at IS NULL OR next_attempt_at <= now())
		ORDER BY created_at ASC LIMIT $1`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("postgres: find unpublished outbox events: %w", err)
	}
	defer rows.Close()

	var out []*model.OutboxEvent
	for rows.Next() {
		var e model.OutboxEvent
		if err := rows.Scan(&e.OutboxID, &e.EventID, &e.EventType, &e.Payload, &e.Published, &e.CreatedAt, &e.PublishedAt, &e.RetryCount, &e.LastError, &e.NextAttemptAt); err != nil {
			return nil, fmt.Errorf("postgres: scan outbox event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, outboxID string, now time.Time) error {
	_, err := db(ctx, r.pool).Exec(ctx, `UPDATE outbox_events SET published = true, published_at = $2 WHERE outbox_id = $1`, outboxID, now)
	if err != nil {
		return fmt.Errorf("postgres: mark outbox published: %w", err)
	}
	return nil
}

func (r *OutboxRepository) IncrementRetry(ctx context.Context, outboxID string, lastError string, nextAttemptAt time.Time) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE outbox_events SET retry_count = retry_count + 1, last_error = $2, next_attempt_at = $3 WHERE outbox_id = $1`,
		outboxID, lastError, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("postgres: increment outbox retry: %w", err)
	}
	return nil
}
