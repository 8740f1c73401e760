package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var _ repo.IdempotencyRepository = (*IdempotencyRepository)(nil)

// IdempotencyRepository is the durable tier of the C1 idempotency store.
type IdempotencyRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewIdempotencyRepository builds the postgres-backed IdempotencyRepository.
func NewIdempotencyRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool, logger: logger.With().Str("layer", "postgres_repository").Str("entity", "idempotency").Logger()}
}

func (r *IdempotencyRepository) Find(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord
	err := db(ctx, r.pool).QueryRow(ctx, `
		SELECT idempotency_key, event_id, event_type, notification_id, user_id, processed_at, expires_at
		FROM idempotency_records WHERE idempotency_key = $1`, key,
	).Scan(&rec.IdempotencyKey, &rec.EventID, &rec.EventType, &rec.NotificationID, &rec.UserID, &rec.ProcessedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find idempotency record: %w", err)
	}
	return &rec, nil
}

func (r *IdempotencyRepository) Upsert(ctx context.Context, rec *model.IdempotencyRecord) error {
	_, err := db(ctx, r.pool).Exec(ctx, `
		INSERT INTO idempotency_records (idempotency_key, event_id, event_type, notification_id, user_id, processed_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		rec.IdempotencyKey, rec.EventID, rec.EventType, rec.NotificationID, rec.UserID, rec.ProcessedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert idempotency record: %w", err)
	}
	return nil
}

var _ repo.DeliveryLogRepository = (*DeliveryLogRepository)(nil)

// DeliveryLogRepository persists the (notificationId, deviceId)-keyed
// delivery attempt ledger (§3), independent of the Notification's own
// embedded device list so retry scans can be indexed directly.
type DeliveryLogRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDeliveryLogRepository builds the postgres-backed DeliveryLogRepository.
func NewDeliveryLogRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *DeliveryLogRepository {
	return &DeliveryLogRepository{pool: pool, logger: logger.With().Str("layer", "postgres_repository").Str("entity", "delivery_log").Logger()}
}

func (r *DeliveryLogRepository) Upsert(ctx context.Context, l *model.DeliveryLog) error {
	_, err := db(ctx, r.pool).Exec(ctx, `
		INSERT INTO delivery_logs (notification_id, device_id, status, attempt_count, last_error, next_retry_at, sent_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (notification_id, device_id) DO UPDATE SET
			status = EXCLUDED.status, attempt_count = EXCLUDED.attempt_count,
			last_error = EXCLUDED.last_error, next_retry_at = EXCLUDED.next_retry_at, sent_at = EXCLUDED.sent_at`,
		l.NotificationID, l.DeviceID, string(l.Status), l.AttemptCount, l.LastError, l.NextRetryAt, l.SentAt, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert delivery log: %w", err)
	}
	return nil
}

func (r *DeliveryLogRepository) FindByNotification(ctx context.Context, notificationID string) ([]*model.DeliveryLog, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `
		SELECT notification_id, device_id, status, attempt_count, last_error, next_retry_at, sent_at, created_at
		FROM delivery_logs WHERE notification_id = $1`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: find delivery logs: %w", err)
	}
	defer rows.Close()

	var out []*model.DeliveryLog
	for rows.Next() {
		var l model.DeliveryLog
		var status string
		if err := rows.Scan(&l.NotificationID, &l.DeviceID, &status, &l.AttemptCount, &l.LastError, &l.NextRetryAt, &l.SentAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan delivery log: %w", err)
		}
		l.Status = model.DeliveryLogStatus(status)
		out = append(out, &l)
	}
	return out, rows.Err()
}
