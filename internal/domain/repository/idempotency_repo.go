package repository

import (
	"context"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
)

// IdempotencyRepository is the durable tier of the C1 idempotency store.
type IdempotencyRepository interface {
	Find(ctx context.Context, key string) (*model.IdempotencyRecord, error)
	Upsert(ctx context.Context, r *model.IdempotencyRecord) error
}

// DeliveryLogRepository persists the (notificationId, deviceId)-keyed
// delivery attempt ledger (§3).
type DeliveryLogRepository interface {
	Upsert(ctx context.Context, l *model.DeliveryLog) error
	FindByNotification(ctx context.Context, notificationID string) ([]*model.DeliveryLog, error)
}
