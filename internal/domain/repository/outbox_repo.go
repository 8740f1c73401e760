package repository

import (
	"context"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
)

// OutboxRepository persists OutboxEvent rows for the C6 relay (§4.6).
type OutboxRepository interface {
	// Insert writes a new unpublished row, intended to be called within the
	// same transaction as the domain write it accompanies.
	Insert(ctx context.Context, e *model.OutboxEvent) error

	// FindUnpublished returns the oldest unpublished rows, bounded to batchSize.
	FindUnpublished(ctx context.Context, batchSize int) ([]*model.OutboxEvent, error)

	// MarkPublished sets published=true, publishedAt=now for outboxID.
	MarkPublished(ctx context.Context, outboxID string, now time.Time) error

	// IncrementRetry records a publish failure and defers the row's next
	// attempt until nextAttemptAt, so the backoff delay is honored without
	// the relay blocking on it in-process (§4.6).
	IncrementRetry(ctx context.Context, outboxID string, lastError string, nextAttemptAt time.Time) error
}
