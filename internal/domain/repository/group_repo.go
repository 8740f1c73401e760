package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
)

// GroupNotificationRepository persists fanout-on-read broadcast records (C8).
type GroupNotificationRepository interface {
	Save(ctx context.Context, g *model.GroupNotification) (*model.GroupNotification, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.GroupNotification, error)
	Update(ctx context.Context, g *model.GroupNotification) error

	// FindActiveForUser lists active, non-expired GroupNotifications created
	// since `since` (if set), sorted desc, bounded to 100 (§4.10). cursor, if
	// set, excludes rows already returned by a prior inbox page so merged
	// personal+group pagination has no duplicates across pages (§8 invariant 8).
	FindActiveForUser(ctx context.Context, since *time.Time, cursor *Cursor) ([]*model.GroupNotification, error)

	// FindRetryableTopicPush returns topic-push GroupNotifications whose
	// retry is due, for the worker pool's topic-push retry path (§4.9).
	FindRetryableTopicPush(ctx context.Context, now time.Time, limit int) ([]*model.GroupNotification, error)

	IncrementViewCount(ctx context.Context, id uuid.UUID) error
	IncrementClickCount(ctx context.Context, id uuid.UUID) error
}

// GroupReadCache tracks per-user read state for GroupNotifications in the
// fast cache, keyed groupRead(userId, groupNotificationId) (§3, §4.10).
type GroupReadCache interface {
	IsRead(ctx context.Context, userID string, groupID uuid.UUID) (bool, error)
	MarkRead(ctx context.Context, userID string, groupID uuid.UUID, ttl time.Duration) error
}
