package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
)

// NotificationRepository is the contract for personal-notification
// persistence, including the lease-based lookup the delivery worker pool (C9)
// relies on.
type NotificationRepository interface {
	// Save persists a new notification. A duplicate-key violation on the
	// (userId, category, resourceId) partial index maps to ErrDuplicateRecord;
	// callers must race-safely fetch and return the existing row (§4.7).
	Save(ctx context.Context, n *model.Notification) (*model.Notification, error)

	// GetByID retrieves a notification by its unique ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)

	// GetByResourceID finds an existing row by the idempotency-discriminating
	// (userId, category, resourceId) tuple, used on duplicate-insert races.
	GetByResourceID(ctx context.Context, userID string, category model.Category, resourceID string) (*model.Notification, error)

	// Update persists the full mutable state of a notification (status,
	// delivery, lease fields, isRead).
	Update(ctx context.Context, n *model.Notification) error

	// Delete cancels a scheduled notification (soft: status=cancelled).
	Delete(ctx context.Context, id uuid.UUID) error

	// LeaseBatch atomically claims up to limit pending/scheduled,
	// lease-free-or-expired, due notifications for workerID and returns the
	// claimed rows (§4.9 lease-acquisition predicate).
	LeaseBatch(ctx context.Context, workerID string, limit int, lockTTL time.Duration, maxRetries int, now time.Time) ([]*model.Notification, error)

	// ReleaseLeasesFor clears every lease currently held by workerID, used on
	// worker shutdown (§4.9) and crash-recovery sweeps.
	ReleaseLeasesFor(ctx context.Context, workerID string) error

	// FindDueScheduled returns notifications with status=scheduled and
	// scheduleAt<=now, for the C11 scheduled dispatcher.
	FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error)

	// FindExpiredScheduled returns scheduled notifications whose expiresAt has
	// passed, to be cancelled by C11.
	FindExpiredScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error)

	// FindRetryableFailed returns failed notifications eligible for another
	// attempt, for the C11 retry sweeper.
	FindRetryableFailed(ctx context.Context, maxRetries int, olderThan time.Time, limit int) ([]*model.Notification, error)

	// FindPersonalForUser lists personal notifications for the inbox read
	// path (C10), applying the cursor predicate from §4.10.
	FindPersonalForUser(ctx context.Context, userID string, q InboxQuery) ([]*model.Notification, error)

	// CountUnread returns the count of unread personal notifications for a user.
	CountUnread(ctx context.Context, userID string) (int, error)

	// CountForInbox returns the total personal notifications matching the
	// inbox read-path filters (includeRead, since), ignoring pagination, for
	// the §6 `total` field.
	CountForInbox(ctx context.Context, userID string, includeRead bool, since *time.Time) (int, error)

	// MarkRead flips isRead/readAt for a single notification owned by userID.
	MarkRead(ctx context.Context, id uuid.UUID, userID string, now time.Time) error

	// MarkReadBatch flips isRead/readAt for every id owned by userID, returning
	// the count actually updated.
	MarkReadBatch(ctx context.Context, ids []uuid.UUID, userID string, now time.Time) (int, error)

	// ArchiveOlderThan copies up to batchSize rows older than cutoff into the
	// archive store and deletes them from the live collection, returning the
	// count archived. dryRun logs only (§4.11).
	ArchiveOlderThan(ctx context.Context, cutoff time.Time, batchSize int, dryRun bool) (int, error)
}

// InboxQuery carries the cursor-pagination parameters of §4.10.
type InboxQuery struct {
	Limit       int
	Cursor      *Cursor
	IncludeRead bool
	Since       *time.Time
}

// Cursor is the decoded `{createdAt, id}` pagination cursor (§4.10).
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NotificationCache is the read-through cache contract generalized from the
// teacher's cache-aside decorator to the Notification entity.
type NotificationCache interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	Set(ctx context.Context, n *model.Notification, expiration time.Duration) error
	Delete(ctx context.Context, id uuid.UUID) error
}
