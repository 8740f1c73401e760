package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/rs/zerolog"
)

var _ repo.NotificationRepository = (*CachedNotificationRepository)(nil)

// CachedNotificationRepository decorates a NotificationRepository with a
// cache-aside GetByID, a cache write after Save, and cache invalidation on
// Update, Delete, MarkRead and MarkReadBatch; every other method (lease
// claims, sweeps, inbox listing, counts) bypasses the cache entirely.
type CachedNotificationRepository struct {
	primary repo.NotificationRepository
	cache   repo.NotificationCache
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewCachedNotificationRepository builds the decorator.
func NewCachedNotificationRepository(primary repo.NotificationRepository, cache repo.NotificationCache, logger *zerolog.Logger) *CachedNotificationRepository {
	return &CachedNotificationRepository{primary: primary, cache: cache, ttl: 24 * time.Hour, logger: logger.With().Str("layer", "cached_repository").Str("entity", "notification").Logger()}
}

func (r *CachedNotificationRepository) Save(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	created, err := r.primary.Save(ctx, n)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, created, r.ttl); err != nil {
		r.logger.Error().Err(err).Stringer("id", created.NotificationID).Msg("failed to cache notification after save")
	}
	return created, nil
}

func (r *CachedNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	cached, err := r.cache.Get(ctx, id)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		r.logger.Error().Err(err).Stringer("id", id).Msg("cache get error, falling back to primary repository")
	}

	primary, err := r.primary.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, primary, r.ttl); err != nil {
		r.logger.Error().Err(err).Stringer("id", primary.NotificationID).Msg("failed to set cache after db fetch")
	}
	return primary, nil
}

func (r *CachedNotificationRepository) GetByResourceID(ctx context.Context, userID string, category model.Category, resourceID string) (*model.Notification, error) {
	return r.primary.GetByResourceID(ctx, userID, category, resourceID)
}

func (r *CachedNotificationRepository) Update(ctx context.Context, n *model.Notification) error {
	if err := r.primary.Update(ctx, n); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, n.NotificationID); err != nil {
		r.logger.Error().Err(err).Stringer("id", n.NotificationID).Msg("failed to invalidate cache after update")
	}
	return nil
}

func (r *CachedNotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.primary.Delete(ctx, id); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, id); err != nil {
		r.logger.Error().Err(err).Stringer("id", id).Msg("failed to invalidate cache after delete")
	}
	return nil
}

func (r *CachedNotificationRepository) LeaseBatch(ctx context.Context, workerID string, limit int, lockTTL time.Duration, maxRetries int, now time.Time) ([]*model.Notification, error) {
	return r.primary.LeaseBatch(ctx, workerID, limit, lockTTL, maxRetries, now)
}

func (r *CachedNotificationRepository) ReleaseLeasesFor(ctx context.Context, workerID string) error {
	return r.primary.ReleaseLeasesFor(ctx, workerID)
}

func (r *CachedNotificationRepository) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	return r.primary.FindDueScheduled(ctx, now, limit)
}

func (r *CachedNotificationRepository) FindExpiredScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	return r.primary.FindExpiredScheduled(ctx, now, limit)
}

func (r *CachedNotificationRepository) FindRetryableFailed(ctx context.Context, maxRetries int, olderThan time.Time, limit int) ([]*model.Notification, error) {
	return r.primary.FindRetryableFailed(ctx, maxRetries, olderThan, limit)
}

func (r *CachedNotificationRepository) FindPersonalForUser(ctx context.Context, userID string, q repo.InboxQuery) ([]*model.Notification, error) {
	return r.primary.FindPersonalForUser(ctx, userID, q)
}

func (r *CachedNotificationRepository) CountForInbox(ctx context.Context, userID string, includeRead bool, since *time.Time) (int, error) {
	return r.primary.CountForInbox(ctx, userID, includeRead, since)
}

func (r *CachedNotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	return r.primary.CountUnread(ctx, userID)
}

func (r *CachedNotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, userID string, now time.Time) error {
	if err := r.primary.MarkRead(ctx, id, userID, now); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, id); err != nil {
		r.logger.Error().Err(err).Stringer("id", id).Msg("failed to invalidate cache after mark-read")
	}
	return nil
}

func (r *CachedNotificationRepository) MarkReadBatch(ctx context.Context, ids []uuid.UUID, userID string, now time.Time) (int, error) {
	count, err := r.primary.MarkReadBatch(ctx, ids, userID, now)
	if err != nil {
		return count, err
	}
	for _, id := range ids {
		if err := r.cache.Delete(ctx, id); err != nil {
			r.logger.Error().Err(err).Stringer("id", id).Msg("failed to invalidate cache after batch mark-read")
		}
	}
	return count, nil
}

func (r *CachedNotificationRepository) ArchiveOlderThan(ctx context.Context, cutoff time.Time, batchSize int, dryRun bool) (int, error) {
	return r.primary.ArchiveOlderThan(ctx, cutoff, batchSize, dryRun)
}
