// Package inbox implements the C10 read path: merging a recipient's personal
// notifications with the fanout-on-read GroupNotifications relevant to them,
// cursor pagination, the cached unread count, and mark-as-read for both
// entity kinds (§4.10).
package inbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/pkg/cursor"
	"github.com/rs/zerolog"
)

// FollowingChecker answers whether userID follows actorUserID, backing the
// GroupNotification relevance rule (§4.10).
type FollowingChecker interface {
	IsFollowing(ctx context.Context, userID, actorUserID string) (bool, error)
}

// UnreadCountCache is the fast-cache tier backing GetUnreadCount.
type UnreadCountCache interface {
	Get(ctx context.Context, userID string) (int, bool, error)
	Set(ctx context.Context, userID string, count int, ttl time.Duration) error
	Invalidate(ctx context.Context, userID string) error
}

// Item is the merged, kind-tagged view returned to API clients (§6).
type Item struct {
	ID        uuid.UUID
	Kind      string // "personal" | "group"
	Title     string
	Body      string
	Data      map[string]any
	ImageURL  string
	ActionURL string
	Category  model.Category
	CreatedAt time.Time
	IsRead    bool
}

// Service implements the C10 inbox read path.
type Service struct {
	notifications repository.NotificationRepository
	groups        repository.GroupNotificationRepository
	groupReads    repository.GroupReadCache
	unreadCache   UnreadCountCache
	following     FollowingChecker
	cacheCfg      config.CacheTTLConfig
	logger        zerolog.Logger
}

// New builds the C10 inbox service.
func New(
	notifications repository.NotificationRepository,
	groups repository.GroupNotificationRepository,
	groupReads repository.GroupReadCache,
	unreadCache UnreadCountCache,
	following FollowingChecker,
	cacheCfg config.CacheTTLConfig,
	logger *zerolog.Logger,
) *Service {
	return &Service{
		notifications: notifications,
		groups:        groups,
		groupReads:    groupReads,
		unreadCache:   unreadCache,
		following:     following,
		cacheCfg:      cacheCfg,
		logger:        logger.With().Str("component", "inbox_service").Logger(),
	}
}

// GetNotifications merges personal and relevant group notifications, sorts
// by createdAt desc, and returns a page plus the opaque cursor for the next
// one (empty when exhausted), along with hasMore/total for the §6 contract
// `{notifications, nextCursor, hasMore, total}`.
func (s *Service) GetNotifications(ctx context.Context, userID string, q repository.InboxQuery) ([]Item, string, bool, int, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}

	// Fetch one extra personal row so a (limit+1)th row, on its own, can
	// signal more pages even if every group item fits on this page (§4.10
	// step 2/4).
	personalQ := q
	personalQ.Limit = q.Limit + 1
	personal, err := s.notifications.FindPersonalForUser(ctx, userID, personalQ)
	if err != nil {
		return nil, "", false, 0, fmt.Errorf("inbox: find personal notifications: %w", err)
	}

	// The group fetch is bounded by the same cursor as the page being
	// built, so a group item already returned on an earlier page is never
	// re-fetched (§8 invariant 8).
	groupItems, err := s.relevantGroupItems(ctx, userID, q)
	if err != nil {
		return nil, "", false, 0, fmt.Errorf("inbox: find group notifications: %w", err)
	}

	items := make([]Item, 0, len(personal)+len(groupItems))
	for _, n := range personal {
		items = append(items, Item{
			ID: n.NotificationID, Kind: "personal", Title: n.Title, Body: n.Body,
			Data: n.Data, ImageURL: n.ImageURL, Category: n.Category,
			CreatedAt: n.CreatedAt, IsRead: n.IsRead,
		})
	}
	items = append(items, groupItems...)

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if !q.IncludeRead {
		filtered := items[:0]
		for _, it := range items {
			if !it.IsRead {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	hasMore := len(items) > q.Limit
	if hasMore {
		items = items[:q.Limit]
	}

	nextCursor := ""
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = cursor.Encode(repository.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	total, err := s.countTotal(ctx, userID, q)
	if err != nil {
		return nil, "", false, 0, fmt.Errorf("inbox: count total: %w", err)
	}

	return items, nextCursor, hasMore, total, nil
}

// countTotal reports the total items matching q's filters across every page,
// for the §6 `total` field.
func (s *Service) countTotal(ctx context.Context, userID string, q repository.InboxQuery) (int, error) {
	personalTotal, err := s.notifications.CountForInbox(ctx, userID, q.IncludeRead, q.Since)
	if err != nil {
		return 0, err
	}
	allGroups, err := s.relevantGroupItems(ctx, userID, repository.InboxQuery{Since: q.Since})
	if err != nil {
		return 0, err
	}
	groupTotal := 0
	for _, it := range allGroups {
		if q.IncludeRead || !it.IsRead {
			groupTotal++
		}
	}
	return personalTotal + groupTotal, nil
}

func (s *Service) relevantGroupItems(ctx context.Context, userID string, q repository.InboxQuery) ([]Item, error) {
	groups, err := s.groups.FindActiveForUser(ctx, q.Since, q.Cursor)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(groups))
	for _, g := range groups {
		isFollowing := false
		if s.following != nil {
			isFollowing, err = s.following.IsFollowing(ctx, userID, g.ActorUserID)
			if err != nil {
				s.logger.Warn().Err(err).Str("actor_user_id", g.ActorUserID).Msg("is-following lookup failed, treating as not relevant")
				continue
			}
		}
		if !g.IsRelevantTo(userID, isFollowing) {
			continue
		}
		isRead := false
		if s.groupReads != nil {
			isRead, err = s.groupReads.IsRead(ctx, userID, g.GroupNotificationID)
			if err != nil {
				s.logger.Warn().Err(err).Msg("group read-state lookup failed, defaulting to unread")
			}
		}
		items = append(items, Item{
			ID: g.GroupNotificationID, Kind: "group", Title: g.Title, Body: g.Body,
			Data: g.Data, ImageURL: g.ImageURL, ActionURL: g.ActionURL,
			CreatedAt: g.CreatedAt, IsRead: isRead,
		})
	}
	return items, nil
}

// GetUnreadCount returns the recipient's unread count, cache-aside over the
// personal-notification count plus unread relevant broadcasts (§4.10).
func (s *Service) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	if s.unreadCache != nil {
		if count, ok, err := s.unreadCache.Get(ctx, userID); err == nil && ok {
			return count, nil
		} else if err != nil {
			s.logger.Warn().Err(err).Msg("unread-count cache read failed, falling through to store")
		}
	}

	personalCount, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("inbox: count unread: %w", err)
	}

	groupItems, err := s.relevantGroupItems(ctx, userID, repository.InboxQuery{})
	if err != nil {
		return 0, fmt.Errorf("inbox: count unread groups: %w", err)
	}
	unreadGroups := 0
	for _, it := range groupItems {
		if !it.IsRead {
			unreadGroups++
		}
	}

	total := personalCount + unreadGroups
	if s.unreadCache != nil {
		if err := s.unreadCache.Set(ctx, userID, total, s.cacheCfg.UnreadCount); err != nil {
			s.logger.Warn().Err(err).Msg("failed to populate unread-count cache")
		}
	}
	return total, nil
}

// MarkAsRead flips the read state for either a personal notification or a
// GroupNotification, trying personal first and falling back to group on
// ErrNotFound (§4.10).
func (s *Service) MarkAsRead(ctx context.Context, userID string, id uuid.UUID, now time.Time) error {
	err := s.notifications.MarkRead(ctx, id, userID, now)
	if err == nil {
		s.invalidateUnreadCount(ctx, userID)
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("inbox: mark personal notification read: %w", err)
	}

	if s.groupReads == nil {
		return fmt.Errorf("inbox: mark as read: %w", err)
	}
	if markErr := s.groupReads.MarkRead(ctx, userID, id, s.cacheCfg.GroupRead); markErr != nil {
		return fmt.Errorf("inbox: mark group notification read: %w", markErr)
	}
	s.invalidateUnreadCount(ctx, userID)
	return nil
}

// MarkBatchAsRead flips read state for every personal notification in ids
// owned by userID, returning the count actually updated (§4.10).
func (s *Service) MarkBatchAsRead(ctx context.Context, userID string, ids []uuid.UUID, now time.Time) (int, error) {
	count, err := s.notifications.MarkReadBatch(ctx, ids, userID, now)
	if err != nil {
		return 0, fmt.Errorf("inbox: mark batch read: %w", err)
	}
	s.invalidateUnreadCount(ctx, userID)
	return count, nil
}

func (s *Service) invalidateUnreadCount(ctx context.Context, userID string) {
	if s.unreadCache == nil {
		return
	}
	if err := s.unreadCache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate unread-count cache")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
