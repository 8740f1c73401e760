package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/pkg/cursor"
	"github.com/rs/zerolog"
)

type fakeNotificationRepo struct {
	personal     []*model.Notification
	unreadCount  int
	markReadIDs  []uuid.UUID
	markReadFail bool
}

func (r *fakeNotificationRepo) Save(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	return n, nil
}
func (r *fakeNotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return nil, repository.ErrNotFound
}
func (r *fakeNotificationRepo) GetByResourceID(ctx context.Context, userID string, category model.Category, resourceID string) (*model.Notification, error) {
	return nil, repository.ErrNotFound
}
func (r *fakeNotificationRepo) Update(ctx context.Context, n *model.Notification) error { return nil }
func (r *fakeNotificationRepo) Delete(ctx context.Context, id uuid.UUID) error          { return nil }
func (r *fakeNotificationRepo) LeaseBatch(ctx context.Context, workerID string, limit int, lockTTL time.Duration, maxRetries int, now time.Time) ([]*model.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) ReleaseLeasesFor(ctx context.Context, workerID string) error { return nil }
func (r *fakeNotificationRepo) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) FindExpiredScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) FindRetryableFailed(ctx context.Context, maxRetries int, olderThan time.Time, limit int) ([]*model.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) FindPersonalForUser(ctx context.Context, userID string, q repository.InboxQuery) ([]*model.Notification, error) {
	return r.personal, nil
}
func (r *fakeNotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	return r.unreadCount, nil
}
func (r *fakeNotificationRepo) CountForInbox(ctx context.Context, userID string, includeRead bool, since *time.Time) (int, error) {
	return len(r.personal), nil
}
func (r *fakeNotificationRepo) MarkRead(ctx context.Context, id uuid.UUID, userID string, now time.Time) error {
	if r.markReadFail {
		return repository.ErrNotFound
	}
	r.markReadIDs = append(r.markReadIDs, id)
	return nil
}
func (r *fakeNotificationRepo) MarkReadBatch(ctx context.Context, ids []uuid.UUID, userID string, now time.Time) (int, error) {
	return len(ids), nil
}
func (r *fakeNotificationRepo) ArchiveOlderThan(ctx context.Context, cutoff time.Time, batchSize int, dryRun bool) (int, error) {
	return 0, nil
}

type fakeGroupRepo struct {
	active []*model.GroupNotification
}

func (r *fakeGroupRepo) Save(ctx context.Context, g *model.GroupNotification) (*model.GroupNotification, error) {
	return g, nil
}
func (r *fakeGroupRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.GroupNotification, error) {
	return nil, repository.ErrNotFound
}
func (r *fakeGroupRepo) Update(ctx context.Context, g *model.GroupNotification) error { return nil }
func (r *fakeGroupRepo) FindActiveForUser(ctx context.Context, since *time.Time, cur *repository.Cursor) ([]*model.GroupNotification, error) {
	if cur == nil {
		return r.active, nil
	}
	var filtered []*model.GroupNotification
	for _, g := range r.active {
		if g.CreatedAt.Before(cur.CreatedAt) || (g.CreatedAt.Equal(cur.CreatedAt) && g.GroupNotificationID.String() < cur.ID.String()) {
			filtered = append(filtered, g)
		}
	}
	return filtered, nil
}
func (r *fakeGroupRepo) FindRetryableTopicPush(ctx context.Context, now time.Time, limit int) ([]*model.GroupNotification, error) {
	return nil, nil
}
func (r *fakeGroupRepo) IncrementViewCount(ctx context.Context, id uuid.UUID) error  { return nil }
func (r *fakeGroupRepo) IncrementClickCount(ctx context.Context, id uuid.UUID) error { return nil }

type fakeGroupReadCache struct {
	read map[string]bool
}

func (c *fakeGroupReadCache) IsRead(ctx context.Context, userID string, groupID uuid.UUID) (bool, error) {
	return c.read[userID+"|"+groupID.String()], nil
}
func (c *fakeGroupReadCache) MarkRead(ctx context.Context, userID string, groupID uuid.UUID, ttl time.Duration) error {
	if c.read == nil {
		c.read = map[string]bool{}
	}
	c.read[userID+"|"+groupID.String()] = true
	return nil
}

type fakeUnreadCache struct {
	values      map[string]int
	invalidated []string
}

func (c *fakeUnreadCache) Get(ctx context.Context, userID string) (int, bool, error) {
	v, ok := c.values[userID]
	return v, ok, nil
}
func (c *fakeUnreadCache) Set(ctx context.Context, userID string, count int, ttl time.Duration) error {
	if c.values == nil {
		c.values = map[string]int{}
	}
	c.values[userID] = count
	return nil
}
func (c *fakeUnreadCache) Invalidate(ctx context.Context, userID string) error {
	c.invalidated = append(c.invalidated, userID)
	delete(c.values, userID)
	return nil
}

type fakeFollowingChecker struct{ following map[string]bool }

func (f *fakeFollowingChecker) IsFollowing(ctx context.Context, userID, actorUserID string) (bool, error) {
	return f.following[userID+"|"+actorUserID], nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testCacheCfg() config.CacheTTLConfig {
	return config.CacheTTLConfig{UnreadCount: 30 * time.Second, GroupRead: 30 * 24 * time.Hour}
}

func TestGetNotificationsMergesPersonalAndRelevantGroups(t *testing.T) {
	now := time.Now()
	personal := []*model.Notification{
		{NotificationID: uuid.New(), Title: "personal-1", CreatedAt: now, IsRead: false},
	}
	group := &model.GroupNotification{
		GroupNotificationID: uuid.New(), ActorUserID: "actor-1", Title: "group-1",
		TargetAudience: model.AudienceFollowers, CreatedAt: now.Add(-time.Minute), IsActive: true,
	}
	notifRepo := &fakeNotificationRepo{personal: personal}
	groupRepo := &fakeGroupRepo{active: []*model.GroupNotification{group}}
	following := &fakeFollowingChecker{following: map[string]bool{"user-1|actor-1": true}}

	s := New(notifRepo, groupRepo, &fakeGroupReadCache{}, &fakeUnreadCache{}, following, testCacheCfg(), testLogger())

	items, _, hasMore, total, err := s.GetNotifications(context.Background(), "user-1", repository.InboxQuery{Limit: 20})
	if err != nil {
		t.Fatalf("GetNotifications returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 merged items, got %d", len(items))
	}
	if items[0].Kind != "personal" {
		t.Errorf("expected the newer personal item first, got kind=%s", items[0].Kind)
	}
	if hasMore {
		t.Error("hasMore should be false when everything fits on one page")
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
}

func TestGetNotificationsExcludesNonRelevantGroup(t *testing.T) {
	group := &model.GroupNotification{
		GroupNotificationID: uuid.New(), ActorUserID: "actor-1",
		TargetAudience: model.AudienceFollowers, CreatedAt: time.Now(), IsActive: true,
	}
	notifRepo := &fakeNotificationRepo{}
	groupRepo := &fakeGroupRepo{active: []*model.GroupNotification{group}}
	following := &fakeFollowingChecker{following: map[string]bool{}}

	s := New(notifRepo, groupRepo, &fakeGroupReadCache{}, &fakeUnreadCache{}, following, testCacheCfg(), testLogger())
	items, _, _, _, err := s.GetNotifications(context.Background(), "user-1", repository.InboxQuery{Limit: 20})
	if err != nil {
		t.Fatalf("GetNotifications returned error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("non-follower should not see the followers-only broadcast, got %d items", len(items))
	}
}

func TestGetNotificationsPaginatesGroupItemsWithoutDuplicates(t *testing.T) {
	now := time.Now()
	groups := []*model.GroupNotification{
		{GroupNotificationID: uuid.New(), ActorUserID: "actor-1", Title: "g1", TargetAudience: model.AudienceFollowers, CreatedAt: now, IsActive: true},
		{GroupNotificationID: uuid.New(), ActorUserID: "actor-1", Title: "g2", TargetAudience: model.AudienceFollowers, CreatedAt: now.Add(-time.Minute), IsActive: true},
		{GroupNotificationID: uuid.New(), ActorUserID: "actor-1", Title: "g3", TargetAudience: model.AudienceFollowers, CreatedAt: now.Add(-2 * time.Minute), IsActive: true},
	}
	notifRepo := &fakeNotificationRepo{}
	groupRepo := &fakeGroupRepo{active: groups}
	following := &fakeFollowingChecker{following: map[string]bool{"user-1|actor-1": true}}
	s := New(notifRepo, groupRepo, &fakeGroupReadCache{}, &fakeUnreadCache{}, following, testCacheCfg(), testLogger())

	seen := map[uuid.UUID]bool{}
	q := repository.InboxQuery{Limit: 1}
	for page := 0; page < 4; page++ {
		items, nextCursor, hasMore, _, err := s.GetNotifications(context.Background(), "user-1", q)
		if err != nil {
			t.Fatalf("page %d: GetNotifications returned error: %v", page, err)
		}
		for _, it := range items {
			if seen[it.ID] {
				t.Fatalf("page %d: item %s returned again, pagination produced a duplicate", page, it.ID)
			}
			seen[it.ID] = true
		}
		if nextCursor == "" {
			if hasMore {
				t.Fatalf("page %d: hasMore true but no nextCursor returned", page)
			}
			break
		}
		decoded, err := cursor.Decode(nextCursor)
		if err != nil {
			t.Fatalf("page %d: failed to decode nextCursor: %v", page, err)
		}
		q.Cursor = &decoded
	}

	if len(seen) != len(groups) {
		t.Errorf("saw %d distinct items across pages, want %d", len(seen), len(groups))
	}
}

func TestGetUnreadCountUsesCacheWhenPresent(t *testing.T) {
	notifRepo := &fakeNotificationRepo{unreadCount: 99}
	cache := &fakeUnreadCache{values: map[string]int{"user-1": 3}}
	s := New(notifRepo, &fakeGroupRepo{}, &fakeGroupReadCache{}, cache, &fakeFollowingChecker{}, testCacheCfg(), testLogger())

	count, err := s.GetUnreadCount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetUnreadCount returned error: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3 (from cache, not the store's 99)", count)
	}
}

func TestGetUnreadCountFallsThroughOnCacheMissAndPopulates(t *testing.T) {
	notifRepo := &fakeNotificationRepo{unreadCount: 5}
	cache := &fakeUnreadCache{}
	s := New(notifRepo, &fakeGroupRepo{}, &fakeGroupReadCache{}, cache, &fakeFollowingChecker{}, testCacheCfg(), testLogger())

	count, err := s.GetUnreadCount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetUnreadCount returned error: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
	if cache.values["user-1"] != 5 {
		t.Error("expected the computed count to be written back to cache")
	}
}

func TestMarkAsReadFallsBackToGroupOnNotFound(t *testing.T) {
	notifRepo := &fakeNotificationRepo{markReadFail: true}
	groupReads := &fakeGroupReadCache{}
	cache := &fakeUnreadCache{values: map[string]int{"user-1": 4}}
	s := New(notifRepo, &fakeGroupRepo{}, groupReads, cache, &fakeFollowingChecker{}, testCacheCfg(), testLogger())

	groupID := uuid.New()
	if err := s.MarkAsRead(context.Background(), "user-1", groupID, time.Now()); err != nil {
		t.Fatalf("MarkAsRead returned error: %v", err)
	}
	if !groupReads.read["user-1|"+groupID.String()] {
		t.Error("expected the group read-state cache to be marked")
	}
	if _, ok := cache.values["user-1"]; ok {
		t.Error("expected unread-count cache to be invalidated after mark-as-read")
	}
}
