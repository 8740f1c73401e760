package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/internal/stampede"
	"github.com/rs/zerolog"
)

type fakeFollowerService struct {
	count int
	err   error
}

func (f *fakeFollowerService) FollowerCount(ctx context.Context, actorUserID string) (int, error) {
	return f.count, f.err
}

type fakeDurableCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newFakeDurableCache() *fakeDurableCache { return &fakeDurableCache{values: make(map[string][]byte)} }

func (c *fakeDurableCache) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return nil, 0, false, nil
	}
	return v, 0, true, nil
}

func (c *fakeDurableCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

type fakeLocker struct{}

func (fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) { return true, nil }
func (fakeLocker) Unlock(ctx context.Context, key string) error                             { return nil }

type fakeGroupRepo struct {
	saved *model.GroupNotification
}

func (r *fakeGroupRepo) Save(ctx context.Context, g *model.GroupNotification) (*model.GroupNotification, error) {
	r.saved = g
	return g, nil
}
func (r *fakeGroupRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.GroupNotification, error) {
	return r.saved, nil
}
func (r *fakeGroupRepo) Update(ctx context.Context, g *model.GroupNotification) error { return nil }
func (r *fakeGroupRepo) FindActiveForUser(ctx context.Context, since *time.Time, cursor *repository.Cursor) ([]*model.GroupNotification, error) {
	return nil, nil
}
func (r *fakeGroupRepo) FindRetryableTopicPush(ctx context.Context, now time.Time, limit int) ([]*model.GroupNotification, error) {
	return nil, nil
}
func (r *fakeGroupRepo) IncrementViewCount(ctx context.Context, id uuid.UUID) error  { return nil }
func (r *fakeGroupRepo) IncrementClickCount(ctx context.Context, id uuid.UUID) error { return nil }

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testFanoutConfig() config.FanoutConfig {
	return config.FanoutConfig{FollowerThreshold: 10000, TopicReachThreshold: 50000}
}

func TestShouldUseFanoutOnReadWithExplicitCount(t *testing.T) {
	s := NewSelector(testFanoutConfig(), &fakeFollowerService{}, stampede.NewGuard(newFakeDurableCache(), fakeLocker{}, testLogger()), &fakeGroupRepo{}, testLogger())

	high := 20000
	if !s.ShouldUseFanoutOnRead(context.Background(), "actor-1", &high) {
		t.Error("20000 followers should exceed the 10000 threshold")
	}
	low := 500
	if s.ShouldUseFanoutOnRead(context.Background(), "actor-1", &low) {
		t.Error("500 followers should be below the 10000 threshold")
	}
}

func TestShouldUseFanoutOnReadResolvesFromFollowerService(t *testing.T) {
	followers := &fakeFollowerService{count: 15000}
	s := NewSelector(testFanoutConfig(), followers, stampede.NewGuard(newFakeDurableCache(), fakeLocker{}, testLogger()), &fakeGroupRepo{}, testLogger())

	if !s.ShouldUseFanoutOnRead(context.Background(), "actor-1", nil) {
		t.Error("15000 followers resolved via the follower service should exceed the threshold")
	}
}

func TestShouldUseFanoutOnReadDefaultsFalseOnFailure(t *testing.T) {
	followers := &fakeFollowerService{err: errors.New("timeout")}
	s := NewSelector(testFanoutConfig(), followers, stampede.NewGuard(newFakeDurableCache(), fakeLocker{}, testLogger()), &fakeGroupRepo{}, testLogger())

	if s.ShouldUseFanoutOnRead(context.Background(), "actor-1", nil) {
		t.Error("a failed follower lookup should default to false (fanout-on-write)")
	}
}

func TestCreateGroupNotificationChoosesTopicAboveReachThreshold(t *testing.T) {
	repo := &fakeGroupRepo{}
	s := NewSelector(testFanoutConfig(), &fakeFollowerService{}, stampede.NewGuard(newFakeDurableCache(), fakeLocker{}, testLogger()), repo, testLogger())

	in := BroadcastEventInput{
		EventID:            uuid.New(),
		EventType:          model.EventPostCreated,
		ActorUserID:        "actor-1",
		ActorFollowerCount: 80000,
		EstimatedReach:     80000,
	}
	g, err := s.CreateGroupNotification(context.Background(), in, time.Now())
	if err != nil {
		t.Fatalf("CreateGroupNotification returned error: %v", err)
	}
	if g.PushStrategy != model.PushTopic {
		t.Errorf("PushStrategy = %v, want topic for reach above threshold", g.PushStrategy)
	}
	if g.BroadcastTopic == "" {
		t.Error("a topic push strategy should set a broadcast topic name")
	}
}

func TestCreateGroupNotificationChoosesIndividualBelowReachThreshold(t *testing.T) {
	repo := &fakeGroupRepo{}
	s := NewSelector(testFanoutConfig(), &fakeFollowerService{}, stampede.NewGuard(newFakeDurableCache(), fakeLocker{}, testLogger()), repo, testLogger())

	in := BroadcastEventInput{
		EventID:            uuid.New(),
		EventType:          model.EventPostCreated,
		ActorUserID:        "actor-1",
		ActorFollowerCount: 20000,
		EstimatedReach:     20000,
	}
	g, err := s.CreateGroupNotification(context.Background(), in, time.Now())
	if err != nil {
		t.Fatalf("CreateGroupNotification returned error: %v", err)
	}
	if g.PushStrategy != model.PushIndividual {
		t.Errorf("PushStrategy = %v, want individual for reach below threshold", g.PushStrategy)
	}
}
