package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/rs/zerolog"
)

type fakeFastCache struct {
	mu     sync.Mutex
	values map[string][]byte
	locked map[string]bool
	fail   bool
}

func newFakeFastCache() *fakeFastCache {
	return &fakeFastCache{values: make(map[string][]byte), locked: make(map[string]bool)}
}

func (c *fakeFastCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.fail {
		return false, context.DeadlineExceeded
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok, nil
}

func (c *fakeFastCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *fakeFastCache) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if c.fail {
		return false, context.DeadlineExceeded
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked[key] {
		return false, nil
	}
	c.locked[key] = true
	return true, nil
}

func (c *fakeFastCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.locked, key)
	return nil
}

type fakeIdempotencyRepo struct {
	mu      sync.Mutex
	records map[string]*model.IdempotencyRecord
	failFind bool
}

func newFakeIdempotencyRepo() *fakeIdempotencyRepo {
	return &fakeIdempotencyRepo{records: make(map[string]*model.IdempotencyRecord)}
}

func (r *fakeIdempotencyRepo) Find(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	if r.failFind {
		return nil, context.DeadlineExceeded
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (r *fakeIdempotencyRepo) Upsert(ctx context.Context, rec *model.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.IdempotencyKey] = rec
	return nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestBuildKeyPrefersIntentForm(t *testing.T) {
	got := BuildKey("like.created", "evt-1", "actor-1", "target-1", "post-9")
	want := "intent:like.created:actor-1:target-1:post-9"
	if got != want {
		t.Errorf("BuildKey = %q, want %q", got, want)
	}
}

func TestBuildKeyFallsBackToEventForm(t *testing.T) {
	got := BuildKey("like.created", "evt-1", "", "", "")
	want := "event:like.created:evt-1"
	if got != want {
		t.Errorf("BuildKey = %q, want %q", got, want)
	}
}

func TestIsProcessedFalseWhenNowhereFound(t *testing.T) {
	store := NewStore(newFakeFastCache(), newFakeIdempotencyRepo(), testLogger())
	if store.IsProcessed(context.Background(), "event:x:1") {
		t.Error("unprocessed key should report false")
	}
}

func TestMarkProcessedThenIsProcessed(t *testing.T) {
	store := NewStore(newFakeFastCache(), newFakeIdempotencyRepo(), testLogger())
	key := "event:like.created:evt-1"
	rec := model.NewIdempotencyRecord(key, "evt-1", "like.created", "notif-1", "user-1", time.Now())

	if err := store.MarkProcessed(context.Background(), key, rec); err != nil {
		t.Fatalf("MarkProcessed returned error: %v", err)
	}
	if !store.IsProcessed(context.Background(), key) {
		t.Error("key should be processed after MarkProcessed")
	}
}

func TestIsProcessedFallsThroughToDurableOnFastCacheFailure(t *testing.T) {
	fast := newFakeFastCache()
	fast.fail = true
	durable := newFakeIdempotencyRepo()
	key := "event:x:1"
	durable.records[key] = model.NewIdempotencyRecord(key, "1", "x", "n", "u", time.Now())

	store := NewStore(fast, durable, testLogger())
	if !store.IsProcessed(context.Background(), key) {
		t.Error("should fall through to durable store when fast cache errors")
	}
}

func TestIsProcessedFailsOpenWhenDurableUnreachable(t *testing.T) {
	fast := newFakeFastCache()
	durable := newFakeIdempotencyRepo()
	durable.failFind = true

	store := NewStore(fast, durable, testLogger())
	if store.IsProcessed(context.Background(), "event:x:1") {
		t.Error("unreachable durable store should fail open (return false, not true)")
	}
}

func TestTryAcquireLockFailsOpenWithoutFastCache(t *testing.T) {
	store := NewStore(nil, newFakeIdempotencyRepo(), testLogger())
	if !store.TryAcquireLock(context.Background(), "lock:x", time.Minute) {
		t.Error("lock acquisition should fail open when no fast cache is configured")
	}
}

func TestTryAcquireLockMutualExclusion(t *testing.T) {
	fast := newFakeFastCache()
	store := NewStore(fast, newFakeIdempotencyRepo(), testLogger())

	if !store.TryAcquireLock(context.Background(), "lock:x", time.Minute) {
		t.Fatal("first lock attempt should succeed")
	}
	if store.TryAcquireLock(context.Background(), "lock:x", time.Minute) {
		t.Error("second concurrent lock attempt should fail")
	}
	store.ReleaseLock(context.Background(), "lock:x")
	if !store.TryAcquireLock(context.Background(), "lock:x", time.Minute) {
		t.Error("lock should be acquirable again after release")
	}
}

func TestTryAcquireLockFailsOpenOnCacheError(t *testing.T) {
	fast := newFakeFastCache()
	fast.fail = true
	store := NewStore(fast, newFakeIdempotencyRepo(), testLogger())

	if !store.TryAcquireLock(context.Background(), "lock:x", time.Minute) {
		t.Error("lock acquisition should fail open when the cache errors")
	}
}
