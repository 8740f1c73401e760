package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/rs/zerolog"
)

type fakeNotificationRepo struct {
	due        []*model.Notification
	expired    []*model.Notification
	retryable  []*model.Notification
	updated    []*model.Notification
	archiveLen int
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
func (r *fakeNotificationRepo) Update(ctx context.Context, n *model.Notification) error {
	r.updated = append(r.updated, n)
	return nil
}
func (r *fakeNotificationRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (r *fakeNotificationRepo) LeaseBatch(ctx context.Context, workerID string, limit int, lockTTL time.Duration, maxRetries int, now time.Time) ([]*model.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) ReleaseLeasesFor(ctx context.Context, workerID string) error { return nil }
func (r *fakeNotificationRepo) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	return r.due, nil
}
func (r *fakeNotificationRepo) FindExpiredScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	return r.expired, nil
}
func (r *fakeNotificationRepo) FindRetryableFailed(ctx context.Context, maxRetries int, olderThan time.Time, limit int) ([]*model.Notification, error) {
	return r.retryable, nil
}
func (r *fakeNotificationRepo) FindPersonalForUser(ctx context.Context, userID string, q repository.InboxQuery) ([]*model.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) { return 0, nil }
func (r *fakeNotificationRepo) CountForInbox(ctx context.Context, userID string, includeRead bool, since *time.Time) (int, error) {
	return 0, nil
}
func (r *fakeNotificationRepo) MarkRead(ctx context.Context, id uuid.UUID, userID string, now time.Time) error {
	return nil
}
func (r *fakeNotificationRepo) MarkReadBatch(ctx context.Context, ids []uuid.UUID, userID string, now time.Time) (int, error) {
	return 0, nil
}
func (r *fakeNotificationRepo) ArchiveOlderThan(ctx context.Context, cutoff time.Time, batchSize int, dryRun bool) (int, error) {
	if r.archiveLen > batchSize {
		r.archiveLen -= batchSize
		return batchSize, nil
	}
	n := r.archiveLen
	r.archiveLen = 0
	return n, nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{BatchSize: 50, MaxRetries: 5, RetryBaseDelay: time.Minute}
}

func testArchiveConfig() config.ArchiveConfig {
	return config.ArchiveConfig{ThresholdDays: 30, BatchSize: 100, MaxRecordsPerRun: 1000, MaxBatchesPerRun: 10}
}

func TestSweepDueScheduledPromotesDueAndCancelsExpired(t *testing.T) {
	due := &model.Notification{NotificationID: uuid.New(), Status: model.StatusScheduled}
	expired := &model.Notification{NotificationID: uuid.New(), Status: model.StatusScheduled}
	repo := &fakeNotificationRepo{due: []*model.Notification{due}, expired: []*model.Notification{expired}}
	s := New(repo, testWorkerConfig(), testArchiveConfig(), testLogger())

	if err := s.SweepDueScheduled(context.Background(), time.Now()); err != nil {
		t.Fatalf("SweepDueScheduled returned error: %v", err)
	}
	if due.Status != model.StatusPending {
		t.Errorf("due notification status = %v, want pending", due.Status)
	}
	if expired.Status != model.StatusCancelled {
		t.Errorf("expired notification status = %v, want cancelled", expired.Status)
	}
	if len(repo.updated) != 2 {
		t.Errorf("expected 2 Update calls, got %d", len(repo.updated))
	}
}

func TestSweepRetryableFailedRequeuesToPending(t *testing.T) {
	failed := &model.Notification{NotificationID: uuid.New(), Status: model.StatusFailed}
	repo := &fakeNotificationRepo{retryable: []*model.Notification{failed}}
	s := New(repo, testWorkerConfig(), testArchiveConfig(), testLogger())

	if err := s.SweepRetryableFailed(context.Background(), time.Now()); err != nil {
		t.Fatalf("SweepRetryableFailed returned error: %v", err)
	}
	if failed.Status != model.StatusPending {
		t.Errorf("status = %v, want pending after requeue", failed.Status)
	}
}

func TestSweepArchiveStopsAfterPartialBatch(t *testing.T) {
	repo := &fakeNotificationRepo{archiveLen: 150}
	s := New(repo, testWorkerConfig(), testArchiveConfig(), testLogger())

	if err := s.SweepArchive(context.Background(), time.Now()); err != nil {
		t.Fatalf("SweepArchive returned error: %v", err)
	}
	if repo.archiveLen != 0 {
		t.Errorf("expected archive to drain fully across batches, %d rows left", repo.archiveLen)
	}
}

func TestSweepArchiveRespectsMaxRecordsPerRun(t *testing.T) {
	repo := &fakeNotificationRepo{archiveLen: 10000}
	cfg := testArchiveConfig()
	cfg.MaxRecordsPerRun = 250
	cfg.BatchSize = 100
	s := New(repo, testWorkerConfig(), cfg, testLogger())

	if err := s.SweepArchive(context.Background(), time.Now()); err != nil {
		t.Fatalf("SweepArchive returned error: %v", err)
	}
	if repo.archiveLen <= 9000 {
		t.Errorf("expected the sweep to stop near MaxRecordsPerRun, but archived too much: %d rows left", repo.archiveLen)
	}
}
