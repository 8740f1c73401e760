package deliveryworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/breaker"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/internal/gateway"
	"github.com/ilindan-dev/notifyhub/internal/tokenlifecycle"
	"github.com/rs/zerolog"
)

type fakeNotificationRepo struct {
	mu      sync.Mutex
	leased  []*model.Notification
	updated []*model.Notification
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
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, n)
	return nil
}
func (r *fakeNotificationRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (r *fakeNotificationRepo) LeaseBatch(ctx context.Context, workerID string, limit int, lockTTL time.Duration, maxRetries int, now time.Time) ([]*model.Notification, error) {
	batch := r.leased
	r.leased = nil
	return batch, nil
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
	return 0, nil
}

type fakeDeviceRepo struct {
	active map[string][]*model.Device
}

func (r *fakeDeviceRepo) Save(ctx context.Context, d *model.Device) (*model.Device, error) { return d, nil }
func (r *fakeDeviceRepo) GetByID(ctx context.Context, deviceID string) (*model.Device, error) {
	return nil, repository.ErrNotFound
}
func (r *fakeDeviceRepo) FindActiveForUser(ctx context.Context, userID string) ([]*model.Device, error) {
	return r.active[userID], nil
}
func (r *fakeDeviceRepo) Update(ctx context.Context, d *model.Device) error    { return nil }
func (r *fakeDeviceRepo) Deactivate(ctx context.Context, deviceID string) error { return nil }
func (r *fakeDeviceRepo) FindStale(ctx context.Context, now time.Time, inactiveDays int, limit int) ([]*model.Device, error) {
	return nil, nil
}
func (r *fakeDeviceRepo) DeleteDeactivatedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return 0, nil
}

type fakePreferencesRepo struct{ prefs map[string]*model.UserPreferences }

func (r *fakePreferencesRepo) GetOrCreate(ctx context.Context, userID string) (*model.UserPreferences, error) {
	if p, ok := r.prefs[userID]; ok {
		return p, nil
	}
	return model.DefaultUserPreferences(userID), nil
}
func (r *fakePreferencesRepo) Update(ctx context.Context, p *model.UserPreferences) (*model.UserPreferences, error) {
	return p, nil
}

type fakeDeliveryLogRepo struct {
	mu      sync.Mutex
	upserts []*model.DeliveryLog
}

func (r *fakeDeliveryLogRepo) Upsert(ctx context.Context, l *model.DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, l)
	return nil
}
func (r *fakeDeliveryLogRepo) FindByNotification(ctx context.Context, notificationID string) ([]*model.DeliveryLog, error) {
	return nil, nil
}

type fakeGateway struct {
	name    string
	results []gateway.DeviceResult
	err     error
}

func (g *fakeGateway) Name() string { return g.name }
func (g *fakeGateway) Send(ctx context.Context, tokens []gateway.DeviceToken, msg gateway.Message) ([]gateway.DeviceResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.results, nil
}
func (g *fakeGateway) SendTopic(ctx context.Context, topic string, msg gateway.Message) (string, error) {
	return "ext-id", nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		ErrorThreshold: 0.5, WindowSize: time.Hour, MinimumRequests: 100,
		OpenTimeout: time.Minute, HalfOpenSuccessThreshold: 2, HalfOpenMaxRequests: 2, ErrorDuration: time.Hour,
	}
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Count: 1, BatchSize: 10, LockTTL: 5 * time.Minute, PollInterval: time.Second,
		MaxRetries: 5, RetryBaseDelay: time.Minute, RetryMaxDelay: time.Hour,
	}
}

func TestProcessOneDeliversSuccessfullyToSingleDevice(t *testing.T) {
	device := model.NewDevice("dev-1", "user-1", model.PlatformAndroid, "token-1", time.Now())
	notifRepo := &fakeNotificationRepo{}
	devRepo := &fakeDeviceRepo{active: map[string][]*model.Device{"user-1": {device}}}
	prefsRepo := &fakePreferencesRepo{prefs: map[string]*model.UserPreferences{}}
	fcm := &fakeGateway{name: "fcm", results: []gateway.DeviceResult{{DeviceID: "dev-1", Success: true, ExternalID: "ext-1"}}}

	p := New("worker-1", notifRepo, devRepo, prefsRepo, &fakeDeliveryLogRepo{},
		map[model.Platform]gateway.Gateway{model.PlatformAndroid: fcm},
		breaker.NewRegistry(testBreakerConfig(), testLogger()),
		tokenlifecycle.NewManager(devRepo, testLogger()),
		testWorkerConfig(), testLogger())

	n := model.NewNotification("user-1", model.CategoryFollow, model.PriorityNormal, "t", "b", nil, time.Now())
	now := time.Now()
	p.processOne(context.Background(), n, now)

	if n.Status != model.StatusSent {
		t.Errorf("status = %v, want sent", n.Status)
	}
	if len(notifRepo.updated) != 1 {
		t.Fatalf("expected one Update call, got %d", len(notifRepo.updated))
	}
}

func TestProcessOneMarksFailedAndSchedulesRetryOnGatewayError(t *testing.T) {
	device := model.NewDevice("dev-1", "user-1", model.PlatformAndroid, "token-1", time.Now())
	notifRepo := &fakeNotificationRepo{}
	devRepo := &fakeDeviceRepo{active: map[string][]*model.Device{"user-1": {device}}}
	prefsRepo := &fakePreferencesRepo{prefs: map[string]*model.UserPreferences{}}
	fcm := &fakeGateway{name: "fcm", err: errors.New("network unreachable")}

	p := New("worker-1", notifRepo, devRepo, prefsRepo, &fakeDeliveryLogRepo{},
		map[model.Platform]gateway.Gateway{model.PlatformAndroid: fcm},
		breaker.NewRegistry(testBreakerConfig(), testLogger()),
		tokenlifecycle.NewManager(devRepo, testLogger()),
		testWorkerConfig(), testLogger())

	n := model.NewNotification("user-1", model.CategoryFollow, model.PriorityNormal, "t", "b", nil, time.Now())
	now := time.Now()
	p.processOne(context.Background(), n, now)

	if n.Status != model.StatusScheduled {
		t.Errorf("status = %v, want scheduled for retry", n.Status)
	}
	if n.ScheduleAt == nil || !n.ScheduleAt.After(now) {
		t.Error("expected a future retry ScheduleAt to be set")
	}
}

func TestProcessOneUpsertsDeviceEntryAcrossRetriesInsteadOfAppending(t *testing.T) {
	device := model.NewDevice("dev-1", "user-1", model.PlatformAndroid, "token-1", time.Now())
	notifRepo := &fakeNotificationRepo{}
	devRepo := &fakeDeviceRepo{active: map[string][]*model.Device{"user-1": {device}}}
	prefsRepo := &fakePreferencesRepo{prefs: map[string]*model.UserPreferences{}}
	fcm := &fakeGateway{name: "fcm", err: errors.New("network unreachable")}

	p := New("worker-1", notifRepo, devRepo, prefsRepo, &fakeDeliveryLogRepo{},
		map[model.Platform]gateway.Gateway{model.PlatformAndroid: fcm},
		breaker.NewRegistry(testBreakerConfig(), testLogger()),
		tokenlifecycle.NewManager(devRepo, testLogger()),
		testWorkerConfig(), testLogger())

	n := model.NewNotification("user-1", model.CategoryFollow, model.PriorityNormal, "t", "b", nil, time.Now())
	now := time.Now()

	p.processOne(context.Background(), n, now)
	p.processOne(context.Background(), n, now.Add(time.Minute))
	p.processOne(context.Background(), n, now.Add(2*time.Minute))

	if len(n.Delivery.Devices) != 1 {
		t.Fatalf("Delivery.Devices has %d entries after 3 retries, want 1 (upserted by deviceId)", len(n.Delivery.Devices))
	}
	if n.Delivery.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", n.Delivery.Attempts)
	}
}

func TestProcessOneMarksFailedWithoutRetryWhenNoActiveDevices(t *testing.T) {
	notifRepo := &fakeNotificationRepo{}
	devRepo := &fakeDeviceRepo{active: map[string][]*model.Device{}}
	prefsRepo := &fakePreferencesRepo{prefs: map[string]*model.UserPreferences{}}

	p := New("worker-1", notifRepo, devRepo, prefsRepo, &fakeDeliveryLogRepo{},
		map[model.Platform]gateway.Gateway{},
		breaker.NewRegistry(testBreakerConfig(), testLogger()),
		tokenlifecycle.NewManager(devRepo, testLogger()),
		testWorkerConfig(), testLogger())

	n := model.NewNotification("user-1", model.CategoryFollow, model.PriorityNormal, "t", "b", nil, time.Now())
	p.processOne(context.Background(), n, time.Now())

	if n.Status != model.StatusFailed {
		t.Errorf("status = %v, want failed when recipient has no devices", n.Status)
	}
}

func TestProcessOneDefersNonUrgentDuringQuietHours(t *testing.T) {
	device := model.NewDevice("dev-1", "user-1", model.PlatformAndroid, "token-1", time.Now())
	notifRepo := &fakeNotificationRepo{}
	devRepo := &fakeDeviceRepo{active: map[string][]*model.Device{"user-1": {device}}}
	prefsRepo := &fakePreferencesRepo{prefs: map[string]*model.UserPreferences{
		"user-1": {
			UserID:            "user-1",
			NotificationTypes: model.DefaultUserPreferences("user-1").NotificationTypes,
			QuietHours:        model.QuietHours{Enabled: true, Start: "00:00", End: "23:59", Timezone: "UTC"},
		},
	}}
	fcm := &fakeGateway{name: "fcm", results: []gateway.DeviceResult{{DeviceID: "dev-1", Success: true}}}

	p := New("worker-1", notifRepo, devRepo, prefsRepo, &fakeDeliveryLogRepo{},
		map[model.Platform]gateway.Gateway{model.PlatformAndroid: fcm},
		breaker.NewRegistry(testBreakerConfig(), testLogger()),
		tokenlifecycle.NewManager(devRepo, testLogger()),
		testWorkerConfig(), testLogger())

	n := model.NewNotification("user-1", model.CategoryFollow, model.PriorityNormal, "t", "b", nil, time.Now())
	now := time.Now()
	p.processOne(context.Background(), n, now)

	if n.Status != model.StatusScheduled {
		t.Errorf("status = %v, want scheduled (deferred by quiet hours)", n.Status)
	}
	if len(fcm.results) > 0 && n.Delivery.Attempts != 0 {
		t.Error("a quiet-hours deferral should not count as a delivery attempt")
	}
}

func TestProcessOneReschedulesWithoutIncrementingAttemptsWhenCircuitOpen(t *testing.T) {
	device := model.NewDevice("dev-1", "user-1", model.PlatformAndroid, "token-1", time.Now())
	notifRepo := &fakeNotificationRepo{}
	devRepo := &fakeDeviceRepo{active: map[string][]*model.Device{"user-1": {device}}}
	prefsRepo := &fakePreferencesRepo{prefs: map[string]*model.UserPreferences{}}
	fcm := &fakeGateway{name: "fcm", err: errors.New("gateway down")}

	// MinimumRequests=1 and ErrorDuration=0 so a single failure trips the
	// breaker immediately, without needing a realistic traffic volume.
	breakerCfg := config.BreakerConfig{
		ErrorThreshold: 0, WindowSize: time.Hour, MinimumRequests: 1,
		OpenTimeout: time.Minute, HalfOpenSuccessThreshold: 2, HalfOpenMaxRequests: 2, ErrorDuration: 0,
	}
	p := New("worker-1", notifRepo, devRepo, prefsRepo, &fakeDeliveryLogRepo{},
		map[model.Platform]gateway.Gateway{model.PlatformAndroid: fcm},
		breaker.NewRegistry(breakerCfg, testLogger()),
		tokenlifecycle.NewManager(devRepo, testLogger()),
		testWorkerConfig(), testLogger())

	n := model.NewNotification("user-1", model.CategoryFollow, model.PriorityNormal, "t", "b", nil, time.Now())
	now := time.Now()

	// First pass: real dispatch, gateway error trips the breaker open.
	p.processOne(context.Background(), n, now)
	if n.Delivery.Attempts != 1 {
		t.Fatalf("attempts after first (real) dispatch = %d, want 1", n.Delivery.Attempts)
	}

	// Second pass: the breaker is now open, so this must not count as an
	// attempt and must reschedule ~5 minutes out (§4.9 step 1, §8 scenario 5).
	p.processOne(context.Background(), n, now)
	if n.Delivery.Attempts != 1 {
		t.Errorf("attempts after circuit-open pass = %d, want unchanged at 1", n.Delivery.Attempts)
	}
	if n.Status != model.StatusScheduled {
		t.Errorf("status = %v, want scheduled", n.Status)
	}
	if n.ScheduleAt == nil || n.ScheduleAt.Before(now.Add(4*time.Minute)) || n.ScheduleAt.After(now.Add(6*time.Minute)) {
		t.Errorf("ScheduleAt = %v, want ~5 minutes after %v", n.ScheduleAt, now)
	}
}
