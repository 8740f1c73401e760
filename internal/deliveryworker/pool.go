// Package deliveryworker implements the C9 delivery worker pool: lease a
// batch of due notifications, evaluate quiet hours, dispatch to the
// platform-appropriate gateway behind a circuit breaker, classify per-device
// outcomes through the token lifecycle manager, and persist the result
// (§4.9).
package deliveryworker

import (
	"context"
	"fmt"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/breaker"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/internal/gateway"
	"github.com/ilindan-dev/notifyhub/internal/quiethours"
	"github.com/ilindan-dev/notifyhub/internal/tokenlifecycle"
	"github.com/ilindan-dev/notifyhub/pkg/backoff"
	"github.com/rs/zerolog"
)

// Pool is one instance of the C9 delivery worker pool. WorkerModule starts
// cfg.Count of these concurrently, each with a distinct workerID.
type Pool struct {
	workerID      string
	notifications repository.NotificationRepository
	devices       repository.DeviceRepository
	preferences   repository.PreferencesRepository
	deliveryLogs  repository.DeliveryLogRepository
	gateways      map[model.Platform]gateway.Gateway
	breakers      *breaker.Registry
	tokens        *tokenlifecycle.Manager
	cfg           config.WorkerConfig
	logger        zerolog.Logger
}

// New builds a delivery worker pool instance. gateways must contain an entry
// for every model.Platform the service registers devices under.
func New(
	workerID string,
	notifications repository.NotificationRepository,
	devices repository.DeviceRepository,
	preferences repository.PreferencesRepository,
	deliveryLogs repository.DeliveryLogRepository,
	gateways map[model.Platform]gateway.Gateway,
	breakers *breaker.Registry,
	tokens *tokenlifecycle.Manager,
	cfg config.WorkerConfig,
	logger *zerolog.Logger,
) *Pool {
	return &Pool{
		workerID:      workerID,
		notifications: notifications,
		devices:       devices,
		preferences:   preferences,
		deliveryLogs:  deliveryLogs,
		gateways:      gateways,
		breakers:      breakers,
		tokens:        tokens,
		cfg:           cfg,
		logger:        logger.With().Str("component", "delivery_worker").Str("worker_id", workerID).Logger(),
	}
}

// logAttempt upserts the indexed (notificationId, deviceId) attempt ledger
// alongside the Notification's own embedded device list (§3); a failure to
// write it only gets logged; the embedded list on n remains authoritative.
func (p *Pool) logAttempt(ctx context.Context, notificationID, deviceID string, status model.DeliveryLogStatus, attempt int, errMsg string, now time.Time) {
	l := &model.DeliveryLog{
		NotificationID: notificationID,
		DeviceID:       deviceID,
		Status:         status,
		AttemptCount:   attempt,
		LastError:      errMsg,
		CreatedAt:      now,
	}
	if status == model.DeliveryLogSent {
		sentAt := now
		l.SentAt = &sentAt
	}
	if err := p.deliveryLogs.Upsert(ctx, l); err != nil {
		p.logger.Error().Err(err).Str("notification_id", notificationID).Str("device_id", deviceID).Msg("failed to upsert delivery log")
	}
}

// Run polls on cfg.PollInterval until ctx is cancelled, releasing every lease
// it holds on exit (§4.9).
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.notifications.ReleaseLeasesFor(releaseCtx, p.workerID); err != nil {
			p.logger.Error().Err(err).Msg("failed to release leases on shutdown")
		}
	}()

	for {
		if err := p.RunOnce(ctx, time.Now()); err != nil {
			p.logger.Error().Err(err).Msg("delivery batch failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce leases and dispatches a single batch.
func (p *Pool) RunOnce(ctx context.Context, now time.Time) error {
	batch, err := p.notifications.LeaseBatch(ctx, p.workerID, p.cfg.BatchSize, p.cfg.LockTTL, p.cfg.MaxRetries, now)
	if err != nil {
		return fmt.Errorf("deliveryworker: lease batch: %w", err)
	}
	for _, n := range batch {
		p.processOne(ctx, n, now)
	}
	return nil
}

func (p *Pool) processOne(ctx context.Context, n *model.Notification, now time.Time) {
	log := p.logger.With().Str("notification_id", n.NotificationID.String()).Str("user_id", n.UserID).Logger()

	if deferred := p.deferForQuietHours(ctx, n, now, &log); deferred {
		return
	}

	devices, err := p.devices.FindActiveForUser(ctx, n.UserID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load devices, will retry")
		return
	}
	if len(devices) == 0 {
		n.Status = model.StatusFailed
		if err := p.notifications.Update(ctx, n); err != nil {
			log.Error().Err(err).Msg("failed to mark notification failed after no devices")
		}
		return
	}

	msg := gateway.Message{
		Title:    n.Title,
		Body:     n.Body,
		ImageURL: n.ImageURL,
		Priority: n.Priority,
		TTL:      n.ExpiresAt.Sub(now),
	}
	if msg.TTL < 0 {
		msg.TTL = 0
	}

	byPlatform := map[model.Platform][]*model.Device{}
	for _, d := range devices {
		byPlatform[d.Platform] = append(byPlatform[d.Platform], d)
	}

	dispatched := false
	circuitOpen := false
	for platform, platformDevices := range byPlatform {
		if p.dispatchPlatform(ctx, n, platform, platformDevices, msg, now) {
			circuitOpen = true
		} else {
			dispatched = true
		}
	}

	if dispatched {
		n.Delivery.Attempts++
		now2 := now
		n.Delivery.LastAttempt = &now2
	}

	n.RecomputeStatus()
	switch {
	case circuitOpen && !dispatched:
		// Every platform's gateway was circuit-open: nothing was actually
		// attempted, so the batch is rescheduled without burning an attempt
		// (§4.9 step 1, §8 scenario 5).
		retryAt := now.Add(5 * time.Minute)
		n.ScheduleAt = &retryAt
		n.Status = model.StatusScheduled
	case n.Status == model.StatusFailed && n.Delivery.Attempts < p.cfg.MaxRetries:
		delay := backoff.Jittered(p.cfg.RetryBaseDelay, n.Delivery.Attempts-1, p.cfg.RetryMaxDelay)
		retryAt := now.Add(delay)
		n.ScheduleAt = &retryAt
		n.Status = model.StatusScheduled
	}
	if err := p.notifications.Update(ctx, n); err != nil {
		log.Error().Err(err).Msg("failed to persist delivery outcome")
	}
}

// deferForQuietHours reschedules n and returns true if the recipient is
// inside a quiet-hours window and the notification is not urgent (§4.4).
func (p *Pool) deferForQuietHours(ctx context.Context, n *model.Notification, now time.Time, log *zerolog.Logger) bool {
	if model.IsUrgent(n.Category, n.Priority, n.Urgent) {
		return false
	}
	prefs, err := p.preferences.GetOrCreate(ctx, n.UserID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load preferences for quiet-hours check")
		return false
	}
	result, err := quiethours.Check(prefs.QuietHours, now)
	if err != nil {
		log.Warn().Err(err).Msg("quiet-hours evaluation failed, delivering anyway")
		return false
	}
	if !result.IsQuiet {
		return false
	}
	n.ScheduleAt = &result.NextAvailableAt
	n.Status = model.StatusScheduled
	if err := p.notifications.Update(ctx, n); err != nil {
		log.Error().Err(err).Msg("failed to persist quiet-hours deferral")
	}
	return true
}

// dispatchPlatform sends msg to devices on platform. It reports whether the
// gateway's circuit breaker was open, meaning nothing was actually sent
// (§4.9 step 1): the caller must not count that as a delivery attempt.
func (p *Pool) dispatchPlatform(ctx context.Context, n *model.Notification, platform model.Platform, devices []*model.Device, msg gateway.Message, now time.Time) bool {
	gw, ok := p.gateways[platform]
	if !ok {
		return false
	}
	// Logged/attempted devices belong to the attempt about to be recorded,
	// not the one already persisted from the prior pass.
	attempt := n.Delivery.Attempts + 1

	cb := p.breakers.For(gw.Name())
	if !cb.AllowRequest(now) {
		for _, d := range devices {
			n.Delivery.UpsertDevice(model.DeviceDelivery{
				DeviceID: d.DeviceID, Platform: platform, Status: model.DeviceStatusFailed,
				ErrorMessage: "circuit breaker open",
			})
			p.logAttempt(ctx, n.NotificationID.String(), d.DeviceID, model.DeliveryLogFailed, n.Delivery.Attempts, "circuit breaker open", now)
		}
		return true
	}

	tokens := make([]gateway.DeviceToken, len(devices))
	byDeviceID := map[string]*model.Device{}
	for i, d := range devices {
		tokens[i] = gateway.DeviceToken{DeviceID: d.DeviceID, Token: d.DeviceToken}
		byDeviceID[d.DeviceID] = d
	}

	results, err := gw.Send(ctx, tokens, msg)
	if err != nil {
		cb.RecordFailure(now)
		for _, d := range devices {
			n.Delivery.UpsertDevice(model.DeviceDelivery{
				DeviceID: d.DeviceID, Platform: platform, Status: model.DeviceStatusFailed, ErrorMessage: err.Error(),
			})
			p.logAttempt(ctx, n.NotificationID.String(), d.DeviceID, model.DeliveryLogFailed, attempt, err.Error(), now)
		}
		return false
	}

	for _, r := range results {
		d := byDeviceID[r.DeviceID]
		if d == nil {
			continue
		}
		if r.Success {
			cb.RecordSuccess(now)
			sentAt := now
			n.Delivery.UpsertDevice(model.DeviceDelivery{
				DeviceID: d.DeviceID, Platform: platform, Status: model.DeviceStatusSent,
				SentAt: &sentAt, ExternalID: r.ExternalID,
			})
			if err := p.tokens.HandleDeliverySuccess(ctx, d, now); err != nil {
				p.logger.Error().Err(err).Str("device_id", d.DeviceID).Msg("failed to record device success")
			}
			p.logAttempt(ctx, n.NotificationID.String(), d.DeviceID, model.DeliveryLogSent, attempt, "", now)
			continue
		}

		cb.RecordFailure(now)
		classification := tokenlifecycle.Classify(r.RawError)
		errMsg := ""
		if r.RawError != nil {
			errMsg = r.RawError.Error()
		}
		n.Delivery.UpsertDevice(model.DeviceDelivery{
			DeviceID: d.DeviceID, Platform: platform, Status: model.DeviceStatusFailed, ErrorMessage: errMsg,
		})
		if err := p.tokens.HandleDeliveryFailure(ctx, d, classification, now); err != nil {
			p.logger.Error().Err(err).Str("device_id", d.DeviceID).Msg("failed to record device failure")
		}
		logStatus := model.DeliveryLogFailed
		if classification.Type == tokenlifecycle.TypeInvalid || classification.Type == tokenlifecycle.TypeUnregistered {
			logStatus = model.DeliveryLogInvalidToken
		}
		p.logAttempt(ctx, n.NotificationID.String(), d.DeviceID, logStatus, attempt, errMsg, now)
	}
	return false
}
