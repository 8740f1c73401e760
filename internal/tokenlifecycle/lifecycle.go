package tokenlifecycle

import (
	"context"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/rs/zerolog"
)

// Manager drives device state transitions from gateway delivery outcomes and
// runs the scheduled stale-token sweep (§4.5).
type Manager struct {
	devices repository.DeviceRepository
	logger  zerolog.Logger
}

// NewManager builds a token lifecycle manager over the device store.
func NewManager(devices repository.DeviceRepository, logger *zerolog.Logger) *Manager {
	return &Manager{devices: devices, logger: logger.With().Str("component", "tokenlifecycle").Logger()}
}

// HandleDeliveryFailure applies a gateway failure's classification to the
// device's lifecycle state: hard signals deactivate immediately, other
// failures increment the consecutive-failure counter which deactivates at
// model.maxFailureCount (§3, §4.5).
func (m *Manager) HandleDeliveryFailure(ctx context.Context, device *model.Device, classification Classification, now time.Time) error {
	if classification.ShouldDeactivate {
		device.Deactivate(now)
	} else {
		device.RecordSoftFailure(now)
	}
	if err := m.devices.Update(ctx, device); err != nil {
		return err
	}
	if !device.IsActive {
		m.logger.Info().
			Str("device_id", device.DeviceID).
			Str("user_id", device.UserID).
			Str("classification", string(classification.Type)).
			Msg("device deactivated")
	}
	return nil
}

// HandleDeliverySuccess resets the device's failure counter and refreshes
// lastSeen (§4.5).
func (m *Manager) HandleDeliverySuccess(ctx context.Context, device *model.Device, now time.Time) error {
	device.RecordSuccess(now)
	return m.devices.Update(ctx, device)
}

// CleanupConfig tunes the scheduled stale-token sweep (§4.5 defaults).
type CleanupConfig struct {
	InactiveDays    int
	DeleteAfterDays int
	BatchSize       int
}

// DefaultCleanupConfig returns the §4.5-specified defaults.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{InactiveDays: 30, DeleteAfterDays: 90, BatchSize: 500}
}

// CleanupStaleTokens deactivates devices unseen for InactiveDays, then
// hard-deletes devices that have been deactivated for more than
// DeleteAfterDays. Returns the counts of each action for metrics.
func (m *Manager) CleanupStaleTokens(ctx context.Context, now time.Time, cfg CleanupConfig) (deactivated, deleted int, err error) {
	stale, err := m.devices.FindStale(ctx, now, cfg.InactiveDays, cfg.BatchSize)
	if err != nil {
		return 0, 0, err
	}
	for _, d := range stale {
		if err := m.devices.Deactivate(ctx, d.DeviceID); err != nil {
			m.logger.Error().Err(err).Str("device_id", d.DeviceID).Msg("failed to deactivate stale device")
			continue
		}
		deactivated++
	}

	cutoff := now.Add(-time.Duration(cfg.DeleteAfterDays) * 24 * time.Hour)
	deleted, err = m.devices.DeleteDeactivatedBefore(ctx, cutoff, cfg.BatchSize)
	if err != nil {
		return deactivated, 0, err
	}
	m.logger.Info().Int("deactivated", deactivated).Int("deleted", deleted).Msg("stale token cleanup complete")
	return deactivated, deleted, nil
}
