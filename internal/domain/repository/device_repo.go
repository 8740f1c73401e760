package repository

import (
	"context"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
)

// DeviceRepository persists device registrations (§3, §4.5).
type DeviceRepository interface {
	Save(ctx context.Context, d *model.Device) (*model.Device, error)
	GetByID(ctx context.Context, deviceID string) (*model.Device, error)
	FindActiveForUser(ctx context.Context, userID string) ([]*model.Device, error)
	Update(ctx context.Context, d *model.Device) error
	Deactivate(ctx context.Context, deviceID string) error

	// FindStale returns devices unseen for inactiveDays, for cleanup (§4.5).
	FindStale(ctx context.Context, now time.Time, inactiveDays int, limit int) ([]*model.Device, error)

	// DeleteDeactivatedBefore hard-deletes devices deactivated more than
	// deleteAfterDays ago (§4.5).
	DeleteDeactivatedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
