package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var _ repo.DeviceRepository = (*DeviceRepository)(nil)

// DeviceRepository persists model.Device rows (§3, §4.5).
type DeviceRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDeviceRepository builds the postgres-backed DeviceRepository.
func NewDeviceRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *DeviceRepository {
	return &DeviceRepository{pool: pool, logger: logger.With().Str("layer", "postgres_repository").Str("entity", "device").Logger()}
}

const deviceColumns = `
	device_id, user_id, platform, device_token, fcm_token, app_version,
	device_info, push_settings, is_active, last_seen, registration_date,
	failure_count, last_failure, tags, metadata`

func (r *DeviceRepository) Save(ctx context.Context, d *model.Device) (*model.Device, error) {
	pushSettings, err := marshalJSON(d.PushSettings)
	if err != nil {
		return nil, err
	}
	metadata, err := marshalJSON(d.Metadata)
	if err != nil {
		return nil, err
	}

	row := db(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (device_id) DO UPDATE SET
			user_id = EXCLUDED.user_id, device_token = EXCLUDED.device_token,
			fcm_token = EXCLUDED.fcm_token, app_version = EXCLUDED.app_version,
			device_info = EXCLUDED.device_info, push_settings = EXCLUDED.push_settings,
			is_active = EXCLUDED.is_active, last_seen = EXCLUDED.last_seen
		RETURNING `+deviceColumns,
		d.DeviceID, d.UserID, string(d.Platform), d.DeviceToken, d.FCMToken, d.AppVersion,
		d.DeviceInfo, pushSettings, d.IsActive, d.LastSeen, d.RegistrationDate,
		d.FailureCount, d.LastFailure, d.Tags, metadata,
	)

	created, err := scanDevice(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, repo.ErrDuplicateRecord
		}
		return nil, fmt.Errorf("postgres: save device: %w", err)
	}
	return created, nil
}

func (r *DeviceRepository) GetByID(ctx context.Context, deviceID string) (*model.Device, error) {
	row := db(ctx, r.pool).QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get device by id: %w", err)
	}
	return d, nil
}

func (r *DeviceRepository) FindActiveForUser(ctx context.Context, userID string) ([]*model.Device, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 AND is_active = true`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: find active devices for user: %w", err)
	}
	defer rows.Close()
	var out []*model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DeviceRepository) Update(ctx context.Context, d *model.Device) error {
	metadata, err := marshalJSON(d.Metadata)
	if err != nil {
		return err
	}
	pushSettings, err := marshalJSON(d.PushSettings)
	if err != nil {
		return err
	}
	tag, err := db(ctx, r.pool).Exec(ctx, `
		UPDATE devices SET
			push_settings = $2, is_active = $3, last_seen = $4,
			failure_count = $5, last_failure = $6, metadata = $7
		WHERE device_id = $1`,
		d.DeviceID, pushSettings, d.IsActive, d.LastSeen, d.FailureCount, d.LastFailure, metadata,
	)
	if err != nil {
		return fmt.Errorf("postgres: update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *DeviceRepository) Deactivate(ctx context.Context, deviceID string) error {
	tag, err := db(ctx, r.pool).Exec(ctx, `UPDATE devices SET is_active = false, last_failure = now() WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("postgres: deactivate device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *DeviceRepository) FindStale(ctx context.Context, now time.Time, inactiveDays int, limit int) ([]*model.Device, error) {
	cutoff := now.AddDate(0, 0, -inactiveDays)
	rows, err := db(ctx, r.pool).Query(ctx, `SELECT `+deviceColumns+` FROM devices WHERE is_active = true AND last_seen < $1 ORDER BY last_seen ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: find stale devices: %w", err)
	}
	defer rows.Close()
	var out []*model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DeviceRepository) DeleteDeactivatedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := db(ctx, r.pool).Exec(ctx, `
		DELETE FROM devices WHERE device_id IN (
			SELECT device_id FROM devices WHERE is_active = false AND last_failure < $1 LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete deactivated devices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanDevice(row pgx.Row) (*model.Device, error) {
	var (
		d            model.Device
		platform     string
		pushSettings []byte
		metadata     []byte
	)
	err := row.Scan(
		&d.DeviceID, &d.UserID, &platform, &d.DeviceToken, &d.FCMToken, &d.AppVersion,
		&d.DeviceInfo, &pushSettings, &d.IsActive, &d.LastSeen, &d.RegistrationDate,
		&d.FailureCount, &d.LastFailure, &d.Tags, &metadata,
	)
	if err != nil {
		return nil, err
	}
	d.Platform = model.Platform(platform)
	if err := json.Unmarshal(pushSettings, &d.PushSettings); err != nil {
		return nil, fmt.Errorf("unmarshal push_settings: %w", err)
	}
	if err := unmarshalJSON(metadata, &d.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal device metadata: %w", err)
	}
	return &d, nil
}
