package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var _ repo.PreferencesRepository = (*PreferencesRepository)(nil)

// PreferencesRepository persists model.UserPreferences, creating defaults
// lazily per the §6 "creates defaults if missing" contract.
type PreferencesRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPreferencesRepository builds the postgres-backed PreferencesRepository.
func NewPreferencesRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *PreferencesRepository {
	return &PreferencesRepository{pool: pool, logger: logger.With().Str("layer", "postgres_repository").Str("entity", "preferences").Logger()}
}

const preferencesColumns = `user_id, notification_types, quiet_hours, category_overrides, platform_overrides, blocked, max_daily_notifications`

func (r *PreferencesRepository) GetOrCreate(ctx context.Context, userID string) (*model.UserPreferences, error) {
	row := db(ctx, r.pool).QueryRow(ctx, `SELECT `+preferencesColumns+` FROM user_preferences WHERE user_id = $1`, userID)
	p, err := scanPreferences(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: get preferences: %w", err)
	}

	defaults := model.DefaultUserPreferences(userID)
	return r.insertDefaults(ctx, defaults)
}

func (r *PreferencesRepository) insertDefaults(ctx context.Context, p *model.UserPreferences) (*model.UserPreferences, error) {
	row, err := r.upsertRow(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("postgres: create default preferences: %w", err)
	}
	return row, nil
}

func (r *PreferencesRepository) Update(ctx context.Context, p *model.UserPreferences) (*model.UserPreferences, error) {
	row, err := r.upsertRow(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("postgres: update preferences: %w", err)
	}
	return row, nil
}

func (r *PreferencesRepository) upsertRow(ctx context.Context, p *model.UserPreferences) (*model.UserPreferences, error) {
	notificationTypes, err := marshalJSON(p.NotificationTypes)
	if err != nil {
		return nil, err
	}
	quietHours, err := marshalJSON(p.QuietHours)
	if err != nil {
		return nil, err
	}
	categoryOverrides, err := marshalJSON(p.CategoryOverrides)
	if err != nil {
		return nil, err
	}
	platformOverrides, err := marshalJSON(p.PlatformOverrides)
	if err != nil {
		return nil, err
	}
	blocked, err := marshalJSON(p.Blocked)
	if err != nil {
		return nil, err
	}

	row := db(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO user_preferences (`+preferencesColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO UPDATE SET
			notification_types = EXCLUDED.notification_types,
			quiet_hours = EXCLUDED.quiet_hours,
			category_overrides = EXCLUDED.category_overrides,
			platform_overrides = EXCLUDED.platform_overrides,
			blocked = EXCLUDED.blocked,
			max_daily_notifications = EXCLUDED.max_daily_notifications
		RETURNING `+preferencesColumns,
		p.UserID, notificationTypes, quietHours, categoryOverrides, platformOverrides, blocked, p.MaxDailyNotifications,
	)
	return scanPreferences(row)
}

func scanPreferences(row pgx.Row) (*model.UserPreferences, error) {
	var (
		p                                                                            model.UserPreferences
		notificationTypes, quietHours, categoryOverrides, platformOverrides, blocked []byte
	)
	err := row.Scan(&p.UserID, &notificationTypes, &quietHours, &categoryOverrides, &platformOverrides, &blocked, &p.MaxDailyNotifications)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(notificationTypes, &p.NotificationTypes); err != nil {
		return nil, fmt.Errorf("unmarshal notification_types: %w", err)
	}
	if err := json.Unmarshal(quietHours, &p.QuietHours); err != nil {
		return nil, fmt.Errorf("unmarshal quiet_hours: %w", err)
	}
	if err := unmarshalJSON(categoryOverrides, &p.CategoryOverrides); err != nil {
		return nil, fmt.Errorf("unmarshal category_overrides: %w", err)
	}
	if err := unmarshalJSON(platformOverrides, &p.PlatformOverrides); err != nil {
		return nil, fmt.Errorf("unmarshal platform_overrides: %w", err)
	}
	if err := unmarshalJSON(blocked, &p.Blocked); err != nil {
		return nil, fmt.Errorf("unmarshal blocked: %w", err)
	}
	return &p, nil
}
