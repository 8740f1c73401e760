package repository

import (
	"context"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
)

// PreferencesRepository persists UserPreferences, creating defaults lazily
// per the §6 "creates defaults if missing" contract.
type PreferencesRepository interface {
	GetOrCreate(ctx context.Context, userID string) (*model.UserPreferences, error)
	Update(ctx context.Context, p *model.UserPreferences) (*model.UserPreferences, error)
}
