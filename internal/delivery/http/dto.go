package http

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/inbox"
)

// ErrorResponse is the standard error envelope for every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegisterDeviceRequest is the body of POST /api/v1/devices.
type RegisterDeviceRequest struct {
	DeviceID    string         `json:"deviceId" binding:"required"`
	Platform    string         `json:"platform" binding:"required,oneof=android ios"`
	DeviceToken string         `json:"deviceToken" binding:"required"`
	AppVersion  string         `json:"appVersion"`
	DeviceInfo  string         `json:"deviceInfo"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`
}

// RefreshDeviceTokenRequest is the body of PUT /api/v1/devices/:deviceId/token.
type RefreshDeviceTokenRequest struct {
	DeviceToken string `json:"deviceToken" binding:"required"`
}

// DeviceResponse is the public view of a registered device.
type DeviceResponse struct {
	DeviceID   string    `json:"deviceId"`
	Platform   string    `json:"platform"`
	AppVersion string    `json:"appVersion,omitempty"`
	IsActive   bool      `json:"isActive"`
	LastSeen   time.Time `json:"lastSeen"`
}

func toDeviceResponse(d *model.Device) DeviceResponse {
	return DeviceResponse{
		DeviceID:   d.DeviceID,
		Platform:   string(d.Platform),
		AppVersion: d.AppVersion,
		IsActive:   d.IsActive,
		LastSeen:   d.LastSeen,
	}
}

// PreferencesResponse is the public view of a user's notification preferences.
type PreferencesResponse struct {
	UserID                string                    `json:"userId"`
	NotificationTypes     map[string]bool           `json:"notificationTypes"`
	QuietHours            QuietHoursDTO             `json:"quietHours"`
	CategoryOverrides     map[string]bool           `json:"categoryOverrides,omitempty"`
	PlatformOverrides     map[string]bool           `json:"platformOverrides,omitempty"`
	Blocked               BlockListsDTO             `json:"blocked"`
	MaxDailyNotifications int                       `json:"maxDailyNotifications,omitempty"`
}

// QuietHoursDTO is the wire shape of model.QuietHours.
type QuietHoursDTO struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// BlockListsDTO is the wire shape of model.BlockLists.
type BlockListsDTO struct {
	Keywords []string `json:"keywords"`
	Sources  []string `json:"sources"`
	Senders  []string `json:"senders"`
}

func toPreferencesResponse(p *model.UserPreferences) PreferencesResponse {
	types := make(map[string]bool, len(p.NotificationTypes))
	for category, pref := range p.NotificationTypes {
		types[string(category)] = pref.IsEnabled
	}
	categoryOverrides := make(map[string]bool, len(p.CategoryOverrides))
	for category, v := range p.CategoryOverrides {
		categoryOverrides[string(category)] = v
	}
	platformOverrides := make(map[string]bool, len(p.PlatformOverrides))
	for platform, v := range p.PlatformOverrides {
		platformOverrides[string(platform)] = v
	}
	return PreferencesResponse{
		UserID:            p.UserID,
		NotificationTypes: types,
		QuietHours: QuietHoursDTO{
			Enabled: p.QuietHours.Enabled, Start: p.QuietHours.Start,
			End: p.QuietHours.End, Timezone: p.QuietHours.Timezone,
		},
		CategoryOverrides:     categoryOverrides,
		PlatformOverrides:     platformOverrides,
		Blocked:               BlockListsDTO(p.Blocked),
		MaxDailyNotifications: p.MaxDailyNotifications,
	}
}

// UpdatePreferencesRequest is the body of PUT /api/v1/preferences. Nil
// pointer fields leave the corresponding preference unchanged; present
// fields fully replace their section.
type UpdatePreferencesRequest struct {
	NotificationTypes map[string]bool `json:"notificationTypes,omitempty"`
	QuietHours        *QuietHoursDTO  `json:"quietHours,omitempty"`
	CategoryOverrides map[string]bool `json:"categoryOverrides,omitempty"`
	PlatformOverrides map[string]bool `json:"platformOverrides,omitempty"`
	Blocked           *BlockListsDTO  `json:"blocked,omitempty"`
	MaxDailyNotifications *int        `json:"maxDailyNotifications,omitempty"`
}

// applyTo merges the request onto an existing preferences document.
func (r UpdatePreferencesRequest) applyTo(p *model.UserPreferences) {
	if r.NotificationTypes != nil {
		merged := make(map[model.Category]model.CategoryPreference, len(r.NotificationTypes))
		for category, enabled := range r.NotificationTypes {
			merged[model.Category(category)] = model.CategoryPreference{IsEnabled: enabled}
		}
		p.NotificationTypes = merged
	}
	if r.QuietHours != nil {
		p.QuietHours = model.QuietHours{
			Enabled: r.QuietHours.Enabled, Start: r.QuietHours.Start,
			End: r.QuietHours.End, Timezone: r.QuietHours.Timezone,
		}
	}
	if r.CategoryOverrides != nil {
		merged := make(map[model.Category]bool, len(r.CategoryOverrides))
		for category, v := range r.CategoryOverrides {
			merged[model.Category(category)] = v
		}
		p.CategoryOverrides = merged
	}
	if r.PlatformOverrides != nil {
		merged := make(map[model.Platform]bool, len(r.PlatformOverrides))
		for platform, v := range r.PlatformOverrides {
			merged[model.Platform(platform)] = v
		}
		p.PlatformOverrides = merged
	}
	if r.Blocked != nil {
		p.Blocked = model.BlockLists(*r.Blocked)
	}
	if r.MaxDailyNotifications != nil {
		p.MaxDailyNotifications = *r.MaxDailyNotifications
	}
}

// NotificationItemResponse is one item of a GET /api/v1/notifications page.
type NotificationItemResponse struct {
	ID        uuid.UUID      `json:"id"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	ImageURL  string         `json:"imageUrl,omitempty"`
	ActionURL string         `json:"actionUrl,omitempty"`
	Category  string         `json:"category,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	IsRead    bool           `json:"isRead"`
}

func toNotificationItemResponse(it inbox.Item) NotificationItemResponse {
	return NotificationItemResponse{
		ID: it.ID, Kind: it.Kind, Title: it.Title, Body: it.Body, Data: it.Data,
		ImageURL: it.ImageURL, ActionURL: it.ActionURL, Category: string(it.Category),
		CreatedAt: it.CreatedAt, IsRead: it.IsRead,
	}
}

// NotificationsPageResponse is the body of GET /api/v1/notifications (§6):
// `{notifications, nextCursor, hasMore, total}`.
type NotificationsPageResponse struct {
	Notifications []NotificationItemResponse `json:"notifications"`
	NextCursor    string                     `json:"nextCursor,omitempty"`
	HasMore       bool                       `json:"hasMore"`
	Total         int                        `json:"total"`
}

// UnreadCountResponse is the body of GET /api/v1/notifications/unread-count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// MarkReadBatchRequest is the body of POST /api/v1/notifications/read-batch.
type MarkReadBatchRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required"`
}

// MarkReadBatchResponse reports how many were actually flipped.
type MarkReadBatchResponse struct {
	UpdatedCount int `json:"updatedCount"`
}

// TriggerEventRequest is the body of POST /api/internal/events: the raw
// envelope the consumer would otherwise read off the broker.
type TriggerEventRequest struct {
	EventType string          `json:"eventType" binding:"required"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
}

// TriggerEventResponse reports the pipeline's ack/nack outcome.
type TriggerEventResponse struct {
	Outcome string `json:"outcome"`
}
