package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/auth"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/internal/eventhandler"
	"github.com/ilindan-dev/notifyhub/internal/inbox"
	"github.com/ilindan-dev/notifyhub/pkg/cursor"
	"github.com/rs/zerolog"
)

// Handlers implements the §6 HTTP inbox surface, plus the internal-service
// event-trigger endpoint used to simulate broker delivery in tests without a
// live broker (§6 "Supplemented features").
type Handlers struct {
	devices      repo.DeviceRepository
	preferences  repo.PreferencesRepository
	inbox        *inbox.Service
	eventHandler *eventhandler.Handler
	auth         *auth.Middleware
	logger       zerolog.Logger
}

// NewHandlers builds the HTTP handler set.
func NewHandlers(devices repo.DeviceRepository, preferences repo.PreferencesRepository, inboxSvc *inbox.Service, eventHandler *eventhandler.Handler, authMW *auth.Middleware, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		devices:      devices,
		preferences:  preferences,
		inbox:        inboxSvc,
		eventHandler: eventHandler,
		auth:         authMW,
		logger:       logger.With().Str("layer", "http_handler").Logger(),
	}
}

// RegisterRoutes wires the §6 inbox API under /api/v1, gated by bearer auth,
// plus the internal-service /api/internal family.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.Use(h.auth.Authenticate())
	{
		api.POST("/devices", h.RegisterDevice)
		api.PUT("/devices/:deviceId/token", h.RefreshDeviceToken)
		api.DELETE("/devices/:deviceId", h.DeleteDevice)

		api.GET("/preferences", h.GetPreferences)
		api.PUT("/preferences", h.UpdatePreferences)

		api.GET("/notifications", h.GetNotifications)
		api.GET("/notifications/unread-count", h.GetUnreadCount)
		api.POST("/notifications/:id/read", h.MarkRead)
		api.POST("/notifications/read-batch", h.MarkReadBatch)
	}

	internal := router.Group("/api/internal")
	internal.Use(h.auth.RequireInternalService())
	{
		internal.POST("/events", h.TriggerEvent)
	}
}

// RegisterDevice handles POST /api/v1/devices (§6).
func (h *Handlers) RegisterDevice(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return
	}

	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	d := model.NewDevice(req.DeviceID, userID, model.Platform(req.Platform), req.DeviceToken, time.Now())
	d.AppVersion = req.AppVersion
	d.DeviceInfo = req.DeviceInfo
	d.Tags = req.Tags
	d.Metadata = req.Metadata

	saved, err := h.devices.Save(c.Request.Context(), d)
	if err != nil {
		h.logger.Error().Err(err).Str("device_id", req.DeviceID).Msg("failed to register device")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to register device"})
		return
	}
	c.JSON(http.StatusCreated, toDeviceResponse(saved))
}

// RefreshDeviceToken handles PUT /api/v1/devices/:deviceId/token (§6).
func (h *Handlers) RefreshDeviceToken(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return
	}
	deviceID := c.Param("deviceId")

	var req RefreshDeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	d, err := h.devices.GetByID(c.Request.Context(), deviceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "device not found"})
			return
		}
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to load device")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load device"})
		return
	}
	if d.UserID != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "device belongs to another user"})
		return
	}

	d.DeviceToken = req.DeviceToken
	d.IsActive = true
	d.LastSeen = time.Now()
	if err := h.devices.Update(c.Request.Context(), d); err != nil {
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to refresh device token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to refresh device token"})
		return
	}
	c.JSON(http.StatusOK, toDeviceResponse(d))
}

// DeleteDevice handles DELETE /api/v1/devices/:deviceId (§6), deactivating
// rather than hard-deleting so in-flight deliveries still resolve cleanly.
func (h *Handlers) DeleteDevice(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return
	}
	deviceID := c.Param("deviceId")

	d, err := h.devices.GetByID(c.Request.Context(), deviceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to load device")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load device"})
		return
	}
	if d.UserID != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "device belongs to another user"})
		return
	}

	if err := h.devices.Deactivate(c.Request.Context(), deviceID); err != nil {
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to deactivate device")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to delete device"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPreferences handles GET /api/v1/preferences (§6), creating defaults on
// first access.
func (h *Handlers) GetPreferences(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return
	}

	prefs, err := h.preferences.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load preferences")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load preferences"})
		return
	}
	c.JSON(http.StatusOK, toPreferencesResponse(prefs))
}

// UpdatePreferences handles PUT /api/v1/preferences (§6): a partial-merge
// update over the caller's own document.
func (h *Handlers) UpdatePreferences(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return
	}

	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	prefs, err := h.preferences.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load preferences")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load preferences"})
		return
	}
	req.applyTo(prefs)

	updated, err := h.preferences.Update(c.Request.Context(), prefs)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to update preferences")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to update preferences"})
		return
	}
	c.JSON(http.StatusOK, toPreferencesResponse(updated))
}

// GetNotifications handles GET /api/v1/notifications (§6, §4.10): cursor
// pagination with optional includeRead/since filters.
func (h *Handlers) GetNotifications(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return
	}

	q := repo.InboxQuery{Limit: 20, IncludeRead: c.Query("includeRead") == "true"}
	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			q.Limit = limit
		}
	}
	if cursorStr := c.Query("cursor"); cursorStr != "" {
		decoded, err := cursor.Decode(cursorStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid cursor"})
			return
		}
		q.Cursor = &decoded
	}
	if sinceStr := c.Query("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid since"})
			return
		}
		q.Since = &since
	}

	items, nextCursor, hasMore, total, err := h.inbox.GetNotifications(c.Request.Context(), userID, q)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list notifications"})
		return
	}

	resp := NotificationsPageResponse{
		Notifications: make([]NotificationItemResponse, 0, len(items)),
		NextCursor:    nextCursor,
		HasMore:       hasMore,
		Total:         total,
	}
	for _, it := range items {
		resp.Notifications = append(resp.Notifications, toNotificationItemResponse(it))
	}
	c.JSON(http.StatusOK, resp)
}

// GetUnreadCount handles GET /api/v1/notifications/unread-count (§6).
func (h *Handlers) GetUnreadCount(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return
	}

	count, err := h.inbox.GetUnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to count unread notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to count unread notifications"})
		return
	}
	c.JSON(http.StatusOK, UnreadCountResponse{Count: count})
}

// MarkRead handles POST /api/v1/notifications/:id/read (§6, §4.10).
func (h *Handlers) MarkRead(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid notification id"})
		return
	}

	if err := h.inbox.MarkAsRead(c.Request.Context(), userID, id, time.Now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "notification not found"})
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Stringer("id", id).Msg("failed to mark notification read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to mark notification read"})
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkReadBatch handles POST /api/v1/notifications/read-batch (§6).
func (h *Handlers) MarkReadBatch(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return
	}

	var req MarkReadBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	count, err := h.inbox.MarkBatchAsRead(c.Request.Context(), userID, req.IDs, time.Now())
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to mark notifications read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to mark notifications read"})
		return
	}
	c.JSON(http.StatusOK, MarkReadBatchResponse{UpdatedCount: count})
}

// TriggerEvent handles POST /api/internal/events: an internal-service-token
// gated route letting tests drive the C7 pipeline directly, as a stand-in
// for a live broker delivery (§6).
func (h *Handlers) TriggerEvent(c *gin.Context) {
	var req TriggerEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	outcome := h.eventHandler.HandleMessage(c.Request.Context(), req.EventType, req.Payload)
	c.JSON(http.StatusOK, TriggerEventResponse{Outcome: outcomeLabel(outcome)})
}

func outcomeLabel(o eventhandler.Outcome) string {
	switch o {
	case eventhandler.OutcomeAck:
		return "ack"
	case eventhandler.OutcomeNackRequeue:
		return "nack_requeue"
	case eventhandler.OutcomeNackDiscard:
		return "nack_discard"
	default:
		return "unknown"
	}
}
