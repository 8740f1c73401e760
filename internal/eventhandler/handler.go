// Package eventhandler implements the C7 consumer-side pipeline: decode,
// validate, de-duplicate, gate on preferences, derive the recipient, decide
// fanout strategy, and persist the resulting Notification or
// GroupNotification (§4.7).
package eventhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/internal/fanout"
	"github.com/ilindan-dev/notifyhub/internal/idempotency"
	"github.com/rs/zerolog"
)

// Outcome tells the broker consumer how to acknowledge the delivery.
type Outcome int

const (
	OutcomeAck Outcome = iota
	OutcomeNackRequeue
	OutcomeNackDiscard
)

// broadcastEventTypes are the event types eligible for the C8 fanout
// decision (§4.7 step 6).
var broadcastEventTypes = map[string]model.EventType{
	eventTypePostCreated: model.EventPostCreated,
	eventTypeLiveStream:  model.EventLiveStreamStarted,
	eventTypeStoryPosted: model.EventStoryPosted,
	eventTypeAnnouncement: model.EventAnnouncementMade,
}

// Handler is the C7 event handler.
type Handler struct {
	idempotencyStore *idempotency.Store
	preferences      repository.PreferencesRepository
	devices          repository.DeviceRepository
	notifications    repository.NotificationRepository
	outbox           repository.OutboxRepository
	transactor       repository.Transactor
	selector         *fanout.Selector
	logger           zerolog.Logger
}

// NewHandler builds the C7 event handler.
func NewHandler(
	idempotencyStore *idempotency.Store,
	preferences repository.PreferencesRepository,
	devices repository.DeviceRepository,
	notifications repository.NotificationRepository,
	outbox repository.OutboxRepository,
	transactor repository.Transactor,
	selector *fanout.Selector,
	logger *zerolog.Logger,
) *Handler {
	return &Handler{
		idempotencyStore: idempotencyStore,
		preferences:      preferences,
		devices:          devices,
		notifications:    notifications,
		outbox:           outbox,
		transactor:       transactor,
		selector:         selector,
		logger:           logger.With().Str("component", "event_handler").Logger(),
	}
}

// HandleMessage runs the full §4.7 pipeline for one broker message.
func (h *Handler) HandleMessage(ctx context.Context, eventType string, payload []byte) Outcome {
	d, err := decodeAndValidate(eventType, payload)
	if err != nil {
		h.logger.Warn().Err(err).Str("event_type", eventType).Msg("malformed event, discarding")
		return OutcomeNackDiscard
	}
	log := h.logger.With().Str("event_id", d.eventID).Str("correlation_id", d.correlationID).Str("event_type", d.eventType).Logger()

	idemKey := idempotency.BuildKey(d.eventType, d.eventID, d.actorUserID, d.recipientUserID, d.resourceID)
	if h.idempotencyStore.IsProcessed(ctx, idemKey) {
		log.Info().Msg("event already processed, ack without side-effect")
		return OutcomeAck
	}

	// publishedInTx is set by handlePersonal when it already wrote the
	// notification.event.processed outbox row atomically with the
	// Notification row; handleBroadcast and the early-exit paths below have
	// no corresponding row write to be atomic with, so they publish
	// separately after the fact.
	var notificationID string
	var handlerErr error
	publishedInTx := false
	if d.isBroadcast {
		notificationID, handlerErr = h.handleBroadcast(ctx, d, &log)
	} else {
		notificationID, publishedInTx, handlerErr = h.handlePersonal(ctx, d, &log)
	}
	if handlerErr != nil {
		if isRetryable(handlerErr) {
			log.Error().Err(handlerErr).Msg("retryable failure, nacking with requeue")
			return OutcomeNackRequeue
		}
		log.Error().Err(handlerErr).Msg("terminal failure, nacking without requeue")
		h.publishProcessed(ctx, d, "", false, handlerErr.Error())
		return OutcomeNackDiscard
	}

	record := model.NewIdempotencyRecord(idemKey, d.eventID, d.eventType, notificationID, d.recipientUserID, time.Now())
	if err := h.idempotencyStore.MarkProcessed(ctx, idemKey, record); err != nil {
		log.Error().Err(err).Msg("failed to mark event processed, nacking with requeue")
		return OutcomeNackRequeue
	}

	if !publishedInTx {
		h.publishProcessed(ctx, d, notificationID, true, "")
	}
	return OutcomeAck
}

// handleBroadcast implements §4.7 step 6 for a high-reach event type.
func (h *Handler) handleBroadcast(ctx context.Context, d *decoded, log *zerolog.Logger) (string, error) {
	eventType, ok := broadcastEventTypes[d.eventType]
	if !ok {
		return "", fmt.Errorf("eventhandler: %s is not a recognized broadcast type", d.eventType)
	}
	useFanoutOnRead := h.selector.ShouldUseFanoutOnRead(ctx, d.actorUserID, &d.actorFollowerCount)
	if !useFanoutOnRead {
		log.Info().Msg("actor below fanout-on-read threshold, broadcast dropped (per-follower fanout-on-write is out of scope for this event type)")
		return "", nil
	}

	in := fanout.BroadcastEventInput{
		EventID:            uuid.New(),
		EventType:          eventType,
		ActorUserID:        d.actorUserID,
		ActorFollowerCount: d.actorFollowerCount,
		Title:              d.title,
		Body:               d.body,
		Data:               d.data,
		ImageURL:           d.imageURL,
		PushStrategy:       model.PushStrategy(d.pushStrategy),
		EstimatedReach:     d.actorFollowerCount,
	}
	g, err := h.selector.CreateGroupNotification(ctx, in, time.Now())
	if err != nil {
		return "", fmt.Errorf("eventhandler: create group notification: %w", err)
	}
	return g.GroupNotificationID.String(), nil
}

// handlePersonal implements §4.7 steps 4,5,7 for a personal-notification
// event. The bool return reports whether the notification.event.processed
// outbox row was already written atomically with the Notification row
// (true), so the caller must not publish it again.
func (h *Handler) handlePersonal(ctx context.Context, d *decoded, log *zerolog.Logger) (string, bool, error) {
	prefs, err := h.preferences.GetOrCreate(ctx, d.recipientUserID)
	if err != nil {
		return "", false, fmt.Errorf("eventhandler: load preferences: %w", err)
	}
	decision := prefs.ShouldDeliver(d.category, d.priority, "", d.title, d.body)
	if !decision.Deliver {
		log.Info().Str("reason", decision.Reason).Msg("blocked by preferences, skipping")
		return "skipped-by-preference", false, nil
	}

	devices, err := h.devices.FindActiveForUser(ctx, d.recipientUserID)
	if err != nil {
		return "", false, fmt.Errorf("eventhandler: load devices: %w", err)
	}
	if len(devices) == 0 {
		log.Info().Msg("recipient has no active devices")
		return "", false, nil
	}

	n := model.NewNotification(d.recipientUserID, d.category, d.priority, d.title, d.body, nil, time.Now())
	n.ResourceID = d.resourceID
	n.Source = d.eventType

	var saved *model.Notification
	duplicate := false
	txErr := h.transactor.WithinTx(ctx, func(txCtx context.Context) error {
		var saveErr error
		saved, saveErr = h.notifications.Save(txCtx, n)
		if saveErr != nil {
			if errors.Is(saveErr, repository.ErrDuplicateRecord) {
				existing, findErr := h.notifications.GetByResourceID(txCtx, d.recipientUserID, d.category, d.resourceID)
				if findErr != nil {
					return findErr
				}
				saved = existing
				duplicate = true
				return nil
			}
			return saveErr
		}

		evt := model.EventProcessedEvent{
			OriginalEventID:   d.eventID,
			OriginalEventType: d.eventType,
			NotificationID:    saved.NotificationID.String(),
			ProcessedAt:       time.Now(),
			Success:           true,
			CorrelationID:     d.correlationID,
		}
		payload, marshalErr := json.Marshal(evt)
		if marshalErr != nil {
			return marshalErr
		}
		return h.outbox.Insert(txCtx, model.NewOutboxEvent("notification.event.processed", payload, time.Now()))
	})
	if txErr != nil {
		return "", false, fmt.Errorf("eventhandler: persist notification: %w", txErr)
	}

	// The duplicate-insert race (another consumer already saved this
	// resourceId) never wrote the processed row above, so the caller must
	// still publish it after the transaction instead of treating it as done.
	if duplicate {
		return saved.NotificationID.String(), false, nil
	}
	return saved.NotificationID.String(), true, nil
}

func (h *Handler) publishProcessed(ctx context.Context, d *decoded, notificationID string, success bool, errMsg string) {
	evt := model.EventProcessedEvent{
		OriginalEventID:   d.eventID,
		OriginalEventType: d.eventType,
		NotificationID:    notificationID,
		ProcessedAt:       time.Now(),
		Success:           success,
		Error:             errMsg,
		CorrelationID:     d.correlationID,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal notification.event.processed")
		return
	}
	outboxEvent := model.NewOutboxEvent("notification.event.processed", payload, time.Now())
	if err := h.outbox.Insert(ctx, outboxEvent); err != nil {
		h.logger.Error().Err(err).Msg("failed to enqueue notification.event.processed via outbox")
	}
}

// isRetryable reports whether a handler error is treated as transient:
// every error is, except one wrapping repository.ErrNotFound, which is
// terminal. Malformed payloads never reach it; they are discarded after
// decodeAndValidate. The result drives the nack-requeue-vs-discard split (§4.7).
func isRetryable(err error) bool {
	return !errors.Is(err, repository.ErrNotFound)
}
