package model

import "time"

// idempotencyTTL is the durable-store retention for processed markers (§3).
const idempotencyTTL = 7 * 24 * time.Hour

// IdempotencyRecord marks an (eventId or intent key) as already processed.
type IdempotencyRecord struct {
	IdempotencyKey string
	EventID        string
	EventType      string
	NotificationID string
	UserID         string
	ProcessedAt    time.Time
	ExpiresAt      time.Time
}

// NewIdempotencyRecord builds a record with the standard 7-day TTL.
func NewIdempotencyRecord(key, eventID, eventType, notificationID, userID string, now time.Time) *IdempotencyRecord {
	return &IdempotencyRecord{
		IdempotencyKey: key,
		EventID:        eventID,
		EventType:      eventType,
		NotificationID: notificationID,
		UserID:         userID,
		ProcessedAt:    now,
		ExpiresAt:      now.Add(idempotencyTTL),
	}
}

// ProcessedEvent is the legacy broker-level de-dup record (§3).
type ProcessedEvent struct {
	EventID     string
	UserID      string
	EventType   string
	ProcessedAt time.Time
}
