package model

import (
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is a durable row written in the same transaction as a domain
// write; the relay (C6) drains it to the broker at-least-once (§4.6).
type OutboxEvent struct {
	OutboxID    uuid.UUID
	EventID     uuid.UUID
	EventType   string
	Payload     []byte
	Published   bool
	CreatedAt   time.Time
	PublishedAt *time.Time
	RetryCount  int
	LastError   string

	// NextAttemptAt gates a retry until the relay's backoff delay has
	// elapsed, without the relay worker having to block on it (§4.6).
	NextAttemptAt *time.Time
}

// NewOutboxEvent builds an unpublished row for the given event.
func NewOutboxEvent(eventType string, payload []byte, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		OutboxID:  uuid.New(),
		EventID:   uuid.New(),
		EventType: eventType,
		Payload:   payload,
		Published: false,
		CreatedAt: now,
	}
}

// RoutingKeyFor maps an eventType to the broker routing key it is published
// under, per the §4.6 table.
func RoutingKeyFor(eventType string) string {
	switch eventType {
	case "user.followed", "comment.created", "mention.created", "like.created":
		return "notification.events"
	default:
		return "notification.events"
	}
}
