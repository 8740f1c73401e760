// Package model holds the technology-agnostic domain entities of the
// notification service. The entity types carry no DB or JSON tags; storage
// adapters own the mapping to and from their own wire/row representations.
// The broker event payloads in events.go are the exception and carry JSON
// tags for their wire format.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies why a notification was produced.
type Category string

const (
	CategoryFollow  Category = "follow"
	CategoryLike    Category = "like"
	CategoryComment Category = "comment"
	CategoryMention Category = "mention"
	CategoryMessage Category = "message"
	CategorySocial  Category = "social"
	CategorySystem  Category = "system"
)

// Priority orders delivery urgency and decides the TTL bucket (§3).
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// TTL returns the expiry duration derived from priority, per §3.
func (p Priority) TTL() time.Duration {
	switch p {
	case PriorityCritical:
		return 12 * time.Hour
	case PriorityHigh:
		return 24 * time.Hour
	case PriorityNormal:
		return 48 * time.Hour
	default:
		return 72 * time.Hour
	}
}

// Status is the overall lifecycle state of a Notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Platform identifies the gateway a device is reachable through.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// DeviceDeliveryStatus is the per-device outcome of a delivery attempt.
type DeviceDeliveryStatus string

const (
	DeviceStatusPending   DeviceDeliveryStatus = "pending"
	DeviceStatusSent      DeviceDeliveryStatus = "sent"
	DeviceStatusDelivered DeviceDeliveryStatus = "delivered"
	DeviceStatusFailed    DeviceDeliveryStatus = "failed"
)

// DeviceDelivery is one device's delivery state within a Notification.
type DeviceDelivery struct {
	DeviceID     string
	Platform     Platform
	Status       DeviceDeliveryStatus
	SentAt       *time.Time
	DeliveredAt  *time.Time
	ErrorMessage string
	ExternalID   string
}

// Delivery aggregates the attempt bookkeeping and per-device outcomes.
type Delivery struct {
	Attempts    int
	LastAttempt *time.Time
	Devices     []DeviceDelivery
}

// UpsertDevice replaces the Devices entry matching dd.DeviceID, or appends it
// if no entry exists yet. delivery.devices holds one entry per device (§3),
// not a log of every dispatch pass, so retries must overwrite, not append.
func (d *Delivery) UpsertDevice(dd DeviceDelivery) {
	for i := range d.Devices {
		if d.Devices[i].DeviceID == dd.DeviceID {
			d.Devices[i] = dd
			return
		}
	}
	d.Devices = append(d.Devices, dd)
}

// InteractionType is a client-reported engagement event.
type InteractionType string

const (
	InteractionOpened    InteractionType = "opened"
	InteractionClicked   InteractionType = "clicked"
	InteractionDismissed InteractionType = "dismissed"
)

// Interaction records a single client engagement with a notification.
type Interaction struct {
	Type      InteractionType
	Timestamp time.Time
	DeviceID  string
	Metadata  map[string]any
}

// Notification is the fanout-on-write entity: one row per recipient.
type Notification struct {
	NotificationID uuid.UUID
	UserID         string
	Title          string
	Body           string
	Data           map[string]any
	ImageURL       string
	IconURL        string

	Category Category
	Priority Priority
	Tags     []string
	Urgent   bool

	ScheduleAt *time.Time
	Timezone   string
	ExpiresAt  time.Time

	Status Status
	IsRead bool
	ReadAt *time.Time

	// Lease fields. Only the current lease holder may mutate Delivery below.
	LockedBy   string
	LockedAt   *time.Time
	LockExpiry *time.Time

	Delivery Delivery

	Interactions []Interaction

	Source     string
	Campaign   string
	Metadata   map[string]any
	ResourceID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewNotification builds a Notification in its initial state: `scheduled` if
// scheduleAt is in the future, `pending` otherwise (§3).
func NewNotification(userID string, category Category, priority Priority, title, body string, scheduleAt *time.Time, now time.Time) *Notification {
	status := StatusPending
	if scheduleAt != nil && scheduleAt.After(now) {
		status = StatusScheduled
	}
	return &Notification{
		NotificationID: uuid.New(),
		UserID:         userID,
		Title:          title,
		Body:           body,
		Category:       category,
		Priority:       priority,
		ScheduleAt:     scheduleAt,
		ExpiresAt:      now.Add(priority.TTL()),
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecomputeStatus derives the overall status from device states (§3 invariant,
// §8 invariant 2). It never overrides terminal states set outside delivery
// (scheduled, cancelled) — callers must only invoke this after a delivery pass.
func (n *Notification) RecomputeStatus() {
	if len(n.Delivery.Devices) == 0 {
		return
	}
	allDelivered, anySentOrDelivered, allFailed := true, false, true
	for _, d := range n.Delivery.Devices {
		if d.Status == DeviceStatusDelivered {
			anySentOrDelivered = true
		} else {
			allDelivered = false
		}
		if d.Status == DeviceStatusSent {
			anySentOrDelivered = true
		}
		if d.Status != DeviceStatusFailed {
			allFailed = false
		}
	}
	switch {
	case allDelivered:
		n.Status = StatusDelivered
	case allFailed:
		n.Status = StatusFailed
	case anySentOrDelivered:
		n.Status = StatusSent
	}
}

// IsExpired reports whether now has reached the notification's expiry (§8).
func (n *Notification) IsExpired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// LeaseValid reports whether the current lease has not yet expired (§8 invariant 4).
func (n *Notification) LeaseValid(now time.Time) bool {
	return n.LockedBy != "" && n.LockExpiry != nil && now.Before(*n.LockExpiry)
}
