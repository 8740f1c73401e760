package model

import "time"

// DeliveryLogStatus is the per-device delivery attempt status tracked
// independently of the Notification's own device list, for indexed retry
// scans (§3).
type DeliveryLogStatus string

const (
	DeliveryLogPending      DeliveryLogStatus = "pending"
	DeliveryLogSent         DeliveryLogStatus = "sent"
	DeliveryLogFailed       DeliveryLogStatus = "failed"
	DeliveryLogInvalidToken DeliveryLogStatus = "invalid_token"
)

// DeliveryLog is the (notificationId, deviceId)-keyed attempt ledger.
type DeliveryLog struct {
	NotificationID string
	DeviceID       string
	Status         DeliveryLogStatus
	AttemptCount   int
	LastError      string
	NextRetryAt    *time.Time
	SentAt         *time.Time
	CreatedAt      time.Time
}
