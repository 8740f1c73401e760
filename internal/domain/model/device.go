package model

import "time"

// maxFailureCount is the consecutive soft-failure threshold past which a
// device is deactivated (§3, §4.5).
const maxFailureCount = 5

// PushSettings are the client-controlled delivery toggles for a device.
type PushSettings struct {
	Enabled bool
	Sound   bool
	Badge   bool
	Alert   bool
}

// Device is a registered install capable of receiving gateway push.
type Device struct {
	DeviceID         string
	UserID           string
	Platform         Platform
	DeviceToken      string
	FCMToken         string
	AppVersion       string
	DeviceInfo       string
	PushSettings     PushSettings
	IsActive         bool
	LastSeen         time.Time
	RegistrationDate time.Time
	FailureCount     int
	LastFailure      *time.Time
	Tags             []string
	Metadata         map[string]any
}

// NewDevice registers a fresh, active device.
func NewDevice(deviceID, userID string, platform Platform, deviceToken string, now time.Time) *Device {
	return &Device{
		DeviceID:         deviceID,
		UserID:           userID,
		Platform:         platform,
		DeviceToken:      deviceToken,
		PushSettings:     PushSettings{Enabled: true, Sound: true, Badge: true, Alert: true},
		IsActive:         true,
		LastSeen:         now,
		RegistrationDate: now,
	}
}

// RecordSuccess resets the failure counter and bumps last-seen (§4.5).
func (d *Device) RecordSuccess(now time.Time) {
	d.FailureCount = 0
	d.LastSeen = now
}

// RecordSoftFailure increments the consecutive-failure counter and
// deactivates the device once it reaches maxFailureCount (§3, §4.5).
func (d *Device) RecordSoftFailure(now time.Time) {
	d.FailureCount++
	d.LastFailure = &now
	if d.FailureCount >= maxFailureCount {
		d.IsActive = false
	}
}

// Deactivate forces the device inactive regardless of failure count, used for
// hard token errors (UNREGISTERED/INVALID) which bypass the counter (§3, §4.5).
func (d *Device) Deactivate(now time.Time) {
	d.IsActive = false
	d.LastFailure = &now
}

// IsStale reports whether the device has not been seen in inactiveDays (§4.5).
func (d *Device) IsStale(now time.Time, inactiveDays int) bool {
	return now.Sub(d.LastSeen) > time.Duration(inactiveDays)*24*time.Hour
}
