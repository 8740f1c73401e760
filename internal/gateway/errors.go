package gateway

import "fmt"

// FCMError is the raw gateway-signal shape for FCM-style token errors,
// mirrored on the error-code strings a real Firebase Admin SDK surfaces
// (§4.5 table).
type FCMError struct {
	Code string // e.g. "registration-token-not-registered"
}

func (e *FCMError) Error() string { return fmt.Sprintf("fcm: %s", e.Code) }

// APNsError is the raw gateway-signal shape for APNs-style token errors: an
// HTTP-like status plus a reason string (§4.5 table).
type APNsError struct {
	Status int
	Reason string
}

func (e *APNsError) Error() string { return fmt.Sprintf("apns: status=%d reason=%s", e.Status, e.Reason) }
