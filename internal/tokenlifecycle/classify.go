// Package tokenlifecycle classifies gateway delivery failures into a closed
// set of outcomes and drives device deactivation/retry decisions (§4.5).
package tokenlifecycle

import (
	"time"

	"github.com/ilindan-dev/notifyhub/internal/gateway"
)

// ErrorType is the closed classification set a gateway signal maps to.
type ErrorType string

const (
	TypeInvalid            ErrorType = "INVALID"
	TypeUnregistered       ErrorType = "UNREGISTERED"
	TypeExpired            ErrorType = "EXPIRED"
	TypeCredentialError    ErrorType = "CREDENTIAL_ERROR"
	TypeRateLimited        ErrorType = "RATE_LIMITED"
	TypeServiceUnavailable ErrorType = "SERVICE_UNAVAILABLE"
	TypeUnknown            ErrorType = "UNKNOWN"
)

// Classification is the outcome of classifying a single delivery failure.
type Classification struct {
	Type             ErrorType
	ShouldDeactivate bool
	ShouldRetry      bool
	RetryAfter       time.Duration
}

// classifyFCM maps an FCM-style error code to a Classification per the §4.5
// authoritative table.
func classifyFCM(err *gateway.FCMError) Classification {
	switch err.Code {
	case "registration-token-not-registered", "invalid-registration-token":
		return Classification{Type: TypeUnregistered, ShouldDeactivate: true}
	case "mismatched-credential", "authentication-error":
		return Classification{Type: TypeCredentialError}
	case "message-rate-exceeded", "device-message-rate-exceeded":
		return Classification{Type: TypeRateLimited, ShouldRetry: true, RetryAfter: 60 * time.Second}
	case "server-unavailable", "internal-error":
		return Classification{Type: TypeServiceUnavailable, ShouldRetry: true, RetryAfter: 30 * time.Second}
	default:
		return Classification{Type: TypeUnknown, ShouldRetry: true}
	}
}

// classifyAPNs maps an APNs-style (status, reason) pair to a Classification
// per the §4.5 authoritative table.
func classifyAPNs(status int, reason string) Classification {
	switch {
	case status == 410 || (status == 400 && reason == "BadDeviceToken"):
		return Classification{Type: TypeUnregistered, ShouldDeactivate: true}
	case status == 403:
		return Classification{Type: TypeCredentialError}
	case status == 429:
		return Classification{Type: TypeRateLimited, ShouldRetry: true, RetryAfter: 60 * time.Second}
	case status == 500 || status == 503:
		return Classification{Type: TypeServiceUnavailable, ShouldRetry: true, RetryAfter: 30 * time.Second}
	default:
		return Classification{Type: TypeUnknown, ShouldRetry: true}
	}
}

// Classify dispatches on the concrete gateway error type carried in
// gateway.DeviceResult.RawError. A nil or unrecognized error classifies as
// UNKNOWN/retryable, the safe default.
func Classify(err error) Classification {
	switch e := err.(type) {
	case *gateway.FCMError:
		return classifyFCM(e)
	case *gateway.APNsError:
		return classifyAPNs(e.Status, e.Reason)
	default:
		return Classification{Type: TypeUnknown, ShouldRetry: true}
	}
}
