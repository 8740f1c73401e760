// Package gateway implements the outbound push contracts described at the
// interface level in spec.md §6: an FCM-style multicast/topic gateway and an
// APNs-style per-token gateway. The wire protocols themselves are out of
// scope (§1) — only the request/response shape and error classification
// inputs are modeled.
package gateway

import (
	"context"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
)

// Message is the gateway-agnostic payload built by the delivery worker pool
// from a Notification (§4.9 step 3, §6).
type Message struct {
	Title     string
	Body      string
	Data      map[string]string
	ImageURL  string
	Priority  model.Priority
	TTL       time.Duration
	ChannelID string
	Sound     string
	Badge     int
}

// DeviceResult is one token's outcome from a gateway call.
type DeviceResult struct {
	DeviceID   string
	Token      string
	Success    bool
	ExternalID string
	// RawError carries the gateway-specific failure signal (an FCM error code
	// string, or an APNs (status, reason) pair encoded by the adapter) for
	// internal/tokenlifecycle to classify.
	RawError error
}

// Gateway is the contract the delivery worker pool (C9) dispatches through,
// implemented once per platform-family gateway (FCM-style, APNs-style).
type Gateway interface {
	// Name identifies the gateway for circuit-breaker and metrics keys ("fcm"|"apns").
	Name() string

	// Send dispatches msg to every (deviceID, token) pair, returning one
	// DeviceResult per input token, preserving order.
	Send(ctx context.Context, tokens []DeviceToken, msg Message) ([]DeviceResult, error)

	// SendTopic performs a single topic-scoped push, used for
	// GroupNotification pushStrategy=topic (§4.8, §4.9).
	SendTopic(ctx context.Context, topic string, msg Message) (externalID string, err error)
}

// DeviceToken pairs a device identity with its gateway token.
type DeviceToken struct {
	DeviceID string
	Token    string
}
