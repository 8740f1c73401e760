package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/rs/zerolog"
)

// fcmSendURL is the FCM HTTP v1 send endpoint; overridable in tests.
var fcmSendURL = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

// FCMGateway sends multicast and topic pushes to the Android-style token
// gateway. Authentication (OAuth2 bearer) is assumed handled by an
// http.RoundTripper supplied at construction; the wire protocol itself is
// out of scope (§1), so this adapter models only the request/response shape
// of §6's FCM contract.
type FCMGateway struct {
	client      *http.Client
	projectID   string
	credentials config.GatewayCredentials
	logger      zerolog.Logger
}

// NewFCMGateway constructs the FCM-style gateway adapter.
func NewFCMGateway(cfg config.GatewayCredentials, client *http.Client, logger *zerolog.Logger) *FCMGateway {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	return &FCMGateway{
		client:      client,
		projectID:   cfg.ProjectID,
		credentials: cfg,
		logger:      logger.With().Str("component", "fcm_gateway").Logger(),
	}
}

// Name implements Gateway.
func (g *FCMGateway) Name() string { return "fcm" }

type fcmAndroidConfig struct {
	Priority     string                 `json:"priority"`
	TTL          string                 `json:"ttl"`
	Notification map[string]interface{} `json:"notification,omitempty"`
}

type fcmMulticastRequest struct {
	Tokens       []string               `json:"tokens"`
	Notification map[string]string      `json:"notification"`
	Data         map[string]string      `json:"data,omitempty"`
	Android      fcmAndroidConfig       `json:"android"`
}

type fcmTokenResult struct {
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type fcmMulticastResponse struct {
	Results []fcmTokenResult `json:"results"`
}

// Send implements Gateway. Each token's outcome is classified by
// internal/tokenlifecycle from the returned RawError.
func (g *FCMGateway) Send(ctx context.Context, tokens []DeviceToken, msg Message) ([]DeviceResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	req := fcmMulticastRequest{
		Notification: map[string]string{"title": msg.Title, "body": msg.Body, "image": msg.ImageURL},
		Data:         msg.Data,
		Android: fcmAndroidConfig{
			Priority: androidPriority(msg.Priority),
			TTL:      fmt.Sprintf("%ds", int(msg.TTL.Seconds())),
			Notification: map[string]interface{}{
				"channel_id": msg.ChannelID,
				"sound":      msg.Sound,
			},
		},
	}
	for _, t := range tokens {
		req.Tokens = append(req.Tokens, t.Token)
	}

	resp, err := g.post(ctx, &req)
	if err != nil {
		results := make([]DeviceResult, len(tokens))
		for i, t := range tokens {
			results[i] = DeviceResult{DeviceID: t.DeviceID, Token: t.Token, Success: false, RawError: &FCMError{Code: "server-unavailable"}}
		}
		return results, err
	}

	results := make([]DeviceResult, len(tokens))
	for i, t := range tokens {
		if i >= len(resp.Results) {
			results[i] = DeviceResult{DeviceID: t.DeviceID, Token: t.Token, Success: false, RawError: &FCMError{Code: "unknown-error"}}
			continue
		}
		r := resp.Results[i]
		if r.Error != "" {
			results[i] = DeviceResult{DeviceID: t.DeviceID, Token: t.Token, Success: false, RawError: &FCMError{Code: r.Error}}
			continue
		}
		results[i] = DeviceResult{DeviceID: t.DeviceID, Token: t.Token, Success: true, ExternalID: r.MessageID}
	}
	return results, nil
}

// SendTopic implements Gateway for pushStrategy=topic GroupNotifications (§4.8).
func (g *FCMGateway) SendTopic(ctx context.Context, topic string, msg Message) (string, error) {
	payload := map[string]any{
		"topic":        topic,
		"notification": map[string]string{"title": msg.Title, "body": msg.Body, "image": msg.ImageURL},
		"data":         msg.Data,
		"android":      fcmAndroidConfig{Priority: androidPriority(msg.Priority), TTL: fmt.Sprintf("%ds", int(msg.TTL.Seconds()))},
	}
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(fcmSendURL, g.projectID), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("fcm: build topic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Error().Err(err).Str("topic", topic).Msg("fcm topic send failed")
		return "", fmt.Errorf("fcm: topic send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", &FCMError{Code: "server-unavailable"}
	}
	var out struct {
		MessageID string `json:"message_id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out.MessageID, nil
}

func (g *FCMGateway) post(ctx context.Context, req *fcmMulticastRequest) (*fcmMulticastResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("fcm: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(fcmSendURL, g.projectID), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fcm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Error().Err(err).Msg("fcm multicast send failed")
		return nil, fmt.Errorf("fcm: send: %w", err)
	}
	defer resp.Body.Close()

	var out fcmMulticastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("fcm: decode response: %w", err)
	}
	return &out, nil
}

func androidPriority(p model.Priority) string {
	switch p {
	case model.PriorityHigh, model.PriorityCritical:
		return "high"
	default:
		return "normal"
	}
}
