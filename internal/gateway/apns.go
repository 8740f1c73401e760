package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/rs/zerolog"
)

// apnsHostProduction and apnsHostSandbox are the two HTTP/2 APNs endpoints;
// the adapter only ever talks to one, chosen at construction from
// config.GatewayCredentials.Environment.
const (
	apnsHostProduction = "https://api.push.apple.com"
	apnsHostSandbox    = "https://api.sandbox.push.apple.com"
)

// APNsGateway sends per-token pushes to the iOS-style gateway. Unlike FCM it
// has no native multicast call, so Send issues one request per token (§6).
type APNsGateway struct {
	client      *http.Client
	host        string
	bundleID    string
	credentials config.GatewayCredentials
	logger      zerolog.Logger
}

// NewAPNsGateway constructs the APNs-style gateway adapter.
func NewAPNsGateway(cfg config.GatewayCredentials, client *http.Client, logger *zerolog.Logger) *APNsGateway {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	host := apnsHostSandbox
	if cfg.Environment == "production" {
		host = apnsHostProduction
	}
	return &APNsGateway{
		client:      client,
		host:        host,
		bundleID:    cfg.BundleID,
		credentials: cfg,
		logger:      logger.With().Str("component", "apns_gateway").Logger(),
	}
}

// Name implements Gateway.
func (g *APNsGateway) Name() string { return "apns" }

type apnsAlert struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type apnsAps struct {
	Alert apnsAlert `json:"alert"`
	Sound string    `json:"sound,omitempty"`
	Badge int       `json:"badge,omitempty"`
}

type apnsPayload struct {
	APS  apnsAps           `json:"aps"`
	Data map[string]string `json:"data,omitempty"`
}

type apnsErrorBody struct {
	Reason string `json:"reason"`
}

// Send implements Gateway, issuing one APNs request per device token.
func (g *APNsGateway) Send(ctx context.Context, tokens []DeviceToken, msg Message) ([]DeviceResult, error) {
	results := make([]DeviceResult, len(tokens))
	for i, t := range tokens {
		extID, err := g.sendOne(ctx, t.Token, msg)
		if err != nil {
			results[i] = DeviceResult{DeviceID: t.DeviceID, Token: t.Token, Success: false, RawError: err}
			continue
		}
		results[i] = DeviceResult{DeviceID: t.DeviceID, Token: t.Token, Success: true, ExternalID: extID}
	}
	return results, nil
}

// SendTopic implements Gateway for pushStrategy=topic GroupNotifications; for
// APNs it posts a single request to the per-device endpoint with the topic
// name in place of a device token (§4.8).
func (g *APNsGateway) SendTopic(ctx context.Context, topic string, msg Message) (string, error) {
	payload := apnsPayload{
		APS:  apnsAps{Alert: apnsAlert{Title: msg.Title, Body: msg.Body}, Sound: msg.Sound, Badge: msg.Badge},
		Data: msg.Data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("apns: marshal topic payload: %w", err)
	}
	url := fmt.Sprintf("%s/3/device/%s", g.host, topic)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("apns: build topic request: %w", err)
	}
	g.setHeaders(httpReq, msg)
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Error().Err(err).Str("topic", topic).Msg("apns topic send failed")
		return "", fmt.Errorf("apns: topic send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var eb apnsErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return "", &APNsError{Status: resp.StatusCode, Reason: eb.Reason}
	}
	return resp.Header.Get("apns-id"), nil
}

func (g *APNsGateway) sendOne(ctx context.Context, token string, msg Message) (string, error) {
	payload := apnsPayload{
		APS:  apnsAps{Alert: apnsAlert{Title: msg.Title, Body: msg.Body}, Sound: msg.Sound, Badge: msg.Badge},
		Data: msg.Data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("apns: marshal payload: %w", err)
	}
	url := fmt.Sprintf("%s/3/device/%s", g.host, token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("apns: build request: %w", err)
	}
	g.setHeaders(httpReq, msg)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Error().Err(err).Msg("apns send failed")
		return "", &APNsError{Status: 503, Reason: "ServiceUnavailable"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var eb apnsErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return "", &APNsError{Status: resp.StatusCode, Reason: eb.Reason}
	}
	return resp.Header.Get("apns-id"), nil
}

func (g *APNsGateway) setHeaders(req *http.Request, msg Message) {
	req.Header.Set("apns-topic", g.bundleID)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("apns-expiration", strconv.FormatInt(time.Now().Add(msg.TTL).Unix(), 10))
	req.Header.Set("apns-priority", apnsPriority(msg.Priority))
	req.Header.Set("content-type", "application/json")
}

func apnsPriority(p model.Priority) string {
	switch p {
	case model.PriorityHigh, model.PriorityCritical:
		return "10"
	default:
		return "5"
	}
}
