// Package socialclient reaches the external service that owns follower
// graphs — follower counts for the C8 fanout decision and the is-following
// relation for the C10 inbox relevance check (§4.8, §4.10). Neither datum
// lives in this module's own store, so this is a plain HTTP client rather
// than a storage adapter.
package socialclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/rs/zerolog"
)

// Client implements both fanout.FollowerService and redis.FollowingSource
// over the social service's HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// New builds the social-service HTTP client.
func New(cfg config.SocialConfig, httpClient *http.Client, logger *zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		logger:     logger.With().Str("component", "social_client").Logger(),
	}
}

// FollowerCount implements fanout.FollowerService.
func (c *Client) FollowerCount(ctx context.Context, actorUserID string) (int, error) {
	url := fmt.Sprintf("%s/users/%s/follower-count", c.baseURL, actorUserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("socialclient: build follower-count request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("socialclient: follower-count request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("socialclient: follower-count returned status %d", resp.StatusCode)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("socialclient: decode follower-count response: %w", err)
	}
	return body.Count, nil
}

// IsFollowing implements redis.FollowingSource.
func (c *Client) IsFollowing(ctx context.Context, userID, actorUserID string) (bool, error) {
	url := fmt.Sprintf("%s/users/%s/following/%s", c.baseURL, userID, actorUserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("socialclient: build is-following request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("socialclient: is-following request: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("socialclient: is-following returned status " + strconv.Itoa(resp.StatusCode))
	}
}
