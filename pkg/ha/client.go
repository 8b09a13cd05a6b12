// Package ha provides HTTP access to a Home Assistant instance: service
// calls, state reads and writes, and the state-history API.
package ha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is the per-request deadline when none is configured.
const DefaultTimeout = 8000 * time.Millisecond

// Client talks to the Home Assistant REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Home Assistant client. baseURL is the instance root
// (e.g. http://homeassistant.local:8123); timeout bounds every request and
// falls back to DefaultTimeout when zero.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
}

// BaseURL returns the configured instance root.
func (c *Client) BaseURL() string { return c.baseURL }

// Token returns the access token (used by the websocket auth handshake).
func (c *Client) Token() string { return c.token }

// WebsocketURL derives the websocket API endpoint from the instance root.
func (c *Client) WebsocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/websocket"
}

// CallService invokes a Home Assistant service, e.g. domain "light",
// service "turn_on". The payload is forwarded as the JSON body.
func (c *Client) CallService(ctx context.Context, domain, service string, payload map[string]any) error {
	endpoint := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)
	_, err := c.doJSON(ctx, http.MethodPost, endpoint, payload)
	return err
}

// State is one entity state from the states API.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

// GetState reads the current state of an entity.
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	endpoint := fmt.Sprintf("%s/api/states/%s", c.baseURL, url.PathEscape(entityID))
	body, err := c.doJSON(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("decode state response: %w", err)
	}
	return &st, nil
}

// SetState writes an entity state directly, bypassing service dispatch.
func (c *Client) SetState(ctx context.Context, entityID string, state any) error {
	endpoint := fmt.Sprintf("%s/api/states/%s", c.baseURL, url.PathEscape(entityID))
	_, err := c.doJSON(ctx, http.MethodPost, endpoint, map[string]any{"state": state})
	return err
}

// History fetches the state history of an entity over the last N hours and
// returns the parsed entries.
func (c *Client) History(ctx context.Context, entityID string, hours int) ([]HistoryEntry, error) {
	if hours <= 0 {
		hours = 24
	}
	start := time.Now().UTC().Add(-time.Duration(hours) * time.Hour).Format(time.RFC3339)
	endpoint := fmt.Sprintf("%s/api/history/period/%s?filter_entity_id=%s",
		c.baseURL, start, url.QueryEscape(entityID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, normalizeError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read history response: %w", err)
	}
	return ParseHistoryResponse(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

// doJSON performs one request with auth headers and returns the response
// body, normalizing transport failures and non-2xx statuses.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, normalizeError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Home Assistant request failed",
			"method", method, "status", resp.StatusCode, "duration", time.Since(started))
		return nil, fmt.Errorf("Home Assistant request failed: HTTP %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

// normalizeError folds deadline, refused-connection and unknown-host
// failures into the single message the interpreter surfaces.
func normalizeError(err error) error {
	reason := "request error"
	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		reason = "timeout"
	case errors.As(err, &dnsErr):
		reason = "host not found"
	case strings.Contains(err.Error(), "connection refused"):
		reason = "connection refused"
	case errors.Is(err, context.Canceled):
		reason = "cancelled"
	}
	return fmt.Errorf("Home Assistant request failed: %s", reason)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
