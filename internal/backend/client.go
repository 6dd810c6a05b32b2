// Package backend is the HTTP client for the courierloc server API, used by the
// courier agent and the dispatch console.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"courierloc/internal/dto"
)

const apiPrefix = "/api/v1"

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	token      string
	userAgent  string
}

// NewClient creates a client for baseURL authenticating with a bearer token.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    u,
		token:      token,
		userAgent:  "courierloc/1.0",
	}, nil
}

// Secure reports whether calls travel over an encrypted transport. Loopback
// addresses count as secure so local development works over plain http.
func (c *Client) Secure() bool {
	if c.baseURL.Scheme == "https" {
		return true
	}
	host := c.baseURL.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Client) TrackingKey(ctx context.Context) (string, error) {
	var resp dto.MapKeyResponse
	if err := c.do(ctx, http.MethodGet, "/map/key", nil, &resp); err != nil {
		return "", err
	}
	return resp.Key, nil
}

func (c *Client) ListCourierLocations(ctx context.Context) ([]dto.CourierLocation, error) {
	var list []dto.CourierLocation
	if err := c.do(ctx, http.MethodGet, "/locations", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) TrackingState(ctx context.Context) (*dto.TrackingState, error) {
	var st dto.TrackingState
	if err := c.do(ctx, http.MethodGet, "/me/tracking", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) StartTracking(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/me/tracking/start", nil, nil)
}

func (c *Client) StopTracking(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/me/tracking/stop", nil, nil)
}

func (c *Client) UpdateLocation(ctx context.Context, upd dto.LocationUpdate) error {
	return c.do(ctx, http.MethodPost, "/me/location", upd, nil)
}

func (c *Client) Ping(ctx context.Context, req dto.PingRequest) error {
	return c.do(ctx, http.MethodPost, "/me/tracking/ping", req, nil)
}

// BuildRoute asks the server for a Yandex Maps route link.
func (c *Client) BuildRoute(ctx context.Context, req dto.RouteRequest) (string, error) {
	var resp dto.RouteResponse
	if err := c.do(ctx, http.MethodPost, "/routes/yandex", req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}
	u := c.baseURL.JoinPath(apiPrefix, path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &payload)
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
