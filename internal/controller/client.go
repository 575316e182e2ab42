package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/five82/beacon/internal/payload"
)

// Fetcher is the read side of the controller API. *Client implements it;
// tests and the mock controller substitute their own.
type Fetcher interface {
	FetchHealth(ctx context.Context) error
	FetchStatus(ctx context.Context) (*SystemStatus, error)
	FetchAccessPoints(ctx context.Context) ([]AccessPoint, error)
	FetchStations(ctx context.Context) ([]Station, error)
	FetchRoamingEvents(ctx context.Context, since time.Time) ([]RoamingEvent, error)
	FetchDashboard(ctx context.Context) ([]payload.Tile, error)
}

var _ Fetcher = (*Client)(nil)

// Client talks to the controller REST API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	token     string
}

const (
	defaultControllerURL = "127.0.0.1:8443"
	defaultUserAgent     = "beacon/0.1"
	requestTimeout       = 5 * time.Second
)

// Option customizes a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the default 5s-timeout HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a Client for the controller at rawURL. A bare host:port
// is treated as http.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(rawURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized controller address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// FetchHealth checks the controller liveness endpoint.
func (c *Client) FetchHealth(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.do(ctx, http.MethodGet, "/api/health", nil)
}

// FetchStatus retrieves controller identity and counters.
func (c *Client) FetchStatus(ctx context.Context) (*SystemStatus, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var out SystemStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchAccessPoints lists managed access points.
func (c *Client) FetchAccessPoints(ctx context.Context) ([]AccessPoint, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var out AccessPointList
	if err := c.do(ctx, http.MethodGet, "/api/access-points", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// FetchStations lists associated client stations.
func (c *Client) FetchStations(ctx context.Context) ([]Station, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var out StationList
	if err := c.do(ctx, http.MethodGet, "/api/stations", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// FetchRoamingEvents returns roaming events newer than since. A zero since
// asks for the controller's default window.
func (c *Client) FetchRoamingEvents(ctx context.Context, since time.Time) ([]RoamingEvent, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	if !since.IsZero() {
		values.Set("since", strconv.FormatInt(since.Unix(), 10))
	}
	rel := &url.URL{Path: "/api/roaming/events", RawQuery: values.Encode()}
	var out RoamingEventList
	if err := c.doURL(ctx, http.MethodGet, rel, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// FetchDashboard returns the overview tiles.
func (c *Client) FetchDashboard(ctx context.Context) ([]payload.Tile, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var out Dashboard
	if err := c.do(ctx, http.MethodGet, "/api/dashboard", &out); err != nil {
		return nil, err
	}
	return out.Tiles, nil
}

// Send issues a mutation and reports the response status. Transport
// failures return an error; HTTP error statuses do not.
func (c *Client) Send(ctx context.Context, method, target string, body json.RawMessage) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("client is nil")
	}
	rel, err := url.Parse(target)
	if err != nil {
		return 0, fmt.Errorf("parse target %q: %w", target, err)
	}
	req, err := c.newRequest(ctx, method, rel, body)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// RebootPath is the mutation endpoint that restarts an access point.
func RebootPath(apID string) string {
	return "/api/access-points/" + url.PathEscape(apID) + "/reboot"
}

// DisconnectPath is the mutation endpoint that kicks a station.
func DisconnectPath(mac string) string {
	return "/api/stations/" + url.PathEscape(strings.ToLower(mac)) + "/disconnect"
}

func (c *Client) do(ctx context.Context, method, path string, dest any) error {
	rel := &url.URL{Path: path}
	return c.doURL(ctx, method, rel, nil, dest)
}

func (c *Client) newRequest(ctx context.Context, method string, rel *url.URL, body []byte) (*http.Request, error) {
	reqURL := c.baseURL.ResolveReference(rel)
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, body []byte, dest any) error {
	req, err := c.newRequest(ctx, method, rel, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return &StatusError{Path: rel.Path, Code: resp.StatusCode}
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError reports an HTTP error status from the controller.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api %s returned status %d", e.Path, e.Code)
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultControllerURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse controller_url %q: %w", raw, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
