package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "http://localhost:3001"
	defaultTimeout = 30 * time.Second
)

// Client talks to the anti-fingerprinting browser profile provider. The
// provider owns profile storage and browser processes; this client only
// drives create/start/stop and exposes the remote-control endpoint.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// ClientOption is a function that configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom provider base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithAPIToken sets the provider API token
func WithAPIToken(token string) ClientOption {
	return func(c *Client) {
		c.apiToken = token
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a new profile provider client
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an error returned by the profile provider
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("profile provider error: %s (code: %s, http: %d)", e.Message, e.Code, e.StatusCode)
}

// CreateProfileInput represents input for creating a fingerprint profile
type CreateProfileInput struct {
	Name     string `json:"name"`
	Platform string `json:"platform,omitempty"`
	Proxy    string `json:"proxy,omitempty"`
}

// CreateProfileOutput represents output from creating a profile
type CreateProfileOutput struct {
	ProfileID string `json:"profile_id"`
}

// CreateProfile provisions a new fingerprint-randomized browser profile
func (c *Client) CreateProfile(ctx context.Context, in CreateProfileInput) (*CreateProfileOutput, error) {
	var out CreateProfileOutput
	if err := c.do(ctx, http.MethodPost, "/v1/profiles", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSessionOutput represents a started browser session
type StartSessionOutput struct {
	SessionID string `json:"session_id"`
	// Endpoint is the remote-control (DevTools) endpoint of the browser.
	Endpoint string `json:"ws_endpoint"`
}

// StartSession starts a browser bound to the profile and returns its
// remote-control endpoint.
func (c *Client) StartSession(ctx context.Context, profileRef string) (*StartSessionOutput, error) {
	var out StartSessionOutput
	path := fmt.Sprintf("/v1/profiles/%s/start", profileRef)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopSession stops a running browser session. Idempotent: stopping an
// already-stopped session succeeds.
func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/v1/sessions/%s/stop", sessionID)
	err := c.do(ctx, http.MethodPost, path, nil, nil)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// HealthCheck probes the provider's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}

// do executes an HTTP request with a JSON body and decodes the response
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = string(data)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
