package publishworker

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
	defaultBaseURL = "http://localhost:3002"
	defaultTimeout = 2 * time.Minute
)

// Publish outcome errors. All three are non-idempotent or permanent and
// must never be retried by the caller.
var (
	// ErrAlreadyPublished means the worker found the idempotency token
	// already applied server-side; the post is live.
	ErrAlreadyPublished = errors.New("post already published")

	// ErrAccountBanned means the target platform rejected the account.
	ErrAccountBanned = errors.New("account banned by target platform")

	// ErrValidation means the payload was rejected before any side effect.
	ErrValidation = errors.New("publish payload rejected")
)

// Client talks to the page-automation worker that performs one
// login+publish cycle through a browser remote-control endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a function that configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom worker base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a new publish worker client
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

// PublishInput represents one publication attempt
type PublishInput struct {
	// Endpoint is the browser remote-control endpoint of the session.
	Endpoint string `json:"endpoint"`
	// MediaPath is the local path of the resolved media file.
	MediaPath string `json:"media_path"`
	Caption   string `json:"caption"`
	// IdempotencyToken is derived from the post id so a retried attempt
	// can detect "already published" server-side.
	IdempotencyToken string `json:"idempotency_token"`
}

// PublishOutput represents a successful publication
type PublishOutput struct {
	RemoteID string `json:"remote_id"`
}

type publishResponse struct {
	Success          bool   `json:"success"`
	RemoteID         string `json:"remote_id,omitempty"`
	Error            string `json:"error,omitempty"`
	Code             string `json:"code,omitempty"`
	AlreadyPublished bool   `json:"already_published,omitempty"`
	Banned           bool   `json:"banned,omitempty"`
}

// Publish performs one login+publish cycle. Returned errors classify the
// outcome: ErrAlreadyPublished, ErrAccountBanned and ErrValidation are
// permanent; anything else is transient.
func (c *Client) Publish(ctx context.Context, in PublishInput) (*PublishOutput, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/publish", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing publish request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading publish response: %w", err)
	}

	var out publishResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding publish response: %w", err)
	}

	switch {
	case out.Banned:
		return nil, fmt.Errorf("%w: %s", ErrAccountBanned, out.Error)
	case out.AlreadyPublished:
		return &PublishOutput{RemoteID: out.RemoteID}, ErrAlreadyPublished
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrValidation, out.Error)
	case !out.Success || resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("publish failed (http %d): %s", resp.StatusCode, out.Error)
	}

	return &PublishOutput{RemoteID: out.RemoteID}, nil
}

// IsPermanent reports whether a publish error must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrAlreadyPublished) ||
		errors.Is(err, ErrAccountBanned) ||
		errors.Is(err, ErrValidation)
}
