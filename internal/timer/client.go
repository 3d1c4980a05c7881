package timer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ahmedmhosni/roastify/internal/domain"
)

// StartRequest is the body sent to POST /time-tracking/start.
type StartRequest struct {
	Description string `json:"description"`
	ProjectID   *int64 `json:"project_id,omitempty"`
	TaskID      *int64 `json:"task_id,omitempty"`
}

// API is the time-tracking surface the widget talks to.
type API interface {
	List(ctx context.Context) ([]domain.TimeEntry, error)
	Start(ctx context.Context, req StartRequest) (domain.TimeEntry, error)
	Stop(ctx context.Context, id int64) (domain.TimeEntry, error)
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("time tracking api: %d %s", e.StatusCode, e.Message)
}

// Client calls the time-tracking REST endpoints with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption represents a functional option for configuring the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL, token string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) List(ctx context.Context) ([]domain.TimeEntry, error) {
	var entries []domain.TimeEntry
	if err := c.do(ctx, http.MethodGet, "/time-tracking", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) Start(ctx context.Context, req StartRequest) (domain.TimeEntry, error) {
	var entry domain.TimeEntry
	err := c.do(ctx, http.MethodPost, "/time-tracking/start", req, &entry)
	return entry, err
}

func (c *Client) Stop(ctx context.Context, id int64) (domain.TimeEntry, error) {
	var entry domain.TimeEntry
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/time-tracking/stop/%d", id), nil, &entry)
	return entry, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
