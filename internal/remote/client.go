// Package remote provides the HTTP client layer for the workspace-database API
// that the relay batches operations against.
//
// This package implements all communication with the upstream workspace API
// including request/response serialization, cursor-based pagination, and
// structured error parsing. The API exposes individual record operations only
// (no multi-record batch primitive), which is why the batching layer fans a
// flush out as parallel single-record calls.
//
// CLIENT ARCHITECTURE:
// The Client wraps the Resty HTTP client with workspace-specific behavior:
//   - Request/Response Handling: JSON serialization and typed error parsing
//   - Authentication: Bearer token pass-through supplied by the caller
//   - Pagination: QueryRecords follows has_more/next_cursor until exhausted
//   - Logging: Resty's internal logs and per-request traces route through the
//     structured logging system
//
// The client performs no retries. The upstream is rate limited and not every
// operation is idempotent, so retry and backoff decisions stay with callers.
package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Unisami/workrelay/internal/logging"
	"github.com/go-resty/resty/v2"
)

// Record represents one row of the remote workspace database. Properties are
// opaque to the relay: their schema belongs to the mapping layer above.
type Record struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
}

// queryPage is one page of a paginated query response.
type queryPage struct {
	Results    []Record `json:"results"`
	HasMore    bool     `json:"has_more"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// errorBody is the API's error envelope. Message is best-effort; the raw body
// is used when the envelope does not parse.
type errorBody struct {
	Message string `json:"message"`
}

// Client wraps the Resty HTTP client with workspace-API-specific functionality
// for record creation, update, and paginated queries. Safe for concurrent use
// by all pool workers.
type Client struct {
	client  *resty.Client
	baseURL string
}

// NewClient creates a workspace API client with timeout configuration,
// structured logging integration, and bearer authentication. The token is
// supplied by the caller; the relay does not manage credentials itself.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	client := resty.New()

	// Route Resty's internal logging through our structured logging system
	client.SetLogger(logging.RestyLogger{})

	client.
		SetTimeout(timeout).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "workrelay")

	if token != "" {
		client.SetAuthToken(token)
	}

	// Custom request logging using structured logging
	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logging.Debug("Making workspace API request: %s %s", req.Method, req.URL)
		return nil
	})

	// Custom response logging using structured logging
	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logging.Debug("Workspace API response: %d %s (took %v)",
			resp.StatusCode(), resp.Status(), resp.Time())
		return nil
	})

	return &Client{
		client:  client,
		baseURL: baseURL,
	}
}

// CreateRecord creates a new record in the workspace database and returns it
// with the server-assigned ID. Properties pass through unmodified.
func (c *Client) CreateRecord(properties map[string]any) (*Record, error) {
	var record Record

	resp, err := c.client.R().
		SetBody(map[string]any{"properties": properties}).
		SetResult(&record).
		Post("/v1/records")

	if err != nil {
		return nil, fmt.Errorf("failed to connect to workspace API at %s: %w", c.baseURL, err)
	}

	if resp.IsError() {
		return nil, apiError(resp)
	}

	return &record, nil
}

// UpdateRecord replaces the given properties on an existing record and returns
// the updated record.
func (c *Client) UpdateRecord(id string, properties map[string]any) (*Record, error) {
	var record Record

	resp, err := c.client.R().
		SetBody(map[string]any{"properties": properties}).
		SetResult(&record).
		Patch(fmt.Sprintf("/v1/records/%s", id))

	if err != nil {
		return nil, fmt.Errorf("failed to connect to workspace API at %s: %w", c.baseURL, err)
	}

	if resp.IsError() {
		return nil, apiError(resp)
	}

	return &record, nil
}

// QueryRecords runs a filtered query against the workspace database and
// returns all matching records, following cursor pagination until the server
// reports no more pages. The filter is opaque to the relay.
func (c *Client) QueryRecords(filter map[string]any) ([]Record, error) {
	var records []Record
	cursor := ""

	for {
		body := map[string]any{}
		if filter != nil {
			body["filter"] = filter
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var page queryPage
		resp, err := c.client.R().
			SetBody(body).
			SetResult(&page).
			Post("/v1/records/query")

		if err != nil {
			return nil, fmt.Errorf("failed to connect to workspace API at %s: %w", c.baseURL, err)
		}

		if resp.IsError() {
			return nil, apiError(resp)
		}

		records = append(records, page.Results...)

		if !page.HasMore || page.NextCursor == "" {
			return records, nil
		}
		cursor = page.NextCursor
	}
}

// apiError converts a non-success response into a typed APIError, pulling the
// message from the error envelope when present.
func apiError(resp *resty.Response) error {
	var body errorBody
	message := resp.String()
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		message = body.Message
	}

	return &APIError{
		StatusCode: resp.StatusCode(),
		Message:    message,
	}
}
