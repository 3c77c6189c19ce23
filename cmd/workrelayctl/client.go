// Package main contains the CLI entrypoint and command definitions for
// workrelayctl, a small client for the workrelayd REST API.
package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Unisami/workrelay/internal/logging"
	"github.com/go-resty/resty/v2"
)

// apiClient wraps resty for talking to a workrelayd instance.
type apiClient struct {
	client *resty.Client
}

// errorEnvelope matches the daemon's error responses.
type errorEnvelope struct {
	Error string `json:"error"`
}

func newAPIClient(apiAddr string, timeout time.Duration) *apiClient {
	client := resty.New().
		SetBaseURL("http://"+apiAddr).
		SetTimeout(timeout).
		SetHeader("User-Agent", "workrelayctl/"+Version).
		SetHeader("Content-Type", "application/json").
		SetLogger(logging.RestyLogger{})

	return &apiClient{client: client}
}

// apiError turns a non-2xx daemon response into a readable error.
func apiError(resp *resty.Response) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(resp.Body(), &envelope); err == nil && envelope.Error != "" {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode(), envelope.Error)
	}
	return fmt.Errorf("daemon returned %d: %s", resp.StatusCode(), resp.String())
}

// Store creates one record synchronously and returns its ID.
func (c *apiClient) Store(properties map[string]any) (string, error) {
	var result struct {
		ID string `json:"id"`
	}

	resp, err := c.client.R().
		SetBody(map[string]any{"properties": properties}).
		SetResult(&result).
		Post("/api/v1/records/store")
	if err != nil {
		return "", fmt.Errorf("failed to connect to daemon: %w", err)
	}
	if resp.IsError() {
		return "", apiError(resp)
	}
	return result.ID, nil
}

// Update enqueues a fire-and-forget update for one record.
func (c *apiClient) Update(id string, properties map[string]any) error {
	resp, err := c.client.R().
		SetBody(map[string]any{"properties": properties}).
		Put(fmt.Sprintf("/api/v1/records/%s", id))
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// Query runs a read-through query and returns the raw response body.
func (c *apiClient) Query(key string, filter map[string]any, ttlSeconds int) (json.RawMessage, error) {
	body := map[string]any{"key": key}
	if filter != nil {
		body["filter"] = filter
	}
	if ttlSeconds > 0 {
		body["ttl_seconds"] = ttlSeconds
	}

	resp, err := c.client.R().
		SetBody(body).
		Post("/api/v1/query")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return json.RawMessage(resp.Body()), nil
}

// Stats fetches the relay's counters as a raw JSON document.
func (c *apiClient) Stats() (json.RawMessage, error) {
	resp, err := c.client.R().Get("/api/v1/stats")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return json.RawMessage(resp.Body()), nil
}

// Health checks the daemon's health endpoint.
func (c *apiClient) Health() (json.RawMessage, error) {
	resp, err := c.client.R().Get("/api/v1/health")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return json.RawMessage(resp.Body()), nil
}
