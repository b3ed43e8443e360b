// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response from the storefront API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// IsPermanent reports whether an error must not be retried: validation
// and other 4xx failures, except timeouts and throttling.
func IsPermanent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// tablePaths maps sync table names to their REST collection paths.
var tablePaths = map[string]string{
	"car_brands":     "car-brands",
	"car_models":     "car-models",
	"product_brands": "product-brands",
	"categories":     "categories",
	"products":       "products",
	"favorites":      "favorites",
}

// Client talks to the storefront API with bearer-token auth. Token is
// called per request so expired sessions can be refreshed by the app.
type Client struct {
	BaseURL string
	Token   func(context.Context) (string, error)
	HTTP    *http.Client
}

// NewClient builds an API client with a bounded default timeout.
func NewClient(baseURL string, token func(context.Context) (string, error)) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Pull fetches every change after the watermark for the given tables.
func (c *Client) Pull(ctx context.Context, lastPulledAt int64, tables []string) (*PullResponse, error) {
	body, err := json.Marshal(&PullRequest{LastPulledAt: lastPulledAt, Tables: tables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pull request: %w", err)
	}
	var resp PullResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync/pull", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Create posts a new record and returns the server-assigned id. The
// payload's temporary id is stripped; the server mints the real one.
func (c *Client) Create(ctx context.Context, table string, payload json.RawMessage) (*CreateResponse, error) {
	path, err := collectionPath(table)
	if err != nil {
		return nil, err
	}
	body, err := stripField(payload, "id")
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, body, &raw); err != nil {
		return nil, err
	}
	var created CreateResponse
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to decode create response: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("create response for %s is missing id", table)
	}
	created.Raw = raw
	return &created, nil
}

// Update replaces a record on the server.
func (c *Client) Update(ctx context.Context, table, id string, payload json.RawMessage) error {
	path, err := collectionPath(table)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, path+"/"+id, payload, nil)
}

// Delete removes a record on the server.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	path, err := collectionPath(table)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path+"/"+id, nil, nil)
}

func collectionPath(table string) (string, error) {
	p, ok := tablePaths[table]
	if !ok {
		return "", fmt.Errorf("table %s has no API path", table)
	}
	return "/api/" + p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get session token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func stripField(payload json.RawMessage, field string) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	delete(fields, field)
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to re-serialize payload: %w", err)
	}
	return out, nil
}
