// Package transport issues authenticated JSON requests against the Nest
// consumer API host. It carries no retry or backoff logic; callers decide
// what a failed request means.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// UserAgent is sent on every request. The consumer API rejects clients
// that do not look like a browser.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_14_5) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/75.0.3770.100 Safari/537.36"

const defaultTimeout = 15 * time.Second

// CredentialSource supplies the Authorization header value for a request.
// The session store implements this so a refreshed JWT is picked up
// without re-wiring the transport.
type CredentialSource interface {
	Authorization() string
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: unexpected status %d", e.Code)
}

// IsAuthStatus reports whether the error is an HTTP 401 or 403 response.
func IsAuthStatus(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
}

// Client talks JSON to a single API base URL.
type Client struct {
	base  string
	creds CredentialSource
	http  *http.Client
	log   *slog.Logger
}

// New creates a transport client for the given base URL.
func New(base string, creds CredentialSource, log *slog.Logger) *Client {
	return &Client{
		base:  base,
		creds: creds,
		http:  &http.Client{Timeout: defaultTimeout},
		log:   log,
	}
}

// Base returns the configured API base URL.
func (c *Client) Base() string {
	return c.base
}

// SetHTTPClient replaces the underlying HTTP client. Used in tests.
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

// GetJSON performs a GET against base+path and decodes the JSON response
// into out. Pass nil to discard the body.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON performs a POST with a JSON body against base+path and decodes
// the JSON response into out. Pass nil to discard the body.
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, data, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("transport: %s %s: %w", method, path, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	if c.creds != nil {
		req.Header.Set("Authorization", c.creds.Authorization())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("transport: %s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Debug("request failed", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("transport: %s %s: %w", method, path, &StatusError{Code: resp.StatusCode, Body: string(raw)})
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("transport: %s %s: decode: %w", method, path, err)
	}
	return nil
}
