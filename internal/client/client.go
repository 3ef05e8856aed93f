// Package client talks to the secret-sharing HTTP API. Failures are mapped
// back onto the secrets package sentinels so callers can use errors.Is.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"secure.link/internal/api"
	"secure.link/internal/secrets"
)

// APIError is returned for responses that do not map to a known sentinel.
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

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Create(ctx context.Context, content, password string, ttl *int) (*api.CreateResponse, error) {
	req := api.CreateRequest{Content: content, Password: password, TTL: ttl}

	var out api.CreateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context, id string) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/status/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Check(ctx context.Context, id string) (*api.CheckResponse, error) {
	var out api.CheckResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/check/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// View consumes the secret. An empty password sends no body.
func (c *Client) View(ctx context.Context, id, password string) (string, error) {
	var body any
	if password != "" {
		body = api.ViewRequest{Password: password}
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/view/"+url.PathEscape(id), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.decodeError(resp)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return string(content), nil
}

func (c *Client) Burn(ctx context.Context, id, adminToken string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/burn/"+url.PathEscape(id), api.BurnRequest{AdminToken: adminToken}, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) decodeError(resp *http.Response) error {
	var e api.ErrorResponse
	// Error bodies are best effort; the status code carries the meaning.
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", secrets.ErrInvalidInput, e.Error)
	case http.StatusNotFound:
		return secrets.ErrNotFound
	case http.StatusUnauthorized:
		if e.RemainingAttempts != nil {
			return &secrets.WrongPasswordError{Remaining: *e.RemainingAttempts}
		}
		return secrets.ErrUnauthorized
	case http.StatusGone:
		return secrets.ErrExhausted
	case http.StatusConflict:
		return secrets.ErrConflict
	}
	return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
}
