// Package client is the single gateway to the VS Recorder REST API. It adds
// the bearer token, unwraps payloads, routes 401s to one global handler and
// normalizes every failure into *Error.
package client

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

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 10 << 20

// TokenSource yields the current bearer token, or "" when signed out.
type TokenSource interface {
	Token() string
}

// UnauthorizedFunc is invoked once for every 401 outside the credential
// endpoints.
type UnauthorizedFunc func(ctx context.Context, path string)

// Observer receives one call per request, for metrics.
type Observer interface {
	ObserveRequest(op string, status int, elapsed time.Duration)
}

// Client talks to the REST API.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	onUnauthorized UnauthorizedFunc
	observer       Observer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUnauthorizedHandler installs the global 401 handler.
func WithUnauthorizedHandler(f UnauthorizedFunc) Option {
	return func(c *Client) { c.onUnauthorized = f }
}

// WithObserver installs a request observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a client for baseURL. tokens may be nil for anonymous use.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// SetTokenSource wires the token source after construction. The session
// store needs the client and the client needs the store's token, so one of
// the two is set late.
func (c *Client) SetTokenSource(tokens TokenSource) { c.tokens = tokens }

// SetUnauthorizedHandler installs the global 401 handler after construction.
func (c *Client) SetUnauthorizedHandler(f UnauthorizedFunc) { c.onUnauthorized = f }

// credentialPaths answer 401 for wrong credentials, which is an ordinary
// form error rather than an expired session.
var credentialPaths = map[string]bool{
	"/auth/login":           true,
	"/auth/register":        true,
	"/auth/forgot-password": true,
}

// Do sends a JSON request and decodes the payload into out (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, path, method, path, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	start := time.Now()
	status, err := c.roundTrip(ctx, method, path, body, out)
	if c.observer != nil {
		c.observer.ObserveRequest(op, status, time.Since(start))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("method", method).Str("path", path).Msg("API request failed")
		return 0, &Error{Message: NetworkErrorMessage, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, &Error{Status: resp.StatusCode, Message: NetworkErrorMessage, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := normalize(resp.StatusCode, raw)
		if resp.StatusCode == http.StatusUnauthorized && !credentialPaths[path] && c.onUnauthorized != nil {
			log.Info().Str("path", path).Msg("API rejected the session token")
			c.onUnauthorized(ctx, path)
		}
		return resp.StatusCode, apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(unwrap(raw), out); err != nil {
		return resp.StatusCode, &Error{
			Status:  resp.StatusCode,
			Message: "Unexpected response from server.",
			Err:     fmt.Errorf("decode %s %s: %w", method, path, err),
		}
	}
	return resp.StatusCode, nil
}

// envelopeKeys are the only keys a {"data": ...} envelope may carry.
var envelopeKeys = map[string]bool{"data": true, "message": true, "success": true, "status": true}

// unwrap returns the payload of a {"data": ...} envelope, or raw itself.
func unwrap(raw []byte) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	data, ok := obj["data"]
	if !ok {
		return raw
	}
	for k := range obj {
		if !envelopeKeys[k] {
			return raw
		}
	}
	return data
}

// IsNetworkError reports whether err never reached the API.
func IsNetworkError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == 0 && apiErr.Err != nil
}
