// Package client is the Go SDK for the wayfinder daemon API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rmax-ai/wayfinder/pkg/api"
	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/navigator"
	"github.com/rmax-ai/wayfinder/pkg/store"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

const DefaultEndpoint = "http://127.0.0.1:8095"

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	Status int
	Code   string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("wayfinder: %d %s: %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("wayfinder: %d %s", e.Status, e.Code)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client is the wayfinder SDK client.
type Client struct {
	endpoint   string
	http       *http.Client
	backoff    BackoffStrategy
	maxRetries int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 10s-timeout client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetries sets how often idempotent requests are retried on transport
// errors and 502/503/504 replies.
func WithRetries(n int, b BackoffStrategy) Option {
	return func(c *Client) {
		c.maxRetries = n
		if b != nil {
			c.backoff = b
		}
	}
}

// NewClient creates a new wayfinder client.
// endpoint defaults to DefaultEndpoint if empty.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff:    DefaultBackoff(),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &status, true); err != nil {
		return err
	}
	if status.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", status.Status)
	}
	return nil
}

// GenerateURL asks the daemon for the canonical URL of s.
func (c *Client) GenerateURL(ctx context.Context, s workflow.State) (string, error) {
	var resp api.GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/url/generate", api.GenerateRequest{State: s}, &resp, true); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// ParseURL decodes rawURL on the daemon.
func (c *Client) ParseURL(ctx context.Context, rawURL string) (api.ParseResponse, error) {
	var resp api.ParseResponse
	err := c.do(ctx, http.MethodPost, "/v1/url/parse", api.ParseRequest{URL: rawURL}, &resp, true)
	return resp, err
}

// Relationships lists the types related to t in the graph of uc.
func (c *Client) Relationships(ctx context.Context, uc entity.UseCase, t entity.Type, rel graph.Relationship) ([]entity.Type, error) {
	q := url.Values{}
	q.Set("use_case", string(uc))
	q.Set("type", string(t))
	if rel != "" {
		q.Set("relationship", string(rel))
	}
	var resp api.RelationshipsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/relationships?"+q.Encode(), nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Types, nil
}

// Graph fetches the relationship graph of uc.
func (c *Client) Graph(ctx context.Context, uc entity.UseCase) (*graph.Snapshot, error) {
	var snap graph.Snapshot
	if err := c.do(ctx, http.MethodGet, "/v1/graph?use_case="+url.QueryEscape(string(uc)), nil, &snap, true); err != nil {
		return nil, err
	}
	return &snap, nil
}

// OpenSession starts a session at rawURL.
func (c *Client) OpenSession(ctx context.Context, rawURL string) (store.Session, error) {
	var sess store.Session
	err := c.do(ctx, http.MethodPost, "/v1/sessions", api.OpenSessionRequest{URL: rawURL}, &sess, false)
	return sess, err
}

// CreateSession starts a session at s.
func (c *Client) CreateSession(ctx context.Context, s workflow.State) (store.Session, error) {
	var sess store.Session
	err := c.do(ctx, http.MethodPost, "/v1/sessions", api.OpenSessionRequest{State: &s}, &sess, false)
	return sess, err
}

// Session fetches a session.
func (c *Client) Session(ctx context.Context, id string) (store.Session, error) {
	var sess store.Session
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil, &sess, true)
	return sess, err
}

// Sessions lists the most recently updated sessions.
func (c *Client) Sessions(ctx context.Context, limit int) ([]store.Session, error) {
	path := "/v1/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []store.Session
	err := c.do(ctx, http.MethodGet, path, nil, &out, true)
	return out, err
}

// Apply runs one action on a session. It is never retried.
func (c *Client) Apply(ctx context.Context, id string, a navigator.Action) (store.Session, error) {
	var sess store.Session
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/actions", a, &sess, false)
	return sess, err
}

// History fetches the newest events of a session.
func (c *Client) History(ctx context.Context, id string, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	path := fmt.Sprintf("/v1/sessions/%s/history?limit=%d", url.PathEscape(id), limit)
	var events []store.Event
	err := c.do(ctx, http.MethodGet, path, nil, &events, true)
	return events, err
}

// ReportParams filters a report. Zero values do not filter.
type ReportParams struct {
	From      time.Time
	To        time.Time
	SessionID string
	UseCase   entity.UseCase
	Limit     int
}

// Report downloads a CSV report of the given type.
func (c *Client) Report(ctx context.Context, reportType string, p ReportParams) ([]byte, error) {
	q := url.Values{}
	q.Set("type", reportType)
	if !p.From.IsZero() {
		q.Set("from", p.From.UTC().Format(time.RFC3339))
	}
	if !p.To.IsZero() {
		q.Set("to", p.To.UTC().Format(time.RFC3339))
	}
	if p.SessionID != "" {
		q.Set("session_id", p.SessionID)
	}
	if p.UseCase != "" {
		q.Set("use_case", string(p.UseCase))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, "/v1/reports?"+q.Encode(), nil, &buf, true)
	return buf.Bytes(), err
}

// CloseSession deletes a session.
func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, nil, true)
}

// do sends one request and decodes a 2xx body into out. Idempotent requests
// are retried with backoff.
func (c *Client) do(ctx context.Context, method, path string, in, out any, idempotent bool) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	attempts := 1
	if idempotent {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff.Next(attempt-1)); err != nil {
				return err
			}
		}
		retry, err := c.once(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) (bool, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rd)
	if err != nil {
		return false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return true, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		var er api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			apiErr.Code, apiErr.Detail = er.Error, er.Detail
		}
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true, apiErr
		}
		return false, apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	if w, ok := out.(io.Writer); ok {
		if _, err := io.Copy(w, resp.Body); err != nil {
			return false, fmt.Errorf("failed to read response: %w", err)
		}
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}
