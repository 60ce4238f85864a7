// Package client is a small Go client for the FocusGuard HTTP API.
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
	"strings"
	"time"

	"github.com/focusguard/backend/internal/blocking"
	"github.com/focusguard/backend/internal/models"
	"github.com/focusguard/backend/internal/services"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultBackoff     = 2 * time.Second
	DefaultMaxAttempts = 3
	maxRetryAfter      = 30 * time.Second
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for k, v := range e.Fields {
			parts = append(parts, k+": "+v)
		}
		return fmt.Sprintf("%d %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL     string
	token       string
	http        *http.Client
	backoff     time.Duration
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithBackoff(d time.Duration) Option { return func(c *Client) { c.backoff = d } }

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		http:        &http.Client{Timeout: DefaultTimeout},
		backoff:     DefaultBackoff,
		maxAttempts: DefaultMaxAttempts,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

// do sends the request, retrying 429 responses. out receives the envelope's
// data field.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxAttempts {
			wait := retryAfter(resp.Header.Get("Retry-After"), c.backoff)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		err = decode(resp, out)
		resp.Body.Close()
		return err
	}
}

func retryAfter(header string, fallback time.Duration) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		d := time.Duration(secs) * time.Second
		if d > maxRetryAfter {
			d = maxRetryAfter
		}
		return d
	}
	return fallback
}

func decode(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Fields: env.Errors}
	}

	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) Check(ctx context.Context, rawURL string) (*services.CheckResult, error) {
	var res services.CheckResult
	err := c.do(ctx, http.MethodGet, "/api/check?url="+url.QueryEscape(rawURL), nil, &res)
	return &res, err
}

func (c *Client) State(ctx context.Context) (*blocking.Snapshot, error) {
	var snap blocking.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/state", nil, &snap)
	return &snap, err
}

func (c *Client) ListSites(ctx context.Context) ([]models.BlockedSite, error) {
	var sites []models.BlockedSite
	err := c.do(ctx, http.MethodGet, "/api/sites", nil, &sites)
	return sites, err
}

func (c *Client) AddSite(ctx context.Context, domain string, always bool) (*models.BlockedSite, error) {
	var site models.BlockedSite
	err := c.do(ctx, http.MethodPost, "/api/sites", models.AddSiteRequest{Domain: domain, Always: always}, &site)
	return &site, err
}

func (c *Client) DeleteSite(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sites/"+url.PathEscape(id), nil, nil)
}

func (c *Client) StartSession(ctx context.Context, minutes int, label string) (*models.FocusSession, error) {
	var sess models.FocusSession
	err := c.do(ctx, http.MethodPost, "/api/sessions", models.StartSessionRequest{DurationMinutes: minutes, Label: label}, &sess)
	return &sess, err
}

func (c *Client) ActiveSession(ctx context.Context) (*models.FocusSession, error) {
	var sess models.FocusSession
	err := c.do(ctx, http.MethodGet, "/api/sessions/active", nil, &sess)
	return &sess, err
}

func (c *Client) EndSession(ctx context.Context, id string) (*models.FocusSession, error) {
	var sess models.FocusSession
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/end", nil, &sess)
	return &sess, err
}

func (c *Client) ReportUsage(ctx context.Context, domain string, seconds int) (*services.ReportResult, error) {
	var res services.ReportResult
	err := c.do(ctx, http.MethodPost, "/api/usage", models.UsageReport{Domain: domain, Seconds: seconds}, &res)
	return &res, err
}

func (c *Client) UsageSummary(ctx context.Context, day string) (*models.UsageSummary, error) {
	path := "/api/usage"
	if day != "" {
		path += "?day=" + url.QueryEscape(day)
	}
	var sum models.UsageSummary
	err := c.do(ctx, http.MethodGet, path, nil, &sum)
	return &sum, err
}
