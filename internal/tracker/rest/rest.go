// Package rest is the JSON-over-HTTP transport shared by the tracker
// clients.
//
// A Client resolves paths against a base URL, injects authentication,
// encodes request bodies, and retries transient failures with bounded
// exponential backoff and jitter. Non-2xx responses surface as *APIError.
//
// POST requests are only retried on 429 unless marked Idempotent, since
// a 5xx or a dropped connection may hide a create that went through.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 16 << 20

// ContentTypeJSON is the default request content type.
const ContentTypeJSON = "application/json"

// RetryConfig controls retry behavior for transient failures.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// DefaultRetry is used when Config.Retry is the zero value.
var DefaultRetry = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  250 * time.Millisecond,
	MaxDelay:   5 * time.Second,
}

// Authorizer decorates a request with credentials.
type Authorizer func(*http.Request)

// BearerToken authorizes with "Authorization: Bearer <token>".
func BearerToken(token string) Authorizer {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

// BasicAuth authorizes with HTTP basic credentials.
func BasicAuth(user, password string) Authorizer {
	return func(r *http.Request) {
		r.SetBasicAuth(user, password)
	}
}

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the absolute http(s) URL that request paths are
	// appended to.
	BaseURL string

	// Auth decorates every request. Optional.
	Auth Authorizer

	// HTTPClient is used for all requests. Defaults to a client with a
	// 30 second timeout.
	HTTPClient *http.Client

	// Retry controls backoff. The zero value means DefaultRetry.
	Retry RetryConfig

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// UserAgent is sent with every request when set.
	UserAgent string
}

// Client is a JSON HTTP client with retries.
type Client struct {
	baseURL    string
	auth       Authorizer
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
	userAgent  string

	// sleep waits between attempts. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client. Returns an error if BaseURL is not an absolute
// http or https URL.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("rest: base URL must be an absolute http(s) URL (got %q)", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	retry := cfg.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetry
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    base,
		auth:       cfg.Auth,
		httpClient: httpClient,
		retry:      retry,
		logger:     logger,
		userAgent:  cfg.UserAgent,
		sleep:      sleepContext,
	}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one API call.
type Request struct {
	Method string

	// Path is appended to the base URL. It must already be escaped.
	Path string

	// Query is encoded onto the URL.
	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body any

	// ContentType overrides ContentTypeJSON for the body.
	ContentType string

	// Idempotent allows retrying a POST on 5xx and transport errors.
	Idempotent bool
}

// Response is a successful (2xx) response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
	retryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// Temporary reports whether the status is worth retrying.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Do executes req, retrying transient failures.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var payload []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("rest: encoding request body: %w", err)
		}
		payload = encoded
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		resp, err := c.once(ctx, req, target, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == c.retry.MaxRetries || !c.retryable(req, err) {
			break
		}

		delay := c.backoff(attempt, err)
		c.logger.Info("transient failure, backing off",
			"method", req.Method,
			"path", req.Path,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// DoJSON executes req and decodes a JSON response body into out. An
// empty body leaves out untouched.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if out != nil && len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, fmt.Errorf("rest: decoding %s %s response: %w", req.Method, req.Path, err)
		}
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, req Request, target string, payload []byte) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("rest: creating request: %w", err)
	}
	httpReq.Header.Set("Accept", ContentTypeJSON)
	if payload != nil {
		ct := req.ContentType
		if ct == "" {
			ct = ContentTypeJSON
		}
		httpReq.Header.Set("Content-Type", ct)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if c.auth != nil {
		c.auth(httpReq)
	}

	c.logger.Debug("request", "method", req.Method, "path", req.Path)
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("rest: reading response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Method:     req.Method,
			URL:        redact(target),
			Body:       string(respBody),
			retryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After")),
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}, nil
}

// retryable reports whether err may succeed on another attempt.
func (c *Client) retryable(req Request, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	safe := req.Method != http.MethodPost || req.Idempotent

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return safe && apiErr.Temporary()
	}

	// Transport failure.
	return safe
}

// backoff computes the delay before retry attempt+1: BaseDelay * 2^attempt
// plus jitter in [0, BaseDelay), capped at MaxDelay. A Retry-After
// header takes precedence when it is within MaxDelay.
func (c *Client) backoff(attempt int, err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.retryAfter > 0 && apiErr.retryAfter <= c.retry.MaxDelay {
		return apiErr.retryAfter
	}

	delay := c.retry.BaseDelay << uint(attempt)
	if delay > c.retry.MaxDelay || delay <= 0 {
		delay = c.retry.MaxDelay
	}
	if c.retry.BaseDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(c.retry.BaseDelay)))
	}
	return delay
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// redact drops the query string, which may carry filters but never
// needs to appear in error messages.
func redact(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
