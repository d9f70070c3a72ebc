// Package httpclient is the shared foundation for external API clients.
//
// Every concrete client (PubMed, Semantic Scholar, Europe PMC, ...) is built
// on a Client, which enforces a per-client minimum inter-request interval,
// retries transient failures with capped backoff, and decodes JSON bodies.
// A Client is constructed once per process and shared across turns; the
// rate-limit state is guarded internally.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Client wraps http.Client with politeness and retry behavior.
type Client struct {
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseDelay   time.Duration
	userAgent   string
	headers     map[string]string
	maxBodySize int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.client.Timeout = timeout }
}

// WithMinInterval sets the minimum time between requests issued by this
// client. Zero disables rate limiting.
func WithMinInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithMaxRetries sets the retry cap for transient failures.
func WithMaxRetries(max int) Option {
	return func(c *Client) { c.maxRetries = max }
}

// WithBaseDelay sets the base backoff delay between retries.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) { c.baseDelay = delay }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHeader adds a default header (API keys and the like).
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// New creates a Client with sane defaults: 30s timeout, 3 retries,
// 1s base delay, no rate limit.
func New(opts ...Option) *Client {
	c := &Client{
		client:      &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseDelay:   time.Second,
		maxBodySize: 32 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetMinInterval adjusts the rate limit after construction. Used when an
// API key changes the allowed request rate (e.g. NCBI 3 -> 10 req/s).
func (c *Client) SetMinInterval(interval time.Duration) {
	if interval <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Every(interval), 1)
}

// wait blocks until the rate limiter admits the next request or the
// context is done.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// retryable reports whether a status code warrants another attempt.
// 429 and 5xx are transient; other 4xx are permanent.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Get fetches a URL and returns the raw body.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := c.attempt(ctx, rawURL, headers)
		if err == nil && status < 300 {
			return body, nil
		}

		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		lastErr = &StatusError{URL: rawURL, StatusCode: status, Body: truncate(string(body), 512)}
		if !retryable(status) {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.maxRetries, lastErr)
}

// GetJSON fetches a URL and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	body, err := c.Get(ctx, rawURL, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}
	return nil
}

// GetPaginated fetches pages by calling buildURL with increasing offsets
// until fetchPage reports done or pageCap pages were fetched.
func (c *Client) GetPaginated(ctx context.Context, pageCap int, buildURL func(offset int) string, fetchPage func(body []byte) (count int, done bool, err error)) error {
	offset := 0
	for page := 0; page < pageCap; page++ {
		body, err := c.Get(ctx, buildURL(offset), nil)
		if err != nil {
			return err
		}
		count, done, err := fetchPage(body)
		if err != nil {
			return err
		}
		if done || count == 0 {
			return nil
		}
		offset += count
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, rawURL string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid request: %w", err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// BuildURL joins a base URL with query parameters.
func BuildURL(base string, params url.Values) string {
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
