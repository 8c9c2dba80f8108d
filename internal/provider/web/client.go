// Package web is the HTTP layer shared by the schedule provider adapters:
// courtesy rate limiting, one retry on overload, conditional GET, charset
// decoding and classification of failures.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/ratelimit"
	"golang.org/x/net/html/charset"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 8 << 20
	maxRetryWait   = 30 * time.Second
)

// Response is a successful provider response. Body is UTF-8 for HTML pages.
type Response struct {
	Body        []byte
	ETag        string
	NotModified bool
}

// Client performs provider requests.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.KeyedRateLimiter
	userAgent  string
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter throttles requests per provider.
func WithRateLimiter(l *ratelimit.KeyedRateLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetryDelay sets the wait before retrying a 5xx response.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// NewClient creates a provider HTTP client.
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  "programista/1.0 (+desktop)",
		retryDelay: time.Second,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches rawURL. A non-empty etag is sent as If-None-Match and a 304
// answer is reported as NotModified.
func (c *Client) Get(ctx context.Context, provider domain.ProviderID, rawURL, etag string) (*Response, error) {
	return c.do(ctx, provider, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		return req, nil
	})
}

// PostForm posts an urlencoded form to rawURL.
func (c *Client) PostForm(ctx context.Context, provider domain.ProviderID, rawURL string, form url.Values) (*Response, error) {
	encoded := form.Encode()
	return c.do(ctx, provider, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

// do sends the request built by newReq, retrying once on 429 and 5xx.
func (c *Client) do(ctx context.Context, provider domain.ProviderID, newReq func() (*http.Request, error)) (*Response, error) {
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, string(provider)); err != nil {
				return nil, domain.NewProviderError(domain.ClassTransient, provider, "rate limit", err)
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, domain.NewProviderError(domain.ClassPermanent, provider, "build request", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept-Language", "pl,en;q=0.8")

		c.logger.Debug("provider request", "provider", provider, "method", req.Method, "url", req.URL.String(), "attempt", attempt)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("provider request failed", "provider", provider, "error", err)
			return nil, domain.NewProviderError(domain.ClassTransient, provider, "request", err)
		}

		result, retryAfter, err := c.handle(provider, resp)
		if err == nil || retryAfter < 0 || attempt > 0 {
			return result, err
		}

		c.logger.Debug("retrying provider request", "provider", provider, "wait", retryAfter)
		select {
		case <-ctx.Done():
			return nil, domain.NewProviderError(domain.ClassTransient, provider, "request", ctx.Err())
		case <-time.After(retryAfter):
		}
	}
}

// handle consumes resp. retryAfter is non-negative when the failure may be
// retried after that wait.
func (c *Client) handle(provider domain.ProviderID, resp *http.Response) (*Response, time.Duration, error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &Response{NotModified: true, ETag: resp.Header.Get("ETag")}, -1, nil

	case resp.StatusCode == http.StatusOK:
		body, err := readBody(resp)
		if err != nil {
			return nil, -1, domain.NewProviderError(domain.ClassTransient, provider, "read body", err)
		}
		return &Response{Body: body, ETag: resp.Header.Get("ETag")}, -1, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, parseRetryAfter(resp.Header.Get("Retry-After"), maxRetryWait),
			domain.NewProviderError(domain.ClassTransient, provider, "request", statusError(resp.StatusCode))

	case resp.StatusCode >= 500:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		c.logger.Warn("provider server error", "provider", provider, "status", resp.StatusCode)
		return nil, c.retryDelay,
			domain.NewProviderError(domain.ClassTransient, provider, "request", statusError(resp.StatusCode))

	default:
		// 400, 404, 410 and every other answer the provider will keep giving
		c.logger.Warn("provider rejected request", "provider", provider, "status", resp.StatusCode)
		return nil, -1, domain.NewProviderError(domain.ClassPermanent, provider, "request", statusError(resp.StatusCode))
	}
}

// readBody reads at most maxBodySize bytes, converting HTML pages to UTF-8.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = io.LimitReader(resp.Body, maxBodySize)
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "html") {
		decoded, err := charset.NewReader(r, contentType)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", contentType, err)
		}
		r = decoded
	}
	return io.ReadAll(r)
}

// StatusError is an unexpected HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

func statusError(code int) error {
	return &StatusError{Code: code}
}

// StatusCode extracts the HTTP status of a failed request, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date); returns duration capped at limit.
func parseRetryAfter(s string, limit time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Second
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		return min(time.Duration(sec)*time.Second, limit)
	}
	t, err := http.ParseTime(s)
	if err != nil {
		return time.Second
	}
	return min(max(time.Until(t), 0), limit)
}
