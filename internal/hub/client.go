// Package hub is the client of the remote search service. It owns the
// installation identity: the install_id is created on first use, registered
// once, and persisted through the identity store.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/id"
	"github.com/programista/programista/internal/normalize"
)

const (
	// DefaultAPIKeyHeader carries the API key when registration names none.
	DefaultAPIKeyHeader = "X-Programista-Key"

	installIDPrefix   = "inst"
	defaultTimeout    = 15 * time.Second
	defaultRetryAfter = time.Hour
	maxResponseSize   = 4 << 20
	maxResults        = 200
)

var (
	errUnauthorized = errors.New("api key rejected")
	errNotFound     = errors.New("not found")
)

// Client talks to the remote search service.
type Client struct {
	baseURL    string
	http       *http.Client
	identities domain.IdentityStore
	normalizer *normalize.Normalizer
	platform   Platform
	appVersion string
	userAgent  string
	retryAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time

	// mu serializes identity transitions, so concurrent first searches
	// register once.
	mu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAppVersion sets the version reported at registration.
func WithAppVersion(v string) Option {
	return func(c *Client) { c.appVersion = v }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetryAfter sets how long a failed registration blocks the next attempt.
func WithRetryAfter(d time.Duration) Option {
	return func(c *Client) { c.retryAfter = d }
}

// WithLocation sets the zone remote rows are printed in.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.normalizer = normalize.New(loc) }
}

// WithPlatform overrides the reported platform.
func WithPlatform(p Platform) Option {
	return func(c *Client) { c.platform = p }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for the service at baseURL.
func New(baseURL string, identities domain.IdentityStore, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: defaultTimeout},
		identities: identities,
		normalizer: normalize.New(nil),
		platform:   CurrentPlatform(),
		appVersion: "dev",
		userAgent:  "programista/desktop",
		retryAfter: defaultRetryAfter,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the registration state without touching the network.
func (c *Client) State() domain.RegistrationState {
	ident, ok := c.identities.GetIdentity()
	if !ok || ident.State == "" {
		return domain.StateUnregistered
	}
	return ident.State
}

// Identity returns a copy of the persisted identity, if one was created.
func (c *Client) Identity() (domain.InstallationIdentity, bool) {
	return c.identities.GetIdentity()
}

// Register makes sure the installation is registered, creating the
// install_id first if needed. A failed registration is not retried until
// the retry period has passed.
func (c *Client) Register(ctx context.Context) (domain.InstallationIdentity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.register(ctx)
}

func (c *Client) register(ctx context.Context) (domain.InstallationIdentity, error) {
	ident, err := c.loadIdentity()
	if err != nil {
		return ident, err
	}

	now := c.now()
	switch ident.State {
	case domain.StateRegistered:
		return ident, nil
	case domain.StateRegistrationFailed:
		if now.Sub(ident.FailedAt) < c.retryAfter {
			return ident, fmt.Errorf("%w: registration failed at %s: %s",
				domain.ErrRemoteSearchUnavailable, ident.FailedAt.Format(time.RFC3339), ident.LastError)
		}
		ident.State = domain.StateUnregistered
		c.save(ident)
	}

	ident.State = domain.StateRegistering
	c.save(ident)

	reg, err := c.install(ctx, ident.InstallID)
	if err != nil {
		ident.State = domain.StateRegistrationFailed
		ident.FailedAt = c.now()
		ident.LastError = err.Error()
		c.save(ident)
		c.logger.Warn("remote search registration failed", "error", err)
		return ident, fmt.Errorf("%w: %v", domain.ErrRemoteSearchUnavailable, err)
	}

	ident.State = domain.StateRegistered
	ident.APIKey = reg.APIKey
	ident.APIKeyHeader = reg.Header
	ident.RegisteredAt = c.now()
	ident.FailedAt = time.Time{}
	ident.LastError = ""
	c.save(ident)
	c.logger.Info("registered for remote search", "install_id", ident.InstallID)
	return ident, nil
}

// loadIdentity returns the persisted identity, creating it on first use. An
// identity left Registering by an interrupted run starts over.
func (c *Client) loadIdentity() (domain.InstallationIdentity, error) {
	ident, ok := c.identities.GetIdentity()
	if ok && ident.InstallID != "" {
		if ident.State == domain.StateRegistering || ident.State == "" {
			ident.State = domain.StateUnregistered
		}
		return ident, nil
	}

	installID, err := id.Generate(installIDPrefix)
	if err != nil {
		return ident, fmt.Errorf("%w: %v", domain.ErrRemoteSearchUnavailable, err)
	}
	ident = domain.InstallationIdentity{
		InstallID: installID,
		State:     domain.StateUnregistered,
		CreatedAt: c.now(),
	}
	if err := c.identities.SaveIdentity(ident); err != nil {
		// an id that cannot be persisted must not be registered
		return ident, fmt.Errorf("%w: save identity: %v", domain.ErrRemoteSearchUnavailable, err)
	}
	return ident, nil
}

func (c *Client) save(ident domain.InstallationIdentity) {
	if err := c.identities.SaveIdentity(ident); err != nil {
		c.logger.Error("failed to save installation identity", "state", ident.State, "error", err)
	}
}

// forget drops a rejected API key so the next call registers again.
func (c *Client) forget(ident domain.InstallationIdentity) {
	ident.State = domain.StateUnregistered
	ident.APIKey = ""
	ident.APIKeyHeader = ""
	ident.RegisteredAt = time.Time{}
	c.save(ident)
}

type installRequest struct {
	InstallID  string   `json:"install_id"`
	AppVersion string   `json:"app_version"`
	Platform   Platform `json:"platform"`
}

type installResponse struct {
	APIKey string `json:"api_key"`
	Header string `json:"header"`
}

// install registers installID. The call is idempotent on the service side.
func (c *Client) install(ctx context.Context, installID string) (installResponse, error) {
	var resp installResponse
	err := c.post(ctx, "/install", installRequest{
		InstallID:  installID,
		AppVersion: c.appVersion,
		Platform:   c.platform,
	}, domain.InstallationIdentity{}, &resp)
	if err != nil {
		return resp, err
	}
	resp.APIKey = strings.TrimSpace(resp.APIKey)
	resp.Header = strings.TrimSpace(resp.Header)
	if resp.APIKey != "" && resp.Header == "" {
		resp.Header = DefaultAPIKeyHeader
	}
	return resp, nil
}

// authorized runs call with a registered identity. A rejected key is
// dropped and registration is repeated once.
func (c *Client) authorized(ctx context.Context, call func(ident domain.InstallationIdentity) error) error {
	c.mu.Lock()
	ident, err := c.register(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	err = call(ident)
	if !errors.Is(err, errUnauthorized) {
		return err
	}

	c.logger.Info("remote search key rejected, registering again")
	c.mu.Lock()
	c.forget(ident)
	ident, err = c.register(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return call(ident)
}

// post sends body as JSON and decodes the answer into out. Headers of a
// registered ident authenticate the call.
func (c *Client) post(ctx context.Context, path string, body any, ident domain.InstallationIdentity, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if ident.APIKey != "" {
		req.Header.Set(ident.APIKeyHeader, ident.APIKey)
	}

	c.logger.Debug("hub request", "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
