// Package feedback submits bug reports and suggestions to the report
// collector. Submission is a single best-effort attempt.
package feedback

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"
)

const (
	appID          = "programista"
	reportPath     = "/v1/report"
	tokenHeader    = "X-Sygnalista-App-Token"
	maxLogTail     = 256 << 10
	maxResponse    = 1 << 20
	defaultTimeout = 30 * time.Second
)

// Kind classifies a report.
type Kind string

const (
	KindBug        Kind = "bug"
	KindSuggestion Kind = "suggestion"
)

var (
	// ErrNotConfigured is returned when no collector URL is set.
	ErrNotConfigured = errors.New("feedback collector not configured")

	// ErrInvalidReport is returned for reports missing a title or description.
	ErrInvalidReport = errors.New("report needs a title and a description")
)

// Report is what the user submits.
type Report struct {
	Kind        Kind
	Title       string
	Description string
	Email       string // optional
	LogPath     string // optional file attached as a gzip'd tail
}

// Result is the collector's answer.
type Result struct {
	IssueURL string
}

// StatusError is a non-2xx answer from the collector.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector returned HTTP %d: %s", e.Status, e.Body)
}

// Client posts reports.
type Client struct {
	url        string
	appToken   string
	appVersion string
	http       *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the collector at url.
func New(url, appToken, appVersion string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:        strings.TrimRight(strings.TrimSpace(url), "/"),
		appToken:   strings.TrimSpace(appToken),
		appVersion: appVersion,
		http:       &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type diagnostics struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
	Go   string `json:"go"`
}

type attachment struct {
	Name     string `json:"name"`
	Encoding string `json:"encoding"`
	Data     string `json:"data"`
}

type payload struct {
	AppID       string      `json:"app_id"`
	AppVersion  string      `json:"app_version"`
	Kind        Kind        `json:"kind"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Email       string      `json:"email,omitempty"`
	Diagnostics diagnostics `json:"diagnostics"`
	Log         *attachment `json:"log,omitempty"`
}

type response struct {
	Issue struct {
		HTMLURL string `json:"html_url"`
	} `json:"issue"`
}

// Submit sends r once. A log file that cannot be read is left out rather than
// failing the report.
func (c *Client) Submit(ctx context.Context, r Report) (Result, error) {
	if c.url == "" {
		return Result{}, ErrNotConfigured
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	if r.Title == "" || r.Description == "" {
		return Result{}, ErrInvalidReport
	}
	if r.Kind == "" {
		r.Kind = KindBug
	}

	body := payload{
		AppID:       appID,
		AppVersion:  c.appVersion,
		Kind:        r.Kind,
		Title:       r.Title,
		Description: r.Description,
		Email:       strings.TrimSpace(r.Email),
		Diagnostics: diagnostics{OS: runtime.GOOS, Arch: runtime.GOARCH, Go: runtime.Version()},
	}
	if r.LogPath != "" {
		log, err := readLog(r.LogPath)
		if err != nil {
			c.logger.Warn("skipping log attachment", "path", r.LogPath, "error", err)
		} else {
			body.Log = log
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("encode report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+reportPath, bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set(tokenHeader, c.appToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send report: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out response
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			c.logger.Debug("collector answer not understood", "error", err)
		}
	}
	c.logger.Info("report submitted", "kind", r.Kind, "issue", out.Issue.HTMLURL)
	return Result{IssueURL: out.Issue.HTMLURL}, nil
}

// readLog gzips the last maxLogTail bytes of the file at path.
func readLog(path string) (*attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > maxLogTail {
		if _, err := f.Seek(-maxLogTail, io.SeekEnd); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.Copy(zw, f); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return &attachment{
		Name:     info.Name() + ".gz",
		Encoding: "gzip+base64",
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
