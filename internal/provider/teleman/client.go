// Package teleman adapts the Teleman TV guide (teleman.pl). The same pages
// back two providers: the full TV schedule and an accessibility view limited
// to broadcasts marked with audio description, sign language or subtitles.
package teleman

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/normalize"
	"github.com/programista/programista/internal/provider/web"
)

var stationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)

// Client implements domain.Provider for Teleman.
type Client struct {
	domain.Adapter

	id             domain.ProviderID
	baseURL        string
	web            *web.Client
	accessibleOnly bool
	logger         *slog.Logger
}

var _ domain.Provider = (*Client)(nil)

// New creates the TV schedule provider.
func New(baseURL string, wc *web.Client, logger *slog.Logger) *Client {
	return newClient(domain.ProviderTeleman, baseURL, wc, false, logger)
}

// NewAccessibility creates the accessibility view provider.
func NewAccessibility(baseURL string, wc *web.Client, logger *slog.Logger) *Client {
	return newClient(domain.ProviderTelemanA11y, baseURL, wc, true, logger)
}

func newClient(id domain.ProviderID, baseURL string, wc *web.Client, accessibleOnly bool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		id:             id,
		baseURL:        strings.TrimRight(baseURL, "/"),
		web:            wc,
		accessibleOnly: accessibleOnly,
		logger:         logger,
	}
}

func (c *Client) ID() domain.ProviderID { return c.id }

func (c *Client) Kind() domain.Kind { return c.id.Kind() }

func (c *Client) Name() string {
	if c.accessibleOnly {
		return "Teleman: accessible broadcasts"
	}
	return "Teleman"
}

// Sources returns the station index.
func (c *Client) Sources(ctx context.Context) ([]domain.Source, error) {
	resp, err := c.web.Get(ctx, c.id, c.baseURL+stationsPath, "")
	if err != nil {
		return nil, err
	}
	doc, err := web.ParseHTML(resp.Body)
	if err != nil {
		return nil, domain.NewProviderError(domain.ClassParse, c.id, "sources", err)
	}

	sources := parseStations(doc)
	if len(sources) == 0 {
		return nil, domain.NewProviderError(domain.ClassParse, c.id, "sources", fmt.Errorf("station index is empty"))
	}
	for i := range sources {
		sources[i].ProviderID = c.id
	}
	return sources, nil
}

// Fetch downloads one station page per day of the range.
func (c *Client) Fetch(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
	if err := req.Range.Validate(domain.MaxRangeDays); err != nil {
		return domain.FetchResult{}, domain.NewProviderError(domain.ClassPermanent, c.id, "fetch", err)
	}
	if !stationIDPattern.MatchString(string(req.Source.ID)) {
		return domain.FetchResult{}, domain.NewProviderError(domain.ClassPermanent, c.id, "fetch",
			fmt.Errorf("%w: %q", domain.ErrUnknownSource, req.Source.ID))
	}

	days := req.Range.Days()
	var result domain.FetchResult
	for _, day := range days {
		etag := ""
		if len(days) == 1 {
			etag = req.ETag
		}

		pageURL := fmt.Sprintf("%s%s%s?%s", c.baseURL, stationsPath, url.PathEscape(string(req.Source.ID)),
			url.Values{"date": {day.String()}}.Encode())
		resp, err := c.web.Get(ctx, c.id, pageURL, etag)
		if err != nil {
			return domain.FetchResult{}, err
		}
		if resp.NotModified {
			return domain.FetchResult{NotModified: true, ETag: resp.ETag}, nil
		}
		if len(days) == 1 {
			result.ETag = resp.ETag
		}

		doc, err := web.ParseHTML(resp.Body)
		if err != nil {
			return domain.FetchResult{}, domain.NewProviderError(domain.ClassParse, c.id, "fetch", err)
		}
		items, err := parseSchedule(doc)
		if err != nil {
			return domain.FetchResult{}, domain.NewProviderError(domain.ClassParse, c.id, "fetch", err)
		}

		for _, item := range items {
			item.SourceID = req.Source.ID
			item.SourceName = stationName(req.Source)
			item.Day = day
			if c.accessibleOnly && len(normalize.Flags(item)) == 0 {
				continue
			}
			result.Items = append(result.Items, item)
		}
	}

	c.logger.Debug("fetched teleman schedule", "provider", c.id, "source", req.Source.ID, "items", len(result.Items))
	return result, nil
}

// Details returns the description sections of a show page.
func (c *Client) Details(ctx context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, "/") {
		return "", domain.NewProviderError(domain.ClassPermanent, c.id, "details", fmt.Errorf("invalid reference %q", ref))
	}
	resp, err := c.web.Get(ctx, c.id, c.baseURL+ref, "")
	if err != nil {
		return "", err
	}
	doc, err := web.ParseHTML(resp.Body)
	if err != nil {
		return "", domain.NewProviderError(domain.ClassParse, c.id, "details", err)
	}
	return parseDetails(doc), nil
}

// stationName falls back to the id with dashes as spaces ("TVP-1" -> "TVP 1").
func stationName(src domain.Source) string {
	if src.Name != "" {
		return src.Name
	}
	return strings.ReplaceAll(string(src.ID), "-", " ")
}
