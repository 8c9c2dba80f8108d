// Package fandom adapts the community archive of historical Polish TV
// listings hosted on Fandom. Each calendar day is a wiki page; channels are
// discovered from the page itself, so the catalog differs per day.
package fandom

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/provider/web"
	"golang.org/x/sync/singleflight"
)

const (
	apiPath   = "/api.php"
	pageReuse = 10 * time.Minute
)

// parseResponse is the MediaWiki action=parse answer (formatversion=2).
type parseResponse struct {
	Parse *struct {
		Title    string `json:"title"`
		Wikitext string `json:"wikitext"`
	} `json:"parse"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

type cachedPage struct {
	wikitext string
	fetched  time.Time
}

// Client implements domain.Provider for the archive.
type Client struct {
	domain.Adapter

	baseURL string
	web     *web.Client
	logger  *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	pages map[domain.Date]cachedPage
	now   func() time.Time
}

var _ domain.Provider = (*Client)(nil)

// New creates the archive provider.
func New(baseURL string, wc *web.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		web:     wc,
		logger:  logger,
		pages:   make(map[domain.Date]cachedPage),
		now:     time.Now,
	}
}

func (c *Client) ID() domain.ProviderID { return domain.ProviderFandom }

func (c *Client) Kind() domain.Kind { return domain.KindArchive }

func (c *Client) Name() string { return "TV archive (Fandom)" }

// Sources returns the channels of today's archive page.
func (c *Client) Sources(ctx context.Context) ([]domain.Source, error) {
	return c.SourcesForDay(ctx, domain.DateOf(c.now()))
}

// SourcesForDay returns the channels listed on the page of day.
func (c *Client) SourcesForDay(ctx context.Context, day domain.Date) ([]domain.Source, error) {
	text, err := c.page(ctx, day)
	if err != nil {
		return nil, err
	}
	var out []domain.Source
	seen := make(map[domain.SourceID]bool)
	for _, name := range channels(text) {
		id := sourceID(name)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, domain.Source{ProviderID: c.ID(), ID: id, Name: name})
	}
	return out, nil
}

// Fetch returns one channel's listing for every day of the range.
func (c *Client) Fetch(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
	if err := req.Range.Validate(domain.MaxRangeDays); err != nil {
		return domain.FetchResult{}, domain.NewProviderError(domain.ClassPermanent, c.ID(), "fetch", err)
	}

	var result domain.FetchResult
	for _, day := range req.Range.Days() {
		text, err := c.page(ctx, day)
		if err != nil {
			return domain.FetchResult{}, err
		}

		name, block := c.channel(text, req.Source)
		if name == "" {
			return domain.FetchResult{}, domain.NewProviderError(domain.ClassPermanent, c.ID(), "fetch",
				fmt.Errorf("%w: %q is not listed on %s", domain.ErrUnknownSource, req.Source.ID, day))
		}
		for _, item := range rawItems(block) {
			item.SourceID = req.Source.ID
			item.SourceName = name
			item.Day = day
			result.Items = append(result.Items, item)
		}
	}
	c.logger.Debug("fetched archive schedule", "source", req.Source.ID, "items", len(result.Items))
	return result, nil
}

// channel finds the source on a page by id, then by name.
func (c *Client) channel(text string, src domain.Source) (string, string) {
	for _, name := range channels(text) {
		if sourceID(name) == src.ID || (src.Name != "" && strings.EqualFold(name, src.Name)) {
			return name, channelSchedule(text, name)
		}
	}
	return "", ""
}

// page returns the wikitext of the day's page, trying each title spelling.
func (c *Client) page(ctx context.Context, day domain.Date) (string, error) {
	titles := pageTitles(day)
	if len(titles) == 0 {
		return "", domain.NewProviderError(domain.ClassPermanent, c.ID(), "page",
			fmt.Errorf("%w: day %q", domain.ErrInvalidRange, day))
	}

	c.mu.Lock()
	if p, ok := c.pages[day]; ok && c.now().Sub(p.fetched) < pageReuse {
		c.mu.Unlock()
		return p.wikitext, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(string(day), func() (any, error) {
		for _, title := range titles {
			text, found, err := c.fetchPage(ctx, title)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			c.mu.Lock()
			c.pages[day] = cachedPage{wikitext: text, fetched: c.now()}
			c.mu.Unlock()
			return text, nil
		}
		return nil, domain.NewProviderError(domain.ClassPermanent, c.ID(), "page",
			fmt.Errorf("no archive page for %s", day))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// fetchPage reads one wiki page. A missing page is not an error.
func (c *Client) fetchPage(ctx context.Context, title string) (string, bool, error) {
	q := url.Values{
		"action":        {"parse"},
		"page":          {title},
		"prop":          {"wikitext"},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	resp, err := c.web.Get(ctx, c.ID(), c.baseURL+apiPath+"?"+q.Encode(), "")
	if err != nil {
		return "", false, err
	}

	var pr parseResponse
	if err := json.Unmarshal(resp.Body, &pr); err != nil {
		return "", false, domain.NewProviderError(domain.ClassParse, c.ID(), "page", err)
	}
	switch {
	case pr.Error != nil && pr.Error.Code == "missingtitle":
		return "", false, nil
	case pr.Error != nil && (pr.Error.Code == "ratelimited" || pr.Error.Code == "maxlag" || pr.Error.Code == "readonly"):
		return "", false, domain.NewProviderError(domain.ClassTransient, c.ID(), "page",
			fmt.Errorf("%s: %s", pr.Error.Code, pr.Error.Info))
	case pr.Error != nil:
		return "", false, domain.NewProviderError(domain.ClassPermanent, c.ID(), "page",
			fmt.Errorf("%s: %s", pr.Error.Code, pr.Error.Info))
	case pr.Parse == nil:
		return "", false, domain.NewProviderError(domain.ClassParse, c.ID(), "page",
			fmt.Errorf("response has neither parse nor error"))
	}
	return pr.Parse.Wikitext, true, nil
}
