// Package polskieradio adapts the Polskie Radio programme schedule. One page
// per day lists every station side by side; stations are addressed by their
// position on that page.
package polskieradio

import (
	"context"
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
	schedulePath = "/Portal/Schedule/MultiSchedule.aspx"
	detailsPath  = "/Portal/Schedule/ProgrammeDetails.aspx"

	// pageReuse lets the stations of one day share a single download.
	pageReuse = 2 * time.Minute
)

// stations is the fixed catalog in the order the multischedule page lists them.
var stations = []domain.Source{
	{ProviderID: domain.ProviderPolskieRadio, ID: "jedynka", Name: "Jedynka"},
	{ProviderID: domain.ProviderPolskieRadio, ID: "dwojka", Name: "Dwójka"},
	{ProviderID: domain.ProviderPolskieRadio, ID: "trojka", Name: "Trójka"},
	{ProviderID: domain.ProviderPolskieRadio, ID: "czworka", Name: "Czwórka"},
	{ProviderID: domain.ProviderPolskieRadio, ID: "pr24", Name: "Polskie Radio 24"},
}

type cachedPage struct {
	lists   [][]domain.RawItem
	etag    string
	fetched time.Time
}

// Client implements domain.Provider for Polskie Radio.
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

// New creates the radio provider.
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

func (c *Client) ID() domain.ProviderID { return domain.ProviderPolskieRadio }

func (c *Client) Kind() domain.Kind { return domain.KindRadio }

func (c *Client) Name() string { return "Polskie Radio" }

// Sources returns the station catalog.
func (c *Client) Sources(context.Context) ([]domain.Source, error) {
	out := make([]domain.Source, len(stations))
	copy(out, stations)
	return out, nil
}

func stationIndex(id domain.SourceID) int {
	for i, s := range stations {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Fetch returns the station's programmes for every day of the range.
func (c *Client) Fetch(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
	if err := req.Range.Validate(domain.MaxRangeDays); err != nil {
		return domain.FetchResult{}, domain.NewProviderError(domain.ClassPermanent, c.ID(), "fetch", err)
	}
	idx := stationIndex(req.Source.ID)
	if idx < 0 {
		return domain.FetchResult{}, domain.NewProviderError(domain.ClassPermanent, c.ID(), "fetch",
			fmt.Errorf("%w: %q", domain.ErrUnknownSource, req.Source.ID))
	}
	station := stations[idx]

	days := req.Range.Days()
	var result domain.FetchResult
	for _, day := range days {
		page, err := c.page(ctx, day)
		if err != nil {
			return domain.FetchResult{}, err
		}
		if len(days) == 1 {
			if req.ETag != "" && req.ETag == page.etag {
				return domain.FetchResult{NotModified: true, ETag: page.etag}, nil
			}
			result.ETag = page.etag
		}
		if idx >= len(page.lists) {
			return domain.FetchResult{}, domain.NewProviderError(domain.ClassParse, c.ID(), "fetch",
				fmt.Errorf("page lists %d stations, %s is number %d", len(page.lists), station.Name, idx+1))
		}
		for _, item := range page.lists[idx] {
			item.SourceID = station.ID
			item.SourceName = station.Name
			item.Day = day
			result.Items = append(result.Items, item)
		}
	}
	c.logger.Debug("fetched radio schedule", "source", station.ID, "items", len(result.Items))
	return result, nil
}

// page downloads and parses the all-stations page of day, sharing recent
// downloads between stations.
func (c *Client) page(ctx context.Context, day domain.Date) (cachedPage, error) {
	c.mu.Lock()
	if p, ok := c.pages[day]; ok && c.now().Sub(p.fetched) < pageReuse {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(string(day), func() (any, error) {
		pageURL := c.baseURL + schedulePath + "?" + url.Values{"date": {day.String()}}.Encode()
		resp, err := c.web.Get(ctx, c.ID(), pageURL, "")
		if err != nil {
			return nil, err
		}
		doc, err := web.ParseHTML(resp.Body)
		if err != nil {
			return nil, domain.NewProviderError(domain.ClassParse, c.ID(), "fetch", err)
		}
		lists, err := parseMultiSchedule(doc)
		if err != nil {
			return nil, domain.NewProviderError(domain.ClassParse, c.ID(), "fetch", err)
		}

		p := cachedPage{lists: lists, etag: resp.ETag, fetched: c.now()}
		c.mu.Lock()
		for d, old := range c.pages {
			if c.now().Sub(old.fetched) >= pageReuse {
				delete(c.pages, d)
			}
		}
		c.pages[day] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return cachedPage{}, err
	}
	return v.(cachedPage), nil
}

// Details returns the lead and description from the programme popup.
func (c *Client) Details(ctx context.Context, ref string) (string, error) {
	parts := strings.Split(ref, "|")
	if len(parts) != 4 || parts[0] == "" {
		return "", domain.NewProviderError(domain.ClassPermanent, c.ID(), "details", fmt.Errorf("invalid reference %q", ref))
	}
	q := url.Values{
		"programmeId": {parts[0]},
		"scheduleId":  {parts[1]},
		"startTime":   {parts[2]},
		"date":        {parts[3]},
	}
	resp, err := c.web.Get(ctx, c.ID(), c.baseURL+detailsPath+"?"+q.Encode(), "")
	if err != nil {
		return "", err
	}
	doc, err := web.ParseHTML(resp.Body)
	if err != nil {
		return "", domain.NewProviderError(domain.ClassParse, c.ID(), "details", err)
	}
	return parsePopup(doc).text(), nil
}
