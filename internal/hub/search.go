package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/normalize"
)

type searchScope struct {
	Providers []domain.ProviderID `json:"providers,omitempty"`
	Sources   []domain.SourceID   `json:"sources,omitempty"`
	Kinds     []domain.Kind       `json:"kinds"`
}

type searchRequest struct {
	InstallID string      `json:"install_id"`
	QueryText string      `json:"query_text"`
	Scope     searchScope `json:"scope"`
	Limit     int         `json:"limit"`
}

// row is a search hit in the provider's own shape.
type row struct {
	ProviderID     string   `json:"provider_id"`
	SourceID       string   `json:"source_id"`
	SourceName     string   `json:"source_name"`
	Day            string   `json:"day"`
	StartTime      string   `json:"start_time"`
	Title          string   `json:"title"`
	Subtitle       string   `json:"subtitle"`
	DetailsRef     string   `json:"details_ref"`
	DetailsSummary string   `json:"details_summary"`
	Accessibility  []string `json:"accessibility"`
}

// Search forwards text to the remote service. Every failure, registration
// included, is reported as domain.ErrRemoteSearchUnavailable.
func (c *Client) Search(ctx context.Context, text string, scope domain.ScopeFilter) ([]domain.ScheduleItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	kinds := scope.Kinds
	if len(kinds) == 0 {
		kinds = domain.Kinds
	}
	req := searchRequest{
		QueryText: text,
		Scope:     searchScope{Providers: scope.Providers, Sources: scope.Sources, Kinds: kinds},
		Limit:     maxResults,
	}

	var rows []row
	err := c.authorized(ctx, func(ident domain.InstallationIdentity) error {
		req.InstallID = ident.InstallID
		rows = nil
		return c.post(ctx, "/search", req, ident, &rows)
	})
	if err != nil {
		if errors.Is(err, domain.ErrRemoteSearchUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteSearchUnavailable, err)
	}

	items := c.mapRows(rows)
	c.logger.Debug("remote search complete", "query", text, "rows", len(rows), "items", len(items))
	return items, nil
}

// mapRows converts rows through the same normalization as provider rows,
// skipping rows of unknown providers or without the fields an item needs.
func (c *Client) mapRows(rows []row) []domain.ScheduleItem {
	var items []domain.ScheduleItem
	for _, r := range rows {
		provider := domain.ProviderID(strings.TrimSpace(r.ProviderID))
		if !knownProvider(provider) || strings.TrimSpace(r.SourceID) == "" {
			continue
		}
		item, reason := c.normalizer.Item(provider, domain.RawItem{
			SourceID:    domain.SourceID(strings.TrimSpace(r.SourceID)),
			SourceName:  r.SourceName,
			Day:         domain.Date(strings.TrimSpace(r.Day)),
			Start:       r.StartTime,
			Title:       r.Title,
			Subtitle:    r.Subtitle,
			Description: r.DetailsSummary,
			DetailsRef:  strings.TrimSpace(r.DetailsRef),
			Markers:     r.Accessibility,
		})
		if reason != normalize.DiscardNone {
			c.logger.Debug("skipping remote row", "provider", provider, "reason", reason)
			continue
		}
		items = append(items, item)
	}
	return items
}

func knownProvider(id domain.ProviderID) bool {
	return slices.Contains([]domain.ProviderID{
		domain.ProviderTeleman, domain.ProviderTelemanA11y, domain.ProviderPolskieRadio, domain.ProviderFandom,
	}, id)
}

type detailsRequest struct {
	InstallID  string            `json:"install_id"`
	ProviderID domain.ProviderID `json:"provider_id"`
	DetailsRef string            `json:"details_ref"`
}

type detailsResponse struct {
	Text string `json:"text"`
}

// Details asks the service for the long description of an item. An item the
// service does not know yields "".
func (c *Client) Details(ctx context.Context, provider domain.ProviderID, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if provider == "" || ref == "" {
		return "", nil
	}

	var resp detailsResponse
	err := c.authorized(ctx, func(ident domain.InstallationIdentity) error {
		return c.post(ctx, "/details", detailsRequest{InstallID: ident.InstallID, ProviderID: provider, DetailsRef: ref}, ident, &resp)
	})
	switch {
	case errors.Is(err, errNotFound):
		return "", nil
	case errors.Is(err, domain.ErrRemoteSearchUnavailable):
		return "", err
	case err != nil:
		return "", fmt.Errorf("%w: %v", domain.ErrRemoteSearchUnavailable, err)
	}
	return strings.TrimSpace(resp.Text), nil
}
