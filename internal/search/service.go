package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/normalize"
)

const maxSuggestions = 5

// Remote is the remote search service. Implementations return rows already
// in canonical form.
type Remote interface {
	Search(ctx context.Context, text string, scope domain.ScopeFilter) ([]domain.ScheduleItem, error)
}

// Service answers searches from the local index, widened with remote
// results when the remote service is available.
type Service struct {
	index  *Index
	remote Remote
	logger *slog.Logger
}

// NewService creates a search service. remote may be nil.
func NewService(index *Index, remote Remote, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{index: index, remote: remote, logger: logger}
}

// Search runs text against the local index and, when configured, the remote
// service. A remote failure only narrows the result: it is reported in
// RemoteError and never returned as an error.
func (s *Service) Search(ctx context.Context, text string, scope domain.ScopeFilter, dates domain.DateFilter) domain.SearchResult {
	q, ok := newQuery(text)
	if !ok {
		return domain.SearchResult{Items: []domain.ScheduleItem{}}
	}

	local := s.index.Query(text, scope, dates)
	result := domain.SearchResult{Items: local}

	if s.remote != nil {
		rows, err := s.remote.Search(ctx, text, scope)
		if err != nil {
			s.logger.Warn("remote search failed, using local results", "error", err)
			result.RemoteError = err.Error()
		} else {
			result.Remote = true
			result.Items = merge(q, local, rows, scope, dates)
		}
	}

	if len(result.Items) == 0 {
		result.Items = []domain.ScheduleItem{}
		result.Suggestions = Suggest(text, s.index.Titles(scope), maxSuggestions)
	}
	s.logger.Debug("search complete", "query", text, "results", len(result.Items), "remote", result.Remote)
	return result
}

// identity is the key under which a local and a remote row are the same
// broadcast.
func identity(item domain.ScheduleItem) string {
	return strings.Join([]string{
		string(item.ProviderID),
		string(item.SourceID),
		item.Start.UTC().Format("2006-01-02T15:04"),
		normalize.Fold(item.Title),
	}, "|")
}

// merge adds remote rows to the local results, dropping rows the local index
// already has, and ranks everything with the local rules.
func merge(q query, local, remote []domain.ScheduleItem, scope domain.ScopeFilter, dates domain.DateFilter) []domain.ScheduleItem {
	seen := make(map[string]bool, len(local))
	all := make([]scored, 0, len(local)+len(remote))
	for _, item := range local {
		seen[identity(item)] = true
		d := newDoc(item)
		all = append(all, scored{doc: d, tier: q.tier(d)})
	}
	for _, item := range remote {
		if !scope.Matches(item) || !dates.Matches(item.Day) {
			continue
		}
		id := identity(item)
		if seen[id] {
			continue
		}
		seen[id] = true
		d := newDoc(item)
		tier := q.tier(d)
		if tier == noMatch {
			tier = tierRemote
		}
		all = append(all, scored{doc: d, tier: tier})
	}
	sortScored(all)
	return items(all)
}
