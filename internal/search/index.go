// Package search keeps a local, rebuildable index over cached schedules and
// merges its results with the remote search service.
package search

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/programista/programista/internal/domain"
)

// snapshot is an immutable generation of the index.
type snapshot struct {
	docs  []doc
	built time.Time
}

// Index answers text queries over cached schedule items. Queries read the
// current snapshot without locking; rebuilds are serialized and swap in a new
// snapshot when done.
type Index struct {
	current atomic.Pointer[snapshot]
	logger  *slog.Logger

	rebuildMu sync.Mutex
	oldest    domain.Date // days before this are left out, "" keeps all
}

// NewIndex creates an empty index.
func NewIndex(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Index{logger: logger}
	x.current.Store(&snapshot{})
	return x
}

// Rebuild replaces the index with the items of entries and returns how many
// items were indexed.
func (x *Index) Rebuild(entries []domain.CacheEntry) int {
	x.rebuildMu.Lock()
	defer x.rebuildMu.Unlock()

	var docs []doc
	for _, entry := range entries {
		if x.oldest != "" && entry.Key.Day.Before(x.oldest) {
			continue
		}
		for _, item := range entry.Items {
			docs = append(docs, newDoc(item))
		}
	}
	x.current.Store(&snapshot{docs: docs, built: time.Now()})
	x.logger.Debug("rebuilt search index", "entries", len(entries), "items", len(docs))
	return len(docs)
}

// Prune drops items of days before day, now and on every later rebuild.
// It returns how many items were dropped.
func (x *Index) Prune(day domain.Date) int {
	x.rebuildMu.Lock()
	defer x.rebuildMu.Unlock()

	x.oldest = day
	old := x.current.Load()
	kept := make([]doc, 0, len(old.docs))
	for _, d := range old.docs {
		if !d.item.Day.Before(day) {
			kept = append(kept, d)
		}
	}
	x.current.Store(&snapshot{docs: kept, built: time.Now()})
	return len(old.docs) - len(kept)
}

// Len returns the number of indexed items.
func (x *Index) Len() int {
	return len(x.current.Load().docs)
}

// Query returns the items matching text within scope and dates, best first.
// A blank text matches nothing.
func (x *Index) Query(text string, scope domain.ScopeFilter, dates domain.DateFilter) []domain.ScheduleItem {
	q, ok := newQuery(text)
	if !ok {
		return nil
	}

	var matches []scored
	for _, d := range x.current.Load().docs {
		if !scope.Matches(d.item) || !dates.Matches(d.item.Day) {
			continue
		}
		if tier := q.tier(d); tier != noMatch {
			matches = append(matches, scored{doc: d, tier: tier})
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sortScored(matches)
	return items(matches)
}

// Titles returns the distinct titles in the index within scope.
func (x *Index) Titles(scope domain.ScopeFilter) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range x.current.Load().docs {
		if seen[d.title] || !scope.Matches(d.item) {
			continue
		}
		seen[d.title] = true
		out = append(out, d.item.Title)
	}
	return out
}
