package domain

import "slices"

// ScopeFilter restricts a search to providers, sources or kinds. Empty
// fields do not restrict.
type ScopeFilter struct {
	Providers []ProviderID `json:"providers,omitempty"`
	Sources   []SourceID   `json:"sources,omitempty"`
	Kinds     []Kind       `json:"kinds,omitempty"`
}

// Matches reports whether the item passes the filter.
func (f ScopeFilter) Matches(item ScheduleItem) bool {
	if len(f.Providers) > 0 && !slices.Contains(f.Providers, item.ProviderID) {
		return false
	}
	if len(f.Sources) > 0 && !slices.Contains(f.Sources, item.SourceID) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, item.ProviderID.Kind()) {
		return false
	}
	return true
}

// DateFilter restricts a search to an inclusive day range. Empty bounds are open.
type DateFilter struct {
	From Date `json:"from,omitempty"`
	To   Date `json:"to,omitempty"`
}

// Matches reports whether day lies within the filter.
func (f DateFilter) Matches(day Date) bool {
	if f.From != "" && day.Before(f.From) {
		return false
	}
	if f.To != "" && f.To.Before(day) {
		return false
	}
	return true
}

// SearchResult is a merged, ranked list of matches.
type SearchResult struct {
	Items       []ScheduleItem `json:"items"`
	Remote      bool           `json:"remote"`
	RemoteError string         `json:"remote_error,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}
