package domain

import "context"

// MaxRangeDays bounds the date range of a single fetch.
const MaxRangeDays = 14

// RawItem is a broadcast as the provider printed it: local wall clock times
// on the listed day, free text fields and unparsed markers.
type RawItem struct {
	SourceID    SourceID
	SourceName  string
	Day         Date
	Start       string
	End         string
	Title       string
	Subtitle    string
	Description string
	DetailsRef  string
	Markers     []string
}

// FetchRequest asks a provider for one source over a date range. ETag is the
// validator of the previous successful fetch, if any.
type FetchRequest struct {
	Source Source
	Range  DateRange
	ETag   string
}

// FetchResult carries raw items, or NotModified when the validator matched.
type FetchResult struct {
	Items       []RawItem
	ETag        string
	NotModified bool
}

// Provider is an adapter for one external schedule source. Adapters never
// touch the cache; every error they return is classifiable with ClassOf.
// The set is closed: implementations embed Adapter.
type Provider interface {
	ID() ProviderID
	Kind() Kind
	Name() string
	Sources(ctx context.Context) ([]Source, error)
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)

	isProvider()
}

// Adapter marks a type as one of the enumerated providers.
type Adapter struct{}

func (Adapter) isProvider() {}

// DaySourceLister is implemented by providers whose catalog differs per day.
type DaySourceLister interface {
	SourcesForDay(ctx context.Context, day Date) ([]Source, error)
}

// DetailsProvider is implemented by providers that can describe a broadcast
// given its details reference.
type DetailsProvider interface {
	Details(ctx context.Context, ref string) (string, error)
}

// ProviderLookup resolves provider ids.
type ProviderLookup interface {
	Provider(id ProviderID) (Provider, bool)
	Providers() []Provider
}
