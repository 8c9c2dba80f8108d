package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func item(provider domain.ProviderID, source domain.SourceID, day domain.Date, clock, title, description string) domain.ScheduleItem {
	start, _ := time.Parse("2006-01-02 15:04", string(day)+" "+clock)
	return domain.ScheduleItem{
		ProviderID:  provider,
		SourceID:    source,
		SourceName:  string(source),
		Day:         day,
		Title:       title,
		Description: description,
		Start:       start,
	}
}

func entry(provider domain.ProviderID, source domain.SourceID, day domain.Date, items ...domain.ScheduleItem) domain.CacheEntry {
	return domain.CacheEntry{
		Key:         domain.CacheKey{ProviderID: provider, SourceID: source, Day: day},
		Items:       items,
		LastSuccess: time.Now(),
		TTL:         time.Hour,
	}
}

func titles(items []domain.ScheduleItem) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Title)
	}
	return out
}

func sampleIndex() *Index {
	x := NewIndex(discardLogger())
	x.Rebuild([]domain.CacheEntry{
		entry(domain.ProviderTeleman, "TVP-1", "2026-02-15",
			item(domain.ProviderTeleman, "TVP-1", "2026-02-15", "19:30", "Wiadomości", "Serwis informacyjny"),
			item(domain.ProviderTeleman, "TVP-1", "2026-02-15", "08:00", "Wiadomości poranne", ""),
			item(domain.ProviderTeleman, "TVP-1", "2026-02-15", "21:00", "Sport", "Najnowsze wiadomości sportowe"),
			item(domain.ProviderTeleman, "TVP-1", "2026-02-15", "22:00", "Magazyn", "Co słychać w regionie, wiadomo"),
			item(domain.ProviderTeleman, "TVP-1", "2026-02-15", "23:00", "Kino nocne", "Film sensacyjny z Francji"),
		),
		entry(domain.ProviderPolskieRadio, "trojka", "2026-02-16",
			item(domain.ProviderPolskieRadio, "trojka", "2026-02-16", "07:00", "WIADOMOSCI", ""),
		),
	})
	return x
}

func TestQueryRanksByTierThenStart(t *testing.T) {
	x := sampleIndex()

	got := x.Query("wiadomości", domain.ScopeFilter{}, domain.DateFilter{})
	assert.Equal(t, []string{
		"Wiadomości",         // exact
		"WIADOMOSCI",         // exact, later
		"Wiadomości poranne", // prefix
		"Sport",              // description
	}, titles(got))
}

func TestQueryKeywordsInAnyOrder(t *testing.T) {
	x := sampleIndex()

	got := x.Query("francji film", domain.ScopeFilter{}, domain.DateFilter{})
	assert.Equal(t, []string{"Kino nocne"}, titles(got))

	assert.Empty(t, x.Query("film z hiszpanii", domain.ScopeFilter{}, domain.DateFilter{}))
}

func TestQueryBlankMatchesNothing(t *testing.T) {
	x := sampleIndex()
	assert.Empty(t, x.Query("", domain.ScopeFilter{}, domain.DateFilter{}))
	assert.Empty(t, x.Query("   ", domain.ScopeFilter{}, domain.DateFilter{}))
	assert.Empty(t, x.Query("?!", domain.ScopeFilter{}, domain.DateFilter{}))
}

func TestQueryScopeAndDates(t *testing.T) {
	x := sampleIndex()

	radio := x.Query("wiadomosci", domain.ScopeFilter{Kinds: []domain.Kind{domain.KindRadio}}, domain.DateFilter{})
	assert.Equal(t, []string{"WIADOMOSCI"}, titles(radio))

	tvp := x.Query("wiadomosci", domain.ScopeFilter{Sources: []domain.SourceID{"TVP-1"}}, domain.DateFilter{})
	assert.Len(t, tvp, 3)

	later := x.Query("wiadomosci", domain.ScopeFilter{}, domain.DateFilter{From: "2026-02-16"})
	assert.Equal(t, []string{"WIADOMOSCI"}, titles(later))
}

func TestPrune(t *testing.T) {
	x := sampleIndex()
	require.Equal(t, 6, x.Len())

	assert.Equal(t, 5, x.Prune("2026-02-16"))
	assert.Equal(t, 1, x.Len())

	// pruned days stay out of later rebuilds
	x.Rebuild([]domain.CacheEntry{
		entry(domain.ProviderTeleman, "TVP-1", "2026-02-15", item(domain.ProviderTeleman, "TVP-1", "2026-02-15", "10:00", "Stare", "")),
		entry(domain.ProviderTeleman, "TVP-1", "2026-02-17", item(domain.ProviderTeleman, "TVP-1", "2026-02-17", "10:00", "Nowe", "")),
	})
	assert.Equal(t, 1, x.Len())
	assert.Equal(t, []string{"Nowe"}, titles(x.Query("nowe", domain.ScopeFilter{}, domain.DateFilter{})))
}

func TestQueriesRunDuringRebuilds(t *testing.T) {
	x := sampleIndex()
	entries := []domain.CacheEntry{entry(domain.ProviderTeleman, "TVP-1", "2026-02-15",
		item(domain.ProviderTeleman, "TVP-1", "2026-02-15", "19:30", "Wiadomości", ""))}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				x.Rebuild(entries)
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				assert.NotEmpty(t, x.Query("wiadomości", domain.ScopeFilter{}, domain.DateFilter{}))
			}
		}()
	}
	wg.Wait()
}

func TestSuggest(t *testing.T) {
	all := []string{"Wiadomości", "Wiadomości poranne", "Teleexpress", "Pogoda", "Panorama"}

	assert.Equal(t, []string{"Wiadomości poranne"}, Suggest("wiadomosci por", all, 5))
	assert.Equal(t, []string{"Teleexpress"}, Suggest("telexpres", all, 5))
	assert.Equal(t, []string{"Panorama"}, Suggest("panoarma", all, 5))
	assert.Empty(t, Suggest("", all, 5))
	assert.Len(t, Suggest("a", all, 2), 2)
}

type fakeRemote struct {
	rows  []domain.ScheduleItem
	err   error
	calls int
}

func (f *fakeRemote) Search(ctx context.Context, text string, scope domain.ScopeFilter) ([]domain.ScheduleItem, error) {
	f.calls++
	return f.rows, f.err
}

// With nothing cached the local index finds nothing; the remote service
// supplies the results, ranked like local ones.
func TestServiceRemoteResultsWithEmptyCache(t *testing.T) {
	remote := &fakeRemote{rows: []domain.ScheduleItem{
		item(domain.ProviderTeleman, "TVP-2", "2026-02-15", "18:00", "Panorama", "Wiadomości dnia"),
		item(domain.ProviderTeleman, "TVP-1", "2026-02-15", "19:30", "Wiadomości", ""),
		item(domain.ProviderTeleman, "TVP-1", "2026-02-15", "08:00", "Wiadomości poranne", ""),
	}}
	svc := NewService(NewIndex(discardLogger()), remote, discardLogger())

	assert.Empty(t, NewService(NewIndex(discardLogger()), nil, discardLogger()).
		Search(context.Background(), "wiadomości", domain.ScopeFilter{}, domain.DateFilter{}).Items)

	res := svc.Search(context.Background(), "wiadomości", domain.ScopeFilter{}, domain.DateFilter{})
	assert.True(t, res.Remote)
	assert.Empty(t, res.RemoteError)
	assert.Equal(t, []string{"Wiadomości", "Wiadomości poranne", "Panorama"}, titles(res.Items))
}

func TestServiceMergeDropsDuplicates(t *testing.T) {
	x := sampleIndex()
	local := x.Query("wiadomości", domain.ScopeFilter{}, domain.DateFilter{})

	dup := local[0]
	dup.Title = "WIADOMOŚCI"
	dup.Description = "copy from the remote service"
	remote := &fakeRemote{rows: []domain.ScheduleItem{
		dup,
		item(domain.ProviderTeleman, "TVP-INFO", "2026-02-15", "12:00", "Wiadomości", ""),
		item(domain.ProviderPolskieRadio, "jedynka", "2026-02-15", "06:00", "Sygnały dnia", ""),
	}}
	svc := NewService(x, remote, discardLogger())

	res := svc.Search(context.Background(), "wiadomości", domain.ScopeFilter{Kinds: []domain.Kind{domain.KindTV}}, domain.DateFilter{})
	require.Len(t, res.Items, 4)
	assert.Equal(t, domain.SourceID("TVP-INFO"), res.Items[0].SourceID)
	assert.Equal(t, "Serwis informacyjny", res.Items[1].Description)
	for _, it := range res.Items {
		assert.NotEqual(t, "Sygnały dnia", it.Title)
	}
}

func TestServiceDegradesWhenRemoteFails(t *testing.T) {
	remote := &fakeRemote{err: domain.ErrRemoteSearchUnavailable}
	svc := NewService(sampleIndex(), remote, discardLogger())

	res := svc.Search(context.Background(), "sport", domain.ScopeFilter{}, domain.DateFilter{})
	assert.False(t, res.Remote)
	assert.Contains(t, res.RemoteError, "remote search unavailable")
	assert.Equal(t, []string{"Sport"}, titles(res.Items))

	remote.err = errors.New("boom")
	res = svc.Search(context.Background(), "sprt", domain.ScopeFilter{}, domain.DateFilter{})
	assert.Empty(t, res.Items)
	assert.Equal(t, []string{"Sport"}, res.Suggestions)
}

func TestServiceBlankQuerySkipsRemote(t *testing.T) {
	remote := &fakeRemote{}
	svc := NewService(sampleIndex(), remote, discardLogger())

	res := svc.Search(context.Background(), " ", domain.ScopeFilter{}, domain.DateFilter{})
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.Equal(t, 0, remote.calls)
}
