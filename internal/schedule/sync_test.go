package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/provider"
	"github.com/programista/programista/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// archiveProvider lists a different catalog for every day.
type archiveProvider struct {
	*fakeProvider
	perDay map[domain.Date][]domain.Source
}

func (a *archiveProvider) SourcesForDay(_ context.Context, day domain.Date) ([]domain.Source, error) {
	return a.perDay[day], nil
}

func echo(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
	return domain.FetchResult{Items: []domain.RawItem{{SourceID: req.Source.ID, Day: req.Range.From, Start: "20:00", Title: "Wieczór"}}}, nil
}

func failing(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
	return domain.FetchResult{}, domain.NewProviderError(domain.ClassTransient, domain.ProviderPolskieRadio, "fetch", context.DeadlineExceeded)
}

type recorder struct {
	mu      sync.Mutex
	updates []domain.SyncProgress
}

func (r *recorder) OnProgress(p domain.SyncProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

func (r *recorder) last() domain.SyncProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func (r *recorder) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.updates {
		if len(out) == 0 || out[len(out)-1] != u.Stage {
			out = append(out, u.Stage)
		}
	}
	return out
}

func newSyncFixture(t *testing.T, providers ...domain.Provider) (*Coordinator, *store.Store, *clock) {
	t.Helper()
	st, err := store.Open("", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	clk := newClock()
	coord := NewCoordinator(provider.NewStaticRegistry(providers...), st, Options{Now: clk.Now, Location: time.UTC}, discardLogger())
	return coord, st, clk
}

func TestSyncRunsOneStagePerProvider(t *testing.T) {
	tv := &fakeProvider{id: domain.ProviderTeleman, fn: echo, sources: []domain.Source{
		{ProviderID: domain.ProviderTeleman, ID: "TVP-1", Name: "TVP 1"},
		{ProviderID: domain.ProviderTeleman, ID: "TVP-2", Name: "TVP 2"},
	}}
	radio := &fakeProvider{id: domain.ProviderPolskieRadio, fn: failing, sources: []domain.Source{
		{ProviderID: domain.ProviderPolskieRadio, ID: "trojka", Name: "Trójka"},
	}}
	archive := &archiveProvider{
		fakeProvider: &fakeProvider{id: domain.ProviderFandom, fn: echo},
		perDay: map[domain.Date][]domain.Source{
			"2013-01-01": {{ProviderID: domain.ProviderFandom, ID: "tvp-1", Name: "TVP 1"}},
			"2013-01-02": {{ProviderID: domain.ProviderFandom, ID: "tvp-1", Name: "TVP 1"}, {ProviderID: domain.ProviderFandom, ID: "tvp-2", Name: "TVP 2"}},
		},
	}
	coord, st, _ := newSyncFixture(t, tv, radio, archive)
	syncer := NewSyncer(coord, discardLogger())

	rec := &recorder{}
	err := syncer.Run(context.Background(), SyncOptions{
		DaysAhead:   1,
		ArchiveDays: []domain.Date{"2013-01-01", "2013-01-02"},
		Location:    time.UTC,
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"tv", "radio", "archive"}, rec.stages())
	final := rec.last()
	assert.True(t, final.Finished)
	assert.False(t, final.Cancelled)
	assert.Equal(t, 2, final.Errors)
	assert.Equal(t, 1.0, final.Fraction())

	assert.Equal(t, int32(4), tv.calls.Load())
	assert.Equal(t, int32(2), radio.calls.Load())
	assert.Equal(t, int32(3), archive.calls.Load())

	entry, ok := st.GetEntry(domain.CacheKey{ProviderID: domain.ProviderTeleman, SourceID: "TVP-2", Day: "2026-02-16"})
	require.True(t, ok)
	assert.Len(t, entry.Items, 1)
	_, ok = st.GetEntry(domain.CacheKey{ProviderID: domain.ProviderFandom, SourceID: "tvp-2", Day: "2013-01-02"})
	assert.True(t, ok)

	assert.False(t, syncer.Running())
}

func TestSyncReportsTotalsPerStage(t *testing.T) {
	tv := &fakeProvider{id: domain.ProviderTeleman, fn: echo, sources: []domain.Source{
		{ProviderID: domain.ProviderTeleman, ID: "TVP-1", Name: "TVP 1"},
	}}
	coord, _, _ := newSyncFixture(t, tv)

	rec := &recorder{}
	require.NoError(t, NewSyncer(coord, discardLogger()).Run(context.Background(), SyncOptions{DaysAhead: 2}, rec))

	var downloads []domain.SyncProgress
	for _, u := range rec.updates {
		if u.Total > 0 {
			downloads = append(downloads, u)
		}
	}
	require.Len(t, downloads, 4)
	assert.Equal(t, 0, downloads[0].Done)
	maxDone := 0
	for _, u := range downloads {
		assert.Equal(t, 3, u.Total)
		maxDone = max(maxDone, u.Done)
	}
	assert.Equal(t, 3, maxDone)
}

func TestSyncSkipsArchivesWithoutDays(t *testing.T) {
	archive := &archiveProvider{fakeProvider: &fakeProvider{id: domain.ProviderFandom, fn: echo}}
	coord, _, _ := newSyncFixture(t, archive)

	rec := &recorder{}
	require.NoError(t, NewSyncer(coord, discardLogger()).Run(context.Background(), SyncOptions{}, rec))
	assert.Equal(t, int32(0), archive.calls.Load())
	assert.True(t, rec.last().Finished)
}

func TestSyncCancelled(t *testing.T) {
	release := make(chan struct{})
	tv := &fakeProvider{id: domain.ProviderTeleman, sources: []domain.Source{
		{ProviderID: domain.ProviderTeleman, ID: "TVP-1"},
	}, fn: func(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
		<-release
		return echo(ctx, req)
	}}
	coord, st, _ := newSyncFixture(t, tv)
	syncer := NewSyncer(coord, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	done := make(chan error, 1)
	go func() {
		done <- syncer.Run(ctx, SyncOptions{Concurrency: 1, Location: time.UTC}, rec)
	}()

	require.Eventually(t, syncer.Running, time.Second, time.Millisecond)
	assert.ErrorIs(t, syncer.Run(context.Background(), SyncOptions{}, nil), ErrSyncRunning)

	require.Eventually(t, func() bool { return tv.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, rec.last().Cancelled)
	assert.False(t, rec.last().Finished)

	// the fetch that was already running still lands in the cache
	close(release)
	require.Eventually(t, func() bool {
		_, ok := st.GetEntry(domain.CacheKey{ProviderID: domain.ProviderTeleman, SourceID: "TVP-1", Day: "2026-02-15"})
		return ok
	}, time.Second, time.Millisecond)
}

func TestRefresherDueKeys(t *testing.T) {
	tv := &fakeProvider{id: domain.ProviderTeleman, fn: echo}
	coord, st, clk := newSyncFixture(t, tv)
	fav := domain.FavoriteRef{Kind: domain.KindTV, ProviderID: domain.ProviderTeleman, SourceID: "TVP-1", Name: "TVP 1"}
	require.NoError(t, st.SaveFavorites([]domain.FavoriteRef{fav}))

	r := NewRefresher(coord, st, RefresherOptions{DaysAhead: 1, Location: time.UTC}, discardLogger())

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), tv.calls.Load())

	// nothing is due while entries are young
	clk.Advance(time.Hour)
	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// past 80% of the TTL the still fresh entries are force refreshed
	clk.Advance(4 * time.Hour)
	due := r.dueKeys([]domain.FavoriteRef{fav}, clk.Now())
	require.Len(t, due, 2)
	assert.True(t, due[0].force)

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(4), tv.calls.Load())
}

func TestRefresherSkipsKeysInBackoff(t *testing.T) {
	radio := &fakeProvider{id: domain.ProviderPolskieRadio, fn: failing}
	coord, st, clk := newSyncFixture(t, radio)
	require.NoError(t, st.SaveFavorites([]domain.FavoriteRef{
		{Kind: domain.KindRadio, ProviderID: domain.ProviderPolskieRadio, SourceID: "trojka"},
	}))
	r := NewRefresher(coord, st, RefresherOptions{Location: time.UTC}, discardLogger())

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clk.Advance(10 * time.Second)
	n, _ = r.RunOnce(context.Background())
	assert.Equal(t, 0, n)

	clk.Advance(time.Minute)
	n, _ = r.RunOnce(context.Background())
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(2), radio.calls.Load())
}
