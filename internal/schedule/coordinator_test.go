package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/provider"
	"github.com/programista/programista/internal/provider/teleman"
	"github.com/programista/programista/internal/provider/web"
	"github.com/programista/programista/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = domain.CacheKey{ProviderID: domain.ProviderTeleman, SourceID: "Channel1", Day: "2026-02-15"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 2, 15, 8, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeProvider answers fetches with fn and counts them.
type fakeProvider struct {
	domain.Adapter

	id      domain.ProviderID
	sources []domain.Source
	calls   atomic.Int32
	fn      func(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error)
}

func (f *fakeProvider) ID() domain.ProviderID { return f.id }
func (f *fakeProvider) Kind() domain.Kind     { return f.id.Kind() }
func (f *fakeProvider) Name() string          { return string(f.id) }

func (f *fakeProvider) Sources(context.Context) ([]domain.Source, error) {
	return f.sources, nil
}

func (f *fakeProvider) Fetch(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
	f.calls.Add(1)
	return f.fn(ctx, req)
}

func rows(titles ...string) []domain.RawItem {
	var out []domain.RawItem
	for i, title := range titles {
		out = append(out, domain.RawItem{
			SourceID: "Channel1",
			Day:      "2026-02-15",
			Start:    []string{"06:00", "07:00", "08:00", "09:00"}[i%4],
			Title:    title,
		})
	}
	return out
}

func succeed(titles ...string) func(context.Context, domain.FetchRequest) (domain.FetchResult, error) {
	return func(context.Context, domain.FetchRequest) (domain.FetchResult, error) {
		return domain.FetchResult{Items: rows(titles...)}, nil
	}
}

type fixture struct {
	coord    *Coordinator
	store    *store.Store
	clock    *clock
	provider *fakeProvider
}

func newFixture(t *testing.T, fn func(context.Context, domain.FetchRequest) (domain.FetchResult, error)) *fixture {
	t.Helper()
	st, err := store.Open("", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fp := &fakeProvider{id: domain.ProviderTeleman, fn: fn}
	clk := newClock()
	coord := NewCoordinator(provider.NewStaticRegistry(fp), st, Options{
		TTL:          func(domain.ProviderID) time.Duration { return 6 * time.Hour },
		Timeout:      func(domain.ProviderID) time.Duration { return time.Second },
		RetryBackoff: time.Minute,
		MaxBackoff:   30 * time.Minute,
		Now:          clk.Now,
	}, discardLogger())
	return &fixture{coord: coord, store: st, clock: clk, provider: fp}
}

func TestResolveFetchesAndCaches(t *testing.T) {
	f := newFixture(t, succeed("Kawa czy herbata?", "Wiadomości", "Pogoda"))

	entry, err := f.coord.Resolve(context.Background(), testKey, false)
	require.NoError(t, err)
	require.Len(t, entry.Items, 3)
	assert.Nil(t, entry.LastError)
	assert.Equal(t, f.clock.Now(), entry.LastSuccess)
	assert.Equal(t, 6*time.Hour, entry.TTL)
	assert.NotEmpty(t, entry.ContentHash)

	stored, ok := f.store.GetEntry(testKey)
	require.True(t, ok)
	assert.Equal(t, entry.Items, stored.Items)
}

func TestResolveFreshEntryDoesNoIO(t *testing.T) {
	f := newFixture(t, succeed("Film"))
	_, err := f.coord.Resolve(context.Background(), testKey, false)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Hour)
	entry, err := f.coord.Resolve(context.Background(), testKey, false)
	require.NoError(t, err)
	assert.Len(t, entry.Items, 1)
	assert.Equal(t, int32(1), f.provider.calls.Load())

	// stale after the TTL
	f.clock.Advance(time.Hour)
	_, err = f.coord.Resolve(context.Background(), testKey, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.provider.calls.Load())
}

func TestResolveSingleFlight(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
		<-release
		return domain.FetchResult{Items: rows("Film")}, nil
	})

	const callers = 10
	var started sync.WaitGroup
	var wg sync.WaitGroup
	results := make([]domain.CacheEntry, callers)
	for i := range callers {
		started.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			// half of the callers force a refresh; they still join
			results[i], _ = f.coord.Resolve(context.Background(), testKey, i%2 == 0)
		}()
	}
	started.Wait()
	require.Eventually(t, func() bool { return f.coord.State(testKey) == StateFetching }, time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), f.provider.calls.Load())
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, StateIdle, f.coord.State(testKey))
}

func TestTransientFailureKeepsPreviousItems(t *testing.T) {
	var fail atomic.Bool
	f := newFixture(t, func(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
		if fail.Load() {
			return domain.FetchResult{}, domain.NewProviderError(domain.ClassTransient, domain.ProviderTeleman, "fetch", errors.New("connection reset"))
		}
		return domain.FetchResult{Items: rows("A", "B", "C")}, nil
	})

	first, err := f.coord.Resolve(context.Background(), testKey, false)
	require.NoError(t, err)
	require.Len(t, first.Items, 3)

	fail.Store(true)
	f.clock.Advance(time.Minute)
	second, err := f.coord.Resolve(context.Background(), testKey, true)
	require.NoError(t, err)

	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.LastSuccess, second.LastSuccess)
	assert.Equal(t, f.clock.Now(), second.LastAttempt)
	require.NotNil(t, second.LastError)
	assert.Equal(t, domain.ClassTransient, second.LastError.Class)
	assert.ErrorIs(t, second.LastError.Err(), domain.ErrTransientProvider)
	assert.Equal(t, 1, second.Failures)
	assert.Contains(t, second.Note(f.clock.Now()), "temporarily unavailable")
}

func TestPermanentFailureWithoutHistory(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
		return domain.FetchResult{}, domain.NewProviderError(domain.ClassPermanent, domain.ProviderTeleman, "fetch", domain.ErrUnknownSource)
	})

	entry, err := f.coord.Resolve(context.Background(), testKey, false)
	require.NoError(t, err)
	assert.Empty(t, entry.Items)
	assert.False(t, entry.HasSucceeded())
	require.NotNil(t, entry.LastError)
	assert.Equal(t, domain.ClassPermanent, entry.LastError.Class)

	stored, ok := f.store.GetEntry(testKey)
	require.True(t, ok)
	assert.Equal(t, domain.ClassPermanent, stored.LastError.Class)
}

func TestParseFailureKeepsItemsAndBacksOff(t *testing.T) {
	var fail atomic.Bool
	f := newFixture(t, func(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
		if fail.Load() {
			return domain.FetchResult{}, domain.NewProviderError(domain.ClassParse, domain.ProviderTeleman, "fetch", errors.New("list missing"))
		}
		return domain.FetchResult{Items: rows("A")}, nil
	})

	_, err := f.coord.Resolve(context.Background(), testKey, false)
	require.NoError(t, err)

	fail.Store(true)
	f.clock.Advance(7 * time.Hour)
	entry, _ := f.coord.Resolve(context.Background(), testKey, false)
	assert.Len(t, entry.Items, 1)
	assert.Equal(t, domain.ClassParse, entry.LastError.Class)
	assert.Equal(t, int32(2), f.provider.calls.Load())

	// within the first backoff window the stale entry is served as is
	f.clock.Advance(30 * time.Second)
	_, _ = f.coord.Resolve(context.Background(), testKey, false)
	assert.Equal(t, int32(2), f.provider.calls.Load())

	f.clock.Advance(time.Minute)
	entry, _ = f.coord.Resolve(context.Background(), testKey, false)
	assert.Equal(t, int32(3), f.provider.calls.Load())
	assert.Equal(t, 2, entry.Failures)

	// a forced refresh ignores the backoff
	_, _ = f.coord.Resolve(context.Background(), testKey, true)
	assert.Equal(t, int32(4), f.provider.calls.Load())
}

func TestBackoff(t *testing.T) {
	f := newFixture(t, succeed("A"))
	assert.Equal(t, time.Duration(0), f.coord.Backoff(0))
	assert.Equal(t, time.Minute, f.coord.Backoff(1))
	assert.Equal(t, 2*time.Minute, f.coord.Backoff(2))
	assert.Equal(t, 16*time.Minute, f.coord.Backoff(5))
	assert.Equal(t, 30*time.Minute, f.coord.Backoff(6))
	assert.Equal(t, 30*time.Minute, f.coord.Backoff(50))
}

func TestCancelledWaiterStillFillsCache(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
		<-release
		return domain.FetchResult{Items: rows("Film")}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := f.coord.ResolveAsync(ctx, testKey, false)
	require.Eventually(t, func() bool { return f.coord.State(testKey) == StateFetching }, time.Second, time.Millisecond)

	cancel()
	res := <-done
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, res.Entry.Items)

	close(release)
	require.Eventually(t, func() bool {
		entry, ok := f.store.GetEntry(testKey)
		return ok && len(entry.Items) == 1
	}, time.Second, time.Millisecond)
}

func TestFetchTimeoutIsTransient(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
		<-ctx.Done()
		return domain.FetchResult{}, ctx.Err()
	})
	f.coord.opts.Timeout = func(domain.ProviderID) time.Duration { return 10 * time.Millisecond }

	entry, err := f.coord.Resolve(context.Background(), testKey, false)
	require.NoError(t, err)
	require.NotNil(t, entry.LastError)
	assert.Equal(t, domain.ClassTransient, entry.LastError.Class)
}

func TestNotModifiedKeepsItems(t *testing.T) {
	var etags []string
	f := newFixture(t, func(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
		etags = append(etags, req.ETag)
		if req.ETag == `"v1"` {
			return domain.FetchResult{NotModified: true}, nil
		}
		return domain.FetchResult{Items: rows("A", "B"), ETag: `"v1"`}, nil
	})

	first, _ := f.coord.Resolve(context.Background(), testKey, false)
	f.clock.Advance(time.Hour)
	second, _ := f.coord.Resolve(context.Background(), testKey, true)

	assert.Equal(t, []string{"", `"v1"`}, etags)
	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, f.clock.Now(), second.LastSuccess)
	assert.Equal(t, `"v1"`, second.ETag)
}

func TestOnSettled(t *testing.T) {
	f := newFixture(t, succeed("A"))

	var settled []Settlement
	var mu sync.Mutex
	unsubscribe := f.coord.OnSettled(func(s Settlement) {
		mu.Lock()
		defer mu.Unlock()
		settled = append(settled, s)
	})

	f.coord.Resolve(context.Background(), testKey, false)
	f.coord.Resolve(context.Background(), testKey, true)
	unsubscribe()
	f.coord.Resolve(context.Background(), testKey, true)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, settled, 2)
	assert.True(t, settled[0].Changed)
	assert.False(t, settled[1].Changed)
	assert.NoError(t, settled[0].Err)
}

func TestResolveRejectsUnknownKeys(t *testing.T) {
	f := newFixture(t, succeed("A"))

	entry, err := f.coord.Resolve(context.Background(), domain.CacheKey{ProviderID: "tvn24", SourceID: "x", Day: "2026-02-15"}, false)
	require.NoError(t, err)
	assert.ErrorIs(t, entry.LastError.Err(), domain.ErrPermanentProvider)

	entry, err = f.coord.Resolve(context.Background(), domain.CacheKey{ProviderID: domain.ProviderTeleman, SourceID: "x", Day: "jutro"}, false)
	require.NoError(t, err)
	assert.NotNil(t, entry.LastError)
	assert.Equal(t, int32(0), f.provider.calls.Load())
}

func TestResolveRange(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
		return domain.FetchResult{Items: []domain.RawItem{{SourceID: req.Source.ID, Day: req.Range.From, Start: "12:00", Title: "Południe"}}}, nil
	})

	entries, err := f.coord.ResolveRange(context.Background(), domain.ProviderTeleman, "Channel1",
		domain.DateRange{From: "2026-02-15", To: "2026-02-17"}, false, 2)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.Date("2026-02-17"), entries[2].Key.Day)
	assert.Equal(t, domain.Date("2026-02-17"), entries[2].Items[0].Day)

	_, err = f.coord.ResolveRange(context.Background(), domain.ProviderTeleman, "Channel1",
		domain.DateRange{From: "2026-02-17", To: "2026-02-15"}, false, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

const channelHTML = `
<ul class="stationItems">
  <li><em>06:00</em><div class="detail"><a href="/tv/Kawa-1">Kawa czy herbata?</a><p class="genre">magazyn</p></div></li>
  <li><em>08:00</em><div class="detail"><a href="/tv/Wiadomosci-2">Wiadomości</a><p class="genre">informacje</p></div></li>
  <li><em>08:15</em><div class="detail"><a href="/tv/Pogoda-3">Pogoda</a></div></li>
</ul>`

// The provider lists three items, then starts failing with 500: the cached
// items survive with the failure noted.
func TestTelemanScenario(t *testing.T) {
	var broken atomic.Bool
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if broken.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		assert.Equal(t, "/program-tv/stacje/Channel1", r.URL.Path)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, channelHTML)
	}))
	t.Cleanup(server.Close)

	st, err := store.Open("", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	wc := web.NewClient(discardLogger(), web.WithRetryDelay(0))
	coord := NewCoordinator(provider.NewStaticRegistry(teleman.New(server.URL, wc, discardLogger())), st, Options{}, discardLogger())

	first, err := coord.Resolve(context.Background(), testKey, false)
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	assert.Nil(t, first.LastError)
	assert.Equal(t, "Kawa czy herbata?", first.Items[0].Title)
	assert.Equal(t, "Channel1", first.Items[0].SourceName)

	broken.Store(true)

	// within the TTL the cache answers without asking the provider
	cached, err := coord.Resolve(context.Background(), testKey, false)
	require.NoError(t, err)
	assert.Equal(t, first.Items, cached.Items)
	assert.Equal(t, int32(1), requests.Load())

	second, err := coord.Resolve(context.Background(), testKey, true)
	require.NoError(t, err)
	assert.Equal(t, first.Items, second.Items)
	require.NotNil(t, second.LastError)
	assert.ErrorIs(t, second.LastError.Err(), domain.ErrTransientProvider)
	// one retry after the first 500
	assert.Equal(t, int32(3), requests.Load())
}
