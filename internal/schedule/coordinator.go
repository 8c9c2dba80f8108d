// Package schedule decides, for every (provider, source, day) key, whether to
// answer from the cache or to fetch, and makes sure at most one fetch per key
// is in flight. It is the only writer of cached schedules.
package schedule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/normalize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// State is the fetch state of one key. A settled fetch returns its key to Idle.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
)

// Settlement describes one finished fetch.
type Settlement struct {
	Entry   domain.CacheEntry
	Err     error // provider error, nil on success
	Changed bool  // items differ from what was cached before
}

// Resolution is delivered by ResolveAsync.
type Resolution struct {
	Entry domain.CacheEntry
	Err   error
}

// Options tunes the coordinator. Zero values select defaults.
type Options struct {
	TTL          func(domain.ProviderID) time.Duration
	Timeout      func(domain.ProviderID) time.Duration
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	Location     *time.Location
	Metrics      *Metrics
	Now          func() time.Time
}

const (
	defaultTTL     = 6 * time.Hour
	defaultTimeout = 30 * time.Second
)

// Coordinator resolves cache keys.
type Coordinator struct {
	providers  domain.ProviderLookup
	store      domain.ScheduleStore
	normalizer *normalize.Normalizer
	opts       Options
	logger     *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	fetching map[domain.CacheKey]bool

	obsMu     sync.RWMutex
	observers map[int]func(Settlement)
	nextObs   int

	catalogs catalogCache
}

// NewCoordinator creates a coordinator over providers and store.
func NewCoordinator(providers domain.ProviderLookup, store domain.ScheduleStore, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TTL == nil {
		opts.TTL = func(domain.ProviderID) time.Duration { return defaultTTL }
	}
	if opts.Timeout == nil {
		opts.Timeout = func(domain.ProviderID) time.Duration { return defaultTimeout }
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Minute
	}
	if opts.MaxBackoff < opts.RetryBackoff {
		opts.MaxBackoff = 30 * opts.RetryBackoff
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		providers:  providers,
		store:      store,
		normalizer: normalize.New(opts.Location),
		opts:       opts,
		logger:     logger,
		fetching:   make(map[domain.CacheKey]bool),
		observers:  make(map[int]func(Settlement)),
		catalogs:   catalogCache{entries: make(map[string]catalogEntry)},
	}
}

// Cached returns the stored entry without any I/O.
func (c *Coordinator) Cached(key domain.CacheKey) (domain.CacheEntry, bool) {
	return c.store.GetEntry(key)
}

// Resolve returns the entry for key, fetching when it is missing, stale or
// forceRefresh is set. A fetch already running for key is joined rather than
// duplicated, forced or not. Provider failures are reported in the entry's
// LastError; the returned error is only ever the caller's context error, in
// which case the fetch carries on and the best cached entry is returned.
func (c *Coordinator) Resolve(ctx context.Context, key domain.CacheKey, forceRefresh bool) (domain.CacheEntry, error) {
	now := c.opts.Now()
	if err := key.Validate(); err != nil {
		return rejected(key, err, now), nil
	}
	if _, ok := c.providers.Provider(key.ProviderID); !ok {
		return rejected(key, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, key.ProviderID), now), nil
	}

	cached, ok := c.store.GetEntry(key)
	if !forceRefresh && ok {
		if cached.IsFresh(now) {
			c.opts.Metrics.resolves.WithLabelValues(string(key.ProviderID), "fresh").Inc()
			return cached, nil
		}
		if c.backingOff(cached, now) {
			c.opts.Metrics.resolves.WithLabelValues(string(key.ProviderID), "backoff").Inc()
			return cached, nil
		}
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.fetch(key), nil
	})
	select {
	case res := <-ch:
		outcome := "fetched"
		if res.Shared {
			outcome = "joined"
		}
		c.opts.Metrics.resolves.WithLabelValues(string(key.ProviderID), outcome).Inc()
		return res.Val.(domain.CacheEntry), nil
	case <-ctx.Done():
		c.opts.Metrics.resolves.WithLabelValues(string(key.ProviderID), "abandoned").Inc()
		if !ok {
			cached = domain.CacheEntry{Key: key}
		}
		return cached, ctx.Err()
	}
}

// ResolveAsync resolves key on its own goroutine and delivers the result on
// the returned channel, which receives exactly one value.
func (c *Coordinator) ResolveAsync(ctx context.Context, key domain.CacheKey, forceRefresh bool) <-chan Resolution {
	out := make(chan Resolution, 1)
	go func() {
		entry, err := c.Resolve(ctx, key, forceRefresh)
		out <- Resolution{Entry: entry, Err: err}
	}()
	return out
}

// ResolveRange resolves every day of r for one source, at most limit at a time.
func (c *Coordinator) ResolveRange(ctx context.Context, provider domain.ProviderID, source domain.SourceID, r domain.DateRange, forceRefresh bool, limit int) ([]domain.CacheEntry, error) {
	if err := r.Validate(domain.MaxRangeDays); err != nil {
		return nil, err
	}
	days := r.Days()
	entries := make([]domain.CacheEntry, len(days))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, day := range days {
		g.Go(func() error {
			entry, err := c.Resolve(gctx, domain.CacheKey{ProviderID: provider, SourceID: source, Day: day}, forceRefresh)
			entries[i] = entry
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return entries, err
	}
	return entries, nil
}

// State reports whether a fetch for key is running.
func (c *Coordinator) State(key domain.CacheKey) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetching[key] {
		return StateFetching
	}
	return StateIdle
}

// OnSettled registers fn to run after every persisted fetch. fn runs on the
// fetching goroutine and must not block. The returned func unregisters it.
func (c *Coordinator) OnSettled(fn func(Settlement)) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

// Backoff returns how long to wait before retrying a key that failed
// failures times in a row.
func (c *Coordinator) Backoff(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := c.opts.RetryBackoff
	for i := 1; i < failures && d < c.opts.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, c.opts.MaxBackoff)
}

func (c *Coordinator) backingOff(entry domain.CacheEntry, now time.Time) bool {
	if entry.LastError == nil || entry.Failures == 0 {
		return false
	}
	return now.Sub(entry.LastAttempt) < c.Backoff(entry.Failures)
}

// fetch runs one provider fetch for key and persists the outcome. It runs
// detached from any caller so that abandoned waits still fill the cache.
func (c *Coordinator) fetch(key domain.CacheKey) domain.CacheEntry {
	c.mu.Lock()
	c.fetching[key] = true
	c.mu.Unlock()
	c.opts.Metrics.inFlight.Inc()
	defer func() {
		c.opts.Metrics.inFlight.Dec()
		c.mu.Lock()
		delete(c.fetching, key)
		c.mu.Unlock()
	}()

	p, _ := c.providers.Provider(key.ProviderID)
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout(key.ProviderID))
	defer cancel()

	prev, hadPrev := c.store.GetEntry(key)
	entry := prev
	if !hadPrev {
		entry = domain.CacheEntry{Key: key}
	}
	started := c.opts.Now()
	entry.Key = key
	entry.TTL = c.opts.TTL(key.ProviderID)
	entry.LastAttempt = started

	req := domain.FetchRequest{
		Source: domain.Source{ProviderID: key.ProviderID, ID: key.SourceID, Name: sourceName(prev)},
		Range:  domain.SingleDay(key.Day),
	}
	if prev.HasSucceeded() {
		req.ETag = prev.ETag
	}

	begin := time.Now()
	res, err := p.Fetch(ctx, req)
	if err == nil && ctx.Err() != nil {
		err = domain.NewProviderError(domain.ClassTransient, key.ProviderID, "fetch", ctx.Err())
	}
	c.opts.Metrics.fetchDuration.WithLabelValues(string(key.ProviderID)).Observe(time.Since(begin).Seconds())

	changed := false
	switch {
	case err != nil:
		c.recordFailure(&entry, err, started)

	case res.NotModified:
		entry.LastSuccess = started
		entry.LastError = nil
		entry.Failures = 0
		if res.ETag != "" {
			entry.ETag = res.ETag
		}
		c.opts.Metrics.fetches.WithLabelValues(string(key.ProviderID), "not_modified").Inc()

	default:
		result := c.normalizer.Batch(key.ProviderID, res.Items)
		for reason, n := range result.Discards {
			c.opts.Metrics.discards.WithLabelValues(string(key.ProviderID), string(reason)).Add(float64(n))
		}
		if n := result.Discarded(); n > 0 {
			c.logger.Info("discarded schedule rows", "key", key.String(), "count", n, "reasons", result.Discards)
		}

		items := result.Items
		if items == nil {
			items = []domain.ScheduleItem{}
		}
		hash := contentHash(items)
		changed = hash != prev.ContentHash

		entry.Items = items
		entry.ContentHash = hash
		entry.ETag = res.ETag
		entry.Discarded = result.Discarded()
		entry.LastSuccess = started
		entry.LastError = nil
		entry.Failures = 0
		c.opts.Metrics.fetches.WithLabelValues(string(key.ProviderID), "success").Inc()
	}

	if err := c.store.PutEntry(entry); err != nil {
		c.logger.Error("failed to save schedule", "key", key.String(), "error", err)
	}
	c.logger.Debug("fetch settled", "key", key.String(), "items", len(entry.Items), "error", err)

	c.notify(Settlement{Entry: entry, Err: err, Changed: changed})
	return entry
}

// recordFailure annotates entry with err. Items of a previous success stay.
func (c *Coordinator) recordFailure(entry *domain.CacheEntry, err error, at time.Time) {
	class := domain.ClassOf(err)
	if errors.Is(err, context.DeadlineExceeded) {
		class = domain.ClassTransient
	}
	entry.LastError = &domain.EntryError{Class: class, Message: err.Error(), At: at}
	entry.Failures++
	if !entry.HasSucceeded() {
		entry.Items = []domain.ScheduleItem{}
	}

	c.opts.Metrics.fetches.WithLabelValues(string(entry.Key.ProviderID), string(class)).Inc()
	if class == domain.ClassParse {
		c.logger.Error("provider response changed shape", "key", entry.Key.String(), "error", err)
	} else {
		c.logger.Warn("fetch failed", "key", entry.Key.String(), "class", class, "failures", entry.Failures, "error", err)
	}
}

func (c *Coordinator) notify(s Settlement) {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	for _, fn := range c.observers {
		fn(s)
	}
}

// rejected is the entry returned for keys no provider can serve.
func rejected(key domain.CacheKey, err error, now time.Time) domain.CacheEntry {
	return domain.CacheEntry{
		Key:         key,
		Items:       []domain.ScheduleItem{},
		LastAttempt: now,
		LastError:   &domain.EntryError{Class: domain.ClassPermanent, Message: err.Error(), At: now},
	}
}

func sourceName(entry domain.CacheEntry) string {
	for _, item := range entry.Items {
		if item.SourceName != "" {
			return item.SourceName
		}
	}
	return ""
}

func contentHash(items []domain.ScheduleItem) string {
	data, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
