package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/programista/programista/internal/domain"
	"golang.org/x/sync/errgroup"
)

// SyncOptions selects what a full sync downloads.
type SyncOptions struct {
	// Providers to sync, in order. Empty means every registered provider.
	Providers []domain.ProviderID
	// DaysAhead is how many days after today are fetched for current schedules.
	DaysAhead int
	// ArchiveDays are the days fetched from archive providers. Archives are
	// skipped when empty.
	ArchiveDays  []domain.Date
	ForceRefresh bool
	Concurrency  int
	Location     *time.Location
}

// Syncer walks every source of every provider and resolves each day through
// the coordinator, reporting progress stage by stage. One stage per provider.
type Syncer struct {
	coord  *Coordinator
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewSyncer creates a syncer.
func NewSyncer(coord *Coordinator, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{coord: coord, logger: logger}
}

// ErrSyncRunning is returned when a sync is started while another runs.
var ErrSyncRunning = errors.New("a sync is already running")

// Running reports whether a sync is in progress.
func (s *Syncer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run performs a full sync. Cancelling ctx stops it between keys; fetches
// already started still complete and fill the cache. The final progress
// update has Finished or Cancelled set.
func (s *Syncer) Run(ctx context.Context, opts SyncOptions, observer domain.SyncObserver) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSyncRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if observer == nil {
		observer = domain.NoOpObserver{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	providers := s.selected(opts.Providers)
	var errs atomic.Int64
	stage := ""
	for _, p := range providers {
		if ctx.Err() != nil {
			break
		}
		stage = string(p.Kind())
		if err := s.runStage(ctx, p, opts, &errs, observer); err != nil && ctx.Err() == nil {
			s.logger.Warn("sync stage failed", "provider", p.ID(), "error", err)
		}
	}

	final := domain.SyncProgress{Stage: stage, Errors: int(errs.Load())}
	if ctx.Err() != nil {
		final.Cancelled = true
		final.Message = "cancelled"
	} else {
		final.Finished = true
		final.Message = "done"
	}
	observer.OnProgress(final)
	s.logger.Info("sync finished", "errors", final.Errors, "cancelled", final.Cancelled)
	if final.Cancelled {
		return ctx.Err()
	}
	return nil
}

func (s *Syncer) selected(ids []domain.ProviderID) []domain.Provider {
	if len(ids) == 0 {
		return s.coord.Providers()
	}
	var out []domain.Provider
	for _, id := range ids {
		if p, ok := s.coord.providers.Provider(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// runStage syncs one provider.
func (s *Syncer) runStage(ctx context.Context, p domain.Provider, opts SyncOptions, errs *atomic.Int64, observer domain.SyncObserver) error {
	stage := string(p.Kind())
	report := func(done, total int, msg string) {
		observer.OnProgress(domain.SyncProgress{Stage: stage, Done: done, Total: total, Errors: int(errs.Load()), Message: msg})
	}
	report(0, 0, "listing sources")

	keys, err := s.stageKeys(ctx, p, opts)
	if err != nil {
		errs.Add(1)
		report(0, 0, fmt.Sprintf("listing failed: %v", err))
		return err
	}

	total := len(keys)
	var done atomic.Int64
	report(0, total, "downloading schedules")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, k := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			entry, err := s.coord.Resolve(gctx, k.key, opts.ForceRefresh)
			if err != nil {
				return err
			}
			if entry.LastError != nil {
				errs.Add(1)
			}
			report(int(done.Add(1)), total, fmt.Sprintf("%s %s", k.name, k.key.Day))
			return nil
		})
	}
	return g.Wait()
}

type syncKey struct {
	key  domain.CacheKey
	name string
}

// stageKeys lists the keys of one provider: every source for today onwards,
// or for archives every source of each requested day.
func (s *Syncer) stageKeys(ctx context.Context, p domain.Provider, opts SyncOptions) ([]syncKey, error) {
	var keys []syncKey
	if _, daily := p.(domain.DaySourceLister); daily || p.Kind() == domain.KindArchive {
		for _, day := range opts.ArchiveDays {
			sources, err := s.coord.Sources(ctx, p.ID(), day)
			if err != nil {
				return keys, err
			}
			for _, src := range sources {
				keys = append(keys, syncKey{key: domain.CacheKey{ProviderID: p.ID(), SourceID: src.ID, Day: day}, name: src.Name})
			}
		}
		return keys, nil
	}

	sources, err := s.coord.Sources(ctx, p.ID(), "")
	if err != nil {
		return nil, err
	}
	today := domain.DateOf(s.coord.opts.Now().In(opts.Location))
	for _, src := range sources {
		for i := 0; i <= opts.DaysAhead; i++ {
			keys = append(keys, syncKey{key: domain.CacheKey{ProviderID: p.ID(), SourceID: src.ID, Day: today.AddDays(i)}, name: src.Name})
		}
	}
	return keys, nil
}
