package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/schedule"
)

// Indexer rebuilds an Index from the store in the background. Requests made
// while a rebuild is pending or running collapse into one more rebuild.
type Indexer struct {
	index   *Index
	store   domain.ScheduleStore
	logger  *slog.Logger
	pending chan struct{}

	retentionDays int
	loc           *time.Location
	now           func() time.Time
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithRetention leaves out days more than days before today in loc. The
// cutoff is recomputed on every rebuild.
func WithRetention(days int, loc *time.Location) IndexerOption {
	return func(x *Indexer) {
		x.retentionDays = days
		x.loc = loc
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) IndexerOption {
	return func(x *Indexer) {
		x.now = now
	}
}

// NewIndexer creates an indexer over store.
func NewIndexer(index *Index, store domain.ScheduleStore, logger *slog.Logger, opts ...IndexerOption) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Indexer{
		index:   index,
		store:   store,
		logger:  logger,
		pending: make(chan struct{}, 1),
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.loc == nil {
		x.loc = time.Local
	}
	return x
}

// Watch requests a rebuild whenever a fetch changes cached items. The
// returned func stops watching.
func (x *Indexer) Watch(coord *schedule.Coordinator) func() {
	return coord.OnSettled(func(s schedule.Settlement) {
		if s.Changed {
			x.Request()
		}
	})
}

// Request schedules a rebuild without waiting for it.
func (x *Indexer) Request() {
	select {
	case x.pending <- struct{}{}:
	default:
	}
}

// Run rebuilds once and then on every request until ctx ends.
func (x *Indexer) Run(ctx context.Context) {
	x.rebuild()
	for {
		select {
		case <-ctx.Done():
			return
		case <-x.pending:
			x.rebuild()
		}
	}
}

// RebuildNow rebuilds synchronously.
func (x *Indexer) RebuildNow() error {
	entries, err := x.store.Entries()
	if err != nil {
		return err
	}
	if x.retentionDays > 0 {
		today := domain.DateOf(x.now().In(x.loc))
		x.index.Prune(today.AddDays(-x.retentionDays))
	}
	x.index.Rebuild(entries)
	return nil
}

func (x *Indexer) rebuild() {
	if err := x.RebuildNow(); err != nil {
		x.logger.Warn("search index rebuild failed", "error", err)
	}
}
