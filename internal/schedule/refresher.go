package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/programista/programista/internal/domain"
	"golang.org/x/sync/errgroup"
)

// RefresherOptions configures background refresh of favorites.
type RefresherOptions struct {
	Interval     time.Duration
	DaysAhead    int
	RefreshAhead float64 // fraction of the TTL after which an entry is refreshed
	Concurrency  int
	Location     *time.Location
}

// Refresher keeps the schedules of favorite sources warm, refreshing each
// entry shortly before it goes stale. It goes through the coordinator, so a
// refresh and a user request for the same key share one fetch.
type Refresher struct {
	coord     *Coordinator
	favorites domain.FavoriteStore
	opts      RefresherOptions
	logger    *slog.Logger
}

// NewRefresher creates a refresher.
func NewRefresher(coord *Coordinator, favorites domain.FavoriteStore, opts RefresherOptions, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	if opts.RefreshAhead <= 0 || opts.RefreshAhead > 1 {
		opts.RefreshAhead = 0.8
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Refresher{coord: coord, favorites: favorites, opts: opts, logger: logger}
}

// Run refreshes once immediately and then on every interval until ctx ends.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		if n, err := r.RunOnce(ctx); err != nil {
			r.logger.Warn("favorites refresh stopped", "error", err)
		} else if n > 0 {
			r.logger.Info("refreshed favorite schedules", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce refreshes every due favorite key and returns how many were fetched.
func (r *Refresher) RunOnce(ctx context.Context) (int, error) {
	favs, err := r.favorites.GetFavorites()
	if err != nil {
		return 0, err
	}
	due := r.dueKeys(favs, r.coord.opts.Now())
	if len(due) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, d := range due {
		g.Go(func() error {
			_, err := r.coord.Resolve(gctx, d.key, d.force)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(due), nil
}

type dueKey struct {
	key   domain.CacheKey
	force bool
}

// dueKeys lists the favorite keys from today to DaysAhead that are missing or
// past RefreshAhead of their TTL and not backing off after a failure.
func (r *Refresher) dueKeys(favs []domain.FavoriteRef, now time.Time) []dueKey {
	today := domain.DateOf(now.In(r.opts.Location))
	var out []dueKey
	for _, fav := range favs {
		for i := 0; i <= r.opts.DaysAhead; i++ {
			key := fav.Key(today.AddDays(i))
			entry, ok := r.coord.Cached(key)
			switch {
			case !ok:
				out = append(out, dueKey{key: key})
			case r.coord.backingOff(entry, now):
				continue
			case !entry.HasSucceeded():
				out = append(out, dueKey{key: key})
			case entry.Age(now) >= time.Duration(float64(entry.TTL)*r.opts.RefreshAhead):
				// Still fresh entries need a forced resolve to reach the provider.
				out = append(out, dueKey{key: key, force: entry.IsFresh(now)})
			}
		}
	}
	return out
}
