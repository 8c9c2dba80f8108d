// Package favorites keeps the user's pinned TV channels and radio stations
// and shows their schedules through the coordinator.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/programista/programista/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ErrNotFavorite is returned when removing a source that is not pinned.
var ErrNotFavorite = errors.New("not a favorite")

// Scheduler is the part of the coordinator favorites need.
type Scheduler interface {
	Resolve(ctx context.Context, key domain.CacheKey, forceRefresh bool) (domain.CacheEntry, error)
	Sources(ctx context.Context, id domain.ProviderID, day domain.Date) ([]domain.Source, error)
}

// Service orchestrates the favorites list and its schedules.
type Service struct {
	store     domain.FavoriteStore
	scheduler Scheduler
	logger    *slog.Logger

	// mu serializes read-modify-write cycles on the stored list.
	mu sync.Mutex
}

// NewService creates a new favorites service.
func NewService(store domain.FavoriteStore, scheduler Scheduler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, scheduler: scheduler, logger: logger}
}

// List returns the favorites in the order they were added.
func (s *Service) List() ([]domain.FavoriteRef, error) {
	favs, err := s.store.GetFavorites()
	if err != nil {
		s.logger.Error("failed to load favorites", "error", err)
		return nil, err
	}
	return favs, nil
}

// Add appends ref to the list. Adding a source already pinned keeps its
// position and reports false. A blank name is filled from the provider's
// catalog when it can be reached.
func (s *Service) Add(ctx context.Context, ref domain.FavoriteRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	if ref.Name == "" {
		ref.Name = s.sourceName(ctx, ref)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	favs, err := s.store.GetFavorites()
	if err != nil {
		return false, err
	}
	if slices.ContainsFunc(favs, ref.Same) {
		return false, nil
	}
	if err := s.store.SaveFavorites(append(favs, ref)); err != nil {
		s.logger.Error("failed to save favorites", "error", err)
		return false, err
	}
	s.logger.Info("added favorite", "provider", ref.ProviderID, "source", ref.SourceID)
	return true, nil
}

// Remove drops ref from the list.
func (s *Service) Remove(ref domain.FavoriteRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	favs, err := s.store.GetFavorites()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(favs, ref.Same)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFavorite, ref.ProviderID, ref.SourceID)
	}
	if err := s.store.SaveFavorites(slices.Delete(favs, i, i+1)); err != nil {
		s.logger.Error("failed to save favorites", "error", err)
		return err
	}
	s.logger.Info("removed favorite", "provider", ref.ProviderID, "source", ref.SourceID)
	return nil
}

// Contains reports whether ref is pinned.
func (s *Service) Contains(ref domain.FavoriteRef) bool {
	favs, err := s.store.GetFavorites()
	if err != nil {
		return false
	}
	return slices.ContainsFunc(favs, ref.Same)
}

// Schedule resolves the schedule of one favorite through its own provider.
// Items keep the provider and source they were fetched under.
func (s *Service) Schedule(ctx context.Context, ref domain.FavoriteRef, day domain.Date, force bool) (domain.CacheEntry, error) {
	if err := ref.Validate(); err != nil {
		return domain.CacheEntry{}, err
	}
	return s.scheduler.Resolve(ctx, ref.Key(day), force)
}

// Schedules resolves day for every favorite, at most limit at a time. The
// result follows the list order.
func (s *Service) Schedules(ctx context.Context, day domain.Date, force bool, limit int) ([]domain.CacheEntry, error) {
	favs, err := s.List()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.CacheEntry, len(favs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, ref := range favs {
		g.Go(func() error {
			entry, err := s.scheduler.Resolve(gctx, ref.Key(day), force)
			entries[i] = entry
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return entries, err
	}
	return entries, nil
}

func (s *Service) sourceName(ctx context.Context, ref domain.FavoriteRef) string {
	sources, err := s.scheduler.Sources(ctx, ref.ProviderID, "")
	if err != nil {
		s.logger.Debug("catalog unavailable, naming favorite by id", "provider", ref.ProviderID, "error", err)
		return string(ref.SourceID)
	}
	for _, src := range sources {
		if src.ID == ref.SourceID {
			return src.Name
		}
	}
	return string(ref.SourceID)
}
