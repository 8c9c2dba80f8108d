package schedule

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/programista/programista/internal/domain"
)

type catalogEntry struct {
	sources []domain.Source
	fetched time.Time
}

// catalogCache keeps provider source lists in memory for one TTL.
type catalogCache struct {
	mu      sync.Mutex
	entries map[string]catalogEntry
}

func (cc *catalogCache) get(key string, ttl time.Duration, now time.Time) ([]domain.Source, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	e, ok := cc.entries[key]
	if !ok || now.Sub(e.fetched) >= ttl {
		return nil, false
	}
	return slices.Clone(e.sources), true
}

func (cc *catalogCache) put(key string, sources []domain.Source, now time.Time) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.entries[key] = catalogEntry{sources: sources, fetched: now}
}

// Providers returns the registered providers.
func (c *Coordinator) Providers() []domain.Provider {
	return c.providers.Providers()
}

// Sources returns the scope catalog of a provider. Providers whose catalog
// changes per day are asked for day; others ignore it. Like fetches, a listing
// already started outlives a caller that stops waiting.
func (c *Coordinator) Sources(ctx context.Context, id domain.ProviderID, day domain.Date) ([]domain.Source, error) {
	p, ok := c.providers.Provider(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, id)
	}

	lister, daily := p.(domain.DaySourceLister)
	key := string(id)
	if daily && day != "" {
		key += ":" + string(day)
	}
	now := c.opts.Now()
	if sources, ok := c.catalogs.get(key, c.opts.TTL(id), now); ok {
		return sources, nil
	}

	ch := c.group.DoChan("sources:"+key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout(id))
		defer cancel()

		var sources []domain.Source
		var err error
		if daily && day != "" {
			sources, err = lister.SourcesForDay(fctx, day)
		} else {
			sources, err = p.Sources(fctx)
		}
		if err != nil {
			c.logger.Warn("failed to list sources", "provider", id, "day", day, "error", err)
			return nil, err
		}
		c.catalogs.put(key, sources, now)
		return sources, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]domain.Source)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Details asks the provider for the long description of an item.
func (c *Coordinator) Details(ctx context.Context, id domain.ProviderID, ref string) (string, error) {
	p, ok := c.providers.Provider(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownProvider, id)
	}
	dp, ok := p.(domain.DetailsProvider)
	if !ok || ref == "" {
		return "", nil
	}
	fctx, cancel := context.WithTimeout(ctx, c.opts.Timeout(id))
	defer cancel()
	return dp.Details(fctx, ref)
}
