// Package provider assembles the fixed set of schedule providers.
package provider

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/programista/programista/internal/config"
	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/provider/fandom"
	"github.com/programista/programista/internal/provider/polskieradio"
	"github.com/programista/programista/internal/provider/teleman"
	"github.com/programista/programista/internal/provider/web"
	"github.com/programista/programista/internal/ratelimit"
)

// IDs lists every provider in display order.
var IDs = []domain.ProviderID{
	domain.ProviderTeleman,
	domain.ProviderTelemanA11y,
	domain.ProviderPolskieRadio,
	domain.ProviderFandom,
}

// Registry holds the enabled providers.
type Registry struct {
	providers []domain.Provider
	byID      map[domain.ProviderID]domain.Provider
}

// NewRegistry builds every enabled provider over one shared HTTP client.
func NewRegistry(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := ratelimit.New(0, 1)
	for _, id := range IDs {
		p := cfg.Provider(id)
		limiter.Configure(string(id), p.RPS, p.Burst)
	}
	wc := web.NewClient(logger,
		web.WithRateLimiter(limiter),
		web.WithUserAgent(cfg.Fetch.UserAgent),
	)

	var providers []domain.Provider
	for _, id := range IDs {
		p := cfg.Provider(id)
		if !p.Enabled {
			continue
		}
		switch id {
		case domain.ProviderTeleman:
			providers = append(providers, teleman.New(p.BaseURL, wc, logger))
		case domain.ProviderTelemanA11y:
			providers = append(providers, teleman.NewAccessibility(p.BaseURL, wc, logger))
		case domain.ProviderPolskieRadio:
			providers = append(providers, polskieradio.New(p.BaseURL, wc, logger))
		case domain.ProviderFandom:
			providers = append(providers, fandom.New(p.BaseURL, wc, logger))
		default:
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, id)
		}
	}
	return NewStaticRegistry(providers...), nil
}

// NewStaticRegistry wraps already built providers. Providers whose id is not
// one of IDs, and repeated ids, are left out.
func NewStaticRegistry(providers ...domain.Provider) *Registry {
	r := &Registry{byID: make(map[domain.ProviderID]domain.Provider)}
	for _, p := range providers {
		if !slices.Contains(IDs, p.ID()) {
			continue
		}
		if _, dup := r.byID[p.ID()]; dup {
			continue
		}
		r.providers = append(r.providers, p)
		r.byID[p.ID()] = p
	}
	return r
}

// Provider returns the provider with the given id.
func (r *Registry) Provider(id domain.ProviderID) (domain.Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Providers returns the enabled providers in display order.
func (r *Registry) Providers() []domain.Provider {
	out := make([]domain.Provider, len(r.providers))
	copy(out, r.providers)
	return out
}
