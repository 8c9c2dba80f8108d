package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/programista/programista/internal/api"
	"github.com/programista/programista/internal/config"
	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/favorites"
	"github.com/programista/programista/internal/feedback"
	"github.com/programista/programista/internal/hub"
	"github.com/programista/programista/internal/provider"
	"github.com/programista/programista/internal/schedule"
	"github.com/programista/programista/internal/search"
	"github.com/programista/programista/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"
)

// searchRetentionDays bounds how far back the local search index reaches.
const searchRetentionDays = 90

// app holds the wired engine shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	loc    *time.Location

	store     *store.Store
	metrics   *prometheus.Registry
	coord     *schedule.Coordinator
	index     *search.Index
	indexer   *search.Indexer
	search    *search.Service
	hub       *hub.Client
	favorites *favorites.Service
	feedback  *feedback.Client
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	loc, err := cfg.SourceLocation()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StorePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	registry, err := provider.NewRegistry(cfg, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create providers: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	coord := schedule.NewCoordinator(registry, st, schedule.Options{
		TTL:          cfg.TTL,
		Timeout:      func(id domain.ProviderID) time.Duration { return cfg.Provider(id).Timeout },
		RetryBackoff: cfg.Fetch.RetryBackoff,
		MaxBackoff:   cfg.Fetch.MaxBackoff,
		Location:     loc,
		Metrics:      schedule.NewMetrics(reg),
	}, logger)

	index := search.NewIndex(logger)
	indexer := search.NewIndexer(index, st, logger, search.WithRetention(searchRetentionDays, loc))

	a := &app{
		cfg:       cfg,
		logger:    logger,
		loc:       loc,
		store:     st,
		metrics:   reg,
		coord:     coord,
		index:     index,
		indexer:   indexer,
		favorites: favorites.NewService(st, coord, logger),
		feedback:  feedback.New(cfg.Feedback.URL, cfg.Feedback.AppToken, Version, logger),
	}

	// a nil *hub.Client must not reach search as a non-nil Remote
	var remote search.Remote
	if cfg.Hub.Enabled && cfg.Hub.BaseURL != "" {
		a.hub = hub.New(cfg.Hub.BaseURL, st, logger,
			hub.WithHTTPClient(&http.Client{Timeout: cfg.Hub.Timeout}),
			hub.WithAppVersion(Version),
			hub.WithUserAgent(cfg.Fetch.UserAgent),
			hub.WithRetryAfter(cfg.Hub.RetryAfter),
			hub.WithLocation(loc),
		)
		remote = a.hub
	}
	a.search = search.NewService(index, remote, logger)

	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}

// today returns the current broadcast day in the providers' zone.
func (a *app) today() domain.Date {
	return domain.DateOf(time.Now().In(a.loc))
}

// parseDay accepts YYYY-MM-DD, "today", "tomorrow" and "yesterday".
func (a *app) parseDay(raw string) (domain.Date, error) {
	switch raw {
	case "", "today":
		return a.today(), nil
	case "tomorrow":
		return a.today().AddDays(1), nil
	case "yesterday":
		return a.today().AddDays(-1), nil
	}
	return domain.ParseDate(raw)
}

// apiDeps assembles the HTTP bridge dependencies.
func (a *app) apiDeps() api.Deps {
	deps := api.Deps{
		Coordinator: a.coord,
		Search:      a.search,
		Favorites:   a.favorites,
		Feedback:    a.feedback,
		Gatherer:    a.metrics,
		Location:    a.loc,
		LogPath:     a.cfg.Logging.File,
	}
	if a.hub != nil {
		deps.RemoteDetails = a.hub
	}
	return deps
}

// interactive reports whether stdout is a terminal.
func interactive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// termWidth returns the terminal width, or 0 when unknown.
func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}
