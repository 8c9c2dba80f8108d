// Package api is the local HTTP bridge an out-of-process GUI uses to browse
// schedules, search, manage favorites and follow cache updates.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/favorites"
	"github.com/programista/programista/internal/feedback"
	"github.com/programista/programista/internal/schedule"
	"github.com/programista/programista/internal/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DetailsSource looks up long descriptions the provider itself cannot give.
type DetailsSource interface {
	Details(ctx context.Context, provider domain.ProviderID, ref string) (string, error)
}

// Deps are the services behind the routes. Feedback, RemoteDetails and
// Gatherer are optional.
type Deps struct {
	Coordinator   *schedule.Coordinator
	Search        *search.Service
	Favorites     *favorites.Service
	Feedback      *feedback.Client
	RemoteDetails DetailsSource
	Gatherer      prometheus.Gatherer
	Location      *time.Location // zone "today" is resolved in
	LogPath       string         // attached to bug reports on request
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	deps   Deps
	events *broker
	router *chi.Mux
	logger *slog.Logger
}

// NewServer creates a server with all routes configured. Close releases the
// settle subscription.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	s := &Server{
		deps:   deps,
		events: newBroker(logger),
		router: chi.NewRouter(),
		logger: logger,
	}
	s.events.unsubscribe = deps.Coordinator.OnSettled(s.events.publish)

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close disconnects event streams and stops listening for settlements.
func (s *Server) Close() {
	s.events.close()
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/v1", func(r chi.Router) {
		r.Route("/providers", func(r chi.Router) {
			r.Get("/", s.handleListProviders)
			r.Get("/{id}/sources", s.handleListSources)
		})

		r.Get("/schedule/{provider}/{source}/{day}", s.handleGetSchedule)
		r.Get("/details/{provider}", s.handleGetDetails)
		r.Get("/search", s.handleSearch)

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", s.handleListFavorites)
			r.Post("/", s.handleAddFavorite)
			r.Delete("/", s.handleRemoveFavorite)
		})

		r.Post("/feedback", s.handleFeedback)
		r.Get("/events", s.handleEvents)
	})
}

// requestLogger logs every request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
