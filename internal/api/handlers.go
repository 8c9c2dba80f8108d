package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/feedback"
)

type providerResponse struct {
	ID   domain.ProviderID `json:"id"`
	Name string            `json:"name"`
	Kind domain.Kind       `json:"kind"`
}

type scheduleResponse struct {
	Key         domain.CacheKey       `json:"key"`
	Items       []domain.ScheduleItem `json:"items"`
	LastSuccess time.Time             `json:"last_success,omitzero"`
	Fresh       bool                  `json:"fresh"`
	Note        string                `json:"note,omitempty"`
	Error       *domain.EntryError    `json:"error,omitempty"`
	Favorite    bool                  `json:"favorite"`
}

type detailsResponse struct {
	Text string `json:"text"`
}

type favoriteChange struct {
	Favorite domain.FavoriteRef `json:"favorite"`
	Added    bool               `json:"added"`
}

type feedbackRequest struct {
	Kind        feedback.Kind `json:"kind"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Email       string        `json:"email"`
	AttachLog   bool          `json:"attach_log"`
}

type feedbackResponse struct {
	IssueURL string `json:"issue_url,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	providers := s.deps.Coordinator.Providers()
	out := make([]providerResponse, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerResponse{ID: p.ID(), Name: p.Name(), Kind: p.Kind()})
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

// handleListSources returns a provider's catalog. Archive providers take the
// day in the "day" query parameter.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	id := domain.ProviderID(chi.URLParam(r, "id"))
	var day domain.Date
	if raw := r.URL.Query().Get("day"); raw != "" {
		d, err := s.parseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), s.logger)
			return
		}
		day = d
	}

	sources, err := s.deps.Coordinator.Sources(r.Context(), id, day)
	if err != nil {
		handleError(w, err, s.logger)
		return
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	writeJSON(w, http.StatusOK, sources, s.logger)
}

// handleGetSchedule resolves one day of one source. "force=true" skips the
// freshness check.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	day, err := s.parseDay(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	key := domain.CacheKey{
		ProviderID: domain.ProviderID(chi.URLParam(r, "provider")),
		SourceID:   domain.SourceID(chi.URLParam(r, "source")),
		Day:        day,
	}
	if !s.knownProvider(key.ProviderID) {
		writeError(w, http.StatusNotFound, "unknown provider "+string(key.ProviderID), s.logger)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	entry, err := s.deps.Coordinator.Resolve(r.Context(), key, force)
	if err != nil {
		// the caller went away; the fetch carries on without it
		return
	}

	now := time.Now()
	items := entry.Items
	if items == nil {
		items = []domain.ScheduleItem{}
	}
	writeJSON(w, http.StatusOK, scheduleResponse{
		Key:         entry.Key,
		Items:       items,
		LastSuccess: entry.LastSuccess,
		Fresh:       entry.IsFresh(now),
		Note:        entry.Note(now),
		Error:       entry.LastError,
		Favorite:    s.isFavorite(key),
	}, s.logger)
}

func (s *Server) isFavorite(key domain.CacheKey) bool {
	if s.deps.Favorites == nil {
		return false
	}
	return s.deps.Favorites.Contains(domain.FavoriteRef{
		Kind:       key.ProviderID.Kind(),
		ProviderID: key.ProviderID,
		SourceID:   key.SourceID,
	})
}

// handleGetDetails asks the provider first and the remote service second.
func (s *Server) handleGetDetails(w http.ResponseWriter, r *http.Request) {
	provider := domain.ProviderID(chi.URLParam(r, "provider"))
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		writeError(w, http.StatusBadRequest, "missing ref", s.logger)
		return
	}

	text, err := s.deps.Coordinator.Details(r.Context(), provider, ref)
	if err != nil {
		s.logger.Debug("provider details failed", "provider", provider, "error", err)
	}
	if text == "" && s.deps.RemoteDetails != nil {
		remote, rerr := s.deps.RemoteDetails.Details(r.Context(), provider, ref)
		if rerr == nil {
			text, err = remote, nil
		}
	}
	if text == "" && err != nil {
		handleError(w, err, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, detailsResponse{Text: text}, s.logger)
}

// handleSearch takes q plus repeatable provider, source and kind filters and
// optional from/to days.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := domain.ScopeFilter{}
	for _, v := range q["provider"] {
		scope.Providers = append(scope.Providers, domain.ProviderID(v))
	}
	for _, v := range q["source"] {
		scope.Sources = append(scope.Sources, domain.SourceID(v))
	}
	for _, v := range q["kind"] {
		scope.Kinds = append(scope.Kinds, domain.Kind(v))
	}

	var dates domain.DateFilter
	for name, dst := range map[string]*domain.Date{"from": &dates.From, "to": &dates.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		d, err := s.parseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), s.logger)
			return
		}
		*dst = d
	}

	writeJSON(w, http.StatusOK, s.deps.Search.Search(r.Context(), q.Get("q"), scope, dates), s.logger)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, _ *http.Request) {
	favs, err := s.deps.Favorites.List()
	if err != nil {
		handleError(w, err, s.logger)
		return
	}
	if favs == nil {
		favs = []domain.FavoriteRef{}
	}
	writeJSON(w, http.StatusOK, favs, s.logger)
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var ref domain.FavoriteRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", s.logger)
		return
	}
	if ref.Kind == "" {
		ref.Kind = ref.ProviderID.Kind()
	}
	if err := ref.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	added, err := s.deps.Favorites.Add(r.Context(), ref)
	if err != nil {
		handleError(w, err, s.logger)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, favoriteChange{Favorite: ref, Added: added}, s.logger)
}

// handleRemoveFavorite takes the favorite in the provider and source query
// parameters; kind defaults to the provider's.
func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := domain.FavoriteRef{
		Kind:       domain.Kind(q.Get("kind")),
		ProviderID: domain.ProviderID(q.Get("provider")),
		SourceID:   domain.SourceID(q.Get("source")),
	}
	if ref.Kind == "" {
		ref.Kind = ref.ProviderID.Kind()
	}
	if err := ref.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	if err := s.deps.Favorites.Remove(ref); err != nil {
		handleError(w, err, s.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Feedback == nil {
		handleError(w, feedback.ErrNotConfigured, s.logger)
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", s.logger)
		return
	}

	report := feedback.Report{
		Kind:        req.Kind,
		Title:       req.Title,
		Description: req.Description,
		Email:       req.Email,
	}
	if req.AttachLog {
		report.LogPath = s.deps.LogPath
	}

	res, err := s.deps.Feedback.Submit(r.Context(), report)
	if err != nil {
		var se *feedback.StatusError
		if errors.As(err, &se) {
			writeError(w, http.StatusBadGateway, se.Error(), s.logger)
			return
		}
		handleError(w, err, s.logger)
		return
	}
	writeJSON(w, http.StatusCreated, feedbackResponse{IssueURL: res.IssueURL}, s.logger)
}

func (s *Server) knownProvider(id domain.ProviderID) bool {
	for _, p := range s.deps.Coordinator.Providers() {
		if p.ID() == id {
			return true
		}
	}
	return false
}

// parseDay accepts YYYY-MM-DD, "today" and "tomorrow".
func (s *Server) parseDay(raw string) (domain.Date, error) {
	today := domain.DateOf(time.Now().In(s.deps.Location))
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDays(1), nil
	}
	return domain.ParseDate(raw)
}
