package server

import (
	"net/http"
	"strings"

	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
)

// parseWarrantType normalizes the type query parameter. The API accepts
// the Chinese values used on the wire plus call/put aliases.
func parseWarrantType(v string) (string, bool) {
	switch strings.ToLower(v) {
	case "":
		return "", true
	case "call", models.WarrantTypeCall:
		return models.WarrantTypeCall, true
	case "put", models.WarrantTypePut:
		return models.WarrantTypePut, true
	}
	return "", false
}

// handleWarrantRankings handles GET /api/warrants.
func (s *Server) handleWarrantRankings(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	warrantType, ok := parseWarrantType(q.Get("type"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid warrant type")
		return
	}

	opts := interfaces.RankingOptions{
		Date:        q.Get("date"),
		WarrantType: warrantType,
		SortBy:      q.Get("sort"),
		Limit:       queryInt(r, "limit", 0),
	}

	warrants, err := s.app.WarrantService.Rankings(r.Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("Warrant rankings query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load warrants")
		return
	}
	if warrants == nil {
		warrants = []models.Warrant{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"warrants": warrants,
		"count":    len(warrants),
	})
}

// handleWarrantSummary handles GET /api/warrants/summary.
func (s *Server) handleWarrantSummary(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	warrantType, ok := parseWarrantType(q.Get("type"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid warrant type")
		return
	}

	summaries, err := s.app.WarrantService.UnderlyingSummary(r.Context(), q.Get("date"), warrantType)
	if err != nil {
		s.logger.Error().Err(err).Msg("Warrant summary query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load summary")
		return
	}
	if summaries == nil {
		summaries = []models.WarrantSummary{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summaries": summaries,
		"count":     len(summaries),
	})
}

// handleWarrantStats handles GET /api/warrants/stats.
func (s *Server) handleWarrantStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := s.app.WarrantService.Stats(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.logger.Error().Err(err).Msg("Warrant stats query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// handleWarrantSearch handles GET /api/warrants/search.
func (s *Server) handleWarrantSearch(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		WriteError(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}

	warrants, err := s.app.WarrantService.Search(r.Context(), query, q.Get("date"))
	if err != nil {
		s.logger.Error().Err(err).Msg("Warrant search failed")
		WriteError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	if warrants == nil {
		warrants = []models.Warrant{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"query":    query,
		"warrants": warrants,
		"count":    len(warrants),
	})
}

// handleWarrantVolume handles GET /api/warrants/volume and returns the
// volume surge report for the date.
func (s *Server) handleWarrantVolume(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	report, err := s.app.WarrantService.AnalyzeVolume(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.logger.Error().Err(err).Msg("Volume analysis failed")
		WriteError(w, http.StatusInternalServerError, "Failed to analyze volumes")
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// handleWarrantDates handles GET /api/warrants/dates.
func (s *Server) handleWarrantDates(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	dates, err := s.app.WarrantService.AvailableDates(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Warrant dates query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load dates")
		return
	}
	if dates == nil {
		dates = []string{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dates": dates,
		"count": len(dates),
	})
}
