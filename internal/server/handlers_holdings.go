package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/yhlin/etfwatch/internal/models"
	"github.com/yhlin/etfwatch/internal/services/holdings"
)

// handleFundList handles GET /api/funds.
func (s *Server) handleFundList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	funds := s.app.HoldingsService.Funds()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"funds": funds,
		"count": len(funds),
	})
}

// handleFundHoldings handles GET /api/funds/{code}/holdings.
// The date defaults to the fund's latest disclosure day.
func (s *Server) handleFundHoldings(w http.ResponseWriter, r *http.Request, code string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	date := r.URL.Query().Get("date")

	rows, resolved, err := s.app.HoldingsService.HoldingsOnDay(r.Context(), code, date)
	if err != nil {
		s.logger.Error().Err(err).Str("fund", code).Msg("Holdings query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load holdings")
		return
	}
	if rows == nil {
		rows = []models.HoldingWithChange{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"fund_code": code,
		"date":      resolved,
		"holdings":  rows,
		"count":     len(rows),
	})
}

// handleFundChanges handles GET /api/funds/{code}/changes.
// The type parameter accepts a comma-separated list of change types.
func (s *Server) handleFundChanges(w http.ResponseWriter, r *http.Request, code string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	date := r.URL.Query().Get("date")

	var types []string
	if t := r.URL.Query().Get("type"); t != "" {
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				types = append(types, strings.ToUpper(part))
			}
		}
	}

	changes, err := s.app.HoldingsService.ChangesOnDay(r.Context(), code, date, types...)
	if err != nil {
		s.logger.Error().Err(err).Str("fund", code).Msg("Changes query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load changes")
		return
	}
	if changes == nil {
		changes = []models.Change{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"fund_code": code,
		"changes":   changes,
		"count":     len(changes),
	})
}

// handleFundChart handles GET /api/funds/{code}/chart and responds with a
// PNG bar chart of the fund-day's top holdings by weight.
func (s *Server) handleFundChart(w http.ResponseWriter, r *http.Request, code string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	date := r.URL.Query().Get("date")
	top := queryInt(r, "top", 10)

	png, err := s.app.HoldingsService.WeightChart(r.Context(), code, date, top)
	if err != nil {
		if errors.Is(err, holdings.ErrNoData) {
			WriteError(w, http.StatusNotFound, "No disclosures stored for this fund")
			return
		}
		s.logger.Error().Err(err).Str("fund", code).Msg("Chart render failed")
		WriteError(w, http.StatusInternalServerError, "Failed to render chart")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleNewPositions handles GET /api/changes/new.
func (s *Server) handleNewPositions(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	date := r.URL.Query().Get("date")

	changes, err := s.app.HoldingsService.NewPositions(r.Context(), date)
	if err != nil {
		s.logger.Error().Err(err).Msg("New positions query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load new positions")
		return
	}
	if changes == nil {
		changes = []models.Change{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"changes": changes,
		"count":   len(changes),
	})
}

// handleReducedPositions handles GET /api/changes/decreased.
func (s *Server) handleReducedPositions(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	date := r.URL.Query().Get("date")

	changes, err := s.app.HoldingsService.ReducedPositions(r.Context(), date)
	if err != nil {
		s.logger.Error().Err(err).Msg("Reduced positions query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load reduced positions")
		return
	}
	if changes == nil {
		changes = []models.Change{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"changes": changes,
		"count":   len(changes),
	})
}

// handleCrossFundHoldings handles GET /api/holdings/cross and returns
// instruments held by two or more funds on the date.
func (s *Server) handleCrossFundHoldings(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	date := r.URL.Query().Get("date")

	cross, err := s.app.HoldingsService.CrossFundHoldings(r.Context(), date)
	if err != nil {
		s.logger.Error().Err(err).Msg("Cross-fund query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load cross-fund holdings")
		return
	}
	if cross == nil {
		cross = []models.CrossHolding{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"holdings": cross,
		"count":    len(cross),
	})
}

// handleDates handles GET /api/dates. An optional fund parameter scopes
// the dates to one fund.
func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	fund := r.URL.Query().Get("fund")

	dates, err := s.app.HoldingsService.AvailableDates(r.Context(), fund)
	if err != nil {
		s.logger.Error().Err(err).Msg("Dates query failed")
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
