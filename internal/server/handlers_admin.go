package server

import (
	"errors"
	"net/http"

	"github.com/yhlin/etfwatch/internal/services/holdings"
	"github.com/yhlin/etfwatch/internal/services/warrants"
)

// handleAdminIngestHoldings handles POST /api/admin/ingest/holdings.
// An optional fund parameter restricts the ingest to one fund; otherwise
// every registry fund is ingested.
func (s *Server) handleAdminIngestHoldings(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	q := r.URL.Query()
	date := q.Get("date")
	fund := q.Get("fund")

	if fund != "" {
		result, err := s.app.HoldingsService.IngestFund(r.Context(), fund, date)
		if err != nil {
			switch {
			case errors.Is(err, holdings.ErrUnknownFund):
				WriteError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, holdings.ErrEmptyDisclosure):
				WriteError(w, http.StatusBadGateway, err.Error())
			default:
				s.logger.Error().Err(err).Str("fund", fund).Msg("Manual ingest failed")
				WriteError(w, http.StatusInternalServerError, "Ingest failed")
			}
			return
		}
		WriteJSON(w, http.StatusOK, result)
		return
	}

	results := s.app.HoldingsService.IngestAll(r.Context(), date)
	succeeded := 0
	for _, res := range results {
		if res.Error == "" {
			succeeded++
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"results":   results,
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

// handleAdminIngestWarrants handles POST /api/admin/ingest/warrants.
// Pages and sort default to the configured scrape settings.
func (s *Server) handleAdminIngestWarrants(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	date := r.URL.Query().Get("date")
	pages := queryInt(r, "pages", s.app.Config.Clients.FBS.Pages)
	sortType := queryInt(r, "sort", s.app.Config.Clients.FBS.SortType)

	result, err := s.app.WarrantService.Scrape(r.Context(), date, pages, sortType)
	if err != nil {
		if errors.Is(err, warrants.ErrEmptyScrape) {
			WriteError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("Manual warrant scrape failed")
		WriteError(w, http.StatusInternalServerError, "Scrape failed")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}
