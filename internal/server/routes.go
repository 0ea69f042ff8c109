package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/yhlin/etfwatch/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)

	// Auth
	mux.HandleFunc("/api/auth/login", s.handleAuthLogin)
	mux.HandleFunc("/api/auth/session", s.handleAuthSession)

	// Funds and holdings
	mux.HandleFunc("/api/funds/", s.routeFunds)
	mux.HandleFunc("/api/funds", s.handleFundList)
	mux.HandleFunc("/api/changes/new", s.handleNewPositions)
	mux.HandleFunc("/api/changes/decreased", s.handleReducedPositions)
	mux.HandleFunc("/api/holdings/cross", s.handleCrossFundHoldings)
	mux.HandleFunc("/api/dates", s.handleDates)

	// Warrants
	mux.HandleFunc("/api/warrants/summary", s.handleWarrantSummary)
	mux.HandleFunc("/api/warrants/stats", s.handleWarrantStats)
	mux.HandleFunc("/api/warrants/search", s.handleWarrantSearch)
	mux.HandleFunc("/api/warrants/volume", s.handleWarrantVolume)
	mux.HandleFunc("/api/warrants/dates", s.handleWarrantDates)
	mux.HandleFunc("/api/warrants", s.handleWarrantRankings)

	// Admin ingest triggers
	mux.HandleFunc("/api/admin/ingest/holdings", s.handleAdminIngestHoldings)
	mux.HandleFunc("/api/admin/ingest/warrants", s.handleAdminIngestWarrants)
}

// routeFunds dispatches /api/funds/{code}/* to the appropriate handler.
func (s *Server) routeFunds(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/funds/")
	if path == "" {
		s.handleFundList(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	code := parts[0]
	subpath := ""
	if len(parts) > 1 {
		subpath = parts[1]
	}

	switch subpath {
	case "", "holdings":
		s.handleFundHoldings(w, r, code)
	case "changes":
		s.handleFundChanges(w, r, code)
	case "chart":
		s.handleFundChart(w, r, code)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	cfg := s.app.Config

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":       cfg.Environment,
		"storage_backend":   cfg.Storage.Backend,
		"logging_level":     cfg.Logging.Level,
		"funds":             cfg.Funds,
		"scheduler_enabled": cfg.Scheduler.Enabled,
		"holdings_interval": cfg.Scheduler.HoldingsInterval,
		"warrants_interval": cfg.Scheduler.WarrantsInterval,
		"jwt_secret":        maskSecret(cfg.Auth.JWTSecret),
		"scheduler_token":   maskSecret(cfg.Auth.SchedulerToken),
	})
}
