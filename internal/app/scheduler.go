package app

import (
	"context"
	"time"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
)

// StartHoldingsScheduler launches the periodic disclosure ingest loop.
func (a *App) StartHoldingsScheduler() {
	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Holdings scheduler: disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.holdingsCancel = cancel
	go runHoldingsScheduler(ctx, a.HoldingsService, a.Logger, a.Config.Scheduler.GetHoldingsInterval())
}

// StartWarrantScheduler launches the periodic warrant scrape loop.
func (a *App) StartWarrantScheduler() {
	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Warrant scheduler: disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.warrantsCancel = cancel
	go runWarrantScheduler(ctx, a.WarrantService, a.Logger, a.Config.Scheduler.GetWarrantsInterval(), a.Config.Clients.FBS.Pages, a.Config.Clients.FBS.SortType)
}

// runHoldingsScheduler ingests every registry fund on a fixed interval.
func runHoldingsScheduler(ctx context.Context, service interfaces.HoldingsService, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Msg("Holdings scheduler: started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Holdings scheduler: stopped")
			return
		case <-ticker.C:
			ingestAllFunds(ctx, service, logger)
		}
	}
}

func ingestAllFunds(ctx context.Context, service interfaces.HoldingsService, logger *common.Logger) {
	start := time.Now()

	results := service.IngestAll(ctx, "")

	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		} else {
			succeeded++
		}
	}

	logger.Info().
		Int("succeeded", succeeded).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("Holdings scheduler: ingest complete")
}

// runWarrantScheduler scrapes the ranking pages on a fixed interval.
func runWarrantScheduler(ctx context.Context, service interfaces.WarrantService, logger *common.Logger, interval time.Duration, pages, sortType int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Msg("Warrant scheduler: started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Warrant scheduler: stopped")
			return
		case <-ticker.C:
			scrapeWarrants(ctx, service, logger, pages, sortType)
		}
	}
}

func scrapeWarrants(ctx context.Context, service interfaces.WarrantService, logger *common.Logger, pages, sortType int) {
	start := time.Now()

	result, err := service.Scrape(ctx, "", pages, sortType)
	if err != nil {
		logger.Warn().Err(err).Msg("Warrant scheduler: scrape failed")
		return
	}

	logger.Info().
		Str("date", result.Date).
		Int("warrants", result.Warrants).
		Dur("elapsed", time.Since(start)).
		Msg("Warrant scheduler: scrape complete")
}
