package app

import (
	"context"
	"os"
	"time"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
)

// StartBootstrapIngest launches the first-boot ingest goroutine. It runs
// one holdings ingest and one warrant scrape when the respective stores
// are still empty, so a fresh install serves data without waiting for the
// first scheduler tick.
func (a *App) StartBootstrapIngest() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	a.bootstrapCancel = cancel
	go func() {
		defer cancel()
		bootstrapIngest(ctx, a.HoldingsService, a.WarrantService, a.Storage, a.Config, a.Logger)
	}()
}

// bootstrapIngest populates empty stores on startup.
func bootstrapIngest(ctx context.Context, holdingsService interfaces.HoldingsService, warrantService interfaces.WarrantService, storage interfaces.StorageManager, config *common.Config, logger *common.Logger) {
	if os.Getenv("ETFWATCH_BOOTSTRAP") == "off" {
		logger.Info().Msg("Bootstrap ingest: disabled via ETFWATCH_BOOTSTRAP=off")
		return
	}

	start := time.Now()

	dates, err := storage.Holdings().AvailableDates(ctx, "")
	if err != nil {
		logger.Warn().Err(err).Msg("Bootstrap ingest: date probe failed, skipping")
		return
	}
	if len(dates) > 0 {
		logger.Info().Str("latest", dates[0]).Msg("Bootstrap ingest: holdings already populated, skipping")
	} else {
		results := holdingsService.IngestAll(ctx, "")
		succeeded := 0
		for _, r := range results {
			if r.Error == "" {
				succeeded++
			}
		}
		logger.Info().
			Int("funds", len(results)).
			Int("succeeded", succeeded).
			Msg("Bootstrap ingest: holdings populated")
	}

	warrantDates, err := storage.Warrants().AvailableDates(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Bootstrap ingest: warrant date probe failed, skipping")
		return
	}
	if len(warrantDates) > 0 {
		logger.Info().Str("latest", warrantDates[0]).Msg("Bootstrap ingest: warrants already populated, skipping")
	} else {
		result, err := warrantService.Scrape(ctx, "", config.Clients.FBS.Pages, config.Clients.FBS.SortType)
		if err != nil {
			logger.Warn().Err(err).Msg("Bootstrap ingest: warrant scrape failed")
		} else {
			logger.Info().Int("warrants", result.Warrants).Msg("Bootstrap ingest: warrants populated")
		}
	}

	logger.Info().Dur("elapsed", time.Since(start)).Msg("Bootstrap ingest: complete")
}
