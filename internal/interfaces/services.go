// Package interfaces defines service contracts for etfwatch
package interfaces

import (
	"context"

	"github.com/yhlin/etfwatch/internal/models"
)

// HoldingsService manages disclosure ingestion and holdings queries.
type HoldingsService interface {
	// IngestFund fetches, normalizes, diffs and reconciles one fund. An
	// empty date takes the disclosure's own date; an empty disclosure never
	// overwrites stored data.
	IngestFund(ctx context.Context, fundCode, date string) (*models.IngestResult, error)

	// IngestAll runs IngestFund for every registry fund, continuing past
	// per-fund failures
	IngestAll(ctx context.Context, date string) []models.IngestResult

	// Funds returns the monitored fund registry
	Funds() []models.Fund

	// HoldingsOnDay returns a fund-day snapshot joined with its changes.
	// An empty date selects the fund's latest disclosure day.
	HoldingsOnDay(ctx context.Context, fundCode, date string) ([]models.HoldingWithChange, string, error)

	// ChangesOnDay returns a fund-day's change log, optionally type-filtered
	ChangesOnDay(ctx context.Context, fundCode, date string, types ...string) ([]models.Change, error)

	// NewPositions returns every fund's NEW entries for the date
	NewPositions(ctx context.Context, date string) ([]models.Change, error)

	// ReducedPositions returns every fund's DECREASED and REMOVED entries
	ReducedPositions(ctx context.Context, date string) ([]models.Change, error)

	// CrossFundHoldings returns instruments held by two or more funds
	CrossFundHoldings(ctx context.Context, date string) ([]models.CrossHolding, error)

	// AvailableDates returns disclosure dates, newest first
	AvailableDates(ctx context.Context, fundCode string) ([]string, error)

	// WeightChart renders a PNG bar chart of the fund-day's top weights
	WeightChart(ctx context.Context, fundCode, date string, top int) ([]byte, error)
}

// WarrantService manages warrant scraping and analytics.
type WarrantService interface {
	// Scrape fetches the ranking pages for the date and stores the result.
	// An empty scrape never overwrites stored data.
	Scrape(ctx context.Context, date string, pages, sortType int) (*models.WarrantScrapeResult, error)

	// Rankings returns stored warrants for a date, sorted and limited
	Rankings(ctx context.Context, opts RankingOptions) ([]models.Warrant, error)

	// UnderlyingSummary returns the per-underlying aggregates for a date
	UnderlyingSummary(ctx context.Context, date, warrantType string) ([]models.WarrantSummary, error)

	// Stats returns day-level statistics for a date
	Stats(ctx context.Context, date string) (*models.WarrantStats, error)

	// Search matches stored warrants by code, name or underlying
	Search(ctx context.Context, query, date string) ([]models.Warrant, error)

	// AnalyzeVolume compares the date's volumes per underlying against the
	// previous five trading days, split by warrant type
	AnalyzeVolume(ctx context.Context, date string) (*models.VolumeReport, error)

	// AvailableDates returns scraped trade dates, newest first
	AvailableDates(ctx context.Context) ([]string, error)
}
