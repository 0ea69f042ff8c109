// Package interfaces defines service contracts for etfwatch
package interfaces

import (
	"context"

	"github.com/yhlin/etfwatch/internal/models"
)

// StorageManager coordinates the relational stores over the backend selected
// at startup (embedded SQLite or networked PostgreSQL). The backend is fixed
// for the process lifetime; there is no fallback between backends.
type StorageManager interface {
	// Holdings returns the daily snapshot store
	Holdings() HoldingStore

	// Changes returns the change log store
	Changes() ChangeStore

	// Warrants returns the warrant scrape store
	Warrants() WarrantStore

	// ReconcileDay replaces a fund-day's snapshot and change log in one
	// transaction. An error leaves both tables as they were.
	ReconcileDay(ctx context.Context, fundCode, date string, holdings []models.Holding, changes []models.Change) error

	// Ping verifies the backend connection
	Ping(ctx context.Context) error

	// Backend returns the configured backend identifier
	Backend() string

	// Close releases the database connection
	Close() error
}

// HoldingStore persists daily disclosure snapshots.
type HoldingStore interface {
	// ReplaceDay deletes and rewrites the fund's snapshot for one date
	ReplaceDay(ctx context.Context, fundCode, date string, holdings []models.Holding) error

	// GetDay returns the fund's snapshot for one date, weight descending
	GetDay(ctx context.Context, fundCode, date string) ([]models.Holding, error)

	// LatestPriorDate returns the most recent disclosure date strictly
	// before the given date, or "" when no prior disclosure exists
	LatestPriorDate(ctx context.Context, fundCode, before string) (string, error)

	// LatestDate returns the fund's most recent disclosure date, or ""
	LatestDate(ctx context.Context, fundCode string) (string, error)

	// AvailableDates returns distinct disclosure dates, newest first.
	// An empty fundCode spans all funds.
	AvailableDates(ctx context.Context, fundCode string) ([]string, error)

	// HoldingsWithChanges returns a fund-day snapshot left-joined against
	// its change log
	HoldingsWithChanges(ctx context.Context, fundCode, date string) ([]models.HoldingWithChange, error)

	// CrossFundHoldings returns instruments held by two or more funds on
	// the date, with per-fund detail
	CrossFundHoldings(ctx context.Context, date string) ([]models.CrossHolding, error)
}

// ChangeStore persists detected position changes.
type ChangeStore interface {
	// ReplaceDay deletes and rewrites the fund's change log for one date
	ReplaceDay(ctx context.Context, fundCode, date string, changes []models.Change) error

	// GetByDay returns a fund-day's changes, optionally filtered by type
	GetByDay(ctx context.Context, fundCode, date string, types ...string) ([]models.Change, error)

	// NewOnDay returns all funds' NEW entries for the date
	NewOnDay(ctx context.Context, date string) ([]models.Change, error)

	// DecreasedOnDay returns all funds' DECREASED and REMOVED entries for
	// the date, largest reduction first
	DecreasedOnDay(ctx context.Context, date string) ([]models.Change, error)
}

// RankingOptions filters and orders a warrant ranking query.
type RankingOptions struct {
	Date        string
	WarrantType string // 認購, 認售 or "" for both
	SortBy      string // volume (default), implied_volatility, change_percent, close_price
	Limit       int
}

// WarrantStore persists daily warrant scrapes and their aggregates.
type WarrantStore interface {
	// ReplaceDay deletes and rewrites the date's warrants and refreshes the
	// per-underlying summary, all in one transaction
	ReplaceDay(ctx context.Context, date string, warrants []models.Warrant) error

	// Rankings returns the date's warrants ordered by the requested key
	Rankings(ctx context.Context, opts RankingOptions) ([]models.Warrant, error)

	// UnderlyingSummary returns the date's per-underlying aggregates,
	// total volume descending
	UnderlyingSummary(ctx context.Context, date, warrantType string) ([]models.WarrantSummary, error)

	// Stats returns day-level scrape statistics
	Stats(ctx context.Context, date string) (*models.WarrantStats, error)

	// Search matches warrant code, name or underlying, case-insensitive
	Search(ctx context.Context, query, date string) ([]models.Warrant, error)

	// AvailableDates returns distinct trade dates, newest first
	AvailableDates(ctx context.Context) ([]string, error)

	// PriorDates returns up to n distinct trade dates strictly before the
	// given date, newest first
	PriorDates(ctx context.Context, before string, n int) ([]string, error)

	// VolumeByUnderlying sums the date's volume per underlying and type
	VolumeByUnderlying(ctx context.Context, date, warrantType string) ([]models.UnderlyingVolume, error)
}
