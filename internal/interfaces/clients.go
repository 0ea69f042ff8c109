// Package interfaces defines service contracts for etfwatch
package interfaces

import (
	"context"

	"github.com/yhlin/etfwatch/internal/models"
)

// DisclosureClient fetches raw fund holding disclosures.
type DisclosureClient interface {
	// GetHoldings retrieves the current disclosure payload for a fund
	GetHoldings(ctx context.Context, fundCode string) (*models.DtnoData, error)
}

// WarrantClient fetches ranked warrant quote pages.
type WarrantClient interface {
	// FetchRankings scrapes the given number of ranking pages and returns
	// the parsed warrants with TradeDate set to date. Duplicate warrant
	// codes across pages are dropped, first occurrence wins.
	FetchRankings(ctx context.Context, date string, pages, sortType int) ([]models.Warrant, error)
}
