// Package models defines data structures for etfwatch
package models

import "github.com/shopspring/decimal"

// DateFormat is the wire and storage format for disclosure dates.
const DateFormat = "2006-01-02"

// Holding is one constituent row of a fund's daily disclosure.
// A fund discloses at most one row per instrument per day.
type Holding struct {
	ID             uint            `gorm:"primarykey" json:"-"`
	FundCode       string          `gorm:"size:16;uniqueIndex:idx_fund_instrument_date;index:idx_fund_date" json:"fund_code"`
	InstrumentCode string          `gorm:"size:32;uniqueIndex:idx_fund_instrument_date" json:"instrument_code"`
	InstrumentName string          `gorm:"size:128" json:"instrument_name"`
	Weight         decimal.Decimal `gorm:"type:decimal(10,4)" json:"weight"`
	Quantity       int64           `json:"quantity"`
	Unit           string          `gorm:"size:16" json:"unit"`
	AsOfDate       string          `gorm:"size:10;uniqueIndex:idx_fund_instrument_date;index:idx_fund_date" json:"as_of_date"`
}

// TableName maps Holding to the snapshot table.
func (Holding) TableName() string { return "etf_holdings" }

// HoldingWithChange is a snapshot row joined against the day's change log.
// Change fields are zero-valued when the instrument had no quantity change.
type HoldingWithChange struct {
	FundCode       string          `json:"fund_code"`
	InstrumentCode string          `json:"instrument_code"`
	InstrumentName string          `json:"instrument_name"`
	Weight         decimal.Decimal `json:"weight"`
	Quantity       int64           `json:"quantity"`
	Unit           string          `json:"unit"`
	AsOfDate       string          `json:"as_of_date"`
	ChangeType     string          `json:"change_type,omitempty"`
	OldQuantity    int64           `json:"old_quantity"`
	QuantityDelta  int64           `json:"quantity_delta"`
}

// CrossHolding is an instrument held by two or more funds on the same date.
type CrossHolding struct {
	InstrumentCode string             `json:"instrument_code"`
	InstrumentName string             `json:"instrument_name"`
	FundCount      int                `json:"fund_count"`
	TotalQuantity  int64              `json:"total_quantity"`
	Funds          []CrossHoldingFund `json:"funds"`
}

// CrossHoldingFund is the per-fund detail of a cross holding, carrying
// that fund's change for the day. A fund without a change row reports
// old quantity equal to current and a zero delta.
type CrossHoldingFund struct {
	FundCode      string          `json:"fund_code"`
	FundName      string          `json:"fund_name,omitempty"`
	Weight        decimal.Decimal `json:"weight"`
	Quantity      int64           `json:"quantity"`
	ChangeType    string          `json:"change_type,omitempty"`
	OldQuantity   int64           `json:"old_quantity"`
	QuantityDelta int64           `json:"quantity_delta"`
}
