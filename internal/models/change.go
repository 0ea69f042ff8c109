package models

import "github.com/shopspring/decimal"

// Change types recorded by the detector. Quantity is the sole driver;
// weight-only movement never produces a change row.
const (
	ChangeTypeNew       = "NEW"
	ChangeTypeIncreased = "INCREASED"
	ChangeTypeDecreased = "DECREASED"
	ChangeTypeRemoved   = "REMOVED"
)

// Change is one detected position change between a fund's disclosure day
// and its latest prior disclosure day.
type Change struct {
	ID             uint            `gorm:"primarykey" json:"-"`
	FundCode       string          `gorm:"size:16;index:idx_change_fund_date" json:"fund_code"`
	InstrumentCode string          `gorm:"size:32" json:"instrument_code"`
	InstrumentName string          `gorm:"size:128" json:"instrument_name"`
	ChangeType     string          `gorm:"size:16;index:idx_change_date_type,priority:2" json:"change_type"`
	OldQuantity    int64           `json:"old_quantity"`
	NewQuantity    int64           `json:"new_quantity"`
	OldWeight      decimal.Decimal `gorm:"type:decimal(10,4)" json:"old_weight"`
	NewWeight      decimal.Decimal `gorm:"type:decimal(10,4)" json:"new_weight"`
	ChangeDate     string          `gorm:"size:10;index:idx_change_fund_date;index:idx_change_date_type,priority:1" json:"change_date"`
}

// TableName maps Change to the change log table.
func (Change) TableName() string { return "holdings_changes" }

// QuantityDelta returns the signed share movement of the change.
func (c *Change) QuantityDelta() int64 {
	return c.NewQuantity - c.OldQuantity
}

// IngestResult summarizes one fund-day ingest run.
type IngestResult struct {
	FundCode  string `json:"fund_code"`
	FundName  string `json:"fund_name,omitempty"`
	Date      string `json:"date"`
	Holdings  int    `json:"holdings"`
	Changes   int    `json:"changes"`
	PriorDate string `json:"prior_date,omitempty"`
	Error     string `json:"error,omitempty"`
}
