package models

import "github.com/shopspring/decimal"

// Warrant type labels as they appear on the ranking pages.
const (
	WarrantTypeCall = "認購"
	WarrantTypePut  = "認售"
)

// Warrant is one row of the daily ranked warrant quote scrape.
type Warrant struct {
	ID                uint            `gorm:"primarykey" json:"-"`
	Ranking           int             `json:"ranking"`
	WarrantCode       string          `gorm:"size:16;uniqueIndex:idx_warrant_code_date" json:"warrant_code"`
	WarrantName       string          `gorm:"size:64" json:"warrant_name"`
	UnderlyingName    string          `gorm:"size:64;index" json:"underlying_name"`
	WarrantType       string          `gorm:"size:8;index" json:"warrant_type"`
	ClosePrice        decimal.Decimal `gorm:"type:decimal(12,4)" json:"close_price"`
	ChangeAmount      decimal.Decimal `gorm:"type:decimal(12,4)" json:"change_amount"`
	ChangePercent     decimal.Decimal `gorm:"type:decimal(12,4)" json:"change_percent"`
	Volume            int64           `json:"volume"`
	ImpliedVolatility decimal.Decimal `gorm:"type:decimal(12,4)" json:"implied_volatility"`
	PageNumber        int             `json:"page_number"`
	TradeDate         string          `gorm:"size:10;uniqueIndex:idx_warrant_code_date;index" json:"trade_date"`
}

// TableName maps Warrant to the scrape table.
func (Warrant) TableName() string { return "warrant_data" }

// WarrantSummary is the per-underlying aggregate refreshed with each scrape.
type WarrantSummary struct {
	ID                   uint            `gorm:"primarykey" json:"-"`
	UnderlyingName       string          `gorm:"size:64;uniqueIndex:idx_summary_key" json:"underlying_name"`
	WarrantType          string          `gorm:"size:8;uniqueIndex:idx_summary_key" json:"warrant_type"`
	WarrantCount         int             `json:"warrant_count"`
	TotalVolume          int64           `json:"total_volume"`
	AvgImpliedVolatility decimal.Decimal `gorm:"type:decimal(12,4)" json:"avg_implied_volatility"`
	TotalChangeAmount    decimal.Decimal `gorm:"type:decimal(12,4)" json:"total_change_amount"`
	TradeDate            string          `gorm:"size:10;uniqueIndex:idx_summary_key;index" json:"trade_date"`
}

// TableName maps WarrantSummary to the aggregate table.
func (WarrantSummary) TableName() string { return "warrant_underlying_summary" }

// WarrantStats are the day-level scrape statistics.
type WarrantStats struct {
	TradeDate       string `json:"trade_date"`
	TotalWarrants   int    `json:"total_warrants"`
	CallCount       int    `json:"call_count"`
	PutCount        int    `json:"put_count"`
	TotalVolume     int64  `json:"total_volume"`
	CallVolume      int64  `json:"call_volume"`
	PutVolume       int64  `json:"put_volume"`
	UnderlyingCount int    `json:"underlying_count"`
}

// UnderlyingVolume is a summed trade volume for one underlying and type.
type UnderlyingVolume struct {
	UnderlyingName string `json:"underlying_name"`
	WarrantType    string `json:"warrant_type"`
	Volume         int64  `json:"volume"`
}

// VolumeAnalysis compares an underlying's current warrant volume against
// its average over the baseline trading days.
type VolumeAnalysis struct {
	UnderlyingName string  `json:"underlying_name"`
	WarrantType    string  `json:"warrant_type"`
	CurrentVolume  int64   `json:"current_volume"`
	AverageVolume  int64   `json:"five_day_avg"`
	VolumeDiff     int64   `json:"volume_diff"`
	ChangePercent  float64 `json:"change_percent"`
	IsHighChange   bool    `json:"is_high_change"`
}

// VolumeReport is the full volume comparison analysis for one date,
// split by warrant type.
type VolumeReport struct {
	AnalysisDate   string           `json:"analysis_date"`
	BaselineDates  []string         `json:"baseline_dates"`
	CallData       []VolumeAnalysis `json:"call_data"`
	PutData        []VolumeAnalysis `json:"put_data"`
	CallHighChange int              `json:"call_high_change_count"`
	PutHighChange  int              `json:"put_high_change_count"`
}

// WarrantScrapeResult summarizes one warrant scrape run.
type WarrantScrapeResult struct {
	Date     string `json:"date"`
	Pages    int    `json:"pages"`
	Warrants int    `json:"warrants"`
}
