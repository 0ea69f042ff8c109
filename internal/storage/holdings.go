package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
)

// holdingStore implements interfaces.HoldingStore.
type holdingStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// replaceHoldingsDay deletes and rewrites one fund-day inside tx. Shared by
// the standalone ReplaceDay and the manager's reconcile transaction.
func replaceHoldingsDay(tx *gorm.DB, fundCode, date string, holdings []models.Holding) error {
	if len(holdings) == 0 {
		return ErrEmptyBatch
	}

	if err := tx.Where("fund_code = ? AND as_of_date = ?", fundCode, date).
		Delete(&models.Holding{}).Error; err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	for i := range holdings {
		holdings[i].ID = 0
		holdings[i].FundCode = fundCode
		holdings[i].AsOfDate = date
	}
	if err := tx.CreateInBatches(holdings, 200).Error; err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (s *holdingStore) ReplaceDay(ctx context.Context, fundCode, date string, holdings []models.Holding) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceHoldingsDay(tx, fundCode, date, holdings)
	})
	if err != nil {
		return fmt.Errorf("replace holdings %s %s: %w", fundCode, date, err)
	}
	return nil
}

func (s *holdingStore) GetDay(ctx context.Context, fundCode, date string) ([]models.Holding, error) {
	var holdings []models.Holding
	err := s.db.WithContext(ctx).
		Where("fund_code = ? AND as_of_date = ?", fundCode, date).
		Order("weight DESC").
		Find(&holdings).Error
	if err != nil {
		return nil, fmt.Errorf("get holdings %s %s: %w", fundCode, date, err)
	}
	return holdings, nil
}

func (s *holdingStore) LatestPriorDate(ctx context.Context, fundCode, before string) (string, error) {
	var date sql.NullString
	err := s.db.WithContext(ctx).Model(&models.Holding{}).
		Select("MAX(as_of_date)").
		Where("fund_code = ? AND as_of_date < ?", fundCode, before).
		Row().Scan(&date)
	if err != nil {
		return "", fmt.Errorf("latest prior date %s before %s: %w", fundCode, before, err)
	}
	return date.String, nil
}

func (s *holdingStore) LatestDate(ctx context.Context, fundCode string) (string, error) {
	var date sql.NullString
	err := s.db.WithContext(ctx).Model(&models.Holding{}).
		Select("MAX(as_of_date)").
		Where("fund_code = ?", fundCode).
		Row().Scan(&date)
	if err != nil {
		return "", fmt.Errorf("latest date %s: %w", fundCode, err)
	}
	return date.String, nil
}

func (s *holdingStore) AvailableDates(ctx context.Context, fundCode string) ([]string, error) {
	var dates []string
	q := s.db.WithContext(ctx).Model(&models.Holding{}).Distinct()
	if fundCode != "" {
		q = q.Where("fund_code = ?", fundCode)
	}
	if err := q.Order("as_of_date DESC").Pluck("as_of_date", &dates).Error; err != nil {
		return nil, fmt.Errorf("available dates: %w", err)
	}
	return dates, nil
}

func (s *holdingStore) HoldingsWithChanges(ctx context.Context, fundCode, date string) ([]models.HoldingWithChange, error) {
	var rows []models.HoldingWithChange
	err := s.db.WithContext(ctx).
		Table("etf_holdings AS h").
		Select(`h.fund_code, h.instrument_code, h.instrument_name, h.weight,
			h.quantity, h.unit, h.as_of_date,
			COALESCE(c.change_type, '') AS change_type,
			COALESCE(c.old_quantity, h.quantity) AS old_quantity,
			COALESCE(c.new_quantity - c.old_quantity, 0) AS quantity_delta`).
		Joins(`LEFT JOIN holdings_changes c ON c.fund_code = h.fund_code
			AND c.instrument_code = h.instrument_code
			AND c.change_date = h.as_of_date`).
		Where("h.fund_code = ? AND h.as_of_date = ?", fundCode, date).
		Order("h.weight DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("holdings with changes %s %s: %w", fundCode, date, err)
	}
	return rows, nil
}

func (s *holdingStore) CrossFundHoldings(ctx context.Context, date string) ([]models.CrossHolding, error) {
	type aggregate struct {
		InstrumentCode string
		InstrumentName string
		FundCount      int
		TotalQuantity  int64
	}

	var aggs []aggregate
	err := s.db.WithContext(ctx).Model(&models.Holding{}).
		Select(`instrument_code, MAX(instrument_name) AS instrument_name,
			COUNT(DISTINCT fund_code) AS fund_count,
			SUM(quantity) AS total_quantity`).
		Where("as_of_date = ?", date).
		Group("instrument_code").
		Having("COUNT(DISTINCT fund_code) > 1").
		Order("fund_count DESC, total_quantity DESC").
		Scan(&aggs).Error
	if err != nil {
		return nil, fmt.Errorf("cross fund holdings %s: %w", date, err)
	}
	if len(aggs) == 0 {
		return nil, nil
	}

	codes := make([]string, len(aggs))
	for i, a := range aggs {
		codes[i] = a.InstrumentCode
	}

	type fundRow struct {
		InstrumentCode string
		FundCode       string
		Weight         decimal.Decimal
		Quantity       int64
		ChangeType     string
		OldQuantity    int64
		QuantityDelta  int64
	}

	var details []fundRow
	err = s.db.WithContext(ctx).
		Table("etf_holdings AS h").
		Select(`h.instrument_code, h.fund_code, h.weight, h.quantity,
			COALESCE(c.change_type, '') AS change_type,
			COALESCE(c.old_quantity, h.quantity) AS old_quantity,
			COALESCE(c.new_quantity - c.old_quantity, 0) AS quantity_delta`).
		Joins(`LEFT JOIN holdings_changes c ON c.fund_code = h.fund_code
			AND c.instrument_code = h.instrument_code
			AND c.change_date = h.as_of_date`).
		Where("h.as_of_date = ? AND h.instrument_code IN ?", date, codes).
		Order("h.weight DESC").
		Scan(&details).Error
	if err != nil {
		return nil, fmt.Errorf("cross fund details %s: %w", date, err)
	}

	byInstrument := make(map[string][]models.CrossHoldingFund, len(aggs))
	for _, h := range details {
		byInstrument[h.InstrumentCode] = append(byInstrument[h.InstrumentCode], models.CrossHoldingFund{
			FundCode:      h.FundCode,
			Weight:        h.Weight,
			Quantity:      h.Quantity,
			ChangeType:    h.ChangeType,
			OldQuantity:   h.OldQuantity,
			QuantityDelta: h.QuantityDelta,
		})
	}

	result := make([]models.CrossHolding, len(aggs))
	for i, a := range aggs {
		result[i] = models.CrossHolding{
			InstrumentCode: a.InstrumentCode,
			InstrumentName: a.InstrumentName,
			FundCount:      a.FundCount,
			TotalQuantity:  a.TotalQuantity,
			Funds:          byInstrument[a.InstrumentCode],
		}
	}
	return result, nil
}

// Compile-time check
var _ interfaces.HoldingStore = (*holdingStore)(nil)
