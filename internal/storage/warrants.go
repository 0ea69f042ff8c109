package storage

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
)

// warrantStore implements interfaces.WarrantStore.
type warrantStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// rankingColumns maps sort keys to order expressions.
var rankingColumns = map[string]string{
	"volume":             "volume DESC",
	"implied_volatility": "implied_volatility DESC",
	"change_percent":     "change_percent DESC",
	"close_price":        "close_price DESC",
}

func (s *warrantStore) ReplaceDay(ctx context.Context, date string, warrants []models.Warrant) error {
	if len(warrants) == 0 {
		return fmt.Errorf("replace warrants %s: %w", date, ErrEmptyBatch)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trade_date = ?", date).
			Delete(&models.Warrant{}).Error; err != nil {
			return fmt.Errorf("failed to clear warrants: %w", err)
		}

		for i := range warrants {
			warrants[i].ID = 0
			warrants[i].TradeDate = date
		}
		if err := tx.CreateInBatches(warrants, 200).Error; err != nil {
			return fmt.Errorf("failed to insert warrants: %w", err)
		}

		return refreshUnderlyingSummary(tx, date)
	})
	if err != nil {
		return fmt.Errorf("replace warrants %s: %w", date, err)
	}

	s.logger.Debug().
		Str("date", date).
		Int("warrants", len(warrants)).
		Msg("Warrant day replaced")
	return nil
}

// refreshUnderlyingSummary rebuilds the per-underlying aggregate for one
// date inside the same transaction as the warrant rewrite. Runs as a
// portable INSERT..SELECT so both backends aggregate server-side.
func refreshUnderlyingSummary(tx *gorm.DB, date string) error {
	if err := tx.Where("trade_date = ?", date).
		Delete(&models.WarrantSummary{}).Error; err != nil {
		return fmt.Errorf("failed to clear summary: %w", err)
	}

	err := tx.Exec(`INSERT INTO warrant_underlying_summary
		(underlying_name, warrant_type, warrant_count, total_volume, avg_implied_volatility, total_change_amount, trade_date)
		SELECT underlying_name, warrant_type, COUNT(*), COALESCE(SUM(volume), 0),
			COALESCE(AVG(implied_volatility), 0), COALESCE(SUM(ABS(change_amount)), 0), trade_date
		FROM warrant_data
		WHERE trade_date = ? AND underlying_name <> ''
		GROUP BY underlying_name, warrant_type, trade_date`, date).Error
	if err != nil {
		return fmt.Errorf("failed to refresh summary: %w", err)
	}
	return nil
}

func (s *warrantStore) Rankings(ctx context.Context, opts interfaces.RankingOptions) ([]models.Warrant, error) {
	order, ok := rankingColumns[opts.SortBy]
	if !ok {
		order = rankingColumns["volume"]
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	q := s.db.WithContext(ctx).Where("trade_date = ?", opts.Date)
	if opts.WarrantType != "" {
		q = q.Where("warrant_type = ?", opts.WarrantType)
	}

	var warrants []models.Warrant
	if err := q.Order(order + ", ranking ASC").Limit(limit).Find(&warrants).Error; err != nil {
		return nil, fmt.Errorf("warrant rankings %s: %w", opts.Date, err)
	}
	return warrants, nil
}

func (s *warrantStore) UnderlyingSummary(ctx context.Context, date, warrantType string) ([]models.WarrantSummary, error) {
	q := s.db.WithContext(ctx).Where("trade_date = ?", date)
	if warrantType != "" {
		q = q.Where("warrant_type = ?", warrantType)
	}

	var summaries []models.WarrantSummary
	if err := q.Order("total_volume DESC").Find(&summaries).Error; err != nil {
		return nil, fmt.Errorf("underlying summary %s: %w", date, err)
	}
	return summaries, nil
}

func (s *warrantStore) Stats(ctx context.Context, date string) (*models.WarrantStats, error) {
	type typeAgg struct {
		WarrantType string
		Count       int
		Volume      int64
	}

	var aggs []typeAgg
	err := s.db.WithContext(ctx).Model(&models.Warrant{}).
		Select("warrant_type, COUNT(*) AS count, COALESCE(SUM(volume), 0) AS volume").
		Where("trade_date = ?", date).
		Group("warrant_type").
		Scan(&aggs).Error
	if err != nil {
		return nil, fmt.Errorf("warrant stats %s: %w", date, err)
	}

	stats := &models.WarrantStats{TradeDate: date}
	for _, a := range aggs {
		stats.TotalWarrants += a.Count
		stats.TotalVolume += a.Volume
		switch a.WarrantType {
		case models.WarrantTypeCall:
			stats.CallCount = a.Count
			stats.CallVolume = a.Volume
		case models.WarrantTypePut:
			stats.PutCount = a.Count
			stats.PutVolume = a.Volume
		}
	}

	var underlyings int64
	err = s.db.WithContext(ctx).Model(&models.Warrant{}).
		Where("trade_date = ? AND underlying_name <> ''", date).
		Distinct("underlying_name").
		Count(&underlyings).Error
	if err != nil {
		return nil, fmt.Errorf("warrant stats %s: %w", date, err)
	}
	stats.UnderlyingCount = int(underlyings)

	return stats, nil
}

func (s *warrantStore) Search(ctx context.Context, query, date string) ([]models.Warrant, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	var warrants []models.Warrant
	err := s.db.WithContext(ctx).
		Where(`trade_date = ? AND (LOWER(warrant_code) LIKE ?
			OR LOWER(warrant_name) LIKE ? OR LOWER(underlying_name) LIKE ?)`,
			date, pattern, pattern, pattern).
		Order("volume DESC").
		Find(&warrants).Error
	if err != nil {
		return nil, fmt.Errorf("warrant search %q %s: %w", query, date, err)
	}
	return warrants, nil
}

func (s *warrantStore) AvailableDates(ctx context.Context) ([]string, error) {
	var dates []string
	err := s.db.WithContext(ctx).Model(&models.Warrant{}).
		Distinct().
		Order("trade_date DESC").
		Pluck("trade_date", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("warrant dates: %w", err)
	}
	return dates, nil
}

func (s *warrantStore) PriorDates(ctx context.Context, before string, n int) ([]string, error) {
	var dates []string
	err := s.db.WithContext(ctx).Model(&models.Warrant{}).
		Distinct().
		Where("trade_date < ?", before).
		Order("trade_date DESC").
		Limit(n).
		Pluck("trade_date", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("prior warrant dates before %s: %w", before, err)
	}
	return dates, nil
}

func (s *warrantStore) VolumeByUnderlying(ctx context.Context, date, warrantType string) ([]models.UnderlyingVolume, error) {
	q := s.db.WithContext(ctx).Model(&models.Warrant{}).
		Select("underlying_name, warrant_type, COALESCE(SUM(volume), 0) AS volume").
		Where("trade_date = ? AND underlying_name <> ''", date)
	if warrantType != "" {
		q = q.Where("warrant_type = ?", warrantType)
	}

	var volumes []models.UnderlyingVolume
	if err := q.Group("underlying_name, warrant_type").Scan(&volumes).Error; err != nil {
		return nil, fmt.Errorf("volume by underlying %s: %w", date, err)
	}
	return volumes, nil
}

// Compile-time check
var _ interfaces.WarrantStore = (*warrantStore)(nil)
