package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
)

// changeTypeOrder sorts change rows NEW, INCREASED, DECREASED, REMOVED.
// CASE on the raw column keeps the expression portable across backends.
const changeTypeOrder = `CASE change_type
	WHEN 'NEW' THEN 0
	WHEN 'INCREASED' THEN 1
	WHEN 'DECREASED' THEN 2
	ELSE 3 END, new_quantity DESC`

// changeStore implements interfaces.ChangeStore.
type changeStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// replaceChangesDay deletes and rewrites one fund-day's change log inside
// tx. An empty change set is valid: a day with no quantity movement stores
// no rows.
func replaceChangesDay(tx *gorm.DB, fundCode, date string, changes []models.Change) error {
	if err := tx.Where("fund_code = ? AND change_date = ?", fundCode, date).
		Delete(&models.Change{}).Error; err != nil {
		return fmt.Errorf("failed to clear change log: %w", err)
	}
	if len(changes) == 0 {
		return nil
	}

	for i := range changes {
		changes[i].ID = 0
		changes[i].FundCode = fundCode
		changes[i].ChangeDate = date
	}
	if err := tx.CreateInBatches(changes, 200).Error; err != nil {
		return fmt.Errorf("failed to insert change log: %w", err)
	}
	return nil
}

func (s *changeStore) ReplaceDay(ctx context.Context, fundCode, date string, changes []models.Change) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceChangesDay(tx, fundCode, date, changes)
	})
	if err != nil {
		return fmt.Errorf("replace changes %s %s: %w", fundCode, date, err)
	}
	return nil
}

func (s *changeStore) GetByDay(ctx context.Context, fundCode, date string, types ...string) ([]models.Change, error) {
	q := s.db.WithContext(ctx).
		Where("fund_code = ? AND change_date = ?", fundCode, date)
	if len(types) > 0 {
		q = q.Where("change_type IN ?", types)
	}

	var changes []models.Change
	if err := q.Order(changeTypeOrder).Find(&changes).Error; err != nil {
		return nil, fmt.Errorf("get changes %s %s: %w", fundCode, date, err)
	}
	return changes, nil
}

func (s *changeStore) NewOnDay(ctx context.Context, date string) ([]models.Change, error) {
	var changes []models.Change
	err := s.db.WithContext(ctx).
		Where("change_date = ? AND change_type = ?", date, models.ChangeTypeNew).
		Order("new_quantity DESC").
		Find(&changes).Error
	if err != nil {
		return nil, fmt.Errorf("new positions %s: %w", date, err)
	}
	return changes, nil
}

func (s *changeStore) DecreasedOnDay(ctx context.Context, date string) ([]models.Change, error) {
	var changes []models.Change
	err := s.db.WithContext(ctx).
		Where("change_date = ? AND change_type IN ?", date,
			[]string{models.ChangeTypeDecreased, models.ChangeTypeRemoved}).
		Order("(old_quantity - new_quantity) DESC").
		Find(&changes).Error
	if err != nil {
		return nil, fmt.Errorf("decreased positions %s: %w", date, err)
	}
	return changes, nil
}

// Compile-time check
var _ interfaces.ChangeStore = (*changeStore)(nil)
