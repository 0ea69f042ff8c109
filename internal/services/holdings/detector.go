package holdings

import (
	"sort"

	"github.com/yhlin/etfwatch/internal/models"
)

// DetectChanges diffs a fund's current holdings against its latest
// prior snapshot. Share quantity is the sole driver: an instrument
// whose quantity is unchanged produces no entry even if its weight
// moved. With no prior snapshot every current holding is NEW.
//
// Entries for held instruments follow the current batch order; REMOVED
// entries follow in ascending instrument code order.
func DetectChanges(fundCode, date string, prior, current []models.Holding) []models.Change {
	priorByCode := make(map[string]models.Holding, len(prior))
	for _, h := range prior {
		priorByCode[h.InstrumentCode] = h
	}

	var changes []models.Change

	currentCodes := make(map[string]bool, len(current))
	for _, h := range current {
		currentCodes[h.InstrumentCode] = true

		old, existed := priorByCode[h.InstrumentCode]
		if !existed {
			changes = append(changes, models.Change{
				FundCode:       fundCode,
				InstrumentCode: h.InstrumentCode,
				InstrumentName: h.InstrumentName,
				ChangeType:     models.ChangeTypeNew,
				OldQuantity:    0,
				NewQuantity:    h.Quantity,
				NewWeight:      h.Weight,
				ChangeDate:     date,
			})
			continue
		}

		if h.Quantity == old.Quantity {
			continue
		}

		changeType := models.ChangeTypeIncreased
		if h.Quantity < old.Quantity {
			changeType = models.ChangeTypeDecreased
		}
		changes = append(changes, models.Change{
			FundCode:       fundCode,
			InstrumentCode: h.InstrumentCode,
			InstrumentName: h.InstrumentName,
			ChangeType:     changeType,
			OldQuantity:    old.Quantity,
			NewQuantity:    h.Quantity,
			OldWeight:      old.Weight,
			NewWeight:      h.Weight,
			ChangeDate:     date,
		})
	}

	var removed []models.Change
	for code, old := range priorByCode {
		if currentCodes[code] {
			continue
		}
		removed = append(removed, models.Change{
			FundCode:       fundCode,
			InstrumentCode: old.InstrumentCode,
			InstrumentName: old.InstrumentName,
			ChangeType:     models.ChangeTypeRemoved,
			OldQuantity:    old.Quantity,
			NewQuantity:    0,
			OldWeight:      old.Weight,
			ChangeDate:     date,
		})
	}
	sort.Slice(removed, func(i, j int) bool {
		return removed[i].InstrumentCode < removed[j].InstrumentCode
	})

	return append(changes, removed...)
}
