package warrants

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/yhlin/etfwatch/internal/models"
)

const (
	// volumeBaselineDays is how many prior trading days feed the average.
	volumeBaselineDays = 5

	// highChangeThreshold flags underlyings whose volume moved by at
	// least this percentage against their baseline.
	highChangeThreshold = 70.0
)

// AnalyzeVolume compares each underlying's warrant volume on the date
// against its average over the previous five stored trading days. The
// average divides by the number of baseline dates found, so early history
// with fewer than five prior days still produces a comparison. An empty
// date selects the latest scraped day.
func (s *Service) AnalyzeVolume(ctx context.Context, date string) (*models.VolumeReport, error) {
	date, err := s.resolveDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if date == "" {
		return &models.VolumeReport{BaselineDates: []string{}}, nil
	}

	baseline, err := s.storage.Warrants().PriorDates(ctx, date, volumeBaselineDays)
	if err != nil {
		return nil, fmt.Errorf("loading baseline dates before %s: %w", date, err)
	}

	report := &models.VolumeReport{
		AnalysisDate:  date,
		BaselineDates: baseline,
	}

	report.CallData, err = s.analyzeType(ctx, date, baseline, models.WarrantTypeCall)
	if err != nil {
		return nil, err
	}
	report.PutData, err = s.analyzeType(ctx, date, baseline, models.WarrantTypePut)
	if err != nil {
		return nil, err
	}
	report.CallHighChange = countHighChange(report.CallData)
	report.PutHighChange = countHighChange(report.PutData)

	s.logger.Debug().
		Str("date", date).
		Int("baseline_days", len(baseline)).
		Int("call_underlyings", len(report.CallData)).
		Int("put_underlyings", len(report.PutData)).
		Msg("Volume analysis computed")

	return report, nil
}

func (s *Service) analyzeType(ctx context.Context, date string, baseline []string, warrantType string) ([]models.VolumeAnalysis, error) {
	current, err := s.storage.Warrants().VolumeByUnderlying(ctx, date, warrantType)
	if err != nil {
		return nil, fmt.Errorf("loading %s volumes for %s: %w", warrantType, date, err)
	}

	totals := make(map[string]int64)
	for _, prior := range baseline {
		rows, err := s.storage.Warrants().VolumeByUnderlying(ctx, prior, warrantType)
		if err != nil {
			return nil, fmt.Errorf("loading %s volumes for %s: %w", warrantType, prior, err)
		}
		for _, row := range rows {
			totals[row.UnderlyingName] += row.Volume
		}
	}

	return buildVolumeAnalyses(current, totals, len(baseline), warrantType), nil
}

// buildVolumeAnalyses scores the current volumes against the baseline
// totals. Underlyings absent today are not reported even when they have
// baseline history. Results sort by absolute volume difference, largest
// first.
func buildVolumeAnalyses(current []models.UnderlyingVolume, baselineTotals map[string]int64, baselineDays int, warrantType string) []models.VolumeAnalysis {
	analyses := make([]models.VolumeAnalysis, 0, len(current))
	for _, row := range current {
		var avg int64
		if baselineDays > 0 {
			avg = baselineTotals[row.UnderlyingName] / int64(baselineDays)
		}
		diff := row.Volume - avg

		var pct float64
		if avg > 0 {
			pct = math.Round(float64(diff)/float64(avg)*100*100) / 100
		}

		analyses = append(analyses, models.VolumeAnalysis{
			UnderlyingName: row.UnderlyingName,
			WarrantType:    warrantType,
			CurrentVolume:  row.Volume,
			AverageVolume:  avg,
			VolumeDiff:     diff,
			ChangePercent:  pct,
			IsHighChange:   math.Abs(pct) >= highChangeThreshold,
		})
	}

	sort.Slice(analyses, func(i, j int) bool {
		return absInt64(analyses[i].VolumeDiff) > absInt64(analyses[j].VolumeDiff)
	})
	return analyses
}

func countHighChange(analyses []models.VolumeAnalysis) int {
	n := 0
	for _, a := range analyses {
		if a.IsHighChange {
			n++
		}
	}
	return n
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
