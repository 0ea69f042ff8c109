package holdings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
)

var (
	// ErrUnknownFund is returned for fund codes outside the registry.
	ErrUnknownFund = errors.New("unknown fund code")

	// ErrEmptyDisclosure is returned when a fetch yields no usable rows.
	// Stored snapshots are never overwritten by an empty disclosure.
	ErrEmptyDisclosure = errors.New("disclosure contains no holdings")

	// ErrNoData is returned when a query needs a stored disclosure and
	// none exists for the fund or date.
	ErrNoData = errors.New("no disclosures stored")
)

// Service implements HoldingsService
type Service struct {
	storage interfaces.StorageManager
	client  interfaces.DisclosureClient
	funds   []models.Fund
	names   map[string]string
	logger  *common.Logger
}

// NewService creates a new holdings ingest service
func NewService(
	storage interfaces.StorageManager,
	client interfaces.DisclosureClient,
	funds []models.Fund,
	logger *common.Logger,
) *Service {
	names := make(map[string]string, len(funds))
	for _, f := range funds {
		names[f.Code] = f.Name
	}
	return &Service{
		storage: storage,
		client:  client,
		funds:   funds,
		names:   names,
		logger:  logger,
	}
}

// IngestFund fetches, normalizes, diffs and reconciles one fund. An
// explicit date overrides the date the disclosure rows carry; an empty
// date takes the row date, falling back to today when the rows carry
// none.
func (s *Service) IngestFund(ctx context.Context, fundCode, date string) (*models.IngestResult, error) {
	name, known := s.names[fundCode]
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFund, fundCode)
	}

	s.logger.Info().Str("fund", fundCode).Msg("Ingesting disclosure")

	data, err := s.client.GetHoldings(ctx, fundCode)
	if err != nil {
		return nil, fmt.Errorf("fetch disclosure for %s: %w", fundCode, err)
	}

	current, disclosed := NormalizeRows(fundCode, data)
	if len(current) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDisclosure, fundCode)
	}

	if date == "" {
		date = disclosed
		if date == "" {
			date = time.Now().Format(models.DateFormat)
			s.logger.Warn().Str("fund", fundCode).Msg("Disclosure rows carry no usable date, using today")
		}
	}

	priorDate, err := s.storage.Holdings().LatestPriorDate(ctx, fundCode, date)
	if err != nil {
		return nil, fmt.Errorf("resolve prior date for %s: %w", fundCode, err)
	}

	var prior []models.Holding
	if priorDate != "" {
		prior, err = s.storage.Holdings().GetDay(ctx, fundCode, priorDate)
		if err != nil {
			return nil, fmt.Errorf("load prior snapshot for %s: %w", fundCode, err)
		}
	}

	changes := DetectChanges(fundCode, date, prior, current)

	if err := s.storage.ReconcileDay(ctx, fundCode, date, current, changes); err != nil {
		return nil, fmt.Errorf("reconcile %s on %s: %w", fundCode, date, err)
	}

	s.logger.Info().
		Str("fund", fundCode).
		Str("date", date).
		Str("prior_date", priorDate).
		Int("holdings", len(current)).
		Int("changes", len(changes)).
		Msg("Disclosure ingested")

	return &models.IngestResult{
		FundCode:  fundCode,
		FundName:  name,
		Date:      date,
		Holdings:  len(current),
		Changes:   len(changes),
		PriorDate: priorDate,
	}, nil
}

// IngestAll runs IngestFund for every registry fund, continuing past
// per-fund failures.
func (s *Service) IngestAll(ctx context.Context, date string) []models.IngestResult {
	results := make([]models.IngestResult, 0, len(s.funds))

	for _, fund := range s.funds {
		result, err := s.IngestFund(ctx, fund.Code, date)
		if err != nil {
			s.logger.Error().Err(err).Str("fund", fund.Code).Msg("Fund ingest failed")
			results = append(results, models.IngestResult{
				FundCode: fund.Code,
				FundName: fund.Name,
				Date:     date,
				Error:    err.Error(),
			})
			continue
		}
		results = append(results, *result)
	}

	return results
}

// Funds returns the monitored fund registry
func (s *Service) Funds() []models.Fund {
	funds := make([]models.Fund, len(s.funds))
	copy(funds, s.funds)
	return funds
}

// HoldingsOnDay returns a fund-day snapshot joined with its changes,
// along with the resolved date. An empty date selects the fund's
// latest disclosure day; a fund with no data returns an empty result.
func (s *Service) HoldingsOnDay(ctx context.Context, fundCode, date string) ([]models.HoldingWithChange, string, error) {
	resolved, err := s.resolveDate(ctx, fundCode, date)
	if err != nil || resolved == "" {
		return nil, "", err
	}

	rows, err := s.storage.Holdings().HoldingsWithChanges(ctx, fundCode, resolved)
	if err != nil {
		return nil, "", err
	}
	return rows, resolved, nil
}

// ChangesOnDay returns a fund-day's change log, optionally filtered by type.
func (s *Service) ChangesOnDay(ctx context.Context, fundCode, date string, types ...string) ([]models.Change, error) {
	resolved, err := s.resolveDate(ctx, fundCode, date)
	if err != nil || resolved == "" {
		return nil, err
	}
	return s.storage.Changes().GetByDay(ctx, fundCode, resolved, types...)
}

// NewPositions returns every fund's NEW entries for the date.
func (s *Service) NewPositions(ctx context.Context, date string) ([]models.Change, error) {
	resolved, err := s.resolveDate(ctx, "", date)
	if err != nil || resolved == "" {
		return nil, err
	}
	return s.storage.Changes().NewOnDay(ctx, resolved)
}

// ReducedPositions returns every fund's DECREASED and REMOVED entries.
func (s *Service) ReducedPositions(ctx context.Context, date string) ([]models.Change, error) {
	resolved, err := s.resolveDate(ctx, "", date)
	if err != nil || resolved == "" {
		return nil, err
	}
	return s.storage.Changes().DecreasedOnDay(ctx, resolved)
}

// CrossFundHoldings returns instruments held by two or more funds,
// with fund names filled in from the registry.
func (s *Service) CrossFundHoldings(ctx context.Context, date string) ([]models.CrossHolding, error) {
	resolved, err := s.resolveDate(ctx, "", date)
	if err != nil || resolved == "" {
		return nil, err
	}

	cross, err := s.storage.Holdings().CrossFundHoldings(ctx, resolved)
	if err != nil {
		return nil, err
	}
	for i := range cross {
		for j := range cross[i].Funds {
			cross[i].Funds[j].FundName = s.names[cross[i].Funds[j].FundCode]
		}
	}
	return cross, nil
}

// AvailableDates returns disclosure dates, newest first.
func (s *Service) AvailableDates(ctx context.Context, fundCode string) ([]string, error) {
	return s.storage.Holdings().AvailableDates(ctx, fundCode)
}

// WeightChart renders a PNG bar chart of the fund-day's top weights.
func (s *Service) WeightChart(ctx context.Context, fundCode, date string, top int) ([]byte, error) {
	resolved, err := s.resolveDate(ctx, fundCode, date)
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoData, fundCode)
	}

	rows, err := s.storage.Holdings().GetDay(ctx, fundCode, resolved)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w for %s on %s", ErrNoData, fundCode, resolved)
	}
	return RenderWeightChart(fundCode, resolved, rows, top)
}

// resolveDate maps an empty date to the latest stored disclosure day,
// fund-scoped when fundCode is set. Returns "" when nothing is stored.
func (s *Service) resolveDate(ctx context.Context, fundCode, date string) (string, error) {
	if date != "" {
		return date, nil
	}
	if fundCode != "" {
		return s.storage.Holdings().LatestDate(ctx, fundCode)
	}
	dates, err := s.storage.Holdings().AvailableDates(ctx, "")
	if err != nil || len(dates) == 0 {
		return "", err
	}
	return dates[0], nil
}

// Ensure Service implements HoldingsService
var _ interfaces.HoldingsService = (*Service)(nil)
