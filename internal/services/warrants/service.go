// Package warrants coordinates the daily warrant ranking scrape and the
// query and analysis surface over the stored results.
package warrants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
)

// ErrEmptyScrape is returned when a scrape yields no warrants. The stored
// day, if any, is left untouched.
var ErrEmptyScrape = errors.New("scrape returned no warrants")

// Service implements interfaces.WarrantService on top of a warrant store
// and the ranking page client.
type Service struct {
	storage interfaces.StorageManager
	client  interfaces.WarrantClient
	logger  *common.Logger
}

// NewService creates a warrant service.
func NewService(storage interfaces.StorageManager, client interfaces.WarrantClient, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		client:  client,
		logger:  logger,
	}
}

// Scrape fetches the ranking pages for the date and replaces the stored
// day. A scrape that parses no warrants returns ErrEmptyScrape and leaves
// any previously stored day in place.
func (s *Service) Scrape(ctx context.Context, date string, pages, sortType int) (*models.WarrantScrapeResult, error) {
	if date == "" {
		date = time.Now().Format(models.DateFormat)
	}

	start := time.Now()
	warrants, err := s.client.FetchRankings(ctx, date, pages, sortType)
	if err != nil {
		return nil, fmt.Errorf("fetching warrant rankings: %w", err)
	}
	if len(warrants) == 0 {
		s.logger.Warn().
			Str("date", date).
			Int("pages", pages).
			Msg("Warrant scrape returned no rows, keeping stored data")
		return nil, ErrEmptyScrape
	}

	if err := s.storage.Warrants().ReplaceDay(ctx, date, warrants); err != nil {
		return nil, fmt.Errorf("storing warrants for %s: %w", date, err)
	}

	s.logger.Info().
		Str("date", date).
		Int("pages", pages).
		Int("warrants", len(warrants)).
		Dur("elapsed", time.Since(start)).
		Msg("Warrant scrape stored")

	return &models.WarrantScrapeResult{
		Date:     date,
		Pages:    pages,
		Warrants: len(warrants),
	}, nil
}

// Rankings returns stored warrants for the requested date, sorted and
// limited per the options. An empty date selects the latest scraped day.
func (s *Service) Rankings(ctx context.Context, opts interfaces.RankingOptions) ([]models.Warrant, error) {
	date, err := s.resolveDate(ctx, opts.Date)
	if err != nil {
		return nil, err
	}
	if date == "" {
		return []models.Warrant{}, nil
	}
	opts.Date = date
	return s.storage.Warrants().Rankings(ctx, opts)
}

// UnderlyingSummary returns the per-underlying aggregates for the date.
func (s *Service) UnderlyingSummary(ctx context.Context, date, warrantType string) ([]models.WarrantSummary, error) {
	date, err := s.resolveDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if date == "" {
		return []models.WarrantSummary{}, nil
	}
	return s.storage.Warrants().UnderlyingSummary(ctx, date, warrantType)
}

// Stats returns day-level scrape statistics for the date.
func (s *Service) Stats(ctx context.Context, date string) (*models.WarrantStats, error) {
	date, err := s.resolveDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if date == "" {
		return &models.WarrantStats{}, nil
	}
	return s.storage.Warrants().Stats(ctx, date)
}

// Search matches stored warrants by code, name or underlying.
func (s *Service) Search(ctx context.Context, query, date string) ([]models.Warrant, error) {
	date, err := s.resolveDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if date == "" {
		return []models.Warrant{}, nil
	}
	return s.storage.Warrants().Search(ctx, query, date)
}

// AvailableDates returns scraped trade dates, newest first.
func (s *Service) AvailableDates(ctx context.Context) ([]string, error) {
	return s.storage.Warrants().AvailableDates(ctx)
}

// resolveDate substitutes the latest scraped date for an empty one.
// Returns "" when nothing has been scraped yet.
func (s *Service) resolveDate(ctx context.Context, date string) (string, error) {
	if date != "" {
		return date, nil
	}
	dates, err := s.storage.Warrants().AvailableDates(ctx)
	if err != nil {
		return "", err
	}
	if len(dates) == 0 {
		return "", nil
	}
	return dates[0], nil
}

var _ interfaces.WarrantService = (*Service)(nil)
