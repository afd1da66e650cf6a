// Package reporting serves aggregated performance views over the
// metrics store, with Redis-cached channel and monthly rollups.
package reporting

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/models"
	"github.com/dataplunge/dataplunge/internal/storage"
)

// Report names used for cache keys and metrics labels.
const (
	reportChannel = "channel"
	reportMonthly = "monthly"
)

// Service answers reporting queries. All reads are scoped to the
// requesting user's datasources.
type Service struct {
	repo   storage.ReportingRepo
	cache  *Cache
	logger *zap.Logger
}

// NewService creates the reporting service.
func NewService(repo storage.ReportingRepo, cache *Cache, logger *zap.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// InvalidateUser drops the user's cached aggregates. The ingestion
// service calls this after merging new rows.
func (s *Service) InvalidateUser(ctx context.Context, userID int64) error {
	return s.cache.InvalidateUser(ctx, userID)
}

// validateRange checks both bounds parse and start does not follow end.
func validateRange(start, end string) error {
	if _, err := models.ParseDate(start); err != nil {
		return apperror.ValidationFailed("start_date", err.Error())
	}
	if _, err := models.ParseDate(end); err != nil {
		return apperror.ValidationFailed("end_date", err.Error())
	}
	if start > end {
		return apperror.ValidationFailed("start_date", "start_date must not be after end_date")
	}
	return nil
}

// FilterPerformance returns raw rows for a single day ("day") or an
// inclusive range ("range", value "start|end").
func (s *Service) FilterPerformance(ctx context.Context, userID int64, timeRange, value string) ([]*storage.DailyRecord, error) {
	switch timeRange {
	case "day":
		if _, err := models.ParseDate(value); err != nil {
			return nil, apperror.ValidationFailed("value", err.Error())
		}
		return s.repo.FilterByDay(ctx, userID, value)
	case "range":
		start, end, ok := strings.Cut(value, "|")
		if !ok {
			return nil, apperror.ValidationFailed("value", "range value must be start|end")
		}
		if err := validateRange(start, end); err != nil {
			return nil, err
		}
		return s.repo.FilterByRange(ctx, userID, start, end)
	default:
		return nil, apperror.ValidationFailed("range", "range must be day or range")
	}
}

// DailyPerformance returns one summed row per day in the range.
func (s *Service) DailyPerformance(ctx context.Context, userID int64, start, end string) ([]*storage.DailySummary, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	return s.repo.AggregateByDay(ctx, userID, start, end)
}

// ChannelPerformance returns per-source totals for the range, cached.
func (s *Service) ChannelPerformance(ctx context.Context, userID int64, start, end string) ([]*storage.ChannelSummary, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	var cached []*storage.ChannelSummary
	if s.cache.Get(ctx, reportChannel, userID, start, end, &cached) {
		return cached, nil
	}

	res, err := s.repo.AggregateByChannel(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, reportChannel, userID, start, end, res)
	return res, nil
}

// CampaignPerformance returns per-campaign totals for the range,
// ordered by spend.
func (s *Service) CampaignPerformance(ctx context.Context, userID int64, start, end string) ([]*storage.CampaignSummary, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	return s.repo.AggregateByCampaign(ctx, userID, start, end)
}

// MonthlyPerformance returns per-month totals for the range, cached.
func (s *Service) MonthlyPerformance(ctx context.Context, userID int64, start, end string) ([]*storage.MonthlySummary, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	var cached []*storage.MonthlySummary
	if s.cache.Get(ctx, reportMonthly, userID, start, end, &cached) {
		return cached, nil
	}

	res, err := s.repo.AggregateByMonth(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, reportMonthly, userID, start, end, res)
	return res, nil
}

// Insights derives period observations from the per-day aggregate.
func (s *Service) Insights(ctx context.Context, userID int64, start, end string) ([]Insight, error) {
	days, err := s.DailyPerformance(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return buildInsights(days), nil
}
