package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/config"
	"github.com/dataplunge/dataplunge/internal/metrics"
	"github.com/dataplunge/dataplunge/internal/models"
	"github.com/dataplunge/dataplunge/internal/storage"
)

// Invalidator drops cached reporting aggregates after new rows land.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
}

// Service orchestrates one ingestion run per provider: fetch, resolve
// the datasource and campaign registries, and merge rows through the
// upsert engine. Runs are idempotent; re-fetching a window replaces the
// same keyed rows.
type Service struct {
	googleAds *GoogleAdsClient
	analytics *AnalyticsClient
	meta      *MetaClient

	tokens      storage.TokenRepo
	datasources storage.DatasourceRepo
	campaigns   storage.CampaignRepo
	metricsRepo storage.MetricsRepo

	cache  Invalidator
	prom   *metrics.Metrics
	logger *zap.Logger
	cfg    config.IngestConfig
}

// NewService wires the ingestion orchestrator. cache and prom may be
// nil.
func NewService(
	googleAds *GoogleAdsClient,
	analytics *AnalyticsClient,
	meta *MetaClient,
	tokens storage.TokenRepo,
	datasources storage.DatasourceRepo,
	campaigns storage.CampaignRepo,
	metricsRepo storage.MetricsRepo,
	cache Invalidator,
	prom *metrics.Metrics,
	logger *zap.Logger,
	cfg config.IngestConfig,
) *Service {
	return &Service{
		googleAds:   googleAds,
		analytics:   analytics,
		meta:        meta,
		tokens:      tokens,
		datasources: datasources,
		campaigns:   campaigns,
		metricsRepo: metricsRepo,
		cache:       cache,
		prom:        prom,
		logger:      logger,
		cfg:         cfg,
	}
}

// GoogleAds exposes the underlying client for account listing.
func (s *Service) GoogleAds() *GoogleAdsClient { return s.googleAds }

// Analytics exposes the underlying client for property listing.
func (s *Service) Analytics() *AnalyticsClient { return s.analytics }

// Meta exposes the underlying client for ad account listing.
func (s *Service) Meta() *MetaClient { return s.meta }

// SelectAccount pins the provider-side account (Google Ads customer,
// GA4 property, Meta ad account) future fetches for this pair will use.
func (s *Service) SelectAccount(ctx context.Context, userID int64, provider models.Provider, accountID string) error {
	tok, err := s.tokens.Get(ctx, userID, provider)
	if err != nil {
		return err
	}
	if tok == nil {
		return apperror.ReauthRequired(provider.SourceName())
	}
	tok.ExternalAccountID = accountID
	return s.tokens.Store(ctx, tok)
}

// selectedAccount returns the pinned provider-side account for the
// pair, or "" when none is stored.
func (s *Service) selectedAccount(ctx context.Context, userID int64, provider models.Provider) (string, error) {
	tok, err := s.tokens.Get(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	if tok == nil {
		return "", apperror.ReauthRequired(provider.SourceName())
	}
	return tok.ExternalAccountID, nil
}

// ResolveGoogleAdsCustomer returns the pinned Google Ads customer ID,
// discovering and pinning the first accessible one when none is stored
// yet.
func (s *Service) ResolveGoogleAdsCustomer(ctx context.Context, userID int64) (string, error) {
	customerID, err := s.selectedAccount(ctx, userID, models.ProviderGoogleAds)
	if err != nil {
		return "", err
	}
	if customerID != "" {
		return customerID, nil
	}

	ids, err := s.googleAds.ListAccessibleCustomers(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", apperror.ValidationFailed("customer_id", "no accessible Google Ads customers")
	}
	if err := s.SelectAccount(ctx, userID, models.ProviderGoogleAds, ids[0]); err != nil {
		return "", err
	}
	return ids[0], nil
}

// FetchGoogleAds runs a Google Ads ingestion for the user and returns
// the number of rows merged.
func (s *Service) FetchGoogleAds(ctx context.Context, userID int64) (int, error) {
	customerID, err := s.ResolveGoogleAdsCustomer(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.run(ctx, userID, models.ProviderGoogleAds, func(ctx context.Context) ([]*models.MetricRow, error) {
		return s.googleAds.FetchMetrics(ctx, userID, customerID, s.cfg.WindowDays)
	})
}

// FetchAnalytics runs a GA4 ingestion for one property. An empty
// propertyID falls back to the pinned one.
func (s *Service) FetchAnalytics(ctx context.Context, userID int64, propertyID string) (int, error) {
	if propertyID == "" {
		stored, err := s.selectedAccount(ctx, userID, models.ProviderAnalytics)
		if err != nil {
			return 0, err
		}
		propertyID = stored
	}
	if propertyID == "" {
		return 0, apperror.ValidationFailed("property_id", "property_id is required")
	}
	return s.run(ctx, userID, models.ProviderAnalytics, func(ctx context.Context) ([]*models.MetricRow, error) {
		return s.analytics.FetchMetrics(ctx, userID, propertyID, s.cfg.WindowDays)
	})
}

// FetchMeta runs a Meta Ads ingestion for one ad account. An empty
// accountID falls back to the pinned one.
func (s *Service) FetchMeta(ctx context.Context, userID int64, accountID string) (int, error) {
	if accountID == "" {
		stored, err := s.selectedAccount(ctx, userID, models.ProviderMeta)
		if err != nil {
			return 0, err
		}
		accountID = stored
	}
	if accountID == "" {
		return 0, apperror.ValidationFailed("account_id", "no Meta ad account selected")
	}
	return s.run(ctx, userID, models.ProviderMeta, func(ctx context.Context) ([]*models.MetricRow, error) {
		return s.meta.FetchMetrics(ctx, userID, accountID, s.cfg.WindowDays)
	})
}

type fetchFunc func(ctx context.Context) ([]*models.MetricRow, error)

// run fetches with bounded retries on transient provider failures and
// merges the result.
func (s *Service) run(ctx context.Context, userID int64, provider models.Provider, fetch fetchFunc) (int, error) {
	started := time.Now()

	rows, err := s.fetchWithRetry(ctx, provider, fetch)
	if err != nil {
		if errors.Is(err, apperror.ErrReauthRequired) {
			// The vendor rejected a token the refresh path considered
			// valid. Retire the credential so the connection status
			// matches what fetches report.
			if delErr := s.tokens.Delete(ctx, userID, provider); delErr != nil {
				s.logger.Warn("failed to retire rejected credential",
					zap.String("provider", string(provider)),
					zap.Int64("user_id", userID),
					zap.Error(delErr))
			}
		}
		s.observeRun(provider, "error", 0, time.Since(started))
		return 0, err
	}

	n, err := s.ingestRows(ctx, userID, provider, rows)
	if err != nil {
		s.observeRun(provider, "error", 0, time.Since(started))
		return 0, err
	}

	s.observeRun(provider, "ok", n, time.Since(started))
	s.logger.Info("ingestion run complete",
		zap.String("provider", string(provider)),
		zap.Int64("user_id", userID),
		zap.Int("rows", n),
		zap.Duration("elapsed", time.Since(started)))
	return n, nil
}

func (s *Service) fetchWithRetry(ctx context.Context, provider models.Provider, fetch fetchFunc) ([]*models.MetricRow, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.cfg.RetryBaseDelay << (attempt - 1)
			s.logger.Warn("retrying provider fetch",
				zap.String("provider", string(provider)),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		rows, err := fetch(ctx)
		if err == nil {
			return rows, nil
		}
		if !apperror.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// ingestRows resolves registries and merges normalized rows through
// the upsert engine. Rows within one run are applied in fetch order,
// so a duplicated key resolves to the later row.
func (s *Service) ingestRows(ctx context.Context, userID int64, provider models.Provider, rows []*models.MetricRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	datasourceID, err := s.datasources.GetOrCreate(ctx, userID, provider.SourceName())
	if err != nil {
		return 0, err
	}

	// Campaign identities repeat across daily rows; resolve each once.
	campaignIDs := make(map[string]int64)
	perf := make([]*models.PerformanceRow, 0, len(rows))
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return 0, apperror.ValidationFailed("metric_row", err.Error())
		}
		key := row.CampaignExternalID + "\x00" + row.CampaignName
		campaignID, ok := campaignIDs[key]
		if !ok {
			campaignID, err = s.campaigns.GetOrCreate(ctx, &models.Campaign{
				DatasourceID: datasourceID,
				Name:         row.CampaignName,
				ExternalID:   row.CampaignExternalID,
			})
			if err != nil {
				return 0, err
			}
			campaignIDs[key] = campaignID
		}
		perf = append(perf, &models.PerformanceRow{
			DatasourceID:      datasourceID,
			CampaignID:        campaignID,
			Date:              row.Date,
			Costs:             row.Costs,
			Impressions:       row.Impressions,
			Clicks:            row.Clicks,
			CostPerClick:      row.CostPerClick,
			Sessions:          row.Sessions,
			Conversions:       row.Conversions,
			CostPerConversion: row.CostPerConversion,
		})
	}

	if err := s.metricsRepo.UpsertBatch(ctx, perf); err != nil {
		return 0, fmt.Errorf("upserting %d rows: %w", len(perf), err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateUser(ctx, userID); err != nil {
			s.logger.Warn("reporting cache invalidation failed",
				zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return len(perf), nil
}

func (s *Service) observeRun(provider models.Provider, outcome string, rows int, elapsed time.Duration) {
	if s.prom != nil {
		s.prom.RecordIngestRun(string(provider), outcome, rows, elapsed)
	}
}
