package storage

import (
	"context"

	"github.com/dataplunge/dataplunge/internal/models"
)

// =============================================
// USER REPOSITORY
// =============================================

// UserRepo defines operations for user identity storage.
type UserRepo interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	// LinkGoogleID attaches a Google OAuth ID to an existing account.
	LinkGoogleID(ctx context.Context, id int64, googleID string) error
	TouchLastLogin(ctx context.Context, id int64) error
}

// =============================================
// TOKEN STORE
// =============================================

// TokenRepo persists OAuth credentials per (user, provider) pair.
// Lookups return (nil, nil) when no token is stored; absence is a
// normal state in the token lifecycle, not an error.
type TokenRepo interface {
	// Store upserts on (user_id, provider), replacing the access and
	// refresh token and expiry of any existing row.
	Store(ctx context.Context, t *models.OAuthToken) error
	Get(ctx context.Context, userID int64, provider models.Provider) (*models.OAuthToken, error)
	// Delete removes the stored credential, returning the pair to the
	// absent state. Deleting a missing token is a no-op.
	Delete(ctx context.Context, userID int64, provider models.Provider) error
}

// =============================================
// DATASOURCE REGISTRY
// =============================================

// DatasourceRepo maps (user, source name) to an internal datasource ID.
type DatasourceRepo interface {
	// GetOrCreate is idempotent: repeated calls with the same arguments
	// return the same ID and never create a duplicate row.
	GetOrCreate(ctx context.Context, userID int64, sourceName string) (int64, error)
	// GetID returns 0 when no datasource is registered for the pair.
	GetID(ctx context.Context, userID int64, sourceName string) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Datasource, error)
	// Delete removes the datasource and cascades to its performance
	// metric rows.
	Delete(ctx context.Context, userID, id int64) error
}

// =============================================
// CAMPAIGN REGISTRY
// =============================================

// CampaignRepo maps vendor campaign identities to internal IDs.
type CampaignRepo interface {
	// GetOrCreate resolves by (datasource, external id) when an external
	// ID is present, falling back to (datasource, name) otherwise. The
	// external-id path wins even when the stored name differs from the
	// requested one. Idempotent under repeated and concurrent calls.
	GetOrCreate(ctx context.Context, c *models.Campaign) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	ListByDatasource(ctx context.Context, datasourceID int64) ([]*models.Campaign, error)
}

// =============================================
// METRICS UPSERT ENGINE
// =============================================

// MetricsRepo merges per-day metric rows into the performance table.
type MetricsRepo interface {
	// Upsert inserts or fully replaces the row keyed by
	// (data_source_id, campaign_id, date). Last write wins; metric
	// fields are never summed on conflict. Relies on the database's
	// atomic conflict resolution so concurrent ingestion runs cannot
	// interleave a read-then-write race.
	Upsert(ctx context.Context, row *models.PerformanceRow) error
	// UpsertBatch applies rows in order, so a duplicate key within one
	// batch resolves to the later row.
	UpsertBatch(ctx context.Context, rows []*models.PerformanceRow) error
	Get(ctx context.Context, datasourceID, campaignID int64, date string) (*models.PerformanceRow, error)
}

// =============================================
// REPORTING
// =============================================

// DailyRecord is one raw performance row joined with its source name.
type DailyRecord struct {
	Date              string  `json:"date"`
	Source            string  `json:"source"`
	Costs             float64 `json:"costs"`
	Conversions       float64 `json:"conversions"`
	CostPerConversion float64 `json:"cost_per_conversion"`
	Impressions       int64   `json:"impressions"`
	Clicks            int64   `json:"clicks"`
	Sessions          int64   `json:"sessions"`
	CostPerClick      float64 `json:"cost_per_click"`
}

// DailySummary aggregates all sources into one row per day. Derived
// ratios use the day's summed numerator and denominator, never an
// average of per-row ratios.
type DailySummary struct {
	Date              string  `json:"date"`
	Costs             float64 `json:"costs"`
	Conversions       float64 `json:"conversions"`
	CostPerConversion float64 `json:"cost_per_conversion"`
	Impressions       int64   `json:"impressions"`
	Clicks            int64   `json:"clicks"`
	Sessions          int64   `json:"sessions"`
	CostPerClick      float64 `json:"cost_per_click"`
}

// ChannelSummary aggregates a date range per source.
type ChannelSummary struct {
	Source            string  `json:"source"`
	Costs             float64 `json:"costs"`
	Impressions       int64   `json:"impressions"`
	Clicks            int64   `json:"clicks"`
	CostPerClick      float64 `json:"cost_per_click"`
	Sessions          int64   `json:"sessions"`
	Conversions       float64 `json:"conversions"`
	CostPerConversion float64 `json:"cost_per_conversion"`
}

// CampaignSummary aggregates a date range per (source, campaign).
type CampaignSummary struct {
	TrafficSource     string  `json:"traffic_source"`
	CampaignName      string  `json:"campaign_name"`
	Costs             float64 `json:"costs"`
	Impressions       int64   `json:"impressions"`
	Clicks            int64   `json:"clicks"`
	CostPerClick      float64 `json:"cost_per_click"`
	Sessions          int64   `json:"sessions"`
	CostPerSession    float64 `json:"cost_per_session"`
	Conversions       float64 `json:"conversions"`
	CostPerConversion float64 `json:"cost_per_conversion"`
}

// MonthlySummary is the recomputable month-level rollup. It is a cache
// of a SQL aggregation and can be dropped and rebuilt without loss.
type MonthlySummary struct {
	Month             string  `json:"month"` // YYYY-MM
	Costs             float64 `json:"costs"`
	Impressions       int64   `json:"impressions"`
	Clicks            int64   `json:"clicks"`
	Sessions          int64   `json:"sessions"`
	Conversions       float64 `json:"conversions"`
	CostPerClick      float64 `json:"cost_per_click"`
	CostPerConversion float64 `json:"cost_per_conversion"`
}

// ReportingRepo provides read-only aggregation over performance rows.
// All queries are scoped to one user's datasources.
type ReportingRepo interface {
	FilterByDay(ctx context.Context, userID int64, date string) ([]*DailyRecord, error)
	FilterByRange(ctx context.Context, userID int64, start, end string) ([]*DailyRecord, error)
	AggregateByDay(ctx context.Context, userID int64, start, end string) ([]*DailySummary, error)
	AggregateByChannel(ctx context.Context, userID int64, start, end string) ([]*ChannelSummary, error)
	AggregateByCampaign(ctx context.Context, userID int64, start, end string) ([]*CampaignSummary, error)
	AggregateByMonth(ctx context.Context, userID int64, start, end string) ([]*MonthlySummary, error)
}
