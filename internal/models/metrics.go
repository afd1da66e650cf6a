package models

import (
	"fmt"
	"time"
)

// DateFormat is the canonical day key used throughout the metrics
// tables and the reporting API.
const DateFormat = "2006-01-02"

// ParseDate validates a day string against DateFormat.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// Ratio returns cost/divisor with the zero-divisor guard applied.
// Every derived metric in the system (cost per click, cost per
// conversion, cost per session) goes through this one function so the
// guard convention cannot drift between ingestion and reporting.
func Ratio(cost, divisor float64) float64 {
	if divisor == 0 {
		return 0
	}
	return cost / divisor
}

// MetricRow is the normalized per-day tuple every vendor fetcher
// produces. It is the only shape the reconciliation core accepts;
// vendor-specific response formats never leave the ingest package.
type MetricRow struct {
	CampaignExternalID string  `json:"campaign_external_id,omitempty"`
	CampaignName       string  `json:"campaign_name"`
	Date               string  `json:"date"`
	Costs              float64 `json:"costs"`
	Impressions        int64   `json:"impressions"`
	Clicks             int64   `json:"clicks"`
	CostPerClick       float64 `json:"cost_per_click"`
	Sessions           int64   `json:"sessions"`
	Conversions        float64 `json:"conversions"`
	CostPerConversion  float64 `json:"cost_per_conversion"`
}

// Validate rejects rows the upsert engine must never see.
func (m *MetricRow) Validate() error {
	if m.CampaignName == "" && m.CampaignExternalID == "" {
		return fmt.Errorf("metric row needs a campaign name or external id")
	}
	if _, err := ParseDate(m.Date); err != nil {
		return err
	}
	return nil
}

// PerformanceRow is one day of metrics for one (datasource, campaign)
// pair. (DatasourceID, CampaignID, Date) is the idempotency key for all
// ingestion; rows are mutated only by the upsert engine.
type PerformanceRow struct {
	DatasourceID      int64   `json:"data_source_id"`
	CampaignID        int64   `json:"campaign_id"`
	Date              string  `json:"date"`
	Costs             float64 `json:"costs"`
	Impressions       int64   `json:"impressions"`
	Clicks            int64   `json:"clicks"`
	CostPerClick      float64 `json:"cost_per_click"`
	Sessions          int64   `json:"sessions"`
	Conversions       float64 `json:"conversions"`
	CostPerConversion float64 `json:"cost_per_conversion"`
}
