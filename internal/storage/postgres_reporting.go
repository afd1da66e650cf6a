package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresReportingRepo implements ReportingRepo using PostgreSQL.
// Derived ratios use CASE WHEN guards over the group sums, matching
// models.Ratio semantics exactly.
type PostgresReportingRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresReportingRepo(pool *pgxpool.Pool) *PostgresReportingRepo {
	return &PostgresReportingRepo{pool: pool}
}

const dailyRecordSQL = `
	SELECT to_char(pm.date, 'YYYY-MM-DD'), ds.source_name,
	       pm.costs, pm.conversions, pm.cost_per_conversion,
	       pm.impressions, pm.clicks, pm.sessions, pm.cost_per_click
	FROM performance_metrics pm
	JOIN datasources ds ON pm.data_source_id = ds.id
	WHERE ds.user_id = $1 AND pm.date BETWEEN $2 AND $3
	ORDER BY pm.date, ds.source_name
`

func (r *PostgresReportingRepo) FilterByDay(ctx context.Context, userID int64, date string) ([]*DailyRecord, error) {
	return r.filter(ctx, userID, date, date)
}

func (r *PostgresReportingRepo) FilterByRange(ctx context.Context, userID int64, start, end string) ([]*DailyRecord, error) {
	return r.filter(ctx, userID, start, end)
}

func (r *PostgresReportingRepo) filter(ctx context.Context, userID int64, start, end string) ([]*DailyRecord, error) {
	rows, err := r.pool.Query(ctx, dailyRecordSQL, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to filter performance: %w", err)
	}
	defer rows.Close()

	res := make([]*DailyRecord, 0)
	for rows.Next() {
		var d DailyRecord
		if err := rows.Scan(&d.Date, &d.Source, &d.Costs, &d.Conversions, &d.CostPerConversion,
			&d.Impressions, &d.Clicks, &d.Sessions, &d.CostPerClick); err != nil {
			return nil, err
		}
		res = append(res, &d)
	}
	return res, rows.Err()
}

func (r *PostgresReportingRepo) AggregateByDay(ctx context.Context, userID int64, start, end string) ([]*DailySummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			to_char(pm.date, 'YYYY-MM-DD'),
			SUM(pm.costs),
			SUM(pm.conversions),
			CASE WHEN SUM(pm.conversions) > 0 THEN SUM(pm.costs) / SUM(pm.conversions) ELSE 0 END,
			SUM(pm.impressions),
			SUM(pm.clicks),
			SUM(pm.sessions),
			CASE WHEN SUM(pm.clicks) > 0 THEN SUM(pm.costs) / SUM(pm.clicks) ELSE 0 END
		FROM performance_metrics pm
		JOIN datasources ds ON pm.data_source_id = ds.id
		WHERE ds.user_id = $1 AND pm.date BETWEEN $2 AND $3
		GROUP BY pm.date
		ORDER BY pm.date
	`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by day: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, func(s *DailySummary) []any {
		return []any{&s.Date, &s.Costs, &s.Conversions, &s.CostPerConversion,
			&s.Impressions, &s.Clicks, &s.Sessions, &s.CostPerClick}
	})
}

func (r *PostgresReportingRepo) AggregateByChannel(ctx context.Context, userID int64, start, end string) ([]*ChannelSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			ds.source_name,
			SUM(pm.costs),
			SUM(pm.impressions),
			SUM(pm.clicks),
			CASE WHEN SUM(pm.clicks) > 0 THEN SUM(pm.costs) / SUM(pm.clicks) ELSE 0 END,
			SUM(pm.sessions),
			SUM(pm.conversions),
			CASE WHEN SUM(pm.conversions) > 0 THEN SUM(pm.costs) / SUM(pm.conversions) ELSE 0 END
		FROM performance_metrics pm
		JOIN datasources ds ON pm.data_source_id = ds.id
		WHERE ds.user_id = $1 AND pm.date BETWEEN $2 AND $3
		GROUP BY ds.source_name
		ORDER BY ds.source_name
	`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by channel: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, func(s *ChannelSummary) []any {
		return []any{&s.Source, &s.Costs, &s.Impressions, &s.Clicks, &s.CostPerClick,
			&s.Sessions, &s.Conversions, &s.CostPerConversion}
	})
}

func (r *PostgresReportingRepo) AggregateByCampaign(ctx context.Context, userID int64, start, end string) ([]*CampaignSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			ds.source_name,
			c.campaign_name,
			SUM(pm.costs),
			SUM(pm.impressions),
			SUM(pm.clicks),
			CASE WHEN SUM(pm.clicks) > 0 THEN SUM(pm.costs) / SUM(pm.clicks) ELSE 0 END,
			SUM(pm.sessions),
			CASE WHEN SUM(pm.sessions) > 0 THEN SUM(pm.costs) / SUM(pm.sessions) ELSE 0 END,
			SUM(pm.conversions),
			CASE WHEN SUM(pm.conversions) > 0 THEN SUM(pm.costs) / SUM(pm.conversions) ELSE 0 END
		FROM performance_metrics pm
		JOIN datasources ds ON pm.data_source_id = ds.id
		JOIN campaigns c ON pm.campaign_id = c.id
		WHERE ds.user_id = $1 AND pm.date BETWEEN $2 AND $3
		GROUP BY ds.source_name, c.campaign_name
		ORDER BY SUM(pm.costs) DESC
	`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by campaign: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, func(s *CampaignSummary) []any {
		return []any{&s.TrafficSource, &s.CampaignName, &s.Costs, &s.Impressions,
			&s.Clicks, &s.CostPerClick, &s.Sessions, &s.CostPerSession,
			&s.Conversions, &s.CostPerConversion}
	})
}

func (r *PostgresReportingRepo) AggregateByMonth(ctx context.Context, userID int64, start, end string) ([]*MonthlySummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			to_char(date_trunc('month', pm.date), 'YYYY-MM'),
			SUM(pm.costs),
			SUM(pm.impressions),
			SUM(pm.clicks),
			SUM(pm.sessions),
			SUM(pm.conversions),
			CASE WHEN SUM(pm.clicks) > 0 THEN SUM(pm.costs) / SUM(pm.clicks) ELSE 0 END,
			CASE WHEN SUM(pm.conversions) > 0 THEN SUM(pm.costs) / SUM(pm.conversions) ELSE 0 END
		FROM performance_metrics pm
		JOIN datasources ds ON pm.data_source_id = ds.id
		WHERE ds.user_id = $1 AND pm.date BETWEEN $2 AND $3
		GROUP BY date_trunc('month', pm.date)
		ORDER BY date_trunc('month', pm.date)
	`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by month: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, func(s *MonthlySummary) []any {
		return []any{&s.Month, &s.Costs, &s.Impressions, &s.Clicks,
			&s.Sessions, &s.Conversions, &s.CostPerClick, &s.CostPerConversion}
	})
}

// scanRows collects query rows into a typed slice using the dest
// function to map struct fields to scan targets.
func scanRows[T any](rows pgx.Rows, dest func(*T) []any) ([]*T, error) {
	res := make([]*T, 0)
	for rows.Next() {
		var item T
		if err := rows.Scan(dest(&item)...); err != nil {
			return nil, err
		}
		res = append(res, &item)
	}
	return res, rows.Err()
}
