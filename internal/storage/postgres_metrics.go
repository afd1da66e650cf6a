package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataplunge/dataplunge/internal/models"
)

// PostgresMetricsRepo implements MetricsRepo using PostgreSQL.
// The ON CONFLICT clause is the reconciliation primitive: insert or
// full-replace in one atomic statement, no read-then-write step.
type PostgresMetricsRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMetricsRepo(pool *pgxpool.Pool) *PostgresMetricsRepo {
	return &PostgresMetricsRepo{pool: pool}
}

const upsertMetricsSQL = `
	INSERT INTO performance_metrics (
		data_source_id, campaign_id, date, costs, impressions, clicks,
		cost_per_click, sessions, conversions, cost_per_conversion
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (data_source_id, campaign_id, date) DO UPDATE SET
		costs = EXCLUDED.costs,
		impressions = EXCLUDED.impressions,
		clicks = EXCLUDED.clicks,
		cost_per_click = EXCLUDED.cost_per_click,
		sessions = EXCLUDED.sessions,
		conversions = EXCLUDED.conversions,
		cost_per_conversion = EXCLUDED.cost_per_conversion
`

func (r *PostgresMetricsRepo) Upsert(ctx context.Context, row *models.PerformanceRow) error {
	if _, err := models.ParseDate(row.Date); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, upsertMetricsSQL,
		row.DatasourceID, row.CampaignID, row.Date,
		row.Costs, row.Impressions, row.Clicks, row.CostPerClick,
		row.Sessions, row.Conversions, row.CostPerConversion,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metrics: %w", err)
	}
	return nil
}

// UpsertBatch applies rows in slice order inside one transaction, so a
// duplicate key within the batch resolves to the later row and a failed
// run never leaves a partial batch behind.
func (r *PostgresMetricsRepo) UpsertBatch(ctx context.Context, rows []*models.PerformanceRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range rows {
		if _, err := models.ParseDate(row.Date); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertMetricsSQL,
			row.DatasourceID, row.CampaignID, row.Date,
			row.Costs, row.Impressions, row.Clicks, row.CostPerClick,
			row.Sessions, row.Conversions, row.CostPerConversion,
		); err != nil {
			return fmt.Errorf("failed to upsert metrics batch: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresMetricsRepo) Get(ctx context.Context, datasourceID, campaignID int64, date string) (*models.PerformanceRow, error) {
	var row models.PerformanceRow
	err := r.pool.QueryRow(ctx, `
		SELECT data_source_id, campaign_id, to_char(date, 'YYYY-MM-DD'),
		       costs, impressions, clicks, cost_per_click,
		       sessions, conversions, cost_per_conversion
		FROM performance_metrics
		WHERE data_source_id = $1 AND campaign_id = $2 AND date = $3
	`, datasourceID, campaignID, date).Scan(
		&row.DatasourceID, &row.CampaignID, &row.Date,
		&row.Costs, &row.Impressions, &row.Clicks, &row.CostPerClick,
		&row.Sessions, &row.Conversions, &row.CostPerConversion,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	return &row, nil
}
