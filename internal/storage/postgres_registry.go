package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/models"
)

// PostgresDatasourceRepo implements DatasourceRepo using PostgreSQL.
type PostgresDatasourceRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresDatasourceRepo(pool *pgxpool.Pool) *PostgresDatasourceRepo {
	return &PostgresDatasourceRepo{pool: pool}
}

// GetOrCreate inserts with ON CONFLICT DO NOTHING and then selects, so
// two concurrent first-fetches for the same provider resolve to one row.
func (r *PostgresDatasourceRepo) GetOrCreate(ctx context.Context, userID int64, sourceName string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO datasources (user_id, source_name)
		VALUES ($1, $2)
		ON CONFLICT (user_id, source_name) DO NOTHING
		RETURNING id
	`, userID, sourceName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to create datasource: %w", err)
	}

	// Conflict path: the row already existed.
	return r.GetID(ctx, userID, sourceName)
}

func (r *PostgresDatasourceRepo) GetID(ctx context.Context, userID int64, sourceName string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		SELECT id FROM datasources WHERE user_id = $1 AND source_name = $2
	`, userID, sourceName).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get datasource: %w", err)
	}
	return id, nil
}

func (r *PostgresDatasourceRepo) ListByUser(ctx context.Context, userID int64) ([]*models.Datasource, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, source_name, created_at
		FROM datasources WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasources: %w", err)
	}
	defer rows.Close()

	var res []*models.Datasource
	for rows.Next() {
		var d models.Datasource
		if err := rows.Scan(&d.ID, &d.UserID, &d.SourceName, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &d)
	}
	return res, rows.Err()
}

func (r *PostgresDatasourceRepo) Delete(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM datasources WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete datasource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("datasource", fmt.Sprintf("%d", id))
	}
	return nil
}

// PostgresCampaignRepo implements CampaignRepo using PostgreSQL.
type PostgresCampaignRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCampaignRepo(pool *pgxpool.Pool) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{pool: pool}
}

// GetOrCreate resolves campaign identity. The (datasource, external id)
// key takes priority; the name fallback is also scoped to the
// datasource, so identical names on different platforms never merge.
func (r *PostgresCampaignRepo) GetOrCreate(ctx context.Context, c *models.Campaign) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, apperror.ValidationFailed("campaign", err.Error())
	}
	if c.Name == "" {
		c.Name = c.ExternalID
	}

	if c.ExternalID != "" {
		var id int64
		err := r.pool.QueryRow(ctx, `
			INSERT INTO campaigns (data_source_id, campaign_name, external_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (data_source_id, external_id) WHERE external_id IS NOT NULL
			DO NOTHING
			RETURNING id
		`, c.DatasourceID, c.Name, c.ExternalID).Scan(&id)
		if err == nil {
			c.ID = id
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("failed to create campaign: %w", err)
		}
		err = r.pool.QueryRow(ctx, `
			SELECT id FROM campaigns WHERE data_source_id = $1 AND external_id = $2
		`, c.DatasourceID, c.ExternalID).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve campaign: %w", err)
		}
		c.ID = id
		return id, nil
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO campaigns (data_source_id, campaign_name)
		VALUES ($1, $2)
		ON CONFLICT (data_source_id, campaign_name) WHERE external_id IS NULL
		DO NOTHING
		RETURNING id
	`, c.DatasourceID, c.Name).Scan(&id)
	if err == nil {
		c.ID = id
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to create campaign: %w", err)
	}
	err = r.pool.QueryRow(ctx, `
		SELECT id FROM campaigns
		WHERE data_source_id = $1 AND campaign_name = $2 AND external_id IS NULL
	`, c.DatasourceID, c.Name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve campaign: %w", err)
	}
	c.ID = id
	return id, nil
}

func (r *PostgresCampaignRepo) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	var (
		c          models.Campaign
		externalID *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, data_source_id, campaign_name, external_id, created_at
		FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.DatasourceID, &c.Name, &externalID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	if externalID != nil {
		c.ExternalID = *externalID
	}
	return &c, nil
}

func (r *PostgresCampaignRepo) ListByDatasource(ctx context.Context, datasourceID int64) ([]*models.Campaign, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, data_source_id, campaign_name, external_id, created_at
		FROM campaigns WHERE data_source_id = $1 ORDER BY campaign_name
	`, datasourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var res []*models.Campaign
	for rows.Next() {
		var (
			c          models.Campaign
			externalID *string
		)
		if err := rows.Scan(&c.ID, &c.DatasourceID, &c.Name, &externalID, &c.CreatedAt); err != nil {
			return nil, err
		}
		if externalID != nil {
			c.ExternalID = *externalID
		}
		res = append(res, &c)
	}
	return res, rows.Err()
}
