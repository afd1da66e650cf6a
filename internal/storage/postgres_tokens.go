package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataplunge/dataplunge/internal/models"
)

// PostgresTokenRepo implements TokenRepo using PostgreSQL.
type PostgresTokenRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{pool: pool}
}

func (r *PostgresTokenRepo) Store(ctx context.Context, t *models.OAuthToken) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_tokens (user_id, provider, access_token, refresh_token, token_expiry, provider_account_id, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			provider_account_id = EXCLUDED.provider_account_id,
			updated_at = EXCLUDED.updated_at
	`, t.UserID, t.Provider, t.AccessToken, t.RefreshToken, t.Expiry, t.ExternalAccountID, now)
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	t.UpdatedAt = now
	return nil
}

func (r *PostgresTokenRepo) Get(ctx context.Context, userID int64, provider models.Provider) (*models.OAuthToken, error) {
	var (
		t            models.OAuthToken
		refreshToken *string
		accountID    *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, provider, access_token, refresh_token, token_expiry, provider_account_id, updated_at
		FROM oauth_tokens WHERE user_id = $1 AND provider = $2
	`, userID, provider).Scan(&t.UserID, &t.Provider, &t.AccessToken, &refreshToken, &t.Expiry, &accountID, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if refreshToken != nil {
		t.RefreshToken = *refreshToken
	}
	if accountID != nil {
		t.ExternalAccountID = *accountID
	}
	return &t, nil
}

func (r *PostgresTokenRepo) Delete(ctx context.Context, userID int64, provider models.Provider) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM oauth_tokens WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
