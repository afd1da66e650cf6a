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

// PostgresUserRepo implements UserRepo using PostgreSQL.
type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) Create(ctx context.Context, u *models.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, full_name, google_oauth_id, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $5)
		RETURNING id
	`, u.Email, u.PasswordHash, u.FullName, u.GoogleOAuthID, now).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `WHERE email = $1`, email)
}

func (r *PostgresUserRepo) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return r.getOne(ctx, `WHERE google_oauth_id = $1`, googleID)
}

func (r *PostgresUserRepo) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	var (
		u            models.User
		passwordHash *string
		fullName     *string
		googleID     *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, full_name, google_oauth_id, created_at, updated_at, last_login
		FROM users `+where,
		arg,
	).Scan(&u.ID, &u.Email, &passwordHash, &fullName, &googleID, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	if fullName != nil {
		u.FullName = *fullName
	}
	if googleID != nil {
		u.GoogleOAuthID = *googleID
	}
	return &u, nil
}

func (r *PostgresUserRepo) LinkGoogleID(ctx context.Context, id int64, googleID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET google_oauth_id = $2, updated_at = now() WHERE id = $1
	`, id, googleID)
	if err != nil {
		return fmt.Errorf("failed to link google account: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}
