package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the DDL applied at startup. Uniqueness constraints are
// the load-bearing part: (user_id, provider) on tokens, (user_id,
// source_name) on datasources, (data_source_id, external_id) and
// (data_source_id, campaign_name) on campaigns, and the
// (data_source_id, campaign_id, date) idempotency key on metrics.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              BIGSERIAL PRIMARY KEY,
		email           TEXT NOT NULL UNIQUE,
		password_hash   TEXT,
		full_name       TEXT,
		google_oauth_id TEXT UNIQUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_login      TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_tokens (
		user_id             BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider            TEXT NOT NULL,
		access_token        TEXT NOT NULL,
		refresh_token       TEXT,
		token_expiry        TIMESTAMPTZ,
		provider_account_id TEXT,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS datasources (
		id          BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		source_name TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, source_name)
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id             BIGSERIAL PRIMARY KEY,
		data_source_id BIGINT NOT NULL REFERENCES datasources(id) ON DELETE CASCADE,
		campaign_name  TEXT NOT NULL,
		external_id    TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS campaigns_external_key
		ON campaigns (data_source_id, external_id) WHERE external_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS campaigns_name_key
		ON campaigns (data_source_id, campaign_name) WHERE external_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS performance_metrics (
		data_source_id      BIGINT NOT NULL REFERENCES datasources(id) ON DELETE CASCADE,
		campaign_id         BIGINT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		date                DATE NOT NULL,
		costs               DOUBLE PRECISION NOT NULL DEFAULT 0,
		impressions         BIGINT NOT NULL DEFAULT 0,
		clicks              BIGINT NOT NULL DEFAULT 0,
		cost_per_click      DOUBLE PRECISION NOT NULL DEFAULT 0,
		sessions            BIGINT NOT NULL DEFAULT 0,
		conversions         DOUBLE PRECISION NOT NULL DEFAULT 0,
		cost_per_conversion DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (data_source_id, campaign_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS performance_metrics_date_idx
		ON performance_metrics (date)`,
}

// Bootstrap applies the schema. Statements are idempotent so repeated
// startups are safe.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
