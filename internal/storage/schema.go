package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		id                    TEXT PRIMARY KEY,
		name                  TEXT NOT NULL,
		categories            TEXT[] NOT NULL DEFAULT '{}',
		target_views_for_fyp  BIGINT,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		type        TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_accounts (
		campaign_id  TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		account_id   TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (campaign_id, account_id)
	)`,
	`CREATE INDEX IF NOT EXISTS campaign_accounts_account_idx ON campaign_accounts (account_id)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id                 TEXT PRIMARY KEY,
		campaign_id        TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		account_id         TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		content_type       TEXT NOT NULL DEFAULT '',
		campaign_category  TEXT NOT NULL DEFAULT '',
		url                TEXT NOT NULL DEFAULT '',
		total_view         BIGINT NOT NULL DEFAULT 0,
		total_like         BIGINT NOT NULL DEFAULT 0,
		total_comment      BIGINT NOT NULL DEFAULT 0,
		total_share        BIGINT NOT NULL DEFAULT 0,
		total_saved        BIGINT NOT NULL DEFAULT 0,
		yellow_cart        BOOLEAN NOT NULL DEFAULT false,
		posted_at          TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS posts_campaign_account_idx ON posts (campaign_id, account_id, id)`,
	`CREATE TABLE IF NOT EXISTS kpis (
		id           TEXT PRIMARY KEY,
		campaign_id  TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		account_id   TEXT REFERENCES accounts(id) ON DELETE CASCADE,
		category     TEXT NOT NULL,
		target       NUMERIC(20, 2) NOT NULL DEFAULT 0,
		actual       NUMERIC(20, 2) NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// One row per (campaign, account, category); campaign-level rows have a NULL account.
	`CREATE UNIQUE INDEX IF NOT EXISTS kpis_scope_category_uidx
		ON kpis (campaign_id, (COALESCE(account_id, '')), category)`,
}

// EnsureSchema creates the tables and indexes used by the Postgres repositories.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// NewPostgresStore returns a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Campaigns: NewPostgresCampaignRepo(pool),
		Accounts:  NewPostgresAccountRepo(pool),
		Posts:     NewPostgresPostRepo(pool),
		KPIs:      NewPostgresKPIRepo(pool),
	}
}
