package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/campaign-kpi/internal/models"
)

// PostgresCampaignRepo implements CampaignRepo using PostgreSQL.
type PostgresCampaignRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCampaignRepo(pool *pgxpool.Pool) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{pool: pool}
}

const campaignColumns = `id, name, categories, target_views_for_fyp, created_at, updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	if err := row.Scan(&c.ID, &c.Name, &c.Categories, &c.TargetViewsForFYP, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresCampaignRepo) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

func (r *PostgresCampaignRepo) ListCampaigns(ctx context.Context) ([]*models.Campaign, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *PostgresCampaignRepo) UpsertCampaign(ctx context.Context, c *models.Campaign) error {
	categories := c.Categories
	if categories == nil {
		categories = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO campaigns (id, name, categories, target_views_for_fyp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			categories = EXCLUDED.categories,
			target_views_for_fyp = EXCLUDED.target_views_for_fyp,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.Name, categories, c.TargetViewsForFYP, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert campaign: %w", err)
	}
	return nil
}

func (r *PostgresCampaignRepo) CountCampaigns(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM campaigns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count campaigns: %w", err)
	}
	return n, nil
}

// PostgresAccountRepo implements AccountRepo using PostgreSQL.
type PostgresAccountRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepo(pool *pgxpool.Pool) *PostgresAccountRepo {
	return &PostgresAccountRepo{pool: pool}
}

func (r *PostgresAccountRepo) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, type, created_at, updated_at FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Type, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (r *PostgresAccountRepo) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, type, created_at, updated_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (r *PostgresAccountRepo) UpsertAccount(ctx context.Context, a *models.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, name, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			updated_at = EXCLUDED.updated_at
	`, a.ID, a.Name, a.Type, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) LinkAccount(ctx context.Context, campaignID, accountID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO campaign_accounts (campaign_id, account_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, campaignID, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to link account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresAccountRepo) UnlinkAccount(ctx context.Context, campaignID, accountID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM campaign_accounts WHERE campaign_id = $1 AND account_id = $2
	`, campaignID, accountID)
	if err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) LinkCounts(ctx context.Context, accountIDs []string) (map[string]int, error) {
	query := `SELECT account_id, COUNT(DISTINCT campaign_id) FROM campaign_accounts`
	args := []any{}
	if len(accountIDs) > 0 {
		query += ` WHERE account_id = ANY($1)`
		args = append(args, accountIDs)
	}
	query += ` GROUP BY account_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count account links: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
