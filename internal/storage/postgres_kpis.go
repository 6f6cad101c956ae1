package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/campaign-kpi/internal/models"
)

// PostgresKPIRepo implements KPIRepo using PostgreSQL.
type PostgresKPIRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresKPIRepo(pool *pgxpool.Pool) *PostgresKPIRepo {
	return &PostgresKPIRepo{pool: pool}
}

const kpiColumns = `id, campaign_id, account_id, category, target::float8, actual::float8, created_at, updated_at`

func scanKPI(row pgx.Row) (*models.KPI, error) {
	var k models.KPI
	var category string
	if err := row.Scan(&k.ID, &k.CampaignID, &k.AccountID, &category, &k.Target, &k.Actual, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	k.Category = models.Category(category)
	return &k, nil
}

// buildKPIWhere translates a KPIFilter into a WHERE clause and its arguments.
func buildKPIWhere(f KPIFilter) (string, []any) {
	var where []string
	args := []any{}
	argPos := 1
	add := func(clause string, arg any) {
		where = append(where, fmt.Sprintf(clause, argPos))
		args = append(args, arg)
		argPos++
	}

	if f.CampaignID != "" {
		add("campaign_id = $%d", f.CampaignID)
	}
	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	switch f.Scope {
	case ScopeCampaign:
		where = append(where, "account_id IS NULL")
	case ScopeAccount:
		where = append(where, "account_id IS NOT NULL")
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.AccountIDs != nil {
		add("account_id = ANY($%d)", f.AccountIDs)
	}
	if len(f.ExcludeAccountIDs) > 0 {
		add("(account_id IS NULL OR NOT (account_id = ANY($%d)))", f.ExcludeAccountIDs)
	}

	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (r *PostgresKPIRepo) ListKPIs(ctx context.Context, filter KPIFilter) ([]*models.KPI, error) {
	where, args := buildKPIWhere(filter)
	rows, err := r.pool.Query(ctx, `SELECT `+kpiColumns+` FROM kpis`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list kpis: %w", err)
	}
	defer rows.Close()

	kpis := make([]*models.KPI, 0)
	for rows.Next() {
		k, err := scanKPI(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kpi: %w", err)
		}
		kpis = append(kpis, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list kpis: %w", err)
	}
	return kpis, nil
}

func (r *PostgresKPIRepo) GetKPI(ctx context.Context, id string) (*models.KPI, error) {
	k, err := scanKPI(r.pool.QueryRow(ctx, `SELECT `+kpiColumns+` FROM kpis WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kpi: %w", err)
	}
	return k, nil
}

// InsertKPIs sends every row in a single batch round trip. Rows that collide
// with an existing (campaign, account, category) triple are skipped.
func (r *PostgresKPIRepo) InsertKPIs(ctx context.Context, rows []*models.KPI) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, k := range rows {
		batch.Queue(`
			INSERT INTO kpis (id, campaign_id, account_id, category, target, actual, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING
		`, k.ID, k.CampaignID, k.AccountID, string(k.Category), k.Target, k.Actual, k.CreatedAt, k.UpdatedAt)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert kpis: %w", err)
		}
	}
	return nil
}

func (r *PostgresKPIRepo) UpdateKPIActual(ctx context.Context, ids []string, actual float64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE kpis SET actual = $1, updated_at = now() WHERE id = ANY($2)
	`, actual, ids)
	if err != nil {
		return fmt.Errorf("failed to update kpi actuals: %w", err)
	}
	return nil
}

func (r *PostgresKPIRepo) ResetKPIs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE kpis SET target = 0, actual = 0, updated_at = now() WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to reset kpis: %w", err)
	}
	return nil
}

func (r *PostgresKPIRepo) UpdateKPITarget(ctx context.Context, id string, target float64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE kpis SET target = $1, updated_at = now() WHERE id = $2
	`, target, id)
	if err != nil {
		return fmt.Errorf("failed to update kpi target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kpi %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *PostgresKPIRepo) DeleteKPI(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM kpis WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete kpi: %w", err)
	}
	return nil
}
