package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/campaign-kpi/internal/models"
)

// PostgresPostRepo implements PostRepo using PostgreSQL.
type PostgresPostRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPostRepo(pool *pgxpool.Pool) *PostgresPostRepo {
	return &PostgresPostRepo{pool: pool}
}

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

const postColumns = `id, campaign_id, account_id, content_type, campaign_category, url,
	total_view, total_like, total_comment, total_share, total_saved, yellow_cart,
	posted_at, created_at, updated_at`

func scanPost(row pgx.Row) (*models.Post, error) {
	var (
		p                              models.Post
		views, likes, comments, shares int64
		saved                          int64
		yellowCart                     bool
		postedAt                       *time.Time
	)
	if err := row.Scan(
		&p.ID, &p.CampaignID, &p.AccountID, &p.ContentType, &p.CampaignCategory, &p.URL,
		&views, &likes, &comments, &shares, &saved, &yellowCart,
		&postedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.TotalView = models.LooseInt(views)
	p.TotalLike = models.LooseInt(likes)
	p.TotalComment = models.LooseInt(comments)
	p.TotalShare = models.LooseInt(shares)
	p.TotalSaved = models.LooseInt(saved)
	p.YellowCart = models.LooseBool(yellowCart)
	if postedAt != nil {
		p.PostedAt = *postedAt
	}
	return &p, nil
}

// QueryPosts returns one page ordered by id. Ordering on the primary key keeps
// consecutive pages disjoint and gap-free while the table is not being rewritten.
func (r *PostgresPostRepo) QueryPosts(ctx context.Context, filter PostFilter, offset, limit int) ([]*models.Post, error) {
	if offset < 0 {
		offset = 0
	}
	limit = clampLimit(limit)

	var where []string
	args := []any{}
	argPos := 1
	if filter.CampaignID != "" {
		where = append(where, fmt.Sprintf("campaign_id = $%d", argPos))
		args = append(args, filter.CampaignID)
		argPos++
	}
	if filter.AccountID != "" {
		where = append(where, fmt.Sprintf("account_id = $%d", argPos))
		args = append(args, filter.AccountID)
		argPos++
	}
	if filter.CampaignIDs != nil {
		where = append(where, fmt.Sprintf("campaign_id = ANY($%d)", argPos))
		args = append(args, filter.CampaignIDs)
		argPos++
	}

	query := `SELECT ` + postColumns + ` FROM posts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*models.Post, 0, limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	return posts, nil
}

func (r *PostgresPostRepo) GetPost(ctx context.Context, id string) (*models.Post, error) {
	p, err := scanPost(r.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return p, nil
}

func (r *PostgresPostRepo) InsertPost(ctx context.Context, p *models.Post) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, postArgs(p)...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("post %s: %w", p.ID, models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

func (r *PostgresPostRepo) UpdatePost(ctx context.Context, p *models.Post) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE posts SET
			campaign_id = $2, account_id = $3, content_type = $4, campaign_category = $5, url = $6,
			total_view = $7, total_like = $8, total_comment = $9, total_share = $10, total_saved = $11,
			yellow_cart = $12, posted_at = $13, updated_at = $14
		WHERE id = $1
	`, append(postArgs(p)[:13], p.UpdatedAt)...)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %s: %w", p.ID, models.ErrNotFound)
	}
	return nil
}

func (r *PostgresPostRepo) DeletePost(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

func postArgs(p *models.Post) []any {
	var postedAt *time.Time
	if !p.PostedAt.IsZero() {
		postedAt = &p.PostedAt
	}
	return []any{
		p.ID, p.CampaignID, p.AccountID, p.ContentType, p.CampaignCategory, p.URL,
		int64(p.TotalView), int64(p.TotalLike), int64(p.TotalComment), int64(p.TotalShare), int64(p.TotalSaved),
		bool(p.YellowCart), postedAt, p.CreatedAt, p.UpdatedAt,
	}
}
