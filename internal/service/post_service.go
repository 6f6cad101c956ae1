package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radiusdt/campaign-kpi/internal/kpi"
	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

// PostService creates, edits and deletes posts and refreshes the KPI scopes
// each change touches.
type PostService struct {
	store  *storage.Store
	engine *kpi.Engine
	cache  CacheInvalidator
	logger *zap.Logger
}

func NewPostService(store *storage.Store, engine *kpi.Engine, cache CacheInvalidator, logger *zap.Logger) *PostService {
	return &PostService{store: store, engine: engine, cache: cache, logger: logger}
}

// scope is one (campaign, account) pair whose KPIs depend on a post.
type scope struct {
	campaignID string
	accountID  string
}

func scopeOf(p *models.Post) scope {
	return scope{campaignID: p.CampaignID, accountID: p.AccountID}
}

// GetPost returns a post or ErrNotFound.
func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	p, err := s.store.Posts.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	return p, nil
}

// ListPosts returns one page of posts ordered by id.
func (s *PostService) ListPosts(ctx context.Context, filter storage.PostFilter, offset, limit int) ([]*models.Post, error) {
	return s.store.Posts.QueryPosts(ctx, filter, offset, limit)
}

// CreatePost saves a new post and recalculates its account and campaign scopes.
func (s *PostService) CreatePost(ctx context.Context, p *models.Post) error {
	if err := s.validate(ctx, p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.Posts.InsertPost(ctx, p); err != nil {
		return err
	}
	return s.refresh(ctx, scopeOf(p))
}

// UpdatePost replaces a post. When it moves to another campaign or account
// both the old and the new scopes are recalculated.
func (s *PostService) UpdatePost(ctx context.Context, id string, p *models.Post) error {
	existing, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}
	p.ID = id
	if err := s.validate(ctx, p); err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.Posts.UpdatePost(ctx, p); err != nil {
		return err
	}
	return s.refresh(ctx, scopeOf(existing), scopeOf(p))
}

// DeletePost removes a post and recalculates the scopes it belonged to.
func (s *PostService) DeletePost(ctx context.Context, id string) error {
	existing, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Posts.DeletePost(ctx, id); err != nil {
		return err
	}
	return s.refresh(ctx, scopeOf(existing))
}

// validate checks the post fields, that its campaign and account exist and
// that its category is permitted by the campaign.
func (s *PostService) validate(ctx context.Context, p *models.Post) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c, err := s.store.Campaigns.GetCampaign(ctx, p.CampaignID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: campaign %s does not exist", models.ErrInvalidInput, p.CampaignID)
	}
	a, err := s.store.Accounts.GetAccount(ctx, p.AccountID)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("%w: account %s does not exist", models.ErrInvalidInput, p.AccountID)
	}
	if !c.AllowsCategory(p.CampaignCategory) {
		return fmt.Errorf("%w: %q is not a category of campaign %s", models.ErrInvalidCategory, p.CampaignCategory, c.ID)
	}
	return nil
}

// refresh invalidates cached dashboards, then recalculates every distinct
// account scope followed by every distinct campaign scope.
func (s *PostService) refresh(ctx context.Context, scopes ...scope) error {
	var campaigns []string
	seenCampaign := make(map[string]bool)
	seenScope := make(map[scope]bool)
	for _, sc := range scopes {
		if !seenCampaign[sc.campaignID] {
			seenCampaign[sc.campaignID] = true
			campaigns = append(campaigns, sc.campaignID)
		}
	}
	s.cache.Invalidate(ctx, campaigns...)

	for _, sc := range scopes {
		if seenScope[sc] {
			continue
		}
		seenScope[sc] = true
		if err := s.engine.RecalculateAccountKPIs(ctx, sc.campaignID, sc.accountID); err != nil {
			return s.stale(sc.campaignID, err)
		}
	}
	for _, id := range campaigns {
		if err := s.engine.RecalculateCampaignKPIs(ctx, id); err != nil {
			return s.stale(id, err)
		}
	}
	return nil
}

func (s *PostService) stale(campaignID string, err error) error {
	s.logger.Warn("post saved but kpis are stale",
		zap.String("campaign_id", campaignID),
		zap.Error(err),
	)
	return recalcError(err)
}
