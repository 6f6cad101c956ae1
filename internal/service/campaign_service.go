package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radiusdt/campaign-kpi/internal/kpi"
	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

// CampaignService provides CRUD operations over campaigns.
type CampaignService struct {
	repo   storage.CampaignRepo
	engine *kpi.Engine
	cache  CacheInvalidator
}

// NewCampaignService constructs a CampaignService backed by the given repo.
func NewCampaignService(repo storage.CampaignRepo, engine *kpi.Engine, cache CacheInvalidator) *CampaignService {
	return &CampaignService{repo: repo, engine: engine, cache: cache}
}

// ListCampaigns returns all campaigns.
func (s *CampaignService) ListCampaigns(ctx context.Context) ([]*models.Campaign, error) {
	return s.repo.ListCampaigns(ctx)
}

// GetCampaign returns a campaign by ID or ErrNotFound.
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("campaign %s: %w", id, models.ErrNotFound)
	}
	return c, nil
}

// UpsertCampaign validates the campaign, populates ID and timestamps and saves it.
func (s *CampaignService) UpsertCampaign(ctx context.Context, c *models.Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if err := s.repo.UpsertCampaign(ctx, c); err != nil {
		return err
	}
	// The summary carries the campaign count; no per-campaign view changes.
	s.cache.Invalidate(ctx)
	return nil
}

// Recalculate refreshes every KPI scope of the campaign.
func (s *CampaignService) Recalculate(ctx context.Context, id string) error {
	if _, err := s.GetCampaign(ctx, id); err != nil {
		return err
	}
	return s.engine.RecalculateCampaign(ctx, id)
}
