package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/radiusdt/campaign-kpi/internal/kpi"
	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

// CreateKPIRequest sets a target on a (campaign, account, category) triple.
// Actual is only honoured for account-level GMV_IDR, the one manually entered value.
type CreateKPIRequest struct {
	CampaignID string   `json:"campaignId"`
	AccountID  *string  `json:"accountId"`
	Category   string   `json:"category"`
	Target     float64  `json:"target"`
	Actual     *float64 `json:"actual"`
}

// KPIService handles explicit KPI edits.
type KPIService struct {
	store  *storage.Store
	engine *kpi.Engine
	logger *zap.Logger
}

func NewKPIService(store *storage.Store, engine *kpi.Engine, logger *zap.Logger) *KPIService {
	return &KPIService{store: store, engine: engine, logger: logger}
}

// GetKPI returns a KPI row or ErrNotFound.
func (s *KPIService) GetKPI(ctx context.Context, id string) (*models.KPI, error) {
	k, err := s.store.KPIs.GetKPI(ctx, id)
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, fmt.Errorf("kpi %s: %w", id, models.ErrNotFound)
	}
	return k, nil
}

// CreateKPI finds or creates the triple, sets its target and refreshes the
// scope so the new row carries a current actual.
func (s *KPIService) CreateKPI(ctx context.Context, req CreateKPIRequest) (*models.KPI, error) {
	category, err := models.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	if req.Target < 0 {
		return nil, fmt.Errorf("%w: target must not be negative", models.ErrInvalidInput)
	}
	if req.AccountID != nil && strings.TrimSpace(*req.AccountID) == "" {
		req.AccountID = nil
	}
	c, err := s.store.Campaigns.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("campaign %s: %w", req.CampaignID, models.ErrNotFound)
	}
	if req.AccountID != nil {
		a, err := s.store.Accounts.GetAccount(ctx, *req.AccountID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, fmt.Errorf("account %s: %w", *req.AccountID, models.ErrNotFound)
		}
	}

	st := s.engine.Store()
	row, err := st.FindOrCreate(ctx, req.CampaignID, req.AccountID, category)
	if err != nil {
		return nil, err
	}
	if err := s.store.KPIs.UpdateKPITarget(ctx, row.ID, req.Target); err != nil {
		return nil, err
	}

	isGMV := category == models.CategoryGMVIDR
	if isGMV && req.AccountID != nil && req.Actual != nil {
		if err := st.BatchSetActual(ctx, []string{row.ID}, *req.Actual); err != nil {
			return nil, err
		}
	}

	var recalcErr error
	switch {
	case isGMV && (req.AccountID == nil || req.Actual != nil):
		recalcErr = s.engine.RecalculateCampaignGMV(ctx, req.CampaignID)
	case isGMV:
		// account GMV without a new actual: nothing derived changed
	case req.AccountID != nil:
		recalcErr = s.engine.RecalculateAccountKPIs(ctx, req.CampaignID, *req.AccountID)
	default:
		recalcErr = s.engine.RecalculateCampaignKPIs(ctx, req.CampaignID)
	}

	saved, err := s.GetKPI(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	if recalcErr != nil {
		return saved, recalcError(recalcErr)
	}

	s.logger.Info("kpi target set",
		zap.String("kpi_id", saved.ID),
		zap.String("campaign_id", saved.CampaignID),
		zap.String("category", string(saved.Category)),
		zap.Float64("target", saved.Target),
	)
	return saved, nil
}

// UpdateTarget changes only the target of a row.
func (s *KPIService) UpdateTarget(ctx context.Context, id string, target float64) (*models.KPI, error) {
	if target < 0 {
		return nil, fmt.Errorf("%w: target must not be negative", models.ErrInvalidInput)
	}
	if err := s.store.KPIs.UpdateKPITarget(ctx, id, target); err != nil {
		return nil, err
	}
	return s.GetKPI(ctx, id)
}

// DeleteKPI removes a row. Removing an account-level GMV_IDR row re-runs the rollup.
func (s *KPIService) DeleteKPI(ctx context.Context, id string) error {
	k, err := s.GetKPI(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.KPIs.DeleteKPI(ctx, id); err != nil {
		return err
	}
	if k.Category == models.CategoryGMVIDR && !k.IsCampaignLevel() {
		if err := s.engine.RecalculateCampaignGMV(ctx, k.CampaignID); err != nil {
			return recalcError(err)
		}
	}
	return nil
}
