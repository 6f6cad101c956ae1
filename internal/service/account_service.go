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

// AccountService manages accounts and their campaign links.
type AccountService struct {
	store      *storage.Store
	engine     *kpi.Engine
	classifier *kpi.Classifier
	logger     *zap.Logger
}

func NewAccountService(store *storage.Store, engine *kpi.Engine, classifier *kpi.Classifier, logger *zap.Logger) *AccountService {
	return &AccountService{store: store, engine: engine, classifier: classifier, logger: logger}
}

// ListAccounts returns accounts annotated with IsCrossbrand. A non-nil
// crossbrand keeps only the accounts whose classification matches it.
func (s *AccountService) ListAccounts(ctx context.Context, crossbrand *bool) ([]*models.Account, error) {
	accounts, err := s.store.Accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.classifier.Annotate(ctx, accounts); err != nil {
		return nil, err
	}
	if crossbrand != nil {
		accounts = kpi.FilterAccounts(accounts, *crossbrand)
	}
	return accounts, nil
}

// GetAccount returns an annotated account or ErrNotFound.
func (s *AccountService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	a, err := s.store.Accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	if err := s.classifier.Annotate(ctx, []*models.Account{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// UpsertAccount validates and saves an account.
func (s *AccountService) UpsertAccount(ctx context.Context, a *models.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return s.store.Accounts.UpsertAccount(ctx, a)
}

// Link attaches an account to a campaign. A new link initializes the
// account's KPI rows for that campaign; an existing link is left alone.
func (s *AccountService) Link(ctx context.Context, campaignID, accountID string) (bool, error) {
	if err := s.requireBoth(ctx, campaignID, accountID); err != nil {
		return false, err
	}
	created, err := s.store.Accounts.LinkAccount(ctx, campaignID, accountID)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}
	s.logger.Info("account linked",
		zap.String("campaign_id", campaignID),
		zap.String("account_id", accountID),
	)
	if err := s.engine.InitializeAccountKPIs(ctx, campaignID, accountID); err != nil {
		return true, recalcError(err)
	}
	return true, nil
}

// Unlink detaches an account from a campaign. KPI rows are kept.
func (s *AccountService) Unlink(ctx context.Context, campaignID, accountID string) error {
	return s.store.Accounts.UnlinkAccount(ctx, campaignID, accountID)
}

// SetGMV records an account's GMV_IDR actual and rolls it up to the campaign.
func (s *AccountService) SetGMV(ctx context.Context, campaignID, accountID string, value float64) (*models.KPI, error) {
	if value < 0 {
		return nil, fmt.Errorf("%w: gmv must not be negative", models.ErrInvalidInput)
	}
	if err := s.requireBoth(ctx, campaignID, accountID); err != nil {
		return nil, err
	}

	st := s.engine.Store()
	row, err := st.FindOrCreate(ctx, campaignID, &accountID, models.CategoryGMVIDR)
	if err != nil {
		return nil, err
	}
	if err := st.BatchSetActual(ctx, []string{row.ID}, value); err != nil {
		return nil, err
	}
	row.Actual = value

	if err := s.engine.RecalculateCampaignGMV(ctx, campaignID); err != nil {
		return row, recalcError(err)
	}
	return row, nil
}

func (s *AccountService) requireBoth(ctx context.Context, campaignID, accountID string) error {
	c, err := s.store.Campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("campaign %s: %w", campaignID, models.ErrNotFound)
	}
	a, err := s.store.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
	}
	return nil
}
