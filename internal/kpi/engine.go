// Package kpi derives KPI actual values from stored posts. Every entry point
// is a full recompute of one scope from current state; nothing is applied
// incrementally, so repeated or concurrent runs converge on the same values.
package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radiusdt/campaign-kpi/internal/metrics"
	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/scan"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

const (
	scopeAccount  = "account"
	scopeCampaign = "campaign"
	scopeGMV      = "gmv"
	scopeInit     = "init"
)

// Engine recalculates KPI rows.
type Engine struct {
	campaigns storage.CampaignRepo
	scanner   *scan.Scanner
	store     *Store
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewEngine creates an Engine. logger and m may be nil.
func NewEngine(campaigns storage.CampaignRepo, scanner *scan.Scanner, store *Store, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		campaigns: campaigns,
		scanner:   scanner,
		store:     store,
		logger:    logger,
		metrics:   m,
	}
}

// Store exposes the KPI store adapter used by the engine.
func (e *Engine) Store() *Store {
	return e.store
}

// RecalculateAccountKPIs recomputes the post-derived rows of one account
// within a campaign. A scope without KPI rows is skipped.
func (e *Engine) RecalculateAccountKPIs(ctx context.Context, campaignID, accountID string) (err error) {
	start := time.Now()
	defer func() { e.record(scopeAccount, err, start) }()

	return e.recalculate(ctx, scopeAccount, campaignID, &accountID,
		storage.PostFilter{CampaignID: campaignID, AccountID: accountID})
}

// RecalculateCampaignKPIs recomputes the campaign-level rows from every post
// in the campaign. GMV_IDR is left alone.
func (e *Engine) RecalculateCampaignKPIs(ctx context.Context, campaignID string) (err error) {
	start := time.Now()
	defer func() { e.record(scopeCampaign, err, start) }()

	return e.recalculate(ctx, scopeCampaign, campaignID, nil,
		storage.PostFilter{CampaignID: campaignID})
}

func (e *Engine) recalculate(ctx context.Context, scope, campaignID string, accountID *string, filter storage.PostFilter) error {
	rows, err := e.store.FindKPIs(ctx, campaignID, accountID)
	if err != nil {
		return fmt.Errorf("failed to load %s kpis: %w", scope, err)
	}
	if len(rows) == 0 {
		e.logger.Warn("kpi scope not initialized, skipping",
			zap.String("scope", scope),
			zap.String("campaign_id", campaignID),
			zap.String("account_id", derefOr(accountID, "")),
		)
		if e.metrics != nil {
			e.metrics.RecordRecalculationSkip(scope)
		}
		return nil
	}

	threshold, err := e.fypThreshold(ctx, campaignID)
	if err != nil {
		return err
	}
	posts, err := e.scanner.Posts(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to scan posts: %w", err)
	}
	totals := ComputeTotals(posts, threshold)

	written := 0
	for _, g := range groupByCategory(rows) {
		value, ok := totals.Value(g.category)
		if !ok {
			continue
		}
		if err := e.store.BatchSetActual(ctx, g.ids, float64(value)); err != nil {
			return fmt.Errorf("failed to write %s: %w", g.category, err)
		}
		written++
	}

	e.logger.Info("kpis recalculated",
		zap.String("scope", scope),
		zap.String("campaign_id", campaignID),
		zap.String("account_id", derefOr(accountID, "")),
		zap.Int("posts", len(posts)),
		zap.Int("categories_written", written),
	)
	return nil
}

// fypThreshold returns nil when the campaign is missing or has no threshold.
func (e *Engine) fypThreshold(ctx context.Context, campaignID string) (*int64, error) {
	c, err := e.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return nil, nil
	}
	return c.TargetViewsForFYP, nil
}

// InitializeAccountKPIs gives an account exactly one zeroed row per category
// in the campaign. Existing rows have their target and actual reset.
func (e *Engine) InitializeAccountKPIs(ctx context.Context, campaignID, accountID string) (err error) {
	start := time.Now()
	defer func() { e.record(scopeInit, err, start) }()

	existing, err := e.store.FindKPIs(ctx, campaignID, &accountID)
	if err != nil {
		return fmt.Errorf("failed to load account kpis: %w", err)
	}
	ids := make([]string, 0, len(existing))
	for _, k := range existing {
		ids = append(ids, k.ID)
	}
	if err := e.store.ResetExisting(ctx, ids); err != nil {
		return fmt.Errorf("failed to reset account kpis: %w", err)
	}
	created, err := e.store.CreateMissing(ctx, campaignID, &accountID, models.Categories)
	if err != nil {
		return fmt.Errorf("failed to create account kpis: %w", err)
	}

	e.logger.Info("account kpis initialized",
		zap.String("campaign_id", campaignID),
		zap.String("account_id", accountID),
		zap.Int("reset", len(ids)),
		zap.Int("created", len(created)),
	)
	return nil
}

// RecalculateCampaignGMV sets the campaign-level GMV_IDR actual to the sum of
// the account-level GMV_IDR actuals, creating the campaign row if needed.
func (e *Engine) RecalculateCampaignGMV(ctx context.Context, campaignID string) (err error) {
	start := time.Now()
	defer func() { e.record(scopeGMV, err, start) }()

	accountRows, err := e.store.repo.ListKPIs(ctx, storage.KPIFilter{
		CampaignID: campaignID,
		Scope:      storage.ScopeAccount,
		Category:   models.CategoryGMVIDR,
	})
	if err != nil {
		return fmt.Errorf("failed to load account gmv: %w", err)
	}
	sum := SumActual(accountRows)

	campaignRows, err := e.store.repo.ListKPIs(ctx, storage.KPIFilter{
		CampaignID: campaignID,
		Scope:      storage.ScopeCampaign,
		Category:   models.CategoryGMVIDR,
	})
	if err != nil {
		return fmt.Errorf("failed to load campaign gmv: %w", err)
	}

	if len(campaignRows) == 0 {
		if _, err := e.store.Insert(ctx, campaignID, nil, models.CategoryGMVIDR, sum); err != nil {
			return fmt.Errorf("failed to create campaign gmv: %w", err)
		}
	} else {
		ids := make([]string, 0, len(campaignRows))
		for _, k := range campaignRows {
			ids = append(ids, k.ID)
		}
		if err := e.store.BatchSetActual(ctx, ids, sum); err != nil {
			return fmt.Errorf("failed to update campaign gmv: %w", err)
		}
	}

	e.logger.Info("campaign gmv rolled up",
		zap.String("campaign_id", campaignID),
		zap.Int("accounts", len(accountRows)),
		zap.Float64("gmv", sum),
	)
	return nil
}

// RecalculateCampaign refreshes a whole campaign: the campaign-level rows,
// every account scope that has KPI rows, then the GMV rollup.
func (e *Engine) RecalculateCampaign(ctx context.Context, campaignID string) error {
	if err := e.RecalculateCampaignKPIs(ctx, campaignID); err != nil {
		return err
	}
	rows, err := e.store.repo.ListKPIs(ctx, storage.KPIFilter{CampaignID: campaignID, Scope: storage.ScopeAccount})
	if err != nil {
		return fmt.Errorf("failed to list account scopes: %w", err)
	}
	seen := make(map[string]bool)
	for _, k := range rows {
		accountID := k.AccountKey()
		if seen[accountID] {
			continue
		}
		seen[accountID] = true
		if err := e.RecalculateAccountKPIs(ctx, campaignID, accountID); err != nil {
			return err
		}
	}
	return e.RecalculateCampaignGMV(ctx, campaignID)
}

// SumActual adds actual values exactly and returns the rounded float.
func SumActual(rows []*models.KPI) float64 {
	total := decimal.Zero
	for _, k := range rows {
		total = total.Add(decimal.NewFromFloat(k.Actual))
	}
	return total.InexactFloat64()
}

type categoryGroup struct {
	category models.Category
	ids      []string
}

// groupByCategory buckets row ids per category in the fixed category order.
func groupByCategory(rows []*models.KPI) []categoryGroup {
	byCat := make(map[models.Category][]string)
	for _, k := range rows {
		byCat[k.Category] = append(byCat[k.Category], k.ID)
	}
	groups := make([]categoryGroup, 0, len(byCat))
	for _, c := range models.Categories {
		if ids, ok := byCat[c]; ok {
			groups = append(groups, categoryGroup{category: c, ids: ids})
		}
	}
	return groups
}

func (e *Engine) record(scope string, err error, start time.Time) {
	if err != nil {
		e.logger.Error("kpi recalculation failed", zap.String("scope", scope), zap.Error(err))
	}
	if e.metrics != nil {
		e.metrics.RecordRecalculation(scope, err, time.Since(start))
	}
}
