// Package service commits campaign, account, post and KPI mutations and then
// brings the derived KPI rows up to date in-line. A recalculation failure does
// not roll back the mutation that triggered it; it is reported as ErrRecalculation.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/radiusdt/campaign-kpi/internal/kpi"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

// ErrRecalculation marks a mutation that was saved while the KPI refresh
// that followed it failed. KPI actuals stay stale until the next refresh.
var ErrRecalculation = errors.New("saved but KPI recalculation failed")

// CacheInvalidator drops cached dashboard views for campaigns. With no ids
// only the all-campaigns summary is dropped.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, campaignIDs ...string)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, ...string) {}

// Services bundles every service the HTTP layer uses.
type Services struct {
	Campaigns *CampaignService
	Accounts  *AccountService
	Posts     *PostService
	KPIs      *KPIService
}

// New wires the services over one store and engine. inv and logger may be nil.
func New(store *storage.Store, engine *kpi.Engine, classifier *kpi.Classifier, inv CacheInvalidator, logger *zap.Logger) *Services {
	if inv == nil {
		inv = noopInvalidator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Services{
		Campaigns: NewCampaignService(store.Campaigns, engine, inv),
		Accounts:  NewAccountService(store, engine, classifier, logger),
		Posts:     NewPostService(store, engine, inv, logger),
		KPIs:      NewKPIService(store, engine, logger),
	}
}

func recalcError(err error) error {
	return fmt.Errorf("%w: %w", ErrRecalculation, err)
}
