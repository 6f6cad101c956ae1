package storage

import (
	"context"

	"github.com/radiusdt/campaign-kpi/internal/models"
)

// MaxPageSize caps the number of rows any single query may return.
const MaxPageSize = 1000

// clampLimit applies the store's page cap.
func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// =============================================
// CAMPAIGN REPOSITORY
// =============================================

// CampaignRepo defines operations for campaign storage.
type CampaignRepo interface {
	// GetCampaign returns nil, nil when the campaign does not exist.
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	ListCampaigns(ctx context.Context) ([]*models.Campaign, error)
	UpsertCampaign(ctx context.Context, c *models.Campaign) error
	CountCampaigns(ctx context.Context) (int64, error)
}

// =============================================
// ACCOUNT REPOSITORY
// =============================================

// AccountRepo defines operations for accounts and their campaign links.
type AccountRepo interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	UpsertAccount(ctx context.Context, a *models.Account) error

	// LinkAccount reports whether a new link was created.
	LinkAccount(ctx context.Context, campaignID, accountID string) (bool, error)
	UnlinkAccount(ctx context.Context, campaignID, accountID string) error
	// LinkCounts returns the number of distinct campaigns linked to each account.
	// An empty accountIDs slice returns counts for every linked account.
	LinkCounts(ctx context.Context, accountIDs []string) (map[string]int, error)
}

// =============================================
// POST REPOSITORY
// =============================================

// PostFilter selects posts. Empty fields do not filter.
type PostFilter struct {
	CampaignID  string
	AccountID   string
	CampaignIDs []string
}

// PostRepo defines operations for post storage.
type PostRepo interface {
	// QueryPosts returns one page of matching posts ordered by id ascending.
	// The limit is clamped to MaxPageSize.
	QueryPosts(ctx context.Context, filter PostFilter, offset, limit int) ([]*models.Post, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	InsertPost(ctx context.Context, p *models.Post) error
	UpdatePost(ctx context.Context, p *models.Post) error
	DeletePost(ctx context.Context, id string) error
}

// =============================================
// KPI REPOSITORY
// =============================================

// KPIScope narrows KPI queries by the presence of an account id.
type KPIScope int

const (
	// ScopeAny matches campaign-level and account-level rows.
	ScopeAny KPIScope = iota
	// ScopeCampaign matches rows where account_id IS NULL.
	ScopeCampaign
	// ScopeAccount matches rows where account_id IS NOT NULL.
	ScopeAccount
)

// KPIFilter selects KPI rows. Empty fields do not filter.
type KPIFilter struct {
	CampaignID string
	// AccountID matches one account exactly and implies ScopeAccount.
	AccountID string
	Scope     KPIScope
	Category  models.Category
	// AccountIDs restricts account-level rows to this set. A non-nil empty set matches nothing.
	AccountIDs []string
	// ExcludeAccountIDs drops account-level rows for these accounts.
	ExcludeAccountIDs []string
}

// KPIRepo defines operations for KPI rows.
type KPIRepo interface {
	ListKPIs(ctx context.Context, filter KPIFilter) ([]*models.KPI, error)
	GetKPI(ctx context.Context, id string) (*models.KPI, error)
	// InsertKPIs inserts all rows in one batch, skipping any whose
	// (campaign, account, category) triple already exists.
	InsertKPIs(ctx context.Context, rows []*models.KPI) error
	// UpdateKPIActual sets actual on every given row in one write.
	UpdateKPIActual(ctx context.Context, ids []string, actual float64) error
	// ResetKPIs sets target and actual to zero on every given row in one write.
	ResetKPIs(ctx context.Context, ids []string) error
	UpdateKPITarget(ctx context.Context, id string, target float64) error
	DeleteKPI(ctx context.Context, id string) error
}

// Store bundles every repository the service needs.
type Store struct {
	Campaigns CampaignRepo
	Accounts  AccountRepo
	Posts     PostRepo
	KPIs      KPIRepo
}
