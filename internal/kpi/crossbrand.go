package kpi

import (
	"context"
	"fmt"

	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

// CrossbrandMinCampaigns is the number of linked campaigns that makes an account crossbrand.
const CrossbrandMinCampaigns = 2

// IsCrossbrand reports whether an account with the given number of linked
// campaigns is crossbrand.
func IsCrossbrand(linkedCampaigns int) bool {
	return linkedCampaigns >= CrossbrandMinCampaigns
}

// Classifier answers crossbrand questions from the current link table.
type Classifier struct {
	accounts storage.AccountRepo
}

func NewClassifier(accounts storage.AccountRepo) *Classifier {
	return &Classifier{accounts: accounts}
}

// Annotate sets IsCrossbrand on each account.
func (c *Classifier) Annotate(ctx context.Context, accounts []*models.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	counts, err := c.accounts.LinkCounts(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to count account links: %w", err)
	}
	for _, a := range accounts {
		a.IsCrossbrand = IsCrossbrand(counts[a.ID])
	}
	return nil
}

// CrossbrandAccountIDs returns every account currently linked to two or more campaigns.
func (c *Classifier) CrossbrandAccountIDs(ctx context.Context) ([]string, error) {
	counts, err := c.accounts.LinkCounts(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count account links: %w", err)
	}
	ids := make([]string, 0)
	for id, n := range counts {
		if IsCrossbrand(n) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// FilterAccounts keeps the accounts whose IsCrossbrand matches want. The
// accounts must already be annotated.
func FilterAccounts(accounts []*models.Account, want bool) []*models.Account {
	out := make([]*models.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.IsCrossbrand == want {
			out = append(out, a)
		}
	}
	return out
}
