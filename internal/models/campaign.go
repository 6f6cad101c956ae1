package models

import (
	"fmt"
	"strings"
	"time"
)

// Campaign groups posts and accounts under a set of permitted content categories.
type Campaign struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
	// TargetViewsForFYP is the view count at which a post counts as a for-you-page hit.
	// Nil disables FYP counting for the campaign.
	TargetViewsForFYP *int64    `json:"targetViewsForFYP"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Validate checks required fields and normalizes the category list.
func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: campaign name is required", ErrInvalidInput)
	}
	if c.TargetViewsForFYP != nil && *c.TargetViewsForFYP < 0 {
		return fmt.Errorf("%w: targetViewsForFYP must not be negative", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(c.Categories))
	cats := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		cat = strings.TrimSpace(cat)
		if cat == "" {
			continue
		}
		if _, dup := seen[cat]; dup {
			continue
		}
		seen[cat] = struct{}{}
		cats = append(cats, cat)
	}
	c.Categories = cats
	return nil
}

// AllowsCategory reports whether a post category is permitted under this campaign.
// A blank category is always allowed and is reported as "Uncategorized" on dashboards.
func (c *Campaign) AllowsCategory(category string) bool {
	if strings.TrimSpace(category) == "" {
		return true
	}
	for _, cat := range c.Categories {
		if cat == category {
			return true
		}
	}
	return false
}

// Account is a creator/brand account that can be linked to many campaigns.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	// IsCrossbrand is computed from the campaign link table at read time and never stored.
	IsCrossbrand bool      `json:"isCrossbrand"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate checks required fields.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: account name is required", ErrInvalidInput)
	}
	return nil
}
