package models

import (
	"fmt"
	"strings"
	"time"
)

// Category identifies what a KPI row measures.
type Category string

const (
	CategoryViews      Category = "VIEWS"
	CategoryQtyPost    Category = "QTY_POST"
	CategoryFYPCount   Category = "FYP_COUNT"
	CategoryVideoCount Category = "VIDEO_COUNT"
	CategoryGMVIDR     Category = "GMV_IDR"
	CategoryYellowCart Category = "YELLOW_CART"
)

// Categories lists every KPI category in display order.
var Categories = []Category{
	CategoryViews,
	CategoryQtyPost,
	CategoryFYPCount,
	CategoryVideoCount,
	CategoryGMVIDR,
	CategoryYellowCart,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory normalizes and validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// KPI is a target/actual pair for a campaign, optionally scoped to one account.
// A nil AccountID marks the campaign-level row for the category.
type KPI struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaignId"`
	AccountID  *string   `json:"accountId"`
	Category   Category  `json:"category"`
	Target     float64   `json:"target"`
	Actual     float64   `json:"actual"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// IsCampaignLevel reports whether the row is the campaign rollup row.
func (k *KPI) IsCampaignLevel() bool {
	return k.AccountID == nil
}

// Remaining is target minus actual. It may be negative.
func (k *KPI) Remaining() float64 {
	return k.Target - k.Actual
}

// Validate checks required fields.
func (k *KPI) Validate() error {
	if strings.TrimSpace(k.CampaignID) == "" {
		return fmt.Errorf("%w: campaignId is required", ErrInvalidInput)
	}
	if !k.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, k.Category)
	}
	if k.AccountID != nil && strings.TrimSpace(*k.AccountID) == "" {
		k.AccountID = nil
	}
	return nil
}

// AccountKey returns the account id or "" for campaign-level rows.
func (k *KPI) AccountKey() string {
	if k.AccountID == nil {
		return ""
	}
	return *k.AccountID
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
