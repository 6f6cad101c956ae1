package kpi

import "github.com/radiusdt/campaign-kpi/internal/models"

// Totals are the post-derived values for one scope. GMV_IDR is not
// derived from posts and has no field here.
type Totals struct {
	Views      int64 `json:"views"`
	QtyPost    int64 `json:"qtyPost"`
	FYPCount   int64 `json:"fypCount"`
	VideoCount int64 `json:"videoCount"`
	YellowCart int64 `json:"yellowCart"`
}

// Value returns the total for a category. ok is false for categories that
// are not computed from posts.
func (t Totals) Value(c models.Category) (v int64, ok bool) {
	switch c {
	case models.CategoryViews:
		return t.Views, true
	case models.CategoryQtyPost:
		return t.QtyPost, true
	case models.CategoryFYPCount:
		return t.FYPCount, true
	case models.CategoryVideoCount:
		return t.VideoCount, true
	case models.CategoryYellowCart:
		return t.YellowCart, true
	}
	return 0, false
}

// ComputeTotals reduces posts in a single pass. A nil fypThreshold disables
// FYP counting. A post reaching the threshold exactly counts as FYP.
func ComputeTotals(posts []*models.Post, fypThreshold *int64) Totals {
	t := Totals{QtyPost: int64(len(posts))}
	for _, p := range posts {
		views := p.TotalView.Int64()
		t.Views += views
		if p.ContentType == models.ContentTypeVideo {
			t.VideoCount++
		}
		if fypThreshold != nil && views >= *fypThreshold {
			t.FYPCount++
		}
		if p.YellowCart.Bool() {
			t.YellowCart++
		}
	}
	return t
}
