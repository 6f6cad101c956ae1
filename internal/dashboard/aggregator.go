// Package dashboard builds the read-only engagement and KPI views shown on the
// campaign dashboard. Everything is computed from a full scan of current posts.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/campaign-kpi/internal/cache"
	"github.com/radiusdt/campaign-kpi/internal/kpi"
	"github.com/radiusdt/campaign-kpi/internal/metrics"
	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/scan"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

// Engagement sums the engagement counters of a set of posts.
type Engagement struct {
	CampaignID     string  `json:"campaignId,omitempty"`
	TotalPosts     int64   `json:"totalPosts"`
	TotalView      int64   `json:"totalView"`
	TotalLike      int64   `json:"totalLike"`
	TotalComment   int64   `json:"totalComment"`
	TotalShare     int64   `json:"totalShare"`
	TotalSaved     int64   `json:"totalSaved"`
	EngagementRate float64 `json:"engagementRate"`
}

func (e *Engagement) add(p *models.Post) {
	e.TotalPosts++
	e.TotalView += p.TotalView.Int64()
	e.TotalLike += p.TotalLike.Int64()
	e.TotalComment += p.TotalComment.Int64()
	e.TotalShare += p.TotalShare.Int64()
	e.TotalSaved += p.TotalSaved.Int64()
}

func (e *Engagement) finish() {
	e.EngagementRate = EngagementRate(e.TotalView, e.TotalLike+e.TotalComment+e.TotalShare+e.TotalSaved)
}

// EngagementRate is interactions/views rounded to four places, or 0 without views.
func EngagementRate(views, interactions int64) float64 {
	if views == 0 {
		return 0
	}
	return round4(float64(interactions) / float64(views))
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

// CategoryStat is one row of a campaign's category breakdown.
type CategoryStat struct {
	Category string `json:"category"`
	Posts    int64  `json:"posts"`
	Views    int64  `json:"views"`
}

// Summary is engagement across every post plus the number of campaigns.
type Summary struct {
	Engagement
	TotalCampaigns int64 `json:"totalCampaigns"`
}

// KPIView is a KPI row with its remaining amount.
type KPIView struct {
	models.KPI
	Remaining float64 `json:"remaining"`
}

// KPIQuery filters the KPI listing. Crossbrand nil means no crossbrand filter.
type KPIQuery struct {
	CampaignID string
	AccountID  string
	Category   models.Category
	Crossbrand *bool
}

// Aggregator computes dashboard views.
type Aggregator struct {
	scanner    *scan.Scanner
	campaigns  storage.CampaignRepo
	kpis       storage.KPIRepo
	classifier *kpi.Classifier
	cache      cache.Cache
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewAggregator creates an Aggregator. A nil cache disables caching;
// logger and m may be nil.
func NewAggregator(
	scanner *scan.Scanner,
	campaigns storage.CampaignRepo,
	kpis storage.KPIRepo,
	classifier *kpi.Classifier,
	c cache.Cache,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Aggregator {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		scanner:    scanner,
		campaigns:  campaigns,
		kpis:       kpis,
		classifier: classifier,
		cache:      c,
		logger:     logger,
		metrics:    m,
	}
}

// CampaignEngagement sums engagement over every post in the campaign.
func (a *Aggregator) CampaignEngagement(ctx context.Context, campaignID string) (*Engagement, error) {
	return readThrough(ctx, a, "engagement", cache.EngagementKey(campaignID), func(ctx context.Context) (*Engagement, error) {
		posts, err := a.scanner.Posts(ctx, storage.PostFilter{CampaignID: campaignID})
		if err != nil {
			return nil, err
		}
		e := &Engagement{CampaignID: campaignID}
		for _, p := range posts {
			e.add(p)
		}
		e.finish()
		return e, nil
	})
}

// BatchEngagement returns engagement per requested campaign. Every requested
// id is present in the result, with zero sums when it has no posts.
func (a *Aggregator) BatchEngagement(ctx context.Context, campaignIDs []string) (map[string]*Engagement, error) {
	start := time.Now()
	out := make(map[string]*Engagement, len(campaignIDs))
	ids := make([]string, 0, len(campaignIDs))
	for _, id := range campaignIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := out[id]; ok {
			continue
		}
		out[id] = &Engagement{CampaignID: id}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return out, nil
	}

	posts, err := a.scanner.Posts(ctx, storage.PostFilter{CampaignIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to scan posts: %w", err)
	}
	for _, p := range posts {
		if e, ok := out[p.CampaignID]; ok {
			e.add(p)
		}
	}
	for _, e := range out {
		e.finish()
	}
	a.observe("batch_engagement", "off", start)
	return out, nil
}

// CategoryBreakdown groups a campaign's posts by category, ordered by post
// count, then views, both descending, then label.
func (a *Aggregator) CategoryBreakdown(ctx context.Context, campaignID string) ([]CategoryStat, error) {
	return readThrough(ctx, a, "categories", cache.BreakdownKey(campaignID), func(ctx context.Context) ([]CategoryStat, error) {
		posts, err := a.scanner.Posts(ctx, storage.PostFilter{CampaignID: campaignID})
		if err != nil {
			return nil, err
		}
		return Breakdown(posts), nil
	})
}

// Breakdown groups posts by category label in dashboard order.
func Breakdown(posts []*models.Post) []CategoryStat {
	byLabel := make(map[string]*CategoryStat)
	for _, p := range posts {
		label := p.CategoryLabel()
		st, ok := byLabel[label]
		if !ok {
			st = &CategoryStat{Category: label}
			byLabel[label] = st
		}
		st.Posts++
		st.Views += p.TotalView.Int64()
	}

	out := make([]CategoryStat, 0, len(byLabel))
	for _, st := range byLabel {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Posts != out[j].Posts {
			return out[i].Posts > out[j].Posts
		}
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// AllCampaignsEngagement sums engagement over every post and counts campaigns.
func (a *Aggregator) AllCampaignsEngagement(ctx context.Context) (*Summary, error) {
	return readThrough(ctx, a, "summary", cache.SummaryKey(), func(ctx context.Context) (*Summary, error) {
		posts, err := a.scanner.Posts(ctx, storage.PostFilter{})
		if err != nil {
			return nil, err
		}
		n, err := a.campaigns.CountCampaigns(ctx)
		if err != nil {
			return nil, err
		}
		s := &Summary{TotalCampaigns: n}
		for _, p := range posts {
			s.add(p)
		}
		s.finish()
		return s, nil
	})
}

// ListKPIs returns KPI rows with remaining = target - actual.
func (a *Aggregator) ListKPIs(ctx context.Context, q KPIQuery) ([]KPIView, error) {
	filter := storage.KPIFilter{
		CampaignID: q.CampaignID,
		AccountID:  q.AccountID,
		Category:   q.Category,
	}
	if q.Crossbrand != nil {
		ids, err := a.classifier.CrossbrandAccountIDs(ctx)
		if err != nil {
			return nil, err
		}
		filter.Scope = storage.ScopeAccount
		if *q.Crossbrand {
			filter.AccountIDs = ids
		} else {
			filter.ExcludeAccountIDs = ids
		}
	}

	rows, err := a.kpis.ListKPIs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list kpis: %w", err)
	}
	out := make([]KPIView, 0, len(rows))
	for _, k := range rows {
		out = append(out, KPIView{KPI: *k, Remaining: k.Remaining()})
	}
	return out, nil
}

// Invalidate drops cached views that depend on the campaigns' posts.
func (a *Aggregator) Invalidate(ctx context.Context, campaignIDs ...string) {
	if err := a.cache.Delete(ctx, cache.CampaignKeys(campaignIDs...)...); err != nil {
		a.logger.Warn("failed to invalidate dashboard cache",
			zap.Strings("campaign_ids", campaignIDs),
			zap.Error(err),
		)
	}
}

// readThrough serves key from the cache or computes and stores it. Cache
// failures are logged and never fail the read.
func readThrough[T any](ctx context.Context, a *Aggregator, view, key string, compute func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	var cached T
	found, err := a.cache.Get(ctx, key, &cached)
	if err != nil {
		a.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		a.observe(view, "hit", start)
		return cached, nil
	}

	v, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to build %s view: %w", view, err)
	}
	if err := a.cache.Set(ctx, key, v); err != nil {
		a.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
	a.observe(view, "miss", start)
	return v, nil
}

func (a *Aggregator) observe(view, cacheResult string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordDashboardRead(view, cacheResult, time.Since(start))
	}
}
