package kpi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/scan"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

// faultyKPIRepo wraps a KPIRepo, counts writes and fails selected calls.
type faultyKPIRepo struct {
	storage.KPIRepo
	failList   error
	failUpdate error
	updates    int
}

func (r *faultyKPIRepo) ListKPIs(ctx context.Context, f storage.KPIFilter) ([]*models.KPI, error) {
	if r.failList != nil {
		return nil, r.failList
	}
	return r.KPIRepo.ListKPIs(ctx, f)
}

func (r *faultyKPIRepo) UpdateKPIActual(ctx context.Context, ids []string, actual float64) error {
	r.updates++
	if r.failUpdate != nil {
		return r.failUpdate
	}
	return r.KPIRepo.UpdateKPIActual(ctx, ids, actual)
}

type failingPostRepo struct {
	storage.PostRepo
	err error
}

func (r *failingPostRepo) QueryPosts(ctx context.Context, f storage.PostFilter, offset, limit int) ([]*models.Post, error) {
	return nil, r.err
}

type fixture struct {
	store  *storage.Store
	kpis   *faultyKPIRepo
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemoryStore()
	kpis := &faultyKPIRepo{KPIRepo: st.KPIs}
	engine := NewEngine(st.Campaigns, scan.NewScanner(st.Posts, 0, nil), NewStore(kpis, nil), nil, nil)
	return &fixture{store: st, kpis: kpis, engine: engine}
}

func (f *fixture) campaign(t *testing.T, id string, fyp *int64) {
	t.Helper()
	if err := f.store.Campaigns.UpsertCampaign(context.Background(), &models.Campaign{ID: id, Name: id, TargetViewsForFYP: fyp}); err != nil {
		t.Fatalf("UpsertCampaign: %v", err)
	}
}

func (f *fixture) post(t *testing.T, p models.Post) {
	t.Helper()
	if err := f.store.Posts.InsertPost(context.Background(), &p); err != nil {
		t.Fatalf("InsertPost: %v", err)
	}
}

// actuals returns category -> actual for one scope.
func (f *fixture) actuals(t *testing.T, campaignID string, accountID *string) map[models.Category]float64 {
	t.Helper()
	rows, err := f.engine.Store().FindKPIs(context.Background(), campaignID, accountID)
	if err != nil {
		t.Fatalf("FindKPIs: %v", err)
	}
	out := make(map[models.Category]float64, len(rows))
	for _, k := range rows {
		out[k.Category] = k.Actual
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }

func TestComputeTotals(t *testing.T) {
	posts := []*models.Post{
		{TotalView: 1000, ContentType: "Video", YellowCart: true},
		{TotalView: 999, ContentType: "video"},
		{TotalView: 0, ContentType: "Reel", YellowCart: true},
	}

	cases := []struct {
		name      string
		posts     []*models.Post
		threshold *int64
		want      Totals
	}{
		{"empty", nil, int64Ptr(10), Totals{}},
		{"threshold inclusive", posts, int64Ptr(1000), Totals{Views: 1999, QtyPost: 3, FYPCount: 1, VideoCount: 1, YellowCart: 2}},
		{"no threshold", posts, nil, Totals{Views: 1999, QtyPost: 3, VideoCount: 1, YellowCart: 2}},
		{"zero threshold", posts, int64Ptr(0), Totals{Views: 1999, QtyPost: 3, FYPCount: 3, VideoCount: 1, YellowCart: 2}},
	}
	for _, tc := range cases {
		if got := ComputeTotals(tc.posts, tc.threshold); got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestTotalsValueExcludesGMV(t *testing.T) {
	if _, ok := (Totals{}).Value(models.CategoryGMVIDR); ok {
		t.Fatalf("GMV_IDR must not be derived from posts")
	}
	v, ok := (Totals{QtyPost: 4}).Value(models.CategoryQtyPost)
	if !ok || v != 4 {
		t.Fatalf("unexpected QTY_POST value %d %v", v, ok)
	}
}

func TestRecalculateAccountKPIs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.campaign(t, "c1", int64Ptr(1000))
	acc := "a1"
	if err := f.engine.InitializeAccountKPIs(ctx, "c1", acc); err != nil {
		t.Fatalf("InitializeAccountKPIs: %v", err)
	}

	f.post(t, models.Post{ID: "p1", CampaignID: "c1", AccountID: acc, TotalView: 1000, ContentType: "Video"})
	f.post(t, models.Post{ID: "p2", CampaignID: "c1", AccountID: acc, TotalView: 999, YellowCart: true})
	f.post(t, models.Post{ID: "p3", CampaignID: "c1", AccountID: "other", TotalView: 5000})

	if err := f.engine.RecalculateAccountKPIs(ctx, "c1", acc); err != nil {
		t.Fatalf("RecalculateAccountKPIs: %v", err)
	}
	first := f.actuals(t, "c1", &acc)
	want := map[models.Category]float64{
		models.CategoryViews:      1999,
		models.CategoryQtyPost:    2,
		models.CategoryFYPCount:   1,
		models.CategoryVideoCount: 1,
		models.CategoryGMVIDR:     0,
		models.CategoryYellowCart: 1,
	}
	for c, v := range want {
		if first[c] != v {
			t.Errorf("%s: got %v, want %v", c, first[c], v)
		}
	}

	if err := f.engine.RecalculateAccountKPIs(ctx, "c1", acc); err != nil {
		t.Fatalf("RecalculateAccountKPIs: %v", err)
	}
	second := f.actuals(t, "c1", &acc)
	for c, v := range first {
		if second[c] != v {
			t.Errorf("not idempotent for %s: %v then %v", c, v, second[c])
		}
	}

	f.post(t, models.Post{ID: "p4", CampaignID: "c1", AccountID: acc, TotalView: 250})
	if err := f.engine.RecalculateAccountKPIs(ctx, "c1", acc); err != nil {
		t.Fatalf("RecalculateAccountKPIs: %v", err)
	}
	third := f.actuals(t, "c1", &acc)
	if third[models.CategoryViews]-first[models.CategoryViews] != 250 {
		t.Errorf("views should grow by exactly 250, got %v -> %v", first[models.CategoryViews], third[models.CategoryViews])
	}
	if third[models.CategoryQtyPost] != 3 {
		t.Errorf("QTY_POST: got %v, want 3", third[models.CategoryQtyPost])
	}
}

func TestRecalculateWritesOncePerCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	if err := f.engine.InitializeAccountKPIs(ctx, "c1", "a1"); err != nil {
		t.Fatalf("InitializeAccountKPIs: %v", err)
	}
	for i := 0; i < 30; i++ {
		f.post(t, models.Post{ID: fmt.Sprintf("p%02d", i), CampaignID: "c1", AccountID: "a1", TotalView: 10})
	}

	f.kpis.updates = 0
	if err := f.engine.RecalculateAccountKPIs(ctx, "c1", "a1"); err != nil {
		t.Fatalf("RecalculateAccountKPIs: %v", err)
	}
	// Five post-derived categories; GMV_IDR is not written.
	if f.kpis.updates != 5 {
		t.Fatalf("expected 5 batched writes, got %d", f.kpis.updates)
	}
}

func TestFYPThreshold(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name      string
		threshold *int64
		views     int64
		want      float64
	}{
		{"at threshold", int64Ptr(1000), 1000, 1},
		{"below threshold", int64Ptr(1000), 999, 0},
		{"no threshold", nil, 1_000_000, 0},
	}
	for _, tc := range cases {
		f := newFixture(t)
		f.campaign(t, "c1", tc.threshold)
		_ = f.engine.InitializeAccountKPIs(ctx, "c1", "a1")
		f.post(t, models.Post{ID: "p1", CampaignID: "c1", AccountID: "a1", TotalView: models.LooseInt(tc.views)})
		if err := f.engine.RecalculateAccountKPIs(ctx, "c1", "a1"); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		acc := "a1"
		if got := f.actuals(t, "c1", &acc)[models.CategoryFYPCount]; got != tc.want {
			t.Errorf("%s: FYP_COUNT got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMissingCampaignMeansNoThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_ = f.engine.InitializeAccountKPIs(ctx, "ghost", "a1")
	f.post(t, models.Post{ID: "p1", CampaignID: "ghost", AccountID: "a1", TotalView: 10})
	if err := f.engine.RecalculateAccountKPIs(ctx, "ghost", "a1"); err != nil {
		t.Fatalf("RecalculateAccountKPIs: %v", err)
	}
	acc := "a1"
	got := f.actuals(t, "ghost", &acc)
	if got[models.CategoryFYPCount] != 0 || got[models.CategoryViews] != 10 {
		t.Fatalf("unexpected actuals %v", got)
	}
}

func TestRecalculateSkipsUninitializedScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.post(t, models.Post{ID: "p1", CampaignID: "c1", AccountID: "a1", TotalView: 10})

	if err := f.engine.RecalculateAccountKPIs(ctx, "c1", "a1"); err != nil {
		t.Fatalf("RecalculateAccountKPIs: %v", err)
	}
	if err := f.engine.RecalculateCampaignKPIs(ctx, "c1"); err != nil {
		t.Fatalf("RecalculateCampaignKPIs: %v", err)
	}
	rows, _ := f.store.KPIs.ListKPIs(ctx, storage.KPIFilter{CampaignID: "c1"})
	if len(rows) != 0 {
		t.Fatalf("expected no rows to be created, got %d", len(rows))
	}
}

func TestRecalculateCampaignKPIsUsesCampaignRowsOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	_ = f.engine.InitializeAccountKPIs(ctx, "c1", "a1")
	if _, err := f.engine.Store().CreateMissing(ctx, "c1", nil, []models.Category{models.CategoryViews, models.CategoryQtyPost}); err != nil {
		t.Fatalf("CreateMissing: %v", err)
	}
	f.post(t, models.Post{ID: "p1", CampaignID: "c1", AccountID: "a1", TotalView: 100})
	f.post(t, models.Post{ID: "p2", CampaignID: "c1", AccountID: "a2", TotalView: 50})

	if err := f.engine.RecalculateCampaignKPIs(ctx, "c1"); err != nil {
		t.Fatalf("RecalculateCampaignKPIs: %v", err)
	}
	campaign := f.actuals(t, "c1", nil)
	if campaign[models.CategoryViews] != 150 || campaign[models.CategoryQtyPost] != 2 {
		t.Fatalf("unexpected campaign actuals %v", campaign)
	}
	acc := "a1"
	if got := f.actuals(t, "c1", &acc)[models.CategoryViews]; got != 0 {
		t.Fatalf("account row touched by campaign recalculation: %v", got)
	}
}

func TestInitializeAccountKPIsResetsWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.engine.InitializeAccountKPIs(ctx, "c1", "a1"); err != nil {
		t.Fatalf("InitializeAccountKPIs: %v", err)
	}
	acc := "a1"
	rows, _ := f.engine.Store().FindKPIs(ctx, "c1", &acc)
	if len(rows) != len(models.Categories) {
		t.Fatalf("expected %d rows, got %d", len(models.Categories), len(rows))
	}
	if err := f.store.KPIs.UpdateKPITarget(ctx, rows[0].ID, 42); err != nil {
		t.Fatalf("UpdateKPITarget: %v", err)
	}

	if err := f.engine.InitializeAccountKPIs(ctx, "c1", "a1"); err != nil {
		t.Fatalf("InitializeAccountKPIs: %v", err)
	}
	rows, _ = f.engine.Store().FindKPIs(ctx, "c1", &acc)
	if len(rows) != len(models.Categories) {
		t.Fatalf("expected %d rows after re-init, got %d", len(models.Categories), len(rows))
	}
	cats := make([]string, 0, len(rows))
	for _, k := range rows {
		if k.Target != 0 || k.Actual != 0 {
			t.Errorf("row %s not reset: target=%v actual=%v", k.Category, k.Target, k.Actual)
		}
		cats = append(cats, string(k.Category))
	}
	sort.Strings(cats)
	for i := 1; i < len(cats); i++ {
		if cats[i] == cats[i-1] {
			t.Fatalf("duplicate category %s", cats[i])
		}
	}
}

func TestRecalculateCampaignGMV(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.campaign(t, "C", nil)
	st := f.engine.Store()
	for acc, gmv := range map[string]float64{"a1": 100, "a2": 250} {
		a := acc
		k, err := st.FindOrCreate(ctx, "C", &a, models.CategoryGMVIDR)
		if err != nil {
			t.Fatalf("FindOrCreate: %v", err)
		}
		if err := st.BatchSetActual(ctx, []string{k.ID}, gmv); err != nil {
			t.Fatalf("BatchSetActual: %v", err)
		}
	}

	if err := f.engine.RecalculateCampaignGMV(ctx, "C"); err != nil {
		t.Fatalf("RecalculateCampaignGMV: %v", err)
	}
	if got := f.actuals(t, "C", nil)[models.CategoryGMVIDR]; got != 350 {
		t.Fatalf("campaign GMV got %v, want 350", got)
	}

	// Running again updates the existing row instead of adding one.
	if err := f.engine.RecalculateCampaignGMV(ctx, "C"); err != nil {
		t.Fatalf("RecalculateCampaignGMV: %v", err)
	}
	rows, _ := st.FindKPIs(ctx, "C", nil)
	if len(rows) != 1 {
		t.Fatalf("expected one campaign row, got %d", len(rows))
	}

	f.post(t, models.Post{ID: "p1", CampaignID: "C", AccountID: "a1", TotalView: 10})
	if err := f.engine.RecalculateCampaignKPIs(ctx, "C"); err != nil {
		t.Fatalf("RecalculateCampaignKPIs: %v", err)
	}
	if got := f.actuals(t, "C", nil)[models.CategoryGMVIDR]; got != 350 {
		t.Fatalf("campaign GMV changed by post recalculation: %v", got)
	}
}

func TestSumActualIsExact(t *testing.T) {
	rows := []*models.KPI{{Actual: 0.1}, {Actual: 0.2}}
	if got := SumActual(rows); got != 0.3 {
		t.Fatalf("got %v, want 0.3", got)
	}
}

func TestRecalculateCampaignRefreshesEveryScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	_ = f.engine.InitializeAccountKPIs(ctx, "c1", "a1")
	_ = f.engine.InitializeAccountKPIs(ctx, "c1", "a2")
	f.post(t, models.Post{ID: "p1", CampaignID: "c1", AccountID: "a1", TotalView: 7})
	f.post(t, models.Post{ID: "p2", CampaignID: "c1", AccountID: "a2", TotalView: 3})

	if err := f.engine.RecalculateCampaign(ctx, "c1"); err != nil {
		t.Fatalf("RecalculateCampaign: %v", err)
	}
	a1, a2 := "a1", "a2"
	if got := f.actuals(t, "c1", &a1)[models.CategoryViews]; got != 7 {
		t.Errorf("a1 views got %v", got)
	}
	if got := f.actuals(t, "c1", &a2)[models.CategoryViews]; got != 3 {
		t.Errorf("a2 views got %v", got)
	}
	if _, ok := f.actuals(t, "c1", nil)[models.CategoryGMVIDR]; !ok {
		t.Errorf("expected campaign GMV row after refresh")
	}
}

func TestRecalculatePropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("store down")

	f := newFixture(t)
	f.campaign(t, "c1", nil)
	_ = f.engine.InitializeAccountKPIs(ctx, "c1", "a1")
	f.kpis.failUpdate = boom
	if err := f.engine.RecalculateAccountKPIs(ctx, "c1", "a1"); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}

	f = newFixture(t)
	f.kpis.failList = boom
	if err := f.engine.RecalculateCampaignKPIs(ctx, "c1"); !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
	if err := f.engine.RecalculateCampaignGMV(ctx, "c1"); !errors.Is(err, boom) {
		t.Fatalf("expected list error from rollup, got %v", err)
	}

	st := storage.NewMemoryStore()
	engine := NewEngine(st.Campaigns, scan.NewScanner(&failingPostRepo{PostRepo: st.Posts, err: boom}, 0, nil), NewStore(st.KPIs, nil), nil, nil)
	_ = engine.InitializeAccountKPIs(ctx, "c1", "a1")
	if err := engine.RecalculateAccountKPIs(ctx, "c1", "a1"); !errors.Is(err, boom) {
		t.Fatalf("expected scan error, got %v", err)
	}
}

func TestCrossbrandFlipsWithLinks(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStore()
	_ = st.Accounts.UpsertAccount(ctx, &models.Account{ID: "a1", Name: "one"})
	classifier := NewClassifier(st.Accounts)

	read := func() bool {
		accounts, _ := st.Accounts.ListAccounts(ctx)
		if err := classifier.Annotate(ctx, accounts); err != nil {
			t.Fatalf("Annotate: %v", err)
		}
		return accounts[0].IsCrossbrand
	}

	_, _ = st.Accounts.LinkAccount(ctx, "c1", "a1")
	if read() {
		t.Fatalf("one campaign must not be crossbrand")
	}
	_, _ = st.Accounts.LinkAccount(ctx, "c2", "a1")
	if !read() {
		t.Fatalf("two campaigns must be crossbrand")
	}
	ids, err := classifier.CrossbrandAccountIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "a1" {
		t.Fatalf("unexpected crossbrand ids %v %v", ids, err)
	}
	_ = st.Accounts.UnlinkAccount(ctx, "c2", "a1")
	if read() {
		t.Fatalf("unlinking must clear crossbrand")
	}
}
