package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/radiusdt/campaign-kpi/internal/cache"
	"github.com/radiusdt/campaign-kpi/internal/config"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

type kpiRow struct {
	ID        string  `json:"id"`
	AccountID *string `json:"accountId"`
	Category  string  `json:"category"`
	Target    float64 `json:"target"`
	Actual    float64 `json:"actual"`
	Remaining float64 `json:"remaining"`
}

func testConfig() *config.Config {
	return &config.Config{
		Scan:    config.ScanConfig{PageSize: 1000},
		Metrics: config.MetricsConfig{Enabled: false},
	}
}

func newTestServer(st *storage.Store) http.Handler {
	return NewServer(&Dependencies{Config: testConfig(), Store: st})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

// seed creates a campaign and an account through the API and links them.
func seed(t *testing.T, h http.Handler) (campaignID, accountID string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/campaigns", map[string]any{
		"name":              "Launch",
		"categories":        []string{"Review"},
		"targetViewsForFYP": 100,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create campaign: %d %s", rec.Code, rec.Body.String())
	}
	var c struct{ ID string }
	decodeBody(t, rec, &c)

	rec = do(t, h, http.MethodPost, "/accounts", map[string]any{"name": "creator"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account: %d %s", rec.Code, rec.Body.String())
	}
	var a struct{ ID string }
	decodeBody(t, rec, &a)

	rec = do(t, h, http.MethodPost, "/campaigns/"+c.ID+"/accounts/"+a.ID, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("link: %d %s", rec.Code, rec.Body.String())
	}
	return c.ID, a.ID
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(storage.NewMemoryStore()), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestPostLifecycleUpdatesKPIs(t *testing.T) {
	h := newTestServer(storage.NewMemoryStore())
	c, a := seed(t, h)

	if rec := do(t, h, http.MethodPost, "/campaigns/"+c+"/accounts/"+a, nil); rec.Code != http.StatusOK {
		t.Fatalf("relink should report existing link, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/posts", map[string]any{
		"id":               "p1",
		"campaignId":       c,
		"accountId":        a,
		"contentType":      "Video",
		"campaignCategory": "Review",
		"totalView":        "150",
		"totalLike":        15,
		"yellowCart":       "true",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create post: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/kpis?campaign_id="+c+"&account_id="+a, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list kpis: %d %s", rec.Code, rec.Body.String())
	}
	var rows []kpiRow
	decodeBody(t, rec, &rows)
	if len(rows) != 6 {
		t.Fatalf("expected 6 account kpi rows, got %d", len(rows))
	}
	byCategory := make(map[string]kpiRow)
	for _, r := range rows {
		byCategory[r.Category] = r
	}
	want := map[string]float64{
		"VIEWS":       150,
		"QTY_POST":    1,
		"FYP_COUNT":   1,
		"VIDEO_COUNT": 1,
		"YELLOW_CART": 1,
		"GMV_IDR":     0,
	}
	for cat, v := range want {
		if got := byCategory[cat].Actual; got != v {
			t.Errorf("%s actual = %v, want %v", cat, got, v)
		}
	}

	views := byCategory["VIEWS"]
	rec = do(t, h, http.MethodPatch, "/kpis/"+views.ID, map[string]any{"target": 1000})
	if rec.Code != http.StatusOK {
		t.Fatalf("update target: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/kpis?campaign_id="+c+"&account_id="+a+"&category=views", nil)
	rows = nil
	decodeBody(t, rec, &rows)
	if len(rows) != 1 || rows[0].Remaining != 850 {
		t.Fatalf("expected remaining 850, got %+v", rows)
	}

	rec = do(t, h, http.MethodGet, "/dashboard/campaigns/"+c+"/engagement", nil)
	var e struct {
		TotalView      int64   `json:"totalView"`
		EngagementRate float64 `json:"engagementRate"`
	}
	decodeBody(t, rec, &e)
	if e.TotalView != 150 || e.EngagementRate != 0.1 {
		t.Fatalf("unexpected engagement %+v", e)
	}

	if rec := do(t, h, http.MethodDelete, "/posts/p1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete post: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/kpis?campaign_id="+c+"&account_id="+a+"&category=VIEWS", nil)
	rows = nil
	decodeBody(t, rec, &rows)
	if len(rows) != 1 || rows[0].Actual != 0 {
		t.Fatalf("expected views reset to 0 after delete, got %+v", rows)
	}
}

func TestSetGMVRollsUp(t *testing.T) {
	h := newTestServer(storage.NewMemoryStore())
	c, a := seed(t, h)

	rec := do(t, h, http.MethodPut, "/campaigns/"+c+"/accounts/"+a+"/gmv", map[string]any{"value": 250})
	if rec.Code != http.StatusOK {
		t.Fatalf("set gmv: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/kpis?campaign_id="+c+"&category=GMV_IDR", nil)
	var rows []kpiRow
	decodeBody(t, rec, &rows)
	if len(rows) != 2 {
		t.Fatalf("expected account and campaign GMV rows, got %+v", rows)
	}
	for _, r := range rows {
		if r.Actual != 250 {
			t.Errorf("row %+v: actual %v, want 250", r, r.Actual)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	h := newTestServer(storage.NewMemoryStore())
	c, a := seed(t, h)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing campaign", http.MethodGet, "/campaigns/nope", nil, http.StatusNotFound},
		{"missing post", http.MethodGet, "/posts/nope", nil, http.StatusNotFound},
		{"missing kpi", http.MethodDelete, "/kpis/nope", nil, http.StatusNotFound},
		{"invalid json", http.MethodPost, "/campaigns", "{", http.StatusBadRequest},
		{"campaign without name", http.MethodPost, "/campaigns", map[string]any{"name": " "}, http.StatusBadRequest},
		{"post in unknown campaign", http.MethodPost, "/posts", map[string]any{"campaignId": "nope", "accountId": a}, http.StatusBadRequest},
		{"post with foreign category", http.MethodPost, "/posts", map[string]any{"campaignId": c, "accountId": a, "campaignCategory": "Unboxing"}, http.StatusBadRequest},
		{"kpi with unknown category", http.MethodPost, "/kpis", map[string]any{"campaignId": c, "category": "BOGUS"}, http.StatusBadRequest},
		{"kpi for unknown campaign", http.MethodPost, "/kpis", map[string]any{"campaignId": "nope", "category": "VIEWS"}, http.StatusNotFound},
		{"negative gmv", http.MethodPut, "/campaigns/" + c + "/accounts/" + a + "/gmv", map[string]any{"value": -1}, http.StatusBadRequest},
		{"gmv without value", http.MethodPut, "/campaigns/" + c + "/accounts/" + a + "/gmv", map[string]any{}, http.StatusBadRequest},
		{"bad crossbrand flag", http.MethodGet, "/accounts?crossbrand=maybe", nil, http.StatusBadRequest},
		{"batch engagement without ids", http.MethodGet, "/dashboard/engagement", nil, http.StatusBadRequest},
		{"negative offset", http.MethodGet, "/posts?offset=-1", nil, http.StatusBadRequest},
		{"post for unknown account", http.MethodPost, "/posts", map[string]any{"campaignId": c, "accountId": "ghost"}, http.StatusBadRequest},
		{"kpi for unknown account", http.MethodPost, "/kpis", map[string]any{"campaignId": c, "accountId": "ghost", "category": "VIEWS"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := do(t, h, tc.method, tc.path, tc.body)
		if rec.Code != tc.want {
			t.Errorf("%s: got %d, want %d (%s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

// failingActuals breaks every actual write while leaving the rest of the KPI repo intact.
type failingActuals struct {
	storage.KPIRepo
}

func (failingActuals) UpdateKPIActual(context.Context, []string, float64) error {
	return errors.New("write timeout")
}

func TestRecalculationFailureReportsStale(t *testing.T) {
	st := storage.NewMemoryStore()
	st.KPIs = failingActuals{KPIRepo: st.KPIs}
	h := newTestServer(st)
	c, a := seed(t, h)

	rec := do(t, h, http.MethodPost, "/posts", map[string]any{
		"id":         "p1",
		"campaignId": c,
		"accountId":  a,
		"totalView":  10,
	})
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "stale") {
		t.Fatalf("expected stale 500, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/posts/p1", nil); rec.Code != http.StatusOK {
		t.Fatalf("post must be kept after a failed recalculation, got %d", rec.Code)
	}
}

func TestBatchEngagementAndSummary(t *testing.T) {
	h := newTestServer(storage.NewMemoryStore())
	c, a := seed(t, h)
	do(t, h, http.MethodPost, "/posts", map[string]any{"campaignId": c, "accountId": a, "totalView": 100, "totalShare": 5})

	rec := do(t, h, http.MethodGet, "/dashboard/engagement?campaign_ids="+c+",other", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch engagement: %d %s", rec.Code, rec.Body.String())
	}
	var batch map[string]struct {
		TotalView int64 `json:"totalView"`
	}
	decodeBody(t, rec, &batch)
	if len(batch) != 2 || batch[c].TotalView != 100 || batch["other"].TotalView != 0 {
		t.Fatalf("unexpected batch %+v", batch)
	}

	rec = do(t, h, http.MethodGet, "/dashboard/summary", nil)
	var s struct {
		TotalCampaigns int64   `json:"totalCampaigns"`
		EngagementRate float64 `json:"engagementRate"`
	}
	decodeBody(t, rec, &s)
	if s.TotalCampaigns != 1 || s.EngagementRate != 0.05 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestCrossbrandAccountFilter(t *testing.T) {
	h := newTestServer(storage.NewMemoryStore())
	_, a := seed(t, h)

	rec := do(t, h, http.MethodPost, "/campaigns", map[string]any{"name": "Second"})
	var c2 struct{ ID string }
	decodeBody(t, rec, &c2)
	do(t, h, http.MethodPost, "/campaigns/"+c2.ID+"/accounts/"+a, nil)

	rec = do(t, h, http.MethodGet, "/accounts?crossbrand=true", nil)
	var accounts []struct {
		ID           string `json:"id"`
		IsCrossbrand bool   `json:"isCrossbrand"`
	}
	decodeBody(t, rec, &accounts)
	if len(accounts) != 1 || accounts[0].ID != a || !accounts[0].IsCrossbrand {
		t.Fatalf("expected the account to be crossbrand, got %+v", accounts)
	}

	if rec := do(t, h, http.MethodDelete, "/campaigns/"+c2.ID+"/accounts/"+a, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("unlink: %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/accounts?crossbrand=true", nil)
	accounts = nil
	decodeBody(t, rec, &accounts)
	if len(accounts) != 0 {
		t.Fatalf("expected no crossbrand accounts after unlink, got %+v", accounts)
	}
}

// deleteRecorder is a cache that never hits and remembers every deleted key.
type deleteRecorder struct {
	cache.Noop
	deleted []string
}

func (d *deleteRecorder) Delete(_ context.Context, keys ...string) error {
	d.deleted = append(d.deleted, keys...)
	return nil
}

func TestOnlyPostAndCampaignWritesInvalidateDashboards(t *testing.T) {
	rec := &deleteRecorder{}
	h := NewServer(&Dependencies{Config: testConfig(), Store: storage.NewMemoryStore(), Cache: rec})
	c, a := seed(t, h)
	if len(rec.deleted) != 1 || rec.deleted[0] != cache.SummaryKey() {
		t.Fatalf("campaign create should drop only the summary, got %v", rec.deleted)
	}
	rec.deleted = nil

	kpiWrites := []struct {
		method, path string
		body         any
	}{
		{http.MethodPut, "/campaigns/" + c + "/accounts/" + a + "/gmv", map[string]any{"value": 10}},
		{http.MethodPost, "/kpis", map[string]any{"campaignId": c, "category": "VIEWS", "target": 5}},
		{http.MethodPost, "/campaigns/" + c + "/recalculate", nil},
	}
	for _, w := range kpiWrites {
		if got := do(t, h, w.method, w.path, w.body); got.Code >= 300 {
			t.Fatalf("%s %s: %d %s", w.method, w.path, got.Code, got.Body.String())
		}
	}
	if len(rec.deleted) != 0 {
		t.Fatalf("kpi writes must leave dashboard keys alone, got %v", rec.deleted)
	}

	if got := do(t, h, http.MethodPost, "/posts", map[string]any{"campaignId": c, "accountId": a}); got.Code != http.StatusCreated {
		t.Fatalf("create post: %d %s", got.Code, got.Body.String())
	}
	want := cache.CampaignKeys(c)
	if len(rec.deleted) != len(want) {
		t.Fatalf("post create should drop %v, got %v", want, rec.deleted)
	}
}

func TestDuplicatePostIDConflicts(t *testing.T) {
	h := newTestServer(storage.NewMemoryStore())
	c, a := seed(t, h)
	body := map[string]any{"id": "p1", "campaignId": c, "accountId": a}

	if rec := do(t, h, http.MethodPost, "/posts", body); rec.Code != http.StatusCreated {
		t.Fatalf("first create: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/posts", body); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: got %d, want 409 (%s)", rec.Code, rec.Body.String())
	}
}
