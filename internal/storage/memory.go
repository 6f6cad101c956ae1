package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/radiusdt/campaign-kpi/internal/models"
)

// In-memory implementations. They honour the same paging cap and uniqueness
// rules as the Postgres repos and back the test suites and database-less runs.

// NewMemoryStore returns a Store whose repositories live in process memory.
func NewMemoryStore() *Store {
	return &Store{
		Campaigns: NewInMemoryCampaignRepo(),
		Accounts:  NewInMemoryAccountRepo(),
		Posts:     NewInMemoryPostRepo(),
		KPIs:      NewInMemoryKPIRepo(),
	}
}

// InMemoryCampaignRepo stores campaigns in memory.
type InMemoryCampaignRepo struct {
	mu        sync.RWMutex
	campaigns map[string]*models.Campaign
}

func NewInMemoryCampaignRepo() *InMemoryCampaignRepo {
	return &InMemoryCampaignRepo{
		campaigns: make(map[string]*models.Campaign),
	}
}

func (r *InMemoryCampaignRepo) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.campaigns[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *InMemoryCampaignRepo) ListCampaigns(ctx context.Context) ([]*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		cp := *c
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *InMemoryCampaignRepo) UpsertCampaign(ctx context.Context, c *models.Campaign) error {
	if c == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.Categories = append([]string(nil), c.Categories...)
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *InMemoryCampaignRepo) CountCampaigns(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.campaigns)), nil
}

// InMemoryAccountRepo stores accounts and campaign links in memory.
type InMemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
	// links maps account id to the set of linked campaign ids.
	links map[string]map[string]struct{}
}

func NewInMemoryAccountRepo() *InMemoryAccountRepo {
	return &InMemoryAccountRepo{
		accounts: make(map[string]*models.Account),
		links:    make(map[string]map[string]struct{}),
	}
}

func (r *InMemoryAccountRepo) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (r *InMemoryAccountRepo) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		cp := *a
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *InMemoryAccountRepo) UpsertAccount(ctx context.Context, a *models.Account) error {
	if a == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	cp.IsCrossbrand = false
	r.accounts[a.ID] = &cp
	return nil
}

func (r *InMemoryAccountRepo) LinkAccount(ctx context.Context, campaignID, accountID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.links[accountID]
	if !ok {
		set = make(map[string]struct{})
		r.links[accountID] = set
	}
	if _, exists := set[campaignID]; exists {
		return false, nil
	}
	set[campaignID] = struct{}{}
	return true, nil
}

func (r *InMemoryAccountRepo) UnlinkAccount(ctx context.Context, campaignID, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.links[accountID]; ok {
		delete(set, campaignID)
		if len(set) == 0 {
			delete(r.links, accountID)
		}
	}
	return nil
}

func (r *InMemoryAccountRepo) LinkCounts(ctx context.Context, accountIDs []string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	if len(accountIDs) == 0 {
		for id, set := range r.links {
			counts[id] = len(set)
		}
		return counts, nil
	}
	for _, id := range accountIDs {
		if set, ok := r.links[id]; ok {
			counts[id] = len(set)
		}
	}
	return counts, nil
}

// InMemoryPostRepo stores posts in memory.
type InMemoryPostRepo struct {
	mu    sync.RWMutex
	posts map[string]*models.Post
}

func NewInMemoryPostRepo() *InMemoryPostRepo {
	return &InMemoryPostRepo{
		posts: make(map[string]*models.Post),
	}
}

func (r *InMemoryPostRepo) QueryPosts(ctx context.Context, filter PostFilter, offset, limit int) ([]*models.Post, error) {
	if offset < 0 {
		offset = 0
	}
	limit = clampLimit(limit)

	r.mu.RLock()
	matched := make([]*models.Post, 0)
	for _, p := range r.posts {
		if matchPost(p, filter) {
			cp := *p
			matched = append(matched, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	if offset >= len(matched) {
		return []*models.Post{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func matchPost(p *models.Post, f PostFilter) bool {
	if f.CampaignID != "" && p.CampaignID != f.CampaignID {
		return false
	}
	if f.AccountID != "" && p.AccountID != f.AccountID {
		return false
	}
	if f.CampaignIDs != nil && !contains(f.CampaignIDs, p.CampaignID) {
		return false
	}
	return true
}

func (r *InMemoryPostRepo) GetPost(ctx context.Context, id string) (*models.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.posts[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *InMemoryPostRepo) InsertPost(ctx context.Context, p *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.posts[p.ID]; exists {
		return fmt.Errorf("post %s: %w", p.ID, models.ErrConflict)
	}
	cp := *p
	r.posts[p.ID] = &cp
	return nil
}

func (r *InMemoryPostRepo) UpdatePost(ctx context.Context, p *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.posts[p.ID]; !exists {
		return fmt.Errorf("post %s: %w", p.ID, models.ErrNotFound)
	}
	cp := *p
	r.posts[p.ID] = &cp
	return nil
}

func (r *InMemoryPostRepo) DeletePost(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.posts, id)
	return nil
}

// InMemoryKPIRepo stores KPI rows in memory.
type InMemoryKPIRepo struct {
	mu   sync.RWMutex
	kpis map[string]*models.KPI
}

func NewInMemoryKPIRepo() *InMemoryKPIRepo {
	return &InMemoryKPIRepo{
		kpis: make(map[string]*models.KPI),
	}
}

func (r *InMemoryKPIRepo) ListKPIs(ctx context.Context, filter KPIFilter) ([]*models.KPI, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.KPI, 0)
	for _, k := range r.kpis {
		if matchKPI(k, filter) {
			res = append(res, copyKPI(k))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func matchKPI(k *models.KPI, f KPIFilter) bool {
	if f.CampaignID != "" && k.CampaignID != f.CampaignID {
		return false
	}
	if f.AccountID != "" && (k.AccountID == nil || *k.AccountID != f.AccountID) {
		return false
	}
	switch f.Scope {
	case ScopeCampaign:
		if k.AccountID != nil {
			return false
		}
	case ScopeAccount:
		if k.AccountID == nil {
			return false
		}
	}
	if f.Category != "" && k.Category != f.Category {
		return false
	}
	if f.AccountIDs != nil && (k.AccountID == nil || !contains(f.AccountIDs, *k.AccountID)) {
		return false
	}
	if len(f.ExcludeAccountIDs) > 0 && k.AccountID != nil && contains(f.ExcludeAccountIDs, *k.AccountID) {
		return false
	}
	return true
}

func (r *InMemoryKPIRepo) GetKPI(ctx context.Context, id string) (*models.KPI, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k, ok := r.kpis[id]; ok {
		return copyKPI(k), nil
	}
	return nil, nil
}

func (r *InMemoryKPIRepo) InsertKPIs(ctx context.Context, rows []*models.KPI) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := make(map[string]struct{}, len(r.kpis))
	for _, k := range r.kpis {
		existing[tripleKey(k)] = struct{}{}
	}
	for _, row := range rows {
		key := tripleKey(row)
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		r.kpis[row.ID] = copyKPI(row)
	}
	return nil
}

func (r *InMemoryKPIRepo) UpdateKPIActual(ctx context.Context, ids []string, actual float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range ids {
		if k, ok := r.kpis[id]; ok {
			k.Actual = actual
			k.UpdatedAt = now
		}
	}
	return nil
}

func (r *InMemoryKPIRepo) ResetKPIs(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range ids {
		if k, ok := r.kpis[id]; ok {
			k.Target = 0
			k.Actual = 0
			k.UpdatedAt = now
		}
	}
	return nil
}

func (r *InMemoryKPIRepo) UpdateKPITarget(ctx context.Context, id string, target float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.kpis[id]
	if !ok {
		return fmt.Errorf("kpi %s: %w", id, models.ErrNotFound)
	}
	k.Target = target
	k.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryKPIRepo) DeleteKPI(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kpis, id)
	return nil
}

func tripleKey(k *models.KPI) string {
	return k.CampaignID + "\x00" + k.AccountKey() + "\x00" + string(k.Category)
}

func copyKPI(k *models.KPI) *models.KPI {
	cp := *k
	if k.AccountID != nil {
		id := *k.AccountID
		cp.AccountID = &id
	}
	return &cp
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
