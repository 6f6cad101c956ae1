package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/campaign-kpi/internal/metrics"
	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

// Store reads and writes KPI rows for one scope at a time. Every write is a
// single repository call regardless of how many rows it touches.
type Store struct {
	repo    storage.KPIRepo
	metrics *metrics.Metrics
}

// NewStore wraps a KPIRepo. m may be nil.
func NewStore(repo storage.KPIRepo, m *metrics.Metrics) *Store {
	return &Store{repo: repo, metrics: m}
}

// FindKPIs returns the rows of one scope. A nil accountID selects the
// campaign-level rows only.
func (s *Store) FindKPIs(ctx context.Context, campaignID string, accountID *string) ([]*models.KPI, error) {
	return s.repo.ListKPIs(ctx, scopeFilter(campaignID, accountID))
}

// BatchSetActual overwrites actual on every given row.
func (s *Store) BatchSetActual(ctx context.Context, ids []string, value float64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.repo.UpdateKPIActual(ctx, ids, value); err != nil {
		return err
	}
	s.recordWrite("set_actual")
	return nil
}

// ResetExisting zeroes target and actual on every given row.
func (s *Store) ResetExisting(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.repo.ResetKPIs(ctx, ids); err != nil {
		return err
	}
	s.recordWrite("reset")
	return nil
}

// CreateMissing inserts zeroed rows for the categories the scope does not
// have yet and returns the rows it created.
func (s *Store) CreateMissing(ctx context.Context, campaignID string, accountID *string, categories []models.Category) ([]*models.KPI, error) {
	existing, err := s.FindKPIs(ctx, campaignID, accountID)
	if err != nil {
		return nil, err
	}
	present := make(map[models.Category]bool, len(existing))
	for _, k := range existing {
		present[k.Category] = true
	}

	now := time.Now().UTC()
	var rows []*models.KPI
	for _, c := range categories {
		if present[c] {
			continue
		}
		present[c] = true
		rows = append(rows, newRow(campaignID, accountID, c, 0, now))
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := s.repo.InsertKPIs(ctx, rows); err != nil {
		return nil, err
	}
	s.recordWrite("insert")
	return rows, nil
}

// Insert adds a single row with the given actual value.
func (s *Store) Insert(ctx context.Context, campaignID string, accountID *string, c models.Category, actual float64) (*models.KPI, error) {
	row := newRow(campaignID, accountID, c, actual, time.Now().UTC())
	if err := s.repo.InsertKPIs(ctx, []*models.KPI{row}); err != nil {
		return nil, err
	}
	s.recordWrite("insert")
	return row, nil
}

// FindOrCreate returns the row for the triple, creating a zeroed one when
// none exists. The triple stays unique because the insert skips conflicts
// and the row is re-read afterwards.
func (s *Store) FindOrCreate(ctx context.Context, campaignID string, accountID *string, c models.Category) (*models.KPI, error) {
	if k, err := s.findOne(ctx, campaignID, accountID, c); err != nil || k != nil {
		return k, err
	}
	if _, err := s.CreateMissing(ctx, campaignID, accountID, []models.Category{c}); err != nil {
		return nil, err
	}
	k, err := s.findOne(ctx, campaignID, accountID, c)
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, fmt.Errorf("kpi %s/%s/%s missing after insert", campaignID, derefOr(accountID, "-"), c)
	}
	return k, nil
}

func (s *Store) findOne(ctx context.Context, campaignID string, accountID *string, c models.Category) (*models.KPI, error) {
	f := scopeFilter(campaignID, accountID)
	f.Category = c
	rows, err := s.repo.ListKPIs(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *Store) recordWrite(op string) {
	if s.metrics != nil {
		s.metrics.RecordKPIWrite(op)
	}
}

func scopeFilter(campaignID string, accountID *string) storage.KPIFilter {
	if accountID == nil {
		return storage.KPIFilter{CampaignID: campaignID, Scope: storage.ScopeCampaign}
	}
	return storage.KPIFilter{CampaignID: campaignID, AccountID: *accountID, Scope: storage.ScopeAccount}
}

func newRow(campaignID string, accountID *string, c models.Category, actual float64, now time.Time) *models.KPI {
	row := &models.KPI{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Category:   c,
		Actual:     actual,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if accountID != nil {
		id := *accountID
		row.AccountID = &id
	}
	return row
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
