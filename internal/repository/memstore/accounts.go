package memstore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/pkg/admetrics"
)

type accountStore struct{ s *Store }

func (r *accountStore) Upsert(ctx context.Context, a *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if cur, ok := r.s.accounts[a.ID]; ok {
		cur.Name = a.Name
		cur.IsActive = a.IsActive
		cur.UpdatedAt = now
		return nil
	}
	r.s.accounts[a.ID] = &models.Account{
		ID:            a.ID,
		Name:          a.Name,
		IsActive:      a.IsActive,
		WinnerKPI:     admetrics.KPIROAS,
		KPIDirection:  admetrics.DirectionGTE,
		DateRangeDays: a.RangeDays(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return nil
}

func (r *accountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *accountStore) List(ctx context.Context) ([]*models.Account, error) {
	out := r.list(func(*models.Account) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *accountStore) ListActive(ctx context.Context) ([]*models.Account, error) {
	out := r.list(func(a *models.Account) bool { return a.IsActive })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *accountStore) list(keep func(*models.Account) bool) []*models.Account {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.Account
	for _, a := range r.s.accounts {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

func (r *accountStore) UpdateSettings(ctx context.Context, a *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.accounts[a.ID]
	if !ok {
		return sql.ErrNoRows
	}
	cur.Name = a.Name
	cur.IsActive = a.IsActive
	cur.WinnerKPI = a.WinnerKPI
	cur.KPIDirection = a.KPIDirection
	cur.ScaleThreshold = a.ScaleThreshold
	cur.KillThreshold = a.KillThreshold
	cur.SpendThreshold = a.SpendThreshold
	cur.DateRangeDays = a.RangeDays()
	cur.ReportSchedule = a.ReportSchedule
	cur.UpdatedAt = r.s.now()
	return nil
}

func (r *accountStore) SetLastSynced(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if cur, ok := r.s.accounts[id]; ok {
		cur.LastSyncedAt = &at
		cur.UpdatedAt = r.s.now()
	}
	return nil
}

func (r *accountStore) SetRollup(ctx context.Context, id string, rollup models.AccountRollup) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if cur, ok := r.s.accounts[id]; ok {
		cur.CreativeCount = rollup.CreativeCount
		cur.UntaggedCount = rollup.UntaggedCount
		cur.UpdatedAt = r.s.now()
	}
	return nil
}
