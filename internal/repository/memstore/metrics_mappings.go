package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
)

type dailyMetricStore struct{ s *Store }

func (r *dailyMetricStore) UpsertMany(ctx context.Context, rows []*models.DailyMetric) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	for _, m := range rows {
		cp := *m
		cp.Date = time.Date(m.Date.Year(), m.Date.Month(), m.Date.Day(), 0, 0, 0, 0, time.UTC)
		cp.UpdatedAt = now
		r.s.daily[dailyKey{m.AccountID, m.AdID, dateKey(cp.Date)}] = &cp
	}
	return nil
}

func (r *dailyMetricStore) ListAccountLevel(ctx context.Context, accountID string, from, to time.Time) ([]*models.DailyMetric, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.DailyMetric
	for k, m := range r.s.daily {
		if k.accountID == accountID && k.adID == models.AccountLevelAdID && inRange(m.Date, from, to) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type nameMappingStore struct{ s *Store }

func (r *nameMappingStore) ReplaceMany(ctx context.Context, accountID string, mappings []*models.NameMapping) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	table, ok := r.s.mappings[accountID]
	if !ok {
		table = make(map[string]*models.NameMapping)
		r.s.mappings[accountID] = table
	}
	now := r.s.now()
	for _, m := range mappings {
		cp := *m
		cp.AccountID = accountID
		cp.UpdatedAt = now
		table[m.UniqueCode] = &cp
	}
	return len(mappings), nil
}

func (r *nameMappingStore) ListByAccount(ctx context.Context, accountID string) ([]*models.NameMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.NameMapping
	for _, m := range r.s.mappings[accountID] {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueCode < out[j].UniqueCode })
	return out, nil
}
