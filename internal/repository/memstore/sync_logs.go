package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
)

type syncLogStore struct{ s *Store }

func cloneSyncLog(l *models.SyncLog) *models.SyncLog {
	cp := *l
	cp.APIErrors = append(models.APIErrors(nil), l.APIErrors...)
	return &cp
}

func (r *syncLogStore) Create(ctx context.Context, l *models.SyncLog) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextSyncID++
	l.ID = r.s.nextSyncID
	l.Status = models.SyncStatusQueued
	l.CreatedAt = r.s.now()
	r.s.syncLogs[l.ID] = cloneSyncLog(l)
	return l.ID, nil
}

func (r *syncLogStore) GetByID(ctx context.Context, id int64) (*models.SyncLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.syncLogs[id]
	if !ok {
		return nil, nil
	}
	return cloneSyncLog(l), nil
}

func (r *syncLogStore) List(ctx context.Context, accountKey string, limit int) ([]*models.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	out := r.filter(func(l *models.SyncLog) bool {
		return accountKey == "" || l.AccountKey == accountKey
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *syncLogStore) filter(keep func(*models.SyncLog) bool) []*models.SyncLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.SyncLog
	for _, l := range r.s.syncLogs {
		if keep(l) {
			out = append(out, cloneSyncLog(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *syncLogStore) Claim(ctx context.Context, id int64, runID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.syncLogs[id]
	if !ok || l.Status != models.SyncStatusQueued {
		return false, nil
	}
	for _, o := range r.s.syncLogs {
		if o.Status == models.SyncStatusRunning && models.KeysConflict(o.AccountKey, l.AccountKey) {
			return false, nil
		}
	}

	l.Status = models.SyncStatusRunning
	l.StartedAt = &at
	l.CurrentPhase = 0
	l.SyncState = models.SyncState{LastActivity: &at, RunID: runID}
	return true, nil
}

func (r *syncLogStore) Heartbeat(ctx context.Context, id int64, p models.SyncProgress) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.syncLogs[id]
	if !ok || l.Status != models.SyncStatusRunning {
		return false, nil
	}
	l.CurrentPhase = p.Phase
	l.CreativesFetched = p.CreativesFetched
	l.CreativesUpserted = p.CreativesUpserted
	l.TagsUpdated = p.TagsUpdated
	l.SyncState = p.State
	return true, nil
}

func (r *syncLogStore) Finish(ctx context.Context, id int64, status string, errs models.APIErrors, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.syncLogs[id]
	if !ok || l.Terminal() {
		return false, nil
	}
	l.Status = status
	l.APIErrors = append(l.APIErrors, errs...)
	l.CompletedAt = &at
	return true, nil
}

func (r *syncLogStore) ListActive(ctx context.Context, accountKey string) ([]*models.SyncLog, error) {
	return r.filter(func(l *models.SyncLog) bool {
		return l.AccountKey == accountKey && !l.Terminal()
	}), nil
}

func (r *syncLogStore) ListQueued(ctx context.Context, accountKey string) ([]*models.SyncLog, error) {
	out := r.filter(func(l *models.SyncLog) bool {
		return l.Status == models.SyncStatusQueued && (accountKey == "" || l.AccountKey == accountKey)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *syncLogStore) ListRunningStartedBefore(ctx context.Context, cutoff time.Time) ([]*models.SyncLog, error) {
	return r.filter(func(l *models.SyncLog) bool {
		return l.Status == models.SyncStatusRunning && l.StartedAt != nil && l.StartedAt.Before(cutoff)
	}), nil
}
