package memstore

import (
	"context"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
)

type mediaLogStore struct{ s *Store }

func cloneMediaLog(l *models.MediaRefreshLog) *models.MediaRefreshLog {
	cp := *l
	cp.Errors = append(models.APIErrors(nil), l.Errors...)
	return &cp
}

func (r *mediaLogStore) Create(ctx context.Context) (*models.MediaRefreshLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextMedia++
	now := r.s.now()
	l := &models.MediaRefreshLog{
		ID:           r.s.nextMedia,
		Status:       models.SyncStatusRunning,
		CurrentPhase: models.MediaPhaseDiscover,
		StartedAt:    now,
		UpdatedAt:    now,
	}
	r.s.mediaLogs[l.ID] = l
	return cloneMediaLog(l), nil
}

func (r *mediaLogStore) UpdateProgress(ctx context.Context, in *models.MediaRefreshLog) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.mediaLogs[in.ID]
	if !ok || l.Status != models.SyncStatusRunning {
		return false, nil
	}
	l.CurrentPhase = in.CurrentPhase
	l.ThumbsTotal, l.ThumbsCached, l.ThumbsFailed = in.ThumbsTotal, in.ThumbsCached, in.ThumbsFailed
	l.VideosTotal, l.VideosCached, l.VideosFailed = in.VideosTotal, in.VideosCached, in.VideosFailed
	l.UpdatedAt = r.s.now()
	return true, nil
}

func (r *mediaLogStore) Finish(ctx context.Context, in *models.MediaRefreshLog, status string, errs models.APIErrors, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.mediaLogs[in.ID]
	if !ok || l.Status != models.SyncStatusRunning {
		return false, nil
	}
	l.CurrentPhase = in.CurrentPhase
	l.ThumbsTotal, l.ThumbsCached, l.ThumbsFailed = in.ThumbsTotal, in.ThumbsCached, in.ThumbsFailed
	l.VideosTotal, l.VideosCached, l.VideosFailed = in.VideosTotal, in.VideosCached, in.VideosFailed
	l.Status = status
	l.Errors = append(l.Errors, errs...)
	l.CompletedAt = &at
	l.UpdatedAt = at
	return true, nil
}

func (r *mediaLogStore) Latest(ctx context.Context) (*models.MediaRefreshLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var latest *models.MediaRefreshLog
	for _, l := range r.s.mediaLogs {
		if latest == nil || l.ID > latest.ID {
			latest = l
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneMediaLog(latest), nil
}

func (r *mediaLogStore) FailStale(ctx context.Context, cutoff time.Time, entry models.APIError) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	var n int64
	for _, l := range r.s.mediaLogs {
		if l.Status != models.SyncStatusRunning || !l.UpdatedAt.Before(cutoff) {
			continue
		}
		l.Status = models.SyncStatusFailed
		l.Errors = append(l.Errors, entry)
		l.CompletedAt = &now
		l.UpdatedAt = now
		n++
	}
	return n, nil
}

// Backdate moves a media log's updated_at, for exercising stale sweeps.
func (s *Store) Backdate(id int64, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.mediaLogs[id]; ok {
		l.UpdatedAt = updatedAt
	}
}
