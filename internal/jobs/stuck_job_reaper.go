package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/adpulse/configs"
	"github.com/maheshrc27/adpulse/internal/metrics"
	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository"
	"github.com/maheshrc27/adpulse/internal/service"
)

// StuckJobReaper fails sync and media runs whose worker stopped writing
// heartbeats, then promotes whatever was queued behind them.
type StuckJobReaper struct {
	sr  repository.SyncLogRepository
	mr  repository.MediaRefreshLogRepository
	ss  service.SyncService
	cfg config.Config
	now func() time.Time
}

type ReapResult struct {
	Syncs    int
	Media    int64
	Promoted int
}

func NewStuckJobReaper(
	sr repository.SyncLogRepository,
	mr repository.MediaRefreshLogRepository,
	ss service.SyncService,
	cfg config.Config) *StuckJobReaper {
	return &StuckJobReaper{
		sr:  sr,
		mr:  mr,
		ss:  ss,
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// ReapStuckJobs is the cron entry point.
func (j *StuckJobReaper) ReapStuckJobs() {
	res, err := j.Sweep(context.Background())
	if err != nil {
		slog.Error("reaper sweep failed", "error", err)
		return
	}
	if res.Syncs > 0 || res.Media > 0 || res.Promoted > 0 {
		slog.Info("reaper sweep", "syncs_reaped", res.Syncs, "media_reaped", res.Media, "promoted", res.Promoted)
	}
}

func (j *StuckJobReaper) Sweep(ctx context.Context) (ReapResult, error) {
	var res ReapResult
	now := j.now()

	n, err := j.reapSyncs(ctx, now)
	if err != nil {
		return res, err
	}
	res.Syncs = n

	m, err := j.mr.FailStale(ctx, now.Add(-j.cfg.Media.StaleAfter), models.APIError{
		Source:  models.ErrorSourceReaper,
		Message: fmt.Sprintf("no progress for %s", j.cfg.Media.StaleAfter),
		At:      now,
	})
	if err != nil {
		return res, err
	}
	res.Media = m
	metrics.ReapedJobs.WithLabelValues("media").Add(float64(m))

	// Also recovers queued rows whose promotion was lost.
	promoted, err := j.ss.PromoteQueued(ctx)
	if err != nil {
		return res, err
	}
	res.Promoted = promoted
	return res, nil
}

func (j *StuckJobReaper) reapSyncs(ctx context.Context, now time.Time) (int, error) {
	candidates, err := j.sr.ListRunningStartedBefore(ctx, now.Add(-j.cfg.Sync.StaleAfter))
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, l := range candidates {
		last := l.LastActivity()
		if !last.Before(now.Add(-j.cfg.Sync.HeartbeatTimeout)) {
			continue
		}

		ok, err := j.sr.Finish(ctx, l.ID, models.SyncStatusFailed, models.APIErrors{{
			Source:  models.ErrorSourceReaper,
			Message: "no heartbeat since " + last.Format(time.RFC3339),
			At:      now,
		}}, now)
		if err != nil {
			return reaped, err
		}
		if !ok {
			continue
		}
		slog.Warn("reaped stuck sync", "sync_id", l.ID, "account_key", l.AccountKey, "last_activity", last)
		metrics.ReapedJobs.WithLabelValues("sync").Inc()
		metrics.SyncRuns.WithLabelValues(l.SyncType, models.SyncStatusFailed).Inc()
		reaped++
	}
	return reaped, nil
}
