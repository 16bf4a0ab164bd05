package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository"
	"github.com/maheshrc27/adpulse/internal/service"
	"github.com/robfig/cron"
)

// ScheduledSyncJob starts incremental syncs for active accounts on their
// report_schedule, or on the default spec when they have none. It is meant
// to be ticked once a minute.
type ScheduledSyncJob struct {
	ar          repository.AccountRepository
	sr          repository.SyncLogRepository
	ss          service.SyncService
	defaultSpec string
	now         func() time.Time

	mu   sync.Mutex
	next map[string]scheduledRun
}

type scheduledRun struct {
	spec string
	at   time.Time
}

func NewScheduledSyncJob(
	ar repository.AccountRepository,
	sr repository.SyncLogRepository,
	ss service.SyncService,
	defaultSpec string) *ScheduledSyncJob {
	return &ScheduledSyncJob{
		ar:          ar,
		sr:          sr,
		ss:          ss,
		defaultSpec: defaultSpec,
		now:         func() time.Time { return time.Now().UTC() },
		next:        make(map[string]scheduledRun),
	}
}

// RunScheduledSyncs is the cron entry point.
func (j *ScheduledSyncJob) RunScheduledSyncs() {
	if _, err := j.Tick(context.Background()); err != nil {
		slog.Error("scheduled sync tick failed", "error", err)
	}
}

// Tick starts a sync for every account whose next run is due and returns the
// ids of the accounts started. The first tick after an account appears only
// computes its next run.
func (j *ScheduledSyncJob) Tick(ctx context.Context) ([]string, error) {
	accounts, err := j.ar.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	seen := make(map[string]struct{}, len(accounts))
	var started []string

	for _, a := range accounts {
		seen[a.ID] = struct{}{}

		spec := a.ReportSchedule
		if spec == "" {
			spec = j.defaultSpec
		}
		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			slog.Warn("invalid report schedule", "account_id", a.ID, "schedule", spec, "error", err)
			continue
		}

		run, ok := j.next[a.ID]
		if !ok || run.spec != spec {
			j.next[a.ID] = scheduledRun{spec: spec, at: schedule.Next(now)}
			continue
		}
		if now.Before(run.at) {
			continue
		}
		j.next[a.ID] = scheduledRun{spec: spec, at: schedule.Next(now)}

		if j.busy(ctx, a.ID) {
			slog.Info("scheduled sync skipped, account busy", "account_id", a.ID)
			continue
		}
		l, err := j.ss.Start(ctx, service.StartSyncRequest{
			AccountKey: a.ID,
			SyncType:   models.SyncTypeIncremental,
		})
		if err != nil {
			slog.Error("scheduled sync failed to start", "account_id", a.ID, "error", err)
			continue
		}
		slog.Info("scheduled sync started", "account_id", a.ID, "sync_id", l.ID, "status", l.Status)
		started = append(started, a.ID)
	}

	for id := range j.next {
		if _, ok := seen[id]; !ok {
			delete(j.next, id)
		}
	}
	return started, nil
}

// busy reports whether a run for the account, or for every account, is
// already queued or running.
func (j *ScheduledSyncJob) busy(ctx context.Context, accountID string) bool {
	for _, key := range []string{accountID, models.AccountKeyAll} {
		active, err := j.sr.ListActive(ctx, key)
		if err != nil {
			slog.Warn("list active syncs failed", "account_key", key, "error", err)
			return false
		}
		if len(active) > 0 {
			return true
		}
	}
	return false
}
