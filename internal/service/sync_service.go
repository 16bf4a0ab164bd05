package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/adpulse/configs"
	"github.com/maheshrc27/adpulse/internal/metrics"
	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Dispatcher hands a claimed sync run to whatever executes it.
type Dispatcher interface {
	DispatchSync(ctx context.Context, syncID int64) error
}

type StartSyncRequest struct {
	AccountKey string
	SyncType   string
	Since      *time.Time
}

type SyncService interface {
	// Start records a sync request and returns immediately. The row is running
	// and dispatched when no conflicting run exists, queued otherwise.
	Start(ctx context.Context, req StartSyncRequest) (*models.SyncLog, error)
	// Execute runs a claimed sync to a terminal status.
	Execute(ctx context.Context, syncID int64) error
	Get(ctx context.Context, syncID int64) (*models.SyncLog, error)
	List(ctx context.Context, accountKey string, limit int) ([]*models.SyncLog, error)
	Cancel(ctx context.Context, syncID int64) (bool, error)
	CancelAccount(ctx context.Context, accountKey string) (int, error)
	// PromoteQueued claims and dispatches queued runs oldest first wherever no
	// conflicting run holds the key.
	PromoteQueued(ctx context.Context) (int, error)
}

type syncService struct {
	cfg    config.Sync
	client AdsClient
	ar     repository.AccountRepository
	cr     repository.CreativeRepository
	dr     repository.DailyMetricRepository
	sr     repository.SyncLogRepository
	ts     TagService
	d      Dispatcher

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSyncService(
	cfg config.Sync,
	client AdsClient,
	ar repository.AccountRepository,
	cr repository.CreativeRepository,
	dr repository.DailyMetricRepository,
	sr repository.SyncLogRepository,
	ts TagService,
	d Dispatcher) SyncService {
	return &syncService{
		cfg:    cfg,
		client: client,
		ar:     ar,
		cr:     cr,
		dr:     dr,
		sr:     sr,
		ts:     ts,
		d:      d,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *syncService) Start(ctx context.Context, req StartSyncRequest) (*models.SyncLog, error) {
	if req.AccountKey == "" {
		return nil, &ValidationError{Field: "account_id", Message: "is required"}
	}
	if req.SyncType == "" {
		req.SyncType = models.SyncTypeFull
	}
	if req.SyncType != models.SyncTypeFull && req.SyncType != models.SyncTypeIncremental {
		return nil, &ValidationError{Field: "sync_type", Message: "must be full or incremental"}
	}

	if req.AccountKey != models.AccountKeyAll {
		account, err := s.ar.GetByID(ctx, req.AccountKey)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, ErrNotFound
		}
	}

	l := &models.SyncLog{
		AccountKey: req.AccountKey,
		SyncType:   req.SyncType,
		Since:      req.Since,
	}
	if _, err := s.sr.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	if _, err := s.PromoteQueued(ctx); err != nil {
		slog.Warn("promote after start failed", "sync_id", l.ID, "error", err)
	}

	latest, err := s.sr.GetByID(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	if latest.Status == models.SyncStatusQueued {
		slog.Info("sync queued behind a running sync", "sync_id", l.ID, "account_key", l.AccountKey)
	}
	return latest, nil
}

func (s *syncService) Get(ctx context.Context, syncID int64) (*models.SyncLog, error) {
	l, err := s.sr.GetByID(ctx, syncID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}

func (s *syncService) List(ctx context.Context, accountKey string, limit int) ([]*models.SyncLog, error) {
	return s.sr.List(ctx, accountKey, limit)
}

func (s *syncService) PromoteQueued(ctx context.Context) (int, error) {
	queued, err := s.sr.ListQueued(ctx, "")
	if err != nil {
		return 0, err
	}

	promoted := 0
	// Keys of older rows left queued. A newer row conflicting with one of
	// them waits its turn.
	var blocked []string
	for _, l := range queued {
		if conflictsAny(l.AccountKey, blocked) {
			blocked = append(blocked, l.AccountKey)
			continue
		}
		runID, err := gonanoid.New()
		if err != nil {
			return promoted, err
		}
		ok, err := s.sr.Claim(ctx, l.ID, runID, s.now())
		if err != nil {
			return promoted, err
		}
		if !ok {
			blocked = append(blocked, l.AccountKey)
			continue
		}

		metrics.PromotedSyncs.Inc()
		if err := s.d.DispatchSync(ctx, l.ID); err != nil {
			slog.Error("dispatch sync failed", "sync_id", l.ID, "error", err)
			s.finish(ctx, l, models.SyncStatusFailed, models.APIErrors{{
				Source:  models.ErrorSourceSystem,
				Code:    "dispatch",
				Message: err.Error(),
				At:      s.now(),
			}})
			continue
		}
		slog.Info("sync started", "sync_id", l.ID, "account_key", l.AccountKey, "run_id", runID)
		promoted++
	}
	return promoted, nil
}

func conflictsAny(key string, keys []string) bool {
	for _, k := range keys {
		if models.KeysConflict(key, k) {
			return true
		}
	}
	return false
}

func (s *syncService) Cancel(ctx context.Context, syncID int64) (bool, error) {
	l, err := s.sr.GetByID(ctx, syncID)
	if err != nil {
		return false, err
	}
	if l == nil {
		return false, ErrNotFound
	}
	return s.cancel(ctx, l)
}

func (s *syncService) CancelAccount(ctx context.Context, accountKey string) (int, error) {
	active, err := s.sr.ListActive(ctx, accountKey)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, l := range active {
		ok, err := s.cancel(ctx, l)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *syncService) cancel(ctx context.Context, l *models.SyncLog) (bool, error) {
	ok, err := s.sr.Finish(ctx, l.ID, models.SyncStatusFailed, models.APIErrors{{
		Source:  models.ErrorSourceUser,
		Message: models.CancelledMessage,
		At:      s.now(),
	}}, s.now())
	if err != nil || !ok {
		return ok, err
	}

	slog.Info("sync cancelled", "sync_id", l.ID, "account_key", l.AccountKey)
	metrics.SyncRuns.WithLabelValues(l.SyncType, "cancelled").Inc()
	if _, err := s.PromoteQueued(ctx); err != nil {
		slog.Warn("promote after cancel failed", "sync_id", l.ID, "error", err)
	}
	return true, nil
}

// finish moves the row to a terminal status and promotes whatever was queued
// behind it. The writes survive cancellation of ctx.
func (s *syncService) finish(ctx context.Context, l *models.SyncLog, status string, errs models.APIErrors) bool {
	ctx = context.WithoutCancel(ctx)

	ok, err := s.sr.Finish(ctx, l.ID, status, errs, s.now())
	if err != nil {
		slog.Error("finish sync failed", "sync_id", l.ID, "status", status, "error", err)
		return false
	}
	if ok {
		metrics.SyncRuns.WithLabelValues(l.SyncType, status).Inc()
	}
	if _, err := s.PromoteQueued(ctx); err != nil {
		slog.Warn("promote after finish failed", "sync_id", l.ID, "error", err)
	}
	return ok
}

func (s *syncService) Execute(ctx context.Context, syncID int64) error {
	l, err := s.sr.GetByID(ctx, syncID)
	if err != nil {
		return err
	}
	if l == nil {
		return ErrNotFound
	}
	if l.Status != models.SyncStatusRunning {
		slog.Info("skipping sync that is not running", "sync_id", l.ID, "status", l.Status)
		return nil
	}

	run := &syncRun{s: s, log: l, state: l.SyncState}
	err = run.execute(ctx)

	switch {
	case err == nil:
		if run.finish(ctx, models.SyncStatusCompleted) {
			for _, a := range run.accounts {
				if err := s.ar.SetLastSynced(context.WithoutCancel(ctx), a.ID, run.startedAt); err != nil {
					slog.Error("set last synced failed", "account_id", a.ID, "error", err)
				}
			}
		}
		slog.Info("sync completed", "sync_id", l.ID, "account_key", l.AccountKey,
			"fetched", run.progress.CreativesFetched, "upserted", run.progress.CreativesUpserted,
			"tags_updated", run.progress.TagsUpdated)
		return nil
	case errors.Is(err, ErrRunStopped):
		slog.Info("sync stopped externally", "sync_id", l.ID)
		return nil
	default:
		slog.Error("sync failed", "sync_id", l.ID, "account_key", l.AccountKey,
			"phase", models.PhaseName(run.progress.Phase), "error", err)
		run.recordError(err)
		run.finish(ctx, models.SyncStatusFailed)
		return nil
	}
}

// backoff is the capped exponential delay after the given failed attempt.
// Rate limits wait at least as long as the platform asked.
func (s *syncService) backoff(attempt int, err error) time.Duration {
	delay := s.cfg.BackoffBase << (attempt - 1)
	if delay <= 0 || delay > s.cfg.BackoffCap {
		delay = s.cfg.BackoffCap
	}
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > delay {
		delay = rl.RetryAfter
	}
	return delay
}

func (s *syncService) maxAttempts() int {
	if s.cfg.MaxAttempts <= 0 {
		return 1
	}
	return s.cfg.MaxAttempts
}
