package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/adpulse/internal/models"
)

type SyncLogRepository interface {
	Create(ctx context.Context, l *models.SyncLog) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.SyncLog, error)
	List(ctx context.Context, accountKey string, limit int) ([]*models.SyncLog, error)
	// Claim moves a queued row to running if no conflicting run exists. It
	// reports false, without error, when the row stays queued.
	Claim(ctx context.Context, id int64, runID string, at time.Time) (bool, error)
	// Heartbeat records progress on a running row and reports false once the
	// row is no longer running.
	Heartbeat(ctx context.Context, id int64, p models.SyncProgress) (bool, error)
	// Finish moves a queued or running row to a terminal status, appending
	// errs to api_errors. A row that is already terminal is left untouched.
	Finish(ctx context.Context, id int64, status string, errs models.APIErrors, at time.Time) (bool, error)
	ListActive(ctx context.Context, accountKey string) ([]*models.SyncLog, error)
	// ListQueued returns queued rows oldest first; an empty key means any.
	ListQueued(ctx context.Context, accountKey string) ([]*models.SyncLog, error)
	ListRunningStartedBefore(ctx context.Context, cutoff time.Time) ([]*models.SyncLog, error)
}

type syncLogRepository struct {
	db *sql.DB
}

func NewSyncLogRepository(db *sql.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

// claimLockKey serializes claims across all account keys so that the "all"
// exclusivity check and the per-account check see each other's writes.
const claimLockKey = 0x5f53594e43

const syncLogColumns = `id, account_key, sync_type, since, status, current_phase, creatives_fetched,
	creatives_upserted, tags_updated, sync_state, api_errors, created_at, started_at, completed_at`

func scanSyncLog(row interface{ Scan(...any) error }) (*models.SyncLog, error) {
	var l models.SyncLog
	var since, started, completed sql.NullTime
	err := row.Scan(&l.ID, &l.AccountKey, &l.SyncType, &since, &l.Status, &l.CurrentPhase,
		&l.CreativesFetched, &l.CreativesUpserted, &l.TagsUpdated, &l.SyncState, &l.APIErrors,
		&l.CreatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	if since.Valid {
		l.Since = &since.Time
	}
	if started.Valid {
		l.StartedAt = &started.Time
	}
	if completed.Valid {
		l.CompletedAt = &completed.Time
	}
	return &l, nil
}

func (r *syncLogRepository) Create(ctx context.Context, l *models.SyncLog) (int64, error) {
	query := `
		INSERT INTO sync_logs (account_key, sync_type, since, status, sync_state, api_errors)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, l.AccountKey, l.SyncType, l.Since, models.SyncStatusQueued,
		l.SyncState, l.APIErrors).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	l.Status = models.SyncStatusQueued
	return l.ID, nil
}

func (r *syncLogRepository) GetByID(ctx context.Context, id int64) (*models.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_logs WHERE id = $1`

	l, err := scanSyncLog(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return l, nil
}

func (r *syncLogRepository) List(ctx context.Context, accountKey string, limit int) ([]*models.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	if accountKey == "" {
		return r.list(ctx, `SELECT `+syncLogColumns+` FROM sync_logs ORDER BY id DESC LIMIT $1`, limit)
	}
	return r.list(ctx, `SELECT `+syncLogColumns+` FROM sync_logs WHERE account_key = $1 ORDER BY id DESC LIMIT $2`, accountKey, limit)
}

func (r *syncLogRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.SyncLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return logs, nil
}

func (r *syncLogRepository) Claim(ctx context.Context, id int64, runID string, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, claimLockKey); err != nil {
		slog.Info(err.Error())
		return false, err
	}

	state := models.SyncState{LastActivity: &at, RunID: runID}
	query := `
		UPDATE sync_logs s
		SET status = 'running', started_at = $2, current_phase = 0, sync_state = $3
		WHERE s.id = $1 AND s.status = 'queued'
			AND NOT EXISTS (
				SELECT 1 FROM sync_logs o
				WHERE o.status = 'running'
					AND (o.account_key = s.account_key OR o.account_key = 'all' OR s.account_key = 'all')
			)
	`
	res, err := tx.ExecContext(ctx, query, id, at, state)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Lost the race on sync_logs_one_running_idx.
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return n == 1, nil
}

func (r *syncLogRepository) Heartbeat(ctx context.Context, id int64, p models.SyncProgress) (bool, error) {
	query := `
		UPDATE sync_logs
		SET current_phase = $2,
			creatives_fetched = $3,
			creatives_upserted = $4,
			tags_updated = $5,
			sync_state = $6
		WHERE id = $1 AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, query, id, p.Phase, p.CreativesFetched, p.CreativesUpserted, p.TagsUpdated, p.State)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return n == 1, nil
}

func (r *syncLogRepository) Finish(ctx context.Context, id int64, status string, errs models.APIErrors, at time.Time) (bool, error) {
	query := `
		UPDATE sync_logs
		SET status = $2,
			api_errors = api_errors || $3::jsonb,
			completed_at = $4
		WHERE id = $1 AND status IN ('queued', 'running')
	`
	res, err := r.db.ExecContext(ctx, query, id, status, errs, at)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return n == 1, nil
}

func (r *syncLogRepository) ListActive(ctx context.Context, accountKey string) ([]*models.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_logs
		WHERE account_key = $1 AND status IN ('queued', 'running') ORDER BY id`
	return r.list(ctx, query, accountKey)
}

func (r *syncLogRepository) ListQueued(ctx context.Context, accountKey string) ([]*models.SyncLog, error) {
	if accountKey == "" {
		return r.list(ctx, `SELECT `+syncLogColumns+` FROM sync_logs WHERE status = 'queued' ORDER BY created_at, id`)
	}
	query := `SELECT ` + syncLogColumns + ` FROM sync_logs
		WHERE account_key = $1 AND status = 'queued' ORDER BY created_at, id`
	return r.list(ctx, query, accountKey)
}

func (r *syncLogRepository) ListRunningStartedBefore(ctx context.Context, cutoff time.Time) ([]*models.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_logs
		WHERE status = 'running' AND started_at < $1 ORDER BY id`
	return r.list(ctx, query, cutoff)
}
