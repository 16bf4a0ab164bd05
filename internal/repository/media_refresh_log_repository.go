package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
)

type MediaRefreshLogRepository interface {
	Create(ctx context.Context) (*models.MediaRefreshLog, error)
	// UpdateProgress writes counters of a running row and reports false once
	// the row has been finished by someone else.
	UpdateProgress(ctx context.Context, l *models.MediaRefreshLog) (bool, error)
	// Finish closes a running row with the final counters of l so a late
	// progress write cannot leave stale totals behind.
	Finish(ctx context.Context, l *models.MediaRefreshLog, status string, errs models.APIErrors, at time.Time) (bool, error)
	Latest(ctx context.Context) (*models.MediaRefreshLog, error)
	// FailStale marks running rows not updated since cutoff as failed and
	// returns how many were changed.
	FailStale(ctx context.Context, cutoff time.Time, entry models.APIError) (int64, error)
}

type mediaRefreshLogRepository struct {
	db *sql.DB
}

func NewMediaRefreshLogRepository(db *sql.DB) MediaRefreshLogRepository {
	return &mediaRefreshLogRepository{db: db}
}

const mediaRefreshLogColumns = `id, status, current_phase, thumbs_total, thumbs_cached, thumbs_failed,
	videos_total, videos_cached, videos_failed, errors, started_at, updated_at, completed_at`

func scanMediaRefreshLog(row interface{ Scan(...any) error }) (*models.MediaRefreshLog, error) {
	var l models.MediaRefreshLog
	var completed sql.NullTime
	err := row.Scan(&l.ID, &l.Status, &l.CurrentPhase, &l.ThumbsTotal, &l.ThumbsCached, &l.ThumbsFailed,
		&l.VideosTotal, &l.VideosCached, &l.VideosFailed, &l.Errors, &l.StartedAt, &l.UpdatedAt, &completed)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		l.CompletedAt = &completed.Time
	}
	return &l, nil
}

func (r *mediaRefreshLogRepository) Create(ctx context.Context) (*models.MediaRefreshLog, error) {
	query := `
		INSERT INTO media_refresh_logs (status, current_phase)
		VALUES ('running', $1)
		RETURNING ` + mediaRefreshLogColumns

	l, err := scanMediaRefreshLog(r.db.QueryRowContext(ctx, query, models.MediaPhaseDiscover))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return l, nil
}

func (r *mediaRefreshLogRepository) UpdateProgress(ctx context.Context, l *models.MediaRefreshLog) (bool, error) {
	query := `
		UPDATE media_refresh_logs
		SET current_phase = $2,
			thumbs_total = $3, thumbs_cached = $4, thumbs_failed = $5,
			videos_total = $6, videos_cached = $7, videos_failed = $8,
			updated_at = now()
		WHERE id = $1 AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, query, l.ID, l.CurrentPhase,
		l.ThumbsTotal, l.ThumbsCached, l.ThumbsFailed,
		l.VideosTotal, l.VideosCached, l.VideosFailed)
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

func (r *mediaRefreshLogRepository) Finish(ctx context.Context, l *models.MediaRefreshLog, status string, errs models.APIErrors, at time.Time) (bool, error) {
	query := `
		UPDATE media_refresh_logs
		SET status = $2, errors = errors || $3::jsonb, completed_at = $4, updated_at = $4,
			current_phase = $5,
			thumbs_total = $6, thumbs_cached = $7, thumbs_failed = $8,
			videos_total = $9, videos_cached = $10, videos_failed = $11
		WHERE id = $1 AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, query, l.ID, status, errs, at, l.CurrentPhase,
		l.ThumbsTotal, l.ThumbsCached, l.ThumbsFailed,
		l.VideosTotal, l.VideosCached, l.VideosFailed)
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

func (r *mediaRefreshLogRepository) Latest(ctx context.Context) (*models.MediaRefreshLog, error) {
	query := `SELECT ` + mediaRefreshLogColumns + ` FROM media_refresh_logs ORDER BY id DESC LIMIT 1`

	l, err := scanMediaRefreshLog(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return l, nil
}

func (r *mediaRefreshLogRepository) FailStale(ctx context.Context, cutoff time.Time, entry models.APIError) (int64, error) {
	query := `
		UPDATE media_refresh_logs
		SET status = 'failed', errors = errors || $2::jsonb, completed_at = now(), updated_at = now()
		WHERE status = 'running' AND updated_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff, models.APIErrors{entry})
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}
