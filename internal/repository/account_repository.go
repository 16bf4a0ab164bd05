package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
)

type AccountRepository interface {
	Upsert(ctx context.Context, a *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	ListActive(ctx context.Context) ([]*models.Account, error)
	UpdateSettings(ctx context.Context, a *models.Account) error
	SetLastSynced(ctx context.Context, id string, at time.Time) error
	SetRollup(ctx context.Context, id string, r models.AccountRollup) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, name, is_active, last_synced_at, winner_kpi, kpi_direction,
	scale_threshold, kill_threshold, spend_threshold, date_range_days, report_schedule,
	creative_count, untagged_count, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var a models.Account
	var lastSynced sql.NullTime
	err := row.Scan(&a.ID, &a.Name, &a.IsActive, &lastSynced, &a.WinnerKPI, &a.KPIDirection,
		&a.ScaleThreshold, &a.KillThreshold, &a.SpendThreshold, &a.DateRangeDays, &a.ReportSchedule,
		&a.CreativeCount, &a.UntaggedCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastSynced.Valid {
		a.LastSyncedAt = &lastSynced.Time
	}
	return &a, nil
}

// Upsert creates the account or refreshes its display name and active flag.
// Thresholds are only changed through UpdateSettings.
func (r *accountRepository) Upsert(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (id, name, is_active, date_range_days)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.Name, a.IsActive, a.RangeDays())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return a, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name`)
}

func (r *accountRepository) ListActive(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE is_active ORDER BY id`)
}

func (r *accountRepository) list(ctx context.Context, query string) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) UpdateSettings(ctx context.Context, a *models.Account) error {
	query := `
		UPDATE accounts
		SET name = $2,
			is_active = $3,
			winner_kpi = $4,
			kpi_direction = $5,
			scale_threshold = $6,
			kill_threshold = $7,
			spend_threshold = $8,
			date_range_days = $9,
			report_schedule = $10,
			updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, a.ID, a.Name, a.IsActive, a.WinnerKPI, a.KPIDirection,
		a.ScaleThreshold, a.KillThreshold, a.SpendThreshold, a.RangeDays(), a.ReportSchedule)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *accountRepository) SetLastSynced(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE accounts SET last_synced_at = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) SetRollup(ctx context.Context, id string, rollup models.AccountRollup) error {
	query := `
		UPDATE accounts
		SET creative_count = $2,
			untagged_count = $3,
			updated_at = now()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, rollup.CreativeCount, rollup.UntaggedCount); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
