package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
)

type DailyMetricRepository interface {
	UpsertMany(ctx context.Context, rows []*models.DailyMetric) error
	ListAccountLevel(ctx context.Context, accountID string, from, to time.Time) ([]*models.DailyMetric, error)
}

type dailyMetricRepository struct {
	db *sql.DB
}

func NewDailyMetricRepository(db *sql.DB) DailyMetricRepository {
	return &dailyMetricRepository{db: db}
}

// UpsertMany replaces the counters of each (account, ad, date) row. Writing the
// same row twice leaves the same result, whatever the order.
func (r *dailyMetricRepository) UpsertMany(ctx context.Context, rows []*models.DailyMetric) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_metrics (
			account_id, ad_id, date, spend, impressions, reach, clicks, purchases,
			purchase_value, adds_to_cart, video_3s_views, video_thruplays
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account_id, ad_id, date) DO UPDATE SET
			spend = EXCLUDED.spend,
			impressions = EXCLUDED.impressions,
			reach = EXCLUDED.reach,
			clicks = EXCLUDED.clicks,
			purchases = EXCLUDED.purchases,
			purchase_value = EXCLUDED.purchase_value,
			adds_to_cart = EXCLUDED.adds_to_cart,
			video_3s_views = EXCLUDED.video_3s_views,
			video_thruplays = EXCLUDED.video_thruplays,
			updated_at = now()
	`)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer stmt.Close()

	for _, m := range rows {
		c := m.Counters
		_, err := stmt.ExecContext(ctx, m.AccountID, m.AdID, m.Date,
			c.Spend, c.Impressions, c.Reach, c.Clicks, c.Purchases,
			c.PurchaseValue, c.AddsToCart, c.Video3sViews, c.VideoThruplays)
		if err != nil {
			slog.Info(err.Error())
			return fmt.Errorf("upsert daily metric %s/%s/%s: %w", m.AccountID, m.AdID, m.Date.Format(time.DateOnly), err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *dailyMetricRepository) ListAccountLevel(ctx context.Context, accountID string, from, to time.Time) ([]*models.DailyMetric, error) {
	query := `
		SELECT account_id, ad_id, date, spend, impressions, reach, clicks, purchases,
			purchase_value, adds_to_cart, video_3s_views, video_thruplays, updated_at
		FROM daily_metrics
		WHERE account_id = $1 AND ad_id = '' AND date BETWEEN $2 AND $3
		ORDER BY date
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []*models.DailyMetric
	for rows.Next() {
		var m models.DailyMetric
		c := &m.Counters
		err := rows.Scan(&m.AccountID, &m.AdID, &m.Date, &c.Spend, &c.Impressions, &c.Reach,
			&c.Clicks, &c.Purchases, &c.PurchaseValue, &c.AddsToCart, &c.Video3sViews,
			&c.VideoThruplays, &m.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return out, nil
}
