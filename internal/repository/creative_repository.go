package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/adpulse/internal/models"
)

type CreativeRepository interface {
	GetByID(ctx context.Context, adID string) (*models.Creative, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Creative, error)
	List(ctx context.Context, f models.CreativeFilter) ([]*models.Creative, int, error)
	UpsertMany(ctx context.Context, creatives []*models.Creative) error
	UpdateTags(ctx context.Context, u models.TagUpdate) (bool, error)
	Update(ctx context.Context, adID string, u models.CreativeUpdate) (*models.Creative, error)
	BulkUntag(ctx context.Context, adIDs []string) (int64, error)
	Rollup(ctx context.Context, accountID string) (models.AccountRollup, error)
	RefreshCounters(ctx context.Context, accountID string, from, to time.Time) error
	ListUncachedMedia(ctx context.Context, kind string, limit int) ([]*models.MediaItem, error)
	SetMediaURL(ctx context.Context, adID, kind, oldURL, newURL string) (bool, error)
}

type creativeRepository struct {
	db *sql.DB
	// mediaBaseURL prefixes every media URL that already lives in our storage.
	mediaBaseURL string
}

func NewCreativeRepository(db *sql.DB, mediaBaseURL string) CreativeRepository {
	return &creativeRepository{db: db, mediaBaseURL: mediaBaseURL}
}

const creativeColumns = `c.ad_id, c.account_id, c.name, c.status, c.campaign_name, c.adset_name,
	c.thumbnail_url, c.video_id, c.video_url, c.unique_code, c.ad_type, c.person, c.style,
	c.product, c.hook, c.theme, c.tag_source, c.notes, c.ai_analysis, c.analysis_status,
	c.created_at, c.updated_at`

const storedCounterColumns = `c.spend, c.impressions, c.reach, c.clicks, c.purchases,
	c.purchase_value, c.adds_to_cart, c.video_3s_views, c.video_thruplays`

func scanCreative(row interface{ Scan(...any) error }) (*models.Creative, error) {
	var c models.Creative
	err := row.Scan(&c.AdID, &c.AccountID, &c.Name, &c.Status, &c.CampaignName, &c.AdsetName,
		&c.ThumbnailURL, &c.VideoID, &c.VideoURL, &c.UniqueCode, &c.AdType, &c.Person, &c.Style,
		&c.Product, &c.Hook, &c.Theme, &c.TagSource, &c.Notes, &c.AIAnalysis, &c.AnalysisStatus,
		&c.CreatedAt, &c.UpdatedAt,
		&c.Counters.Spend, &c.Counters.Impressions, &c.Counters.Reach, &c.Counters.Clicks,
		&c.Counters.Purchases, &c.Counters.PurchaseValue, &c.Counters.AddsToCart,
		&c.Counters.Video3sViews, &c.Counters.VideoThruplays)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *creativeRepository) GetByID(ctx context.Context, adID string) (*models.Creative, error) {
	query := `SELECT ` + creativeColumns + `, ` + storedCounterColumns + ` FROM creatives c WHERE c.ad_id = $1`

	c, err := scanCreative(r.db.QueryRowContext(ctx, query, adID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return c, nil
}

func (r *creativeRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Creative, error) {
	query := `SELECT ` + creativeColumns + `, ` + storedCounterColumns + ` FROM creatives c WHERE c.account_id = $1 ORDER BY c.ad_id`
	return r.query(ctx, query, accountID)
}

func (r *creativeRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Creative, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var creatives []*models.Creative
	for rows.Next() {
		c, err := scanCreative(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		creatives = append(creatives, c)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return creatives, nil
}

// List returns one page of creatives. When a date range is given the counters
// are summed from daily_metrics for that range instead of the stored window.
func (r *creativeRepository) List(ctx context.Context, f models.CreativeFilter) ([]*models.Creative, int, error) {
	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.AccountID != "" {
		where = append(where, "c.account_id = "+arg(f.AccountID))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, fmt.Sprintf("(c.name ILIKE %s OR c.unique_code ILIKE %s)", p, p))
	}
	if f.TagSource != "" {
		where = append(where, "c.tag_source = "+arg(string(f.TagSource)))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM creatives c` + whereSQL
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		slog.Info(err.Error())
		return nil, 0, err
	}

	from := storedCounterColumns + ` FROM creatives c`
	if f.DateFrom != nil || f.DateTo != nil {
		dateFrom := time.Time{}
		if f.DateFrom != nil {
			dateFrom = *f.DateFrom
		}
		dateTo := time.Now().UTC()
		if f.DateTo != nil {
			dateTo = *f.DateTo
		}
		from = `m.spend, m.impressions, m.reach, m.clicks, m.purchases, m.purchase_value,
			m.adds_to_cart, m.video_3s_views, m.video_thruplays
			FROM creatives c
			LEFT JOIN LATERAL (
				SELECT COALESCE(SUM(d.spend), 0) AS spend,
					COALESCE(SUM(d.impressions), 0) AS impressions,
					COALESCE(SUM(d.reach), 0) AS reach,
					COALESCE(SUM(d.clicks), 0) AS clicks,
					COALESCE(SUM(d.purchases), 0) AS purchases,
					COALESCE(SUM(d.purchase_value), 0) AS purchase_value,
					COALESCE(SUM(d.adds_to_cart), 0) AS adds_to_cart,
					COALESCE(SUM(d.video_3s_views), 0) AS video_3s_views,
					COALESCE(SUM(d.video_thruplays), 0) AS video_thruplays
				FROM daily_metrics d
				WHERE d.account_id = c.account_id AND d.ad_id = c.ad_id
					AND d.date BETWEEN ` + arg(dateFrom) + ` AND ` + arg(dateTo) + `
			) m ON TRUE`
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + creativeColumns + `, ` + from + whereSQL +
		` ORDER BY 23 DESC, c.ad_id LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	creatives, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return creatives, total, nil
}

// UpsertMany writes creative metadata and auto-derived tags. A row whose
// tag_source is manual keeps its tags, and media already mirrored into our
// storage is not replaced by the platform URL. Counters are owned by
// RefreshCounters.
func (r *creativeRepository) UpsertMany(ctx context.Context, creatives []*models.Creative) error {
	if len(creatives) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO creatives (
			ad_id, account_id, name, status, campaign_name, adset_name,
			thumbnail_url, video_id, video_url,
			unique_code, ad_type, person, style, product, hook, theme, tag_source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (ad_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			campaign_name = EXCLUDED.campaign_name,
			adset_name = EXCLUDED.adset_name,
			thumbnail_url = CASE
				WHEN $18 <> '' AND starts_with(creatives.thumbnail_url, $18) THEN creatives.thumbnail_url
				WHEN EXCLUDED.thumbnail_url = '' THEN creatives.thumbnail_url
				ELSE EXCLUDED.thumbnail_url END,
			video_id = CASE WHEN EXCLUDED.video_id = '' THEN creatives.video_id ELSE EXCLUDED.video_id END,
			video_url = CASE
				WHEN EXCLUDED.video_id = '' OR EXCLUDED.video_id = creatives.video_id THEN creatives.video_url
				ELSE EXCLUDED.video_url END,
			unique_code = CASE WHEN creatives.tag_source = 'manual' THEN creatives.unique_code ELSE EXCLUDED.unique_code END,
			ad_type = CASE WHEN creatives.tag_source = 'manual' THEN creatives.ad_type ELSE EXCLUDED.ad_type END,
			person = CASE WHEN creatives.tag_source = 'manual' THEN creatives.person ELSE EXCLUDED.person END,
			style = CASE WHEN creatives.tag_source = 'manual' THEN creatives.style ELSE EXCLUDED.style END,
			product = CASE WHEN creatives.tag_source = 'manual' THEN creatives.product ELSE EXCLUDED.product END,
			hook = CASE WHEN creatives.tag_source = 'manual' THEN creatives.hook ELSE EXCLUDED.hook END,
			theme = CASE WHEN creatives.tag_source = 'manual' THEN creatives.theme ELSE EXCLUDED.theme END,
			tag_source = CASE WHEN creatives.tag_source = 'manual' THEN creatives.tag_source ELSE EXCLUDED.tag_source END,
			updated_at = now()
	`)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer stmt.Close()

	for _, c := range creatives {
		_, err := stmt.ExecContext(ctx,
			c.AdID, c.AccountID, c.Name, c.Status, c.CampaignName, c.AdsetName,
			c.ThumbnailURL, c.VideoID, c.VideoURL,
			c.UniqueCode, c.AdType, c.Person, c.Style, c.Product, c.Hook, c.Theme, string(c.TagSource),
			r.mediaBaseURL,
		)
		if err != nil {
			slog.Info(err.Error())
			return fmt.Errorf("upsert creative %s: %w", c.AdID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// UpdateTags writes an auto-tag result only if the row still has the
// tag_source the decision was based on and is not manual.
func (r *creativeRepository) UpdateTags(ctx context.Context, u models.TagUpdate) (bool, error) {
	query := `
		UPDATE creatives
		SET unique_code = $2, ad_type = $3, person = $4, style = $5,
			product = $6, hook = $7, theme = $8, tag_source = $9, updated_at = now()
		WHERE ad_id = $1 AND tag_source = $10 AND tag_source <> 'manual'
	`
	res, err := r.db.ExecContext(ctx, query, u.AdID,
		u.Tags.UniqueCode, u.Tags.AdType, u.Tags.Person, u.Tags.Style,
		u.Tags.Product, u.Tags.Hook, u.Tags.Theme, string(u.Source), string(u.PrevSource))
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

func (r *creativeRepository) Update(ctx context.Context, adID string, u models.CreativeUpdate) (*models.Creative, error) {
	var sets []string
	args := []interface{}{adID}
	set := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	set("ad_type", u.AdType)
	set("person", u.Person)
	set("style", u.Style)
	set("product", u.Product)
	set("hook", u.Hook)
	set("theme", u.Theme)
	set("notes", u.Notes)
	if u.TagSource != nil {
		args = append(args, string(*u.TagSource))
		sets = append(sets, fmt.Sprintf("tag_source = $%d", len(args)))
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, adID)
	}
	sets = append(sets, "updated_at = now()")

	query := `UPDATE creatives SET ` + strings.Join(sets, ", ") + ` WHERE ad_id = $1`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, adID)
}

func (r *creativeRepository) BulkUntag(ctx context.Context, adIDs []string) (int64, error) {
	query := `
		UPDATE creatives
		SET ad_type = '', person = '', style = '', product = '', hook = '', theme = '',
			tag_source = 'untagged', updated_at = now()
		WHERE ad_id = ANY($1)
	`
	res, err := r.db.ExecContext(ctx, query, pq.Array(adIDs))
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func (r *creativeRepository) Rollup(ctx context.Context, accountID string) (models.AccountRollup, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE tag_source = 'untagged')
		FROM creatives WHERE account_id = $1
	`
	var rollup models.AccountRollup
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&rollup.CreativeCount, &rollup.UntaggedCount); err != nil {
		slog.Info(err.Error())
		return rollup, err
	}
	return rollup, nil
}

// RefreshCounters recomputes every creative's counters of the account from its
// daily rows inside [from, to]. Creatives without rows in the window drop to zero.
func (r *creativeRepository) RefreshCounters(ctx context.Context, accountID string, from, to time.Time) error {
	query := `
		UPDATE creatives c
		SET spend = COALESCE(m.spend, 0),
			impressions = COALESCE(m.impressions, 0),
			reach = COALESCE(m.reach, 0),
			clicks = COALESCE(m.clicks, 0),
			purchases = COALESCE(m.purchases, 0),
			purchase_value = COALESCE(m.purchase_value, 0),
			adds_to_cart = COALESCE(m.adds_to_cart, 0),
			video_3s_views = COALESCE(m.video_3s_views, 0),
			video_thruplays = COALESCE(m.video_thruplays, 0),
			updated_at = now()
		FROM creatives c2
		LEFT JOIN (
			SELECT ad_id,
				SUM(spend) AS spend, SUM(impressions) AS impressions, SUM(reach) AS reach,
				SUM(clicks) AS clicks, SUM(purchases) AS purchases, SUM(purchase_value) AS purchase_value,
				SUM(adds_to_cart) AS adds_to_cart, SUM(video_3s_views) AS video_3s_views,
				SUM(video_thruplays) AS video_thruplays
			FROM daily_metrics
			WHERE account_id = $1 AND ad_id <> '' AND date BETWEEN $2 AND $3
			GROUP BY ad_id
		) m ON m.ad_id = c2.ad_id
		WHERE c.ad_id = c2.ad_id AND c2.account_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, from, to); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *creativeRepository) ListUncachedMedia(ctx context.Context, kind string, limit int) ([]*models.MediaItem, error) {
	var query string
	switch kind {
	case models.MediaKindThumbnail:
		query = `
			SELECT ad_id, account_id, thumbnail_url, video_id FROM creatives
			WHERE thumbnail_url <> '' AND NOT starts_with(thumbnail_url, $1)
			ORDER BY updated_at DESC LIMIT $2
		`
	case models.MediaKindVideo:
		query = `
			SELECT ad_id, account_id, video_url, video_id FROM creatives
			WHERE video_id <> '' AND NOT starts_with(video_url, $1)
			ORDER BY updated_at DESC LIMIT $2
		`
	default:
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}

	rows, err := r.db.QueryContext(ctx, query, r.mediaBaseURL, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var items []*models.MediaItem
	for rows.Next() {
		var it models.MediaItem
		if err := rows.Scan(&it.AdID, &it.AccountID, &it.SourceURL, &it.VideoID); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// SetMediaURL swaps the media column only if it still holds oldURL.
func (r *creativeRepository) SetMediaURL(ctx context.Context, adID, kind, oldURL, newURL string) (bool, error) {
	column := "thumbnail_url"
	if kind == models.MediaKindVideo {
		column = "video_url"
	}
	query := `UPDATE creatives SET ` + column + ` = $3, updated_at = now() WHERE ad_id = $1 AND ` + column + ` = $2`

	res, err := r.db.ExecContext(ctx, query, adID, oldURL, newURL)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
