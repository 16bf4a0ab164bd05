package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/adpulse/internal/metrics"
	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/transfer"
	"github.com/maheshrc27/adpulse/pkg/tagparser"
)

// syncRun is the state of one executing sync.
type syncRun struct {
	s         *syncService
	log       *models.SyncLog
	accounts  []*models.Account
	startedAt time.Time

	mu       sync.Mutex
	progress models.SyncProgress
	state    models.SyncState
	errs     models.APIErrors
}

// accountData is what phases 1 and 2 collect for one account.
type accountData struct {
	ads          map[string]transfer.RawAd
	adOrder      []string
	adRows       []transfer.RawInsightRow
	accountRows  []transfer.RawInsightRow
	window       DateWindow
	updatedSince *time.Time
	creatives    []*models.Creative
}

func (r *syncRun) execute(ctx context.Context) error {
	r.startedAt = r.s.now()
	if r.log.StartedAt != nil {
		r.startedAt = *r.log.StartedAt
	}

	accounts, err := r.resolveAccounts(ctx)
	if err != nil {
		return err
	}
	r.accounts = accounts

	if err := r.checkToken(ctx); err != nil {
		return err
	}

	for _, a := range accounts {
		if err := r.syncAccount(ctx, a); err != nil {
			return fmt.Errorf("account %s: %w", a.ID, err)
		}
	}

	r.setPhase(models.PhaseFinalize, "")
	return r.beat(ctx)
}

func (r *syncRun) resolveAccounts(ctx context.Context) ([]*models.Account, error) {
	if r.log.AccountKey == models.AccountKeyAll {
		accounts, err := r.s.ar.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		if len(accounts) == 0 {
			return nil, &ValidationError{Field: "account_id", Message: "no active accounts to sync"}
		}
		return accounts, nil
	}

	a, err := r.s.ar.GetByID(ctx, r.log.AccountKey)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &PermanentError{Message: fmt.Sprintf("account %s no longer exists", r.log.AccountKey)}
	}
	return []*models.Account{a}, nil
}

// checkToken fails the run on a dead token and records an expiry that is
// close. Other debug_token failures do not block the sync.
func (r *syncRun) checkToken(ctx context.Context) error {
	var info *TokenInfo
	err := r.retry(ctx, "token_info", func() error {
		var err error
		info, err = r.s.client.TokenInfo(ctx)
		return err
	})

	var ae *AuthError
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, ErrRunStopped), errors.Is(err, context.Canceled):
		return err
	case err != nil:
		slog.Warn("token check failed, continuing", "sync_id", r.log.ID, "error", err)
		return nil
	}

	now := r.s.now()
	if info.ExpiresAt != nil && !info.ExpiresAt.After(now) {
		return &AuthError{Message: "access token expired", ExpiresAt: info.ExpiresAt}
	}
	if !info.Valid {
		return &AuthError{Message: "access token is not valid", ExpiresAt: info.ExpiresAt}
	}
	if info.ExpiresAt != nil && info.ExpiresAt.Sub(now) <= r.s.cfg.TokenWarnWithin {
		slog.Warn("access token expires soon", "sync_id", r.log.ID, "expires_at", info.ExpiresAt)
		r.mu.Lock()
		r.state.TokenExpiresAt = info.ExpiresAt
		r.mu.Unlock()
	}
	return nil
}

func (r *syncRun) syncAccount(ctx context.Context, a *models.Account) error {
	data := &accountData{ads: make(map[string]transfer.RawAd)}
	now := r.s.now()
	full := WindowEndingAt(now, a.RangeDays())
	data.window = full

	if r.log.SyncType == models.SyncTypeIncremental {
		since := r.log.Since
		if since == nil {
			since = a.LastSyncedAt
		}
		if since != nil {
			data.updatedSince = since
			if day := truncateDay(*since); day.After(full.Since) && !day.After(full.Until) {
				data.window.Since = day
			}
		}
	}

	phases := []struct {
		phase int
		run   func(context.Context, *models.Account, *accountData) error
	}{
		{models.PhaseFetchAds, r.fetchAds},
		{models.PhaseFetchInsights, r.fetchInsights},
		{models.PhaseMergeTags, r.mergeTags},
		{models.PhaseUpsertCreatives, r.upsertCreatives},
		{models.PhaseDailyMetrics, r.upsertDailyMetrics},
	}
	for _, p := range phases {
		r.setPhase(p.phase, a.ID)
		if err := r.beat(ctx); err != nil {
			return err
		}
		started := time.Now()
		if err := p.run(ctx, a, data); err != nil {
			return fmt.Errorf("%s: %w", models.PhaseName(p.phase), err)
		}
		metrics.SyncPhaseDuration.WithLabelValues(models.PhaseName(p.phase)).Observe(time.Since(started).Seconds())
	}
	return nil
}

func (r *syncRun) fetchAds(ctx context.Context, a *models.Account, data *accountData) error {
	pager := r.s.client.ListAds(a.ID, data.updatedSince)
	return drain(ctx, r, "list_ads", pager, func(ads []transfer.RawAd) {
		for _, ad := range ads {
			if _, seen := data.ads[ad.ID]; !seen {
				data.adOrder = append(data.adOrder, ad.ID)
			}
			data.ads[ad.ID] = ad
		}
		r.mu.Lock()
		r.progress.CreativesFetched += len(ads)
		r.mu.Unlock()
	})
}

func (r *syncRun) fetchInsights(ctx context.Context, a *models.Account, data *accountData) error {
	adPager := r.s.client.ListInsights(a.ID, data.window, InsightLevelAd)
	err := drain(ctx, r, "ad_insights", adPager, func(rows []transfer.RawInsightRow) {
		data.adRows = append(data.adRows, rows...)
	})
	if err != nil {
		return err
	}

	accountPager := r.s.client.ListInsights(a.ID, data.window, InsightLevelAccount)
	return drain(ctx, r, "account_insights", accountPager, func(rows []transfer.RawInsightRow) {
		data.accountRows = append(data.accountRows, rows...)
	})
}

// drain walks every page, checking that the run is still live before each
// request and retrying a failed page in place.
func drain[T any](ctx context.Context, r *syncRun, op string, pager *Pager[T], sink func([]T)) error {
	for !pager.Done() {
		if err := r.beat(ctx); err != nil {
			return err
		}
		var items []T
		err := r.retry(ctx, op, func() error {
			var err error
			items, err = pager.Next(ctx)
			return err
		})
		if err != nil {
			slog.Warn("listing stopped", "sync_id", r.log.ID, "op", op,
				"page", pager.Pages()+1, "after", PageToken(pager.Cursor()), "error", err)
			return err
		}
		sink(items)
	}
	return nil
}

func (r *syncRun) mergeTags(ctx context.Context, a *models.Account, data *accountData) error {
	existing, err := r.s.cr.ListByAccount(ctx, a.ID)
	if err != nil {
		return err
	}
	byID := make(map[string]*models.Creative, len(existing))
	for _, c := range existing {
		byID[c.AdID] = c
	}

	table, err := r.s.ts.MappingTable(ctx, a.ID)
	if err != nil {
		return err
	}

	var incoming []*models.Creative
	for _, id := range data.adOrder {
		incoming = append(incoming, creativeFromAd(a.ID, data.ads[id]))
	}

	// Ads that only show up in insights still get a creative row.
	seen := make(map[string]bool, len(data.ads))
	for _, row := range data.adRows {
		if row.AdID == "" || seen[row.AdID] {
			continue
		}
		seen[row.AdID] = true
		if _, listed := data.ads[row.AdID]; listed {
			continue
		}
		if _, known := byID[row.AdID]; known {
			continue
		}
		incoming = append(incoming, &models.Creative{
			AdID:         row.AdID,
			AccountID:    a.ID,
			Name:         row.AdName,
			CampaignName: row.CampaignName,
			AdsetName:    row.AdsetName,
		})
	}

	changed := 0
	for _, c := range incoming {
		cur := tagparser.Current{Source: tagparser.SourceUntagged}
		if prev, ok := byID[c.AdID]; ok {
			cur = tagparser.Current{Tags: prev.Tags(), Source: prev.TagSource}
		}
		d := tagparser.Resolve(cur, c.Name, "", table)
		c.SetTags(d.Tags, d.Source)
		if d.Changed {
			changed++
			metrics.TagWrites.WithLabelValues(string(d.Source)).Inc()
		}
	}
	data.creatives = incoming

	r.mu.Lock()
	r.progress.TagsUpdated += changed
	r.mu.Unlock()
	return r.beat(ctx)
}

func creativeFromAd(accountID string, ad transfer.RawAd) *models.Creative {
	thumb := ad.Creative.ThumbnailURL
	if thumb == "" {
		thumb = ad.Creative.ImageURL
	}
	if thumb == "" {
		thumb = ad.Creative.ObjectStory.VideoData.ImageURL
	}
	videoID := ad.Creative.VideoID
	if videoID == "" {
		videoID = ad.Creative.ObjectStory.VideoData.VideoID
	}
	return &models.Creative{
		AdID:         ad.ID,
		AccountID:    accountID,
		Name:         ad.Name,
		Status:       ad.EffectiveStatus,
		CampaignName: ad.Campaign.Name,
		AdsetName:    ad.Adset.Name,
		ThumbnailURL: thumb,
		VideoID:      videoID,
	}
}

// upsertCreatives writes the merged creatives in batches, a bounded number
// at a time, then refreshes the account rollups.
func (r *syncRun) upsertCreatives(ctx context.Context, a *models.Account, data *accountData) error {
	batches := chunk(data.creatives, r.s.cfg.UpsertBatchSize)

	concurrency := r.s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)
	var errMu sync.Mutex
	var firstErr error
	failed := func() bool {
		errMu.Lock()
		defer errMu.Unlock()
		return firstErr != nil
	}

	for _, batch := range batches {
		if failed() {
			break
		}
		if err := r.beat(ctx); err != nil {
			wg.Wait()
			return err
		}

		wg.Add(1)
		semaphore <- struct{}{}
		go func(batch []*models.Creative) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := r.s.cr.UpsertMany(ctx, batch); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			r.mu.Lock()
			r.progress.CreativesUpserted += len(batch)
			r.mu.Unlock()
		}(batch)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := refreshRollup(ctx, r.s.ar, r.s.cr, a.ID); err != nil {
		return err
	}
	return r.beat(ctx)
}

func (r *syncRun) upsertDailyMetrics(ctx context.Context, a *models.Account, data *accountData) error {
	byKey := make(map[string]*models.DailyMetric)
	var keys []string
	add := func(adID string, row transfer.RawInsightRow) {
		date, err := time.Parse(time.DateOnly, row.DateStart)
		if err != nil {
			slog.Warn("skipping insight row with bad date", "account_id", a.ID, "ad_id", adID, "date", row.DateStart)
			return
		}
		key := adID + "|" + row.DateStart
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = &models.DailyMetric{AccountID: a.ID, AdID: adID, Date: date, Counters: InsightCounters(row)}
	}
	for _, row := range data.adRows {
		if row.AdID != "" {
			add(row.AdID, row)
		}
	}
	for _, row := range data.accountRows {
		add(models.AccountLevelAdID, row)
	}

	rows := make([]*models.DailyMetric, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, byKey[k])
	}

	for _, batch := range chunk(rows, r.s.cfg.UpsertBatchSize) {
		if err := r.beat(ctx); err != nil {
			return err
		}
		if err := r.s.dr.UpsertMany(ctx, batch); err != nil {
			return err
		}
	}

	full := WindowEndingAt(r.s.now(), a.RangeDays())
	if err := r.s.cr.RefreshCounters(ctx, a.ID, full.Since, full.Until); err != nil {
		return err
	}
	return r.beat(ctx)
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 100
	}
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

// retry runs fn until it succeeds, fails with a non-retryable error or runs
// out of attempts. Retried failures reach api_errors only if the run fails.
func (r *syncRun) retry(ctx context.Context, op string, fn func() error) error {
	attempts := r.s.maxAttempts()
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !Retryable(err) || attempt >= attempts {
			return err
		}

		delay := r.s.backoff(attempt, err)
		metrics.SyncRetries.WithLabelValues(errorCode(err)).Inc()
		slog.Warn("ads api call failed, retrying", "sync_id", r.log.ID, "op", op,
			"attempt", attempt, "delay", delay, "error", err)
		r.recordError(err)
		r.mu.Lock()
		r.state.Retries++
		r.mu.Unlock()

		if err := r.s.sleep(ctx, delay); err != nil {
			return err
		}
		if err := r.beat(ctx); err != nil {
			return err
		}
	}
}

func (r *syncRun) recordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	source := models.ErrorSourceAPI
	var ve *ValidationError
	if errors.As(err, &ve) || !isAPIError(err) {
		source = models.ErrorSourceSystem
	}
	r.errs = append(r.errs, models.APIError{
		Source:  source,
		Code:    errorCode(err),
		Message: err.Error(),
		At:      r.s.now(),
	})
}

func isAPIError(err error) bool {
	var (
		ae *AuthError
		rl *RateLimitError
		tn *TransientNetworkError
		pe *PermanentError
	)
	return errors.As(err, &ae) || errors.As(err, &rl) || errors.As(err, &tn) || errors.As(err, &pe)
}

func (r *syncRun) setPhase(phase int, accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Phase = phase
	if accountID != "" {
		r.state.AccountID = accountID
	}
	r.state.Message = models.PhaseName(phase)
}

// beat writes progress and the heartbeat. It returns ErrRunStopped once the
// row is no longer running.
func (r *syncRun) beat(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	now := r.s.now()
	r.state.LastActivity = &now
	p := r.progress
	p.State = r.state
	r.mu.Unlock()

	ok, err := r.s.sr.Heartbeat(ctx, r.log.ID, p)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRunStopped
	}
	return nil
}

func (r *syncRun) finish(ctx context.Context, status string) bool {
	var errs models.APIErrors
	if status == models.SyncStatusFailed {
		r.mu.Lock()
		errs = append(errs, r.errs...)
		r.mu.Unlock()
	}
	if status == models.SyncStatusFailed && len(errs) == 0 {
		errs = models.APIErrors{{Source: models.ErrorSourceSystem, Code: "internal", Message: "sync failed", At: r.s.now()}}
	}
	return r.s.finish(ctx, r.log, status, errs)
}
