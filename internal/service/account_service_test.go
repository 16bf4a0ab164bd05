package service

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/pkg/admetrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newAccountFixture(t *testing.T) (*syncFixture, *accountService) {
	t.Helper()
	f := newSyncFixture(t)
	svc := NewAccountService(f.store.Accounts(), f.store.Creatives(), f.store.DailyMetrics()).(*accountService)
	svc.now = func() time.Time { return testNow }
	return f, svc
}

// seedPerformance stores three creatives: one winning on ROAS, one losing and
// one below the spend threshold.
func seedPerformance(t *testing.T, f *syncFixture) {
	t.Helper()
	ctx := context.Background()
	seedCreatives(t, f, "111", map[string]string{"1": "one", "2": "two", "3": "three"})

	rows := []*models.DailyMetric{
		{AccountID: "111", AdID: "1", Date: day("2026-03-09"), Counters: admetrics.Counters{Spend: 20, PurchaseValue: 60, Impressions: 1000}},
		{AccountID: "111", AdID: "2", Date: day("2026-03-09"), Counters: admetrics.Counters{Spend: 20, PurchaseValue: 10, Impressions: 1000}},
		{AccountID: "111", AdID: "3", Date: day("2026-03-09"), Counters: admetrics.Counters{Spend: 5, PurchaseValue: 50, Impressions: 200}},
		{AccountID: "111", AdID: models.AccountLevelAdID, Date: day("2026-03-08"), Counters: admetrics.Counters{Spend: 10, PurchaseValue: 20, Impressions: 500, Clicks: 5}},
		{AccountID: "111", AdID: models.AccountLevelAdID, Date: day("2026-03-09"), Counters: admetrics.Counters{Spend: 45, PurchaseValue: 120, Impressions: 2200, Clicks: 15}},
		{AccountID: "111", AdID: models.AccountLevelAdID, Date: day("2026-01-01"), Counters: admetrics.Counters{Spend: 999}},
	}
	require.NoError(t, f.store.DailyMetrics().UpsertMany(ctx, rows))
}

func thresholdSettings(scale, kill, spend float64) AccountSettings {
	kpi := admetrics.KPIROAS
	dir := admetrics.DirectionGTE
	return AccountSettings{
		WinnerKPI:      &kpi,
		KPIDirection:   &dir,
		ScaleThreshold: &scale,
		KillThreshold:  &kill,
		SpendThreshold: &spend,
	}
}

func TestAccountCreate(t *testing.T) {
	_, svc := newAccountFixture(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, " act_999 ", "")
	require.NoError(t, err)
	assert.Equal(t, "999", a.ID)
	assert.Equal(t, "999", a.Name)
	assert.True(t, a.IsActive)
	assert.Equal(t, models.DefaultDateRangeDays, a.DateRangeDays)

	for _, id := range []string{"", "act_", models.AccountKeyAll} {
		_, err := svc.Create(ctx, id, "x")
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, "id %q", id)
	}
}

func TestAccountUpdateSettings(t *testing.T) {
	f, svc := newAccountFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")

	a, err := svc.UpdateSettings(ctx, "111", thresholdSettings(2, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.ScaleThreshold)
	assert.Equal(t, 10.0, a.SpendThreshold)

	t.Run("scale_below_kill", func(t *testing.T) {
		_, err := svc.UpdateSettings(ctx, "111", thresholdSettings(1, 2, 10))
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "thresholds", ve.Field)
	})

	t.Run("non_positive_range", func(t *testing.T) {
		days := 0
		_, err := svc.UpdateSettings(ctx, "111", AccountSettings{DateRangeDays: &days})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "date_range_days", ve.Field)
	})

	t.Run("report_schedule", func(t *testing.T) {
		bad := "every morning"
		_, err := svc.UpdateSettings(ctx, "111", AccountSettings{ReportSchedule: &bad})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "report_schedule", ve.Field)

		good := " 0 9 * * 1-5 "
		a, err := svc.UpdateSettings(ctx, "111", AccountSettings{ReportSchedule: &good})
		require.NoError(t, err)
		assert.Equal(t, "0 9 * * 1-5", a.ReportSchedule)
	})

	t.Run("unknown_account", func(t *testing.T) {
		_, err := svc.UpdateSettings(ctx, "404", thresholdSettings(2, 1, 10))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	stored, err := svc.Get(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, 2.0, stored.ScaleThreshold, "rejected updates leave settings untouched")
}

func TestAccountSummary(t *testing.T) {
	f, svc := newAccountFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	seedPerformance(t, f)
	_, err := svc.UpdateSettings(ctx, "111", thresholdSettings(2, 1, 10))
	require.NoError(t, err)

	s, err := svc.Summary(ctx, "111", nil)
	require.NoError(t, err)
	assert.Equal(t, day("2026-02-09"), s.DateFrom)
	assert.Equal(t, day("2026-03-10"), s.DateTo)
	assert.Equal(t, 3, s.Creatives)
	assert.InDelta(t, 55.0, s.Totals.Spend, 1e-9)
	assert.Equal(t, int64(2700), s.Totals.Impressions)
	assert.InDelta(t, 140.0/55.0, s.Metrics.ROAS, 1e-9)
	assert.Equal(t, map[admetrics.Verdict]int{
		admetrics.VerdictScale:             1,
		admetrics.VerdictKill:              1,
		admetrics.VerdictInsufficientSpend: 1,
	}, s.Verdicts)
}

func TestAccountSummary_FallsBackToCreativeRows(t *testing.T) {
	f, svc := newAccountFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	seedCreatives(t, f, "111", map[string]string{"1": "one"})
	require.NoError(t, f.store.DailyMetrics().UpsertMany(ctx, []*models.DailyMetric{
		{AccountID: "111", AdID: "1", Date: day("2026-03-09"), Counters: admetrics.Counters{Spend: 7, Impressions: 100}},
	}))

	s, err := svc.Summary(ctx, "111", &DateRange{From: day("2026-03-01"), To: day("2026-03-10")})
	require.NoError(t, err)
	assert.InDelta(t, 7.0, s.Totals.Spend, 1e-9)
	assert.Equal(t, int64(100), s.Totals.Impressions)
}

func TestAccountSummary_RejectsInvertedRange(t *testing.T) {
	f, svc := newAccountFixture(t)
	f.addAccount(t, "111")

	_, err := svc.Summary(context.Background(), "111", &DateRange{From: day("2026-03-10"), To: day("2026-03-01")})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestAccountTrends(t *testing.T) {
	f, svc := newAccountFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	seedPerformance(t, f)

	points, err := svc.Trends(ctx, "111", &DateRange{From: day("2026-03-01"), To: day("2026-03-10")})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, day("2026-03-08"), points[0].Date)
	assert.InDelta(t, 2.0, points[0].Metrics.ROAS, 1e-9)
	assert.InDelta(t, 1.0, points[0].Metrics.CTR, 1e-9)
	assert.Equal(t, day("2026-03-09"), points[1].Date)

	_, err = svc.Trends(ctx, "404", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
