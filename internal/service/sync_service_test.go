package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/transfer"
	"github.com/maheshrc27/adpulse/pkg/tagparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gsName = "GS145474_Video_Creator_UGCNative_Greens_StatementBold_ChronicFatigue"

func TestStart_Validation(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, StartSyncRequest{})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	f.addAccount(t, "111")
	_, err = f.svc.Start(ctx, StartSyncRequest{AccountKey: "111", SyncType: "weekly"})
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.Start(ctx, StartSyncRequest{AccountKey: "404"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStart_SecondSyncQueuesBehindRunning(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")

	first, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusRunning, first.Status)
	assert.NotEmpty(t, first.SyncState.RunID)

	second, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusQueued, second.Status)

	third, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusQueued, third.Status)
	assert.Equal(t, []int64{first.ID}, f.d.dispatched())

	require.NoError(t, f.svc.Execute(ctx, first.ID))

	assert.Equal(t, models.SyncStatusCompleted, f.syncLog(t, first.ID).Status)
	assert.Equal(t, models.SyncStatusRunning, f.syncLog(t, second.ID).Status)
	assert.Equal(t, models.SyncStatusQueued, f.syncLog(t, third.ID).Status)
	assert.Equal(t, []int64{first.ID, second.ID}, f.d.dispatched())
}

func TestStart_AllIsExclusiveWithEveryAccount(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	f.addAccount(t, "222")

	one, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusRunning, one.Status)

	all, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: models.AccountKeyAll})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusQueued, all.Status)

	// 222 does not conflict with 111, but an older "all" is waiting.
	two, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "222"})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusQueued, two.Status)

	require.NoError(t, f.svc.Execute(ctx, one.ID))

	assert.Equal(t, models.SyncStatusRunning, f.syncLog(t, all.ID).Status)
	assert.Equal(t, models.SyncStatusQueued, f.syncLog(t, two.ID).Status)

	require.NoError(t, f.svc.Execute(ctx, all.ID))
	assert.Equal(t, models.SyncStatusCompleted, f.syncLog(t, all.ID).Status)
	assert.Equal(t, models.SyncStatusRunning, f.syncLog(t, two.ID).Status)
}

func TestStart_DispatchFailureFailsTheRow(t *testing.T) {
	f := newSyncFixture(t)
	f.addAccount(t, "111")
	f.d.err = errors.New("redis unavailable")

	l, err := f.svc.Start(context.Background(), StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusFailed, l.Status)
	require.Len(t, l.APIErrors, 1)
	assert.Equal(t, models.ErrorSourceSystem, l.APIErrors[0].Source)
	assert.Equal(t, "dispatch", l.APIErrors[0].Code)
}

func TestExecute_EndToEnd(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")

	f.client.ads["111"] = []transfer.RawAd{rawAd("1", gsName)}
	f.client.adRows["111"] = []transfer.RawInsightRow{
		insightRow("1", gsName, "2026-03-08", "10.50", "1000", "20"),
		insightRow("1", gsName, "2026-03-09", "4.50", "500", "5"),
		insightRow("2", "Summer promo", "2026-03-09", "3.00", "300", "3"),
	}
	f.client.accountRows["111"] = []transfer.RawInsightRow{
		insightRow("", "", "2026-03-08", "10.50", "1000", "20"),
		insightRow("", "", "2026-03-09", "7.50", "800", "8"),
	}

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, l.ID))

	done := f.syncLog(t, l.ID)
	assert.Equal(t, models.SyncStatusCompleted, done.Status)
	assert.Equal(t, models.PhaseFinalize, done.CurrentPhase)
	assert.Equal(t, 1, done.CreativesFetched)
	assert.Equal(t, 2, done.CreativesUpserted)
	assert.Equal(t, 2, done.TagsUpdated)
	assert.Empty(t, done.APIErrors)
	assert.NotNil(t, done.CompletedAt)

	c, err := f.store.Creatives().GetByID(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, tagparser.SourceParsed, c.TagSource)
	assert.Equal(t, tagparser.Tags{
		UniqueCode: "GS145474",
		AdType:     "Video",
		Person:     "Creator",
		Style:      "UGCNative",
		Product:    "Greens",
		Hook:       "StatementBold",
		Theme:      "ChronicFatigue",
	}, c.Tags())
	assert.InDelta(t, 15.0, c.Counters.Spend, 1e-9)
	assert.Equal(t, int64(1500), c.Counters.Impressions)
	assert.Equal(t, "https://scontent.example/1.jpg", c.ThumbnailURL)

	insightOnly, err := f.store.Creatives().GetByID(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, insightOnly)
	assert.Equal(t, "Summer promo", insightOnly.Name)
	assert.Equal(t, tagparser.SourceUntagged, insightOnly.TagSource)

	a, err := f.store.Accounts().GetByID(ctx, "111")
	require.NoError(t, err)
	require.NotNil(t, a.LastSyncedAt)
	assert.True(t, a.LastSyncedAt.Equal(testNow))
	assert.Equal(t, 2, a.CreativeCount)
	assert.Equal(t, 1, a.UntaggedCount)

	w := WindowEndingAt(testNow, a.RangeDays())
	rows, err := f.store.DailyMetrics().ListAccountLevel(ctx, "111", w.Since, w.Until)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExecute_ManualTagsSurviveSync(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")

	require.NoError(t, f.store.Creatives().UpsertMany(ctx, []*models.Creative{{AdID: "1", AccountID: "111", Name: "old"}}))
	image, manual := "Image", tagparser.SourceManual
	_, err := f.store.Creatives().Update(ctx, "1", models.CreativeUpdate{AdType: &image, TagSource: &manual})
	require.NoError(t, err)

	f.client.ads["111"] = []transfer.RawAd{rawAd("1", gsName)}

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, l.ID))

	c, err := f.store.Creatives().GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, gsName, c.Name)
	assert.Equal(t, tagparser.SourceManual, c.TagSource)
	assert.Equal(t, "Image", c.AdType)
	assert.Equal(t, 0, f.syncLog(t, l.ID).TagsUpdated)
}

func TestExecute_RetriesTransientErrors(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	f.client.ads["111"] = []transfer.RawAd{rawAd("1", gsName)}
	f.client.adsErrs = []error{
		&TransientNetworkError{Message: "connection reset"},
		&RateLimitError{Message: "too many calls", RetryAfter: 10 * time.Second},
	}

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, l.ID))

	done := f.syncLog(t, l.ID)
	assert.Equal(t, models.SyncStatusCompleted, done.Status)
	assert.Equal(t, []time.Duration{time.Second, 10 * time.Second}, f.sleeps)
	assert.Equal(t, 3, f.client.adsCalls)
	assert.Empty(t, done.APIErrors, "recovered retries do not mark a completed run")
	assert.Equal(t, 2, done.SyncState.Retries)
}

func TestExecute_ExhaustedRetriesFailTheRun(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	f.client.adsErrs = []error{
		&TransientNetworkError{Message: "timeout"},
		&TransientNetworkError{Message: "timeout"},
		&TransientNetworkError{Message: "timeout"},
	}

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, l.ID))

	done := f.syncLog(t, l.ID)
	assert.Equal(t, models.SyncStatusFailed, done.Status)
	assert.Equal(t, models.PhaseFetchAds, done.CurrentPhase)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps)
	require.Len(t, done.APIErrors, 3)
	assert.Equal(t, "transient", done.APIErrors[0].Code)
	assert.Equal(t, models.ErrorSourceAPI, done.APIErrors[0].Source)

	a, err := f.store.Accounts().GetByID(ctx, "111")
	require.NoError(t, err)
	assert.Nil(t, a.LastSyncedAt)
}

func TestExecute_PermanentErrorIsNotRetried(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	f.client.adsErrs = []error{&PermanentError{Code: 100, Message: "invalid parameter"}}

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, l.ID))

	done := f.syncLog(t, l.ID)
	assert.Equal(t, models.SyncStatusFailed, done.Status)
	assert.Empty(t, f.sleeps)
	require.Len(t, done.APIErrors, 1)
	assert.Equal(t, "permanent_100", done.APIErrors[0].Code)
}

func TestExecute_AuthErrorFailsWithoutRetry(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	f.client.tokenErr = &AuthError{Message: "session has expired"}

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, l.ID))

	done := f.syncLog(t, l.ID)
	assert.Equal(t, models.SyncStatusFailed, done.Status)
	assert.Empty(t, f.sleeps)
	assert.Equal(t, 0, f.client.adsCalls)
	require.Len(t, done.APIErrors, 1)
	assert.Equal(t, "auth", done.APIErrors[0].Code)
}

func TestExecute_ExpiredTokenFails(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	expired := testNow.Add(-time.Hour)
	f.client.token = &TokenInfo{Valid: true, ExpiresAt: &expired}

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, l.ID))

	done := f.syncLog(t, l.ID)
	assert.Equal(t, models.SyncStatusFailed, done.Status)
	require.Len(t, done.APIErrors, 1)
	assert.Equal(t, "auth", done.APIErrors[0].Code)
}

func TestExecute_RecordsTokenExpiringSoon(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	soon := testNow.Add(48 * time.Hour)
	f.client.token = &TokenInfo{Valid: true, ExpiresAt: &soon}

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, l.ID))

	done := f.syncLog(t, l.ID)
	assert.Equal(t, models.SyncStatusCompleted, done.Status)
	require.NotNil(t, done.SyncState.TokenExpiresAt)
	assert.True(t, done.SyncState.TokenExpiresAt.Equal(soon))
}

func TestExecute_IncrementalUsesLastSynced(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	last := testNow.Add(-48 * time.Hour)
	require.NoError(t, f.store.Accounts().SetLastSynced(ctx, "111", last))

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111", SyncType: models.SyncTypeIncremental})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, l.ID))

	assert.Equal(t, models.SyncStatusCompleted, f.syncLog(t, l.ID).Status)
	require.NotNil(t, f.client.lastSince)
	assert.True(t, f.client.lastSince.Equal(last))
}

func TestExecute_AllSyncsEveryActiveAccount(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	f.addAccount(t, "222")
	f.client.ads["111"] = []transfer.RawAd{rawAd("1", gsName)}
	f.client.ads["222"] = []transfer.RawAd{rawAd("2", "GS2_Image_Founder_Studio_Greens_Question_Gut")}

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: models.AccountKeyAll})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(ctx, l.ID))

	assert.Equal(t, models.SyncStatusCompleted, f.syncLog(t, l.ID).Status)
	for _, id := range []string{"111", "222"} {
		a, err := f.store.Accounts().GetByID(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, a.LastSyncedAt, id)
		assert.Equal(t, 1, a.CreativeCount, id)
	}
}

func TestCancel_MarksFailedAndPromotesNext(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")

	first, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	second, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)

	ok, err := f.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	cancelled := f.syncLog(t, first.ID)
	assert.Equal(t, models.SyncStatusFailed, cancelled.Status)
	require.Len(t, cancelled.APIErrors, 1)
	assert.Equal(t, models.ErrorSourceUser, cancelled.APIErrors[0].Source)
	assert.Equal(t, models.CancelledMessage, cancelled.APIErrors[0].Message)
	assert.Equal(t, models.SyncStatusRunning, f.syncLog(t, second.ID).Status)

	ok, err = f.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// A dispatched task for a cancelled row exits without touching it.
	require.NoError(t, f.svc.Execute(ctx, first.ID))
	assert.Len(t, f.syncLog(t, first.ID).APIErrors, 1)

	_, err = f.svc.Cancel(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelAccount_CancelsRunningAndQueued(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")

	for i := 0; i < 3; i++ {
		_, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
		require.NoError(t, err)
	}

	n, err := f.svc.CancelAccount(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	active, err := f.store.SyncLogs().ListActive(ctx, "111")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestExecute_StopsWhenCancelledMidRun(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAccount(t, "111")
	f.client.ads["111"] = []transfer.RawAd{rawAd("1", gsName)}

	l, err := f.svc.Start(ctx, StartSyncRequest{AccountKey: "111"})
	require.NoError(t, err)
	f.client.onListAds = func() {
		_, err := f.svc.Cancel(ctx, l.ID)
		assert.NoError(t, err)
	}

	require.NoError(t, f.svc.Execute(ctx, l.ID))

	done := f.syncLog(t, l.ID)
	assert.Equal(t, models.SyncStatusFailed, done.Status)
	require.Len(t, done.APIErrors, 1)
	assert.Equal(t, models.ErrorSourceUser, done.APIErrors[0].Source)

	c, err := f.store.Creatives().GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestBackoff(t *testing.T) {
	f := newSyncFixture(t)
	s := f.svc

	assert.Equal(t, time.Second, s.backoff(1, &TransientNetworkError{}))
	assert.Equal(t, 2*time.Second, s.backoff(2, &TransientNetworkError{}))
	assert.Equal(t, 4*time.Second, s.backoff(3, &TransientNetworkError{}))
	assert.Equal(t, 4*time.Second, s.backoff(10, &TransientNetworkError{}))
	assert.Equal(t, 30*time.Second, s.backoff(1, &RateLimitError{RetryAfter: 30 * time.Second}))
}
