package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/adpulse/configs"
	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository/memstore"
	"github.com/maheshrc27/adpulse/internal/transfer"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const testMediaBase = "https://cdn.test/"

type fakeAdsClient struct {
	mu          sync.Mutex
	ads         map[string][]transfer.RawAd
	adRows      map[string][]transfer.RawInsightRow
	accountRows map[string][]transfer.RawInsightRow
	token       *TokenInfo
	tokenErr    error
	// adsErrs are returned, in order, by the first ListAds page requests.
	adsErrs      []error
	adsCalls     int
	onListAds    func()
	videoSources map[string]string
	lastSince    *time.Time
}

func newFakeAdsClient() *fakeAdsClient {
	return &fakeAdsClient{
		ads:          make(map[string][]transfer.RawAd),
		adRows:       make(map[string][]transfer.RawInsightRow),
		accountRows:  make(map[string][]transfer.RawInsightRow),
		token:        &TokenInfo{Valid: true},
		videoSources: make(map[string]string),
	}
}

func (f *fakeAdsClient) ListAds(accountID string, updatedSince *time.Time) *Pager[transfer.RawAd] {
	f.mu.Lock()
	f.lastSince = updatedSince
	f.mu.Unlock()

	return NewPagerFrom(func(ctx context.Context, cursor string) ([]transfer.RawAd, string, error) {
		f.mu.Lock()
		f.adsCalls++
		hook := f.onListAds
		var err error
		if len(f.adsErrs) > 0 {
			err, f.adsErrs = f.adsErrs[0], f.adsErrs[1:]
		}
		ads := f.ads[accountID]
		f.mu.Unlock()

		if hook != nil {
			hook()
		}
		if err != nil {
			return nil, "", err
		}
		return ads, "", nil
	}, "first")
}

func (f *fakeAdsClient) ListInsights(accountID string, window DateWindow, level string) *Pager[transfer.RawInsightRow] {
	return NewPagerFrom(func(ctx context.Context, cursor string) ([]transfer.RawInsightRow, string, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if level == InsightLevelAccount {
			return f.accountRows[accountID], "", nil
		}
		return f.adRows[accountID], "", nil
	}, "first")
}

func (f *fakeAdsClient) TokenInfo(ctx context.Context) (*TokenInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.tokenErr
}

func (f *fakeAdsClient) VideoSource(ctx context.Context, videoID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.videoSources[videoID]
	if !ok {
		return "", &PermanentError{Code: 100, Message: "unknown video " + videoID}
	}
	return src, nil
}

// recordingDispatcher remembers dispatched syncs so tests run them explicitly.
type recordingDispatcher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (d *recordingDispatcher) DispatchSync(ctx context.Context, syncID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, syncID)
	return nil
}

func (d *recordingDispatcher) dispatched() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.ids...)
}

type syncFixture struct {
	store  *memstore.Store
	client *fakeAdsClient
	d      *recordingDispatcher
	svc    *syncService
	ts     TagService
	sleeps []time.Duration
}

func testSyncConfig() config.Sync {
	return config.Sync{
		MaxAttempts:      3,
		BackoffBase:      time.Second,
		BackoffCap:       4 * time.Second,
		UpsertBatchSize:  2,
		Concurrency:      2,
		StaleAfter:       10 * time.Minute,
		HeartbeatTimeout: 5 * time.Minute,
		ScheduleSpec:     "@every 6h",
		TokenWarnWithin:  7 * 24 * time.Hour,
	}
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	store := memstore.New(testMediaBase)
	store.SetClock(func() time.Time { return testNow })

	f := &syncFixture{
		store:  store,
		client: newFakeAdsClient(),
		d:      &recordingDispatcher{},
	}
	f.ts = NewTagService(store.Accounts(), store.Creatives(), store.NameMappings())
	svc := NewSyncService(testSyncConfig(), f.client,
		store.Accounts(), store.Creatives(), store.DailyMetrics(), store.SyncLogs(), f.ts, f.d).(*syncService)
	svc.now = func() time.Time { return testNow }
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	f.svc = svc
	return f
}

func (f *syncFixture) addAccount(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.Accounts().Upsert(context.Background(), &models.Account{
		ID:       id,
		Name:     "Account " + id,
		IsActive: true,
	}))
}

func (f *syncFixture) syncLog(t *testing.T, id int64) *models.SyncLog {
	t.Helper()
	l, err := f.store.SyncLogs().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, l)
	return l
}

func insightRow(adID, adName, date, spend, impressions, clicks string) transfer.RawInsightRow {
	return transfer.RawInsightRow{
		AdID:        adID,
		AdName:      adName,
		DateStart:   date,
		DateStop:    date,
		Spend:       spend,
		Impressions: impressions,
		Clicks:      clicks,
	}
}

func rawAd(id, name string) transfer.RawAd {
	ad := transfer.RawAd{ID: id, Name: name, EffectiveStatus: "ACTIVE"}
	ad.Creative.ThumbnailURL = fmt.Sprintf("https://scontent.example/%s.jpg", id)
	return ad
}
