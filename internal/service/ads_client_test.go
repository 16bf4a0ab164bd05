package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	config "github.com/maheshrc27/adpulse/configs"
	"github.com/maheshrc27/adpulse/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraphClient(t *testing.T, handler http.HandlerFunc) (AdsClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMetaAdsClient(config.Meta{
		AccessToken: "user-token",
		AppToken:    "app-token",
		APIVersion:  "v21.0",
		BaseURL:     srv.URL,
		RPS:         1000,
		Burst:       10,
		Timeout:     5 * time.Second,
	}), srv
}

func TestMetaAdsClient_ListAdsFollowsPaging(t *testing.T) {
	var srvURL string
	client, srv := newTestGraphClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v21.0/act_111/ads", r.URL.Path)
		if r.URL.Query().Get("after") == "" {
			assert.Contains(t, r.URL.Query().Get("filtering"), "GREATER_THAN")
			fmt.Fprintf(w, `{"data":[{"id":"1","name":"first"}],"paging":{"next":"%s/v21.0/act_111/ads?after=c2"}}`, srvURL)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"2","name":"second","creative":{"video_id":"v2"}}],"paging":{}}`)
	})
	srvURL = srv.URL

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pager := client.ListAds("111", &since)
	ctx := context.Background()

	first, err := pager.Next(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "first", first[0].Name)
	assert.False(t, pager.Done())
	assert.Equal(t, "c2", PageToken(pager.Cursor()))

	second, err := pager.Next(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "v2", second[0].Creative.VideoID)
	assert.True(t, pager.Done())
	assert.Equal(t, 2, pager.Pages())

	rest, err := pager.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestPager_ResumesFromCursor(t *testing.T) {
	pages := map[string]struct {
		items []int
		next  string
	}{
		"p1": {items: []int{1, 2}, next: "p2"},
		"p2": {items: []int{3}, next: ""},
	}
	failing := true
	fetch := func(ctx context.Context, cursor string) ([]int, string, error) {
		if cursor == "p2" && failing {
			failing = false
			return nil, "", &TransientNetworkError{Message: "reset"}
		}
		p := pages[cursor]
		return p.items, p.next, nil
	}
	ctx := context.Background()

	pager := NewPagerFrom(fetch, "p1")
	first, err := pager.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, first)

	_, err = pager.Next(ctx)
	require.Error(t, err)
	assert.Equal(t, "p2", pager.Cursor(), "a failed page keeps its cursor")

	resumed := NewPagerFrom(fetch, pager.Cursor())
	rest, err := resumed.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, rest)
	assert.True(t, resumed.Done())
}

func TestPageToken(t *testing.T) {
	assert.Equal(t, "c2", PageToken("https://graph.facebook.com/v21.0/act_1/ads?limit=200&after=c2"))
	assert.Equal(t, "", PageToken("https://graph.facebook.com/v21.0/act_1/ads?limit=200"))
	assert.Equal(t, "first", PageToken("first"))
}

func TestMetaAdsClient_ListInsightsParams(t *testing.T) {
	client, _ := newTestGraphClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ad", q.Get("level"))
		assert.Equal(t, "1", q.Get("time_increment"))
		assert.Equal(t, `{"since":"2026-03-01","until":"2026-03-07"}`, q.Get("time_range"))
		assert.Contains(t, q.Get("fields"), "ad_name")
		fmt.Fprint(w, `{"data":[{"ad_id":"1","date_start":"2026-03-01","spend":"1.25"}]}`)
	})

	window := DateWindow{Since: day("2026-03-01"), Until: day("2026-03-07")}
	rows, err := client.ListInsights("act_111", window, InsightLevelAd).Next(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1.25", rows[0].Spend)
}

func TestMetaAdsClient_TokenInfo(t *testing.T) {
	client, _ := newTestGraphClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/debug_token", r.URL.Path)
		assert.Equal(t, "user-token", r.URL.Query().Get("input_token"))
		fmt.Fprint(w, `{"data":{"is_valid":true,"expires_at":1775000000,"scopes":["ads_read"]}}`)
	})

	info, err := client.TokenInfo(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Valid)
	require.NotNil(t, info.ExpiresAt)
	assert.Equal(t, time.Unix(1775000000, 0).UTC(), *info.ExpiresAt)
	assert.Equal(t, []string{"ads_read"}, info.Scopes)
}

func TestMetaAdsClient_VideoSource(t *testing.T) {
	client, _ := newTestGraphClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v21.0/v1" {
			fmt.Fprint(w, `{"id":"v1","source":"https://video.example/v1.mp4"}`)
			return
		}
		fmt.Fprint(w, `{"id":"v2"}`)
	})
	ctx := context.Background()

	src, err := client.VideoSource(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "https://video.example/v1.mp4", src)

	_, err = client.VideoSource(ctx, "v2")
	var pe *PermanentError
	assert.ErrorAs(t, err, &pe)
}

func TestMetaAdsClient_ErrorResponses(t *testing.T) {
	client, _ := newTestGraphClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"User request limit reached","code":17}}`)
	})

	_, err := client.ListAds("111", nil).Next(context.Background())
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
}

func TestClassifyGraphError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "expired_token",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"Session has expired","code":190}}`,
			check: func(t *testing.T, err error) {
				var ae *AuthError
				assert.ErrorAs(t, err, &ae)
			},
		},
		{
			name:   "unauthorized_without_body",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var ae *AuthError
				assert.ErrorAs(t, err, &ae)
			},
		},
		{
			name:   "ads_management_throttle",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"too many calls","code":80004}}`,
			check: func(t *testing.T, err error) {
				var rl *RateLimitError
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, defaultRetryAfter, rl.RetryAfter)
			},
		},
		{
			name:   "server_error",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var tn *TransientNetworkError
				assert.ErrorAs(t, err, &tn)
			},
		},
		{
			name:   "flagged_transient",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"try again","code":2,"is_transient":true}}`,
			check: func(t *testing.T, err error) {
				var tn *TransientNetworkError
				assert.ErrorAs(t, err, &tn)
			},
		},
		{
			name:   "bad_parameter",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"Invalid parameter","code":100}}`,
			check: func(t *testing.T, err error) {
				var pe *PermanentError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, 100, pe.Code)
				assert.Equal(t, "permanent_100", errorCode(err))
			},
		},
		{
			name:   "not_found_without_body",
			status: http.StatusNotFound,
			body:   `not json`,
			check: func(t *testing.T, err error) {
				var pe *PermanentError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, http.StatusNotFound, pe.Code)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, classifyGraphError(tt.status, http.Header{}, []byte(tt.body)))
		})
	}
}

func TestInsightCounters(t *testing.T) {
	row := transfer.RawInsightRow{
		Spend:       "12.34",
		Impressions: "1000",
		Reach:       "800",
		Clicks:      "25",
		Actions: []transfer.ActionValue{
			{ActionType: "offsite_conversion.fb_pixel_purchase", Value: "3"},
			{ActionType: "purchase", Value: "2"},
			{ActionType: "add_to_cart", Value: "9"},
			{ActionType: "video_view", Value: "400"},
		},
		ActionValues: []transfer.ActionValue{
			{ActionType: "purchase", Value: "99.50"},
		},
		VideoThruplayWatchedActions: []transfer.ActionValue{
			{ActionType: "video_view", Value: "120"},
		},
	}

	c := InsightCounters(row)
	assert.InDelta(t, 12.34, c.Spend, 1e-9)
	assert.Equal(t, int64(1000), c.Impressions)
	assert.Equal(t, int64(800), c.Reach)
	assert.Equal(t, int64(25), c.Clicks)
	assert.Equal(t, int64(2), c.Purchases, "purchase wins over the pixel event")
	assert.InDelta(t, 99.5, c.PurchaseValue, 1e-9)
	assert.Equal(t, int64(9), c.AddsToCart)
	assert.Equal(t, int64(400), c.Video3sViews)
	assert.Equal(t, int64(120), c.VideoThruplays)

	assert.True(t, InsightCounters(transfer.RawInsightRow{Spend: "n/a"}).IsZero())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("soon"))
}

func TestWindowEndingAt(t *testing.T) {
	w := WindowEndingAt(time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC), 7)
	assert.Equal(t, day("2026-03-04"), w.Since)
	assert.Equal(t, day("2026-03-10"), w.Until)
}
