package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	config "github.com/maheshrc27/adpulse/configs"
	"github.com/maheshrc27/adpulse/internal/metrics"
	"github.com/maheshrc27/adpulse/internal/transfer"
	"github.com/maheshrc27/adpulse/pkg/admetrics"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	InsightLevelAd      = "ad"
	InsightLevelAccount = "account"

	defaultRetryAfter = 60 * time.Second
	adsPageSize       = 200
	insightsPageSize  = 500
)

// DateWindow is an inclusive range of report days.
type DateWindow struct {
	Since time.Time
	Until time.Time
}

// WindowEndingAt returns the days-long window whose last day is the day of t.
func WindowEndingAt(t time.Time, days int) DateWindow {
	until := truncateDay(t)
	return DateWindow{Since: until.AddDate(0, 0, -(days - 1)), Until: until}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type TokenInfo struct {
	Valid bool
	// ExpiresAt is nil for tokens that never expire.
	ExpiresAt *time.Time
	Scopes    []string
}

type AdsClient interface {
	ListAds(accountID string, updatedSince *time.Time) *Pager[transfer.RawAd]
	ListInsights(accountID string, window DateWindow, level string) *Pager[transfer.RawInsightRow]
	TokenInfo(ctx context.Context) (*TokenInfo, error)
	VideoSource(ctx context.Context, videoID string) (string, error)
}

type metaAdsClient struct {
	cfg     config.Meta
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]byte]
}

func NewMetaAdsClient(cfg config.Meta) AdsClient {
	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken}))
	client.Timeout = cfg.Timeout

	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &metaAdsClient{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		cb:      newGraphBreaker("meta-graph-api"),
	}
}

func newGraphBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Only outages count against the breaker; auth and request errors
		// say nothing about the platform's health.
		IsSuccessful: func(err error) bool {
			var tn *TransientNetworkError
			return err == nil || !errors.As(err, &tn)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

func (c *metaAdsClient) endpoint(path string, params url.Values) string {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + c.cfg.APIVersion + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func actPath(accountID string) string {
	if strings.HasPrefix(accountID, "act_") {
		return accountID
	}
	return "act_" + accountID
}

func (c *metaAdsClient) ListAds(accountID string, updatedSince *time.Time) *Pager[transfer.RawAd] {
	params := url.Values{}
	params.Set("fields", "id,name,effective_status,updated_time,campaign{name},adset{name},"+
		"creative{id,thumbnail_url,image_url,video_id,object_story_spec}")
	params.Set("limit", strconv.Itoa(adsPageSize))
	if updatedSince != nil {
		params.Set("filtering", fmt.Sprintf(`[{"field":"ad.updated_time","operator":"GREATER_THAN","value":%d}]`, updatedSince.Unix()))
	}
	return NewPagerFrom(graphPageFetcher[transfer.RawAd](c), c.endpoint(actPath(accountID)+"/ads", params))
}

func (c *metaAdsClient) ListInsights(accountID string, window DateWindow, level string) *Pager[transfer.RawInsightRow] {
	fields := "account_id,date_start,date_stop,spend,impressions,reach,clicks,actions,action_values,video_thruplay_watched_actions"
	if level == InsightLevelAd {
		fields = "ad_id,ad_name,campaign_name,adset_name," + fields
	}

	params := url.Values{}
	params.Set("level", level)
	params.Set("fields", fields)
	params.Set("time_increment", "1")
	params.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		window.Since.Format(time.DateOnly), window.Until.Format(time.DateOnly)))
	params.Set("limit", strconv.Itoa(insightsPageSize))
	return NewPagerFrom(graphPageFetcher[transfer.RawInsightRow](c), c.endpoint(actPath(accountID)+"/insights", params))
}

func graphPageFetcher[T any](c *metaAdsClient) PageFetcher[T] {
	return func(ctx context.Context, cursor string) ([]T, string, error) {
		body, err := c.get(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		var page transfer.GraphPage[T]
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, "", &PermanentError{Message: fmt.Sprintf("decode page: %v", err)}
		}
		return page.Data, page.Paging.Next, nil
	}
}

func (c *metaAdsClient) TokenInfo(ctx context.Context) (*TokenInfo, error) {
	params := url.Values{}
	params.Set("input_token", c.cfg.AccessToken)
	if c.cfg.AppToken != "" {
		params.Set("access_token", c.cfg.AppToken)
	}

	body, err := c.get(ctx, c.endpoint("debug_token", params))
	if err != nil {
		return nil, err
	}

	var resp transfer.DebugTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &PermanentError{Message: fmt.Sprintf("decode debug_token: %v", err)}
	}

	info := &TokenInfo{Valid: resp.Data.IsValid, Scopes: resp.Data.Scopes}
	if resp.Data.ExpiresAt > 0 {
		t := time.Unix(resp.Data.ExpiresAt, 0).UTC()
		info.ExpiresAt = &t
	}
	return info, nil
}

func (c *metaAdsClient) VideoSource(ctx context.Context, videoID string) (string, error) {
	params := url.Values{}
	params.Set("fields", "source")

	body, err := c.get(ctx, c.endpoint(videoID, params))
	if err != nil {
		return "", err
	}

	var resp transfer.VideoSourceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &PermanentError{Message: fmt.Sprintf("decode video source: %v", err)}
	}
	if resp.Source == "" {
		return "", &PermanentError{Message: fmt.Sprintf("video %s has no source", videoID)}
	}
	return resp.Source, nil
}

// get performs one paced request through the breaker. It does not retry;
// callers decide based on the returned error class.
func (c *metaAdsClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.do(ctx, rawURL)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.MetaAPIRequests.WithLabelValues("rejected").Inc()
		return nil, &TransientNetworkError{Message: "graph api circuit open", Err: err}
	}
	metrics.MetaAPIRequests.WithLabelValues(outcome(err)).Inc()
	return body, err
}

func (c *metaAdsClient) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &PermanentError{Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientNetworkError{Message: "graph request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientNetworkError{Message: "read graph response", Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classifyGraphError(resp.StatusCode, resp.Header, body)
}

func isRateLimitCode(code int) bool {
	switch code {
	case 4, 17, 32, 613:
		return true
	}
	return code >= 80000 && code <= 80014
}

// classifyGraphError maps a non-2xx Graph response onto the error taxonomy.
func classifyGraphError(status int, header http.Header, body []byte) error {
	var envelope transfer.GraphErrorResponse
	_ = json.Unmarshal(body, &envelope)
	ge := envelope.Error

	msg := ge.Message
	if msg == "" {
		msg = fmt.Sprintf("graph api returned %d", status)
	}

	switch {
	case ge.Code == 190 || status == http.StatusUnauthorized:
		return &AuthError{Message: msg}
	case isRateLimitCode(ge.Code) || status == http.StatusTooManyRequests:
		return &RateLimitError{Message: msg, RetryAfter: parseRetryAfter(header.Get("Retry-After"))}
	case status >= 500 || ge.IsTransient:
		return &TransientNetworkError{Message: msg}
	}

	code := ge.Code
	if code == 0 {
		code = status
	}
	return &PermanentError{Code: code, Message: msg}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	return errorCode(err)
}

// InsightCounters converts one insight row into raw counters. Pixel and
// on-platform action types for the same event are not added together.
func InsightCounters(row transfer.RawInsightRow) admetrics.Counters {
	return admetrics.Counters{
		Spend:          parseFloat(row.Spend),
		Impressions:    parseInt(row.Impressions),
		Reach:          parseInt(row.Reach),
		Clicks:         parseInt(row.Clicks),
		Purchases:      int64(actionValue(row.Actions, "purchase", "offsite_conversion.fb_pixel_purchase")),
		PurchaseValue:  actionValue(row.ActionValues, "purchase", "offsite_conversion.fb_pixel_purchase"),
		AddsToCart:     int64(actionValue(row.Actions, "add_to_cart", "offsite_conversion.fb_pixel_add_to_cart")),
		Video3sViews:   int64(actionValue(row.Actions, "video_view")),
		VideoThruplays: int64(actionValue(row.VideoThruplayWatchedActions, "video_view")),
	}
}

// actionValue returns the value of the first action type, in preference
// order, present in actions.
func actionValue(actions []transfer.ActionValue, types ...string) float64 {
	for _, t := range types {
		for _, a := range actions {
			if a.ActionType == t {
				return parseFloat(a.Value)
			}
		}
	}
	return 0
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(v string) int64 {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return int64(parseFloat(v))
}
