package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/adpulse/configs"
	"github.com/maheshrc27/adpulse/internal/api/handlers"
	"github.com/maheshrc27/adpulse/internal/api/middleware"
	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository/memstore"
	"github.com/maheshrc27/adpulse/internal/service"
	"github.com/maheshrc27/adpulse/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testAPIKey = "test-api-key"
)

type nopDispatcher struct{}

func (nopDispatcher) DispatchSync(ctx context.Context, syncID int64) error { return nil }

type testServer struct {
	app   *fiber.App
	store *memstore.Store
}

func newTestServer(t *testing.T, ping func(ctx context.Context) error) *testServer {
	t.Helper()
	cfg := config.Config{
		SecretKey: testSecret,
		APIKey:    testAPIKey,
		Sync: config.Sync{
			MaxAttempts:     3,
			BackoffBase:     time.Second,
			BackoffCap:      time.Minute,
			UpsertBatchSize: 100,
			Concurrency:     1,
		},
		Media: config.Media{BatchSize: 10, ThumbConcurrency: 1, VideoConcurrency: 1},
	}

	store := memstore.New("https://cdn.test/")
	ts := service.NewTagService(store.Accounts(), store.Creatives(), store.NameMappings())
	ss := service.NewSyncService(cfg.Sync, nil, store.Accounts(), store.Creatives(),
		store.DailyMetrics(), store.SyncLogs(), ts, nopDispatcher{})

	app := NewApp("http://localhost:5173")
	Register(app, Handlers{
		Sync:     handlers.NewSyncHandler(ss),
		Media:    handlers.NewMediaHandler(service.NewMediaCacheService(cfg.Media, store.Creatives(), store.MediaRefreshLogs(), nil, nil)),
		Creative: handlers.NewCreativeHandler(service.NewCreativeService(store.Accounts(), store.Creatives())),
		Account:  handlers.NewAccountHandler(service.NewAccountService(store.Accounts(), store.Creatives(), store.DailyMetrics()), ts),
		Mapping:  handlers.NewMappingHandler(service.NewMappingService(store.Accounts(), store.NameMappings(), ts)),
		Health:   handlers.NewHealthHandler(ping),
	}, middleware.NewAuthMiddleware(cfg).AuthMiddleware())

	return &testServer{app: app, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("missing_credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		status, body := s.send(t, req)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "missing bearer token or api key", body["error"])
	})

	t.Run("wrong_api_key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		req.Header.Set(middleware.APIKeyHeader, "nope")
		status, _ := s.send(t, req)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("valid_jwt", func(t *testing.T) {
		token, err := utils.GenerateToken(testSecret, "dashboard", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		status, _ := s.send(t, req)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("jwt_signed_with_other_secret", func(t *testing.T) {
		token, err := utils.GenerateToken("other-secret", "dashboard", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		status, _ := s.send(t, req)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("healthz_is_public", func(t *testing.T) {
		status, body := s.send(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", body["status"])
	})
}

func TestHealthz_ReportsStoreFailure(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context) error { return errors.New("connection refused") })

	status, body := s.send(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "connection refused", body["error"])
}

func TestSyncRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	status, _ := s.do(t, http.MethodPost, "/api/accounts", `{"id":"act_111","name":"Greens"}`)
	require.Equal(t, http.StatusCreated, status)

	status, body := s.do(t, http.MethodPost, "/api/sync", `{"account_id":"111"}`)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, models.SyncStatusRunning, body["status"])
	assert.Equal(t, float64(1), body["sync_id"])

	status, body = s.do(t, http.MethodPost, "/api/sync", `{"account_id":"111","sync_type":"incremental"}`)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, models.SyncStatusQueued, body["status"])

	status, body = s.do(t, http.MethodGet, "/api/sync/1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "111", body["account_id"])

	status, body = s.do(t, http.MethodPost, "/api/sync/cancel", `{"account_id":"111"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["cancelled"])

	status, body = s.do(t, http.MethodGet, "/api/sync?account_id=111", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 2)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"missing_account_id", http.MethodPost, "/api/sync", `{}`, http.StatusBadRequest},
		{"bad_sync_type", http.MethodPost, "/api/sync", `{"account_id":"111","sync_type":"partial"}`, http.StatusBadRequest},
		{"malformed_json", http.MethodPost, "/api/sync", `{"account_id":`, http.StatusBadRequest},
		{"unknown_account", http.MethodPost, "/api/sync", `{"account_id":"404"}`, http.StatusNotFound},
		{"unknown_sync", http.MethodGet, "/api/sync/99", "", http.StatusNotFound},
		{"non_numeric_sync", http.MethodGet, "/api/sync/abc", "", http.StatusBadRequest},
		{"cancel_without_target", http.MethodPost, "/api/sync/cancel", `{}`, http.StatusBadRequest},
		{"empty_bulk_untag", http.MethodPost, "/api/creatives/bulk-untag", `{"ad_ids":[]}`, http.StatusBadRequest},
		{"unknown_creative", http.MethodPut, "/api/creatives/404", `{"theme":"x"}`, http.StatusNotFound},
		{"bad_date", http.MethodGet, "/api/creatives?date_from=03-01-2026", "", http.StatusBadRequest},
		{"half_range", http.MethodGet, "/api/accounts/111/summary?date_from=2026-03-01", "", http.StatusBadRequest},
		{"bad_kpi", http.MethodPut, "/api/accounts/111", `{"winner_kpi":"likes"}`, http.StatusBadRequest},
		{"unknown_account_settings", http.MethodPut, "/api/accounts/404", `{"name":"x"}`, http.StatusNotFound},
		{"retag_unknown_account", http.MethodPost, "/api/accounts/404/retag", "", http.StatusNotFound},
		{"media_without_storage", http.MethodPost, "/api/media-refresh", "", http.StatusBadRequest},
		{"no_media_refresh_yet", http.MethodGet, "/api/media-refresh/latest", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestImportNameMappings(t *testing.T) {
	s := newTestServer(t, nil)
	status, _ := s.do(t, http.MethodPost, "/api/accounts", `{"id":"111"}`)
	require.Equal(t, http.StatusCreated, status)

	csv := "UniqueCode,Type,Person,Style,Product,Hook,Theme\nGS1,Image,Founder,Studio,Greens,Question,Gut\n"
	req := httptest.NewRequest(http.MethodPost, "/api/accounts/111/name-mappings", bytes.NewBufferString(csv))
	req.Header.Set(fiber.HeaderContentType, "text/csv")
	req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	status, body := s.send(t, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["imported"])

	status, body = s.do(t, http.MethodGet, "/api/accounts/111/name-mappings", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
}
