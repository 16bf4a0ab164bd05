package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestR2Validate(t *testing.T) {
	tests := []struct {
		name    string
		r2      R2
		wantErr string
	}{
		{name: "storage disabled", r2: R2{}},
		{name: "complete", r2: R2{BucketName: "media", AccountID: "acc", PublicURL: "https://cdn.example/"}},
		{name: "custom endpoint", r2: R2{BucketName: "media", Endpoint: "http://minio:9000", PublicURL: "https://cdn.example/"}},
		{name: "missing public url", r2: R2{BucketName: "media", AccountID: "acc"}, wantErr: "STORAGE_PUBLIC_URL"},
		{name: "missing endpoint", r2: R2{BucketName: "media", PublicURL: "https://cdn.example/"}, wantErr: "R2_ACCOUNT_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r2.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"STORE", "STORAGE_PUBLIC_URL", "SYNC_STALE_AFTER", "MEDIA_VIDEO_CONCURRENCY"} {
		t.Setenv(key, "")
	}
	t.Setenv("SYNC_MAX_ATTEMPTS", "not a number")

	cfg := LoadConfig()
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 4, cfg.Sync.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Sync.StaleAfter)
	assert.Equal(t, 3, cfg.Media.VideoConcurrency)
	assert.Empty(t, cfg.R2.PublicURL)
}
