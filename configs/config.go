package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	// PublicURL is the base every mirrored media URL starts with.
	PublicURL string
	// Endpoint overrides the account endpoint, for S3-compatible stores.
	Endpoint string
}

// Validate reports settings that would let media caching run against a
// bucket without producing usable URLs.
func (r R2) Validate() error {
	if r.BucketName == "" {
		return nil
	}
	if r.PublicURL == "" {
		return errors.New("STORAGE_PUBLIC_URL is required when R2_BUCKET_NAME is set")
	}
	if r.Endpoint == "" && r.AccountID == "" {
		return errors.New("R2_ACCOUNT_ID or R2_ENDPOINT is required when R2_BUCKET_NAME is set")
	}
	return nil
}

type Meta struct {
	AccessToken string
	AppToken    string
	APIVersion  string
	BaseURL     string
	RPS         float64
	Burst       int
	Timeout     time.Duration
}

type Sync struct {
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	UpsertBatchSize  int
	Concurrency      int
	StaleAfter       time.Duration
	HeartbeatTimeout time.Duration
	ScheduleSpec     string
	TokenWarnWithin  time.Duration
}

type Media struct {
	BatchSize        int
	ThumbConcurrency int
	VideoConcurrency int
	MaxImageBytes    int64
	MaxVideoBytes    int64
	StaleAfter       time.Duration
	DownloadTimeout  time.Duration
}

type Config struct {
	Port           string
	Store          string
	PostgresURI    string
	RedisURI       string
	FrontendURL    string
	SecretKey      string
	APIKey         string
	ReaperInterval time.Duration
	R2             R2
	Meta           Meta
	Sync           Sync
	Media          Media
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

func LoadConfig() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		Store:          getEnv("STORE", StorePostgres),
		PostgresURI:    getEnv("POSTGRES_URI", ""),
		RedisURI:       getEnv("REDIS_URI", ""),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:      getEnv("SECRET_KEY", ""),
		APIKey:         getEnv("API_KEY", ""),
		ReaperInterval: getEnvDuration("REAPER_INTERVAL", time.Minute),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("STORAGE_PUBLIC_URL", ""),
			Endpoint:   getEnv("R2_ENDPOINT", ""),
		},
		Meta: Meta{
			AccessToken: getEnv("META_ACCESS_TOKEN", ""),
			AppToken:    getEnv("META_APP_TOKEN", ""),
			APIVersion:  getEnv("META_API_VERSION", "v21.0"),
			BaseURL:     getEnv("META_BASE_URL", "https://graph.facebook.com"),
			RPS:         getEnvFloat("META_RPS", 5),
			Burst:       getEnvInt("META_BURST", 10),
			Timeout:     getEnvDuration("META_TIMEOUT", 60*time.Second),
		},
		Sync: Sync{
			MaxAttempts:      getEnvInt("SYNC_MAX_ATTEMPTS", 4),
			BackoffBase:      getEnvDuration("SYNC_BACKOFF_BASE", 2*time.Second),
			BackoffCap:       getEnvDuration("SYNC_BACKOFF_CAP", 60*time.Second),
			UpsertBatchSize:  getEnvInt("SYNC_UPSERT_BATCH_SIZE", 100),
			Concurrency:      getEnvInt("SYNC_UPSERT_CONCURRENCY", 4),
			StaleAfter:       getEnvDuration("SYNC_STALE_AFTER", 10*time.Minute),
			HeartbeatTimeout: getEnvDuration("SYNC_HEARTBEAT_TIMEOUT", 5*time.Minute),
			ScheduleSpec:     getEnv("SCHEDULED_SYNC_SPEC", "@every 6h"),
			TokenWarnWithin:  getEnvDuration("SYNC_TOKEN_WARN_WITHIN", 7*24*time.Hour),
		},
		Media: Media{
			BatchSize:        getEnvInt("MEDIA_BATCH_SIZE", 200),
			ThumbConcurrency: getEnvInt("MEDIA_THUMB_CONCURRENCY", 10),
			VideoConcurrency: getEnvInt("MEDIA_VIDEO_CONCURRENCY", 3),
			MaxImageBytes:    int64(getEnvInt("MEDIA_MAX_IMAGE_BYTES", 10<<20)),
			MaxVideoBytes:    int64(getEnvInt("MEDIA_MAX_VIDEO_BYTES", 200<<20)),
			StaleAfter:       getEnvDuration("MEDIA_STALE_AFTER", 15*time.Minute),
			DownloadTimeout:  getEnvDuration("MEDIA_DOWNLOAD_TIMEOUT", 2*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
