package models

import (
	"database/sql/driver"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

const AccountKeyAll = "all"

// KeysConflict reports whether syncs for the two account keys may not run at
// the same time. "all" conflicts with every key.
func KeysConflict(a, b string) bool {
	return a == b || a == AccountKeyAll || b == AccountKeyAll
}

const (
	SyncStatusQueued    = "queued"
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
)

// Phases of a running sync, in order.
const (
	PhaseFetchAds = iota + 1
	PhaseFetchInsights
	PhaseMergeTags
	PhaseUpsertCreatives
	PhaseDailyMetrics
	PhaseFinalize
)

var phaseNames = map[int]string{
	PhaseFetchAds:        "fetch_ads",
	PhaseFetchInsights:   "fetch_insights",
	PhaseMergeTags:       "merge_tags",
	PhaseUpsertCreatives: "upsert_creatives",
	PhaseDailyMetrics:    "daily_metrics",
	PhaseFinalize:        "finalize",
}

func PhaseName(phase int) string {
	if n, ok := phaseNames[phase]; ok {
		return n
	}
	return "pending"
}

type SyncLog struct {
	ID                int64      `db:"id" json:"id"`
	AccountKey        string     `db:"account_key" json:"account_id"`
	SyncType          string     `db:"sync_type" json:"sync_type"`
	Since             *time.Time `db:"since" json:"since,omitempty"`
	Status            string     `db:"status" json:"status"`
	CurrentPhase      int        `db:"current_phase" json:"current_phase"`
	CreativesFetched  int        `db:"creatives_fetched" json:"creatives_fetched"`
	CreativesUpserted int        `db:"creatives_upserted" json:"creatives_upserted"`
	TagsUpdated       int        `db:"tags_updated" json:"tags_updated"`
	SyncState         SyncState  `db:"sync_state" json:"sync_state"`
	APIErrors         APIErrors  `db:"api_errors" json:"api_errors"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	StartedAt         *time.Time `db:"started_at" json:"started_at"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at"`
}

func (l *SyncLog) Terminal() bool {
	return l.Status == SyncStatusCompleted || l.Status == SyncStatusFailed
}

// LastActivity is the heartbeat used by the reaper, falling back to the start
// time for runs that never wrote one.
func (l *SyncLog) LastActivity() time.Time {
	if l.SyncState.LastActivity != nil {
		return *l.SyncState.LastActivity
	}
	if l.StartedAt != nil {
		return *l.StartedAt
	}
	return l.CreatedAt
}

// SyncProgress is one heartbeat write.
type SyncProgress struct {
	Phase             int
	CreativesFetched  int
	CreativesUpserted int
	TagsUpdated       int
	State             SyncState
}

type SyncState struct {
	LastActivity   *time.Time `json:"last_activity,omitempty"`
	RunID          string     `json:"run_id,omitempty"`
	AccountID      string     `json:"account_id,omitempty"`
	Message        string     `json:"message,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	// Retries counts failed API calls that were retried.
	Retries int `json:"retries,omitempty"`
}

func (s SyncState) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *SyncState) Scan(src interface{}) error {
	return scanJSON(src, s)
}

const (
	ErrorSourceAPI    = "api"
	ErrorSourceUser   = "user"
	ErrorSourceReaper = "reaper"
	ErrorSourceSystem = "system"
)

const CancelledMessage = "cancelled"

type APIError struct {
	Source  string    `json:"source"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type APIErrors []APIError

func (e APIErrors) Value() (driver.Value, error) {
	if e == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e)
}

func (e *APIErrors) Scan(src interface{}) error {
	return scanJSON(src, e)
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	}
	return errors.New("unsupported json column type")
}
