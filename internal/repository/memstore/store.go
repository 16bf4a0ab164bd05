// Package memstore keeps every repository in process memory. It backs
// STORE=memory runs and the service tests, and follows the same conditional
// write rules as the Postgres repositories.
package memstore

import (
	"sync"
	"time"

	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/repository"
)

type dailyKey struct {
	accountID string
	adID      string
	date      string
}

type Store struct {
	mu sync.Mutex

	accounts   map[string]*models.Account
	creatives  map[string]*models.Creative
	daily      map[dailyKey]*models.DailyMetric
	syncLogs   map[int64]*models.SyncLog
	mediaLogs  map[int64]*models.MediaRefreshLog
	mappings   map[string]map[string]*models.NameMapping
	nextSyncID int64
	nextMedia  int64

	mediaBaseURL string
	now          func() time.Time
}

func New(mediaBaseURL string) *Store {
	return &Store{
		accounts:     make(map[string]*models.Account),
		creatives:    make(map[string]*models.Creative),
		daily:        make(map[dailyKey]*models.DailyMetric),
		syncLogs:     make(map[int64]*models.SyncLog),
		mediaLogs:    make(map[int64]*models.MediaRefreshLog),
		mappings:     make(map[string]map[string]*models.NameMapping),
		mediaBaseURL: mediaBaseURL,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the clock used for created_at and updated_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Accounts() repository.AccountRepository { return &accountStore{s} }

func (s *Store) Creatives() repository.CreativeRepository { return &creativeStore{s} }

func (s *Store) DailyMetrics() repository.DailyMetricRepository { return &dailyMetricStore{s} }

func (s *Store) SyncLogs() repository.SyncLogRepository { return &syncLogStore{s} }

func (s *Store) MediaRefreshLogs() repository.MediaRefreshLogRepository { return &mediaLogStore{s} }

func (s *Store) NameMappings() repository.NameMappingRepository { return &nameMappingStore{s} }

func dateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}
