package queue

import (
	"github.com/maheshrc27/adpulse/internal/service"
)

type Queue struct {
	ss service.SyncService
}

func NewQueue(ss service.SyncService) *Queue {
	return &Queue{
		ss: ss,
	}
}

const TaskTypeSyncRun = "sync:run"

type SyncRunPayload struct {
	SyncID int64 `json:"sync_id"`
}
