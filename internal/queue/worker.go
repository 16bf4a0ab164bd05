package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
)

func (j *Queue) HandleSyncRunTask(ctx context.Context, task *asynq.Task) error {
	var payload SyncRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode sync payload: %v: %w", err, asynq.SkipRetry)
	}

	slog.Info("sync task received", "sync_id", payload.SyncID)
	return j.ss.Execute(ctx, payload.SyncID)
}
