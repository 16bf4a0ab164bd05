package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
)

// syncTaskTimeout replaces asynq's 30 minute default. Stalled runs are failed
// by the reaper from their heartbeat, not by the worker's context.
const syncTaskTimeout = 24 * time.Hour

// syncTaskOptions disables asynq retries: retries happen inside the run, per
// page, and a redelivered task would find the row already terminal and exit.
func syncTaskOptions(syncID int64) []asynq.Option {
	return []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(syncTaskTimeout),
		asynq.TaskID(fmt.Sprintf("sync-%d", syncID)),
	}
}

func EnqueueSync(ctx context.Context, asynqClient *asynq.Client, payload SyncRunPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeSyncRun, taskPayload)

	_, err = asynqClient.EnqueueContext(ctx, task, syncTaskOptions(payload.SyncID)...)
	if err != nil {
		return err
	}

	slog.Info("sync task enqueued", "sync_id", payload.SyncID)
	return nil
}

// AsynqDispatcher hands claimed syncs to the asynq worker pool.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) DispatchSync(ctx context.Context, syncID int64) error {
	return EnqueueSync(ctx, d.client, SyncRunPayload{SyncID: syncID})
}

// InlineDispatcher runs claimed syncs on goroutines of this process. It is
// used when no Redis is configured. Run must be set before the first dispatch.
// Runs start from a fresh background context.
type InlineDispatcher struct {
	Run func(ctx context.Context, syncID int64) error

	wg sync.WaitGroup
}

func (d *InlineDispatcher) DispatchSync(ctx context.Context, syncID int64) error {
	if d.Run == nil {
		return fmt.Errorf("inline dispatcher has no executor")
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Run(context.Background(), syncID); err != nil {
			slog.Error("inline sync failed", "sync_id", syncID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched run has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
