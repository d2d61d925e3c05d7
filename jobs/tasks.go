// Package jobs defines the background tasks and the asynq plumbing that
// runs them: per-tenant stock statistics recompute and the ledger
// integrity scan.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatsRecompute recomputes a tenant's stock statistics.
	TaskStatsRecompute = "stats:recompute"
	// TaskLedgerIntegrity scans every tenant's ledger for drift between
	// movement sums and stored batch quantities.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencySweep deletes idempotency keys past retention.
	TaskIdempotencySweep = "idempotency:sweep"
)

// StatsRecomputePayload identifies the tenant whose stats went stale.
type StatsRecomputePayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewStatsRecomputeTask constructs a stats recompute task.
func NewStatsRecomputeTask(tenantID int64) (*asynq.Task, error) {
	data, err := json.Marshal(StatsRecomputePayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsRecompute, data), nil
}

// NewLedgerIntegrityTask constructs an integrity scan task. The scan
// covers all tenants, so the payload is empty.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewIdempotencySweepTask constructs an idempotency key sweep task.
func NewIdempotencySweepTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencySweep, nil)
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueStatsRecompute signals that a tenant's stock statistics need
// recomputing. Duplicate signals within a short window collapse into one
// task.
func (c *Client) EnqueueStatsRecompute(ctx context.Context, tenantID int64) error {
	task, err := NewStatsRecomputeTask(tenantID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.Unique(time.Minute))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
