package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// KeyStore deletes idempotency keys past their retention window.
type KeyStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyJanitor sweeps expired idempotency keys. Keys only guard
// against duplicate submissions of the same request, so anything older
// than the retention window is dead weight.
type IdempotencyJanitor struct {
	store   KeyStore
	keepFor time.Duration
	logger  *slog.Logger
}

// NewIdempotencyJanitor constructs the janitor.
func NewIdempotencyJanitor(store KeyStore, keepFor time.Duration, logger *slog.Logger) *IdempotencyJanitor {
	return &IdempotencyJanitor{store: store, keepFor: keepFor, logger: logger}
}

// Handle processes TaskIdempotencySweep tasks.
func (j *IdempotencyJanitor) Handle(ctx context.Context, t *asynq.Task) error {
	_ = t
	return j.Sweep(ctx)
}

// Sweep deletes keys older than the retention window.
func (j *IdempotencyJanitor) Sweep(ctx context.Context) error {
	if err := j.store.Cleanup(ctx, j.keepFor); err != nil {
		return err
	}
	j.logger.Info("idempotency keys swept", slog.Duration("keep_for", j.keepFor))
	return nil
}
