package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Invalidator drops cached aggregates after stock-changing operations.
// Invalidation is fire-and-forget: failures are logged, never propagated,
// so the ledger does not depend on the cache being reachable.
type Invalidator struct {
	client *redis.Client
	logger *slog.Logger
}

// NewInvalidator constructs an Invalidator.
func NewInvalidator(client *redis.Client, logger *slog.Logger) *Invalidator {
	return &Invalidator{client: client, logger: logger}
}

// Key builds the cache key for a tenant-scoped resource kind.
func Key(tenantID int64, kind string) string {
	return fmt.Sprintf("lumbung:%d:%s", tenantID, kind)
}

// Invalidate removes the cached entry for the tenant and resource kind.
func (i *Invalidator) Invalidate(ctx context.Context, tenantID int64, kind string) {
	if i == nil || i.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := i.client.Del(ctx, Key(tenantID, kind)).Err(); err != nil {
		if i.logger != nil {
			i.logger.Warn("cache invalidate failed",
				slog.Int64("tenant_id", tenantID),
				slog.String("kind", kind),
				slog.Any("error", err))
		}
	}
}
