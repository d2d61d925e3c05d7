package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Danu-Nur/lumbung-sub003/internal/platform/cache"
)

// statsTTL bounds staleness of the cached aggregate when no further
// movements arrive.
const statsTTL = 24 * time.Hour

// StockStats is the cached per-tenant aggregate.
type StockStats struct {
	TenantID   int64     `json:"tenant_id"`
	Batches    int64     `json:"batches"`
	TotalQty   int64     `json:"total_qty"`
	TotalValue float64   `json:"total_value"`
	ComputedAt time.Time `json:"computed_at"`
}

// StatsRecomputer rebuilds tenant stock aggregates from the batch table
// and caches the result in redis.
type StatsRecomputer struct {
	pool   *pgxpool.Pool
	redis  *redis.Client
	logger *slog.Logger
}

// NewStatsRecomputer constructs the recomputer.
func NewStatsRecomputer(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) *StatsRecomputer {
	return &StatsRecomputer{pool: pool, redis: rdb, logger: logger}
}

// Handle processes TaskStatsRecompute tasks.
func (s *StatsRecomputer) Handle(ctx context.Context, t *asynq.Task) error {
	var payload StatsRecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	stats, err := s.Recompute(ctx, payload.TenantID)
	if err != nil {
		return err
	}
	s.logger.Info("stock stats recomputed",
		slog.Int64("tenant_id", stats.TenantID),
		slog.Int64("total_qty", stats.TotalQty),
		slog.Float64("total_value", stats.TotalValue))
	return nil
}

// Recompute aggregates batch quantity and value for the tenant and writes
// the result to the tenant stats cache key.
func (s *StatsRecomputer) Recompute(ctx context.Context, tenantID int64) (StockStats, error) {
	stats := StockStats{TenantID: tenantID, ComputedAt: time.Now()}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(qty_on_hand), 0), COALESCE(SUM(qty_on_hand * unit_cost), 0)
		FROM stock_batches
		WHERE tenant_id = $1`, tenantID).Scan(&stats.Batches, &stats.TotalQty, &stats.TotalValue)
	if err != nil {
		return StockStats{}, fmt.Errorf("aggregate stock stats: %w", err)
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return StockStats{}, err
	}
	if err := s.redis.Set(ctx, cache.Key(tenantID, "stats"), data, statsTTL).Err(); err != nil {
		return StockStats{}, fmt.Errorf("cache stock stats: %w", err)
	}
	return stats, nil
}
