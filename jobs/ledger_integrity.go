package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
)

// scanParallelism bounds concurrent per-tenant scans.
const scanParallelism = 4

// IntegrityScanner verifies that the stock on hand of every (product,
// warehouse) pair equals the sum of its ledger movements. It never
// repairs anything, only reports: drift
// here means a bug or manual meddling, and both deserve a human.
type IntegrityScanner struct {
	pool   *pgxpool.Pool
	ledger ledger.RepositoryPort
	logger *slog.Logger
}

// NewIntegrityScanner constructs the scanner.
func NewIntegrityScanner(pool *pgxpool.Pool, repo ledger.RepositoryPort, logger *slog.Logger) *IntegrityScanner {
	return &IntegrityScanner{pool: pool, ledger: repo, logger: logger}
}

// Handle processes TaskLedgerIntegrity tasks.
func (s *IntegrityScanner) Handle(ctx context.Context, t *asynq.Task) error {
	_ = t
	return s.Scan(ctx)
}

// Scan fans out over all tenants with stock and logs every discrepancy.
func (s *IntegrityScanner) Scan(ctx context.Context) error {
	tenants, err := s.tenantIDs(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanParallelism)
	for _, tenantID := range tenants {
		g.Go(func() error {
			discrepancies, err := s.ledger.CheckConsistency(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("tenant %d: %w", tenantID, err)
			}
			for _, d := range discrepancies {
				s.logger.Error("ledger drift detected",
					slog.Int64("tenant_id", tenantID),
					slog.Int64("product_id", d.ProductID),
					slog.Int64("warehouse_id", d.WarehouseID),
					slog.Int64("ledger_qty", d.LedgerQty),
					slog.Int64("batch_qty", d.BatchQty))
			}
			if len(discrepancies) == 0 {
				s.logger.Info("ledger consistent", slog.Int64("tenant_id", tenantID))
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *IntegrityScanner) tenantIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM stock_batches ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
