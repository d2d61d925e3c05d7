package adjustment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/platform/db"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// Repository persists adjustments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so other workflows, such as
// the opname finalizer, can post adjustments atomically with their own
// rows.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (t *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(t.tx)
}

func (t *txRepository) InsertAdjustment(ctx context.Context, adj StockAdjustment) (StockAdjustment, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO stock_adjustments (tenant_id, product_id, warehouse_id, direction, qty, reason, note, actor_id, source_kind, source_id, reversal_of_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, 0), NULLIF($11, 0), NOW())
RETURNING id, created_at`,
		adj.TenantID, adj.ProductID, adj.WarehouseID, string(adj.Direction), adj.Qty, adj.Reason, adj.Note, adj.ActorID, adj.SourceKind, adj.SourceID, adj.ReversalOfID)
	if err := row.Scan(&adj.ID, &adj.CreatedAt); err != nil {
		return StockAdjustment{}, err
	}
	return adj, nil
}

func (t *txRepository) SetMovement(ctx context.Context, adjustmentID, movementID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_adjustments SET movement_id=$2 WHERE id=$1`, adjustmentID, movementID)
	return err
}

func (t *txRepository) MarkReversed(ctx context.Context, adjustmentID, reversalID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_adjustments SET reversed_by_id=$2 WHERE id=$1 AND reversed_by_id IS NULL`, adjustmentID, reversalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: adjustment %d already reversed", shared.ErrInvalidState, adjustmentID)
	}
	return nil
}

const adjustmentColumns = `id, tenant_id, product_id, warehouse_id, direction, qty, reason, note, actor_id, COALESCE(movement_id, 0), COALESCE(source_kind, ''), COALESCE(source_id, 0), COALESCE(reversal_of_id, 0), COALESCE(reversed_by_id, 0), created_at`

func scanAdjustment(row pgx.Row) (StockAdjustment, error) {
	var a StockAdjustment
	var direction string
	err := row.Scan(&a.ID, &a.TenantID, &a.ProductID, &a.WarehouseID, &direction, &a.Qty, &a.Reason, &a.Note, &a.ActorID, &a.MovementID, &a.SourceKind, &a.SourceID, &a.ReversalOfID, &a.ReversedByID, &a.CreatedAt)
	a.Direction = Direction(direction)
	return a, err
}

// GetAdjustment loads one adjustment scoped to the tenant.
func (r *Repository) GetAdjustment(ctx context.Context, tenantID, id int64) (StockAdjustment, error) {
	a, err := scanAdjustment(r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+`
FROM stock_adjustments WHERE id=$1 AND tenant_id=$2`, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockAdjustment{}, fmt.Errorf("%w: adjustment %d", shared.ErrNotFound, id)
		}
		return StockAdjustment{}, err
	}
	return a, nil
}

// ListAdjustments returns adjustments for the tenant, newest first.
func (r *Repository) ListAdjustments(ctx context.Context, tenantID int64, page, perPage int) ([]StockAdjustment, shared.Pagination, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_adjustments WHERE tenant_id=$1`, tenantID).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, total)

	rows, err := r.pool.Query(ctx, `SELECT `+adjustmentColumns+`
FROM stock_adjustments WHERE tenant_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, tenantID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	adjustments := []StockAdjustment{}
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, p, rows.Err()
}
