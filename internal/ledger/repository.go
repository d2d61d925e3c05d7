package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Danu-Nur/lumbung-sub003/internal/platform/db"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the recorder.
type TxRepository interface {
	LockBatch(ctx context.Context, tenantID, batchID int64) (StockBatch, error)
	LockOrCreateBatch(ctx context.Context, tenantID, productID, warehouseID int64) (StockBatch, error)
	// LockPairBatches locks every batch of the pair, rolled-up row
	// first, then lot rows oldest receipt first.
	LockPairBatches(ctx context.Context, tenantID, productID, warehouseID int64) ([]StockBatch, error)
	CreateBatch(ctx context.Context, batch StockBatch) (StockBatch, error)
	SaveBatchQty(ctx context.Context, batchID, qtyOnHand, availableQty int64) error
	InsertMovement(ctx context.Context, mv Movement) (Movement, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction so workflow repositories
// can post movements inside their own transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const batchColumns = `id, tenant_id, product_id, warehouse_id, COALESCE(supplier_id, 0), COALESCE(unit_cost, 0), COALESCE(lot_ref, ''), received_at, qty_on_hand, allocated_qty, available_qty, updated_at`

func scanBatch(row pgx.Row) (StockBatch, error) {
	var b StockBatch
	err := row.Scan(&b.ID, &b.TenantID, &b.ProductID, &b.WarehouseID, &b.SupplierID, &b.UnitCost, &b.LotRef, &b.ReceivedAt, &b.QtyOnHand, &b.AllocatedQty, &b.AvailableQty, &b.UpdatedAt)
	return b, err
}

// LockBatch acquires the row lock on a specific batch. NOWAIT keeps the
// wait bounded; a held lock surfaces as the retryable contention error.
func (t *txRepository) LockBatch(ctx context.Context, tenantID, batchID int64) (StockBatch, error) {
	b, err := scanBatch(t.tx.QueryRow(ctx, `SELECT `+batchColumns+`
FROM stock_batches WHERE id=$1 AND tenant_id=$2 FOR UPDATE NOWAIT`, batchID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockBatch{}, ErrBatchNotFound
		}
		return StockBatch{}, db.MapLockError(err)
	}
	return b, nil
}

// LockOrCreateBatch locks the rolled-up batch for the pair, inserting a
// zero-quantity row first if none exists. The insert uses ON CONFLICT DO
// NOTHING so two concurrent first movements serialize on the same row.
func (t *txRepository) LockOrCreateBatch(ctx context.Context, tenantID, productID, warehouseID int64) (StockBatch, error) {
	const lockSQL = `SELECT ` + batchColumns + `
FROM stock_batches WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3 AND lot_ref IS NULL FOR UPDATE NOWAIT`

	b, err := scanBatch(t.tx.QueryRow(ctx, lockSQL, tenantID, productID, warehouseID))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return StockBatch{}, db.MapLockError(err)
	}

	_, err = t.tx.Exec(ctx, `INSERT INTO stock_batches (tenant_id, product_id, warehouse_id, qty_on_hand, allocated_qty, available_qty, updated_at)
VALUES ($1, $2, $3, 0, 0, 0, NOW())
ON CONFLICT (tenant_id, product_id, warehouse_id) WHERE lot_ref IS NULL DO NOTHING`, tenantID, productID, warehouseID)
	if err != nil {
		return StockBatch{}, err
	}

	b, err = scanBatch(t.tx.QueryRow(ctx, lockSQL, tenantID, productID, warehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockBatch{}, ErrBatchNotFound
		}
		return StockBatch{}, db.MapLockError(err)
	}
	return b, nil
}

// LockPairBatches locks all batches holding stock for the pair: the
// rolled-up row plus any lot rows from purchase receipts. The NULLS FIRST
// ordering puts the rollup ahead of the lots and keeps the lock order
// stable across concurrent transactions.
func (t *txRepository) LockPairBatches(ctx context.Context, tenantID, productID, warehouseID int64) ([]StockBatch, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+batchColumns+`
FROM stock_batches WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3
ORDER BY received_at NULLS FIRST, id FOR UPDATE NOWAIT`, tenantID, productID, warehouseID)
	if err != nil {
		return nil, db.MapLockError(err)
	}
	defer rows.Close()

	var batches []StockBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, db.MapLockError(err)
		}
		batches = append(batches, b)
	}
	return batches, db.MapLockError(rows.Err())
}

func (t *txRepository) CreateBatch(ctx context.Context, batch StockBatch) (StockBatch, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO stock_batches (tenant_id, product_id, warehouse_id, supplier_id, unit_cost, lot_ref, received_at, qty_on_hand, allocated_qty, available_qty, updated_at)
VALUES ($1, $2, $3, NULLIF($4, 0), $5, NULLIF($6, ''), $7, $8, $9, $10, NOW())
RETURNING id, updated_at`, batch.TenantID, batch.ProductID, batch.WarehouseID, batch.SupplierID, batch.UnitCost, batch.LotRef, batch.ReceivedAt, batch.QtyOnHand, batch.AllocatedQty, batch.AvailableQty)
	if err := row.Scan(&batch.ID, &batch.UpdatedAt); err != nil {
		return StockBatch{}, err
	}
	return batch, nil
}

func (t *txRepository) SaveBatchQty(ctx context.Context, batchID, qtyOnHand, availableQty int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_batches SET qty_on_hand=$2, available_qty=$3, updated_at=NOW() WHERE id=$1`, batchID, qtyOnHand, availableQty)
	return err
}

func (t *txRepository) InsertMovement(ctx context.Context, mv Movement) (Movement, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO stock_movements (tenant_id, product_id, warehouse_id, batch_id, qty, kind, ref_kind, ref_id, actor_id, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
RETURNING id, created_at`, mv.TenantID, mv.ProductID, mv.WarehouseID, mv.BatchID, mv.Qty, string(mv.Kind), mv.RefKind, mv.RefID, mv.ActorID, mv.Note)
	if err := row.Scan(&mv.ID, &mv.CreatedAt); err != nil {
		return Movement{}, err
	}
	return mv, nil
}

// GetBatch returns the rolled-up batch for a (product, warehouse) pair.
func (r *Repository) GetBatch(ctx context.Context, tenantID, productID, warehouseID int64) (StockBatch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+`
FROM stock_batches WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3 AND lot_ref IS NULL`, tenantID, productID, warehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockBatch{}, ErrBatchNotFound
		}
		return StockBatch{}, err
	}
	return b, nil
}

// ListBatches lists batches stocked in a warehouse.
func (r *Repository) ListBatches(ctx context.Context, tenantID, warehouseID int64) ([]StockBatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+`
FROM stock_batches WHERE tenant_id=$1 AND warehouse_id=$2 ORDER BY product_id, id`, tenantID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batches := []StockBatch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListMovements lists ledger entries with optional filters, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	where := ` WHERE tenant_id=$1`
	args := []interface{}{filter.TenantID}
	argCount := 1

	if filter.ProductID != 0 {
		argCount++
		where += ` AND product_id=$` + strconv.Itoa(argCount)
		args = append(args, filter.ProductID)
	}
	if filter.WarehouseID != 0 {
		argCount++
		where += ` AND warehouse_id=$` + strconv.Itoa(argCount)
		args = append(args, filter.WarehouseID)
	}
	if filter.Kind != "" {
		argCount++
		where += ` AND kind=$` + strconv.Itoa(argCount)
		args = append(args, string(filter.Kind))
	}
	if !filter.From.IsZero() {
		argCount++
		where += ` AND created_at >= $` + strconv.Itoa(argCount)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		argCount++
		where += ` AND created_at <= $` + strconv.Itoa(argCount)
		args = append(args, filter.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements`+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)

	argCount++
	limitArg := strconv.Itoa(argCount)
	argCount++
	offsetArg := strconv.Itoa(argCount)
	args = append(args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, product_id, warehouse_id, batch_id, qty, kind, ref_kind, ref_id, actor_id, note, created_at
FROM stock_movements`+where+` ORDER BY created_at DESC, id DESC LIMIT $`+limitArg+` OFFSET $`+offsetArg, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		var mv Movement
		var kind string
		if err := rows.Scan(&mv.ID, &mv.TenantID, &mv.ProductID, &mv.WarehouseID, &mv.BatchID, &mv.Qty, &kind, &mv.RefKind, &mv.RefID, &mv.ActorID, &mv.Note, &mv.CreatedAt); err != nil {
			return nil, shared.Pagination{}, err
		}
		mv.Kind = MovementKind(kind)
		movements = append(movements, mv)
	}
	return movements, page, rows.Err()
}

// CheckConsistency returns (product, warehouse) pairs whose batch
// quantities, summed across rollup and lot rows, disagree with the ledger
// sum. Full-ledger aggregation is reserved for this audit path.
func (r *Repository) CheckConsistency(ctx context.Context, tenantID int64) ([]Discrepancy, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.product_id, b.warehouse_id, COALESCE(m.ledger_qty, 0), SUM(b.qty_on_hand)
FROM stock_batches b
LEFT JOIN (
	SELECT product_id, warehouse_id, SUM(qty) AS ledger_qty
	FROM stock_movements WHERE tenant_id=$1
	GROUP BY product_id, warehouse_id
) m ON m.product_id = b.product_id AND m.warehouse_id = b.warehouse_id
WHERE b.tenant_id=$1
GROUP BY b.product_id, b.warehouse_id, m.ledger_qty
HAVING COALESCE(m.ledger_qty, 0) <> SUM(b.qty_on_hand)`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var discrepancies []Discrepancy
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.ProductID, &d.WarehouseID, &d.LedgerQty, &d.BatchQty); err != nil {
			return nil, err
		}
		discrepancies = append(discrepancies, d)
	}
	return discrepancies, rows.Err()
}
