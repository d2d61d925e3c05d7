package receiving

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/masterdata"
	"github.com/Danu-Nur/lumbung-sub003/internal/platform/db"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// Repository is the pgx-backed receiving store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) GetOrder(ctx context.Context, tenantID, id int64) (PurchaseOrder, []OrderLine, error) {
	var po PurchaseOrder
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, number, supplier_id, status, created_at, received_at
		FROM purchase_orders
		WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(
		&po.ID, &po.TenantID, &po.Number, &po.SupplierID, &po.Status, &po.CreatedAt, &po.ReceivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, nil, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return PurchaseOrder{}, nil, fmt.Errorf("get purchase order: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, warehouse_id, qty, unit_cost
		FROM purchase_order_lines
		WHERE order_id = $1
		ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.WarehouseID, &line.Qty, &line.UnitCost); err != nil {
			return PurchaseOrder{}, nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	return po, lines, rows.Err()
}

func (r *Repository) ListOrders(ctx context.Context, tenantID int64, page, perPage int) ([]PurchaseOrder, shared.Pagination, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM purchase_orders WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("count purchase orders: %w", err)
	}
	p := shared.NewPagination(page, perPage, total)

	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, number, supplier_id, status, created_at, received_at
		FROM purchase_orders
		WHERE tenant_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`, tenantID, p.PerPage, p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("list purchase orders: %w", err)
	}
	defer rows.Close()

	var out []PurchaseOrder
	for rows.Next() {
		var po PurchaseOrder
		if err := rows.Scan(&po.ID, &po.TenantID, &po.Number, &po.SupplierID, &po.Status, &po.CreatedAt, &po.ReceivedAt); err != nil {
			return nil, p, fmt.Errorf("scan purchase order: %w", err)
		}
		out = append(out, po)
	}
	return out, p, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) MarkReceived(ctx context.Context, orderID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_orders SET received_at = $1
		WHERE id = $2 AND status = 'COMPLETED' AND received_at IS NULL`,
		at, orderID)
	if err != nil {
		return fmt.Errorf("mark order received: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase order %d already received or not receivable", shared.ErrInvalidState, orderID)
	}
	return nil
}

func (t *txRepository) UpdateProductCost(ctx context.Context, tenantID, productID int64, cost float64, source string) error {
	return masterdata.UpdateCostPrice(ctx, t.tx, tenantID, productID, cost, source)
}

func (t *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(t.tx)
}
