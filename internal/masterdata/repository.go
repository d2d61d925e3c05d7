package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// Repository resolves products and warehouses against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ResolveProduct loads a product and performs the ownership and validity
// checks every workflow entry point needs: unknown or soft-deleted rows
// surface ErrNotFound, rows owned by another tenant ErrTenantMismatch.
func (r *Repository) ResolveProduct(ctx context.Context, tenantID, productID int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, tenant_id, sku, name, unit, cost_price, selling_price, low_stock_threshold, deleted_at
FROM products WHERE id=$1`, productID)
	var p Product
	if err := row.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.Unit, &p.CostPrice, &p.SellingPrice, &p.LowStockThreshold, &p.DeletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
		}
		return Product{}, err
	}
	return p, checkProduct(p, tenantID)
}

// ResolveWarehouse loads a warehouse with the same ownership checks, plus
// an active-flag check since stock cannot move through an inactive site.
func (r *Repository) ResolveWarehouse(ctx context.Context, tenantID, warehouseID int64) (Warehouse, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, tenant_id, code, name, active, deleted_at
FROM warehouses WHERE id=$1`, warehouseID)
	var w Warehouse
	if err := row.Scan(&w.ID, &w.TenantID, &w.Code, &w.Name, &w.Active, &w.DeletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, fmt.Errorf("%w: warehouse %d", shared.ErrNotFound, warehouseID)
		}
		return Warehouse{}, err
	}
	return w, checkWarehouse(w, tenantID)
}

// ProductBySKU resolves a product by its tenant-unique SKU. Used by the
// bulk importer which works with human-entered identifiers.
func (r *Repository) ProductBySKU(ctx context.Context, tenantID int64, sku string) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, tenant_id, sku, name, unit, cost_price, selling_price, low_stock_threshold, deleted_at
FROM products WHERE tenant_id=$1 AND sku=$2`, tenantID, sku)
	var p Product
	if err := row.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.Unit, &p.CostPrice, &p.SellingPrice, &p.LowStockThreshold, &p.DeletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: SKU %s", shared.ErrNotFound, sku)
		}
		return Product{}, err
	}
	return p, checkProduct(p, tenantID)
}

// WarehouseByCode resolves a warehouse by its tenant-unique code.
func (r *Repository) WarehouseByCode(ctx context.Context, tenantID int64, code string) (Warehouse, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, tenant_id, code, name, active, deleted_at
FROM warehouses WHERE tenant_id=$1 AND code=$2`, tenantID, code)
	var w Warehouse
	if err := row.Scan(&w.ID, &w.TenantID, &w.Code, &w.Name, &w.Active, &w.DeletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, fmt.Errorf("%w: warehouse %s", shared.ErrNotFound, code)
		}
		return Warehouse{}, err
	}
	return w, checkWarehouse(w, tenantID)
}

// UpdateCostPrice writes the latest receipt cost onto the product and
// appends a price history row, inside the caller's open transaction so the
// price change commits or rolls back with the stock receipt.
func UpdateCostPrice(ctx context.Context, tx pgx.Tx, tenantID, productID int64, cost float64, source string) error {
	tag, err := tx.Exec(ctx, `UPDATE products SET cost_price=$1, updated_at=now()
WHERE id=$2 AND tenant_id=$3 AND deleted_at IS NULL`, cost, productID, tenantID)
	if err != nil {
		return fmt.Errorf("update cost price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
	}
	_, err = tx.Exec(ctx, `INSERT INTO product_price_history (tenant_id, product_id, cost_price, source)
VALUES ($1, $2, $3, $4)`, tenantID, productID, cost, source)
	if err != nil {
		return fmt.Errorf("insert price history: %w", err)
	}
	return nil
}

func checkProduct(p Product, tenantID int64) error {
	if p.DeletedAt != nil {
		return fmt.Errorf("%w: product %s deleted", shared.ErrNotFound, p.SKU)
	}
	if p.TenantID != tenantID {
		return fmt.Errorf("%w: product %d", shared.ErrTenantMismatch, p.ID)
	}
	return nil
}

func checkWarehouse(w Warehouse, tenantID int64) error {
	if w.DeletedAt != nil {
		return fmt.Errorf("%w: warehouse %s deleted", shared.ErrNotFound, w.Code)
	}
	if w.TenantID != tenantID {
		return fmt.Errorf("%w: warehouse %d", shared.ErrTenantMismatch, w.ID)
	}
	if !w.Active {
		return fmt.Errorf("%w: warehouse %s is inactive", shared.ErrValidation, w.Code)
	}
	return nil
}
