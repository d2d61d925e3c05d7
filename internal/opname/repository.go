package opname

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Danu-Nur/lumbung-sub003/internal/adjustment"
	"github.com/Danu-Nur/lumbung-sub003/internal/platform/db"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// Repository is the pgx-backed opname store.
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

func (r *Repository) GetOpname(ctx context.Context, tenantID, id int64) (StockOpname, []Line, error) {
	var op StockOpname
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, number, warehouse_id, status, COALESCE(note, ''),
		       actor_id, created_at, started_at, finalized_at
		FROM stock_opnames
		WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(
		&op.ID, &op.TenantID, &op.Number, &op.WarehouseID, &op.Status, &op.Note,
		&op.ActorID, &op.CreatedAt, &op.StartedAt, &op.FinalizedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockOpname{}, nil, fmt.Errorf("%w: opname %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return StockOpname{}, nil, fmt.Errorf("get opname: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, opname_id, product_id, system_qty, counted_qty,
		       COALESCE(counted_by, 0), counted_at
		FROM stock_opname_lines
		WHERE opname_id = $1
		ORDER BY product_id`, id)
	if err != nil {
		return StockOpname{}, nil, fmt.Errorf("list opname lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OpnameID, &line.ProductID, &line.SystemQty,
			&line.CountedQty, &line.CountedBy, &line.CountedAt); err != nil {
			return StockOpname{}, nil, fmt.Errorf("scan opname line: %w", err)
		}
		lines = append(lines, line)
	}
	return op, lines, rows.Err()
}

func (r *Repository) ListOpnames(ctx context.Context, tenantID int64, page, perPage int) ([]StockOpname, shared.Pagination, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM stock_opnames WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("count opnames: %w", err)
	}
	p := shared.NewPagination(page, perPage, total)

	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, number, warehouse_id, status, COALESCE(note, ''),
		       actor_id, created_at, started_at, finalized_at
		FROM stock_opnames
		WHERE tenant_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`, tenantID, p.PerPage, p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("list opnames: %w", err)
	}
	defer rows.Close()

	var out []StockOpname
	for rows.Next() {
		var op StockOpname
		if err := rows.Scan(&op.ID, &op.TenantID, &op.Number, &op.WarehouseID, &op.Status, &op.Note,
			&op.ActorID, &op.CreatedAt, &op.StartedAt, &op.FinalizedAt); err != nil {
			return nil, p, fmt.Errorf("scan opname: %w", err)
		}
		out = append(out, op)
	}
	return out, p, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) InsertOpname(ctx context.Context, op StockOpname) (StockOpname, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_opnames (tenant_id, number, warehouse_id, status, note, actor_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id, created_at`,
		op.TenantID, op.Number, op.WarehouseID, op.Status, op.Note, op.ActorID,
	).Scan(&op.ID, &op.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return StockOpname{}, fmt.Errorf("%w: opname number %s already exists", shared.ErrValidation, op.Number)
		}
		return StockOpname{}, fmt.Errorf("insert opname: %w", err)
	}
	return op, nil
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_opname_lines (opname_id, product_id, system_qty)
		VALUES ($1, $2, $3)`,
		line.OpnameID, line.ProductID, line.SystemQty)
	if err != nil {
		return fmt.Errorf("insert opname line: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateStatus(ctx context.Context, opnameID int64, from, to Status) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE stock_opnames SET
			status = $1,
			started_at = CASE WHEN $1 = 'IN_PROGRESS' THEN now() ELSE started_at END,
			finalized_at = CASE WHEN $1 = 'COMPLETED' THEN now() ELSE finalized_at END
		WHERE id = $2 AND status = $3`,
		to, opnameID, from)
	if err != nil {
		return fmt.Errorf("update opname status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: opname %d is no longer %s", shared.ErrInvalidState, opnameID, from)
	}
	return nil
}

func (t *txRepository) UpsertCount(ctx context.Context, opnameID, productID, qty, actorID int64) error {
	// FOR SHARE blocks against a concurrent finalization holding the row
	// lock; once that commits the status check below rejects the count.
	var status Status
	err := t.tx.QueryRow(ctx, `
		SELECT status FROM stock_opnames WHERE id = $1 FOR SHARE`, opnameID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: opname %d", shared.ErrNotFound, opnameID)
	}
	if err != nil {
		return fmt.Errorf("lock opname for count: %w", err)
	}
	if status != StatusInProgress {
		return fmt.Errorf("%w: opname %d is %s, counts only accepted while IN_PROGRESS", shared.ErrInvalidState, opnameID, status)
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE stock_opname_lines
		SET counted_qty = $1, counted_by = $2, counted_at = now()
		WHERE opname_id = $3 AND product_id = $4`,
		qty, actorID, opnameID, productID)
	if err != nil {
		return fmt.Errorf("update opname count: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// surplus: product found on the floor but absent from the snapshot
	_, err = t.tx.Exec(ctx, `
		INSERT INTO stock_opname_lines (opname_id, product_id, system_qty, counted_qty, counted_by, counted_at)
		VALUES ($1, $2, 0, $3, $4, now())`,
		opnameID, productID, qty, actorID)
	if err != nil {
		return fmt.Errorf("insert opname count: %w", err)
	}
	return nil
}

func (t *txRepository) Lines(ctx context.Context, opnameID int64) ([]Line, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, opname_id, product_id, system_qty, counted_qty,
		       COALESCE(counted_by, 0), counted_at
		FROM stock_opname_lines
		WHERE opname_id = $1
		ORDER BY product_id`, opnameID)
	if err != nil {
		return nil, fmt.Errorf("list opname lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OpnameID, &line.ProductID, &line.SystemQty,
			&line.CountedQty, &line.CountedBy, &line.CountedAt); err != nil {
			return nil, fmt.Errorf("scan opname line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// WarehouseStock sums on-hand stock per product across all batches, lot
// rows included, so received goods appear on the count sheet.
func (t *txRepository) WarehouseStock(ctx context.Context, tenantID, warehouseID int64) ([]StockLevel, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT product_id, COALESCE(SUM(qty_on_hand), 0)
		FROM stock_batches
		WHERE tenant_id = $1 AND warehouse_id = $2
		GROUP BY product_id
		ORDER BY product_id`, tenantID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("snapshot warehouse stock: %w", err)
	}
	defer rows.Close()

	var out []StockLevel
	for rows.Next() {
		var level StockLevel
		if err := rows.Scan(&level.ProductID, &level.Qty); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		out = append(out, level)
	}
	return out, rows.Err()
}

func (t *txRepository) Adjustments() adjustment.TxRepository {
	return adjustment.NewTxRepository(t.tx)
}
