package transfer

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

// Repository is the pgx-backed transfer store.
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

func (r *Repository) GetTransfer(ctx context.Context, tenantID, id int64) (StockTransfer, []Line, error) {
	var tr StockTransfer
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, number, source_warehouse_id, destination_warehouse_id,
		       status, COALESCE(note, ''), actor_id, created_at, sent_at, completed_at
		FROM stock_transfers
		WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(
		&tr.ID, &tr.TenantID, &tr.Number, &tr.SourceID, &tr.DestinationID,
		&tr.Status, &tr.Note, &tr.ActorID, &tr.CreatedAt, &tr.SentAt, &tr.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockTransfer{}, nil, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return StockTransfer{}, nil, fmt.Errorf("get transfer: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, transfer_id, product_id, qty
		FROM stock_transfer_lines
		WHERE transfer_id = $1
		ORDER BY id`, id)
	if err != nil {
		return StockTransfer{}, nil, fmt.Errorf("list transfer lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.TransferID, &line.ProductID, &line.Qty); err != nil {
			return StockTransfer{}, nil, fmt.Errorf("scan transfer line: %w", err)
		}
		lines = append(lines, line)
	}
	return tr, lines, rows.Err()
}

func (r *Repository) ListTransfers(ctx context.Context, tenantID int64, page, perPage int) ([]StockTransfer, shared.Pagination, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM stock_transfers WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("count transfers: %w", err)
	}
	p := shared.NewPagination(page, perPage, total)

	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, number, source_warehouse_id, destination_warehouse_id,
		       status, COALESCE(note, ''), actor_id, created_at, sent_at, completed_at
		FROM stock_transfers
		WHERE tenant_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`, tenantID, p.PerPage, p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []StockTransfer
	for rows.Next() {
		var tr StockTransfer
		if err := rows.Scan(&tr.ID, &tr.TenantID, &tr.Number, &tr.SourceID, &tr.DestinationID,
			&tr.Status, &tr.Note, &tr.ActorID, &tr.CreatedAt, &tr.SentAt, &tr.CompletedAt); err != nil {
			return nil, p, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, tr)
	}
	return out, p, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) InsertTransfer(ctx context.Context, tr StockTransfer) (StockTransfer, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_transfers
			(tenant_id, number, source_warehouse_id, destination_warehouse_id, status, note, actor_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING id, created_at`,
		tr.TenantID, tr.Number, tr.SourceID, tr.DestinationID, tr.Status, tr.Note, tr.ActorID,
	).Scan(&tr.ID, &tr.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return StockTransfer{}, fmt.Errorf("%w: transfer number %s already exists", shared.ErrValidation, tr.Number)
		}
		return StockTransfer{}, fmt.Errorf("insert transfer: %w", err)
	}
	return tr, nil
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_transfer_lines (transfer_id, product_id, qty)
		VALUES ($1, $2, $3)`,
		line.TransferID, line.ProductID, line.Qty)
	if err != nil {
		return fmt.Errorf("insert transfer line: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateStatus(ctx context.Context, transferID int64, from, to Status) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE stock_transfers SET
			status = $1,
			sent_at = CASE WHEN $1 = 'IN_TRANSIT' THEN now() ELSE sent_at END,
			completed_at = CASE WHEN $1 = 'COMPLETED' THEN now() ELSE completed_at END
		WHERE id = $2 AND status = $3`,
		to, transferID, from)
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transfer %d is no longer %s", shared.ErrInvalidState, transferID, from)
	}
	return nil
}

func (t *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(t.tx)
}
