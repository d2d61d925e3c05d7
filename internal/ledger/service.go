package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Danu-Nur/lumbung-sub003/internal/masterdata"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// RepositoryPort abstracts repository usage for the recorder.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBatch(ctx context.Context, tenantID, productID, warehouseID int64) (StockBatch, error)
	ListBatches(ctx context.Context, tenantID, warehouseID int64) ([]StockBatch, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error)
	CheckConsistency(ctx context.Context, tenantID int64) ([]Discrepancy, error)
}

// RefDataPort validates products and warehouses against master data. It
// re-checks tenant ownership on every call rather than trusting caller ids.
type RefDataPort interface {
	ResolveProduct(ctx context.Context, tenantID, productID int64) (masterdata.Product, error)
	ResolveWarehouse(ctx context.Context, tenantID, warehouseID int64) (masterdata.Warehouse, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached tenant aggregates after stock changes.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID int64, kind string)
}

// Recorder is the single choke point for stock mutations. Every workflow
// goes through it; nothing else writes stock batch quantities.
type Recorder struct {
	repo        RepositoryPort
	refs        RefDataPort
	audit       AuditPort
	invalidator Invalidator
	logger      *slog.Logger
}

// NewRecorder builds a Recorder.
func NewRecorder(repo RepositoryPort, refs RefDataPort, audit AuditPort, invalidator Invalidator, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, refs: refs, audit: audit, invalidator: invalidator, logger: logger}
}

// Record appends one movement and updates the targeted batch in a single
// transaction.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (Movement, error) {
	var mv Movement
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		mv, err = r.RecordInTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	r.Notify(ctx, in.TenantID, []Movement{mv})
	return mv, nil
}

// RecordAll applies several movements in one transaction. If any movement
// fails, none are committed.
func (r *Recorder) RecordAll(ctx context.Context, tenantID int64, ins []RecordInput) ([]Movement, error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%w: no movements to record", shared.ErrValidation)
	}
	movements := make([]Movement, 0, len(ins))
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, in := range ins {
			mv, err := r.RecordInTx(ctx, tx, in)
			if err != nil {
				return err
			}
			movements = append(movements, mv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.Notify(ctx, tenantID, movements)
	return movements, nil
}

// RecordInTx runs the recorder core against an open ledger transaction.
// Workflow services use it to post movements atomically with their own
// rows; they are responsible for calling Notify after the commit.
func (r *Recorder) RecordInTx(ctx context.Context, tx TxRepository, in RecordInput) (Movement, error) {
	if in.Qty == 0 {
		return Movement{}, fmt.Errorf("%w: quantity must be non zero", shared.ErrValidation)
	}
	if in.Kind == "" || in.RefKind == "" {
		return Movement{}, fmt.Errorf("%w: movement kind and reference required", shared.ErrValidation)
	}
	product, err := r.refs.ResolveProduct(ctx, in.TenantID, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	warehouse, err := r.refs.ResolveWarehouse(ctx, in.TenantID, in.WarehouseID)
	if err != nil {
		return Movement{}, err
	}

	var batchID int64
	if in.BatchID == 0 && in.Qty < 0 {
		batchID, err = r.drainPair(ctx, tx, in, product, warehouse)
	} else {
		batchID, err = r.applyToBatch(ctx, tx, in, product, warehouse)
	}
	if err != nil {
		return Movement{}, err
	}

	mv := Movement{
		TenantID:    in.TenantID,
		ProductID:   in.ProductID,
		WarehouseID: in.WarehouseID,
		BatchID:     batchID,
		Qty:         in.Qty,
		Kind:        in.Kind,
		RefKind:     in.RefKind,
		RefID:       in.RefID,
		ActorID:     in.ActorID,
		Note:        in.Note,
	}
	return tx.InsertMovement(ctx, mv)
}

// applyToBatch handles movements addressing a single batch row: explicit
// batch targets and pair-level inbound stock, which always lands on the
// rolled-up batch.
func (r *Recorder) applyToBatch(ctx context.Context, tx TxRepository, in RecordInput, product masterdata.Product, warehouse masterdata.Warehouse) (int64, error) {
	batch, err := r.lockTarget(ctx, tx, in)
	if err != nil {
		return 0, err
	}
	newQty := batch.QtyOnHand + in.Qty
	if newQty < 0 {
		return 0, fmt.Errorf("%w: warehouse %s: insufficient stock for %s, requested %d, available %d",
			shared.ErrInsufficientStock, warehouse.Code, product.SKU, -in.Qty, batch.QtyOnHand)
	}
	if err := tx.SaveBatchQty(ctx, batch.ID, newQty, newQty-batch.AllocatedQty); err != nil {
		return 0, err
	}
	return batch.ID, nil
}

// drainPair handles pair-level outbound stock. Availability spans every
// batch of the pair, so lot-tracked receipts are spendable without naming
// their batch; the rollup row drains first, then lots oldest receipt
// first.
func (r *Recorder) drainPair(ctx context.Context, tx TxRepository, in RecordInput, product masterdata.Product, warehouse masterdata.Warehouse) (int64, error) {
	batches, err := tx.LockPairBatches(ctx, in.TenantID, in.ProductID, in.WarehouseID)
	if err != nil {
		return 0, err
	}
	var available int64
	for _, b := range batches {
		available += b.QtyOnHand
	}
	if available+in.Qty < 0 {
		return 0, fmt.Errorf("%w: warehouse %s: insufficient stock for %s, requested %d, available %d",
			shared.ErrInsufficientStock, warehouse.Code, product.SKU, -in.Qty, available)
	}

	remaining := -in.Qty
	var firstDrained int64
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		if b.QtyOnHand <= 0 {
			continue
		}
		take := b.QtyOnHand
		if take > remaining {
			take = remaining
		}
		newQty := b.QtyOnHand - take
		if err := tx.SaveBatchQty(ctx, b.ID, newQty, newQty-b.AllocatedQty); err != nil {
			return 0, err
		}
		if firstDrained == 0 {
			firstDrained = b.ID
		}
		remaining -= take
	}
	return firstDrained, nil
}

func (r *Recorder) lockTarget(ctx context.Context, tx TxRepository, in RecordInput) (StockBatch, error) {
	if in.BatchID != 0 {
		batch, err := tx.LockBatch(ctx, in.TenantID, in.BatchID)
		if err != nil {
			if errors.Is(err, ErrBatchNotFound) {
				return StockBatch{}, fmt.Errorf("%w: batch %d", shared.ErrNotFound, in.BatchID)
			}
			return StockBatch{}, err
		}
		if batch.ProductID != in.ProductID || batch.WarehouseID != in.WarehouseID {
			return StockBatch{}, fmt.Errorf("%w: batch %d does not belong to product %d in warehouse %d",
				shared.ErrValidation, in.BatchID, in.ProductID, in.WarehouseID)
		}
		return batch, nil
	}
	return tx.LockOrCreateBatch(ctx, in.TenantID, in.ProductID, in.WarehouseID)
}

// Notify records the audit trail and invalidates the tenant stock cache
// after a committed mutation. Both are best effort.
func (r *Recorder) Notify(ctx context.Context, tenantID int64, movements []Movement) {
	for _, mv := range movements {
		if r.audit == nil {
			break
		}
		if err := r.audit.Record(ctx, shared.AuditLog{
			TenantID: tenantID,
			ActorID:  mv.ActorID,
			Action:   fmt.Sprintf("ledger:%s", mv.Kind),
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%d", mv.ID),
			Meta: map[string]any{
				"product_id":   mv.ProductID,
				"warehouse_id": mv.WarehouseID,
				"batch_id":     mv.BatchID,
				"qty":          mv.Qty,
				"ref":          fmt.Sprintf("%s:%d", mv.RefKind, mv.RefID),
			},
		}); err != nil && r.logger != nil {
			r.logger.Warn("audit record failed", slog.Any("error", err))
		}
	}
	if r.invalidator != nil {
		r.invalidator.Invalidate(ctx, tenantID, "stock")
	}
}

// GetBatch returns the rolled-up batch for a product in a warehouse.
func (r *Recorder) GetBatch(ctx context.Context, tenantID, productID, warehouseID int64) (StockBatch, error) {
	return r.repo.GetBatch(ctx, tenantID, productID, warehouseID)
}

// ListBatches lists all batches currently stocked in a warehouse.
func (r *Recorder) ListBatches(ctx context.Context, tenantID, warehouseID int64) ([]StockBatch, error) {
	if warehouseID == 0 {
		return nil, fmt.Errorf("%w: warehouse required", shared.ErrValidation)
	}
	return r.repo.ListBatches(ctx, tenantID, warehouseID)
}

// ListMovements returns the paginated movement history.
func (r *Recorder) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	if filter.TenantID == 0 {
		return nil, shared.Pagination{}, fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	return r.repo.ListMovements(ctx, filter)
}

// CheckConsistency compares ledger sums against stored batch quantities.
// This is the audit path; the hot path never sums the ledger.
func (r *Recorder) CheckConsistency(ctx context.Context, tenantID int64) ([]Discrepancy, error) {
	return r.repo.CheckConsistency(ctx, tenantID)
}
