// Package ledgertest provides in-memory implementations of the ledger
// ports for workflow tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/masterdata"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// MemoryLedger implements ledger.RepositoryPort in memory. WithTx holds a
// mutex for the duration of the callback, mirroring the row-lock
// serialization of the real store, and rolls state back when the callback
// fails.
type MemoryLedger struct {
	mu        sync.Mutex
	batches   map[int64]ledger.StockBatch
	rollup    map[string]int64
	movements []ledger.Movement
	nextBatch int64
	nextMove  int64

	// LockErr, when set, is returned by every lock attempt. Used to
	// exercise contention handling.
	LockErr error
}

// NewMemoryLedger constructs an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		batches: make(map[int64]ledger.StockBatch),
		rollup:  make(map[string]int64),
	}
}

func rollupKey(tenantID, productID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, productID, warehouseID)
}

type memTx struct {
	l *MemoryLedger
}

// WithTx runs fn under the store mutex and restores the previous state if
// fn returns an error.
func (m *MemoryLedger) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prevBatches := make(map[int64]ledger.StockBatch, len(m.batches))
	for k, v := range m.batches {
		prevBatches[k] = v
	}
	prevRollup := make(map[string]int64, len(m.rollup))
	for k, v := range m.rollup {
		prevRollup[k] = v
	}
	prevMoves := len(m.movements)
	prevNextBatch, prevNextMove := m.nextBatch, m.nextMove

	if err := fn(ctx, &memTx{l: m}); err != nil {
		m.batches = prevBatches
		m.rollup = prevRollup
		m.movements = m.movements[:prevMoves]
		m.nextBatch, m.nextMove = prevNextBatch, prevNextMove
		return err
	}
	return nil
}

func (t *memTx) LockBatch(ctx context.Context, tenantID, batchID int64) (ledger.StockBatch, error) {
	if t.l.LockErr != nil {
		return ledger.StockBatch{}, t.l.LockErr
	}
	b, ok := t.l.batches[batchID]
	if !ok || b.TenantID != tenantID {
		return ledger.StockBatch{}, ledger.ErrBatchNotFound
	}
	return b, nil
}

func (t *memTx) LockOrCreateBatch(ctx context.Context, tenantID, productID, warehouseID int64) (ledger.StockBatch, error) {
	if t.l.LockErr != nil {
		return ledger.StockBatch{}, t.l.LockErr
	}
	key := rollupKey(tenantID, productID, warehouseID)
	if id, ok := t.l.rollup[key]; ok {
		return t.l.batches[id], nil
	}
	t.l.nextBatch++
	b := ledger.StockBatch{
		ID:          t.l.nextBatch,
		TenantID:    tenantID,
		ProductID:   productID,
		WarehouseID: warehouseID,
		UpdatedAt:   time.Now(),
	}
	t.l.batches[b.ID] = b
	t.l.rollup[key] = b.ID
	return b, nil
}

func (t *memTx) LockPairBatches(ctx context.Context, tenantID, productID, warehouseID int64) ([]ledger.StockBatch, error) {
	if t.l.LockErr != nil {
		return nil, t.l.LockErr
	}
	rollupID := t.l.rollup[rollupKey(tenantID, productID, warehouseID)]
	var out []ledger.StockBatch
	if rollupID != 0 {
		out = append(out, t.l.batches[rollupID])
	}
	var lotIDs []int64
	for id, b := range t.l.batches {
		if id == rollupID || b.TenantID != tenantID || b.ProductID != productID || b.WarehouseID != warehouseID {
			continue
		}
		lotIDs = append(lotIDs, id)
	}
	// ids are allocated in creation order, which stands in for receipt
	// order
	sort.Slice(lotIDs, func(i, j int) bool { return lotIDs[i] < lotIDs[j] })
	for _, id := range lotIDs {
		out = append(out, t.l.batches[id])
	}
	return out, nil
}

func (t *memTx) CreateBatch(ctx context.Context, batch ledger.StockBatch) (ledger.StockBatch, error) {
	t.l.nextBatch++
	batch.ID = t.l.nextBatch
	batch.UpdatedAt = time.Now()
	t.l.batches[batch.ID] = batch
	return batch, nil
}

func (t *memTx) SaveBatchQty(ctx context.Context, batchID, qtyOnHand, availableQty int64) error {
	b, ok := t.l.batches[batchID]
	if !ok {
		return ledger.ErrBatchNotFound
	}
	b.QtyOnHand = qtyOnHand
	b.AvailableQty = availableQty
	b.UpdatedAt = time.Now()
	t.l.batches[batchID] = b
	return nil
}

func (t *memTx) InsertMovement(ctx context.Context, mv ledger.Movement) (ledger.Movement, error) {
	t.l.nextMove++
	mv.ID = t.l.nextMove
	mv.CreatedAt = time.Now()
	t.l.movements = append(t.l.movements, mv)
	return mv, nil
}

// GetBatch returns the rolled-up batch for the pair.
func (m *MemoryLedger) GetBatch(ctx context.Context, tenantID, productID, warehouseID int64) (ledger.StockBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.rollup[rollupKey(tenantID, productID, warehouseID)]
	if !ok {
		return ledger.StockBatch{}, ledger.ErrBatchNotFound
	}
	return m.batches[id], nil
}

// ListBatches lists batches in a warehouse.
func (m *MemoryLedger) ListBatches(ctx context.Context, tenantID, warehouseID int64) ([]ledger.StockBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listBatchesLocked(tenantID, warehouseID), nil
}

// listBatchesLocked reads batches without taking the mutex; callers must
// already hold it.
func (m *MemoryLedger) listBatchesLocked(tenantID, warehouseID int64) []ledger.StockBatch {
	var out []ledger.StockBatch
	for _, b := range m.batches {
		if b.TenantID == tenantID && b.WarehouseID == warehouseID {
			out = append(out, b)
		}
	}
	return out
}

// ListBatches exposes batch listing inside a transaction. WithTx already
// holds the store mutex, so this must not re-acquire it.
func (t *memTx) ListBatches(ctx context.Context, tenantID, warehouseID int64) ([]ledger.StockBatch, error) {
	return t.l.listBatchesLocked(tenantID, warehouseID), nil
}

// ListMovements returns all recorded movements matching the filter.
func (m *MemoryLedger) ListMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.Movement, shared.Pagination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Movement
	for _, mv := range m.movements {
		if mv.TenantID != filter.TenantID {
			continue
		}
		if filter.ProductID != 0 && mv.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && mv.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.Kind != "" && mv.Kind != filter.Kind {
			continue
		}
		out = append(out, mv)
	}
	return out, shared.NewPagination(filter.Page, filter.PerPage, len(out)), nil
}

// CheckConsistency compares per-pair movement sums against batch
// quantities summed across rollup and lot rows.
func (m *MemoryLedger) CheckConsistency(ctx context.Context, tenantID int64) ([]ledger.Discrepancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type pair struct{ product, warehouse int64 }
	ledgerSums := make(map[pair]int64)
	for _, mv := range m.movements {
		if mv.TenantID == tenantID {
			ledgerSums[pair{mv.ProductID, mv.WarehouseID}] += mv.Qty
		}
	}
	batchSums := make(map[pair]int64)
	for _, b := range m.batches {
		if b.TenantID == tenantID {
			batchSums[pair{b.ProductID, b.WarehouseID}] += b.QtyOnHand
		}
	}
	var out []ledger.Discrepancy
	for p, qty := range batchSums {
		if ledgerSums[p] != qty {
			out = append(out, ledger.Discrepancy{ProductID: p.product, WarehouseID: p.warehouse, LedgerQty: ledgerSums[p], BatchQty: qty})
		}
	}
	return out, nil
}

// Movements returns a copy of the recorded movement log.
func (m *MemoryLedger) Movements() []ledger.Movement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Movement, len(m.movements))
	copy(out, m.movements)
	return out
}

// SeedBatch inserts a batch row directly, bypassing the recorder. Tests
// use it to set up starting quantities together with a matching opening
// movement so consistency checks still hold.
func (m *MemoryLedger) SeedBatch(tenantID, productID, warehouseID, qty int64) ledger.StockBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextBatch++
	b := ledger.StockBatch{
		ID:           m.nextBatch,
		TenantID:     tenantID,
		ProductID:    productID,
		WarehouseID:  warehouseID,
		QtyOnHand:    qty,
		AvailableQty: qty,
		UpdatedAt:    time.Now(),
	}
	m.batches[b.ID] = b
	m.rollup[rollupKey(tenantID, productID, warehouseID)] = b.ID
	m.nextMove++
	m.movements = append(m.movements, ledger.Movement{
		ID: m.nextMove, TenantID: tenantID, ProductID: productID, WarehouseID: warehouseID,
		BatchID: b.ID, Qty: qty, Kind: ledger.KindIn, RefKind: "Seed", CreatedAt: time.Now(),
	})
	return b
}

// SeedLotBatch inserts a lot-tracked batch directly, the shape a purchase
// receipt leaves behind, with a matching inbound movement.
func (m *MemoryLedger) SeedLotBatch(tenantID, productID, warehouseID, qty int64, lotRef string) ledger.StockBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.nextBatch++
	b := ledger.StockBatch{
		ID:           m.nextBatch,
		TenantID:     tenantID,
		ProductID:    productID,
		WarehouseID:  warehouseID,
		LotRef:       lotRef,
		ReceivedAt:   &now,
		QtyOnHand:    qty,
		AvailableQty: qty,
		UpdatedAt:    now,
	}
	m.batches[b.ID] = b
	m.nextMove++
	m.movements = append(m.movements, ledger.Movement{
		ID: m.nextMove, TenantID: tenantID, ProductID: productID, WarehouseID: warehouseID,
		BatchID: b.ID, Qty: qty, Kind: ledger.KindIn, RefKind: "Seed", CreatedAt: now,
	})
	return b
}

// StaticRefData implements ledger.RefDataPort over fixed maps.
type StaticRefData struct {
	Products   map[int64]masterdata.Product
	Warehouses map[int64]masterdata.Warehouse
}

// NewRefData builds a StaticRefData with the given ids registered for the
// tenant, all active and undeleted.
func NewRefData(tenantID int64, productIDs, warehouseIDs []int64) *StaticRefData {
	refs := &StaticRefData{
		Products:   make(map[int64]masterdata.Product),
		Warehouses: make(map[int64]masterdata.Warehouse),
	}
	for _, id := range productIDs {
		refs.Products[id] = masterdata.Product{ID: id, TenantID: tenantID, SKU: fmt.Sprintf("SKU-%d", id), Unit: "pcs"}
	}
	for _, id := range warehouseIDs {
		refs.Warehouses[id] = masterdata.Warehouse{ID: id, TenantID: tenantID, Code: fmt.Sprintf("WH-%d", id), Active: true}
	}
	return refs
}

// ResolveProduct mirrors the master-data ownership checks.
func (r *StaticRefData) ResolveProduct(ctx context.Context, tenantID, productID int64) (masterdata.Product, error) {
	p, ok := r.Products[productID]
	if !ok || p.DeletedAt != nil {
		return masterdata.Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
	}
	if p.TenantID != tenantID {
		return masterdata.Product{}, fmt.Errorf("%w: product %d", shared.ErrTenantMismatch, productID)
	}
	return p, nil
}

// ResolveWarehouse mirrors the master-data ownership checks.
func (r *StaticRefData) ResolveWarehouse(ctx context.Context, tenantID, warehouseID int64) (masterdata.Warehouse, error) {
	w, ok := r.Warehouses[warehouseID]
	if !ok || w.DeletedAt != nil {
		return masterdata.Warehouse{}, fmt.Errorf("%w: warehouse %d", shared.ErrNotFound, warehouseID)
	}
	if w.TenantID != tenantID {
		return masterdata.Warehouse{}, fmt.Errorf("%w: warehouse %d", shared.ErrTenantMismatch, warehouseID)
	}
	if !w.Active {
		return masterdata.Warehouse{}, fmt.Errorf("%w: warehouse %d inactive", shared.ErrValidation, warehouseID)
	}
	return w, nil
}
