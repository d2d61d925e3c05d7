package importer_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Danu-Nur/lumbung-sub003/internal/adjustment"
	"github.com/Danu-Nur/lumbung-sub003/internal/importer"
	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/ledger/ledgertest"
	"github.com/Danu-Nur/lumbung-sub003/internal/masterdata"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

const tenantID = int64(1)

type memoryAdjRepo struct {
	ledger      *ledgertest.MemoryLedger
	adjustments map[int64]adjustment.StockAdjustment
	nextID      int64
}

type memoryAdjTx struct {
	repo *memoryAdjRepo
	ltx  ledger.TxRepository
}

func (r *memoryAdjRepo) WithTx(ctx context.Context, fn func(context.Context, adjustment.TxRepository) error) error {
	prevNext := r.nextID
	err := r.ledger.WithTx(ctx, func(ctx context.Context, ltx ledger.TxRepository) error {
		return fn(ctx, &memoryAdjTx{repo: r, ltx: ltx})
	})
	if err != nil {
		r.nextID = prevNext
	}
	return err
}

func (r *memoryAdjRepo) GetAdjustment(ctx context.Context, tenant, id int64) (adjustment.StockAdjustment, error) {
	adj, ok := r.adjustments[id]
	if !ok {
		return adjustment.StockAdjustment{}, shared.ErrNotFound
	}
	return adj, nil
}

func (r *memoryAdjRepo) ListAdjustments(ctx context.Context, tenant int64, page, perPage int) ([]adjustment.StockAdjustment, shared.Pagination, error) {
	return nil, shared.NewPagination(page, perPage, 0), nil
}

func (t *memoryAdjTx) Ledger() ledger.TxRepository { return t.ltx }

func (t *memoryAdjTx) InsertAdjustment(ctx context.Context, adj adjustment.StockAdjustment) (adjustment.StockAdjustment, error) {
	t.repo.nextID++
	adj.ID = t.repo.nextID
	t.repo.adjustments[adj.ID] = adj
	return adj, nil
}

func (t *memoryAdjTx) SetMovement(ctx context.Context, adjustmentID, movementID int64) error {
	adj := t.repo.adjustments[adjustmentID]
	adj.MovementID = movementID
	t.repo.adjustments[adjustmentID] = adj
	return nil
}

func (t *memoryAdjTx) MarkReversed(ctx context.Context, adjustmentID, reversalID int64) error {
	return nil
}

type staticResolver struct {
	refs *ledgertest.StaticRefData
}

func (r *staticResolver) ProductBySKU(ctx context.Context, tenant int64, sku string) (masterdata.Product, error) {
	for _, p := range r.refs.Products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return masterdata.Product{}, fmt.Errorf("%w: SKU %s", shared.ErrNotFound, sku)
}

func (r *staticResolver) WarehouseByCode(ctx context.Context, tenant int64, code string) (masterdata.Warehouse, error) {
	for _, w := range r.refs.Warehouses {
		if w.Code == code {
			return w, nil
		}
	}
	return masterdata.Warehouse{}, fmt.Errorf("%w: warehouse %s", shared.ErrNotFound, code)
}

func newService(t *testing.T) (*importer.Service, *ledgertest.MemoryLedger) {
	t.Helper()
	l := ledgertest.NewMemoryLedger()
	refs := ledgertest.NewRefData(tenantID, []int64{1, 2}, []int64{10})
	recorder := ledger.NewRecorder(l, refs, nil, nil, nil)
	repo := &memoryAdjRepo{ledger: l, adjustments: make(map[int64]adjustment.StockAdjustment)}
	adjSvc := adjustment.NewService(repo, recorder, nil)
	return importer.NewService(&staticResolver{refs: refs}, adjSvc, nil), l
}

func sheet(t *testing.T, rows [][]any) io.Reader {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	header := []any{"Warehouse", "SKU", "Qty", "Direction", "Reason", "Note"}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestImportPartialSuccess(t *testing.T) {
	svc, l := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 100)
	l.SeedBatch(tenantID, 2, 10, 4)

	result, err := svc.Import(ctx, tenantID, 5, sheet(t, [][]any{
		{"WH-10", "SKU-1", "30", "decrease", "DAMAGE", "broken crate"}, // row 2: ok
		{"WH-10", "SKU-9", "10", "decrease", "DAMAGE", ""},             // row 3: unknown SKU
		{"WH-10", "SKU-2", "10", "decrease", "SOLD", ""},               // row 4: only 4 on hand
		{"WH-10", "SKU-2", "x", "decrease", "SOLD", ""},                // row 5: bad qty
		{"WH-10", "SKU-2", "3", "sideways", "SOLD", ""},                // row 6: bad direction
		{"WH-10", "SKU-1", "15", "increase", "FOUND", ""},              // row 7: ok
	}))
	require.NoError(t, err)
	require.Equal(t, 2, result.Imported)
	require.Len(t, result.Errors, 4)

	byRow := map[int]string{}
	for _, re := range result.Errors {
		byRow[re.Row] = re.Message
	}
	require.Contains(t, byRow[3], "SKU-9")
	require.Contains(t, byRow[4], "insufficient stock")
	require.Contains(t, byRow[4], "available 4")
	require.Contains(t, byRow[5], "positive integer")
	require.Contains(t, byRow[6], "increase or decrease")

	// the good rows committed despite the failures in between
	b1, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(85), b1.QtyOnHand)
	b2, err := l.GetBatch(ctx, tenantID, 2, 10)
	require.NoError(t, err)
	require.Equal(t, int64(4), b2.QtyOnHand)
}

func TestImportRejectsEmptyAndBogusFiles(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, tenantID, 5, bytes.NewBufferString("not an xlsx"))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Import(ctx, tenantID, 5, sheet(t, nil))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestImportDefaultsReason(t *testing.T) {
	svc, l := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 10)

	result, err := svc.Import(ctx, tenantID, 5, sheet(t, [][]any{
		{"WH-10", "SKU-1", "5", "increase", "", ""},
	}))
	require.NoError(t, err)
	require.Equal(t, 1, result.Imported)
	require.Empty(t, result.Errors)

	batch, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(15), batch.QtyOnHand)
}
