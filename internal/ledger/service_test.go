package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/ledger/ledgertest"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

const tenantID = int64(1)

func newRecorder(t *testing.T) (*ledger.Recorder, *ledgertest.MemoryLedger) {
	t.Helper()
	repo := ledgertest.NewMemoryLedger()
	refs := ledgertest.NewRefData(tenantID, []int64{1, 2}, []int64{10, 20})
	return ledger.NewRecorder(repo, refs, nil, nil, nil), repo
}

func TestRecordCreatesBatchOnFirstInbound(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()

	mv, err := rec.Record(ctx, ledger.RecordInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Qty: 100, Kind: ledger.KindIn, RefKind: ledger.RefPurchaseOrder, RefID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, int64(100), mv.Qty)
	require.NotZero(t, mv.BatchID)

	batch, err := repo.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(100), batch.QtyOnHand)
	require.Equal(t, int64(100), batch.AvailableQty)
}

func TestRecordRejectsZeroQuantity(t *testing.T) {
	rec, _ := newRecorder(t)

	_, err := rec.Record(context.Background(), ledger.RecordInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Qty: 0, Kind: ledger.KindAdjust, RefKind: ledger.RefAdjustment,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordRejectsUnknownProduct(t *testing.T) {
	rec, _ := newRecorder(t)

	_, err := rec.Record(context.Background(), ledger.RecordInput{
		TenantID: tenantID, ProductID: 99, WarehouseID: 10,
		Qty: 5, Kind: ledger.KindIn, RefKind: ledger.RefPurchaseOrder,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordRejectsForeignTenant(t *testing.T) {
	repo := ledgertest.NewMemoryLedger()
	refs := ledgertest.NewRefData(2, []int64{1}, []int64{10})
	rec := ledger.NewRecorder(repo, refs, nil, nil, nil)

	_, err := rec.Record(context.Background(), ledger.RecordInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Qty: 5, Kind: ledger.KindIn, RefKind: ledger.RefPurchaseOrder,
	})
	require.ErrorIs(t, err, shared.ErrTenantMismatch)
}

func TestNegativeStockGuard(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()
	repo.SeedBatch(tenantID, 1, 10, 4)

	_, err := rec.Record(ctx, ledger.RecordInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Qty: -10, Kind: ledger.KindAdjust, RefKind: ledger.RefAdjustment,
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Contains(t, err.Error(), "SKU-1")
	require.Contains(t, err.Error(), "available 4")

	// failed movement leaves nothing behind
	batch, err := repo.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(4), batch.QtyOnHand)
	require.Empty(t, mustConsistency(t, repo))
}

func TestRecordAllIsAtomic(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()
	repo.SeedBatch(tenantID, 1, 10, 50)

	// second movement fails, first must roll back with it
	_, err := rec.RecordAll(ctx, tenantID, []ledger.RecordInput{
		{TenantID: tenantID, ProductID: 1, WarehouseID: 10, Qty: -20, Kind: ledger.KindTransferOut, RefKind: ledger.RefTransfer, RefID: 3},
		{TenantID: tenantID, ProductID: 2, WarehouseID: 10, Qty: -1, Kind: ledger.KindTransferOut, RefKind: ledger.RefTransfer, RefID: 3},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	batch, err := repo.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(50), batch.QtyOnHand)
}

func TestLedgerConsistencyAfterMixedOperations(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()

	deltas := []int64{100, -30, 25, -70, 10}
	var want int64
	for _, d := range deltas {
		_, err := rec.Record(ctx, ledger.RecordInput{
			TenantID: tenantID, ProductID: 1, WarehouseID: 10,
			Qty: d, Kind: ledger.KindAdjust, RefKind: ledger.RefAdjustment,
		})
		require.NoError(t, err)
		want += d
	}

	batch, err := repo.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, want, batch.QtyOnHand)
	require.Equal(t, batch.QtyOnHand-batch.AllocatedQty, batch.AvailableQty)
	require.Empty(t, mustConsistency(t, repo))
}

func TestConcurrentDecrementsNeverBothPass(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()
	repo.SeedBatch(tenantID, 1, 10, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = rec.Record(ctx, ledger.RecordInput{
				TenantID: tenantID, ProductID: 1, WarehouseID: 10,
				Qty: -3, Kind: ledger.KindAdjust, RefKind: ledger.RefAdjustment,
			})
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, shared.ErrInsufficientStock)
			insufficient++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, insufficient)

	batch, err := repo.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), batch.QtyOnHand)
}

func TestContentionSurfacesRetryableError(t *testing.T) {
	repo := ledgertest.NewMemoryLedger()
	refs := ledgertest.NewRefData(tenantID, []int64{1}, []int64{10})
	rec := ledger.NewRecorder(repo, refs, nil, nil, nil)
	repo.LockErr = shared.ErrContention

	_, err := rec.Record(context.Background(), ledger.RecordInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Qty: -1, Kind: ledger.KindAdjust, RefKind: ledger.RefAdjustment,
	})
	require.ErrorIs(t, err, shared.ErrContention)
	require.True(t, shared.Retryable(err))
}

func mustConsistency(t *testing.T, repo *ledgertest.MemoryLedger) []ledger.Discrepancy {
	t.Helper()
	out, err := repo.CheckConsistency(context.Background(), tenantID)
	require.NoError(t, err)
	return out
}

func TestOutflowSpansAllPairBatches(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()
	repo.SeedBatch(tenantID, 1, 10, 5)
	repo.SeedLotBatch(tenantID, 1, 10, 10, "LOT-A")
	repo.SeedLotBatch(tenantID, 1, 10, 10, "LOT-B")

	// more than any single batch holds, less than the pair total
	_, err := rec.Record(ctx, ledger.RecordInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Qty: -18, Kind: ledger.KindOut, RefKind: ledger.RefAdjustment,
	})
	require.NoError(t, err)

	batches, err := repo.ListBatches(ctx, tenantID, 10)
	require.NoError(t, err)
	var total int64
	for _, b := range batches {
		total += b.QtyOnHand
	}
	require.Equal(t, int64(7), total)
	require.Empty(t, mustConsistency(t, repo))

	// the guard counts the pair total, not the rollup row alone
	_, err = rec.Record(ctx, ledger.RecordInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Qty: -8, Kind: ledger.KindOut, RefKind: ledger.RefAdjustment,
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Contains(t, err.Error(), "available 7")
}
