package adjustment_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Danu-Nur/lumbung-sub003/internal/adjustment"
	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/ledger/ledgertest"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

const tenantID = int64(1)

type memoryRepo struct {
	ledger      *ledgertest.MemoryLedger
	adjustments map[int64]adjustment.StockAdjustment
	nextID      int64
}

type memoryTx struct {
	repo *memoryRepo
	ltx  ledger.TxRepository
}

func newMemoryRepo(l *ledgertest.MemoryLedger) *memoryRepo {
	return &memoryRepo{ledger: l, adjustments: make(map[int64]adjustment.StockAdjustment)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, adjustment.TxRepository) error) error {
	prev := make(map[int64]adjustment.StockAdjustment, len(r.adjustments))
	for k, v := range r.adjustments {
		prev[k] = v
	}
	prevNext := r.nextID
	err := r.ledger.WithTx(ctx, func(ctx context.Context, ltx ledger.TxRepository) error {
		return fn(ctx, &memoryTx{repo: r, ltx: ltx})
	})
	if err != nil {
		r.adjustments = prev
		r.nextID = prevNext
	}
	return err
}

func (r *memoryRepo) GetAdjustment(ctx context.Context, tenant, id int64) (adjustment.StockAdjustment, error) {
	adj, ok := r.adjustments[id]
	if !ok || adj.TenantID != tenant {
		return adjustment.StockAdjustment{}, fmt.Errorf("%w: adjustment %d", shared.ErrNotFound, id)
	}
	return adj, nil
}

func (r *memoryRepo) ListAdjustments(ctx context.Context, tenant int64, page, perPage int) ([]adjustment.StockAdjustment, shared.Pagination, error) {
	var out []adjustment.StockAdjustment
	for _, adj := range r.adjustments {
		if adj.TenantID == tenant {
			out = append(out, adj)
		}
	}
	return out, shared.NewPagination(page, perPage, len(out)), nil
}

func (t *memoryTx) Ledger() ledger.TxRepository { return t.ltx }

func (t *memoryTx) InsertAdjustment(ctx context.Context, adj adjustment.StockAdjustment) (adjustment.StockAdjustment, error) {
	t.repo.nextID++
	adj.ID = t.repo.nextID
	t.repo.adjustments[adj.ID] = adj
	return adj, nil
}

func (t *memoryTx) SetMovement(ctx context.Context, adjustmentID, movementID int64) error {
	adj := t.repo.adjustments[adjustmentID]
	adj.MovementID = movementID
	t.repo.adjustments[adjustmentID] = adj
	return nil
}

func (t *memoryTx) MarkReversed(ctx context.Context, adjustmentID, reversalID int64) error {
	adj, ok := t.repo.adjustments[adjustmentID]
	if !ok {
		return shared.ErrNotFound
	}
	if adj.ReversedByID != 0 {
		return fmt.Errorf("%w: already reversed", shared.ErrInvalidState)
	}
	adj.ReversedByID = reversalID
	t.repo.adjustments[adjustmentID] = adj
	return nil
}

func newService(t *testing.T) (*adjustment.Service, *ledgertest.MemoryLedger, *memoryRepo) {
	t.Helper()
	l := ledgertest.NewMemoryLedger()
	refs := ledgertest.NewRefData(tenantID, []int64{1}, []int64{10})
	recorder := ledger.NewRecorder(l, refs, nil, nil, nil)
	repo := newMemoryRepo(l)
	return adjustment.NewService(repo, recorder, nil), l, repo
}

func TestCreateDecreasePostsMovement(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 100)

	adj, err := svc.Create(ctx, adjustment.CreateInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Direction: adjustment.DirectionDecrease, Qty: 30, Reason: "DAMAGE", ActorID: 5,
	})
	require.NoError(t, err)
	require.NotZero(t, adj.MovementID)

	batch, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(70), batch.QtyOnHand)

	moves := l.Movements()
	last := moves[len(moves)-1]
	require.Equal(t, int64(-30), last.Qty)
	require.Equal(t, ledger.KindAdjust, last.Kind)
	require.Equal(t, ledger.RefAdjustment, last.RefKind)
	require.Equal(t, adj.ID, last.RefID)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, adjustment.CreateInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Direction: adjustment.DirectionIncrease, Qty: 0, Reason: "DAMAGE",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, adjustment.CreateInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Direction: "sideways", Qty: 1, Reason: "DAMAGE",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, adjustment.CreateInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Direction: adjustment.DirectionIncrease, Qty: 1,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReverseRestoresQuantity(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 100)

	adj, err := svc.Create(ctx, adjustment.CreateInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Direction: adjustment.DirectionDecrease, Qty: 30, Reason: "DAMAGE", ActorID: 5,
	})
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, tenantID, adj.ID, 6)
	require.NoError(t, err)
	require.Equal(t, adjustment.DirectionIncrease, reversal.Direction)
	require.Equal(t, adjustment.ReasonCorrection, reversal.Reason)
	require.Equal(t, adj.ID, reversal.ReversalOfID)

	// net effect of the pair is zero
	require.Zero(t, adj.SignedQty()+reversal.SignedQty())

	batch, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(100), batch.QtyOnHand)

	original, err := svc.Get(ctx, tenantID, adj.ID)
	require.NoError(t, err)
	require.Equal(t, reversal.ID, original.ReversedByID)
}

func TestReverseTwiceIsRejected(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 100)

	adj, err := svc.Create(ctx, adjustment.CreateInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Direction: adjustment.DirectionDecrease, Qty: 30, Reason: "DAMAGE",
	})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, tenantID, adj.ID, 6)
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, tenantID, adj.ID, 6)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestReverseBlockedByInsufficientStock(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 100)

	// increase 50, then drain the stock; reversing the increase would go negative
	adj, err := svc.Create(ctx, adjustment.CreateInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Direction: adjustment.DirectionIncrease, Qty: 50, Reason: "FOUND",
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, adjustment.CreateInput{
		TenantID: tenantID, ProductID: 1, WarehouseID: 10,
		Direction: adjustment.DirectionDecrease, Qty: 140, Reason: "SOLD",
	})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, tenantID, adj.ID, 6)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// first reversal failed, so the original is still reversible
	original, err := svc.Get(ctx, tenantID, adj.ID)
	require.NoError(t, err)
	require.Zero(t, original.ReversedByID)

	batch, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), batch.QtyOnHand)
}
