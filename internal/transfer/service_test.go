package transfer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/ledger/ledgertest"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
	"github.com/Danu-Nur/lumbung-sub003/internal/transfer"
)

const tenantID = int64(1)

type memoryRepo struct {
	ledger    *ledgertest.MemoryLedger
	transfers map[int64]transfer.StockTransfer
	lines     map[int64][]transfer.Line
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
	ltx  ledger.TxRepository
}

func newMemoryRepo(l *ledgertest.MemoryLedger) *memoryRepo {
	return &memoryRepo{
		ledger:    l,
		transfers: make(map[int64]transfer.StockTransfer),
		lines:     make(map[int64][]transfer.Line),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, transfer.TxRepository) error) error {
	prev := make(map[int64]transfer.StockTransfer, len(r.transfers))
	for k, v := range r.transfers {
		prev[k] = v
	}
	prevLines := make(map[int64][]transfer.Line, len(r.lines))
	for k, v := range r.lines {
		prevLines[k] = append([]transfer.Line(nil), v...)
	}
	prevNext := r.nextID
	err := r.ledger.WithTx(ctx, func(ctx context.Context, ltx ledger.TxRepository) error {
		return fn(ctx, &memoryTx{repo: r, ltx: ltx})
	})
	if err != nil {
		r.transfers = prev
		r.lines = prevLines
		r.nextID = prevNext
	}
	return err
}

func (r *memoryRepo) GetTransfer(ctx context.Context, tenant, id int64) (transfer.StockTransfer, []transfer.Line, error) {
	tr, ok := r.transfers[id]
	if !ok || tr.TenantID != tenant {
		return transfer.StockTransfer{}, nil, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, id)
	}
	return tr, append([]transfer.Line(nil), r.lines[id]...), nil
}

func (r *memoryRepo) ListTransfers(ctx context.Context, tenant int64, page, perPage int) ([]transfer.StockTransfer, shared.Pagination, error) {
	var out []transfer.StockTransfer
	for _, tr := range r.transfers {
		if tr.TenantID == tenant {
			out = append(out, tr)
		}
	}
	return out, shared.NewPagination(page, perPage, len(out)), nil
}

func (t *memoryTx) Ledger() ledger.TxRepository { return t.ltx }

func (t *memoryTx) InsertTransfer(ctx context.Context, tr transfer.StockTransfer) (transfer.StockTransfer, error) {
	t.repo.nextID++
	tr.ID = t.repo.nextID
	tr.CreatedAt = time.Now()
	t.repo.transfers[tr.ID] = tr
	return tr, nil
}

func (t *memoryTx) InsertLine(ctx context.Context, line transfer.Line) error {
	t.repo.nextID++
	line.ID = t.repo.nextID
	t.repo.lines[line.TransferID] = append(t.repo.lines[line.TransferID], line)
	return nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, transferID int64, from, to transfer.Status) error {
	tr, ok := t.repo.transfers[transferID]
	if !ok || tr.Status != from {
		return fmt.Errorf("%w: transfer %d is no longer %s", shared.ErrInvalidState, transferID, from)
	}
	tr.Status = to
	now := time.Now()
	switch to {
	case transfer.StatusInTransit:
		tr.SentAt = &now
	case transfer.StatusCompleted:
		tr.CompletedAt = &now
	}
	t.repo.transfers[transferID] = tr
	return nil
}

func newService(t *testing.T) (*transfer.Service, *ledgertest.MemoryLedger, *memoryRepo) {
	t.Helper()
	l := ledgertest.NewMemoryLedger()
	refs := ledgertest.NewRefData(tenantID, []int64{1, 2}, []int64{10, 20})
	recorder := ledger.NewRecorder(l, refs, nil, nil, nil)
	repo := newMemoryRepo(l)
	return transfer.NewService(repo, recorder, refs, nil), l, repo
}

func createDraft(t *testing.T, svc *transfer.Service, lines []transfer.LineInput) transfer.StockTransfer {
	t.Helper()
	tr, err := svc.Create(context.Background(), transfer.CreateInput{
		TenantID: tenantID, SourceID: 10, DestinationID: 20, ActorID: 5, Lines: lines,
	})
	require.NoError(t, err)
	require.Equal(t, transfer.StatusDraft, tr.Status)
	return tr
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, transfer.CreateInput{
		TenantID: tenantID, SourceID: 10, DestinationID: 10,
		Lines: []transfer.LineInput{{ProductID: 1, Qty: 5}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, transfer.CreateInput{
		TenantID: tenantID, SourceID: 10, DestinationID: 20,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, transfer.CreateInput{
		TenantID: tenantID, SourceID: 10, DestinationID: 20,
		Lines: []transfer.LineInput{{ProductID: 1, Qty: 0}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, transfer.CreateInput{
		TenantID: tenantID, SourceID: 10, DestinationID: 20,
		Lines: []transfer.LineInput{{ProductID: 999, Qty: 5}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSendMovesStockOutOfSource(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 50)

	tr := createDraft(t, svc, []transfer.LineInput{{ProductID: 1, Qty: 30}})
	require.NoError(t, svc.Send(ctx, tenantID, tr.ID, 5))

	source, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(20), source.QtyOnHand)

	got, _, err := svc.Get(ctx, tenantID, tr.ID)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusInTransit, got.Status)
	require.NotNil(t, got.SentAt)

	moves := l.Movements()
	last := moves[len(moves)-1]
	require.Equal(t, ledger.KindTransferOut, last.Kind)
	require.Equal(t, ledger.RefTransfer, last.RefKind)
	require.Equal(t, tr.ID, last.RefID)
}

func TestSendIsAllOrNothing(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 50)
	l.SeedBatch(tenantID, 2, 10, 3)

	tr := createDraft(t, svc, []transfer.LineInput{
		{ProductID: 1, Qty: 30},
		{ProductID: 2, Qty: 5}, // only 3 on hand
	})
	err := svc.Send(ctx, tenantID, tr.ID, 5)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// nothing moved and the transfer is still DRAFT
	b1, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(50), b1.QtyOnHand)
	b2, err := l.GetBatch(ctx, tenantID, 2, 10)
	require.NoError(t, err)
	require.Equal(t, int64(3), b2.QtyOnHand)

	got, _, err := svc.Get(ctx, tenantID, tr.ID)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusDraft, got.Status)
}

func TestCompleteConservesTotalStock(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 50)
	l.SeedBatch(tenantID, 1, 20, 7)

	tr := createDraft(t, svc, []transfer.LineInput{{ProductID: 1, Qty: 30}})
	require.NoError(t, svc.Send(ctx, tenantID, tr.ID, 5))
	require.NoError(t, svc.Complete(ctx, tenantID, tr.ID, 5))

	source, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	dest, err := l.GetBatch(ctx, tenantID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(20), source.QtyOnHand)
	require.Equal(t, int64(37), dest.QtyOnHand)
	require.Equal(t, int64(57), source.QtyOnHand+dest.QtyOnHand)

	got, _, err := svc.Get(ctx, tenantID, tr.ID)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	missing, err := l.CheckConsistency(ctx, tenantID)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestCompleteCreatesDestinationBatch(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 50)

	tr := createDraft(t, svc, []transfer.LineInput{{ProductID: 1, Qty: 30}})
	require.NoError(t, svc.Send(ctx, tenantID, tr.ID, 5))
	require.NoError(t, svc.Complete(ctx, tenantID, tr.ID, 5))

	dest, err := l.GetBatch(ctx, tenantID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(30), dest.QtyOnHand)
}

func TestInvalidTransitions(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 50)

	tr := createDraft(t, svc, []transfer.LineInput{{ProductID: 1, Qty: 10}})

	// complete before send
	require.ErrorIs(t, svc.Complete(ctx, tenantID, tr.ID, 5), shared.ErrInvalidState)

	require.NoError(t, svc.Send(ctx, tenantID, tr.ID, 5))

	// send twice
	require.ErrorIs(t, svc.Send(ctx, tenantID, tr.ID, 5), shared.ErrInvalidState)
	// cancel after send
	require.ErrorIs(t, svc.Cancel(ctx, tenantID, tr.ID), shared.ErrInvalidState)

	require.NoError(t, svc.Complete(ctx, tenantID, tr.ID, 5))

	// complete twice: the double posting must not happen
	require.ErrorIs(t, svc.Complete(ctx, tenantID, tr.ID, 5), shared.ErrInvalidState)
	source, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(40), source.QtyOnHand)
}

func TestCancelDraftMovesNoStock(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 50)

	tr := createDraft(t, svc, []transfer.LineInput{{ProductID: 1, Qty: 10}})
	require.NoError(t, svc.Cancel(ctx, tenantID, tr.ID))

	got, _, err := svc.Get(ctx, tenantID, tr.ID)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusCancelled, got.Status)

	batch, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(50), batch.QtyOnHand)

	// terminal: cannot send a cancelled transfer
	require.ErrorIs(t, svc.Send(ctx, tenantID, tr.ID, 5), shared.ErrInvalidState)
}

func TestSendDrawsOnLotTrackedStock(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	// all stock arrived through a purchase receipt, no rolled-up row yet
	l.SeedLotBatch(tenantID, 1, 10, 200, "PO-77")

	tr := createDraft(t, svc, []transfer.LineInput{{ProductID: 1, Qty: 20}})
	require.NoError(t, svc.Send(ctx, tenantID, tr.ID, 5))
	require.NoError(t, svc.Complete(ctx, tenantID, tr.ID, 5))

	var source int64
	batches, err := l.ListBatches(ctx, tenantID, 10)
	require.NoError(t, err)
	for _, b := range batches {
		if b.ProductID == 1 {
			source += b.QtyOnHand
		}
	}
	require.Equal(t, int64(180), source)

	dest, err := l.GetBatch(ctx, tenantID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(20), dest.QtyOnHand)

	missing, err := l.CheckConsistency(ctx, tenantID)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestSendDrainsRollupBeforeLots(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()
	l.SeedBatch(tenantID, 1, 10, 5)
	lotA := l.SeedLotBatch(tenantID, 1, 10, 10, "PO-8")
	lotB := l.SeedLotBatch(tenantID, 1, 10, 10, "PO-9")

	tr := createDraft(t, svc, []transfer.LineInput{{ProductID: 1, Qty: 12}})
	require.NoError(t, svc.Send(ctx, tenantID, tr.ID, 5))

	rollup, err := l.GetBatch(ctx, tenantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(0), rollup.QtyOnHand)

	batches, err := l.ListBatches(ctx, tenantID, 10)
	require.NoError(t, err)
	byID := map[int64]int64{}
	for _, b := range batches {
		byID[b.ID] = b.QtyOnHand
	}
	// rollup empties first, then the oldest lot
	require.Equal(t, int64(3), byID[lotA.ID])
	require.Equal(t, int64(10), byID[lotB.ID])
}
