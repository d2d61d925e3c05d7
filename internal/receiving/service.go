package receiving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, tenantID, id int64) (PurchaseOrder, []OrderLine, error)
	ListOrders(ctx context.Context, tenantID int64, page, perPage int) ([]PurchaseOrder, shared.Pagination, error)
}

// TxRepository exposes transactional operations for receiving.
type TxRepository interface {
	// MarkReceived stamps received_at on a completed, not-yet-received
	// order. Zero rows affected means a concurrent or repeated receive
	// and surfaces as ErrInvalidState.
	MarkReceived(ctx context.Context, orderID int64, at time.Time) error
	// UpdateProductCost writes the receipt cost onto the product and
	// appends a price history row.
	UpdateProductCost(ctx context.Context, tenantID, productID int64, cost float64, source string) error
	Ledger() ledger.TxRepository
}

// IdempotencyPort guards against replayed receive requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// StatsNotifier signals that tenant stock statistics are stale. Enqueue
// failures must not fail the receive.
type StatsNotifier interface {
	EnqueueStatsRecompute(ctx context.Context, tenantID int64) error
}

// receiveNamespace keys idempotent receives deterministically per order.
var receiveNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("lumbung/receiving"))

// Service posts purchase receipts into stock. Each received line becomes a
// batch-tracked StockBatch carrying supplier and cost, plus an inbound
// ledger movement targeting that batch.
type Service struct {
	repo        RepositoryPort
	recorder    *ledger.Recorder
	idempotency IdempotencyPort
	notifier    StatsNotifier
	logger      *slog.Logger
}

// NewService constructs the receiving service.
func NewService(repo RepositoryPort, recorder *ledger.Recorder, idempotency IdempotencyPort, notifier StatsNotifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, recorder: recorder, idempotency: idempotency, notifier: notifier, logger: logger}
}

// Receive posts all lines of a completed order into stock, exactly once.
// The received_at stamp inside the transaction is the hard guard; the
// idempotency key short-circuits replays before any locking happens.
func (s *Service) Receive(ctx context.Context, tenantID, orderID, actorID int64) (Receipt, error) {
	order, lines, err := s.repo.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return Receipt{}, err
	}
	if order.Status != StatusCompleted {
		return Receipt{}, fmt.Errorf("%w: order %s is %s, only COMPLETED orders can be received",
			shared.ErrInvalidState, order.Number, order.Status)
	}
	if order.ReceivedAt != nil {
		return Receipt{}, fmt.Errorf("%w: order %s already received at %s",
			shared.ErrInvalidState, order.Number, order.ReceivedAt.Format(time.RFC3339))
	}
	if len(lines) == 0 {
		return Receipt{}, fmt.Errorf("%w: order %s has no lines", shared.ErrValidation, order.Number)
	}

	key := uuid.NewSHA1(receiveNamespace, []byte(fmt.Sprintf("order:%d", orderID))).String()
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "receiving"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Receipt{}, fmt.Errorf("%w: order %s receive already processed", shared.ErrInvalidState, order.Number)
			}
			return Receipt{}, err
		}
	}

	receipt := Receipt{OrderID: orderID, Number: order.Number}
	var movements []ledger.Movement
	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.MarkReceived(ctx, orderID, now); err != nil {
			return err
		}
		for _, line := range lines {
			batch, err := tx.Ledger().CreateBatch(ctx, ledger.StockBatch{
				TenantID:    tenantID,
				ProductID:   line.ProductID,
				WarehouseID: line.WarehouseID,
				SupplierID:  order.SupplierID,
				UnitCost:    line.UnitCost,
				LotRef:      order.Number,
				ReceivedAt:  &now,
			})
			if err != nil {
				return err
			}
			mv, err := s.recorder.RecordInTx(ctx, tx.Ledger(), ledger.RecordInput{
				TenantID:    tenantID,
				ProductID:   line.ProductID,
				WarehouseID: line.WarehouseID,
				BatchID:     batch.ID,
				Qty:         line.Qty,
				Kind:        ledger.KindIn,
				RefKind:     ledger.RefPurchaseOrder,
				RefID:       orderID,
				ActorID:     actorID,
				Note:        fmt.Sprintf("receipt of %s", order.Number),
			})
			if err != nil {
				return err
			}
			if err := tx.UpdateProductCost(ctx, tenantID, line.ProductID, line.UnitCost, order.Number); err != nil {
				return err
			}
			movements = append(movements, mv)
			receipt.BatchIDs = append(receipt.BatchIDs, batch.ID)
			receipt.TotalQty += line.Qty
			receipt.TotalValue += float64(line.Qty) * line.UnitCost
		}
		return nil
	})
	if err != nil {
		if s.idempotency != nil {
			if derr := s.idempotency.Delete(ctx, key); derr != nil && s.logger != nil {
				s.logger.Warn("idempotency rollback failed", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return Receipt{}, err
	}

	s.recorder.Notify(ctx, tenantID, movements)
	if s.notifier != nil {
		if err := s.notifier.EnqueueStatsRecompute(ctx, tenantID); err != nil && s.logger != nil {
			s.logger.Warn("stats recompute enqueue failed", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		}
	}
	return receipt, nil
}

// Get loads an order with its lines.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (PurchaseOrder, []OrderLine, error) {
	return s.repo.GetOrder(ctx, tenantID, id)
}

// List returns purchase orders for a tenant, newest first.
func (s *Service) List(ctx context.Context, tenantID int64, page, perPage int) ([]PurchaseOrder, shared.Pagination, error) {
	return s.repo.ListOrders(ctx, tenantID, page, perPage)
}
