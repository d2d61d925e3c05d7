package opname

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Danu-Nur/lumbung-sub003/internal/adjustment"
	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOpname(ctx context.Context, tenantID, id int64) (StockOpname, []Line, error)
	ListOpnames(ctx context.Context, tenantID int64, page, perPage int) ([]StockOpname, shared.Pagination, error)
}

// TxRepository exposes transactional operations for the workflow.
type TxRepository interface {
	InsertOpname(ctx context.Context, op StockOpname) (StockOpname, error)
	InsertLine(ctx context.Context, line Line) error
	// UpdateStatus flips the status only when the row is still in the
	// expected state; zero rows affected surfaces as ErrInvalidState.
	// The IN_PROGRESS to COMPLETED flip is the idempotency barrier for
	// finalization.
	UpdateStatus(ctx context.Context, opnameID int64, from, to Status) error
	// UpsertCount records a physical count for a product, inserting a
	// zero-system line when the product was not in the snapshot. It
	// locks the opname row and rejects counts once the opname has left
	// IN_PROGRESS, so finalization cannot race a late count.
	UpsertCount(ctx context.Context, opnameID, productID, qty, actorID int64) error
	// Lines reads the count sheet within the transaction.
	Lines(ctx context.Context, opnameID int64) ([]Line, error)
	// WarehouseStock returns per-product on-hand totals for the
	// warehouse, summed across all batches, read within the transaction.
	WarehouseStock(ctx context.Context, tenantID, warehouseID int64) ([]StockLevel, error)
	Adjustments() adjustment.TxRepository
}

// Service drives the opname workflow. Variances post through the
// adjustment service so every stock effect carries a reversible
// adjustment row.
type Service struct {
	repo        RepositoryPort
	adjustments *adjustment.Service
	recorder    *ledger.Recorder
	refs        ledger.RefDataPort
	policy      UncountedPolicy
	logger      *slog.Logger
}

// NewService constructs the opname service. An invalid policy falls back
// to skip.
func NewService(repo RepositoryPort, adjustments *adjustment.Service, recorder *ledger.Recorder, refs ledger.RefDataPort, policy UncountedPolicy, logger *slog.Logger) *Service {
	if !policy.Valid() {
		policy = PolicySkip
	}
	return &Service{repo: repo, adjustments: adjustments, recorder: recorder, refs: refs, policy: policy, logger: logger}
}

// Create persists a DRAFT opname. The stock snapshot is taken at Start,
// not here.
func (s *Service) Create(ctx context.Context, in CreateInput) (StockOpname, error) {
	if _, err := s.refs.ResolveWarehouse(ctx, in.TenantID, in.WarehouseID); err != nil {
		return StockOpname{}, err
	}
	number := in.Number
	if number == "" {
		number = fmt.Sprintf("OPN-%d", time.Now().UnixNano())
	}
	op := StockOpname{
		TenantID:    in.TenantID,
		Number:      number,
		WarehouseID: in.WarehouseID,
		Status:      StatusDraft,
		Note:        in.Note,
		ActorID:     in.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertOpname(ctx, op)
		if err != nil {
			return err
		}
		op = created
		return nil
	})
	if err != nil {
		return StockOpname{}, err
	}
	return op, nil
}

// Start freezes the system quantities: every product currently stocked in
// the warehouse, across all its batches, becomes a count-sheet line, and
// the opname moves to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, tenantID, opnameID int64) error {
	op, _, err := s.repo.GetOpname(ctx, tenantID, opnameID)
	if err != nil {
		return err
	}
	if op.Status != StatusDraft {
		return fmt.Errorf("%w: opname %s is %s, cannot start", shared.ErrInvalidState, op.Number, op.Status)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, opnameID, StatusDraft, StatusInProgress); err != nil {
			return err
		}
		levels, err := tx.WarehouseStock(ctx, tenantID, op.WarehouseID)
		if err != nil {
			return err
		}
		for _, level := range levels {
			line := Line{OpnameID: opnameID, ProductID: level.ProductID, SystemQty: level.Qty}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordCount stores a physical count for one product. Counting a product
// that was not in the snapshot creates a surplus line with system
// quantity zero.
func (s *Service) RecordCount(ctx context.Context, tenantID, opnameID, productID, qty, actorID int64) error {
	if qty < 0 {
		return fmt.Errorf("%w: counted quantity cannot be negative", shared.ErrValidation)
	}
	op, _, err := s.repo.GetOpname(ctx, tenantID, opnameID)
	if err != nil {
		return err
	}
	if op.Status != StatusInProgress {
		return fmt.Errorf("%w: opname %s is %s, counts only accepted while IN_PROGRESS", shared.ErrInvalidState, op.Number, op.Status)
	}
	if _, err := s.refs.ResolveProduct(ctx, tenantID, productID); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertCount(ctx, opnameID, productID, qty, actorID)
	})
}

// Finalize posts one variance adjustment per counted line whose physical
// count differs from the frozen system quantity, then completes the
// opname. The status guard makes finalization run once: a repeat call
// fails with ErrInvalidState and posts nothing.
func (s *Service) Finalize(ctx context.Context, tenantID, opnameID, actorID int64) error {
	op, _, err := s.repo.GetOpname(ctx, tenantID, opnameID)
	if err != nil {
		return err
	}
	if op.Status != StatusInProgress {
		return fmt.Errorf("%w: opname %s is %s, cannot finalize", shared.ErrInvalidState, op.Number, op.Status)
	}

	var movements []ledger.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, opnameID, StatusInProgress, StatusCompleted); err != nil {
			return err
		}
		// the count sheet is read after the status flip takes the row
		// lock, so a count running concurrently either lands before
		// this read or is rejected
		lines, err := tx.Lines(ctx, opnameID)
		if err != nil {
			return err
		}
		if s.policy == PolicyBlock {
			var uncounted []int64
			for _, line := range lines {
				if !line.Counted() {
					uncounted = append(uncounted, line.ProductID)
				}
			}
			if len(uncounted) > 0 {
				return fmt.Errorf("%w: %d lines uncounted (products %v)", shared.ErrValidation, len(uncounted), uncounted)
			}
		}
		for _, line := range lines {
			variance := line.Variance()
			if !line.Counted() || variance == 0 {
				continue
			}
			direction := adjustment.DirectionIncrease
			qty := variance
			if variance < 0 {
				direction = adjustment.DirectionDecrease
				qty = -variance
			}
			_, mv, err := s.adjustments.CreateInTx(ctx, tx.Adjustments(), adjustment.CreateInput{
				TenantID:    tenantID,
				ProductID:   line.ProductID,
				WarehouseID: op.WarehouseID,
				Direction:   direction,
				Qty:         qty,
				Reason:      adjustment.ReasonOpnameVariance,
				Note:        fmt.Sprintf("opname %s: counted %d, system %d", op.Number, *line.CountedQty, line.SystemQty),
				ActorID:     actorID,
				SourceKind:  ledger.RefOpname,
				SourceID:    opnameID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, mv)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recorder.Notify(ctx, tenantID, movements)
	return nil
}

// Cancel abandons an opname before finalization. Both DRAFT and
// IN_PROGRESS can be cancelled since neither has moved stock.
func (s *Service) Cancel(ctx context.Context, tenantID, opnameID int64) error {
	op, _, err := s.repo.GetOpname(ctx, tenantID, opnameID)
	if err != nil {
		return err
	}
	if op.Status != StatusDraft && op.Status != StatusInProgress {
		return fmt.Errorf("%w: opname %s is %s, cannot cancel", shared.ErrInvalidState, op.Number, op.Status)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, opnameID, op.Status, StatusCancelled)
	})
}

// Get loads an opname with its count sheet.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (StockOpname, []Line, error) {
	return s.repo.GetOpname(ctx, tenantID, id)
}

// List returns opnames for a tenant, newest first.
func (s *Service) List(ctx context.Context, tenantID int64, page, perPage int) ([]StockOpname, shared.Pagination, error) {
	return s.repo.ListOpnames(ctx, tenantID, page, perPage)
}
