package adjustment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAdjustment(ctx context.Context, tenantID, id int64) (StockAdjustment, error)
	ListAdjustments(ctx context.Context, tenantID int64, page, perPage int) ([]StockAdjustment, shared.Pagination, error)
}

// TxRepository exposes transactional operations for the workflow.
type TxRepository interface {
	InsertAdjustment(ctx context.Context, adj StockAdjustment) (StockAdjustment, error)
	SetMovement(ctx context.Context, adjustmentID, movementID int64) error
	MarkReversed(ctx context.Context, adjustmentID, reversalID int64) error
	Ledger() ledger.TxRepository
}

// Service orchestrates manual stock adjustments and their reversals.
type Service struct {
	repo     RepositoryPort
	recorder *ledger.Recorder
	logger   *slog.Logger
}

// NewService constructs the adjustment service.
func NewService(repo RepositoryPort, recorder *ledger.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, recorder: recorder, logger: logger}
}

// Create posts a manual adjustment: one ledger movement plus the
// StockAdjustment row, in a single transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (StockAdjustment, error) {
	if err := validateCreate(in); err != nil {
		return StockAdjustment{}, err
	}
	var (
		created StockAdjustment
		mv      ledger.Movement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, mv, err = s.CreateInTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return StockAdjustment{}, err
	}
	s.recorder.Notify(ctx, in.TenantID, []ledger.Movement{mv})
	return created, nil
}

// CreateInTx runs the adjustment core inside an already-open transaction.
// The opname finalizer uses it to post variance adjustments atomically
// with the opname status flip. Callers must Notify after commit.
func (s *Service) CreateInTx(ctx context.Context, tx TxRepository, in CreateInput) (StockAdjustment, ledger.Movement, error) {
	if err := validateCreate(in); err != nil {
		return StockAdjustment{}, ledger.Movement{}, err
	}
	adj := StockAdjustment{
		TenantID:    in.TenantID,
		ProductID:   in.ProductID,
		WarehouseID: in.WarehouseID,
		Direction:   in.Direction,
		Qty:         in.Qty,
		Reason:      in.Reason,
		Note:        in.Note,
		ActorID:     in.ActorID,
		SourceKind:  in.SourceKind,
		SourceID:    in.SourceID,
	}
	adj, err := tx.InsertAdjustment(ctx, adj)
	if err != nil {
		return StockAdjustment{}, ledger.Movement{}, err
	}
	mv, err := s.recorder.RecordInTx(ctx, tx.Ledger(), ledger.RecordInput{
		TenantID:    in.TenantID,
		ProductID:   in.ProductID,
		WarehouseID: in.WarehouseID,
		Qty:         adj.SignedQty(),
		Kind:        ledger.KindAdjust,
		RefKind:     ledger.RefAdjustment,
		RefID:       adj.ID,
		ActorID:     in.ActorID,
		Note:        in.Note,
	})
	if err != nil {
		return StockAdjustment{}, ledger.Movement{}, err
	}
	if err := tx.SetMovement(ctx, adj.ID, mv.ID); err != nil {
		return StockAdjustment{}, ledger.Movement{}, err
	}
	adj.MovementID = mv.ID
	return adj, mv, nil
}

// Reverse creates a compensating adjustment for a prior one. The original
// row is never mutated beyond the reversed-by back-reference; reversing
// twice is rejected.
func (s *Service) Reverse(ctx context.Context, tenantID, adjustmentID, actorID int64) (StockAdjustment, error) {
	original, err := s.repo.GetAdjustment(ctx, tenantID, adjustmentID)
	if err != nil {
		return StockAdjustment{}, err
	}
	if original.ReversedByID != 0 {
		return StockAdjustment{}, fmt.Errorf("%w: adjustment %d already reversed by %d",
			shared.ErrInvalidState, adjustmentID, original.ReversedByID)
	}

	var (
		reversal StockAdjustment
		mv       ledger.Movement
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		in := CreateInput{
			TenantID:    tenantID,
			ProductID:   original.ProductID,
			WarehouseID: original.WarehouseID,
			Direction:   original.Direction.Opposite(),
			Qty:         original.Qty,
			Reason:      ReasonCorrection,
			Note:        fmt.Sprintf("reversal of adjustment %d", original.ID),
			ActorID:     actorID,
		}
		adj := StockAdjustment{
			TenantID:     in.TenantID,
			ProductID:    in.ProductID,
			WarehouseID:  in.WarehouseID,
			Direction:    in.Direction,
			Qty:          in.Qty,
			Reason:       in.Reason,
			Note:         in.Note,
			ActorID:      in.ActorID,
			ReversalOfID: original.ID,
		}
		adj, err := tx.InsertAdjustment(ctx, adj)
		if err != nil {
			return err
		}
		mv, err = s.recorder.RecordInTx(ctx, tx.Ledger(), ledger.RecordInput{
			TenantID:    in.TenantID,
			ProductID:   in.ProductID,
			WarehouseID: in.WarehouseID,
			Qty:         adj.SignedQty(),
			Kind:        ledger.KindAdjust,
			RefKind:     ledger.RefAdjustment,
			RefID:       adj.ID,
			ActorID:     actorID,
			Note:        adj.Note,
		})
		if err != nil {
			return err
		}
		if err := tx.SetMovement(ctx, adj.ID, mv.ID); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID, adj.ID); err != nil {
			return err
		}
		adj.MovementID = mv.ID
		reversal = adj
		return nil
	})
	if err != nil {
		return StockAdjustment{}, err
	}
	s.recorder.Notify(ctx, tenantID, []ledger.Movement{mv})
	return reversal, nil
}

// Get loads one adjustment.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (StockAdjustment, error) {
	return s.repo.GetAdjustment(ctx, tenantID, id)
}

// List returns adjustments for a tenant, newest first.
func (s *Service) List(ctx context.Context, tenantID int64, page, perPage int) ([]StockAdjustment, shared.Pagination, error) {
	return s.repo.ListAdjustments(ctx, tenantID, page, perPage)
}

func validateCreate(in CreateInput) error {
	if in.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if !in.Direction.Valid() {
		return fmt.Errorf("%w: direction must be increase or decrease", shared.ErrValidation)
	}
	if in.Reason == "" {
		return fmt.Errorf("%w: reason required", shared.ErrValidation)
	}
	return nil
}
