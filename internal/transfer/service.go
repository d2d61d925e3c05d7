package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransfer(ctx context.Context, tenantID, id int64) (StockTransfer, []Line, error)
	ListTransfers(ctx context.Context, tenantID int64, page, perPage int) ([]StockTransfer, shared.Pagination, error)
}

// TxRepository exposes transactional operations for the workflow.
type TxRepository interface {
	InsertTransfer(ctx context.Context, tr StockTransfer) (StockTransfer, error)
	InsertLine(ctx context.Context, line Line) error
	// UpdateStatus flips the status only when the row is still in the
	// expected state. Zero rows affected means a concurrent or repeated
	// transition and surfaces as ErrInvalidState: this guard is the
	// idempotency barrier for send and complete.
	UpdateStatus(ctx context.Context, transferID int64, from, to Status) error
	Ledger() ledger.TxRepository
}

// Service drives the transfer state machine. All stock effects go through
// the movement recorder inside one transaction per transition.
type Service struct {
	repo     RepositoryPort
	recorder *ledger.Recorder
	refs     ledger.RefDataPort
	logger   *slog.Logger
}

// NewService constructs the transfer service.
func NewService(repo RepositoryPort, recorder *ledger.Recorder, refs ledger.RefDataPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, recorder: recorder, refs: refs, logger: logger}
}

// Create persists a DRAFT transfer. No stock moves yet.
func (s *Service) Create(ctx context.Context, in CreateInput) (StockTransfer, error) {
	if in.SourceID == in.DestinationID {
		return StockTransfer{}, fmt.Errorf("%w: source and destination warehouse must differ", shared.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return StockTransfer{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	if _, err := s.refs.ResolveWarehouse(ctx, in.TenantID, in.SourceID); err != nil {
		return StockTransfer{}, err
	}
	if _, err := s.refs.ResolveWarehouse(ctx, in.TenantID, in.DestinationID); err != nil {
		return StockTransfer{}, err
	}
	for _, line := range in.Lines {
		if line.Qty <= 0 {
			return StockTransfer{}, fmt.Errorf("%w: line quantity must be positive", shared.ErrValidation)
		}
		if _, err := s.refs.ResolveProduct(ctx, in.TenantID, line.ProductID); err != nil {
			return StockTransfer{}, err
		}
	}

	number := in.Number
	if number == "" {
		number = fmt.Sprintf("TRF-%d", time.Now().UnixNano())
	}
	tr := StockTransfer{
		TenantID:      in.TenantID,
		Number:        number,
		SourceID:      in.SourceID,
		DestinationID: in.DestinationID,
		Status:        StatusDraft,
		Note:          in.Note,
		ActorID:       in.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertTransfer(ctx, tr)
		if err != nil {
			return err
		}
		for _, line := range in.Lines {
			if err := tx.InsertLine(ctx, Line{TransferID: created.ID, ProductID: line.ProductID, Qty: line.Qty}); err != nil {
				return err
			}
		}
		tr = created
		return nil
	})
	if err != nil {
		return StockTransfer{}, err
	}
	return tr, nil
}

// Send moves DRAFT to IN_TRANSIT, posting one TRANSFER_OUT movement per
// line at the source warehouse. All lines post or none do.
func (s *Service) Send(ctx context.Context, tenantID, transferID, actorID int64) error {
	tr, lines, err := s.repo.GetTransfer(ctx, tenantID, transferID)
	if err != nil {
		return err
	}
	if tr.Status != StatusDraft {
		return fmt.Errorf("%w: transfer %s is %s, cannot send", shared.ErrInvalidState, tr.Number, tr.Status)
	}

	var movements []ledger.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, transferID, StatusDraft, StatusInTransit); err != nil {
			return err
		}
		for _, line := range lines {
			mv, err := s.recorder.RecordInTx(ctx, tx.Ledger(), ledger.RecordInput{
				TenantID:    tenantID,
				ProductID:   line.ProductID,
				WarehouseID: tr.SourceID,
				Qty:         -line.Qty,
				Kind:        ledger.KindTransferOut,
				RefKind:     ledger.RefTransfer,
				RefID:       transferID,
				ActorID:     actorID,
				Note:        fmt.Sprintf("transfer %s to warehouse %d", tr.Number, tr.DestinationID),
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

// Complete moves IN_TRANSIT to COMPLETED, posting one TRANSFER_IN movement
// per line at the destination warehouse.
func (s *Service) Complete(ctx context.Context, tenantID, transferID, actorID int64) error {
	tr, lines, err := s.repo.GetTransfer(ctx, tenantID, transferID)
	if err != nil {
		return err
	}
	if tr.Status != StatusInTransit {
		return fmt.Errorf("%w: transfer %s is %s, cannot complete", shared.ErrInvalidState, tr.Number, tr.Status)
	}

	var movements []ledger.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, transferID, StatusInTransit, StatusCompleted); err != nil {
			return err
		}
		for _, line := range lines {
			mv, err := s.recorder.RecordInTx(ctx, tx.Ledger(), ledger.RecordInput{
				TenantID:    tenantID,
				ProductID:   line.ProductID,
				WarehouseID: tr.DestinationID,
				Qty:         line.Qty,
				Kind:        ledger.KindTransferIn,
				RefKind:     ledger.RefTransfer,
				RefID:       transferID,
				ActorID:     actorID,
				Note:        fmt.Sprintf("transfer %s from warehouse %d", tr.Number, tr.SourceID),
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

// Cancel abandons a DRAFT transfer. Once sent, a transfer can only be
// completed; the remedy for goods already in transit is a reverse
// transfer, not a cancel.
func (s *Service) Cancel(ctx context.Context, tenantID, transferID int64) error {
	tr, _, err := s.repo.GetTransfer(ctx, tenantID, transferID)
	if err != nil {
		return err
	}
	if tr.Status != StatusDraft {
		return fmt.Errorf("%w: transfer %s is %s, only DRAFT can be cancelled", shared.ErrInvalidState, tr.Number, tr.Status)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, transferID, StatusDraft, StatusCancelled)
	})
}

// Get loads a transfer with its lines.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (StockTransfer, []Line, error) {
	return s.repo.GetTransfer(ctx, tenantID, id)
}

// List returns transfers for a tenant, newest first.
func (s *Service) List(ctx context.Context, tenantID int64, page, perPage int) ([]StockTransfer, shared.Pagination, error) {
	return s.repo.ListTransfers(ctx, tenantID, page, perPage)
}
