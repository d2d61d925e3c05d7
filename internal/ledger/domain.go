package ledger

import (
	"errors"
	"time"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// KindIn represents an inbound movement, e.g. a purchase receipt.
	KindIn MovementKind = "IN"
	// KindOut represents an outbound movement.
	KindOut MovementKind = "OUT"
	// KindAdjust indicates manual adjustments.
	KindAdjust MovementKind = "ADJUST"
	// KindTransferOut is the source-side leg of a warehouse transfer.
	KindTransferOut MovementKind = "TRANSFER_OUT"
	// KindTransferIn is the destination-side leg of a warehouse transfer.
	KindTransferIn MovementKind = "TRANSFER_IN"
)

// Reference kinds identify which workflow caused a movement.
const (
	RefAdjustment    = "StockAdjustment"
	RefTransfer      = "StockTransfer"
	RefOpname        = "StockOpname"
	RefPurchaseOrder = "PurchaseOrder"
)

// Movement is one immutable ledger entry. Rows are append-only; corrections
// are new compensating movements, never updates.
type Movement struct {
	ID          int64        `json:"id"`
	TenantID    int64        `json:"tenant_id"`
	ProductID   int64        `json:"product_id"`
	WarehouseID int64        `json:"warehouse_id"`
	BatchID     int64        `json:"batch_id"`
	Qty         int64        `json:"qty"`
	Kind        MovementKind `json:"kind"`
	RefKind     string       `json:"ref_kind"`
	RefID       int64        `json:"ref_id"`
	ActorID     int64        `json:"actor_id"`
	Note        string       `json:"note"`
	CreatedAt   time.Time    `json:"created_at"`
}

// StockBatch is the mutable current-quantity record for a product in a
// warehouse. The rolled-up batch has no lot reference; batch-tracked
// receipts get their own row carrying supplier and cost.
type StockBatch struct {
	ID           int64      `json:"id"`
	TenantID     int64      `json:"tenant_id"`
	ProductID    int64      `json:"product_id"`
	WarehouseID  int64      `json:"warehouse_id"`
	SupplierID   int64      `json:"supplier_id,omitempty"`
	UnitCost     float64    `json:"unit_cost,omitempty"`
	LotRef       string     `json:"lot_ref,omitempty"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	QtyOnHand    int64      `json:"qty_on_hand"`
	AllocatedQty int64      `json:"allocated_qty"`
	AvailableQty int64      `json:"available_qty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RecordInput describes one movement to record.
type RecordInput struct {
	TenantID    int64
	ProductID   int64
	WarehouseID int64
	// BatchID targets a specific batch row. Zero addresses the
	// (product, warehouse) pair: inbound stock lands on the rolled-up
	// batch, created on first use; outbound stock drains across every
	// batch of the pair, oldest receipt first.
	BatchID int64
	Qty     int64
	Kind    MovementKind
	RefKind string
	RefID   int64
	ActorID int64
	Note    string
}

// MovementFilter filters the movement history listing.
type MovementFilter struct {
	TenantID    int64
	ProductID   int64
	WarehouseID int64
	Kind        MovementKind
	From        time.Time
	To          time.Time
	Page        int
	PerPage     int
}

// Discrepancy reports a (product, warehouse) pair whose stored quantity,
// summed across all its batches, disagrees with the sum of its ledger
// entries. Produced only by the integrity scan.
type Discrepancy struct {
	ProductID   int64 `json:"product_id"`
	WarehouseID int64 `json:"warehouse_id"`
	LedgerQty   int64 `json:"ledger_qty"`
	BatchQty    int64 `json:"batch_qty"`
}

// ErrBatchNotFound indicates a missing stock batch row.
var ErrBatchNotFound = errors.New("stock batch not found")
