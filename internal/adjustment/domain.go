package adjustment

import "time"

// Direction of a stock adjustment.
type Direction string

const (
	// DirectionIncrease adds stock.
	DirectionIncrease Direction = "increase"
	// DirectionDecrease removes stock.
	DirectionDecrease Direction = "decrease"
)

// Well-known reason codes.
const (
	ReasonCorrection     = "CORRECTION"
	ReasonOpnameVariance = "OPNAME_VARIANCE"
)

// StockAdjustment is the business-level record pointing at the movement it
// caused. Rows are immutable once written; a reversal is a brand-new
// adjustment of the opposite direction. ReversedByID is bookkeeping set on
// the original when a reversal posts, guarding against double reversal.
type StockAdjustment struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	ProductID    int64     `json:"product_id"`
	WarehouseID  int64     `json:"warehouse_id"`
	Direction    Direction `json:"direction"`
	Qty          int64     `json:"qty"`
	Reason       string    `json:"reason"`
	Note         string    `json:"note"`
	ActorID      int64     `json:"actor_id"`
	MovementID   int64     `json:"movement_id"`
	SourceKind   string    `json:"source_kind,omitempty"`
	SourceID     int64     `json:"source_id,omitempty"`
	ReversalOfID int64     `json:"reversal_of_id,omitempty"`
	ReversedByID int64     `json:"reversed_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SignedQty returns the ledger delta for the adjustment.
func (a StockAdjustment) SignedQty() int64 {
	if a.Direction == DirectionDecrease {
		return -a.Qty
	}
	return a.Qty
}

// Opposite returns the reversing direction.
func (d Direction) Opposite() Direction {
	if d == DirectionIncrease {
		return DirectionDecrease
	}
	return DirectionIncrease
}

// Valid reports whether the direction is one of the two known values.
func (d Direction) Valid() bool {
	return d == DirectionIncrease || d == DirectionDecrease
}

// CreateInput describes a requested adjustment.
type CreateInput struct {
	TenantID    int64
	ProductID   int64
	WarehouseID int64
	Direction   Direction
	Qty         int64
	Reason      string
	Note        string
	ActorID     int64
	// SourceKind/SourceID record the workflow that produced the
	// adjustment, e.g. an opname finalization.
	SourceKind string
	SourceID   int64
}
