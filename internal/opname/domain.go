package opname

import "time"

// Status of a stock opname. COMPLETED and CANCELLED are terminal.
type Status string

const (
	// StatusDraft means the opname exists but counting has not started.
	StatusDraft Status = "DRAFT"
	// StatusInProgress means the stock snapshot is frozen and counts are
	// being recorded.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted means variances have been posted.
	StatusCompleted Status = "COMPLETED"
	// StatusCancelled means the opname was abandoned without posting.
	StatusCancelled Status = "CANCELLED"
)

// UncountedPolicy decides what finalization does with snapshot lines that
// never received a physical count.
type UncountedPolicy string

const (
	// PolicySkip leaves uncounted lines untouched.
	PolicySkip UncountedPolicy = "skip"
	// PolicyBlock refuses to finalize while any line is uncounted.
	PolicyBlock UncountedPolicy = "block"
)

// Valid reports whether the policy is one of the known values.
func (p UncountedPolicy) Valid() bool {
	return p == PolicySkip || p == PolicyBlock
}

// StockOpname is a physical stock count for one warehouse.
type StockOpname struct {
	ID          int64      `json:"id"`
	TenantID    int64      `json:"tenant_id"`
	Number      string     `json:"number"`
	WarehouseID int64      `json:"warehouse_id"`
	Status      Status     `json:"status"`
	Note        string     `json:"note"`
	ActorID     int64      `json:"actor_id"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// Line is one product in the count sheet. SystemQty is frozen when the
// opname starts; CountedQty stays nil until someone records a count.
type Line struct {
	ID         int64      `json:"id"`
	OpnameID   int64      `json:"opname_id"`
	ProductID  int64      `json:"product_id"`
	SystemQty  int64      `json:"system_qty"`
	CountedQty *int64     `json:"counted_qty,omitempty"`
	CountedBy  int64      `json:"counted_by,omitempty"`
	CountedAt  *time.Time `json:"counted_at,omitempty"`
}

// Counted reports whether a physical count was recorded for the line.
func (l Line) Counted() bool {
	return l.CountedQty != nil
}

// Variance returns counted minus system quantity, zero when uncounted.
func (l Line) Variance() int64 {
	if l.CountedQty == nil {
		return 0
	}
	return *l.CountedQty - l.SystemQty
}

// StockLevel is a product's on-hand quantity summed across every batch of
// the warehouse, rollup and lot rows alike. The snapshot at Start is built
// from these.
type StockLevel struct {
	ProductID int64 `json:"product_id"`
	Qty       int64 `json:"qty"`
}

// CreateInput describes a requested opname.
type CreateInput struct {
	TenantID    int64
	Number      string
	WarehouseID int64
	Note        string
	ActorID     int64
}
