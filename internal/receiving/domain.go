package receiving

import "time"

// OrderStatus of a purchase order. The purchasing lifecycle itself lives
// outside this system; orders show up here once purchasing marks them
// COMPLETED, and receiving stamps received_at exactly once.
type OrderStatus string

const (
	// StatusDraft means the order is still being edited by purchasing.
	StatusDraft OrderStatus = "DRAFT"
	// StatusCompleted means purchasing is done and goods can be received.
	StatusCompleted OrderStatus = "COMPLETED"
	// StatusCancelled means the order will never be received.
	StatusCancelled OrderStatus = "CANCELLED"
)

// PurchaseOrder is the receiving-side view of an order.
type PurchaseOrder struct {
	ID         int64       `json:"id"`
	TenantID   int64       `json:"tenant_id"`
	Number     string      `json:"number"`
	SupplierID int64       `json:"supplier_id"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	ReceivedAt *time.Time  `json:"received_at,omitempty"`
}

// OrderLine is one product on a purchase order.
type OrderLine struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	ProductID   int64   `json:"product_id"`
	WarehouseID int64   `json:"warehouse_id"`
	Qty         int64   `json:"qty"`
	UnitCost    float64 `json:"unit_cost"`
}

// Receipt summarises what one Receive call did.
type Receipt struct {
	OrderID    int64   `json:"order_id"`
	Number     string  `json:"number"`
	BatchIDs   []int64 `json:"batch_ids"`
	TotalQty   int64   `json:"total_qty"`
	TotalValue float64 `json:"total_value"`
}
