package transfer

import "time"

// Status of a stock transfer. COMPLETED and CANCELLED are terminal.
type Status string

const (
	// StatusDraft means no stock has moved yet.
	StatusDraft Status = "DRAFT"
	// StatusInTransit means stock has left the source warehouse.
	StatusInTransit Status = "IN_TRANSIT"
	// StatusCompleted means stock has arrived at the destination.
	StatusCompleted Status = "COMPLETED"
	// StatusCancelled means the transfer was abandoned while still DRAFT.
	StatusCancelled Status = "CANCELLED"
)

// StockTransfer is the transfer header.
type StockTransfer struct {
	ID            int64      `json:"id"`
	TenantID      int64      `json:"tenant_id"`
	Number        string     `json:"number"`
	SourceID      int64      `json:"source_warehouse_id"`
	DestinationID int64      `json:"destination_warehouse_id"`
	Status        Status     `json:"status"`
	Note          string     `json:"note"`
	ActorID       int64      `json:"actor_id"`
	CreatedAt     time.Time  `json:"created_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Line is one product movement within a transfer.
type Line struct {
	ID         int64 `json:"id"`
	TransferID int64 `json:"transfer_id"`
	ProductID  int64 `json:"product_id"`
	Qty        int64 `json:"qty"`
}

// LineInput describes a requested transfer line.
type LineInput struct {
	ProductID int64
	Qty       int64
}

// CreateInput describes a requested transfer.
type CreateInput struct {
	TenantID      int64
	Number        string
	SourceID      int64
	DestinationID int64
	Note          string
	ActorID       int64
	Lines         []LineInput
}
