// Package masterdata holds the read-side reference lookups the ledger
// depends on. Product and warehouse CRUD lives elsewhere; this package only
// answers "does this id exist, belong to this tenant, and is it usable".
package masterdata

import "time"

// Product is the reference view of a product used by stock workflows.
type Product struct {
	ID                int64
	TenantID          int64
	SKU               string
	Name              string
	Unit              string
	CostPrice         float64
	SellingPrice      float64
	LowStockThreshold int64
	DeletedAt         *time.Time
}

// Warehouse is the reference view of a warehouse used by stock workflows.
type Warehouse struct {
	ID        int64
	TenantID  int64
	Code      string
	Name      string
	Active    bool
	DeletedAt *time.Time
}

// PriceHistoryEntry records a change of a product's reference cost price.
type PriceHistoryEntry struct {
	ID        int64
	ProductID int64
	CostPrice float64
	Source    string
	CreatedAt time.Time
}
