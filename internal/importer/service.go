// Package importer ingests spreadsheet stock adjustments. Each data row
// becomes one adjustment in its own transaction, so valid rows commit even
// when others fail.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Danu-Nur/lumbung-sub003/internal/adjustment"
	"github.com/Danu-Nur/lumbung-sub003/internal/masterdata"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// Expected sheet columns, after one header row.
const (
	colWarehouse = iota
	colSKU
	colQty
	colDirection
	colReason
	colNote
)

// ResolverPort maps human-entered identifiers to master data.
type ResolverPort interface {
	ProductBySKU(ctx context.Context, tenantID int64, sku string) (masterdata.Product, error)
	WarehouseByCode(ctx context.Context, tenantID int64, code string) (masterdata.Warehouse, error)
}

// RowError describes one rejected row.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Result summarises an import run.
type Result struct {
	Imported int        `json:"imported"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Service runs spreadsheet imports through the adjustment workflow.
type Service struct {
	resolver    ResolverPort
	adjustments *adjustment.Service
	logger      *slog.Logger
}

// NewService constructs the importer.
func NewService(resolver ResolverPort, adjustments *adjustment.Service, logger *slog.Logger) *Service {
	return &Service{resolver: resolver, adjustments: adjustments, logger: logger}
}

// Import reads an xlsx stream and posts one adjustment per data row. The
// first row is treated as a header. Row numbers in errors are 1-based
// sheet rows, matching what the user sees in their spreadsheet.
func (s *Service) Import(ctx context.Context, tenantID, actorID int64, r io.Reader) (Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("%w: not a valid xlsx file", shared.ErrValidation)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Result{}, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return Result{}, fmt.Errorf("%w: sheet %s has no data rows", shared.ErrValidation, sheet)
	}

	var result Result
	for i, row := range rows[1:] {
		rowNum := i + 2
		if err := s.importRow(ctx, tenantID, actorID, row); err != nil {
			result.Errors = append(result.Errors, RowError{Row: rowNum, Message: err.Error()})
			continue
		}
		result.Imported++
	}
	if s.logger != nil {
		s.logger.Info("import finished",
			slog.Int64("tenant_id", tenantID),
			slog.Int("imported", result.Imported),
			slog.Int("rejected", len(result.Errors)))
	}
	return result, nil
}

func (s *Service) importRow(ctx context.Context, tenantID, actorID int64, row []string) error {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	code := cell(colWarehouse)
	sku := cell(colSKU)
	if code == "" || sku == "" {
		return fmt.Errorf("warehouse code and SKU are required")
	}
	qty, err := strconv.ParseInt(cell(colQty), 10, 64)
	if err != nil || qty <= 0 {
		return fmt.Errorf("quantity %q must be a positive integer", cell(colQty))
	}
	direction := adjustment.Direction(strings.ToLower(cell(colDirection)))
	if !direction.Valid() {
		return fmt.Errorf("direction %q must be increase or decrease", cell(colDirection))
	}
	reason := cell(colReason)
	if reason == "" {
		reason = "IMPORT"
	}

	warehouse, err := s.resolver.WarehouseByCode(ctx, tenantID, code)
	if err != nil {
		return err
	}
	product, err := s.resolver.ProductBySKU(ctx, tenantID, sku)
	if err != nil {
		return err
	}

	_, err = s.adjustments.Create(ctx, adjustment.CreateInput{
		TenantID:    tenantID,
		ProductID:   product.ID,
		WarehouseID: warehouse.ID,
		Direction:   direction,
		Qty:         qty,
		Reason:      reason,
		Note:        cell(colNote),
		ActorID:     actorID,
	})
	return err
}
