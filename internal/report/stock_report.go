package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"sklad-ledger/internal/core"

	"github.com/xuri/excelize/v2"
)

// ErrEmpty is returned when there is nothing to put in a report.
var ErrEmpty = errors.New("no products found for report")

const stockSheet = "Stock"

var stockHeader = []interface{}{"Name", "Article", "Unit", "Quantity", "Reserved", "Available"}

// WriteStockSummary renders per-nomenclature totals as an XLSX workbook.
// title goes into A1, the header into row 3 and data from row 4.
func WriteStockSummary(w io.Writer, title string, rows []core.StockSummaryRow, generatedAt time.Time) error {
	if len(rows) == 0 {
		return ErrEmpty
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), stockSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetCellValue(stockSheet, "A1", title); err != nil {
		return fmt.Errorf("failed to write title: %w", err)
	}
	if err := f.SetCellValue(stockSheet, "A2", "Generated "+generatedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to write timestamp: %w", err)
	}

	header := stockHeader
	if err := f.SetSheetRow(stockSheet, "A3", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9D9D9"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetCellStyle(stockSheet, "A3", "F3", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	row := 4
	for _, r := range rows {
		excelRow := []interface{}{r.Name, r.Article, r.Unit, r.Quantity, r.Reserved, r.Quantity - r.Reserved}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", row, err)
		}
		if err := f.SetSheetRow(stockSheet, cell, &excelRow); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}

	if err := f.SetColWidth(stockSheet, "A", "A", 40); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}
	if err := f.SetColWidth(stockSheet, "B", "F", 14); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// StockTitle is the report heading for the whole organization or one warehouse.
func StockTitle(warehouse *core.Warehouse) string {
	if warehouse == nil {
		return "Stock across all warehouses"
	}
	return fmt.Sprintf("Stock at %s (%s)", warehouse.Name, warehouse.Code)
}
