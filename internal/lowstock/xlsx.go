package lowstock

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Low Stock"

var xlsxHeader = []any{"ID", "Name", "SKU", "Category", "Bundle", "Stock", "Threshold", "Threshold Source", "Bin"}

// WriteXLSX renders the low-stock report as a single-sheet workbook.
func WriteXLSX(w io.Writer, items []Item) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, "A1", &xlsxHeader); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return err
	}

	for i, it := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{it.ID, it.Name, it.SKU, it.Category, it.IsBundle, it.Stock, it.LowStockThreshold, it.ThresholdSource, it.BinLocation}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_, err = f.WriteTo(w)
	return err
}
