// Package export writes the scanner's local state to an xlsx workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rl1809/scan-sync/internal/core/domain"
)

const (
	InventorySheet = "Inventory"
	PendingSheet   = "Pending"
)

var (
	inventoryHeaders = []string{"Barcode", "Product", "Colour", "Size", "Zone", "Quantity", "Last Modified"}
	pendingHeaders   = []string{"Mutation ID", "Barcode", "Action", "Zone", "Product", "Queued At"}
)

// Write renders the projection and the unsynced queue as two sheets.
func Write(w io.Writer, records []domain.LocalRecord, pending []domain.PendingMutation) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}

	if err := f.SetSheetName("Sheet1", InventorySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(PendingSheet); err != nil {
		return err
	}

	inventory := make([][]any, 0, len(records))
	for _, r := range records {
		inventory = append(inventory, []any{
			r.Barcode, r.Product, r.Colour, r.Size, r.Zone, r.Quantity, formatTime(r.LastModified),
		})
	}
	if err := writeSheet(f, InventorySheet, inventoryHeaders, inventory, headerStyle); err != nil {
		return err
	}

	queued := make([][]any, 0, len(pending))
	for _, m := range pending {
		queued = append(queued, []any{
			m.ID, m.Barcode, string(m.Action), m.Zone, m.ProductData.Product, formatTime(m.CreatedAt),
		})
	}
	if err := writeSheet(f, PendingSheet, pendingHeaders, queued, headerStyle); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	_, err = f.WriteTo(w)
	return err
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.AutoFilter(sheet, "A1:"+last, []excelize.AutoFilterOptions{}); err != nil {
		return fmt.Errorf("autofilter %s: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, Split: true, YSplit: 1})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
