// Package export renders batch traces as spreadsheets.
package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"smokehouse/internal/trace"
	"smokehouse/internal/units"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetMaterials = "Materials"
	sheetLots      = "Lots"
	sheetTotals    = "Totals"
)

// Filename is the attachment name used for the trace of a batch.
func Filename(tr *trace.BatchTrace) string {
	code := tr.Batch.Code
	if code == "" {
		code = tr.Batch.ID
	}
	return fmt.Sprintf("trace-%s.xlsx", code)
}

// WriteBatchTrace writes tr to w as an xlsx workbook with one sheet for targets,
// one for contributing lots and one for per-unit totals.
func WriteBatchTrace(w io.Writer, tr *trace.BatchTrace) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetMaterials); err != nil {
		return err
	}
	for _, name := range []string{sheetLots, sheetTotals} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	materials := [][]any{{"Material", "Category", "Unit", "Target", "Used", "Remaining", "Tolerance %", "Within tolerance", "Critical", "Effective ppm"}}
	lots := [][]any{{"Material", "Lot number", "Internal code", "Supplier", "Received", "Expires", "Quantity", "Unit", "Lot status"}}

	all := append(append([]trace.MaterialTrace{}, tr.Materials...), tr.Extras...)
	for _, m := range all {
		row := []any{m.MaterialName, m.Category}
		if t := m.Target; t != nil {
			var ppm any
			if t.EffectivePpm != nil {
				ppm = round(*t.EffectivePpm)
			}
			row = append(row, t.Unit, round(t.Target), round(t.Used), round(t.Remaining), t.TolerancePct, t.WithinTolerance, t.IsCritical, ppm)
		} else {
			used, unit := usedTotal(m)
			row = append(row, unit, nil, used, nil, nil, nil, false, nil)
		}
		materials = append(materials, row)

		for _, lot := range m.Lots {
			var expires any
			if lot.ExpiresAt != nil {
				expires = lot.ExpiresAt.Format("2006-01-02")
			}
			lots = append(lots, []any{
				m.MaterialName, lot.LotNumber, lot.InternalCode, lot.SupplierName,
				lot.ReceivedAt.Format("2006-01-02"), expires, round(lot.Quantity), lot.Unit, lot.LotStatus,
			})
		}
	}

	totals := [][]any{{"Unit", "Total"}}
	unitNames := make([]string, 0, len(tr.TotalsByUnit))
	for unit := range tr.TotalsByUnit {
		unitNames = append(unitNames, unit)
	}
	sort.Strings(unitNames)
	for _, unit := range unitNames {
		totals = append(totals, []any{unit, tr.TotalsByUnit[unit].Round(4).InexactFloat64()})
	}

	for sheet, rows := range map[string][][]any{sheetMaterials: materials, sheetLots: lots, sheetTotals: totals} {
		if err := writeRows(f, sheet, rows); err != nil {
			return fmt.Errorf("sheet %s: %w", sheet, err)
		}
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// usedTotal sums an extra's lots in the base unit of the first lot.
func usedTotal(m trace.MaterialTrace) (float64, string) {
	if len(m.Lots) == 0 {
		return 0, ""
	}
	unit := units.BaseUnit(m.Lots[0].Unit)
	total := decimal.Zero
	for _, lot := range m.Lots {
		total = total.Add(decimal.NewFromFloat(units.Convert(lot.Quantity, lot.Unit, unit)))
	}
	return total.Round(4).InexactFloat64(), unit
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}
