/*
export.go - Computed output writers

PURPOSE:
  Writes a computation result as an Excel workbook or a CSV file. Column
  order is the run's output order: every original merged column first,
  then the eight engine-computed columns.

EXCEL:
  Single sheet named "Computed_Output". Computed columns are written as
  numbers so spreadsheet formulas work on them; original cells are written
  as the strings they normalized to.

CSV:
  Prefixed with a UTF-8 BOM so Excel on Windows detects the encoding.
*/
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/warp/discount-engine/engine"
)

// bom is the UTF-8 byte order mark, for Excel compatibility.
var bom = []byte{0xEF, 0xBB, 0xBF}

const outputSheet = "Computed_Output"

// WriteXLSX writes the result as an Excel workbook.
func WriteXLSX(w io.Writer, res *engine.Result) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", outputSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(outputSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range res.Table.Rows {
		row := make([]interface{}, len(res.Columns))
		for j, c := range res.Columns {
			if d, ok := r.ComputedDecimal(c); ok {
				row[j] = d.InexactFloat64()
			} else {
				row[j] = r.Cells[c]
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(outputSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	return f.Write(w)
}

// WriteCSV writes the result as a BOM-prefixed CSV file.
func WriteCSV(w io.Writer, res *engine.Result) error {
	if _, err := w.Write(bom); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(res.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(res.Columns))
	for _, r := range res.Table.Rows {
		for j, c := range res.Columns {
			record[j] = r.Cell(c)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
