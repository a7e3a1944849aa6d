/*
Package ledger handles the tabular boundary around the engine: reading
uploaded workbooks, joining the dealer master into the sales ledger, and
exporting computed output.

PURPOSE:
  The engine itself is pure; this package owns the messy edges. Uploads
  arrive as .xlsx or .csv with inconsistent header whitespace, the master
  table must be VLOOKUP-merged into the ledger on Dealer_Code before any
  computation, and results go back out as Excel or BOM-prefixed CSV.

FILE FORMATS:
  .xlsx   read via excelize (first sheet, first row is the header)
  .csv    read via encoding/csv (header row required, UTF-8 BOM tolerated)

SEE ALSO:
  - merge.go: The master->ledger join and its fatal precondition
  - export.go: Output writers
*/
package ledger

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/warp/discount-engine/engine"
)

// LoadTable reads a tabular file into an engine.Table, dispatching on the
// filename extension. Header cells are whitespace-trimmed; data cells are
// kept verbatim (normalization is the engine's job).
func LoadTable(r io.Reader, filename string) (*engine.Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return loadXLSX(r)
	case ".csv":
		return loadCSV(r)
	default:
		return nil, fmt.Errorf("unsupported file type %q (want .xlsx or .csv)", filepath.Ext(filename))
	}
}

func loadXLSX(r io.Reader) (*engine.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return tableFromRows(rows)
}

func loadCSV(r io.Reader) (*engine.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, bom)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return tableFromRows(records)
}

// tableFromRows builds a table from a header row plus data rows. Short rows
// leave trailing columns empty; extra cells beyond the header are ignored.
func tableFromRows(rows [][]string) (*engine.Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("file has no header row")
	}

	var columns []string
	for _, h := range rows[0] {
		columns = append(columns, strings.TrimSpace(h))
	}

	var cells []map[string]string
	for _, row := range rows[1:] {
		m := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		cells = append(cells, m)
	}
	return engine.NewTable(columns, cells), nil
}
