/*
merge.go - Dealer master -> sales ledger join

PURPOSE:
  Reproduces the Excel-style VLOOKUP step: a left join of selected master
  columns into the sales ledger on Dealer_Code. Dealer_Tier always comes
  along; further master columns are pulled in per caller mappings, with an
  optional rename.

PRECONDITION:
  Dealer_Code must exist in both tables. Its absence is the one fatal
  error of the whole system, raised here before the engine ever runs.

JOIN SEMANTICS:
  - Join values are string-trimmed on both sides before matching.
  - Left join: ledger rows without a master match keep empty cells for the
    merged columns (the engine later defaults the tier).
  - Duplicate master codes: the first occurrence wins.
*/
package ledger

import (
	"strings"

	"github.com/warp/discount-engine/engine"
)

// ColumnMapping selects one master column to merge. Rename is optional;
// when empty the source name is kept.
type ColumnMapping struct {
	Source string `json:"source"`
	Rename string `json:"rename,omitempty"`
}

// Merge joins the master table into the ledger and returns a new merged
// table. The inputs are not modified.
func Merge(ledgerT, masterT *engine.Table, mappings []ColumnMapping) (*engine.Table, error) {
	if !ledgerT.HasColumn(engine.ColDealerCode) {
		return nil, &engine.MissingColumnError{Table: "ledger", Column: engine.ColDealerCode}
	}
	if !masterT.HasColumn(engine.ColDealerCode) {
		return nil, &engine.MissingColumnError{Table: "master", Column: engine.ColDealerCode}
	}

	// Which master columns come along, and under which name.
	type pull struct{ source, target string }
	pulls := []pull{{engine.ColDealerTier, engine.ColDealerTier}}
	for _, m := range mappings {
		source := strings.TrimSpace(m.Source)
		if source == "" || source == engine.ColDealerCode || !masterT.HasColumn(source) {
			continue
		}
		target := strings.TrimSpace(m.Rename)
		if target == "" {
			target = source
		}
		pulls = append(pulls, pull{source, target})
	}

	// Index master rows by trimmed dealer code; first occurrence wins.
	index := make(map[string]*engine.Row, len(masterT.Rows))
	for _, r := range masterT.Rows {
		code := strings.TrimSpace(r.Cells[engine.ColDealerCode])
		if _, seen := index[code]; !seen {
			index[code] = r
		}
	}

	// Merged column order: ledger columns first, then new master columns.
	columns := append([]string{}, ledgerT.Columns...)
	for _, p := range pulls {
		if !ledgerT.HasColumn(p.target) {
			columns = append(columns, p.target)
		}
	}

	var cells []map[string]string
	for _, r := range ledgerT.Rows {
		m := make(map[string]string, len(columns))
		for _, c := range ledgerT.Columns {
			m[c] = r.Cells[c]
		}
		code := strings.TrimSpace(r.Cells[engine.ColDealerCode])
		if master, ok := index[code]; ok {
			for _, p := range pulls {
				m[p.target] = master.Cells[p.source]
			}
		}
		cells = append(cells, m)
	}
	return engine.NewTable(columns, cells), nil
}
