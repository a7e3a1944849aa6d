/*
Package engine provides the core discount and settlement computation engine.

PURPOSE:
  This package contains the types and algorithms that turn a merged sales
  ledger into settlement-adjusted net payables. One computation run folds
  several independently configured layers over every invoice line:

    1. Record normalization (coerce-or-default typing)
    2. Tier matrix resolution (base volume discount)
    3. Standard policy modifiers (category/seasonal)
    4. Custom rule stacking (caller-authored conditional rules)
    5. Advanced formula (single staged predicate)
    6. Aggregation, settlement and final net composition

KEY CONCEPTS IN THIS FILE (types.go):
  - Table/Row: The merged ledger, original cells plus engine accumulators
  - Date: A day-granularity calendar date with explicit presence
  - Computed columns: The eight fields the engine appends per row

DESIGN PRINCIPLES:
  1. Purity: Compute is a pure function of (rows, config); no ambient state
  2. Precision: Uses decimal.Decimal to avoid floating-point drift in money
  3. Graceful degradation: bad cells and bad rules never block the batch
  4. Ordering: rule application order within a row is load-bearing

USAGE:
  table := engine.NewTable([]string{"Dealer_Code", "Quantity", ...}, rows)
  result, err := eng.Compute(ctx, table, cfg)

SEE ALSO:
  - normalize.go: Cell coercion rules
  - matrix.go: Tier band resolution
  - rules.go: Custom rule stack
  - engine.go: The per-row pipeline
*/
package engine

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COLUMN NAMES
// =============================================================================

// Canonical ledger columns the engine types and normalizes.
const (
	ColDealerCode      = "Dealer_Code"
	ColDealerTier      = "Dealer_Tier"
	ColQuantity        = "Quantity"
	ColGrossValue      = "Gross_Invoice_Value"
	ColInvoiceDate     = "Invoice_Date"
	ColPaymentDate     = "Payment_Receipt_Date"
	ColProductCategory = "Product_Category"
)

// Columns the engine appends to every output row, in output order.
const (
	ColBaseDiscount     = "Base_Discount_%"
	ColPolicyModifiers  = "Policy_Modifiers_%"
	ColCustomAdjust     = "Custom_Adjustments_%"
	ColFinalDiscount    = "Final_Discount_%"
	ColDiscountAmount   = "Discount_Amount"
	ColPenaltyPct       = "Penalty_Percentage_%"
	ColSettlementAmount = "Settlement_Adjustment_Amount"
	ColFinalNet         = "Final_Net_Amount"
)

// ComputedColumns lists the appended columns in the order they are exported.
func ComputedColumns() []string {
	return []string{
		ColBaseDiscount,
		ColPolicyModifiers,
		ColCustomAdjust,
		ColFinalDiscount,
		ColDiscountAmount,
		ColPenaltyPct,
		ColSettlementAmount,
		ColFinalNet,
	}
}

// DefaultDealerTier is substituted when a row has no Dealer_Tier value.
const DefaultDealerTier = "Unregistered/Direct"

// =============================================================================
// DATE - Day-granularity calendar date with explicit presence
// =============================================================================

// Date is a calendar day. The zero value means "absent": unparsable cells
// and the PENDING payment sentinel both normalize to an absent Date.
type Date struct {
	Time  time.Time
	Valid bool
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Valid: true}
}

func (d Date) Month() time.Month { return d.Time.Month() }

// DaysUntil returns the whole-day gap from d to other. Negative when other
// precedes d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format("2006-01-02")
}

// =============================================================================
// ROW - One invoice line with engine accumulators
// =============================================================================

// Row is one merged invoice line. Cells holds every original column value
// as a string; the typed fields below are filled by Normalize and mutated
// only by the engine's own stages. Rows are never shared across tables.
type Row struct {
	Cells map[string]string

	// Canonical typed fields (written by Normalize).
	DealerTier  string
	Quantity    int64
	GrossValue  decimal.Decimal
	InvoiceDate Date
	PaymentDate Date

	// Accumulators, all starting at zero. Stages 2-5 write these;
	// nothing else does.
	BaseDiscount      decimal.Decimal
	PolicyModifiers   decimal.Decimal
	CustomAdjustments decimal.Decimal

	// Derived fields, written once each by the aggregation, settlement
	// and net-composition stages.
	FinalDiscount        decimal.Decimal
	DiscountAmount       decimal.Decimal
	PenaltyPct           decimal.Decimal
	SettlementAdjustment decimal.Decimal
	FinalNet             decimal.Decimal
}

// ComputedDecimal returns the engine-computed field by column name, with
// ok=false for any other column.
func (r *Row) ComputedDecimal(name string) (decimal.Decimal, bool) {
	switch name {
	case ColBaseDiscount:
		return r.BaseDiscount, true
	case ColPolicyModifiers:
		return r.PolicyModifiers, true
	case ColCustomAdjust:
		return r.CustomAdjustments, true
	case ColFinalDiscount:
		return r.FinalDiscount, true
	case ColDiscountAmount:
		return r.DiscountAmount, true
	case ColPenaltyPct:
		return r.PenaltyPct, true
	case ColSettlementAmount:
		return r.SettlementAdjustment, true
	case ColFinalNet:
		return r.FinalNet, true
	default:
		return decimal.Zero, false
	}
}

// Cell returns the row's value for a column name, covering both original
// merged columns and the engine-computed columns.
func (r *Row) Cell(name string) string {
	if d, ok := r.ComputedDecimal(name); ok {
		return d.String()
	}
	return r.Cells[name]
}

// =============================================================================
// TABLE - The merged ledger
// =============================================================================

// Table is an ordered set of columns plus the rows beneath them. Column
// order is preserved end to end so exports match the uploaded layout.
type Table struct {
	Columns []string
	Rows    []*Row

	colSet map[string]bool
}

// NewTable builds a table over the given column order. Each cells map
// becomes one row; missing keys read as empty cells.
func NewTable(columns []string, cells []map[string]string) *Table {
	t := &Table{Columns: columns, colSet: make(map[string]bool, len(columns))}
	for _, c := range columns {
		t.colSet[c] = true
	}
	for _, m := range cells {
		if m == nil {
			m = make(map[string]string)
		}
		t.Rows = append(t.Rows, &Row{Cells: m})
	}
	return t
}

// Clone returns a deep copy of the table: fresh rows over fresh cell maps,
// same column order. Typed and computed fields start zeroed, as in NewTable;
// callers clone before a run so the source table is never mutated.
func (t *Table) Clone() *Table {
	cells := make([]map[string]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		m := make(map[string]string, len(r.Cells))
		for k, v := range r.Cells {
			m[k] = v
		}
		cells = append(cells, m)
	}
	return NewTable(append([]string{}, t.Columns...), cells)
}

// HasColumn reports whether the merged schema contains the column.
func (t *Table) HasColumn(name string) bool {
	if t.colSet == nil {
		t.colSet = make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			t.colSet[c] = true
		}
	}
	return t.colSet[name]
}

// ColumnData exposes one row's columns as typed values for predicate
// evaluation: canonical fields use their normalized types, any other cell
// that parses as a number is exposed numerically, everything else as a
// string.
func (r *Row) ColumnData(columns []string) map[string]interface{} {
	data := make(map[string]interface{}, len(columns))
	for _, c := range columns {
		switch c {
		case ColQuantity:
			data[c] = float64(r.Quantity)
		case ColGrossValue:
			data[c] = r.GrossValue.InexactFloat64()
		case ColDealerTier:
			data[c] = r.DealerTier
		default:
			cell := r.Cells[c]
			if f, err := strconv.ParseFloat(cell, 64); err == nil {
				data[c] = f
			} else {
				data[c] = cell
			}
		}
	}
	return data
}
