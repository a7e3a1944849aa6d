/*
normalize.go - Record normalization (coerce-or-default typing)

PURPOSE:
  Turns raw heterogeneous cell values into the canonical typed fields the
  rest of the pipeline depends on. Uploaded ledgers are messy: quantities
  arrive as "1,200" or "N/A", dates arrive in several layouts, and unpaid
  invoices carry the literal PENDING token in the payment column.

COERCION POLICY:
  Numerics:  coerce-or-default. Unparsable quantity -> 0, unparsable
             gross value -> 0.0. Never an error.
  Dates:     coerce-or-absent. Unparsable cells and the PENDING sentinel
             normalize to an absent Date; downstream stages treat both
             identically.
  Tier:      missing/blank -> "Unregistered/Direct".

  Normalized values are written back into the row's cells so custom-rule
  matching and exports both see the canonical forms.

SEE ALSO:
  - types.go: Row and Date definitions
  - engine.go: Calls Normalize as pipeline stage 1
*/
package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentPendingSentinel marks a payment not yet received. Matched exactly
// in upper or lower case, per the ledger template.
const PaymentPendingSentinel = "PENDING"

// dateLayouts are tried in order when coercing date cells.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
}

// Normalize fills the row's canonical typed fields from its cells. It never
// fails and has no effect outside the row itself.
func (r *Row) Normalize() {
	r.DealerTier = strings.TrimSpace(r.Cells[ColDealerTier])
	if r.DealerTier == "" {
		r.DealerTier = DefaultDealerTier
	}
	r.Cells[ColDealerTier] = r.DealerTier

	r.Quantity = coerceInt(r.Cells[ColQuantity])
	r.Cells[ColQuantity] = strconv.FormatInt(r.Quantity, 10)

	r.GrossValue = coerceDecimal(r.Cells[ColGrossValue])
	r.Cells[ColGrossValue] = r.GrossValue.String()

	r.InvoiceDate = coerceDate(r.Cells[ColInvoiceDate])
	r.Cells[ColInvoiceDate] = r.InvoiceDate.String()

	payment := strings.TrimSpace(r.Cells[ColPaymentDate])
	if payment == PaymentPendingSentinel || payment == strings.ToLower(PaymentPendingSentinel) {
		r.PaymentDate = Date{}
	} else {
		r.PaymentDate = coerceDate(payment)
	}
	r.Cells[ColPaymentDate] = r.PaymentDate.String()
}

// coerceInt parses an integer quantity, truncating fractional numerics
// toward zero ("750.5" -> 750). Anything unparsable becomes 0.
func coerceInt(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// coerceDecimal parses a monetary value; unparsable cells become zero.
func coerceDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// coerceDate tries each known layout; unparsable cells become absent.
func coerceDate(s string) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), t.Month(), t.Day())
		}
	}
	return Date{}
}
