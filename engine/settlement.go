/*
settlement.go - Early-rebate / late-penalty settlement calculation

PURPOSE:
  Derives a settlement adjustment from the gap between invoice date and
  payment receipt date:

    gap <= EarlyDays  ->  flat rebate (a credit: -EarlyRebate)
    gap >  LateDays   ->  percentage penalty of gross (a debit)
    otherwise         ->  no adjustment

  Rows missing either date keep both settlement fields at zero. A negative
  gap (payment recorded before the invoice) is not special-cased; it simply
  satisfies the early branch.

EVALUATION ORDER:
  The early branch is evaluated first, then the late branch is evaluated
  and allowed to overwrite. Under a sane configuration (EarlyDays <
  LateDays) the branches are exclusive; under a pathological configuration
  where LateDays < EarlyDays both can hold, and late wins. This matches
  the documented policy behavior and must not be reordered.
  TODO: confirm with finance whether the late-wins tie-break under
  inverted thresholds is intended policy or should be rejected at
  configuration time.

SEE ALSO:
  - policy.go: The settlement knobs on PolicyConfig
  - engine.go: Calls ApplySettlement as pipeline stage 7
*/
package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ApplySettlement writes the row's penalty percentage and settlement
// adjustment. Requires both dates; otherwise the fields stay zero.
func (p PolicyConfig) ApplySettlement(r *Row) {
	if !r.InvoiceDate.Valid || !r.PaymentDate.Valid {
		return
	}
	gap := r.InvoiceDate.DaysUntil(r.PaymentDate)

	if gap <= p.EarlyDays {
		r.SettlementAdjustment = p.EarlyRebate.Neg()
	}
	if gap > p.LateDays {
		r.PenaltyPct = p.LatePenaltyPct
		r.SettlementAdjustment = r.GrossValue.Mul(p.LatePenaltyPct).Div(hundred)
	}
}
