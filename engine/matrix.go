/*
matrix.go - Tier matrix resolution (base volume discount)

PURPOSE:
  Resolves each row's base discount from an ordered band table keyed on
  (dealer tier, quantity range). The table is authored top to bottom and
  bands for the same tier may overlap.

RESOLUTION INVARIANT:
  Last matching band in table order wins. Every matching band overwrites
  the base discount in turn, so a later, broader band beats an earlier,
  narrower one. This is NOT most-specific-wins and NOT highest-wins; the
  ordering is part of the policy contract.

SEE ALSO:
  - engine.go: DefaultConfig; calls ResolveBase as pipeline stage 2
*/
package engine

import "github.com/shopspring/decimal"

// TierBand is one row of the base discount matrix: a quantity range within
// a dealer tier mapped to a discount percentage. Min and Max are inclusive.
type TierBand struct {
	DealerTier      string
	MinQty          int64
	MaxQty          int64
	DiscountPercent decimal.Decimal
}

// Matches reports whether the band covers the given tier and quantity.
func (b TierBand) Matches(tier string, qty int64) bool {
	return tier == b.DealerTier && qty >= b.MinQty && qty <= b.MaxQty
}

// TierMatrix is the ordered band table. Order is significant.
type TierMatrix []TierBand

// ResolveBase walks the matrix in table order, overwriting the row's base
// discount on every match. A row matching no band keeps a zero base.
func (m TierMatrix) ResolveBase(r *Row) {
	for _, band := range m {
		if band.Matches(r.DealerTier, r.Quantity) {
			r.BaseDiscount = band.DiscountPercent
		}
	}
}

// DefaultTierMatrix returns the FY26 global volume discount matrix shipped
// with the ledger template.
func DefaultTierMatrix() TierMatrix {
	pct := func(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
	return TierMatrix{
		{DealerTier: "Platinum", MinQty: 1, MaxQty: 499, DiscountPercent: pct(5.0)},
		{DealerTier: "Platinum", MinQty: 500, MaxQty: 999, DiscountPercent: pct(8.5)},
		{DealerTier: "Platinum", MinQty: 1000, MaxQty: 999999, DiscountPercent: pct(12.0)},
		{DealerTier: "Gold", MinQty: 1, MaxQty: 499, DiscountPercent: pct(2.0)},
		{DealerTier: "Gold", MinQty: 500, MaxQty: 999, DiscountPercent: pct(5.0)},
		{DealerTier: "Gold", MinQty: 1000, MaxQty: 999999, DiscountPercent: pct(7.5)},
		{DealerTier: "Silver", MinQty: 1, MaxQty: 999, DiscountPercent: pct(0.0)},
		{DealerTier: "Silver", MinQty: 1000, MaxQty: 999999, DiscountPercent: pct(3.0)},
		{DealerTier: DefaultDealerTier, MinQty: 1, MaxQty: 999999, DiscountPercent: pct(0.0)},
	}
}
