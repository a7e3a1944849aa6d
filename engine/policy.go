/*
policy.go - Standard policy configuration and category/seasonal modifiers

PURPOSE:
  Holds the global trade policy knobs (seasonal month sets, the services
  override, settlement thresholds) and applies the two standard modifiers
  on top of the matrix-resolved base:

  Services override:
    When enabled, rows in the "Services" category get their base discount
    forced to 0. This overwrites whatever the matrix resolved; services
    strictly receive no volume discount.

  Electronics seasonal:
    Electronics rows gain +2.0 policy points when the invoice month is in
    the boost set and lose 1.0 when it is in the penalty set. A month in
    both sets applies both (net +1.0); the stacking is additive on
    purpose, not mutually exclusive.

  Both modifiers require their columns to exist in the merged schema;
  when Product_Category or Invoice_Date was never uploaded the modifier
  is skipped for the whole batch.

CATEGORY MATCHING:
  Exact and case-sensitive ("Services", "Electronics"), unlike custom-rule
  matching which folds case and trims. The policy matches the template's
  canonical category labels only.

SEE ALSO:
  - settlement.go: Uses the settlement knobs on this config
  - rules.go: The caller-authored rule layer applied after this one
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category labels the standard policy recognizes.
const (
	CategoryServices    = "Services"
	CategoryElectronics = "Electronics"
)

// Fixed seasonal adjustment magnitudes.
var (
	electronicsBoost   = decimal.NewFromFloat(2.0)
	electronicsPenalty = decimal.NewFromFloat(1.0)
)

// MonthSet is a set of calendar months (1-12).
type MonthSet map[time.Month]bool

func NewMonthSet(months ...time.Month) MonthSet {
	s := make(MonthSet, len(months))
	for _, m := range months {
		s[m] = true
	}
	return s
}

// Months returns the set in ascending order, for serialization.
func (s MonthSet) Months() []time.Month {
	var out []time.Month
	for m := time.January; m <= time.December; m++ {
		if s[m] {
			out = append(out, m)
		}
	}
	return out
}

// PolicyConfig carries the standard policy knobs for one computation run.
type PolicyConfig struct {
	// Seasonal & category modifiers.
	ElectronicsBoostMonths   MonthSet
	ElectronicsPenaltyMonths MonthSet
	ServicesOverride         bool

	// Settlement rules. See settlement.go.
	EarlyDays      int
	EarlyRebate    decimal.Decimal
	LateDays       int
	LatePenaltyPct decimal.Decimal
}

// DefaultPolicyConfig returns the FY26 defaults: July/August electronics
// boost, September penalty, services override on, 15-day/500.0 early
// rebate, 45-day/2.0% late penalty.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		ElectronicsBoostMonths:   NewMonthSet(time.July, time.August),
		ElectronicsPenaltyMonths: NewMonthSet(time.September),
		ServicesOverride:         true,
		EarlyDays:                15,
		EarlyRebate:              decimal.NewFromFloat(500.0),
		LateDays:                 45,
		LatePenaltyPct:           decimal.NewFromFloat(2.0),
	}
}

// ApplyModifiers applies the services override and the electronics seasonal
// adjustment to one row. hasCategory and hasInvoiceDate report whether the
// merged schema carries the respective columns; an absent column disables
// the modifiers that need it.
func (p PolicyConfig) ApplyModifiers(r *Row, hasCategory, hasInvoiceDate bool) {
	if !hasCategory {
		return
	}
	category := r.Cells[ColProductCategory]

	if p.ServicesOverride && category == CategoryServices {
		r.BaseDiscount = decimal.Zero
	}

	if hasInvoiceDate && category == CategoryElectronics && r.InvoiceDate.Valid {
		month := r.InvoiceDate.Month()
		if p.ElectronicsBoostMonths[month] {
			r.PolicyModifiers = r.PolicyModifiers.Add(electronicsBoost)
		}
		if p.ElectronicsPenaltyMonths[month] {
			r.PolicyModifiers = r.PolicyModifiers.Sub(electronicsPenalty)
		}
	}
}
