/*
engine.go - The per-row computation pipeline

PURPOSE:
  Composes the stages into one deterministic pass over the ledger:

    1. Normalize          coerce cells to canonical typed fields
    2. ResolveBase        tier matrix lookup (last matching band wins)
    3. ApplyModifiers     services override + electronics seasonal
    4. RuleStack.Apply    caller-staged conditional rules, in list order
    5. Advanced formula   single staged predicate (batch mask, then apply)
    6. Aggregate          Final_Discount_% = max(0, base+policy+custom)
    7. ApplySettlement    early rebate / late penalty from the date gap
    8. Compose net        Final_Net_Amount = max(0, gross - discount + settlement)

PURITY:
  Compute is a pure function of (table, config). The config snapshot is
  read-only shared state; each row's accumulators are private, so rows are
  embarrassingly parallel candidates. Rule order WITHIN a row is the part
  that cannot be reordered.

FORMULA SEMANTICS:
  The staged predicate is evaluated as a batch: the row mask is computed
  first, and adjustments are applied only if every row evaluated cleanly.
  A failed evaluation skips the formula for the whole batch and surfaces
  one warning on the Result; the rest of the pipeline is unaffected.

SEE ALSO:
  - types.go: Row/Table and the computed columns
  - formula/: The sandboxed predicate evaluator
*/
package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/discount-engine/formula"
)

// =============================================================================
// CONFIG - Immutable snapshot for one run
// =============================================================================

// StagedFormula pairs the compiled predicate with its signed adjustment.
// At most one is staged per run; staging a new one replaces the prior.
type StagedFormula struct {
	Predicate *formula.Formula
	Amount    decimal.Decimal
}

// Config is everything a computation run reads: the band matrix, the
// policy knobs, the staged rule stack and the staged formula (nil when
// none). Configs are snapshots; the engine never mutates them, so
// independent runs cannot cross-contaminate.
type Config struct {
	Matrix  TierMatrix
	Policy  PolicyConfig
	Rules   RuleStack
	Formula *StagedFormula
}

// DefaultConfig returns the shipped FY26 policy with no staged rules.
func DefaultConfig() Config {
	return Config{
		Matrix: DefaultTierMatrix(),
		Policy: DefaultPolicyConfig(),
	}
}

// =============================================================================
// RESULT
// =============================================================================

// Result is the outcome of one run: the table with computed fields filled
// in, the output column order (original columns then computed columns), and
// any non-fatal warnings raised along the way.
type Result struct {
	Table    *Table
	Columns  []string
	Warnings []string
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs the discount and settlement computation. The zero value is
// ready to use; the struct exists so callers can wire it as a dependency.
type Engine struct{}

func New() *Engine { return &Engine{} }

// Compute runs the full pipeline over every row of the table. The table's
// rows are mutated in place (accumulators and derived fields); the config
// is never touched. Idempotent: recomputing with identical inputs yields
// identical output.
func (e *Engine) Compute(ctx context.Context, t *Table, cfg Config) (*Result, error) {
	hasCategory := t.HasColumn(ColProductCategory)
	hasInvoiceDate := t.HasColumn(ColInvoiceDate)

	// Stages 1-4 are strictly per-row.
	for _, r := range t.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.resetComputed()
		r.Normalize()
		cfg.Matrix.ResolveBase(r)
		cfg.Policy.ApplyModifiers(r, hasCategory, hasInvoiceDate)
		cfg.Rules.Apply(r, t)
	}

	// Stage 5: advanced formula, batch-masked.
	warnings := e.applyFormula(t, cfg.Formula)

	// Stages 6-8.
	for _, r := range t.Rows {
		r.aggregate()
		cfg.Policy.ApplySettlement(r)
		r.composeNet()
	}

	columns := append(append([]string{}, t.Columns...), ComputedColumns()...)
	return &Result{Table: t, Columns: columns, Warnings: warnings}, nil
}

// applyFormula computes the predicate mask for every row first and applies
// the adjustment only when the whole batch evaluated cleanly. One bad
// formula degrades to a no-op with a warning, never an abort.
func (e *Engine) applyFormula(t *Table, staged *StagedFormula) []string {
	if staged == nil || staged.Predicate == nil || staged.Amount.IsZero() {
		return nil
	}

	mask := make([]bool, len(t.Rows))
	for i, r := range t.Rows {
		ok, err := staged.Predicate.Evaluate(r.ColumnData(t.Columns))
		if err != nil {
			return []string{fmt.Sprintf("advanced formula skipped: %v", err)}
		}
		mask[i] = ok
	}

	for i, r := range t.Rows {
		if mask[i] {
			r.CustomAdjustments = r.CustomAdjustments.Add(staged.Amount)
		}
	}
	return nil
}

// resetComputed zeroes the accumulators and derived fields so recomputing
// a table is idempotent.
func (r *Row) resetComputed() {
	r.BaseDiscount = decimal.Zero
	r.PolicyModifiers = decimal.Zero
	r.CustomAdjustments = decimal.Zero
	r.FinalDiscount = decimal.Zero
	r.DiscountAmount = decimal.Zero
	r.PenaltyPct = decimal.Zero
	r.SettlementAdjustment = decimal.Zero
	r.FinalNet = decimal.Zero
}

// aggregate folds the three accumulators into the final discount and the
// discount amount. The percentage is clipped at zero; there is no upper
// clip, a discount may legitimately exceed 100% of value.
func (r *Row) aggregate() {
	total := r.BaseDiscount.Add(r.PolicyModifiers).Add(r.CustomAdjustments)
	if total.IsNegative() {
		total = decimal.Zero
	}
	r.FinalDiscount = total
	r.DiscountAmount = r.GrossValue.Mul(total).Div(hundred)
}

// composeNet derives the final payable, floored at zero.
func (r *Row) composeNet() {
	net := r.GrossValue.Sub(r.DiscountAmount).Add(r.SettlementAdjustment)
	if net.IsNegative() {
		net = decimal.Zero
	}
	r.FinalNet = net
}
