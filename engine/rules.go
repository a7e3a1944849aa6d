/*
rules.go - Custom rule stack (caller-authored conditional adjustments)

PURPOSE:
  Applies the caller's staged, ordered list of conditional rules to each
  row. Every rule compares one column against a condition value and, on a
  match, mutates the accumulating discount.

ORDERING CONTRACT:
  Rules run strictly in list order as a left fold over the row's
  accumulators. Authoring order is semantically load-bearing:

    Add/Subtract  accumulate into Custom_Adjustments_% across the whole
                  stack.
    SetDiscountTo overwrites Base_Discount_% and zeroes Policy_Modifiers_%
                  for matched rows. It does NOT touch Custom_Adjustments_%
                  already earned from earlier rules in the same stack.

  A later SetDiscountTo therefore discards the tiered/seasonal layers but
  never the custom layer. Reordering rules changes output.

MATCHING:
  The target cell and the condition value are both lower-cased and trimmed
  before comparison. A rule whose target column is absent from the merged
  schema is a universal no-op, silently skipped for every row.

STAGING:
  ValidateRules mirrors the staging step: rules missing any field are
  dropped before they ever reach the engine, so partial rules cannot
  misfire mid-batch.

SEE ALSO:
  - engine.go: Applies the staged stack as pipeline stage 4
  - formula.go (package formula): The free-form predicate layer after this
*/
package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OPERATORS AND ACTIONS
// =============================================================================

// RuleOperator is the comparison a rule applies to its target column.
type RuleOperator string

const (
	OpEquals    RuleOperator = "Equals"
	OpNotEquals RuleOperator = "NotEquals"
	OpContains  RuleOperator = "Contains"
)

// ParseRuleOperator accepts both the canonical operator names and the
// grid-editor labels ("Not Equals").
func ParseRuleOperator(s string) (RuleOperator, error) {
	switch strings.TrimSpace(s) {
	case "Equals":
		return OpEquals, nil
	case "NotEquals", "Not Equals":
		return OpNotEquals, nil
	case "Contains":
		return OpContains, nil
	default:
		return "", fmt.Errorf("unknown rule operator %q", s)
	}
}

// RuleAction is the mutation a rule applies to matched rows.
type RuleAction string

const (
	ActionAdd      RuleAction = "Add"
	ActionSubtract RuleAction = "Subtract"
	ActionSetTo    RuleAction = "SetDiscountTo"
)

// ParseRuleAction accepts both the canonical action names and the
// grid-editor labels ("Add (%)", "Set Discount To (%)").
func ParseRuleAction(s string) (RuleAction, error) {
	switch strings.TrimSpace(s) {
	case "Add", "Add (%)":
		return ActionAdd, nil
	case "Subtract", "Subtract (%)":
		return ActionSubtract, nil
	case "SetDiscountTo", "Set Discount To (%)":
		return ActionSetTo, nil
	default:
		return "", fmt.Errorf("unknown rule action %q", s)
	}
}

// =============================================================================
// RULE
// =============================================================================

// Rule is one staged conditional adjustment. AmountPct is a non-negative
// magnitude; the sign is determined by the action.
type Rule struct {
	ColumnName string
	Operator   RuleOperator
	Value      string
	Action     RuleAction
	AmountPct  decimal.Decimal
}

// matches compares the row's cell for the rule's column against the
// condition value, case-insensitively and trimmed.
func (rule Rule) matches(r *Row) bool {
	cell := fold(r.Cells[rule.ColumnName])
	want := fold(rule.Value)
	switch rule.Operator {
	case OpEquals:
		return cell == want
	case OpNotEquals:
		return cell != want
	case OpContains:
		return strings.Contains(cell, want)
	default:
		return false
	}
}

func fold(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// =============================================================================
// RULE STACK
// =============================================================================

// RuleStack is the staged, ordered rule list for one run.
type RuleStack []Rule

// Apply folds the stack over one row in list order. Rules targeting columns
// absent from the merged schema are skipped.
func (stack RuleStack) Apply(r *Row, t *Table) {
	for _, rule := range stack {
		if !t.HasColumn(rule.ColumnName) {
			continue
		}
		if !rule.matches(r) {
			continue
		}
		switch rule.Action {
		case ActionAdd:
			r.CustomAdjustments = r.CustomAdjustments.Add(rule.AmountPct)
		case ActionSubtract:
			r.CustomAdjustments = r.CustomAdjustments.Sub(rule.AmountPct)
		case ActionSetTo:
			r.BaseDiscount = rule.AmountPct
			r.PolicyModifiers = decimal.Zero
		}
	}
}

// ValidateRules performs the staging-time sweep: rules with a blank column,
// operator, value or action are dropped, not errors. The returned warnings
// describe each dropped rule by position.
func ValidateRules(rules []Rule) (RuleStack, []string) {
	var staged RuleStack
	var warnings []string
	for i, rule := range rules {
		if strings.TrimSpace(rule.ColumnName) == "" ||
			rule.Operator == "" ||
			strings.TrimSpace(rule.Value) == "" ||
			rule.Action == "" {
			warnings = append(warnings, fmt.Sprintf("rule %d dropped: incomplete", i+1))
			continue
		}
		if rule.AmountPct.IsNegative() {
			warnings = append(warnings, fmt.Sprintf("rule %d dropped: negative amount", i+1))
			continue
		}
		staged = append(staged, rule)
	}
	return staged, warnings
}
