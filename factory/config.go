/*
Package factory provides declarative configuration for the engine.

PURPOSE:
  Converts a YAML or JSON config document into an engine.Config. This
  enables policy configuration without code changes - the band matrix,
  policy knobs, custom rules and formula can be authored as a document,
  stored, and staged for a run.

DOCUMENT SCHEMA (YAML shown; JSON works identically):

  matrix:
    - dealer_tier: Gold
      min_qty: 500
      max_qty: 999
      discount_percent: 5.0
  policy:
    electronics_boost_months: [7, 8]
    electronics_penalty_months: [9]
    services_override: true
    early_days: 15
    early_rebate: 500.0
    late_days: 45
    late_penalty_pct: 2.0
  rules:
    - column_name: Product_Category
      operator: Equals           # or "Not Equals" / "Contains"
      value: spares
      action: Add                # or "Subtract" / "SetDiscountTo"
      amount_pct: 1.5
  formula:
    formula: "Quantity > 500 and Product_Category == 'Spares'"
    amount: 2.5

KEY FEATURES:
  - Omitted sections fall back to the shipped FY26 defaults
  - Enum fields accept both canonical names and grid-editor labels
  - Incomplete rules are dropped with a warning, never an error
  - The formula is parse-validated against the merged schema; a bad
    formula degrades to a no-op with a warning

USAGE:
  doc, err := factory.ParseDocument(yamlBytes)
  cfg, warnings, err := doc.Build(mergedColumns)

SEE ALSO:
  - engine/engine.go: Config definition
  - api/handlers.go: Stages documents over HTTP
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/discount-engine/engine"
	"github.com/warp/discount-engine/formula"
)

// =============================================================================
// DOCUMENT SCHEMA TYPES
// =============================================================================

// Document is the declarative representation of one engine configuration.
type Document struct {
	Matrix  []BandDoc   `yaml:"matrix,omitempty" json:"matrix,omitempty"`
	Policy  *PolicyDoc  `yaml:"policy,omitempty" json:"policy,omitempty"`
	Rules   []RuleDoc   `yaml:"rules,omitempty" json:"rules,omitempty"`
	Formula *FormulaDoc `yaml:"formula,omitempty" json:"formula,omitempty"`
}

// BandDoc is one tier matrix row. Order in the document is the resolution
// order.
type BandDoc struct {
	DealerTier      string  `yaml:"dealer_tier" json:"dealer_tier"`
	MinQty          int64   `yaml:"min_qty" json:"min_qty"`
	MaxQty          int64   `yaml:"max_qty" json:"max_qty"`
	DiscountPercent float64 `yaml:"discount_percent" json:"discount_percent"`
}

// PolicyDoc carries the policy knobs. Pointer fields distinguish "absent"
// (use the default) from an explicit zero.
type PolicyDoc struct {
	ElectronicsBoostMonths   []int    `yaml:"electronics_boost_months,omitempty" json:"electronics_boost_months,omitempty"`
	ElectronicsPenaltyMonths []int    `yaml:"electronics_penalty_months,omitempty" json:"electronics_penalty_months,omitempty"`
	ServicesOverride         *bool    `yaml:"services_override,omitempty" json:"services_override,omitempty"`
	EarlyDays                *int     `yaml:"early_days,omitempty" json:"early_days,omitempty"`
	EarlyRebate              *float64 `yaml:"early_rebate,omitempty" json:"early_rebate,omitempty"`
	LateDays                 *int     `yaml:"late_days,omitempty" json:"late_days,omitempty"`
	LatePenaltyPct           *float64 `yaml:"late_penalty_pct,omitempty" json:"late_penalty_pct,omitempty"`
}

// RuleDoc is one custom rule row.
type RuleDoc struct {
	ColumnName string  `yaml:"column_name" json:"column_name"`
	Operator   string  `yaml:"operator" json:"operator"`
	Value      string  `yaml:"value" json:"value"`
	Action     string  `yaml:"action" json:"action"`
	AmountPct  float64 `yaml:"amount_pct" json:"amount_pct"`
}

// FormulaDoc is the staged advanced formula.
type FormulaDoc struct {
	Formula string  `yaml:"formula" json:"formula"`
	Amount  float64 `yaml:"amount" json:"amount"`
}

// =============================================================================
// PARSING AND BUILDING
// =============================================================================

// ParseDocument decodes a YAML or JSON config document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse config document: %w", err)
	}
	return doc, nil
}

// Build converts the document into an engine.Config, validating against the
// merged schema. columns may be nil when no formula is staged. Non-fatal
// problems (dropped rules, a bad formula) come back as warnings.
func (d Document) Build(columns []string) (engine.Config, []string, error) {
	cfg := engine.DefaultConfig()
	var warnings []string

	if len(d.Matrix) > 0 {
		matrix := make(engine.TierMatrix, 0, len(d.Matrix))
		for _, b := range d.Matrix {
			if b.DealerTier == "" {
				return engine.Config{}, nil, fmt.Errorf("matrix band missing dealer_tier")
			}
			matrix = append(matrix, engine.TierBand{
				DealerTier:      b.DealerTier,
				MinQty:          b.MinQty,
				MaxQty:          b.MaxQty,
				DiscountPercent: decimal.NewFromFloat(b.DiscountPercent),
			})
		}
		cfg.Matrix = matrix
	}

	if d.Policy != nil {
		p := &cfg.Policy
		if d.Policy.ElectronicsBoostMonths != nil {
			p.ElectronicsBoostMonths = monthSet(d.Policy.ElectronicsBoostMonths)
		}
		if d.Policy.ElectronicsPenaltyMonths != nil {
			p.ElectronicsPenaltyMonths = monthSet(d.Policy.ElectronicsPenaltyMonths)
		}
		if d.Policy.ServicesOverride != nil {
			p.ServicesOverride = *d.Policy.ServicesOverride
		}
		if d.Policy.EarlyDays != nil {
			p.EarlyDays = *d.Policy.EarlyDays
		}
		if d.Policy.EarlyRebate != nil {
			p.EarlyRebate = decimal.NewFromFloat(*d.Policy.EarlyRebate)
		}
		if d.Policy.LateDays != nil {
			p.LateDays = *d.Policy.LateDays
		}
		if d.Policy.LatePenaltyPct != nil {
			p.LatePenaltyPct = decimal.NewFromFloat(*d.Policy.LatePenaltyPct)
		}
	}

	if len(d.Rules) > 0 {
		rules := make([]engine.Rule, 0, len(d.Rules))
		for i, rd := range d.Rules {
			op, opErr := engine.ParseRuleOperator(rd.Operator)
			action, actErr := engine.ParseRuleAction(rd.Action)
			if opErr != nil || actErr != nil {
				warnings = append(warnings, fmt.Sprintf("rule %d dropped: invalid operator or action", i+1))
				continue
			}
			rules = append(rules, engine.Rule{
				ColumnName: rd.ColumnName,
				Operator:   op,
				Value:      rd.Value,
				Action:     action,
				AmountPct:  decimal.NewFromFloat(rd.AmountPct),
			})
		}
		staged, ruleWarnings := engine.ValidateRules(rules)
		cfg.Rules = staged
		warnings = append(warnings, ruleWarnings...)
	}

	if d.Formula != nil && d.Formula.Formula != "" {
		pred, err := formula.Parse(d.Formula.Formula, columns)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("advanced formula skipped: %v", err))
		} else {
			cfg.Formula = &engine.StagedFormula{
				Predicate: pred,
				Amount:    decimal.NewFromFloat(d.Formula.Amount),
			}
		}
	}

	return cfg, warnings, nil
}

// MarshalJSON-friendly serialization for persistence.
func (d Document) Encode() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode config document: %w", err)
	}
	return string(data), nil
}

func monthSet(months []int) engine.MonthSet {
	s := make(engine.MonthSet, len(months))
	for _, m := range months {
		if m >= 1 && m <= 12 {
			s[time.Month(m)] = true
		}
	}
	return s
}
