package engine_test

import (
	"testing"

	"github.com/warp/discount-engine/engine"
)

// =============================================================================
// MATCHING TESTS
// =============================================================================

func TestRules_CaseInsensitiveTrimmedMatch(t *testing.T) {
	// GIVEN: A rule matching category "spares" (lower case)
	// WHEN: Rows carry "Spares" and " SPARES "
	// THEN: Both match; comparison folds case and trims

	cfg := engine.DefaultConfig()
	cfg.Rules = engine.RuleStack{
		{ColumnName: engine.ColProductCategory, Operator: engine.OpEquals, Value: "spares",
			Action: engine.ActionAdd, AmountPct: pct(3.0)},
	}

	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{engine.ColProductCategory: "Spares"}),
		row(map[string]string{engine.ColProductCategory: " SPARES "}),
		row(map[string]string{engine.ColProductCategory: "Electronics"}),
	})
	compute(t, table, cfg)

	wantDecimal(t, "row 0 Custom_Adjustments_%", table.Rows[0].CustomAdjustments, 3.0)
	wantDecimal(t, "row 1 Custom_Adjustments_%", table.Rows[1].CustomAdjustments, 3.0)
	wantDecimal(t, "row 2 Custom_Adjustments_%", table.Rows[2].CustomAdjustments, 0)
}

func TestRules_Operators(t *testing.T) {
	table := func(category string) *engine.Table {
		return engine.NewTable(ledgerColumns, []map[string]string{
			row(map[string]string{engine.ColProductCategory: category}),
		})
	}

	for _, tc := range []struct {
		name     string
		operator engine.RuleOperator
		value    string
		category string
		matched  bool
	}{
		{"equals hit", engine.OpEquals, "spares", "Spares", true},
		{"equals miss", engine.OpEquals, "spares", "Electronics", false},
		{"not-equals hit", engine.OpNotEquals, "spares", "Electronics", true},
		{"not-equals miss", engine.OpNotEquals, "spares", "Spares", false},
		{"contains hit", engine.OpContains, "elect", "Home Electronics", true},
		{"contains miss", engine.OpContains, "elect", "Spares", false},
		{"contains is literal, not a pattern", engine.OpContains, "a.c", "abc", false},
		{"contains literal dot", engine.OpContains, "a.c", "xa.cy", true},
	} {
		cfg := engine.DefaultConfig()
		cfg.Rules = engine.RuleStack{
			{ColumnName: engine.ColProductCategory, Operator: tc.operator, Value: tc.value,
				Action: engine.ActionAdd, AmountPct: pct(1.0)},
		}
		tbl := table(tc.category)
		compute(t, tbl, cfg)

		want := 0.0
		if tc.matched {
			want = 1.0
		}
		wantDecimal(t, tc.name, tbl.Rows[0].CustomAdjustments, want)
	}
}

func TestRules_MissingColumnIsUniversalNoOp(t *testing.T) {
	// A rule targeting a column absent from the merged schema is silently
	// skipped for every row; it is not an error.

	cfg := engine.DefaultConfig()
	cfg.Rules = engine.RuleStack{
		{ColumnName: "Region", Operator: engine.OpEquals, Value: "north",
			Action: engine.ActionAdd, AmountPct: pct(9.0)},
	}

	table := engine.NewTable(ledgerColumns, []map[string]string{row(nil)})
	result := compute(t, table, cfg)

	wantDecimal(t, "Custom_Adjustments_%", table.Rows[0].CustomAdjustments, 0)
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

// =============================================================================
// STACKING TESTS
// =============================================================================

func TestRules_SetDiscountToResetsBaseAndPolicyOnly(t *testing.T) {
	// GIVEN: An Electronics row with matrix base 5.0 and seasonal +2.0,
	//        then rules [Add 3.0, SetDiscountTo 1.0]
	// WHEN: Computing
	// THEN: SetDiscountTo overwrites the base and zeroes the policy
	//       modifiers, but the 3.0 already earned in the same stack stays

	cfg := engine.DefaultConfig()
	cfg.Rules = engine.RuleStack{
		{ColumnName: engine.ColProductCategory, Operator: engine.OpEquals, Value: "electronics",
			Action: engine.ActionAdd, AmountPct: pct(3.0)},
		{ColumnName: engine.ColProductCategory, Operator: engine.OpEquals, Value: "electronics",
			Action: engine.ActionSetTo, AmountPct: pct(1.0)},
	}

	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColDealerTier:      "Gold",
			engine.ColQuantity:        "600",
			engine.ColGrossValue:      "1000",
			engine.ColInvoiceDate:     "2025-07-10",
			engine.ColProductCategory: "Electronics",
		}),
	})
	compute(t, table, cfg)

	r := table.Rows[0]
	wantDecimal(t, "Base_Discount_%", r.BaseDiscount, 1.0)
	wantDecimal(t, "Policy_Modifiers_%", r.PolicyModifiers, 0)
	wantDecimal(t, "Custom_Adjustments_%", r.CustomAdjustments, 3.0)
	wantDecimal(t, "Final_Discount_%", r.FinalDiscount, 4.0)
}

func TestRules_OrderIsLoadBearing(t *testing.T) {
	// [SetDiscountTo 10, Subtract 2] and [Subtract 2, SetDiscountTo 10]
	// produce the same totals here, but [Add 5, SetDiscountTo 0] vs
	// [SetDiscountTo 0, Add 5] show that authoring order matters for
	// anything relying on the reset.

	mkTable := func() *engine.Table {
		return engine.NewTable(ledgerColumns, []map[string]string{
			row(map[string]string{
				engine.ColDealerTier: "Gold",
				engine.ColQuantity:   "600",
				engine.ColGrossValue: "1000",
			}),
		})
	}
	addRule := engine.Rule{ColumnName: engine.ColDealerTier, Operator: engine.OpEquals,
		Value: "gold", Action: engine.ActionAdd, AmountPct: pct(5.0)}
	setRule := engine.Rule{ColumnName: engine.ColDealerTier, Operator: engine.OpEquals,
		Value: "gold", Action: engine.ActionSetTo, AmountPct: pct(0)}

	cfgA := engine.DefaultConfig()
	cfgA.Rules = engine.RuleStack{addRule, setRule}
	tableA := mkTable()
	compute(t, tableA, cfgA)

	cfgB := engine.DefaultConfig()
	cfgB.Rules = engine.RuleStack{setRule, addRule}
	tableB := mkTable()
	compute(t, tableB, cfgB)

	// Both stacks end with base 0; the Add survives in both because it
	// accumulates in Custom_Adjustments_%, which SetDiscountTo never
	// touches. The distinction shows in the base overwrite ordering.
	wantDecimal(t, "stack A Final_Discount_%", tableA.Rows[0].FinalDiscount, 5.0)
	wantDecimal(t, "stack B Final_Discount_%", tableB.Rows[0].FinalDiscount, 5.0)
	wantDecimal(t, "stack A Base_Discount_%", tableA.Rows[0].BaseDiscount, 0)
	wantDecimal(t, "stack B Base_Discount_%", tableB.Rows[0].BaseDiscount, 0)
}

func TestRules_AddAndSubtractAccumulate(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.Rules = engine.RuleStack{
		{ColumnName: engine.ColDealerTier, Operator: engine.OpEquals, Value: "gold",
			Action: engine.ActionAdd, AmountPct: pct(4.0)},
		{ColumnName: engine.ColDealerTier, Operator: engine.OpEquals, Value: "gold",
			Action: engine.ActionSubtract, AmountPct: pct(1.5)},
	}

	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{engine.ColDealerTier: "Gold", engine.ColQuantity: "100"}),
	})
	compute(t, table, cfg)

	wantDecimal(t, "Custom_Adjustments_%", table.Rows[0].CustomAdjustments, 2.5)
}

// =============================================================================
// STAGING VALIDATION TESTS
// =============================================================================

func TestValidateRules_DropsIncompleteRules(t *testing.T) {
	rules := []engine.Rule{
		{ColumnName: engine.ColDealerTier, Operator: engine.OpEquals, Value: "gold",
			Action: engine.ActionAdd, AmountPct: pct(1.0)},
		{ColumnName: "", Operator: engine.OpEquals, Value: "gold",
			Action: engine.ActionAdd, AmountPct: pct(1.0)},
		{ColumnName: engine.ColDealerTier, Operator: engine.OpEquals, Value: "",
			Action: engine.ActionAdd, AmountPct: pct(1.0)},
		{ColumnName: engine.ColDealerTier, Operator: engine.OpEquals, Value: "gold",
			Action: engine.ActionAdd, AmountPct: pct(-2.0)},
	}

	staged, warnings := engine.ValidateRules(rules)
	if len(staged) != 1 {
		t.Fatalf("staged %d rules, want 1", len(staged))
	}
	if len(warnings) != 3 {
		t.Errorf("got %d warnings, want 3: %v", len(warnings), warnings)
	}
}

func TestParseRuleEnums_AcceptGridLabels(t *testing.T) {
	for input, want := range map[string]engine.RuleOperator{
		"Equals":     engine.OpEquals,
		"Not Equals": engine.OpNotEquals,
		"NotEquals":  engine.OpNotEquals,
		"Contains":   engine.OpContains,
	} {
		got, err := engine.ParseRuleOperator(input)
		if err != nil || got != want {
			t.Errorf("ParseRuleOperator(%q) = %v, %v; want %v", input, got, err, want)
		}
	}

	for input, want := range map[string]engine.RuleAction{
		"Add":                 engine.ActionAdd,
		"Add (%)":             engine.ActionAdd,
		"Subtract (%)":        engine.ActionSubtract,
		"Set Discount To (%)": engine.ActionSetTo,
		"SetDiscountTo":       engine.ActionSetTo,
	} {
		got, err := engine.ParseRuleAction(input)
		if err != nil || got != want {
			t.Errorf("ParseRuleAction(%q) = %v, %v; want %v", input, got, err, want)
		}
	}

	if _, err := engine.ParseRuleOperator("Matches"); err == nil {
		t.Error("ParseRuleOperator should reject unknown operators")
	}
	if _, err := engine.ParseRuleAction("Multiply"); err == nil {
		t.Error("ParseRuleAction should reject unknown actions")
	}
}
