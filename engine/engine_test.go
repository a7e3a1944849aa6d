package engine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/discount-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var ledgerColumns = []string{
	engine.ColDealerCode,
	engine.ColDealerTier,
	engine.ColQuantity,
	engine.ColGrossValue,
	engine.ColInvoiceDate,
	engine.ColPaymentDate,
	engine.ColProductCategory,
}

func pct(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func band(tier string, min, max int64, discount float64) engine.TierBand {
	return engine.TierBand{DealerTier: tier, MinQty: min, MaxQty: max, DiscountPercent: pct(discount)}
}

// row builds one ledger row from column/value pairs over ledgerColumns.
func row(values map[string]string) map[string]string {
	m := make(map[string]string, len(ledgerColumns))
	for _, c := range ledgerColumns {
		m[c] = values[c]
	}
	return m
}

func compute(t *testing.T, table *engine.Table, cfg engine.Config) *engine.Result {
	t.Helper()
	result, err := engine.New().Compute(context.Background(), table, cfg)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	return result
}

func wantDecimal(t *testing.T, name string, got decimal.Decimal, want float64) {
	t.Helper()
	if !got.Equal(pct(want)) {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

// =============================================================================
// TIER MATRIX TESTS
// =============================================================================

func TestTierMatrix_OverlappingBands_LastMatchWins(t *testing.T) {
	// GIVEN: Two overlapping Gold bands, the later one broader
	// WHEN: Resolving a quantity covered by both
	// THEN: The LAST matching band in table order determines the base,
	//       not the first and not the highest

	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColDealerTier: "Gold",
			engine.ColQuantity:   "700",
			engine.ColGrossValue: "1000",
		}),
	})
	cfg := engine.Config{
		Matrix: engine.TierMatrix{
			band("Gold", 1, 999, 2.0),
			band("Gold", 500, 999999, 5.0),
		},
		Policy: engine.DefaultPolicyConfig(),
	}

	compute(t, table, cfg)
	wantDecimal(t, "Base_Discount_%", table.Rows[0].BaseDiscount, 5.0)
}

func TestTierMatrix_NoMatchingBand_KeepsZeroBase(t *testing.T) {
	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColDealerTier: "Bronze",
			engine.ColQuantity:   "700",
			engine.ColGrossValue: "1000",
		}),
	})

	compute(t, table, engine.DefaultConfig())
	wantDecimal(t, "Base_Discount_%", table.Rows[0].BaseDiscount, 0)
}

func TestTierMatrix_BoundsAreInclusive(t *testing.T) {
	cfg := engine.Config{
		Matrix: engine.TierMatrix{band("Gold", 500, 999, 5.0)},
		Policy: engine.DefaultPolicyConfig(),
	}
	for _, tc := range []struct {
		qty  string
		want float64
	}{
		{"499", 0},
		{"500", 5.0},
		{"999", 5.0},
		{"1000", 0},
	} {
		table := engine.NewTable(ledgerColumns, []map[string]string{
			row(map[string]string{engine.ColDealerTier: "Gold", engine.ColQuantity: tc.qty}),
		})
		compute(t, table, cfg)
		wantDecimal(t, "Base_Discount_% for qty "+tc.qty, table.Rows[0].BaseDiscount, tc.want)
	}
}

// =============================================================================
// NORMALIZATION TESTS
// =============================================================================

func TestNormalize_MalformedCellsDefaulted(t *testing.T) {
	// GIVEN: Malformed quantity/value cells and a blank tier
	// WHEN: Computing
	// THEN: Quantity -> 0, gross -> 0, tier -> Unregistered/Direct;
	//       nothing errors

	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColQuantity:   "N/A",
			engine.ColGrossValue: "not-a-number",
		}),
	})

	compute(t, table, engine.DefaultConfig())

	r := table.Rows[0]
	if r.Quantity != 0 {
		t.Errorf("Quantity = %d, want 0", r.Quantity)
	}
	if !r.GrossValue.IsZero() {
		t.Errorf("Gross_Invoice_Value = %v, want 0", r.GrossValue)
	}
	if r.DealerTier != engine.DefaultDealerTier {
		t.Errorf("Dealer_Tier = %q, want %q", r.DealerTier, engine.DefaultDealerTier)
	}
}

func TestNormalize_PendingPaymentIsAbsent(t *testing.T) {
	for _, sentinel := range []string{"PENDING", "pending"} {
		table := engine.NewTable(ledgerColumns, []map[string]string{
			row(map[string]string{
				engine.ColGrossValue:  "1000",
				engine.ColInvoiceDate: "2025-03-01",
				engine.ColPaymentDate: sentinel,
			}),
		})

		compute(t, table, engine.DefaultConfig())

		r := table.Rows[0]
		if r.PaymentDate.Valid {
			t.Errorf("payment date %q should normalize to absent", sentinel)
		}
		// Absent date: settlement fields stay zero.
		wantDecimal(t, "Settlement_Adjustment_Amount", r.SettlementAdjustment, 0)
		wantDecimal(t, "Penalty_Percentage_%", r.PenaltyPct, 0)
	}
}

func TestNormalize_ThousandsSeparatorsAccepted(t *testing.T) {
	// "1,200" parses as 1200 rather than defaulting to 0. Deliberate
	// leniency for spreadsheet-formatted cells.
	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColQuantity:   "1,200",
			engine.ColGrossValue: "12,345.60",
		}),
	})
	compute(t, table, engine.DefaultConfig())

	r := table.Rows[0]
	if r.Quantity != 1200 {
		t.Errorf("Quantity = %d, want 1200", r.Quantity)
	}
	wantDecimal(t, "Gross_Invoice_Value", r.GrossValue, 12345.60)
}

func TestNormalize_FractionalQuantityTruncates(t *testing.T) {
	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{engine.ColQuantity: "750.5"}),
	})
	compute(t, table, engine.DefaultConfig())
	if got := table.Rows[0].Quantity; got != 750 {
		t.Errorf("Quantity = %d, want 750", got)
	}
}

// =============================================================================
// POLICY MODIFIER TESTS
// =============================================================================

func TestPolicy_ServicesOverrideForcesZeroBase(t *testing.T) {
	// GIVEN: A Gold row that resolves a 5.0 base, in the Services category
	// WHEN: Computing with the override enabled
	// THEN: The base is forced to 0 (supersedes the matrix)

	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColDealerTier:      "Gold",
			engine.ColQuantity:        "600",
			engine.ColGrossValue:      "1000",
			engine.ColProductCategory: "Services",
		}),
	})

	compute(t, table, engine.DefaultConfig())
	wantDecimal(t, "Base_Discount_%", table.Rows[0].BaseDiscount, 0)
}

func TestPolicy_ElectronicsMonthInBothSets_AppliesBoth(t *testing.T) {
	// GIVEN: July in both the boost and penalty sets
	// WHEN: Computing an Electronics row invoiced in July
	// THEN: Both adjustments stack (net +1.0); this is intentional
	//       additive stacking, not mutual exclusion

	cfg := engine.DefaultConfig()
	cfg.Policy.ElectronicsBoostMonths = engine.NewMonthSet(7)
	cfg.Policy.ElectronicsPenaltyMonths = engine.NewMonthSet(7)

	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColGrossValue:      "1000",
			engine.ColInvoiceDate:     "2025-07-10",
			engine.ColProductCategory: "Electronics",
		}),
	})

	compute(t, table, cfg)
	wantDecimal(t, "Policy_Modifiers_%", table.Rows[0].PolicyModifiers, 1.0)
}

func TestPolicy_ModifiersSkippedWhenColumnsAbsent(t *testing.T) {
	// GIVEN: A schema with no Product_Category column at all
	// WHEN: Computing
	// THEN: Both modifiers are skipped for the whole batch

	columns := []string{engine.ColDealerCode, engine.ColDealerTier, engine.ColQuantity,
		engine.ColGrossValue, engine.ColInvoiceDate, engine.ColPaymentDate}
	table := engine.NewTable(columns, []map[string]string{
		{
			engine.ColDealerTier:  "Gold",
			engine.ColQuantity:    "600",
			engine.ColGrossValue:  "1000",
			engine.ColInvoiceDate: "2025-07-10",
		},
	})

	compute(t, table, engine.DefaultConfig())
	wantDecimal(t, "Policy_Modifiers_%", table.Rows[0].PolicyModifiers, 0)
	wantDecimal(t, "Base_Discount_%", table.Rows[0].BaseDiscount, 5.0)
}

// =============================================================================
// AGGREGATION AND NET TESTS
// =============================================================================

func TestAggregate_FinalDiscountClippedAtZero(t *testing.T) {
	// GIVEN: A rule stack that drives adjustments deeply negative
	// WHEN: Computing
	// THEN: Final_Discount_% floors at 0 and Final_Net_Amount stays >= 0

	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColDealerTier: "Gold",
			engine.ColQuantity:   "100",
			engine.ColGrossValue: "1000",
		}),
	})
	cfg := engine.DefaultConfig()
	cfg.Rules = engine.RuleStack{
		{ColumnName: engine.ColDealerTier, Operator: engine.OpEquals, Value: "gold",
			Action: engine.ActionSubtract, AmountPct: pct(500)},
	}

	compute(t, table, cfg)

	r := table.Rows[0]
	wantDecimal(t, "Final_Discount_%", r.FinalDiscount, 0)
	if r.FinalNet.IsNegative() {
		t.Errorf("Final_Net_Amount = %v, want >= 0", r.FinalNet)
	}
}

func TestNet_FlooredAtZero(t *testing.T) {
	// A rebate larger than the invoice would drive the net negative.
	cfg := engine.DefaultConfig()
	cfg.Policy.EarlyRebate = pct(5000)

	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColGrossValue:  "100",
			engine.ColInvoiceDate: "2025-03-01",
			engine.ColPaymentDate: "2025-03-05",
		}),
	})

	compute(t, table, cfg)
	wantDecimal(t, "Final_Net_Amount", table.Rows[0].FinalNet, 0)
}

func TestAggregate_NoUpperClip(t *testing.T) {
	// A discount above 100% is legitimate; only the net is floored.
	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColDealerTier: "Gold",
			engine.ColQuantity:   "100",
			engine.ColGrossValue: "1000",
		}),
	})
	cfg := engine.DefaultConfig()
	cfg.Rules = engine.RuleStack{
		{ColumnName: engine.ColDealerTier, Operator: engine.OpEquals, Value: "gold",
			Action: engine.ActionAdd, AmountPct: pct(150)},
	}

	compute(t, table, cfg)

	r := table.Rows[0]
	wantDecimal(t, "Final_Discount_%", r.FinalDiscount, 152.0) // 2.0 base + 150
	wantDecimal(t, "Final_Net_Amount", r.FinalNet, 0)
}

// =============================================================================
// END-TO-END AND PURITY TESTS
// =============================================================================

func TestCompute_EndToEndScenario(t *testing.T) {
	// GIVEN: Gold tier, qty 600, gross 10000, Electronics invoiced in a
	//        boost month, payment 10 days after invoice (early threshold 15)
	// WHEN: Computing with defaults
	// THEN: Base=5.0, Policy=+2.0, Final=7.0, Discount=700,
	//       Settlement=-500, Net=8800

	table := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColDealerCode:      "D-001",
			engine.ColDealerTier:      "Gold",
			engine.ColQuantity:        "600",
			engine.ColGrossValue:      "10000",
			engine.ColInvoiceDate:     "2025-07-01",
			engine.ColPaymentDate:     "2025-07-11",
			engine.ColProductCategory: "Electronics",
		}),
	})

	result := compute(t, table, engine.DefaultConfig())

	r := table.Rows[0]
	wantDecimal(t, "Base_Discount_%", r.BaseDiscount, 5.0)
	wantDecimal(t, "Policy_Modifiers_%", r.PolicyModifiers, 2.0)
	wantDecimal(t, "Final_Discount_%", r.FinalDiscount, 7.0)
	wantDecimal(t, "Discount_Amount", r.DiscountAmount, 700)
	wantDecimal(t, "Settlement_Adjustment_Amount", r.SettlementAdjustment, -500)
	wantDecimal(t, "Final_Net_Amount", r.FinalNet, 8800)

	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	// Running the engine twice on identical rows and configuration yields
	// identical output: Compute is a pure function of its inputs.

	mkTable := func() *engine.Table {
		return engine.NewTable(ledgerColumns, []map[string]string{
			row(map[string]string{
				engine.ColDealerTier:      "Platinum",
				engine.ColQuantity:        "1200",
				engine.ColGrossValue:      "5000",
				engine.ColInvoiceDate:     "2025-08-01",
				engine.ColPaymentDate:     "2025-09-20",
				engine.ColProductCategory: "Electronics",
			}),
		})
	}
	cfg := engine.DefaultConfig()

	first := mkTable()
	compute(t, first, cfg)

	// Same table recomputed, and a fresh identical table.
	compute(t, first, cfg)
	second := mkTable()
	compute(t, second, cfg)

	a, b := first.Rows[0], second.Rows[0]
	for _, col := range engine.ComputedColumns() {
		if a.Cell(col) != b.Cell(col) {
			t.Errorf("%s diverged: %q vs %q", col, a.Cell(col), b.Cell(col))
		}
	}
}

func TestTable_CloneDeepCopiesCells(t *testing.T) {
	original := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{engine.ColDealerTier: "Gold", engine.ColQuantity: "600"}),
	})

	clone := original.Clone()
	clone.Rows[0].Cells[engine.ColDealerTier] = "Platinum"
	clone.Columns[0] = "Mutated"

	if got := original.Rows[0].Cells[engine.ColDealerTier]; got != "Gold" {
		t.Errorf("original cell mutated through clone: %q", got)
	}
	if original.Columns[0] != engine.ColDealerCode {
		t.Errorf("original column order mutated through clone: %q", original.Columns[0])
	}
}

func TestCompute_ClonesIsolateConcurrentRuns(t *testing.T) {
	// GIVEN: One shared source table with raw, un-normalized cells
	// WHEN: Several runs compute concurrently, each over its own clone
	// THEN: No run sees another's writes and the source cells stay raw

	source := engine.NewTable(ledgerColumns, []map[string]string{
		row(map[string]string{
			engine.ColDealerTier: "Gold",
			engine.ColQuantity:   "1,200",
			engine.ColGrossValue: "10000",
		}),
	})
	cfg := engine.DefaultConfig()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.New().Compute(context.Background(), source.Clone(), cfg); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Compute failed: %v", err)
	}

	if got := source.Rows[0].Cells[engine.ColQuantity]; got != "1,200" {
		t.Errorf("source cell rewritten by a run: %q", got)
	}
}

func TestCompute_OutputColumnOrder(t *testing.T) {
	// Output columns are the original merged columns followed by the
	// computed columns, in their fixed order.

	table := engine.NewTable(ledgerColumns, []map[string]string{row(nil)})
	result := compute(t, table, engine.DefaultConfig())

	want := append(append([]string{}, ledgerColumns...), engine.ComputedColumns()...)
	if len(result.Columns) != len(want) {
		t.Fatalf("got %d output columns, want %d", len(result.Columns), len(want))
	}
	for i := range want {
		if result.Columns[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, result.Columns[i], want[i])
		}
	}
}
