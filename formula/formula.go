/*
Package formula provides the sandboxed advanced-formula evaluator.

PURPOSE:
  The engine's escape hatch lets a caller stage one free-form boolean
  predicate over ledger columns, e.g.

    Quantity > 500 and Product_Category == 'Spares'

  Rows satisfying the predicate receive one signed percentage adjustment.
  The predicate comes from untrusted callers, so it must never reach an
  interpreter: this package parses a fixed grammar (comparisons, and/or/not,
  parentheses, column references, string and number literals) into a
  JSONLogic rule, and all evaluation goes through the jsonlogic library.
  There is no code execution, no I/O, and no access to anything outside
  the declared columns.

GRAMMAR:
  expr       := or
  or         := and ( "or" and )*
  and        := unary ( "and" unary )*
  unary      := "not" unary | "(" expr ")" | comparison
  comparison := operand ( "==" | "!=" | ">" | ">=" | "<" | "<=" ) operand
  operand    := column | number | 'string' | "string"

VALIDATION:
  Column references are checked against the merged schema at parse time;
  an unknown column is a parse error. A failed parse or a failed apply
  degrades the staged formula to a no-op with a descriptive error - one
  bad rule never blocks the batch.

SEE ALSO:
  - engine/engine.go: Applies the staged formula as pipeline stage 5
*/
package formula

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/diegoholiveira/jsonlogic/v3"
)

// Formula is a staged predicate compiled to a JSONLogic rule. At most one
// formula is staged at a time; staging a new one replaces the prior.
type Formula struct {
	Source string
	rule   interface{}
}

// Parse compiles an infix predicate into a Formula. columns is the merged
// schema; referencing any other identifier is an error.
func Parse(source string, columns []string) (*Formula, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", source, err)
	}
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	p := &parser{tokens: tokens, columns: known}
	rule, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", source, err)
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("formula %q: unexpected %q", source, p.peek().text)
	}
	return &Formula{Source: source, rule: rule}, nil
}

// Evaluate applies the compiled rule to one row's column data and reports
// whether the predicate holds.
func (f *Formula) Evaluate(data map[string]interface{}) (bool, error) {
	ruleJSON, err := json.Marshal(f.rule)
	if err != nil {
		return false, fmt.Errorf("marshal rule: %w", err)
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("marshal row data: %w", err)
	}

	var result bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(ruleJSON), bytes.NewReader(dataJSON), &result); err != nil {
		return false, fmt.Errorf("apply formula: %w", err)
	}

	var out interface{}
	if err := json.Unmarshal(result.Bytes(), &out); err != nil {
		return false, fmt.Errorf("decode formula result: %w", err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("formula result is %T, not boolean", out)
	}
	return b, nil
}

// Rule exposes the compiled JSONLogic rule, mainly for persistence and
// inspection.
func (f *Formula) Rule() interface{} { return f.rule }
