/*
errors.go - Centralized error types for the computation engine

PURPOSE:
  All sentinel errors in one place. The error taxonomy is deliberately
  small because the engine degrades instead of failing:

  Fatal precondition:  a missing join-key column halts before any
                       computation (ErrMissingJoinKey).
  Cell coercion:       recovered locally via defaults, never surfaced.
  Rule configuration:  a bad staged formula is reported once as a warning
                       on the Result and skipped; the batch proceeds.
  Missing column:      a rule or modifier targeting an absent column is a
                       silent universal no-op.

USAGE:
  if errors.Is(err, engine.ErrMissingJoinKey) { ... }

SEE ALSO:
  - ledger/merge.go: Raises the join-key precondition
  - store.go: Uses ErrNotFound
*/
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingJoinKey is returned when Dealer_Code is absent from either
	// source table. This is the engine's only fatal precondition.
	ErrMissingJoinKey = errors.New("missing Dealer_Code join key column")

	// ErrNotFound is returned by stores when a staged record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNotMerged is returned when computation is requested before the
	// master table has been merged into the ledger.
	ErrNotMerged = errors.New("ledger has not been merged yet")
)

// MissingColumnError reports which table is missing which required column.
type MissingColumnError struct {
	Table  string // "master" or "ledger"
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s table is missing required column %q", e.Table, e.Column)
}

func (e *MissingColumnError) Unwrap() error {
	if e.Column == ColDealerCode {
		return ErrMissingJoinKey
	}
	return nil
}
