/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's internal model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and in the factory package; DTOs are pure
  data carriers. Config-shaped payloads reuse the factory document types
  so the HTTP contract and the file-based config stay identical.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/config.go: BandDoc, PolicyDoc, RuleDoc, FormulaDoc
*/
package api

import (
	"encoding/json"

	"github.com/warp/discount-engine/factory"
	"github.com/warp/discount-engine/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// DatasetDTO describes an uploaded dataset and its merge state.
type DatasetDTO struct {
	ID            string              `json:"id"`
	MasterColumns []string            `json:"master_columns"`
	LedgerColumns []string            `json:"ledger_columns"`
	MergedColumns []string            `json:"merged_columns,omitempty"`
	LedgerRows    int                 `json:"ledger_rows"`
	Merged        bool                `json:"merged"`
	Preview       []map[string]string `json:"preview,omitempty"`
	CreatedAt     string              `json:"created_at"`
}

// ConfigDTO is the staged configuration document as persisted. UpdatedAt is
// empty when nothing has been staged yet.
type ConfigDTO struct {
	DatasetID string          `json:"dataset_id"`
	Config    json.RawMessage `json:"config"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

// MergeRequest selects master columns to VLOOKUP into the ledger.
// Dealer_Tier is always merged regardless of mappings.
type MergeRequest struct {
	Mappings []ledger.ColumnMapping `json:"mappings"`
}

// MatrixRequest replaces the staged tier band table. Order is resolution
// order.
type MatrixRequest struct {
	Matrix []factory.BandDoc `json:"matrix"`
}

// PolicyRequest replaces the staged policy knobs. Omitted fields keep
// their defaults.
type PolicyRequest struct {
	Policy factory.PolicyDoc `json:"policy"`
}

// StageRulesRequest replaces the staged custom rule list.
type StageRulesRequest struct {
	Rules []factory.RuleDoc `json:"rules"`
}

// StageRulesResponse reports how many rules survived staging validation.
type StageRulesResponse struct {
	Staged   int      `json:"staged"`
	Warnings []string `json:"warnings,omitempty"`
}

// StageFormulaRequest replaces the staged advanced formula. Staging an
// empty formula clears it; staging a new one replaces the prior.
type StageFormulaRequest struct {
	Formula string  `json:"formula"`
	Amount  float64 `json:"amount"`
}

// ComputeResponse carries one run's output.
type ComputeResponse struct {
	RunID    string              `json:"run_id"`
	RowCount int                 `json:"row_count"`
	Columns  []string            `json:"columns"`
	Rows     []map[string]string `json:"rows"`
	Warnings []string            `json:"warnings,omitempty"`
}

// RunDTO is one run-history entry.
type RunDTO struct {
	ID        string   `json:"id"`
	DatasetID string   `json:"dataset_id"`
	RowCount  int      `json:"row_count"`
	Warnings  []string `json:"warnings,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
