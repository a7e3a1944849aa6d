/*
handlers.go - HTTP API handlers for the discount computation service

PURPOSE:
  Exposes the computation engine via REST API, mirroring the original
  tool's workflow: upload, merge, stage, compute, export. Handles HTTP
  request/response and JSON serialization, delegating all semantics to
  the engine, ledger and factory packages.

ENDPOINTS:
  Datasets:
    POST   /api/datasets                 Upload master + ledger (multipart)
    GET    /api/datasets/{id}            Dataset status + merged preview
    POST   /api/datasets/{id}/merge      Execute the VLOOKUP merge

  Staging:
    PUT    /api/datasets/{id}/matrix     Replace the tier band table
    PUT    /api/datasets/{id}/policy     Replace the policy knobs
    POST   /api/datasets/{id}/rules      Stage the custom rule list
    POST   /api/datasets/{id}/formula    Stage the advanced formula
    GET    /api/datasets/{id}/config     Read back the staged document

  Computation:
    POST   /api/datasets/{id}/compute    Run the engine
    GET    /api/runs                     Run history
    GET    /api/runs/{id}                One run summary
    GET    /api/runs/{id}/export         Download output (?format=xlsx|csv)

ARCHITECTURE:
  Handler holds the persistent store plus in-memory session state:
  uploaded tables and the latest run results. Staged configuration is
  written through to the store on every staging call and read back via
  the config endpoint; output rows are deliberately memory-only (a row's
  lifecycle ends at the net composer). ds.Merged is immutable once the
  merge has run; each compute works on a clone.

ERROR HANDLING:
  - 400: invalid input, unstaged prerequisites
  - 404: unknown dataset or run
  - 422: fatal precondition (missing Dealer_Code join key)
  - 500: internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/discount-engine/engine"
	"github.com/warp/discount-engine/factory"
	"github.com/warp/discount-engine/ledger"
)

const previewRows = 5

// maxUploadBytes caps multipart uploads (32 MiB, matching typical ledger
// sizes with headroom).
const maxUploadBytes = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// dataset is one upload session: the raw tables, the merge result and the
// staged configuration document.
type dataset struct {
	ID        string
	Master    *engine.Table
	Ledger    *engine.Table
	Merged    *engine.Table
	Doc       factory.Document
	CreatedAt time.Time
}

// runResult keeps one run's full output in memory for export.
type runResult struct {
	Record engine.RunRecord
	Result *engine.Result
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  engine.Store
	Engine *engine.Engine

	// Defaults is the config document new datasets start from. Zero value
	// means the shipped policy defaults; set before serving.
	Defaults factory.Document

	mu       sync.RWMutex
	datasets map[string]*dataset
	results  map[string]*runResult
}

// NewHandler creates a new handler with the given store.
func NewHandler(store engine.Store) *Handler {
	return &Handler{
		Store:    store,
		Engine:   engine.New(),
		datasets: make(map[string]*dataset),
		results:  make(map[string]*runResult),
	}
}

// =============================================================================
// DATASET ENDPOINTS
// =============================================================================

// CreateDataset uploads the master and ledger files.
// POST /api/datasets (multipart fields "master" and "ledger")
func (h *Handler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload", err)
		return
	}

	master, err := h.readUpload(r, "master")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read master file", err)
		return
	}
	ledgerT, err := h.readUpload(r, "ledger")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read ledger file", err)
		return
	}

	// The one fatal precondition: both tables must carry the join key.
	for _, check := range []struct {
		name  string
		table *engine.Table
	}{{"master", master}, {"ledger", ledgerT}} {
		if !check.table.HasColumn(engine.ColDealerCode) {
			writeError(w, http.StatusUnprocessableEntity, "Missing join key",
				&engine.MissingColumnError{Table: check.name, Column: engine.ColDealerCode})
			return
		}
	}
	if !master.HasColumn(engine.ColDealerTier) {
		writeError(w, http.StatusUnprocessableEntity, "Missing column",
			&engine.MissingColumnError{Table: "master", Column: engine.ColDealerTier})
		return
	}

	ds := &dataset{
		ID:        uuid.NewString(),
		Master:    master,
		Ledger:    ledgerT,
		Doc:       h.Defaults,
		CreatedAt: time.Now().UTC(),
	}

	h.mu.Lock()
	h.datasets[ds.ID] = ds
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, h.toDatasetDTO(ds))
}

// GetDataset returns dataset status and a merged preview.
// GET /api/datasets/{id}
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.dataset(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Dataset not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.toDatasetDTO(ds))
}

// MergeDataset executes the VLOOKUP merge with the requested mappings.
// POST /api/datasets/{id}/merge
func (h *Handler) MergeDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.dataset(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Dataset not found", nil)
		return
	}

	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	merged, err := ledger.Merge(ds.Ledger, ds.Master, req.Mappings)
	if err != nil {
		if errors.Is(err, engine.ErrMissingJoinKey) {
			writeError(w, http.StatusUnprocessableEntity, "Missing join key", err)
			return
		}
		writeError(w, http.StatusBadRequest, "Merge failed", err)
		return
	}

	h.mu.Lock()
	ds.Merged = merged
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, h.toDatasetDTO(ds))
}

// =============================================================================
// STAGING ENDPOINTS
// =============================================================================

// StageMatrix replaces the staged tier band table.
// PUT /api/datasets/{id}/matrix
func (h *Handler) StageMatrix(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.dataset(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Dataset not found", nil)
		return
	}

	var req MatrixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.mu.Lock()
	ds.Doc.Matrix = req.Matrix
	h.mu.Unlock()

	if err := h.persistConfig(r, ds); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bands": len(req.Matrix)})
}

// StagePolicy replaces the staged policy knobs.
// PUT /api/datasets/{id}/policy
func (h *Handler) StagePolicy(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.dataset(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Dataset not found", nil)
		return
	}

	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.mu.Lock()
	policy := req.Policy
	ds.Doc.Policy = &policy
	h.mu.Unlock()

	if err := h.persistConfig(r, ds); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "staged"})
}

// StageRules replaces the staged custom rule list. Incomplete rules are
// dropped here, at staging time, so partial rules never reach the engine.
// POST /api/datasets/{id}/rules
func (h *Handler) StageRules(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.dataset(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Dataset not found", nil)
		return
	}

	var req StageRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Dry-run the build to report how many rules survive validation.
	probe := factory.Document{Rules: req.Rules}
	cfg, warnings, err := probe.Build(nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rules", err)
		return
	}

	h.mu.Lock()
	ds.Doc.Rules = req.Rules
	h.mu.Unlock()

	if err := h.persistConfig(r, ds); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, StageRulesResponse{Staged: len(cfg.Rules), Warnings: warnings})
}

// StageFormula replaces the staged advanced formula (last staged wins).
// POST /api/datasets/{id}/formula
func (h *Handler) StageFormula(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.dataset(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Dataset not found", nil)
		return
	}

	var req StageFormulaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.mu.RLock()
	merged := ds.Merged
	h.mu.RUnlock()
	if merged == nil && req.Formula != "" {
		writeError(w, http.StatusBadRequest, "Merge the dataset before staging a formula", engine.ErrNotMerged)
		return
	}

	h.mu.Lock()
	if req.Formula == "" {
		ds.Doc.Formula = nil
	} else {
		ds.Doc.Formula = &factory.FormulaDoc{Formula: req.Formula, Amount: req.Amount}
	}
	h.mu.Unlock()

	// Parse-validate now so authors get immediate feedback; a formula that
	// fails here is still staged as a degraded no-op, matching the
	// engine's non-fatal contract.
	var warnings []string
	if req.Formula != "" {
		probe := factory.Document{Formula: &factory.FormulaDoc{Formula: req.Formula, Amount: req.Amount}}
		_, warnings, _ = probe.Build(merged.Columns)
	}

	if err := h.persistConfig(r, ds); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "staged", "warnings": warnings})
}

// =============================================================================
// COMPUTATION ENDPOINTS
// =============================================================================

// Compute runs the engine over the merged dataset with the staged
// configuration snapshot.
// POST /api/datasets/{id}/compute
func (h *Handler) Compute(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.dataset(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Dataset not found", nil)
		return
	}

	h.mu.RLock()
	merged := ds.Merged
	doc := ds.Doc
	h.mu.RUnlock()

	if merged == nil {
		writeError(w, http.StatusBadRequest, "Dataset has not been merged", engine.ErrNotMerged)
		return
	}

	cfg, warnings, err := doc.Build(merged.Columns)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid staged configuration", err)
		return
	}

	// The engine mutates rows in place, so each run computes over its own
	// copy. ds.Merged stays immutable after the merge, which keeps
	// concurrent computes and preview reads off shared cell maps.
	working := merged.Clone()
	result, err := h.Engine.Compute(r.Context(), working, cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Computation failed", err)
		return
	}
	warnings = append(warnings, result.Warnings...)

	record := engine.RunRecord{
		ID:        uuid.NewString(),
		DatasetID: ds.ID,
		RowCount:  len(result.Table.Rows),
		Warnings:  warnings,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveRun(r.Context(), record); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record run", err)
		return
	}

	h.mu.Lock()
	h.results[record.ID] = &runResult{Record: record, Result: result}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, ComputeResponse{
		RunID:    record.ID,
		RowCount: record.RowCount,
		Columns:  result.Columns,
		Rows:     rowsAsMaps(result),
		Warnings: warnings,
	})
}

// ListRuns returns run history.
// GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// GetStagedConfig returns the staged configuration document, read back from
// the store. Before anything has been staged it falls back to the dataset's
// current (default) document.
// GET /api/datasets/{id}/config
func (h *Handler) GetStagedConfig(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.dataset(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Dataset not found", nil)
		return
	}

	rec, err := h.Store.GetConfig(r.Context(), ds.ID)
	if errors.Is(err, engine.ErrNotFound) {
		h.mu.RLock()
		doc := ds.Doc
		h.mu.RUnlock()
		encoded, encErr := doc.Encode()
		if encErr != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encode configuration", encErr)
			return
		}
		writeJSON(w, http.StatusOK, ConfigDTO{DatasetID: ds.ID, Config: json.RawMessage(encoded)})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, ConfigDTO{
		DatasetID: rec.DatasetID,
		Config:    json.RawMessage(rec.ConfigJSON),
		UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
	})
}

// GetRun returns one run summary.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// ExportRun downloads one run's computed output.
// GET /api/runs/{id}/export?format=xlsx|csv
func (h *Handler) ExportRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	res, ok := h.results[id]
	h.mu.RUnlock()
	if !ok {
		// Run summaries persist, but output rows live only for the session.
		writeError(w, http.StatusNotFound, "Run output not available (rows are not persisted across restarts)", nil)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	switch format {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="Calculated_Automatic_Discount.xlsx"`)
		if err := ledger.WriteXLSX(w, res.Result); err != nil {
			writeError(w, http.StatusInternalServerError, "Export failed", err)
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="Calculated_Automatic_Discount.csv"`)
		if err := ledger.WriteCSV(w, res.Result); err != nil {
			writeError(w, http.StatusInternalServerError, "Export failed", err)
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown format %q", format), nil)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) dataset(id string) (*dataset, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ds, ok := h.datasets[id]
	return ds, ok
}

func (h *Handler) readUpload(r *http.Request, field string) (*engine.Table, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing %q file: %w", field, err)
	}
	defer file.Close()
	return ledger.LoadTable(file, header.Filename)
}

// persistConfig writes the dataset's staged document through to the store.
func (h *Handler) persistConfig(r *http.Request, ds *dataset) error {
	h.mu.RLock()
	doc := ds.Doc
	h.mu.RUnlock()

	encoded, err := doc.Encode()
	if err != nil {
		return err
	}
	return h.Store.SaveConfig(r.Context(), engine.ConfigRecord{
		DatasetID:  ds.ID,
		ConfigJSON: encoded,
		UpdatedAt:  time.Now().UTC(),
	})
}

func (h *Handler) toDatasetDTO(ds *dataset) DatasetDTO {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dto := DatasetDTO{
		ID:            ds.ID,
		MasterColumns: ds.Master.Columns,
		LedgerColumns: ds.Ledger.Columns,
		LedgerRows:    len(ds.Ledger.Rows),
		Merged:        ds.Merged != nil,
		CreatedAt:     ds.CreatedAt.Format(time.RFC3339),
	}
	preview := ds.Ledger
	if ds.Merged != nil {
		dto.MergedColumns = ds.Merged.Columns
		preview = ds.Merged
	}
	for i, row := range preview.Rows {
		if i >= previewRows {
			break
		}
		m := make(map[string]string, len(preview.Columns))
		for _, c := range preview.Columns {
			m[c] = row.Cells[c]
		}
		dto.Preview = append(dto.Preview, m)
	}
	return dto
}

func rowsAsMaps(res *engine.Result) []map[string]string {
	out := make([]map[string]string, 0, len(res.Table.Rows))
	for _, r := range res.Table.Rows {
		m := make(map[string]string, len(res.Columns))
		for _, c := range res.Columns {
			m[c] = r.Cell(c)
		}
		out = append(out, m)
	}
	return out
}

func toRunDTO(run engine.RunRecord) RunDTO {
	return RunDTO{
		ID:        run.ID,
		DatasetID: run.DatasetID,
		RowCount:  run.RowCount,
		Warnings:  run.Warnings,
		CreatedAt: run.CreatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
