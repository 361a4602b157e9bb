// Package handlers exposes the import engine over HTTP: workbook upload,
// the review workflow, schema proposals, and commit.
package handlers

import (
	"context"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
	"github.com/sheetline-inc/sheetline-engine/pkg/services"
)

// SheetReader decodes an uploaded workbook stream.
type SheetReader interface {
	Read(src io.Reader) ([]models.SheetData, error)
}

// CatalogReader provides target schema snapshots.
type CatalogReader interface {
	Snapshot(ctx context.Context) (models.CatalogSnapshot, error)
}

// CommitExecutor applies an approved commit plan, reporting per-sheet
// outcomes through the callback.
type CommitExecutor interface {
	Apply(ctx context.Context, plan models.CommitPlan, report func(sheetName string, ok bool, message string)) error
}

// ImportHandler handles the import workflow endpoints.
type ImportHandler struct {
	session  *services.ImportSession
	analysis *services.AnalysisService
	reader   SheetReader
	catalog  CatalogReader
	executor CommitExecutor
	logger   *zap.Logger

	mu          sync.Mutex
	lastCatalog models.CatalogSnapshot
}

// NewImportHandler creates the import workflow handler.
func NewImportHandler(session *services.ImportSession, analysis *services.AnalysisService, reader SheetReader, catalog CatalogReader, executor CommitExecutor, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{
		session:  session,
		analysis: analysis,
		reader:   reader,
		catalog:  catalog,
		executor: executor,
		logger:   logger.Named("import_handler"),
	}
}

// RegisterRoutes registers the import workflow routes on the given mux.
func (h *ImportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/import/upload", h.Upload)
	mux.HandleFunc("GET /api/import/state", h.State)
	mux.HandleFunc("GET /api/import/proposals", h.Proposals)
	mux.HandleFunc("POST /api/import/commit", h.Commit)
	mux.HandleFunc("POST /api/import/reset", h.Reset)

	mux.HandleFunc("POST /api/import/sheets/{sheet}/table", h.SelectTable)
	mux.HandleFunc("POST /api/import/sheets/{sheet}/approve", h.ApproveSheet)
	mux.HandleFunc("POST /api/import/sheets/{sheet}/reject", h.RejectSheet)
	mux.HandleFunc("POST /api/import/sheets/{sheet}/columns/{header}/review", h.ReviewColumn)
	mux.HandleFunc("POST /api/import/sheets/{sheet}/columns/{header}/mapping", h.ModifyMapping)
}

// Upload handles POST /api/import/upload. The workbook comes either as a
// multipart "file" field or as the raw request body. Decoding is synchronous;
// analysis runs asynchronously on the work queue.
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	body, fileName := uploadSource(r)
	defer body.Close()

	sheets, err := h.reader.Read(body)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_workbook", err.Error())
		return
	}

	snapshot, err := h.catalog.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("catalog snapshot failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadGateway, "catalog_unavailable", "failed to read target schema")
		return
	}
	h.mu.Lock()
	h.lastCatalog = snapshot
	h.mu.Unlock()

	h.session.BeginFile(fileName)
	h.analysis.AnalyzeSheets(sheets, snapshot)

	h.logger.Info("workbook accepted",
		zap.String("file", fileName),
		zap.Int("sheets", len(sheets)))
	_ = WriteJSON(w, http.StatusAccepted, h.session.Snapshot())
}

// State handles GET /api/import/state.
func (h *ImportHandler) State(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// Proposals handles GET /api/import/proposals.
func (h *ImportHandler) Proposals(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"proposals": h.session.Proposals(),
	})
}

type selectTableRequest struct {
	TableName  string `json:"table_name"`
	IsNewTable bool   `json:"is_new_table"`
}

// SelectTable handles POST /api/import/sheets/{sheet}/table: it repoints the
// sheet at a different target table and schedules re-analysis under a fresh
// generation so stale results are discarded.
func (h *ImportHandler) SelectTable(w http.ResponseWriter, r *http.Request) {
	sheetName := r.PathValue("sheet")

	var req selectTableRequest
	if err := DecodeJSON(r, &req); err != nil || req.TableName == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "table_name is required")
		return
	}

	generation, err := h.session.SelectTargetTable(sheetName, req.TableName, req.IsNewTable)
	if err != nil {
		_ = domainError(w, err)
		return
	}

	sheet, err := h.session.SheetData(sheetName)
	if err != nil {
		_ = domainError(w, err)
		return
	}

	h.mu.Lock()
	catalog := h.lastCatalog
	h.mu.Unlock()
	h.analysis.ReanalyzeSheet(sheet, generation, catalog, req.TableName, req.IsNewTable)

	_ = WriteJSON(w, http.StatusAccepted, h.session.Snapshot())
}

type reviewRequest struct {
	Status models.ReviewStatus `json:"status"`
}

// ReviewColumn handles POST /api/import/sheets/{sheet}/columns/{header}/review.
func (h *ImportHandler) ReviewColumn(w http.ResponseWriter, r *http.Request) {
	sheetName := r.PathValue("sheet")
	header := r.PathValue("header")

	var req reviewRequest
	if err := DecodeJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.session.ReviewColumn(sheetName, header, req.Status); err != nil {
		_ = domainError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

type modifyMappingRequest struct {
	Action            models.MappingAction      `json:"action"`
	MappedColumn      *string                   `json:"mapped_column,omitempty"`
	NewColumnProposal *models.NewColumnProposal `json:"new_column_proposal,omitempty"`
}

// ModifyMapping handles POST /api/import/sheets/{sheet}/columns/{header}/mapping.
func (h *ImportHandler) ModifyMapping(w http.ResponseWriter, r *http.Request) {
	sheetName := r.PathValue("sheet")
	header := r.PathValue("header")

	var req modifyMappingRequest
	if err := DecodeJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.session.ModifyMapping(sheetName, header, req.Action, req.MappedColumn, req.NewColumnProposal); err != nil {
		_ = domainError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// ApproveSheet handles POST /api/import/sheets/{sheet}/approve.
func (h *ImportHandler) ApproveSheet(w http.ResponseWriter, r *http.Request) {
	if err := h.session.ApproveAllColumns(r.PathValue("sheet")); err != nil {
		_ = domainError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// RejectSheet handles POST /api/import/sheets/{sheet}/reject.
func (h *ImportHandler) RejectSheet(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RejectAllColumns(r.PathValue("sheet")); err != nil {
		_ = domainError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// Commit handles POST /api/import/commit: validation and plan construction
// are synchronous, execution runs in the background with per-sheet results
// recorded on the session.
func (h *ImportHandler) Commit(w http.ResponseWriter, r *http.Request) {
	if h.executor == nil {
		_ = ErrorResponse(w, http.StatusNotImplemented, "commit_unavailable", "commit is not supported for the configured catalog driver")
		return
	}

	plan, err := h.session.BuildCommitPlan()
	if err != nil {
		_ = domainError(w, err)
		return
	}

	go func() {
		err := h.executor.Apply(context.Background(), plan, func(sheetName string, ok bool, message string) {
			if err := h.session.RecordCommitResult(sheetName, ok, message); err != nil {
				h.logger.Error("failed to record commit result",
					zap.String("sheet", sheetName), zap.Error(err))
			}
		})
		if err != nil {
			h.logger.Error("commit execution failed", zap.Error(err))
		}
	}()

	_ = WriteJSON(w, http.StatusAccepted, map[string]any{
		"session_id": plan.SessionID,
		"sheets":     len(plan.Sheets),
		"proposals":  len(plan.Proposals),
	})
}

// Reset handles POST /api/import/reset.
func (h *ImportHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.session.Reset()
	_ = WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// uploadSource picks the workbook stream from a multipart "file" field when
// present, falling back to the raw request body.
func uploadSource(r *http.Request) (io.ReadCloser, string) {
	if file, header, err := r.FormFile("file"); err == nil {
		return file, header.Filename
	}
	return r.Body, "upload.xlsx"
}
