package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Batch Workflow Status
// ============================================================================

// BatchStatus is the global status of one import session.
// Lifecycle: idle → reading_file → analyzing → review → committing →
// {complete | error}. Changing a sheet's target table during review returns
// the session to analyzing.
type BatchStatus string

const (
	BatchIdle        BatchStatus = "idle"
	BatchReadingFile BatchStatus = "reading_file"
	BatchAnalyzing   BatchStatus = "analyzing"
	BatchReview      BatchStatus = "review"
	BatchCommitting  BatchStatus = "committing"
	BatchComplete    BatchStatus = "complete"
	BatchError       BatchStatus = "error"
)

// ValidBatchStatuses contains all valid batch status values.
var ValidBatchStatuses = []BatchStatus{
	BatchIdle,
	BatchReadingFile,
	BatchAnalyzing,
	BatchReview,
	BatchCommitting,
	BatchComplete,
	BatchError,
}

// IsValidBatchStatus checks if the given status is valid.
func IsValidBatchStatus(s BatchStatus) bool {
	return slices.Contains(ValidBatchStatuses, s)
}

// IsTerminal returns true for complete and error.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchComplete || s == BatchError
}

// ============================================================================
// Sheet Analysis
// ============================================================================

// SheetAnalysis is the fully populated analysis result for one sheet:
// decoded data plus table suggestions, the selected target, and per-header
// column mappings. Owned by the import session until commit or discard.
type SheetAnalysis struct {
	SheetData

	TableSuggestions []TableSuggestion `json:"table_suggestions"`
	SelectedTable    string            `json:"selected_table,omitempty"`
	IsNewTable       bool              `json:"is_new_table"`
	Mappings         []ColumnMapping   `json:"mappings"`

	// Error is set when analysis of this sheet failed. A failed sheet never
	// aborts its siblings.
	Error string `json:"error,omitempty"`
}

// Mapping returns the mapping for a header, or nil if the header is unknown.
func (a *SheetAnalysis) Mapping(header string) *ColumnMapping {
	for i := range a.Mappings {
		if a.Mappings[i].Header == header {
			return &a.Mappings[i]
		}
	}
	return nil
}

// ReviewStatus derives the sheet-level aggregate from the column states.
func (a *SheetAnalysis) ReviewStatus() SheetReviewStatus {
	return AggregateSheetStatus(a.Mappings)
}

// ============================================================================
// Commit Types
// ============================================================================

// CommitProgress tracks the commit sequence across approved sheets.
type CommitProgress struct {
	TotalSheets     int       `json:"total_sheets"`
	CompletedSheets int       `json:"completed_sheets"`
	FailedSheets    []string  `json:"failed_sheets,omitempty"`
	CurrentSheet    string    `json:"current_sheet,omitempty"`
	StartedAt       time.Time `json:"started_at"`
}

// ApprovedSheet is the commit-ready projection of one approved sheet:
// only approved, mapped or to-be-created columns survive, keyed by their
// target column names.
type ApprovedSheet struct {
	SheetName   string            `json:"sheet_name"`
	TargetTable string            `json:"target_table"`
	IsNewTable  bool              `json:"is_new_table"`
	ColumnOrder []string          `json:"column_order"`
	HeaderByCol map[string]string `json:"header_by_col"`
	Rows        []map[string]any  `json:"rows"`
	RowCount    int               `json:"row_count"`
}

// CommitPlan is what the session hands to the commit executor: approved
// sheets plus deduplicated schema proposals. Proposals must be applied
// before any rows are inserted.
type CommitPlan struct {
	SessionID uuid.UUID        `json:"session_id"`
	Sheets    []ApprovedSheet  `json:"sheets"`
	Proposals []SchemaProposal `json:"proposals"`
}

// ============================================================================
// Session Snapshot
// ============================================================================

// SheetSnapshot is a read-only view of one sheet's state for the UI layer.
type SheetSnapshot struct {
	SheetName        string            `json:"sheet_name"`
	Headers          []string          `json:"headers"`
	RowCount         int               `json:"row_count"`
	TableSuggestions []TableSuggestion `json:"table_suggestions"`
	SelectedTable    string            `json:"selected_table,omitempty"`
	IsNewTable       bool              `json:"is_new_table"`
	Mappings         []ColumnMapping   `json:"mappings"`
	ReviewStatus     SheetReviewStatus `json:"review_status"`
	Error            string            `json:"error,omitempty"`
}

// BatchSnapshot is a read-only view of the whole session.
type BatchSnapshot struct {
	SessionID      uuid.UUID        `json:"session_id"`
	FileName       string           `json:"file_name,omitempty"`
	Status         BatchStatus      `json:"status"`
	Sheets         []SheetSnapshot  `json:"sheets"`
	Proposals      []SchemaProposal `json:"proposals"`
	CommitProgress *CommitProgress  `json:"commit_progress,omitempty"`
}
