package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/apperrors"
	"github.com/sheetline-inc/sheetline-engine/pkg/matching"
	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// sheetState is the session's mutable record for one sheet.
type sheetState struct {
	analysis   models.SheetAnalysis
	generation uint64
	analyzed   bool
}

// ImportSession owns all sheet and proposal data for one import: it is the
// batch workflow state machine. All mutations go through its methods under a
// single lock, so readers never observe partial updates. The session also
// owns the normalization cache, which lives exactly as long as the session's
// current file.
type ImportSession struct {
	mu sync.Mutex

	id       uuid.UUID
	fileName string
	status   models.BatchStatus
	sheets   map[string]*sheetState
	order    []string

	commitProgress *models.CommitProgress

	norm   *matching.Normalizer
	logger *zap.Logger
}

// NewImportSession creates an idle session with a fresh normalization cache.
func NewImportSession(logger *zap.Logger, opts ...matching.NormalizerOption) *ImportSession {
	return &ImportSession{
		id:     uuid.New(),
		status: models.BatchIdle,
		sheets: make(map[string]*sheetState),
		norm:   matching.NewNormalizer(opts...),
		logger: logger.Named("session"),
	}
}

// ID returns the session identifier.
func (s *ImportSession) ID() uuid.UUID {
	return s.id
}

// Normalizer exposes the session-scoped normalization cache for the matching
// components working on this session's behalf.
func (s *ImportSession) Normalizer() *matching.Normalizer {
	return s.norm
}

// Status returns the global workflow status.
func (s *ImportSession) Status() models.BatchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// BeginFile discards all prior sheet state and starts reading a new file.
// Any in-flight analysis for previous sheets is invalidated because every
// sheet's generation record is dropped. The normalization cache is cleared
// so keys never leak across files.
func (s *ImportSession) BeginFile(fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fileName = fileName
	s.sheets = make(map[string]*sheetState)
	s.order = nil
	s.commitProgress = nil
	s.status = models.BatchReadingFile
	s.norm.Reset()

	s.logger.Info("started new import file",
		zap.String("session_id", s.id.String()),
		zap.String("file", fileName))
}

// RegisterSheet adds (or re-registers) a decoded sheet and moves the session
// into analysis. The returned generation token must accompany the analysis
// result; results carrying an older token are discarded.
func (s *ImportSession) RegisterSheet(data models.SheetData) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sheets[data.SheetName]
	if !ok {
		state = &sheetState{}
		s.sheets[data.SheetName] = state
		s.order = append(s.order, data.SheetName)
	}
	state.generation++
	state.analyzed = false
	state.analysis = models.SheetAnalysis{SheetData: data}

	s.status = models.BatchAnalyzing
	return state.generation
}

// ApplyAnalysis installs a completed sheet analysis. Results for a
// superseded generation are discarded with ErrStaleGeneration rather than
// merged. When every registered sheet has a result the session moves to
// review.
func (s *ImportSession) ApplyAnalysis(sheetName string, generation uint64, analysis models.SheetAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sheets[sheetName]
	if !ok {
		return fmt.Errorf("apply analysis for %q: %w", sheetName, apperrors.ErrSheetNotFound)
	}
	if generation != state.generation {
		s.logger.Debug("discarding stale analysis result",
			zap.String("sheet", sheetName),
			zap.Uint64("result_generation", generation),
			zap.Uint64("current_generation", state.generation))
		return apperrors.ErrStaleGeneration
	}

	state.analysis = analysis
	state.analyzed = true
	s.maybeEnterReviewLocked()

	s.logger.Info("sheet analysis applied",
		zap.String("sheet", sheetName),
		zap.Int("mappings", len(analysis.Mappings)),
		zap.Int("table_suggestions", len(analysis.TableSuggestions)))
	return nil
}

// MarkSheetFailed records a sheet-scoped analysis failure. The sheet carries
// the error; sibling sheets proceed to review normally.
func (s *ImportSession) MarkSheetFailed(sheetName string, generation uint64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sheets[sheetName]
	if !ok {
		return fmt.Errorf("mark sheet failed for %q: %w", sheetName, apperrors.ErrSheetNotFound)
	}
	if generation != state.generation {
		return apperrors.ErrStaleGeneration
	}

	state.analysis.Error = message
	state.analysis.Mappings = nil
	state.analyzed = true
	s.maybeEnterReviewLocked()

	s.logger.Warn("sheet analysis failed",
		zap.String("sheet", sheetName),
		zap.String("error", message))
	return nil
}

// maybeEnterReviewLocked moves to review once all sheets have results.
// Must be called with lock held.
func (s *ImportSession) maybeEnterReviewLocked() {
	if s.status != models.BatchAnalyzing {
		return
	}
	for _, state := range s.sheets {
		if !state.analyzed {
			return
		}
	}
	s.status = models.BatchReview
}

// SelectTargetTable changes a sheet's target table. All column-level
// suggestions for the sheet become invalid under the new target, so its
// mappings reset to skip/pending, the sheet's generation advances (stale
// results from the old target are discarded on arrival), and the session
// returns to analyzing. Other sheets are untouched. The new generation
// token is returned for the re-analysis request.
func (s *ImportSession) SelectTargetTable(sheetName, tableName string, isNewTable bool) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sheets[sheetName]
	if !ok {
		return 0, fmt.Errorf("select table for %q: %w", sheetName, apperrors.ErrSheetNotFound)
	}

	state.generation++
	state.analyzed = false
	state.analysis.SelectedTable = tableName
	state.analysis.IsNewTable = isNewTable
	state.analysis.Error = ""

	reset := make([]models.ColumnMapping, len(state.analysis.Headers))
	for i, header := range state.analysis.Headers {
		reset[i] = models.ColumnMapping{
			Header:       header,
			Action:       models.ActionSkip,
			InferredType: models.DataKindUnknown,
			ReviewStatus: models.ReviewPending,
		}
	}
	state.analysis.Mappings = reset

	s.status = models.BatchAnalyzing

	s.logger.Info("sheet target table changed",
		zap.String("sheet", sheetName),
		zap.String("table", tableName),
		zap.Bool("new_table", isNewTable),
		zap.Uint64("generation", state.generation))

	return state.generation, nil
}

// ReviewColumn applies an explicit review decision to one column.
func (s *ImportSession) ReviewColumn(sheetName, header string, status models.ReviewStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, err := s.mappingLocked(sheetName, header)
	if err != nil {
		return err
	}
	if !models.IsValidReviewStatus(status) {
		return fmt.Errorf("review column %q: invalid status %q", header, status)
	}
	if !mapping.ReviewStatus.CanTransitionTo(status) {
		return fmt.Errorf("review column %q: %q → %q: %w",
			header, mapping.ReviewStatus, status, apperrors.ErrInvalidTransition)
	}

	mapping.ReviewStatus = status
	return nil
}

// ModifyMapping manually edits a column's mapping. The column moves to the
// modified state and requires a subsequent explicit approve or reject.
func (s *ImportSession) ModifyMapping(sheetName, header string, action models.MappingAction, mappedColumn *string, proposal *models.NewColumnProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, err := s.mappingLocked(sheetName, header)
	if err != nil {
		return err
	}

	updated := *mapping
	updated.Action = action
	updated.MappedColumn = mappedColumn
	updated.NewColumnProposal = proposal
	updated.ReviewStatus = models.ReviewModified
	if err := updated.Validate(); err != nil {
		return fmt.Errorf("modify mapping: %w", err)
	}

	*mapping = updated
	return nil
}

// ApproveAllColumns is a bulk operator: it fans approval out to every column
// of the sheet and lets the aggregate recompute. Idempotent.
func (s *ImportSession) ApproveAllColumns(sheetName string) error {
	return s.bulkReview(sheetName, models.ReviewApproved)
}

// RejectAllColumns is the rejecting bulk operator. Idempotent.
func (s *ImportSession) RejectAllColumns(sheetName string) error {
	return s.bulkReview(sheetName, models.ReviewRejected)
}

func (s *ImportSession) bulkReview(sheetName string, status models.ReviewStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sheets[sheetName]
	if !ok {
		return fmt.Errorf("bulk review %q: %w", sheetName, apperrors.ErrSheetNotFound)
	}
	for i := range state.analysis.Mappings {
		state.analysis.Mappings[i].ReviewStatus = status
	}
	return nil
}

// SheetData returns the decoded data for one sheet, for re-analysis after
// a target table change.
func (s *ImportSession) SheetData(sheetName string) (models.SheetData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sheets[sheetName]
	if !ok {
		return models.SheetData{}, fmt.Errorf("sheet data %q: %w", sheetName, apperrors.ErrSheetNotFound)
	}
	return state.analysis.SheetData, nil
}

// SheetReviewStatus returns the derived aggregate for one sheet.
func (s *ImportSession) SheetReviewStatus(sheetName string) (models.SheetReviewStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sheets[sheetName]
	if !ok {
		return "", fmt.Errorf("sheet status %q: %w", sheetName, apperrors.ErrSheetNotFound)
	}
	return state.analysis.ReviewStatus(), nil
}

// Proposals recomputes the session-wide schema proposals on demand: every
// sheet not wholly rejected and not failed contributes its create-column
// proposals (skipping rejected columns) or, for new-table sheets, a table
// skeleton. Deduplicated by proposal key.
func (s *ImportSession) Proposals() []models.SchemaProposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposalsLocked(false)
}

// proposalsLocked builds the deduplicated proposal list. When approvedOnly
// is set, only fully approved sheets and approved columns contribute.
// Must be called with lock held.
func (s *ImportSession) proposalsLocked(approvedOnly bool) []models.SchemaProposal {
	set := NewProposalSet()

	for _, name := range s.order {
		state := s.sheets[name]
		if state.analysis.Error != "" {
			continue
		}
		agg := state.analysis.ReviewStatus()
		if agg == models.SheetReviewRejected {
			continue
		}
		if approvedOnly && agg != models.SheetReviewApproved {
			continue
		}

		if state.analysis.IsNewTable {
			s.addNewTableProposalLocked(set, state, approvedOnly)
			continue
		}

		for _, m := range state.analysis.Mappings {
			if m.Action != models.ActionCreate || m.NewColumnProposal == nil {
				continue
			}
			if m.ReviewStatus == models.ReviewRejected {
				continue
			}
			if approvedOnly && m.ReviewStatus != models.ReviewApproved {
				continue
			}
			set.Add(models.NewColumnSchemaProposal(*m.NewColumnProposal))
		}
	}

	return set.Proposals()
}

// addNewTableProposalLocked folds a new-table sheet's column proposals into
// one table skeleton. Must be called with lock held.
func (s *ImportSession) addNewTableProposalLocked(set *ProposalSet, state *sheetState, approvedOnly bool) {
	columns := make([]models.NewColumnProposal, 0, len(state.analysis.Mappings))
	for _, m := range state.analysis.Mappings {
		if m.NewColumnProposal == nil || m.ReviewStatus == models.ReviewRejected {
			continue
		}
		if approvedOnly && m.ReviewStatus != models.ReviewApproved {
			continue
		}
		columns = append(columns, *m.NewColumnProposal)
	}
	if len(columns) == 0 {
		return
	}
	set.Add(models.NewTableSchemaProposal(models.NewTableProposal{
		TableName: state.analysis.SelectedTable,
		Columns:   columns,
	}))
}

// ValidateCommit rejects a commit while any live sheet still has columns
// pending review, naming the offending sheets and columns. It also requires
// at least one fully approved sheet.
func (s *ImportSession) ValidateCommit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateCommitLocked()
}

func (s *ImportSession) validateCommitLocked() error {
	approvedSheets := 0
	var offenders []string

	for _, name := range s.order {
		state := s.sheets[name]
		if state.analysis.Error != "" {
			continue
		}
		agg := state.analysis.ReviewStatus()
		switch agg {
		case models.SheetReviewApproved:
			approvedSheets++
		case models.SheetReviewRejected:
			// Explicitly excluded from commit.
		default:
			var pending []string
			for _, m := range state.analysis.Mappings {
				switch m.ReviewStatus {
				case models.ReviewApproved, models.ReviewRejected:
				default:
					pending = append(pending, m.Header)
				}
			}
			if len(pending) > 0 {
				offenders = append(offenders, fmt.Sprintf("%s (%s)", name, strings.Join(pending, ", ")))
			}
		}
	}

	if len(offenders) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrPendingColumns, strings.Join(offenders, "; "))
	}
	if approvedSheets == 0 {
		return apperrors.ErrNoApprovedSheets
	}
	return nil
}

// BuildCommitPlan validates review completeness, transitions the session to
// committing, and returns the commit plan: approved sheets only, plus the
// deduplicated proposals those sheets need. The executor must apply the
// proposals before inserting rows.
func (s *ImportSession) BuildCommitPlan() (models.CommitPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == models.BatchCommitting {
		return models.CommitPlan{}, apperrors.ErrCommitInProgress
	}
	if err := s.validateCommitLocked(); err != nil {
		return models.CommitPlan{}, err
	}

	plan := models.CommitPlan{
		SessionID: s.id,
		Proposals: s.proposalsLocked(true),
	}

	for _, name := range s.order {
		state := s.sheets[name]
		if state.analysis.Error != "" || state.analysis.ReviewStatus() != models.SheetReviewApproved {
			continue
		}
		plan.Sheets = append(plan.Sheets, approvedSheetProjection(&state.analysis))
	}

	s.status = models.BatchCommitting
	s.commitProgress = &models.CommitProgress{
		TotalSheets: len(plan.Sheets),
		StartedAt:   time.Now(),
	}

	s.logger.Info("commit plan built",
		zap.String("session_id", s.id.String()),
		zap.Int("sheets", len(plan.Sheets)),
		zap.Int("proposals", len(plan.Proposals)))

	return plan, nil
}

// approvedSheetProjection restricts a sheet to its committable columns:
// approved mapped columns and approved create columns, with rows projected
// onto target column names.
func approvedSheetProjection(a *models.SheetAnalysis) models.ApprovedSheet {
	sheet := models.ApprovedSheet{
		SheetName:   a.SheetName,
		TargetTable: a.SelectedTable,
		IsNewTable:  a.IsNewTable,
		HeaderByCol: make(map[string]string),
		RowCount:    a.RowCount,
	}

	for _, m := range a.Mappings {
		if m.ReviewStatus != models.ReviewApproved {
			continue
		}
		var target string
		switch m.Action {
		case models.ActionMap:
			target = *m.MappedColumn
		case models.ActionCreate:
			target = m.NewColumnProposal.ColumnName
		default:
			continue
		}
		sheet.ColumnOrder = append(sheet.ColumnOrder, target)
		sheet.HeaderByCol[target] = m.Header
	}

	for _, row := range a.SampleRows {
		projected := make(map[string]any, len(sheet.ColumnOrder))
		for _, col := range sheet.ColumnOrder {
			projected[col] = row[sheet.HeaderByCol[col]]
		}
		sheet.Rows = append(sheet.Rows, projected)
	}

	return sheet
}

// RecordCommitResult records the executor's per-sheet outcome. When every
// planned sheet has reported, the session finishes as complete (all
// succeeded) or error (any failed).
func (s *ImportSession) RecordCommitResult(sheetName string, ok bool, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.BatchCommitting || s.commitProgress == nil {
		return fmt.Errorf("record commit result: session not committing: %w", apperrors.ErrInvalidTransition)
	}

	s.commitProgress.CompletedSheets++
	s.commitProgress.CurrentSheet = sheetName
	if !ok {
		s.commitProgress.FailedSheets = append(s.commitProgress.FailedSheets, sheetName)
		s.logger.Error("sheet commit failed",
			zap.String("sheet", sheetName),
			zap.String("error", message))
	}

	if s.commitProgress.CompletedSheets >= s.commitProgress.TotalSheets {
		if len(s.commitProgress.FailedSheets) == 0 {
			s.status = models.BatchComplete
		} else {
			s.status = models.BatchError
		}
		s.commitProgress.CurrentSheet = ""
	}
	return nil
}

// Reset discards everything and returns the session to idle.
func (s *ImportSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fileName = ""
	s.sheets = make(map[string]*sheetState)
	s.order = nil
	s.commitProgress = nil
	s.status = models.BatchIdle
	s.norm.Reset()
}

// Snapshot returns a deep read-only view of the session for the UI layer.
func (s *ImportSession) Snapshot() models.BatchSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := models.BatchSnapshot{
		SessionID: s.id,
		FileName:  s.fileName,
		Status:    s.status,
		Proposals: s.proposalsLocked(false),
	}
	if s.commitProgress != nil {
		progress := *s.commitProgress
		snap.CommitProgress = &progress
	}

	for _, name := range s.order {
		state := s.sheets[name]
		mappings := make([]models.ColumnMapping, len(state.analysis.Mappings))
		copy(mappings, state.analysis.Mappings)
		suggestions := make([]models.TableSuggestion, len(state.analysis.TableSuggestions))
		copy(suggestions, state.analysis.TableSuggestions)

		snap.Sheets = append(snap.Sheets, models.SheetSnapshot{
			SheetName:        name,
			Headers:          append([]string(nil), state.analysis.Headers...),
			RowCount:         state.analysis.RowCount,
			TableSuggestions: suggestions,
			SelectedTable:    state.analysis.SelectedTable,
			IsNewTable:       state.analysis.IsNewTable,
			Mappings:         mappings,
			ReviewStatus:     state.analysis.ReviewStatus(),
			Error:            state.analysis.Error,
		})
	}
	return snap
}

// mappingLocked finds one column mapping. Must be called with lock held.
func (s *ImportSession) mappingLocked(sheetName, header string) (*models.ColumnMapping, error) {
	state, ok := s.sheets[sheetName]
	if !ok {
		return nil, fmt.Errorf("sheet %q: %w", sheetName, apperrors.ErrSheetNotFound)
	}
	mapping := state.analysis.Mapping(header)
	if mapping == nil {
		return nil, fmt.Errorf("sheet %q column %q: %w", sheetName, header, apperrors.ErrColumnNotFound)
	}
	return mapping, nil
}
