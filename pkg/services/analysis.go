package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/apperrors"
	"github.com/sheetline-inc/sheetline-engine/pkg/matching"
	"github.com/sheetline-inc/sheetline-engine/pkg/models"
	"github.com/sheetline-inc/sheetline-engine/pkg/services/workqueue"
)

// AnalysisService turns registered sheets into analysis tasks and runs them
// over the shared work queue. Each sheet is one task: failures stay scoped to
// their sheet and never abort siblings.
type AnalysisService struct {
	session *ImportSession
	queue   *workqueue.Queue
	topN    int
	logger  *zap.Logger
}

// NewAnalysisService wires the analysis pipeline to a session and queue.
func NewAnalysisService(session *ImportSession, queue *workqueue.Queue, topN int, logger *zap.Logger) *AnalysisService {
	if topN <= 0 {
		topN = 3
	}
	return &AnalysisService{
		session: session,
		queue:   queue,
		topN:    topN,
		logger:  logger.Named("analysis"),
	}
}

// AnalyzeSheets registers every sheet with the session and enqueues one
// analysis task per sheet against the given catalog snapshot.
func (s *AnalysisService) AnalyzeSheets(sheets []models.SheetData, catalog models.CatalogSnapshot) {
	for _, sheet := range sheets {
		generation := s.session.RegisterSheet(sheet)
		s.queue.Enqueue(s.newSheetTask(sheet, generation, catalog, "", false))
	}
}

// ReanalyzeSheet re-runs analysis for one sheet against an explicitly chosen
// target table. Called after the reviewer changes a sheet's target; the
// generation token must come from that selection so late results from the
// previous target are discarded.
func (s *AnalysisService) ReanalyzeSheet(sheet models.SheetData, generation uint64, catalog models.CatalogSnapshot, targetTable string, isNewTable bool) {
	s.queue.Enqueue(s.newSheetTask(sheet, generation, catalog, targetTable, isNewTable))
}

func (s *AnalysisService) newSheetTask(sheet models.SheetData, generation uint64, catalog models.CatalogSnapshot, targetTable string, isNewTable bool) *sheetAnalysisTask {
	return &sheetAnalysisTask{
		BaseTask:    workqueue.NewBaseTask(fmt.Sprintf("analyze %s", sheet.SheetName), workqueue.RequestAnalyzeSheet, generation),
		service:     s,
		run:         s.analyzeSheet,
		sheet:       sheet,
		catalog:     catalog,
		targetTable: targetTable,
		isNewTable:  isNewTable,
	}
}

// sheetAnalysisTask analyzes one sheet: table ranking, target selection,
// and per-header column mappings.
type sheetAnalysisTask struct {
	workqueue.BaseTask

	service     *AnalysisService
	run         func(models.SheetData, models.CatalogSnapshot, string, bool) (models.SheetAnalysis, error)
	sheet       models.SheetData
	catalog     models.CatalogSnapshot
	targetTable string
	isNewTable  bool
}

func (t *sheetAnalysisTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	analysis, err := t.runRecovering()
	if err != nil {
		if markErr := t.service.session.MarkSheetFailed(t.sheet.SheetName, t.Generation(), err.Error()); markErr != nil && !errors.Is(markErr, apperrors.ErrStaleGeneration) {
			return markErr
		}
		return err
	}

	if err := t.service.session.ApplyAnalysis(t.sheet.SheetName, t.Generation(), analysis); err != nil {
		if errors.Is(err, apperrors.ErrStaleGeneration) {
			// A newer request superseded this one while it ran.
			return nil
		}
		return err
	}
	return nil
}

// runRecovering converts a panic during analysis into a plain error, so the
// failure lands on the sheet itself and the session still reaches review.
func (t *sheetAnalysisTask) runRecovering() (analysis models.SheetAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sheet analysis panicked: %v", r)
		}
	}()
	return t.run(t.sheet, t.catalog, t.targetTable, t.isNewTable)
}

// analyzeSheet builds the full analysis for one sheet. When targetTable is
// empty the best-ranked catalog table above the auto-select threshold is
// chosen; with no such table the sheet proposes a new one.
func (s *AnalysisService) analyzeSheet(sheet models.SheetData, catalog models.CatalogSnapshot, targetTable string, isNewTable bool) (models.SheetAnalysis, error) {
	// A sheet with no headers has nothing to map or propose: it analyzes to
	// an empty mapping set rather than an error.
	if len(sheet.Headers) == 0 {
		return models.SheetAnalysis{SheetData: sheet, Mappings: []models.ColumnMapping{}}, nil
	}

	norm := s.session.Normalizer()
	scorer := matching.NewScorer(norm)
	ranker := matching.NewRanker(norm, scorer, s.logger)
	proposer := NewProposalGenerator(norm, s.logger)

	analysis := models.SheetAnalysis{SheetData: sheet}
	analysis.TableSuggestions = ranker.RankTables(sheet.SheetName, sheet.Headers, sheet.SampleRows, catalog, s.topN)

	switch {
	case targetTable != "":
		analysis.SelectedTable = targetTable
		analysis.IsNewTable = isNewTable
	case len(analysis.TableSuggestions) > 0 && analysis.TableSuggestions[0].ConfidenceScore > models.AutoMapThreshold:
		analysis.SelectedTable = analysis.TableSuggestions[0].TableName
	default:
		analysis.SelectedTable = proposer.TableNameFor(sheet.SheetName)
		analysis.IsNewTable = true
	}

	if analysis.IsNewTable {
		analysis.Mappings = s.newTableMappings(sheet, analysis.SelectedTable, proposer)
		return analysis, nil
	}

	table, ok := catalog.Table(analysis.SelectedTable)
	if !ok {
		return models.SheetAnalysis{}, fmt.Errorf("target table %q: %w", analysis.SelectedTable, apperrors.ErrNotFound)
	}
	analysis.Mappings = s.existingTableMappings(sheet, table, ranker, proposer)
	return analysis, nil
}

// existingTableMappings maps headers onto a catalog table. Suggestions above
// the auto-map threshold are pre-accepted as suggested; weaker candidates
// leave the column pending with its suggestion list; headers with no viable
// candidate but a recognized type become create proposals.
func (s *AnalysisService) existingTableMappings(sheet models.SheetData, table models.CatalogTable, ranker *matching.Ranker, proposer *ProposalGenerator) []models.ColumnMapping {
	suggestions := ranker.RankColumns(sheet.Headers, sheet.SampleRows, table, s.topN)

	mappings := make([]models.ColumnMapping, 0, len(sheet.Headers))
	for _, header := range sheet.Headers {
		samples := columnValues(header, sheet.SampleRows)
		kind := matching.InferKind(samples, header)
		mapping := models.ColumnMapping{
			Header:           header,
			SampleValue:      firstSample(samples),
			Action:           models.ActionSkip,
			InferredType:     kind,
			SuggestedColumns: suggestions[header],
			ReviewStatus:     models.ReviewPending,
		}

		switch {
		case len(mapping.SuggestedColumns) > 0 && mapping.SuggestedColumns[0].ConfidenceScore > models.AutoMapThreshold:
			top := mapping.SuggestedColumns[0]
			mapping.Action = models.ActionMap
			mapping.MappedColumn = &top.ColumnName
			mapping.ReviewStatus = models.ReviewSuggested
		case len(mapping.SuggestedColumns) > 0:
			// Candidates exist but none is strong enough to pre-accept.
		case kind != models.DataKindUnknown:
			proposal := proposer.ColumnProposal(table, header, kind)
			mapping.Action = models.ActionCreate
			mapping.NewColumnProposal = &proposal
			mapping.ReviewStatus = models.ReviewSuggested
		}

		mappings = append(mappings, mapping)
	}
	return mappings
}

// newTableMappings proposes a create column for every header of a sheet
// destined for a table that does not exist yet. Headers whose schema-safe
// names collide share a single proposal.
func (s *AnalysisService) newTableMappings(sheet models.SheetData, tableName string, proposer *ProposalGenerator) []models.ColumnMapping {
	target := models.CatalogTable{TableName: tableName}
	byName := make(map[string]*models.NewColumnProposal, len(sheet.Headers))

	mappings := make([]models.ColumnMapping, 0, len(sheet.Headers))
	for _, header := range sheet.Headers {
		samples := columnValues(header, sheet.SampleRows)
		kind := matching.InferKind(samples, header)
		col := proposer.ColumnProposal(target, header, kind)
		proposal, ok := byName[col.ColumnName]
		if !ok {
			proposal = &col
			byName[col.ColumnName] = proposal
		}
		mappings = append(mappings, models.ColumnMapping{
			Header:            header,
			SampleValue:       firstSample(samples),
			Action:            models.ActionCreate,
			InferredType:      kind,
			NewColumnProposal: proposal,
			ReviewStatus:      models.ReviewSuggested,
		})
	}
	return mappings
}

// columnValues extracts one header's values from the sampled rows.
func columnValues(header string, rows []map[string]any) []any {
	values := make([]any, 0, len(rows))
	for _, row := range rows {
		if v, ok := row[header]; ok {
			values = append(values, v)
		}
	}
	return values
}

// firstSample returns the first non-nil sample value, for display alongside
// the mapping during review.
func firstSample(samples []any) any {
	for _, v := range samples {
		if v != nil {
			return v
		}
	}
	return nil
}
