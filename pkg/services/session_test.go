package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/apperrors"
	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

func mappedColumn(header, column string) models.ColumnMapping {
	col := column
	return models.ColumnMapping{
		Header:       header,
		Action:       models.ActionMap,
		MappedColumn: &col,
		InferredType: models.DataKindString,
		ReviewStatus: models.ReviewSuggested,
	}
}

func createColumn(header, table, column string) models.ColumnMapping {
	return models.ColumnMapping{
		Header:       header,
		Action:       models.ActionCreate,
		InferredType: models.DataKindString,
		NewColumnProposal: &models.NewColumnProposal{
			TableName:  table,
			ColumnName: column,
			SQLType:    "TEXT",
			IsNullable: true,
		},
		ReviewStatus: models.ReviewSuggested,
	}
}

func registerAnalyzed(t *testing.T, s *ImportSession, analysis models.SheetAnalysis) {
	t.Helper()
	gen := s.RegisterSheet(analysis.SheetData)
	require.NoError(t, s.ApplyAnalysis(analysis.SheetName, gen, analysis))
}

func loansAnalysis() models.SheetAnalysis {
	return models.SheetAnalysis{
		SheetData: models.SheetData{
			SheetName: "Loans",
			Headers:   []string{"Loan ID", "Amount"},
			SampleRows: []map[string]any{
				{"Loan ID": "L-001", "Amount": 1500.5},
				{"Loan ID": "L-002", "Amount": 980.0},
			},
			RowCount: 2,
		},
		SelectedTable: "loans",
		Mappings: []models.ColumnMapping{
			mappedColumn("Loan ID", "loan_id"),
			mappedColumn("Amount", "amount"),
		},
	}
}

func TestSession_ApproveAllThenRejectOne(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("loans.xlsx")
	registerAnalyzed(t, s, loansAnalysis())

	require.NoError(t, s.ApproveAllColumns("Loans"))
	status, err := s.SheetReviewStatus("Loans")
	require.NoError(t, err)
	assert.Equal(t, models.SheetReviewApproved, status)

	// Bulk approval is idempotent.
	require.NoError(t, s.ApproveAllColumns("Loans"))
	status, _ = s.SheetReviewStatus("Loans")
	assert.Equal(t, models.SheetReviewApproved, status)

	require.NoError(t, s.ReviewColumn("Loans", "Amount", models.ReviewRejected))
	status, _ = s.SheetReviewStatus("Loans")
	assert.Equal(t, models.SheetReviewPartiallyApproved, status)
}

func TestSession_ReviewColumnInvalidTransition(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("loans.xlsx")

	analysis := loansAnalysis()
	analysis.Mappings[0].ReviewStatus = models.ReviewPending
	registerAnalyzed(t, s, analysis)

	err := s.ReviewColumn("Loans", "Loan ID", models.ReviewApproved)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestSession_UnknownSheetAndColumn(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("loans.xlsx")
	registerAnalyzed(t, s, loansAnalysis())

	assert.ErrorIs(t, s.ApproveAllColumns("Ghost"), apperrors.ErrSheetNotFound)
	assert.ErrorIs(t, s.ReviewColumn("Loans", "Ghost", models.ReviewApproved), apperrors.ErrColumnNotFound)
}

func TestSession_StaleGenerationDiscarded(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("loans.xlsx")

	analysis := loansAnalysis()
	oldGen := s.RegisterSheet(analysis.SheetData)
	newGen := s.RegisterSheet(analysis.SheetData)
	require.Greater(t, newGen, oldGen)

	err := s.ApplyAnalysis("Loans", oldGen, analysis)
	assert.ErrorIs(t, err, apperrors.ErrStaleGeneration)

	require.NoError(t, s.ApplyAnalysis("Loans", newGen, analysis))
	assert.Equal(t, models.BatchReview, s.Status())
}

func TestSession_SelectTargetTableResetsOnlyThatSheet(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("multi.xlsx")

	registerAnalyzed(t, s, loansAnalysis())

	other := models.SheetAnalysis{
		SheetData: models.SheetData{
			SheetName: "Payments",
			Headers:   []string{"Payment ID"},
		},
		SelectedTable: "payments",
		Mappings:      []models.ColumnMapping{mappedColumn("Payment ID", "payment_id")},
	}
	registerAnalyzed(t, s, other)
	require.NoError(t, s.ApproveAllColumns("Payments"))

	gen, err := s.SelectTargetTable("Loans", "loan_archive", false)
	require.NoError(t, err)
	assert.Equal(t, models.BatchAnalyzing, s.Status())

	snap := s.Snapshot()
	for _, sheet := range snap.Sheets {
		switch sheet.SheetName {
		case "Loans":
			assert.Equal(t, "loan_archive", sheet.SelectedTable)
			for _, m := range sheet.Mappings {
				assert.Equal(t, models.ActionSkip, m.Action)
				assert.Equal(t, models.ReviewPending, m.ReviewStatus)
			}
		case "Payments":
			assert.Equal(t, models.SheetReviewApproved, sheet.ReviewStatus)
		}
	}

	// Re-analysis under the new generation lands normally.
	reanalyzed := loansAnalysis()
	reanalyzed.SelectedTable = "loan_archive"
	require.NoError(t, s.ApplyAnalysis("Loans", gen, reanalyzed))
	assert.Equal(t, models.BatchReview, s.Status())
}

func TestSession_ModifyMapping(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("loans.xlsx")
	registerAnalyzed(t, s, loansAnalysis())

	col := "amount_usd"
	require.NoError(t, s.ModifyMapping("Loans", "Amount", models.ActionMap, &col, nil))

	snap := s.Snapshot()
	m := snap.Sheets[0].Mappings[1]
	assert.Equal(t, models.ReviewModified, m.ReviewStatus)
	assert.Equal(t, "amount_usd", *m.MappedColumn)

	// A map action without a target column is structurally invalid.
	err := s.ModifyMapping("Loans", "Amount", models.ActionMap, nil, nil)
	assert.Error(t, err)
}

func TestSession_ProposalsDedupAcrossSheets(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("multi.xlsx")

	first := models.SheetAnalysis{
		SheetData:     models.SheetData{SheetName: "Q1", Headers: []string{"Status"}},
		SelectedTable: "loans",
		Mappings:      []models.ColumnMapping{createColumn("Status", "loans", "status")},
	}
	second := models.SheetAnalysis{
		SheetData:     models.SheetData{SheetName: "Q2", Headers: []string{"Status"}},
		SelectedTable: "loans",
		Mappings:      []models.ColumnMapping{createColumn("Status", "loans", "status")},
	}
	registerAnalyzed(t, s, first)
	registerAnalyzed(t, s, second)

	proposals := s.Proposals()
	require.Len(t, proposals, 1)
	assert.Equal(t, "loans.status", proposals[0].Key())
}

func TestSession_ProposalsSkipRejected(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("loans.xlsx")

	analysis := models.SheetAnalysis{
		SheetData:     models.SheetData{SheetName: "Loans", Headers: []string{"Status"}},
		SelectedTable: "loans",
		Mappings:      []models.ColumnMapping{createColumn("Status", "loans", "status")},
	}
	registerAnalyzed(t, s, analysis)
	require.Len(t, s.Proposals(), 1)

	require.NoError(t, s.RejectAllColumns("Loans"))
	assert.Empty(t, s.Proposals())
}

func TestSession_ValidateCommit(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("loans.xlsx")

	analysis := loansAnalysis()
	registerAnalyzed(t, s, analysis)

	// Still suggested, nothing approved: offending columns are named.
	err := s.ValidateCommit()
	require.ErrorIs(t, err, apperrors.ErrPendingColumns)
	assert.Contains(t, err.Error(), "Loans")
	assert.Contains(t, err.Error(), "Loan ID")

	require.NoError(t, s.ApproveAllColumns("Loans"))
	require.NoError(t, s.ValidateCommit())

	require.NoError(t, s.RejectAllColumns("Loans"))
	assert.ErrorIs(t, s.ValidateCommit(), apperrors.ErrNoApprovedSheets)
}

func TestSession_CommitPlanAndResults(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("multi.xlsx")

	registerAnalyzed(t, s, loansAnalysis())
	require.NoError(t, s.ApproveAllColumns("Loans"))

	skipped := models.SheetAnalysis{
		SheetData:     models.SheetData{SheetName: "Notes", Headers: []string{"Note"}},
		SelectedTable: "notes",
		Mappings:      []models.ColumnMapping{mappedColumn("Note", "note")},
	}
	registerAnalyzed(t, s, skipped)
	require.NoError(t, s.RejectAllColumns("Notes"))

	plan, err := s.BuildCommitPlan()
	require.NoError(t, err)
	require.Len(t, plan.Sheets, 1)
	assert.Equal(t, models.BatchCommitting, s.Status())

	sheet := plan.Sheets[0]
	assert.Equal(t, "loans", sheet.TargetTable)
	assert.Equal(t, []string{"loan_id", "amount"}, sheet.ColumnOrder)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "L-001", sheet.Rows[0]["loan_id"])
	assert.Equal(t, 1500.5, sheet.Rows[0]["amount"])

	// A second commit while one is running is refused.
	_, err = s.BuildCommitPlan()
	assert.ErrorIs(t, err, apperrors.ErrCommitInProgress)

	require.NoError(t, s.RecordCommitResult("Loans", true, ""))
	assert.Equal(t, models.BatchComplete, s.Status())
}

func TestSession_CommitFailureEndsInError(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("loans.xlsx")
	registerAnalyzed(t, s, loansAnalysis())
	require.NoError(t, s.ApproveAllColumns("Loans"))

	_, err := s.BuildCommitPlan()
	require.NoError(t, err)

	require.NoError(t, s.RecordCommitResult("Loans", false, "insert failed"))
	assert.Equal(t, models.BatchError, s.Status())

	snap := s.Snapshot()
	require.NotNil(t, snap.CommitProgress)
	assert.Equal(t, []string{"Loans"}, snap.CommitProgress.FailedSheets)
}

func TestSession_FailedSheetDoesNotBlockSiblings(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("multi.xlsx")

	registerAnalyzed(t, s, loansAnalysis())

	broken := models.SheetData{SheetName: "Broken", Headers: []string{"X"}}
	gen := s.RegisterSheet(broken)
	require.NoError(t, s.MarkSheetFailed("Broken", gen, "unreadable sheet"))

	assert.Equal(t, models.BatchReview, s.Status())

	require.NoError(t, s.ApproveAllColumns("Loans"))
	require.NoError(t, s.ValidateCommit())
}

func TestSession_ResetReturnsToIdle(t *testing.T) {
	s := NewImportSession(zap.NewNop())
	s.BeginFile("loans.xlsx")
	registerAnalyzed(t, s, loansAnalysis())

	s.Reset()
	assert.Equal(t, models.BatchIdle, s.Status())
	assert.Empty(t, s.Snapshot().Sheets)
}
