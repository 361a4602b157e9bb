package matching

import (
	"testing"

	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

func newTestRanker() *Ranker {
	norm := NewNormalizer()
	return NewRanker(norm, NewScorer(norm), zap.NewNop())
}

func loansCatalog() models.CatalogSnapshot {
	return models.CatalogSnapshot{
		Tables: map[string]models.CatalogTable{
			"loans": {
				TableName: "loans",
				Columns: []models.CatalogColumn{
					{ColumnName: "loan_id", DataType: "varchar", IsNullable: false},
					{ColumnName: "amount", DataType: "numeric", IsNullable: true},
				},
			},
			"servicers": {
				TableName: "servicers",
				Columns: []models.CatalogColumn{
					{ColumnName: "servicer_id", DataType: "varchar"},
					{ColumnName: "name", DataType: "text"},
				},
			},
		},
	}
}

func loansSampleRows() []map[string]any {
	return []map[string]any{
		{"Loan ID": "L-0001", "Amount": "$1,200.50", "Status": "Active"},
		{"Loan ID": "L-0002", "Amount": "$45", "Status": "Delinquent"},
	}
}

func TestRanker_RankTables_LoansSheet(t *testing.T) {
	r := newTestRanker()
	headers := []string{"Loan ID", "Amount", "Status"}

	suggestions := r.RankTables("Loans", headers, loansSampleRows(), loansCatalog(), 5)
	if len(suggestions) == 0 {
		t.Fatal("expected at least one table suggestion")
	}

	top := suggestions[0]
	if top.TableName != "loans" {
		t.Fatalf("top suggestion = %q, want loans", top.TableName)
	}
	if top.ConfidenceLevel != models.ConfidenceHigh {
		t.Errorf("confidence level = %q, want high (score %v)", top.ConfidenceLevel, top.ConfidenceScore)
	}
	if top.MatchType != models.MatchTypeExact {
		t.Errorf("match type = %q, want exact", top.MatchType)
	}
}

func TestRanker_RankTables_EmptyCatalog(t *testing.T) {
	r := newTestRanker()

	got := r.RankTables("Loans", []string{"A"}, nil, models.CatalogSnapshot{}, 5)
	if len(got) != 0 {
		t.Errorf("empty catalog should yield no suggestions, got %d", len(got))
	}
}

func TestRanker_RankColumns_AutoMapAndCreate(t *testing.T) {
	r := newTestRanker()
	table := loansCatalog().Tables["loans"]
	headers := []string{"Loan ID", "Amount", "Status"}

	byHeader := r.RankColumns(headers, loansSampleRows(), table, 3)

	loanID := byHeader["Loan ID"]
	if len(loanID) == 0 || loanID[0].ColumnName != "loan_id" {
		t.Fatalf("Loan ID suggestions = %+v, want loan_id first", loanID)
	}
	if loanID[0].ConfidenceScore <= models.AutoMapThreshold {
		t.Errorf("Loan ID top score = %v, want above auto-map threshold", loanID[0].ConfidenceScore)
	}
	if !loanID[0].IsTypeCompatible {
		t.Error("string samples should be compatible with varchar")
	}

	amount := byHeader["Amount"]
	if len(amount) == 0 || amount[0].ColumnName != "amount" {
		t.Fatalf("Amount suggestions = %+v, want amount first", amount)
	}
	if amount[0].ConfidenceScore <= models.AutoMapThreshold {
		t.Errorf("Amount top score = %v, want above auto-map threshold", amount[0].ConfidenceScore)
	}

	// No status column exists; nothing similar enough to suggest, so the
	// header stays unmapped pending a create/skip decision.
	if status := byHeader["Status"]; len(status) != 0 {
		t.Errorf("Status suggestions = %+v, want none", status)
	}
}

func TestRanker_RankColumns_ZeroHeaders(t *testing.T) {
	r := newTestRanker()
	table := loansCatalog().Tables["loans"]

	got := r.RankColumns(nil, nil, table, 3)
	if len(got) != 0 {
		t.Errorf("zero headers should yield an empty mapping set, got %d entries", len(got))
	}
}

func TestRanker_RankColumns_NameOnlyWhenSamplesEmpty(t *testing.T) {
	r := newTestRanker()
	table := loansCatalog().Tables["loans"]

	rows := []map[string]any{{"Amount": ""}, {"Amount": nil}}
	byHeader := r.RankColumns([]string{"Amount"}, rows, table, 3)

	amount := byHeader["Amount"]
	if len(amount) == 0 || amount[0].ColumnName != "amount" {
		t.Fatalf("Amount suggestions = %+v, want amount first on name alone", amount)
	}
	// Unknown kind keeps the column type-compatible rather than penalized.
	if !amount[0].IsTypeCompatible {
		t.Error("unknown inferred kind must stay type-compatible")
	}
}

func TestKindCompatibleWithSQL(t *testing.T) {
	tests := []struct {
		kind    models.DataKind
		sqlType string
		want    bool
	}{
		{models.DataKindNumber, "numeric", true},
		{models.DataKindNumber, "double precision", true},
		{models.DataKindNumber, "bigint", true},
		{models.DataKindNumber, "boolean", false},
		{models.DataKindBoolean, "boolean", true},
		{models.DataKindBoolean, "bit", true},
		{models.DataKindDate, "timestamp with time zone", true},
		{models.DataKindDate, "numeric", false},
		{models.DataKindString, "text", true},
		{models.DataKindString, "character varying", true},
		{models.DataKindString, "numeric", false},
		{models.DataKindUnknown, "numeric", true},
		{models.DataKindUnknown, "text", true},
	}
	for _, tt := range tests {
		if got := KindCompatibleWithSQL(tt.kind, tt.sqlType); got != tt.want {
			t.Errorf("KindCompatibleWithSQL(%q, %q) = %v, want %v", tt.kind, tt.sqlType, got, tt.want)
		}
	}
}
