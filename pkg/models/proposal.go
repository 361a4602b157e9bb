package models

import "fmt"

// ============================================================================
// Schema Proposals
// ============================================================================

// ProposalKind discriminates the SchemaProposal variants.
type ProposalKind string

const (
	ProposalNewColumn ProposalKind = "new_column"
	ProposalNewTable  ProposalKind = "new_table"
)

// NewColumnProposal suggests adding a column to an existing (or proposed)
// table. Columns are nullable by default so inserts of partially mapped rows
// cannot fail on the new column.
type NewColumnProposal struct {
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
	SQLType    string `json:"sql_type"`
	IsNullable bool   `json:"is_nullable"`
}

// NewTableProposal suggests creating a table with the given columns.
type NewTableProposal struct {
	TableName string              `json:"table_name"`
	Columns   []NewColumnProposal `json:"columns"`
}

// SchemaProposal is a tagged union of NewColumnProposal and NewTableProposal.
// Exactly one of NewColumn / NewTable is set, matching Kind.
type SchemaProposal struct {
	Kind      ProposalKind       `json:"kind"`
	NewColumn *NewColumnProposal `json:"new_column,omitempty"`
	NewTable  *NewTableProposal  `json:"new_table,omitempty"`
}

// NewColumnSchemaProposal wraps a column proposal in the union.
func NewColumnSchemaProposal(p NewColumnProposal) SchemaProposal {
	return SchemaProposal{Kind: ProposalNewColumn, NewColumn: &p}
}

// NewTableSchemaProposal wraps a table proposal in the union.
func NewTableSchemaProposal(p NewTableProposal) SchemaProposal {
	return SchemaProposal{Kind: ProposalNewTable, NewTable: &p}
}

// Key is the process-wide deduplication key: "table.column" for column
// proposals, the bare table name for table proposals.
func (p SchemaProposal) Key() string {
	switch p.Kind {
	case ProposalNewColumn:
		return p.NewColumn.TableName + "." + p.NewColumn.ColumnName
	case ProposalNewTable:
		return p.NewTable.TableName
	default:
		return ""
	}
}

// Validate checks that exactly the variant named by Kind is populated.
func (p SchemaProposal) Validate() error {
	switch p.Kind {
	case ProposalNewColumn:
		if p.NewColumn == nil || p.NewTable != nil {
			return fmt.Errorf("proposal kind %q: new_column variant must be set exclusively", p.Kind)
		}
	case ProposalNewTable:
		if p.NewTable == nil || p.NewColumn != nil {
			return fmt.Errorf("proposal kind %q: new_table variant must be set exclusively", p.Kind)
		}
	default:
		return fmt.Errorf("invalid proposal kind %q", p.Kind)
	}
	return nil
}

// ============================================================================
// Kind → SQL Type Mapping
// ============================================================================

var sqlTypeForKind = map[DataKind]string{
	DataKindString:  "TEXT",
	DataKindNumber:  "NUMERIC",
	DataKindBoolean: "BOOLEAN",
	DataKindDate:    "TIMESTAMP WITH TIME ZONE",
}

// SQLTypeForKind maps an inferred kind to the SQL type used in proposals.
// Unknown kinds fall back to TEXT.
func SQLTypeForKind(kind DataKind) string {
	if t, ok := sqlTypeForKind[kind]; ok {
		return t
	}
	return "TEXT"
}
