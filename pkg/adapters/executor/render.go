// Package executor applies an approved commit plan to the target database:
// schema proposals first, then row inserts, reporting per-sheet outcomes.
package executor

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// allowedSQLTypes is the closed set of column types proposals may carry.
// Type strings are interpolated into DDL, so anything outside this set is
// rejected before rendering.
var allowedSQLTypes = map[string]bool{
	"TEXT":                     true,
	"NUMERIC":                  true,
	"BOOLEAN":                  true,
	"TIMESTAMP WITH TIME ZONE": true,
}

// RenderProposal renders one schema proposal as a DDL statement.
func RenderProposal(p models.SchemaProposal) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	switch p.Kind {
	case models.ProposalNewColumn:
		return RenderAddColumn(*p.NewColumn)
	case models.ProposalNewTable:
		return RenderCreateTable(*p.NewTable)
	default:
		return "", fmt.Errorf("unrenderable proposal kind %q", p.Kind)
	}
}

// RenderAddColumn renders an ALTER TABLE ADD COLUMN statement.
// IF NOT EXISTS keeps re-applied plans idempotent.
func RenderAddColumn(p models.NewColumnProposal) (string, error) {
	if !allowedSQLTypes[p.SQLType] {
		return "", fmt.Errorf("column %s.%s: unsupported sql type %q", p.TableName, p.ColumnName, p.SQLType)
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		pgx.Identifier{p.TableName}.Sanitize(),
		pgx.Identifier{p.ColumnName}.Sanitize(),
		p.SQLType,
	)
	if !p.IsNullable {
		stmt += " NOT NULL"
	}
	return stmt, nil
}

// RenderCreateTable renders a CREATE TABLE statement for a table proposal.
func RenderCreateTable(p models.NewTableProposal) (string, error) {
	if len(p.Columns) == 0 {
		return "", fmt.Errorf("table %s: proposal has no columns", p.TableName)
	}

	defs := make([]string, 0, len(p.Columns))
	for _, col := range p.Columns {
		if !allowedSQLTypes[col.SQLType] {
			return "", fmt.Errorf("column %s.%s: unsupported sql type %q", p.TableName, col.ColumnName, col.SQLType)
		}
		def := pgx.Identifier{col.ColumnName}.Sanitize() + " " + col.SQLType
		if !col.IsNullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgx.Identifier{p.TableName}.Sanitize(),
		strings.Join(defs, ", "),
	), nil
}

// RenderInsert renders a positional-parameter INSERT for one row shape.
func RenderInsert(tableName string, columns []string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("table %s: insert has no columns", tableName)
	}

	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pgx.Identifier{col}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{tableName}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(params, ", "),
	), nil
}
