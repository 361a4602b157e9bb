// Package services implements the import engine's behavior on top of the
// matching primitives: schema proposal generation, the per-session mapping
// workflow state machine, and asynchronous sheet analysis over the work
// queue.
package services

import (
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/matching"
	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// ProposalGenerator turns unmatched headers and unmatched sheets into
// structured schema proposals. One generator serves a whole session and
// shares the session's normalizer cache.
type ProposalGenerator struct {
	norm   *matching.Normalizer
	logger *zap.Logger
}

// NewProposalGenerator creates a generator bound to the session normalizer.
func NewProposalGenerator(norm *matching.Normalizer, logger *zap.Logger) *ProposalGenerator {
	return &ProposalGenerator{
		norm:   norm,
		logger: logger.Named("proposals"),
	}
}

// ColumnProposal builds a NewColumnProposal for a header that resolved to
// action=create. The column name is the schema-safe form of the header,
// except that a digit-led name already present in the target table is kept
// verbatim. The SQL type follows the fixed kind→SQL mapping; columns are
// nullable by default.
func (g *ProposalGenerator) ColumnProposal(table models.CatalogTable, header string, kind models.DataKind) models.NewColumnProposal {
	name := g.norm.DBKeyFor(header, table.HasColumn)
	return models.NewColumnProposal{
		TableName:  table.TableName,
		ColumnName: name,
		SQLType:    models.SQLTypeForKind(kind),
		IsNullable: true,
	}
}

// TableProposal builds a NewTableProposal skeleton for a sheet that matched
// no catalog table. Every header becomes a column proposal regardless of
// confidence, since there is nothing to match against. The table name is the
// pluralized schema-safe sheet name.
func (g *ProposalGenerator) TableProposal(sheetName string, headers []string, kinds map[string]models.DataKind) models.NewTableProposal {
	tableName := g.TableNameFor(sheetName)
	target := models.CatalogTable{TableName: tableName}

	columns := make([]models.NewColumnProposal, 0, len(headers))
	seen := make(map[string]bool, len(headers))
	for _, header := range headers {
		col := g.ColumnProposal(target, header, kinds[header])
		if seen[col.ColumnName] {
			continue
		}
		seen[col.ColumnName] = true
		columns = append(columns, col)
	}

	g.logger.Debug("built table proposal",
		zap.String("sheet", sheetName),
		zap.String("table", tableName),
		zap.Int("columns", len(columns)))

	return models.NewTableProposal{TableName: tableName, Columns: columns}
}

// TableNameFor derives the proposed table name for a sheet: schema-safe and
// pluralized, so a "Servicer" sheet proposes a "servicers" table.
func (g *ProposalGenerator) TableNameFor(sheetName string) string {
	name := g.norm.DBKey(sheetName)
	if name == "" {
		return "imported_sheet"
	}
	// Pluralize the trailing word only; "loan_detail" → "loan_details".
	if idx := strings.LastIndex(name, "_"); idx >= 0 {
		return name[:idx+1] + inflection.Plural(name[idx+1:])
	}
	return inflection.Plural(name)
}

// ============================================================================
// Session-Wide Deduplication
// ============================================================================

// ProposalSet deduplicates schema proposals across all sheets of a session
// by their (table, column) or table key.
type ProposalSet struct {
	seen      map[string]bool
	proposals []models.SchemaProposal
}

// NewProposalSet creates an empty proposal set.
func NewProposalSet() *ProposalSet {
	return &ProposalSet{seen: make(map[string]bool)}
}

// Add inserts a proposal unless one with the same key was already seen.
// Returns true if the proposal was added.
func (s *ProposalSet) Add(p models.SchemaProposal) bool {
	key := p.Key()
	if key == "" || s.seen[key] {
		return false
	}
	s.seen[key] = true
	s.proposals = append(s.proposals, p)
	return true
}

// Proposals returns the deduplicated proposals in insertion order.
func (s *ProposalSet) Proposals() []models.SchemaProposal {
	return s.proposals
}
