package matching

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// Column ranking weights per the scoring model: name similarity dominates,
// type compatibility and content-pattern agreement split the rest.
const (
	weightName    = 0.4
	weightType    = 0.3
	weightContent = 0.3
)

// columnNameFloor is the minimum name similarity for a column to be
// suggested at all. Without it, type and content agreement alone (0.6 of the
// weight) would let any text header auto-map onto any text column.
const columnNameFloor = 0.3

// Ranker produces ranked table and column suggestions for a sheet against a
// catalog snapshot. It owns no state beyond the session's scorer and
// normalizer, so one ranker serves all sheets of a session.
type Ranker struct {
	norm   *Normalizer
	scorer *Scorer
	logger *zap.Logger
}

// NewRanker creates a ranker bound to the session's normalizer and scorer.
func NewRanker(norm *Normalizer, scorer *Scorer, logger *zap.Logger) *Ranker {
	return &Ranker{
		norm:   norm,
		scorer: scorer,
		logger: logger.Named("ranker"),
	}
}

// RankTables scores every catalog table against the sheet and returns the
// top N suggestions above the minimum score, best first. The three signals
// (sheet-name similarity, header type compatibility, content-pattern
// agreement) are combined with equal weight.
func (r *Ranker) RankTables(sheetName string, headers []string, sampleRows []map[string]any, catalog models.CatalogSnapshot, topN int) []models.TableSuggestion {
	if catalog.IsEmpty() {
		return nil
	}

	kinds := r.inferHeaderKinds(headers, sampleRows)

	type scored struct {
		candidate  Candidate
		suggestion models.TableSuggestion
	}
	candidates := make([]scored, 0, len(catalog.Tables))

	for name, table := range catalog.Tables {
		nameScore, matchType := r.scorer.Match(sheetName, name)
		typeScore := r.typeCoverageScore(headers, kinds, table)
		contentScore := r.contentAgreementScore(headers, kinds, table)

		score := (nameScore + typeScore + contentScore) / 3.0
		if score <= models.MinSuggestionScore {
			continue
		}

		candidates = append(candidates, scored{
			candidate: Candidate{Name: name, Score: score, MatchType: matchType},
			suggestion: models.TableSuggestion{
				TableName:       name,
				ConfidenceScore: score,
				ConfidenceLevel: models.ConfidenceLevelForScore(score),
				MatchType:       matchType,
			},
		})
	}

	slices.SortFunc(candidates, func(a, b scored) int {
		return CompareCandidates(a.candidate, b.candidate)
	})

	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}

	suggestions := make([]models.TableSuggestion, len(candidates))
	for i, c := range candidates {
		suggestions[i] = c.suggestion
	}

	r.logger.Debug("ranked tables",
		zap.String("sheet", sheetName),
		zap.Int("catalog_tables", len(catalog.Tables)),
		zap.Int("suggestions", len(suggestions)))

	return suggestions
}

// RankColumns scores every column of the target table against every header
// and returns per-header suggestion lists, best first. A sheet with zero
// headers yields an empty map, not an error. Headers with no usable samples
// keep an unknown inferred kind and still rank on name alone.
func (r *Ranker) RankColumns(headers []string, sampleRows []map[string]any, table models.CatalogTable, topN int) map[string][]models.ColumnSuggestion {
	result := make(map[string][]models.ColumnSuggestion, len(headers))
	if len(headers) == 0 {
		return result
	}

	kinds := r.inferHeaderKinds(headers, sampleRows)

	for _, header := range headers {
		kind := kinds[header]
		samples := columnSamples(header, sampleRows)

		type scored struct {
			candidate  Candidate
			suggestion models.ColumnSuggestion
		}
		candidates := make([]scored, 0, len(table.Columns))

		for _, col := range table.Columns {
			nameScore, matchType := r.scorer.Match(header, col.ColumnName)
			if nameScore < columnNameFloor {
				continue
			}
			compatible := KindCompatibleWithSQL(kind, col.DataType)

			typeScore := 0.0
			if compatible {
				typeScore = 1.0
			}
			contentScore := contentFitScore(samples, col.DataType)

			score := weightName*nameScore + weightType*typeScore + weightContent*contentScore
			if score <= models.MinSuggestionScore {
				continue
			}

			candidates = append(candidates, scored{
				candidate: Candidate{Name: col.ColumnName, Score: score, MatchType: matchType},
				suggestion: models.ColumnSuggestion{
					ColumnName:       col.ColumnName,
					ConfidenceScore:  score,
					ConfidenceLevel:  models.ConfidenceLevelForScore(score),
					IsTypeCompatible: compatible,
				},
			})
		}

		slices.SortFunc(candidates, func(a, b scored) int {
			return CompareCandidates(a.candidate, b.candidate)
		})
		if topN > 0 && len(candidates) > topN {
			candidates = candidates[:topN]
		}

		suggestions := make([]models.ColumnSuggestion, len(candidates))
		for i, c := range candidates {
			suggestions[i] = c.suggestion
		}
		result[header] = suggestions
	}

	return result
}

// inferHeaderKinds infers the data kind of every header from the sample rows.
func (r *Ranker) inferHeaderKinds(headers []string, sampleRows []map[string]any) map[string]models.DataKind {
	kinds := make(map[string]models.DataKind, len(headers))
	for _, header := range headers {
		kinds[header] = InferKind(columnSamples(header, sampleRows), header)
	}
	return kinds
}

// typeCoverageScore is the fraction of headers whose inferred kind is
// compatible with at least one column of the table. Unknown kinds count as
// covered so empty columns don't drag a good table down.
func (r *Ranker) typeCoverageScore(headers []string, kinds map[string]models.DataKind, table models.CatalogTable) float64 {
	if len(headers) == 0 || len(table.Columns) == 0 {
		return 0
	}

	covered := 0
	for _, header := range headers {
		kind := kinds[header]
		if kind == models.DataKindUnknown {
			covered++
			continue
		}
		for _, col := range table.Columns {
			if KindCompatibleWithSQL(kind, col.DataType) {
				covered++
				break
			}
		}
	}
	return float64(covered) / float64(len(headers))
}

// contentAgreementScore is the fraction of headers whose inferred kind agrees
// with the declared type of their best name-matching column in the table.
// Headers with no name match above the floor contribute zero.
func (r *Ranker) contentAgreementScore(headers []string, kinds map[string]models.DataKind, table models.CatalogTable) float64 {
	if len(headers) == 0 || len(table.Columns) == 0 {
		return 0
	}

	agreeing := 0
	for _, header := range headers {
		best := ""
		bestScore := 0.0
		for _, col := range table.Columns {
			if score := r.scorer.Score(header, col.ColumnName); score > bestScore {
				best, bestScore = col.DataType, score
			}
		}
		if bestScore <= models.MinSuggestionScore {
			continue
		}
		kind := kinds[header]
		if kind == models.DataKindUnknown || KindCompatibleWithSQL(kind, best) {
			agreeing++
		}
	}
	return float64(agreeing) / float64(len(headers))
}

// contentFitScore is the fraction of a header's non-null samples that
// individually fit the candidate column's SQL type family. With no usable
// samples the score is neutral (0.5) so name similarity decides.
func contentFitScore(samples []any, sqlType string) float64 {
	family := sqlFamily(sqlType)
	usable, fitting := 0, 0
	for _, sample := range samples {
		text, ok := sampleText(sample)
		if !ok {
			continue
		}
		usable++
		if valueFitsFamily(text, family) {
			fitting++
		}
	}
	if usable == 0 {
		return 0.5
	}
	return float64(fitting) / float64(usable)
}

// valueFitsFamily checks one sample value against a SQL type family.
func valueFitsFamily(text string, family models.DataKind) bool {
	switch family {
	case models.DataKindNumber:
		_, ok := parseNumeric(text)
		return ok
	case models.DataKindBoolean:
		return booleanTokens[strings.ToLower(text)]
	case models.DataKindDate:
		if isDateString(text) {
			return true
		}
		num, ok := parseNumeric(text)
		return ok && isSerialDate(num)
	default:
		// Text columns accept anything.
		return true
	}
}

// columnSamples extracts one header's values from the sample rows.
func columnSamples(header string, sampleRows []map[string]any) []any {
	samples := make([]any, 0, len(sampleRows))
	for _, row := range sampleRows {
		samples = append(samples, row[header])
	}
	return samples
}

// ============================================================================
// SQL Type Compatibility
// ============================================================================

// sqlNumericTypes, sqlBooleanTypes, sqlDateTypes are the fixed compatibility
// families. Matching is by substring on the lowercased declared type so
// dialect spellings (character varying, timestamp without time zone, float8)
// land in the right family without an exhaustive list.
var (
	sqlNumericTypes = []string{"int", "serial", "numeric", "decimal", "real", "double", "float", "money", "number"}
	sqlBooleanTypes = []string{"bool", "bit"}
	sqlDateTypes    = []string{"date", "time", "timestamp"}
)

// sqlFamily maps a declared SQL type to the data kind family it stores.
func sqlFamily(sqlType string) models.DataKind {
	lower := strings.ToLower(sqlType)
	for _, tok := range sqlBooleanTypes {
		if strings.Contains(lower, tok) {
			return models.DataKindBoolean
		}
	}
	for _, tok := range sqlDateTypes {
		if strings.Contains(lower, tok) {
			return models.DataKindDate
		}
	}
	for _, tok := range sqlNumericTypes {
		if strings.Contains(lower, tok) {
			return models.DataKindNumber
		}
	}
	return models.DataKindString
}

// KindCompatibleWithSQL reports whether an inferred kind can be stored in a
// column of the declared SQL type. Unknown is compatible with everything
// (name-only matching stays possible); string fits any text-family column;
// numbers fit the whole SQL numeric family.
func KindCompatibleWithSQL(kind models.DataKind, sqlType string) bool {
	family := sqlFamily(sqlType)
	switch kind {
	case models.DataKindUnknown:
		return true
	case models.DataKindString:
		return family == models.DataKindString
	case models.DataKindNumber:
		return family == models.DataKindNumber || family == models.DataKindString
	case models.DataKindBoolean:
		return family == models.DataKindBoolean || family == models.DataKindNumber || family == models.DataKindString
	case models.DataKindDate:
		return family == models.DataKindDate || family == models.DataKindString
	default:
		return false
	}
}
