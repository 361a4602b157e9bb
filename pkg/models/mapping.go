package models

import (
	"fmt"
	"slices"
)

// ============================================================================
// Match Types
// ============================================================================

// MatchType classifies how a suggestion matched its candidate name.
type MatchType string

const (
	MatchTypeExact   MatchType = "exact"
	MatchTypePartial MatchType = "partial"
	MatchTypeFuzzy   MatchType = "fuzzy"
	MatchTypeNone    MatchType = "none"
)

// ValidMatchTypes contains all valid match type values.
var ValidMatchTypes = []MatchType{
	MatchTypeExact,
	MatchTypePartial,
	MatchTypeFuzzy,
	MatchTypeNone,
}

// IsValidMatchType checks if the given match type is valid.
func IsValidMatchType(m MatchType) bool {
	return slices.Contains(ValidMatchTypes, m)
}

// Rank orders match types for tie-breaking: exact beats partial beats fuzzy.
func (m MatchType) Rank() int {
	switch m {
	case MatchTypeExact:
		return 0
	case MatchTypePartial:
		return 1
	case MatchTypeFuzzy:
		return 2
	default:
		return 3
	}
}

// ============================================================================
// Confidence Tiers
// ============================================================================

// ConfidenceLevel buckets a numeric match score for human review.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

const (
	// HighConfidenceThreshold is the score above which a suggestion is High.
	HighConfidenceThreshold = 0.8
	// MediumConfidenceThreshold is the score above which a suggestion is Medium.
	MediumConfidenceThreshold = 0.5
	// MinSuggestionScore is the floor below which candidates are discarded.
	MinSuggestionScore = 0.1
	// AutoMapThreshold is the score a top column suggestion must exceed to be
	// auto-selected as the mapping.
	AutoMapThreshold = 0.6
)

// ConfidenceLevelForScore buckets a [0,1] score into a tier.
func ConfidenceLevelForScore(score float64) ConfidenceLevel {
	switch {
	case score > HighConfidenceThreshold:
		return ConfidenceHigh
	case score > MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ============================================================================
// Inferred Data Kinds
// ============================================================================

// DataKind is the semantic type inferred from a column's sample values.
// DataKindUnknown means no non-null samples were available; callers must
// never collapse unknown into string.
type DataKind string

const (
	DataKindUnknown DataKind = "unknown"
	DataKindString  DataKind = "string"
	DataKindNumber  DataKind = "number"
	DataKindBoolean DataKind = "boolean"
	DataKindDate    DataKind = "date"
)

// ============================================================================
// Suggestions
// ============================================================================

// TableSuggestion is one ranked candidate table for a sheet.
// Immutable once produced for a given (sheet, catalog) input.
type TableSuggestion struct {
	TableName          string          `json:"table_name"`
	ConfidenceScore    float64         `json:"confidence_score"`
	ConfidenceLevel    ConfidenceLevel `json:"confidence_level"`
	MatchType          MatchType       `json:"match_type"`
	IsNewTableProposal bool            `json:"is_new_table_proposal,omitempty"`
}

// ColumnSuggestion is one ranked candidate column for a header.
type ColumnSuggestion struct {
	ColumnName       string          `json:"column_name"`
	ConfidenceScore  float64         `json:"confidence_score"`
	ConfidenceLevel  ConfidenceLevel `json:"confidence_level"`
	IsTypeCompatible bool            `json:"is_type_compatible"`
}

// ============================================================================
// Column Mappings
// ============================================================================

// MappingAction is the resolution chosen for one header.
type MappingAction string

const (
	ActionMap    MappingAction = "map"
	ActionSkip   MappingAction = "skip"
	ActionCreate MappingAction = "create"
)

// ValidMappingActions contains all valid action values.
var ValidMappingActions = []MappingAction{ActionMap, ActionSkip, ActionCreate}

// IsValidMappingAction checks if the given action is valid.
func IsValidMappingAction(a MappingAction) bool {
	return slices.Contains(ValidMappingActions, a)
}

// ReviewStatus is the per-column review state.
// State machine: pending → suggested → {approved | rejected | modified};
// modified is reachable from any state via manual edit and requires a
// subsequent explicit approve or reject.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewSuggested ReviewStatus = "suggested"
	ReviewApproved  ReviewStatus = "approved"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewModified  ReviewStatus = "modified"
)

// ValidReviewStatuses contains all valid review status values.
var ValidReviewStatuses = []ReviewStatus{
	ReviewPending,
	ReviewSuggested,
	ReviewApproved,
	ReviewRejected,
	ReviewModified,
}

// IsValidReviewStatus checks if the given status is valid.
func IsValidReviewStatus(s ReviewStatus) bool {
	return slices.Contains(ValidReviewStatuses, s)
}

// CanTransitionTo returns true if moving from this status to target is valid.
// Modified is reachable from anywhere; approved and rejected require the
// column to have been suggested or manually modified first.
func (s ReviewStatus) CanTransitionTo(target ReviewStatus) bool {
	if target == ReviewModified {
		return true
	}
	switch s {
	case ReviewPending:
		return target == ReviewSuggested
	case ReviewSuggested, ReviewModified:
		return target == ReviewApproved || target == ReviewRejected
	case ReviewApproved, ReviewRejected:
		// Re-review is allowed until commit.
		return target == ReviewApproved || target == ReviewRejected
	default:
		return false
	}
}

// ColumnMapping records the mapping decision for one sheet header.
type ColumnMapping struct {
	Header            string             `json:"header"`
	SampleValue       any                `json:"sample_value,omitempty"`
	MappedColumn      *string            `json:"mapped_column,omitempty"`
	SuggestedColumns  []ColumnSuggestion `json:"suggested_columns,omitempty"`
	InferredType      DataKind           `json:"inferred_type"`
	Action            MappingAction      `json:"action"`
	NewColumnProposal *NewColumnProposal `json:"new_column_proposal,omitempty"`
	ReviewStatus      ReviewStatus       `json:"review_status"`
}

// Validate enforces the structural invariants of a mapping:
// action=map requires a mapped column, action=create requires a proposal.
func (m ColumnMapping) Validate() error {
	if !IsValidMappingAction(m.Action) {
		return fmt.Errorf("column %q: invalid action %q", m.Header, m.Action)
	}
	if !IsValidReviewStatus(m.ReviewStatus) {
		return fmt.Errorf("column %q: invalid review status %q", m.Header, m.ReviewStatus)
	}
	if m.Action == ActionMap && m.MappedColumn == nil {
		return fmt.Errorf("column %q: action=map requires a mapped column", m.Header)
	}
	if m.Action == ActionCreate && m.NewColumnProposal == nil {
		return fmt.Errorf("column %q: action=create requires a new column proposal", m.Header)
	}
	return nil
}

// ============================================================================
// Sheet-Level Aggregate
// ============================================================================

// SheetReviewStatus is the aggregate review state of a sheet, derived purely
// from its column review statuses. It is never stored independently.
type SheetReviewStatus string

const (
	SheetReviewPending           SheetReviewStatus = "pending"
	SheetReviewApproved          SheetReviewStatus = "approved"
	SheetReviewPartiallyApproved SheetReviewStatus = "partially_approved"
	SheetReviewRejected          SheetReviewStatus = "rejected"
)

// AggregateSheetStatus is the single source of truth for sheet review state:
// approved iff every column is approved, rejected iff every column is
// rejected, partially approved when rejections coexist with approvals,
// pending otherwise. An empty mapping set aggregates to pending.
func AggregateSheetStatus(mappings []ColumnMapping) SheetReviewStatus {
	if len(mappings) == 0 {
		return SheetReviewPending
	}

	approved, rejected := 0, 0
	for _, m := range mappings {
		switch m.ReviewStatus {
		case ReviewApproved:
			approved++
		case ReviewRejected:
			rejected++
		}
	}

	switch {
	case approved == len(mappings):
		return SheetReviewApproved
	case rejected == len(mappings):
		return SheetReviewRejected
	case rejected > 0 && approved > 0:
		return SheetReviewPartiallyApproved
	default:
		return SheetReviewPending
	}
}
