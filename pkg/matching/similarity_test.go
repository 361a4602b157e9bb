package matching

import (
	"testing"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

func newTestScorer() *Scorer {
	return NewScorer(NewNormalizer())
}

func TestScorer_Reflexivity(t *testing.T) {
	s := newTestScorer()

	for _, in := range []string{"loan", "Loan Amount", "30_dpd_count", "P&I", "a"} {
		if got := s.Score(in, in); got != 1.0 {
			t.Errorf("Score(%q, %q) = %v, want 1.0", in, in, got)
		}
	}
}

func TestScorer_Symmetry(t *testing.T) {
	s := newTestScorer()

	pairs := [][2]string{
		{"loan", "loans"},
		{"loanAmount", "amount"},
		{"xamountx", "amount"},
		{"servicer", "service"},
		{"Loan ID", "loan_id"},
		{"$$$", "###"},
	}
	for _, p := range pairs {
		ab, ba := s.Score(p[0], p[1]), s.Score(p[1], p[0])
		if ab != ba {
			t.Errorf("Score(%q,%q)=%v but Score(%q,%q)=%v", p[0], p[1], ab, p[1], p[0], ba)
		}
	}
}

func TestScorer_ExactRules(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		a, b string
	}{
		{"Loan Amount", "loan_amount"}, // strict equality
		{"P&I", "p_and_i"},             // special case / ampersand expansion
		{"loan_id", "loanid"},          // db keys equal ignoring underscores
	}
	for _, tt := range tests {
		score, matchType := s.Match(tt.a, tt.b)
		if score != 1.0 {
			t.Errorf("Match(%q,%q) score = %v, want 1.0", tt.a, tt.b, score)
		}
		if matchType != models.MatchTypeExact {
			t.Errorf("Match(%q,%q) type = %q, want exact", tt.a, tt.b, matchType)
		}
	}
}

func TestScorer_SymbolOnlyNames(t *testing.T) {
	s := newTestScorer()

	if got := s.Score("$$$", "###"); got != 0.9 {
		t.Errorf("Score(symbol-only) = %v, want 0.9", got)
	}
	if got := s.Score("", "###"); got != 0 {
		t.Errorf("Score(empty vs symbol) = %v, want 0", got)
	}
}

func TestScorer_Pluralization(t *testing.T) {
	s := newTestScorer()

	if got := s.Score("loan", "loans"); got < 0.95 {
		t.Errorf("Score(loan, loans) = %v, want >= 0.95", got)
	}
	if got := s.Score("categories", "category"); got < 0.95 {
		t.Errorf("Score(categories, category) = %v, want >= 0.95", got)
	}
}

func TestScorer_ContainmentAnchorBonus(t *testing.T) {
	s := newTestScorer()

	anchored := s.Score("loanAmount", "amount") // end-anchored
	middle := s.Score("xamountx", "amount")     // buried in the middle
	if anchored <= middle {
		t.Errorf("anchored containment %v should outrank middle containment %v", anchored, middle)
	}
	if anchored < 0.85 || anchored > 0.90 {
		t.Errorf("anchored containment = %v, want within [0.85, 0.90]", anchored)
	}
	if middle < 0.75 || middle > 0.85 {
		t.Errorf("middle containment = %v, want within [0.75, 0.85]", middle)
	}
}

func TestScorer_EditDistanceFallback(t *testing.T) {
	s := newTestScorer()

	score, matchType := s.Match("servicer", "servcier") // transposition
	if score <= 0.5 || score >= 1.0 {
		t.Errorf("near-miss score = %v, want in (0.5, 1.0)", score)
	}
	if matchType != models.MatchTypeFuzzy {
		t.Errorf("match type = %q, want fuzzy", matchType)
	}

	if got := s.Score("zzz", "amount"); got < 0 || got > 0.2 {
		t.Errorf("unrelated strings score = %v, want near 0", got)
	}
}

func TestCompareCandidates_TieBreaks(t *testing.T) {
	tests := []struct {
		name string
		a, b Candidate
		want int // sign of comparison: -1 means a first
	}{
		{
			name: "higher score first",
			a:    Candidate{Name: "x", Score: 0.9, MatchType: models.MatchTypeFuzzy},
			b:    Candidate{Name: "y", Score: 0.8, MatchType: models.MatchTypeExact},
			want: -1,
		},
		{
			name: "exact beats partial on equal score",
			a:    Candidate{Name: "x", Score: 0.9, MatchType: models.MatchTypeExact},
			b:    Candidate{Name: "y", Score: 0.9, MatchType: models.MatchTypePartial},
			want: -1,
		},
		{
			name: "shorter name on equal score and type",
			a:    Candidate{Name: "loan", Score: 0.9, MatchType: models.MatchTypePartial},
			b:    Candidate{Name: "loan_detail", Score: 0.9, MatchType: models.MatchTypePartial},
			want: -1,
		},
		{
			name: "lexical order as final tie-break",
			a:    Candidate{Name: "abcd", Score: 0.9, MatchType: models.MatchTypePartial},
			b:    Candidate{Name: "abce", Score: 0.9, MatchType: models.MatchTypePartial},
			want: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareCandidates(tt.a, tt.b); got >= 0 {
				t.Errorf("CompareCandidates() = %d, want negative", got)
			}
			if got := CompareCandidates(tt.b, tt.a); got <= 0 {
				t.Errorf("reverse CompareCandidates() = %d, want positive", got)
			}
		})
	}
}
