package matching

import (
	"strings"

	"github.com/jinzhu/inflection"
	lev "github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// Scores assigned by the layered rule set. Values are confidences in [0,1].
const (
	scoreExact       = 1.0
	scoreSymbolOnly  = 0.9
	scorePluralPair  = 0.95
	anchoredBase     = 0.85
	anchoredSpan     = 0.05
	containedBase    = 0.75
	containedSpan    = 0.10
)

// SpecialCasePair is a documented abbreviation equivalence that scores 1.0
// regardless of lexical distance. The shipped table covers only the pairs
// observed in real import files; it is an exception list, not a general rule.
type SpecialCasePair struct {
	A string
	B string
}

// DefaultSpecialCases holds the documented "&"-joined terms and their
// underscore-joined schema equivalents. Do not widen this list speculatively;
// new pairs belong in per-session ScorerOptions when observed in real data.
var DefaultSpecialCases = []SpecialCasePair{
	{A: "P&I", B: "p_and_i"},
	{A: "T&I", B: "t_and_i"},
}

// Scorer computes name-similarity confidences between arbitrary source
// strings and schema identifiers. It shares the session's normalizer cache
// and carries the session's special-case table.
type Scorer struct {
	norm    *Normalizer
	special map[string]string // strict key -> strict key, both directions
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithSpecialCases replaces the default special-case table.
func WithSpecialCases(pairs []SpecialCasePair) ScorerOption {
	return func(s *Scorer) {
		s.special = make(map[string]string, len(pairs)*2)
		for _, p := range pairs {
			a, b := s.norm.StrictKey(p.A), s.norm.StrictKey(p.B)
			s.special[a] = b
			s.special[b] = a
		}
	}
}

// NewScorer creates a scorer bound to the session normalizer.
func NewScorer(norm *Normalizer, opts ...ScorerOption) *Scorer {
	s := &Scorer{norm: norm}
	WithSpecialCases(DefaultSpecialCases)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the similarity confidence between a and b.
func (s *Scorer) Score(a, b string) float64 {
	score, _ := s.Match(a, b)
	return score
}

// Match returns the similarity confidence between a and b along with the
// match type of the first rule that resolved it. Rules are tried in order;
// the first match wins.
func (s *Scorer) Match(a, b string) (float64, models.MatchType) {
	strictA, strictB := s.norm.StrictKey(a), s.norm.StrictKey(b)

	// Rule 1: documented abbreviation pairs.
	if other, ok := s.special[strictA]; ok && other == strictB {
		return scoreExact, models.MatchTypeExact
	}

	// Rule 2: strict-normalized equality.
	if strictA != "" && strictA == strictB {
		return scoreExact, models.MatchTypeExact
	}

	// Rule 3: symbol-only names normalize to nothing but were not empty.
	if strictA == "" && strictB == "" {
		if strings.TrimSpace(a) != "" && strings.TrimSpace(b) != "" {
			return scoreSymbolOnly, models.MatchTypeExact
		}
		return 0, models.MatchTypeNone
	}
	if strictA == "" || strictB == "" {
		return 0, models.MatchTypeNone
	}

	// Rule 4: db-normalized equality ignoring underscores.
	looseA, looseB := s.norm.LooseKey(a), s.norm.LooseKey(b)
	if looseA == looseB {
		return scoreExact, models.MatchTypeExact
	}

	// Rule 5: pluralization equivalence, either direction.
	if pluralEquivalent(strictA, strictB) {
		return scorePluralPair, models.MatchTypePartial
	}

	// Rule 6: containment, scaled by length ratio, with an anchor bonus.
	if score, ok := containmentScore(looseA, looseB); ok {
		return score, models.MatchTypePartial
	}

	// Rule 7: edit-distance fallback on the loose keys.
	return editSimilarity(looseA, looseB), models.MatchTypeFuzzy
}

// pluralEquivalent reports whether one key is the plural of the other.
// The trivial +s check is tried first, then proper English inflection for
// forms like category/categories.
func pluralEquivalent(a, b string) bool {
	if a+"s" == b || b+"s" == a {
		return true
	}
	return inflection.Singular(a) == b || inflection.Plural(a) == b ||
		inflection.Singular(b) == a || inflection.Plural(b) == a
}

// containmentScore scores one key contained in the other. The score grows
// with the contained fraction of the longer key; a containment anchored at
// the start or end outranks one buried in the middle. The check is symmetric
// in its arguments: only which key is shorter matters.
func containmentScore(a, b string) (float64, bool) {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if shorter == "" || !strings.Contains(longer, shorter) {
		return 0, false
	}

	ratio := float64(len(shorter)) / float64(len(longer))
	if strings.HasPrefix(longer, shorter) || strings.HasSuffix(longer, shorter) {
		return anchoredBase + anchoredSpan*ratio, true
	}
	return containedBase + containedSpan*ratio, true
}

// editSimilarity is 1 − distance/maxLength on the loose keys, clamped to [0,1].
func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}

	dist := lev.DistanceForStrings(ra, rb, lev.DefaultOptions)
	score := 1.0 - float64(dist)/float64(maxLen)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Candidate is a scored match candidate subject to the tie-break policy.
type Candidate struct {
	Name      string
	Score     float64
	MatchType models.MatchType
}

// CompareCandidates orders candidates best-first: higher score, then exact
// over partial over fuzzy, then shorter target name, then lexical order so
// results are deterministic.
func CompareCandidates(a, b Candidate) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	if ar, br := a.MatchType.Rank(), b.MatchType.Rank(); ar != br {
		if ar < br {
			return -1
		}
		return 1
	}
	if la, lb := len(a.Name), len(b.Name); la != lb {
		if la < lb {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Name, b.Name)
}
