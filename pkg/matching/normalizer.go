// Package matching implements the lexical heart of the import engine:
// identifier normalization, layered name similarity scoring, sample-based
// type inference, and the ranking of catalog tables and columns against
// spreadsheet sheets.
package matching

import (
	"strings"
	"sync"
	"unicode"
)

// DefaultDigitPrefix is prepended to column names that would otherwise start
// with a digit, which most SQL dialects reject as bare identifiers.
const DefaultDigitPrefix = "n_"

// Normalizer canonicalizes strings for comparison and for use as database
// identifiers. It is session-scoped: both key caches are memoized for the
// lifetime of one analysis pass and must be dropped (or Reset) when a new
// file is loaded, never shared across sessions. Within a session the pool
// workers analyze sheets in parallel against the one normalizer, so the
// caches are guarded and every method is safe for concurrent use.
type Normalizer struct {
	digitPrefix string

	mu          sync.Mutex
	strictCache map[string]string
	dbCache     map[string]string
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithDigitPrefix overrides the marker prepended to digit-led identifiers.
func WithDigitPrefix(prefix string) NormalizerOption {
	return func(n *Normalizer) {
		if prefix != "" {
			n.digitPrefix = prefix
		}
	}
}

// NewNormalizer creates a session-scoped normalizer.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		digitPrefix: DefaultDigitPrefix,
		strictCache: make(map[string]string),
		dbCache:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Reset clears the memoization caches. Called at the start of each new
// file/session to prevent cross-session contamination.
func (n *Normalizer) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.strictCache = make(map[string]string)
	n.dbCache = make(map[string]string)
}

// StrictKey lowercases, expands "&" to "and", and strips every
// non-alphanumeric rune. Used for exact-match detection:
// "Loan & Amount" and "loan_and_amount" share the strict key "loanandamount".
func (n *Normalizer) StrictKey(s string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if key, ok := n.strictCache[s]; ok {
		return key
	}

	expanded := expandAmpersand(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(expanded))
	for _, r := range expanded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	key := b.String()
	n.strictCache[s] = key
	return key
}

// DBKey produces a schema-safe identifier: lowercase, "&" expanded, runs of
// whitespace and punctuation collapsed to single underscores, leading and
// trailing underscores trimmed, and a digit-led result prefixed with the
// configured marker. The transform is idempotent: DBKey(DBKey(x)) == DBKey(x).
func (n *Normalizer) DBKey(s string) string {
	return n.DBKeyFor(s, nil)
}

// DBKeyFor is DBKey with one exception: when the raw digit-led identifier
// already exists in the target schema (per the exists callback), the
// unprefixed form is preserved verbatim so legacy columns are not renamed.
// exists runs under the cache lock and must not call back into the
// Normalizer.
func (n *Normalizer) DBKeyFor(s string, exists func(string) bool) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	cacheable := exists == nil
	if cacheable {
		if key, ok := n.dbCache[s]; ok {
			return key
		}
	}

	expanded := expandAmpersand(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(expanded))
	pendingSep := false
	for _, r := range expanded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	key := b.String()
	if key != "" && unicode.IsDigit(rune(key[0])) {
		if exists == nil || !exists(key) {
			key = n.digitPrefix + key
		}
	}

	if cacheable {
		n.dbCache[s] = key
	}
	return key
}

// LooseKey is the DB key with underscores removed, used by the similarity
// scorer for containment and edit-distance comparison.
func (n *Normalizer) LooseKey(s string) string {
	return strings.ReplaceAll(n.DBKey(s), "_", "")
}

// expandAmpersand rewrites "&" as the word "and", keeping it separated from
// its neighbors so "P&I" becomes "p and i" before key extraction.
func expandAmpersand(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return strings.ReplaceAll(s, "&", " and ")
}
