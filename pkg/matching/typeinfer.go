package matching

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// booleanTokens is the fixed token set for boolean detection. Values outside
// this set (N/A, maybe, ...) never coerce to boolean.
var booleanTokens = map[string]bool{
	"true": true, "false": true,
	"1": true, "0": true,
	"yes": true, "no": true,
	"y": true, "n": true,
}

// currencyRunes are stripped before numeric parsing, along with thousands
// separators.
var currencyRunes = "$€£¥"

// dateLayouts are the accepted date string formats, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Spreadsheet serial-date window: day numbers for roughly 1995-01-01 through
// 2060-09-18 (days since the 1899-12-30 epoch). Bare integers in this window
// are treated as dates only when the header hints at one, since four- and
// five-digit amounts are equally plausible.
const (
	serialDateMin = 34700
	serialDateMax = 58700
)

// dateHintTokens mark a header as date-like for serial-number detection.
var dateHintTokens = []string{"date", "time", "day", "dt", "month", "maturity", "dob"}

// InferKind classifies a column's semantic type from its sample values.
// Null, empty, and whitespace-only samples are ignored. The majority kind
// across the remaining samples wins; a tie falls back to string. With no
// usable samples the result is DataKindUnknown, which callers must treat as
// "unknown", never as "string".
func InferKind(samples []any, headerHint string) models.DataKind {
	dateHinted := headerHintsDate(headerHint)

	counts := make(map[models.DataKind]int)
	total := 0
	for _, sample := range samples {
		text, ok := sampleText(sample)
		if !ok {
			continue
		}
		total++
		counts[classifyValue(text, dateHinted)]++
	}

	if total == 0 {
		return models.DataKindUnknown
	}

	best := models.DataKindString
	bestCount := -1
	tied := false
	for _, kind := range []models.DataKind{models.DataKindString, models.DataKindNumber, models.DataKindBoolean, models.DataKindDate} {
		c := counts[kind]
		if c > bestCount {
			best, bestCount, tied = kind, c, false
		} else if c == bestCount && c > 0 {
			tied = true
		}
	}

	if tied {
		return models.DataKindString
	}
	// Boolean requires at least half of the non-null samples to match the
	// token set; a bare plurality is not enough to risk coercion.
	if best == models.DataKindBoolean && counts[best]*2 < total {
		return models.DataKindString
	}
	return best
}

// classifyValue determines the kind of one sample value.
func classifyValue(text string, dateHinted bool) models.DataKind {
	lower := strings.ToLower(text)
	if booleanTokens[lower] {
		return models.DataKindBoolean
	}
	if isDateString(text) {
		return models.DataKindDate
	}
	if num, ok := parseNumeric(text); ok {
		if dateHinted && isSerialDate(num) {
			return models.DataKindDate
		}
		return models.DataKindNumber
	}
	return models.DataKindString
}

// sampleText converts a raw sample to trimmed text, reporting false for
// null-ish values that must be ignored.
func sampleText(sample any) (string, bool) {
	if sample == nil {
		return "", false
	}
	var text string
	switch v := sample.(type) {
	case string:
		text = v
	case fmt.Stringer:
		text = v.String()
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		text = strconv.Itoa(v)
	case int64:
		text = strconv.FormatInt(v, 10)
	case bool:
		text = strconv.FormatBool(v)
	case time.Time:
		text = v.Format(time.RFC3339)
	default:
		text = fmt.Sprintf("%v", v)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

// parseNumeric parses a number tolerating currency symbols, thousands
// separators, and accounting-style negatives like (1,200.50).
func parseNumeric(text string) (float64, bool) {
	cleaned := strings.TrimSpace(text)
	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	cleaned = strings.TrimFunc(cleaned, func(r rune) bool {
		return strings.ContainsRune(currencyRunes, r) || r == ' '
	})
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSuffix(cleaned, "%")
	if cleaned == "" {
		return 0, false
	}

	num, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		num = -num
	}
	return num, true
}

// isDateString reports whether the text parses under any accepted layout.
func isDateString(text string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, text); err == nil {
			return true
		}
	}
	return false
}

// isSerialDate reports whether a number falls in the spreadsheet serial-date
// window. Fractional parts (time of day) are allowed.
func isSerialDate(num float64) bool {
	return num >= serialDateMin && num <= serialDateMax
}

// headerHintsDate reports whether the header name suggests a date column.
func headerHintsDate(header string) bool {
	if header == "" {
		return false
	}
	lower := strings.ToLower(header)
	for _, token := range dateHintTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
