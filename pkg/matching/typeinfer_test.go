package matching

import (
	"testing"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

func TestInferKind(t *testing.T) {
	tests := []struct {
		name    string
		samples []any
		header  string
		want    models.DataKind
	}{
		{
			name:    "no samples",
			samples: nil,
			want:    models.DataKindUnknown,
		},
		{
			name:    "only null and empty samples",
			samples: []any{nil, "", "   "},
			want:    models.DataKindUnknown,
		},
		{
			name:    "currency amounts with gaps",
			samples: []any{"$1,200.50", "", "$45"},
			want:    models.DataKindNumber,
		},
		{
			name:    "negative accounting style",
			samples: []any{"(1,200.00)", "$300", "12.5%"},
			want:    models.DataKindNumber,
		},
		{
			name:    "mixed date formats",
			samples: []any{"2024-01-05", "01/06/2024"},
			want:    models.DataKindDate,
		},
		{
			name:    "boolean tokens with minority noise",
			samples: []any{"Yes", "No", "N/A"},
			want:    models.DataKindBoolean,
		},
		{
			name:    "boolean tokens below half",
			samples: []any{"Yes", "N/A", "Unknown", "No"},
			want:    models.DataKindString,
		},
		{
			name:    "zero one flags",
			samples: []any{"1", "0", "1", "1"},
			want:    models.DataKindBoolean,
		},
		{
			name:    "plain integers",
			samples: []any{"5", "17", "230"},
			want:    models.DataKindNumber,
		},
		{
			name:    "serial dates under a date header",
			samples: []any{"45291", "45292", "45293"},
			header:  "Maturity Date",
			want:    models.DataKindDate,
		},
		{
			name:    "serial-range numbers without a date hint stay numbers",
			samples: []any{"45292", "45293"},
			header:  "Balance",
			want:    models.DataKindNumber,
		},
		{
			name:    "free text",
			samples: []any{"Active", "Delinquent", "Paid Off"},
			want:    models.DataKindString,
		},
		{
			name:    "tie falls back to string",
			samples: []any{"2024-01-05", "$45"},
			want:    models.DataKindString,
		},
		{
			name:    "native go values",
			samples: []any{1200.5, 45, nil},
			want:    models.DataKindNumber,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferKind(tt.samples, tt.header); got != tt.want {
				t.Errorf("InferKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"$1,200.50", 1200.50, true},
		{"€45", 45, true},
		{"(300)", -300, true},
		{"12.5%", 12.5, true},
		{"1 200", 1200, false}, // inner space is not a separator we accept
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseNumeric(tt.in)
		if ok != tt.wantOK {
			t.Errorf("parseNumeric(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("parseNumeric(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsSerialDate(t *testing.T) {
	if !isSerialDate(45292) { // 2024-01-01
		t.Error("45292 should fall in the serial date window")
	}
	if isSerialDate(1200.50) {
		t.Error("small amounts are not serial dates")
	}
	if isSerialDate(99999) {
		t.Error("values past the window are not serial dates")
	}
}
