package models

// ============================================================================
// Decoded Sheet Data
// ============================================================================

// SheetData is one tabular unit produced by the spreadsheet decoder:
// the sheet name, its header row, a bounded sample of data rows keyed by
// header, and the total row count of the full sheet.
type SheetData struct {
	SheetName  string           `json:"sheet_name"`
	Headers    []string         `json:"headers"`
	SampleRows []map[string]any `json:"sample_rows"`
	RowCount   int              `json:"row_count"`
}

// SampleColumn extracts the sample values for a single header, in row order.
// Missing cells are returned as nil so callers can treat them as absent.
func (s SheetData) SampleColumn(header string) []any {
	values := make([]any, 0, len(s.SampleRows))
	for _, row := range s.SampleRows {
		values = append(values, row[header])
	}
	return values
}

// ============================================================================
// Catalog Snapshot
// ============================================================================

// CatalogColumn is a column of an existing table in the target schema.
type CatalogColumn struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
}

// CatalogTable is an existing table in the target schema.
type CatalogTable struct {
	TableName string          `json:"table_name"`
	Columns   []CatalogColumn `json:"columns"`
}

// ColumnNames returns the column names of the table in declaration order.
func (t CatalogTable) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.ColumnName)
	}
	return names
}

// HasColumn reports whether the table declares a column with the exact name.
func (t CatalogTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.ColumnName == name {
			return true
		}
	}
	return false
}

// CatalogSnapshot is a point-in-time view of the target schema supplied by
// the catalog collaborator. An empty or partially populated snapshot is
// valid input; ranking simply yields no or low suggestions against it.
type CatalogSnapshot struct {
	Tables map[string]CatalogTable `json:"tables"`
}

// Table looks up a table by exact name.
func (s CatalogSnapshot) Table(name string) (CatalogTable, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// IsEmpty reports whether the snapshot contains no tables.
func (s CatalogSnapshot) IsEmpty() bool {
	return len(s.Tables) == 0
}
