// Package spreadsheet decodes uploaded workbook files into the engine's
// sheet model: one SheetData per non-empty sheet, with deduplicated headers
// and a capped sample of data rows.
package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// DefaultSampleRows caps how many data rows are kept per sheet for analysis.
const DefaultSampleRows = 20

// Reader decodes xlsx workbooks.
type Reader struct {
	sampleRows int
	logger     *zap.Logger
}

// NewReader creates a reader keeping at most sampleRows data rows per sheet.
func NewReader(sampleRows int, logger *zap.Logger) *Reader {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	return &Reader{
		sampleRows: sampleRows,
		logger:     logger.Named("spreadsheet"),
	}
}

// ReadFile decodes a workbook from disk.
func (r *Reader) ReadFile(path string) ([]models.SheetData, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return r.readWorkbook(f)
}

// Read decodes a workbook from a stream, typically an upload body.
func (r *Reader) Read(src io.Reader) ([]models.SheetData, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return r.readWorkbook(f)
}

func (r *Reader) readWorkbook(f *excelize.File) ([]models.SheetData, error) {
	var sheets []models.SheetData
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
		}

		sheet, ok := r.decodeSheet(sheetName, rows)
		if !ok {
			r.logger.Debug("skipping empty sheet", zap.String("sheet", sheetName))
			continue
		}
		sheets = append(sheets, sheet)
	}

	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook contains no non-empty sheets")
	}
	return sheets, nil
}

// decodeSheet turns raw rows into SheetData. The header row is the first row
// with any non-empty cell; everything below it is data. Returns false for
// sheets with no usable header row.
func (r *Reader) decodeSheet(sheetName string, rows [][]string) (models.SheetData, bool) {
	headerIdx := -1
	for i, row := range rows {
		if rowHasContent(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return models.SheetData{}, false
	}

	headers := dedupeHeaders(rows[headerIdx])
	sheet := models.SheetData{
		SheetName: sheetName,
		Headers:   headers,
	}

	for _, row := range rows[headerIdx+1:] {
		if !rowHasContent(row) {
			continue
		}
		sheet.RowCount++
		if len(sheet.SampleRows) >= r.sampleRows {
			continue
		}

		record := make(map[string]any, len(headers))
		for i, header := range headers {
			if i < len(row) && row[i] != "" {
				record[header] = row[i]
			} else {
				record[header] = nil
			}
		}
		sheet.SampleRows = append(sheet.SampleRows, record)
	}

	return sheet, true
}

// dedupeHeaders makes header names unique and non-empty: a repeated "Name"
// becomes "Name_2", "Name_3", and a blank header cell becomes "Column_N"
// from its 1-based position.
func dedupeHeaders(raw []string) []string {
	headers := make([]string, 0, len(raw))
	seen := make(map[string]int, len(raw))

	for i, cell := range raw {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("Column_%d", i+1)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		if _, ok := seen[name]; !ok {
			seen[name] = 1
		}
		headers = append(headers, name)
	}
	return headers
}

func rowHasContent(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}
