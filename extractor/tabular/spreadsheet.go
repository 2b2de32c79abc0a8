package tabular

import (
	"errors"
	"fmt"
	"io"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/xuri/excelize/v2"
)

// ParseSpreadsheet reads the first sheet of an xlsx workbook. Every cell
// is taken as its formatted string value and the first row is the header.
func ParseSpreadsheet(reader io.Reader) (common.ParseResult, error) {
	result := common.ParseResult{Rows: []common.ParsedRow{}, Errors: []common.RowError{}}

	f, err := excelize.OpenReader(reader)
	if err != nil {
		return result, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return result, errors.New("spreadsheet has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return result, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return result, nil
	}

	result.Headers = normalizeHeaders(records[0])
	for i, record := range records[1:] {
		row, rowErr := buildRow(result.Headers, record)
		if rowErr != "" {
			result.Errors = append(result.Errors, common.RowError{Message: rowErr, Row: i + 1})
			continue
		}
		if row != nil {
			result.Rows = append(result.Rows, row)
		}
	}
	return result, nil
}
