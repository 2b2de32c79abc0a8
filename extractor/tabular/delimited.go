package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/rs/zerolog/log"
)

var delimiters = []rune{',', '\t', '|', ';'}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeHeader trims, lowercases and collapses inner whitespace to "_".
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return whitespaceRegex.ReplaceAllString(h, "_")
}

// normalizeHeaders applies NormalizeHeader and makes every name usable as a
// unique row key.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, h := range raw {
		name := NormalizeHeader(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if used[name] {
			base := name
			for n := 2; used[name]; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
			}
		}
		used[name] = true
		headers[i] = name
	}
	return headers
}

// DetectDelimiter picks the supported delimiter that occurs most often in
// line outside quotes. Comma wins ties and empty input.
func DetectDelimiter(line string) rune {
	counts := make(map[rune]int, len(delimiters))
	inQuotes := false
	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best := ','
	for _, d := range delimiters {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

// ParseDelimited reads a CSV-like export: it strips the preamble, detects the
// delimiter and uses the first remaining row as the header. Row problems are
// recorded and parsing continues.
func ParseDelimited(reader io.Reader) (common.ParseResult, error) {
	result := common.ParseResult{Rows: []common.ParsedRow{}, Errors: []common.RowError{}}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return result, fmt.Errorf("failed to read file: %w", err)
	}

	text := StripPreamble(string(raw))
	firstLine, _, _ := strings.Cut(text, "\n")

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = DetectDelimiter(firstLine)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		return result, fmt.Errorf("failed to read header: %w", err)
	}
	result.Headers = normalizeHeaders(header)

	for rowNum := 1; ; rowNum++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("row", rowNum).Msg("skipping malformed row")
			result.Errors = append(result.Errors, common.RowError{Message: err.Error(), Row: rowNum})
			continue
		}

		row, rowErr := buildRow(result.Headers, record)
		if rowErr != "" {
			result.Errors = append(result.Errors, common.RowError{Message: rowErr, Row: rowNum})
			continue
		}
		if row != nil {
			result.Rows = append(result.Rows, row)
		}
	}

	return result, nil
}

// buildRow pairs cells with headers. It returns a nil row for all-blank
// records and a message for records wider than the header.
func buildRow(headers []string, record []string) (common.ParsedRow, string) {
	if len(record) > len(headers) {
		extra := record[len(headers):]
		if !allBlank(extra) {
			return nil, fmt.Sprintf("row has %d fields, header has %d", len(record), len(headers))
		}
		record = record[:len(headers)]
	}

	row := make(common.ParsedRow, len(headers))
	blank := true
	for i, h := range headers {
		value := ""
		if i < len(record) {
			value = strings.TrimSpace(record[i])
		}
		if value != "" {
			blank = false
		}
		row[h] = value
	}
	if blank {
		return nil, ""
	}
	return row, ""
}

func allBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
