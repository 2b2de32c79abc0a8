package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/aqlanhadi/ledgr/extractor/fixed_deposit"
	"github.com/aqlanhadi/ledgr/extractor/tabular"
	"github.com/aqlanhadi/ledgr/ledger"
	"github.com/rs/zerolog/log"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Kind tells which pipeline handled a file.
type Kind string

const (
	KindTabular      Kind = "tabular"
	KindFixedDeposit Kind = "fixed_deposit"
)

type format struct {
	kind  Kind
	parse func(io.Reader) (common.ParseResult, error)
}

var formats = map[string]format{
	".csv":  {KindTabular, tabular.ParseDelimited},
	".tsv":  {KindTabular, tabular.ParseDelimited},
	".txt":  {KindTabular, tabular.ParseDelimited},
	".xlsx": {KindTabular, tabular.ParseSpreadsheet},
	".xlsm": {KindTabular, tabular.ParseSpreadsheet},
	".pdf":  {KindFixedDeposit, nil},
}

// Options controls how a file is turned into records.
type Options struct {
	// Mapping overrides the suggested column mapping for tabular files.
	Mapping *tabular.ColumnMapping
	// Now decides fixed deposit status; zero means time.Now.
	Now time.Time
}

type Result struct {
	Source           string                `json:"source"`
	Kind             Kind                  `json:"kind"`
	Headers          []string              `json:"headers,omitempty"`
	Rows             []common.ParsedRow    `json:"rows,omitempty"`
	Errors           []common.RowError     `json:"errors,omitempty"`
	SuggestedMapping map[string]string     `json:"suggested_mapping,omitempty"`
	MappingProblems  []string              `json:"mapping_problems,omitempty"`
	Transactions     []common.Transaction  `json:"transactions,omitempty"`
	Dropped          []tabular.Drop        `json:"dropped,omitempty"`
	FixedDeposits    []common.FixedDeposit `json:"fixed_deposits,omitempty"`
}

// SupportedExtension reports whether filename can be processed.
func SupportedExtension(filename string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(filename))]
	return ok
}

func unsupported(filename string) error {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = filename
	}
	return fmt.Errorf("%w %q: export the statement as CSV, TSV or XLSX (PDF for fixed deposit advices)", ErrUnsupportedFormat, ext)
}

// ProcessReader picks a pipeline from the filename extension. Tabular files
// are parsed and, when a valid mapping is available, mapped to transactions.
// PDF files go through fixed deposit extraction.
func ProcessReader(reader io.Reader, filename string, opts Options) (*Result, error) {
	f, ok := formats[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return nil, unsupported(filename)
	}
	result := &Result{Source: filename, Kind: f.kind}

	if f.kind == KindFixedDeposit {
		doc, err := common.ExtractPDFText(reader)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filename, err)
		}
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		result.FixedDeposits = fixed_deposit.Extract(doc.Text, now)
		log.Debug().Str("file", filename).Int("pages", doc.PageCount).Int("fixed_deposits", len(result.FixedDeposits)).Msg("extracted pdf")
		return result, nil
	}

	parsed, err := f.parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	result.Headers = parsed.Headers
	result.Rows = parsed.Rows
	result.Errors = parsed.Errors

	suggested := tabular.Suggest(parsed)
	result.SuggestedMapping = suggested.ToMap()

	mapping := opts.Mapping
	if mapping == nil {
		mapping = suggested
	}
	if err := mapping.Validate(); err != nil {
		var mErr *tabular.MappingError
		if errors.As(err, &mErr) {
			result.MappingProblems = mErr.Problems
		}
		log.Warn().Str("file", filename).Err(err).Msg("no usable column mapping, returning rows only")
		return result, nil
	}

	result.Transactions, result.Dropped = tabular.Apply(parsed.Rows, mapping)
	if len(result.Dropped) > 0 {
		log.Warn().Str("file", filename).Int("dropped", len(result.Dropped)).Msg("dropped rows without date or narration")
	}
	return result, nil
}

func ProcessFile(path string, opts Options) (*Result, error) {
	if !SupportedExtension(path) {
		return nil, unsupported(filepath.Base(path))
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ProcessReader(file, filepath.Base(path), opts)
}

// ProcessPath handles a single file, or every supported file directly inside
// a directory. Files that fail are logged and skipped in directory mode.
func ProcessPath(path string, opts Options) ([]*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		log.Info().Str("file", path).Msg("scanning")
		result, err := ProcessFile(path, opts)
		if err != nil {
			return nil, err
		}
		return []*Result{result}, nil
	}

	log.Info().Str("dir", path).Msg("scanning")
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	results := []*Result{}
	for _, e := range entries {
		if e.IsDir() || !SupportedExtension(e.Name()) {
			continue
		}
		result, err := ProcessFile(filepath.Join(path, e.Name()), opts)
		if err != nil {
			log.Warn().Str("file", e.Name()).Err(err).Msg("skipping file")
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// OutputOptions shapes what CreateFinalOutput keeps.
type OutputOptions struct {
	RowsOnly bool
	Group    ledger.GroupMode
}

// CreateFinalOutput returns the JSON value for one result. RowsOnly keeps the
// parsed table, otherwise transactions are replaced by their grouped view.
func CreateFinalOutput(result *Result, opts OutputOptions) (interface{}, error) {
	if result.Kind == KindFixedDeposit {
		return map[string]interface{}{
			"source":         result.Source,
			"fixed_deposits": result.FixedDeposits,
		}, nil
	}

	out := map[string]interface{}{
		"source":            result.Source,
		"headers":           result.Headers,
		"errors":            result.Errors,
		"suggested_mapping": result.SuggestedMapping,
	}
	if opts.RowsOnly {
		out["rows"] = result.Rows
		return out, nil
	}
	if len(result.MappingProblems) > 0 {
		out["mapping_problems"] = result.MappingProblems
	}

	deduped := ledger.RemoveDuplicates(result.Transactions)
	grouped, err := ledger.Group(deduped, opts.Group, ledger.DefaultOptions())
	if err != nil {
		return nil, err
	}
	out["transactions"] = grouped
	out["dropped"] = len(result.Dropped)
	out["duplicates"] = len(result.Transactions) - len(deduped)
	return out, nil
}

// ExecuteAgainstPath writes the JSON output for path to w: an object for a
// file, an array for a directory.
func ExecuteAgainstPath(path string, opts Options, output OutputOptions, w io.Writer) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	results, err := ProcessPath(path, opts)
	if err != nil {
		return err
	}

	values := make([]interface{}, 0, len(results))
	for _, r := range results {
		v, err := CreateFinalOutput(r, output)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Source, err)
		}
		values = append(values, v)
	}

	enc := json.NewEncoder(w)
	if !info.IsDir() {
		return enc.Encode(values[0])
	}
	return enc.Encode(values)
}
