package tabular

import (
	"regexp"
	"strings"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/spf13/viper"
)

type fieldKeywords struct {
	field    Field
	keywords []string
}

// Checked in order; value_date must come before date.
var nameRules = []fieldKeywords{
	{FieldValueDate, []string{"value_date", "value_dt", "valuedate"}},
	{FieldDate, []string{"date", "dt"}},
	{FieldNarration, []string{"narration", "description", "particulars", "details", "remarks"}},
	{FieldRefNo, []string{"reference", "ref", "chq", "cheque"}},
	{FieldWithdrawal, []string{"withdrawal", "debit", "dr"}},
	{FieldDeposit, []string{"deposit", "credit", "cr"}},
	{FieldClosingBalance, []string{"balance", "closing"}},
}

var (
	dateValueRegex   = regexp.MustCompile(`^\d{1,4}[-/]\d{1,2}[-/]\d{1,4}`)
	amountValueRegex = regexp.MustCompile(`^[^\d\-]{0,4}-?[\d,]*\d[.,]\d+$`)
	tokenSplitRegex  = regexp.MustCompile(`[^a-z0-9]+`)
)

func sampleSize() int {
	if viper.IsSet("tabular.inference.sample_rows") {
		return viper.GetInt("tabular.inference.sample_rows")
	}
	return 10
}

// DetectColumnTypes suggests a field for every column, first by header
// name and then by the first non-empty sampled value. A field is suggested
// at most once; later candidates get FieldSkip. The result is advisory.
func DetectColumnTypes(headers []string, rows []common.ParsedRow) *ColumnMapping {
	sample := rows
	if n := sampleSize(); n > 0 && len(sample) > n {
		sample = sample[:n]
	}

	mapping := NewColumnMapping()
	taken := map[Field]bool{}
	for _, col := range headers {
		field := fieldFromName(col)
		if field == FieldSkip {
			field = fieldFromContent(firstValue(col, sample))
		}
		if field != FieldSkip && taken[field] {
			field = FieldSkip
		}
		taken[field] = true
		mapping.Set(col, field)
	}
	return mapping
}

// Suggest runs DetectColumnTypes over a parse result.
func Suggest(result common.ParseResult) *ColumnMapping {
	return DetectColumnTypes(result.Headers, result.Rows)
}

func fieldFromName(column string) Field {
	name := strings.ToLower(column)
	tokens := tokenSplitRegex.Split(name, -1)
	for _, rule := range nameRules {
		for _, kw := range rule.keywords {
			if matchesKeyword(name, tokens, kw) {
				return rule.field
			}
		}
	}
	return FieldSkip
}

// Short keywords only match whole tokens so "cr" does not hit "description".
func matchesKeyword(name string, tokens []string, kw string) bool {
	if len(kw) > 2 {
		return strings.Contains(name, kw)
	}
	for _, t := range tokens {
		if t == kw {
			return true
		}
	}
	return false
}

func fieldFromContent(value string) Field {
	switch {
	case value == "":
		return FieldSkip
	case dateValueRegex.MatchString(value):
		return FieldDate
	case amountValueRegex.MatchString(value):
		return FieldAmount
	}
	return FieldSkip
}

func firstValue(column string, rows []common.ParsedRow) string {
	for _, row := range rows {
		if v := strings.TrimSpace(row[column]); v != "" {
			return v
		}
	}
	return ""
}
