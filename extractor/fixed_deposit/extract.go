package fixed_deposit

import (
	"regexp"
	"strings"
	"time"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type config struct {
	Section           *regexp.Regexp
	SectionWindow     int
	ContextBefore     int
	ContextAfter      int
	MinFallbackAmount decimal.Decimal
}

var (
	digitRunRegex = regexp.MustCompile(`\d+`)
	amountRegex   = regexp.MustCompile(`(?:\bRS\.?|\bINR|₹|\bRM|\$)\s*([\d,]+(?:\.\d{1,2})?)`)
	rateRegex     = regexp.MustCompile(`(?:RATE|INTEREST|ROI)[^%]{0,30}?(\d{1,2}(?:\.\d{1,4})?)\s*%`)
	dateRegex     = regexp.MustCompile(`\b(?:\d{4}[-/]\d{1,2}[-/]\d{1,2}|\d{1,2}[-/]\d{1,2}[-/]\d{2,4})\b`)
	statusRegex   = regexp.MustCompile(`\b(ACTIVE|CLOSED|MATURED|PENDING)\b`)
	spaceRegex    = regexp.MustCompile(`\s+`)
)

var sectionKeywords = []string{"FIXED DEPOSIT", "FD DETAILS", "DEPOSIT ACCOUNT", "TERM DEPOSIT"}

func loadConfig() config {
	cfg := config{
		Section:           regexp.MustCompile(strings.Join(sectionKeywords, "|")),
		SectionWindow:     500,
		ContextBefore:     200,
		ContextAfter:      500,
		MinFallbackAmount: decimal.NewFromInt(1000),
	}
	if viper.IsSet("fixed_deposit.section_window") {
		cfg.SectionWindow = viper.GetInt("fixed_deposit.section_window")
	}
	if viper.IsSet("fixed_deposit.context_before") {
		cfg.ContextBefore = viper.GetInt("fixed_deposit.context_before")
	}
	if viper.IsSet("fixed_deposit.context_after") {
		cfg.ContextAfter = viper.GetInt("fixed_deposit.context_after")
	}
	if viper.IsSet("fixed_deposit.min_fallback_amount") {
		cfg.MinFallbackAmount = decimal.NewFromFloat(viper.GetFloat64("fixed_deposit.min_fallback_amount"))
	}
	return cfg
}

// strategy returns nil when it cannot find anything.
type strategy struct {
	name string
	run  func(text string, cfg config, now time.Time) []common.FixedDeposit
}

var strategies = []strategy{
	{"sections", extractFromSections},
	{"fd_number_scan", extractFromNumberScan},
}

// Extract finds fixed deposit records in raw PDF text. It is best-effort:
// unrecognised text gives an empty result. Records are unique by number,
// first occurrence wins.
func Extract(text string, now time.Time) []common.FixedDeposit {
	cfg := loadConfig()
	normalized := strings.ToUpper(strings.TrimSpace(spaceRegex.ReplaceAllString(text, " ")))
	if normalized == "" {
		return []common.FixedDeposit{}
	}

	for _, s := range strategies {
		records := s.run(normalized, cfg, now)
		if len(records) == 0 {
			continue
		}
		deduped := dedupe(records)
		log.Debug().Str("strategy", s.name).Int("records", len(deduped)).Msg("extracted fixed deposits")
		return deduped
	}
	return []common.FixedDeposit{}
}

// extractFromSections reads up to SectionWindow characters after each
// section keyword. Windows may overlap; dedupe drops repeated numbers.
func extractFromSections(text string, cfg config, now time.Time) []common.FixedDeposit {
	var records []common.FixedDeposit
	for _, loc := range cfg.Section.FindAllStringIndex(text, -1) {
		end := min(len(text), loc[1]+cfg.SectionWindow)
		window := text[loc[0]:end]

		number := longestNumber(window)
		if number == "" {
			continue
		}
		records = append(records, buildRecord(number, window, amounts(window, decimal.Zero), now))
	}
	return records
}

func extractFromNumberScan(text string, cfg config, now time.Time) []common.FixedDeposit {
	var records []common.FixedDeposit
	seen := map[string]bool{}

	for _, loc := range digitRunRegex.FindAllStringIndex(text, -1) {
		number := text[loc[0]:loc[1]]
		if !isFDNumber(number) || seen[number] {
			continue
		}
		seen[number] = true

		start := max(0, loc[0]-cfg.ContextBefore)
		end := min(len(text), loc[1]+cfg.ContextAfter)
		context := text[start:end]

		records = append(records, buildRecord(number, context, amounts(context, cfg.MinFallbackAmount), now))
	}
	return records
}

func buildRecord(number, window string, found []decimal.Decimal, now time.Time) common.FixedDeposit {
	fd := common.FixedDeposit{FDNumber: number}

	if len(found) > 0 {
		fd.PrincipalAmt = common.DecimalPtr(found[0])
	}
	if len(found) > 1 {
		fd.MaturityAmt = common.DecimalPtr(decimal.Max(found[0], found[1:]...))
	}
	if m := rateRegex.FindStringSubmatch(window); m != nil {
		if rate, err := decimal.NewFromString(m[1]); err == nil {
			fd.InterestRate = &rate
		}
	}
	if dates := dateRegex.FindAllString(window, -1); len(dates) > 0 {
		if d, ok := common.NormalizeDate(dates[len(dates)-1]); ok {
			fd.MaturityDate = d
		}
	}
	fd.Status = status(window, fd.MaturityDate, now)
	return fd
}

// longestNumber returns the longest 8-15 digit run; ties go to the first.
func longestNumber(window string) string {
	best := ""
	for _, run := range digitRunRegex.FindAllString(window, -1) {
		if isFDNumber(run) && len(run) > len(best) {
			best = run
		}
	}
	return best
}

func isFDNumber(run string) bool {
	return len(run) >= 8 && len(run) <= 15
}

// amounts returns currency-prefixed amounts strictly above floor, in order.
func amounts(window string, floor decimal.Decimal) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range amountRegex.FindAllStringSubmatch(window, -1) {
		amount := common.NormalizeAmount(m[1])
		if amount.IsZero() || !amount.GreaterThan(floor) {
			continue
		}
		out = append(out, amount)
	}
	return out
}

func status(window, maturityDate string, now time.Time) string {
	if m := statusRegex.FindStringSubmatch(window); m != nil {
		return strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:])
	}
	if maturity, ok := common.ParseCanonicalDate(maturityDate); ok {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if maturity.Before(today) {
			return common.StatusClosed
		}
	}
	return common.StatusActive
}

func dedupe(records []common.FixedDeposit) []common.FixedDeposit {
	seen := make(map[string]bool, len(records))
	out := make([]common.FixedDeposit, 0, len(records))
	for _, r := range records {
		if seen[r.FDNumber] {
			continue
		}
		seen[r.FDNumber] = true
		out = append(out, r)
	}
	return out
}
