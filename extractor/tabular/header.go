package tabular

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type headerConfig struct {
	ScanLimit    int
	FallbackSkip int
}

func loadHeaderConfig() headerConfig {
	cfg := headerConfig{ScanLimit: 30, FallbackSkip: 22}
	if viper.IsSet("tabular.header.scan_limit") {
		cfg.ScanLimit = viper.GetInt("tabular.header.scan_limit")
	}
	if viper.IsSet("tabular.header.fallback_skip") {
		cfg.FallbackSkip = viper.GetInt("tabular.header.fallback_skip")
	}
	return cfg
}

var (
	narrationKeywords = []string{"narration", "description", "particulars"}
	amountKeywords    = []string{"withdrawal", "deposit", "debit", "credit", "amount"}

	dataRowRegex = regexp.MustCompile(`^\s*"?(?:\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}[-/]\d{1,2}[-/]\d{1,2})`)
)

// headerDetector returns the index of the header line, if it can find one.
type headerDetector struct {
	name   string
	detect func(lines []string, cfg headerConfig) (int, bool)
}

var headerDetectors = []headerDetector{
	{"keyword_header", detectKeywordHeader},
	{"first_data_row", detectFromFirstDataRow},
	{"fixed_skip", detectFixedSkip},
}

// StripPreamble drops the vendor lines in front of the real header row.
// Detection is best-effort; downstream stages surface any resulting errors.
func StripPreamble(text string) string {
	text = normalizeNewlines(text)
	lines := strings.Split(text, "\n")
	cfg := loadHeaderConfig()

	for _, d := range headerDetectors {
		idx, ok := d.detect(lines, cfg)
		if !ok {
			continue
		}
		if idx > 0 {
			log.Debug().Str("strategy", d.name).Int("skipped", idx).Msg("stripped preamble")
		}
		return strings.Join(lines[idx:], "\n")
	}
	return text
}

func detectKeywordHeader(lines []string, _ headerConfig) (int, bool) {
	for i, line := range lines {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "date") {
			continue
		}
		if containsAny(lower, narrationKeywords) || containsAny(lower, amountKeywords) || strings.Contains(lower, "balance") {
			return i, true
		}
	}
	return 0, false
}

func detectFromFirstDataRow(lines []string, cfg headerConfig) (int, bool) {
	limit := min(cfg.ScanLimit, len(lines))
	for i := 0; i < limit; i++ {
		if !dataRowRegex.MatchString(lines[i]) || fieldCount(lines[i]) < 3 {
			continue
		}
		if i == 0 {
			return 0, true
		}
		for j := i - 1; j >= max(0, i-2); j-- {
			lower := strings.ToLower(lines[j])
			if strings.Contains(lower, "date") || strings.Contains(lower, "narration") {
				return j, true
			}
		}
		return i - 1, true
	}
	return 0, false
}

func detectFixedSkip(lines []string, cfg headerConfig) (int, bool) {
	if cfg.FallbackSkip <= 0 || len(lines) <= cfg.FallbackSkip {
		return 0, false
	}
	return cfg.FallbackSkip, true
}

// fieldCount is the widest split of line over the supported delimiters.
func fieldCount(line string) int {
	best := 1
	for _, d := range delimiters {
		if n := strings.Count(line, string(d)) + 1; n > best {
			best = n
		}
	}
	return best
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func normalizeNewlines(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
