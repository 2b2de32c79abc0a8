package common

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const CanonicalDateLayout = "2006-01-02"

var (
	currencyRegex   = regexp.MustCompile(`(?i)(?:\b(?:rs|inr|rm|myr|usd)\.?|[₹$€£])`)
	nonNumericRegex = regexp.MustCompile(`[^0-9.\-]`)
	leadingNumber   = regexp.MustCompile(`^-?(?:\d+(?:\.\d+)?|\.\d+)`)

	// Only the first group length decides between year-first and day-first.
	yearFirstRegex = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})(?:$|[\sT])`)
	dayFirstRegex  = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{4}|\d{2})(?:$|[\sT])`)
)

// NormalizeDate parses DD-MM-YYYY, DD/MM/YYYY, DD-MM-YY, YYYY-MM-DD and
// YYYY/MM/DD into YYYY-MM-DD. It reports false when nothing matches or the
// date does not exist.
func NormalizeDate(input string) (string, bool) {
	text := strings.TrimSpace(input)
	if text == "" {
		return "", false
	}

	var year, month, day int
	if m := yearFirstRegex.FindStringSubmatch(text); m != nil {
		year, month, day = atoi(m[1]), atoi(m[2]), atoi(m[3])
	} else if m := dayFirstRegex.FindStringSubmatch(text); m != nil {
		day, month, year = atoi(m[1]), atoi(m[2]), atoi(m[3])
		if len(m[3]) == 2 {
			year = expandYear(year)
		}
	} else {
		return "", false
	}

	if month < 1 || month > 12 || day < 1 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return t.Format(CanonicalDateLayout), true
}

// ParseCanonicalDate converts a YYYY-MM-DD string into a time at UTC midnight.
func ParseCanonicalDate(s string) (time.Time, bool) {
	t, err := time.Parse(CanonicalDateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// expandYear maps 00-30 to 2000-2030 and 31-99 to 1931-1999.
func expandYear(yy int) int {
	if yy <= 30 {
		return 2000 + yy
	}
	return 1900 + yy
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// NormalizeAmount strips currency tokens, then anything that is not a digit,
// dot or minus, and parses the longest leading number. Unparsable input is
// zero.
func NormalizeAmount(input string) decimal.Decimal {
	text := strings.TrimSpace(input)
	if text == "" || text == "-" {
		return decimal.Zero
	}

	clean := nonNumericRegex.ReplaceAllString(currencyRegex.ReplaceAllString(text, ""), "")
	number := leadingNumber.FindString(clean)
	if number == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(number)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// FormatAmount renders an amount the way identity hashing expects it.
func FormatAmount(d decimal.Decimal) string {
	return d.String()
}

// DecimalPtr is a convenience for optional money fields.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// MustDecimal is for tests and constants.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid decimal %q: %v", s, err))
	}
	return d
}
