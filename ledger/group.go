package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type GroupMode string

const (
	GroupNone      GroupMode = "none"
	GroupDate      GroupMode = "date"
	GroupNarration GroupMode = "narration"
)

const unknownDate = "unknown"

var ErrTooManyToGroup = errors.New("too many transactions to group by narration")

// ParseGroupMode accepts "", "none", "date" and "narration".
func ParseGroupMode(s string) (GroupMode, error) {
	switch mode := GroupMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "", GroupNone:
		return GroupNone, nil
	case GroupDate, GroupNarration:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown group mode %q", s)
	}
}

// Options tunes narration grouping.
type Options struct {
	// Threshold is the largest distance/length ratio still considered similar.
	Threshold float64
	// MaxNarrationBatch caps the quadratic narration comparison.
	MaxNarrationBatch int
}

func DefaultOptions() Options {
	opts := Options{Threshold: 0.3, MaxNarrationBatch: 500}
	if viper.IsSet("grouping.narration_threshold") {
		opts.Threshold = viper.GetFloat64("grouping.narration_threshold")
	}
	if viper.IsSet("grouping.max_narration_batch") {
		opts.MaxNarrationBatch = viper.GetInt("grouping.max_narration_batch")
	}
	return opts
}

// DisplayTransaction is either a single transaction (Count 1) or an
// aggregate of Members.
type DisplayTransaction struct {
	common.Transaction
	IsGrouped bool                 `json:"is_grouped"`
	Count     int                  `json:"count"`
	Members   []common.Transaction `json:"members,omitempty"`
}

// Group builds a display view of txns. The input is not modified.
func Group(txns []common.Transaction, mode GroupMode, opts Options) ([]DisplayTransaction, error) {
	switch mode {
	case GroupNone, "":
		out := make([]DisplayTransaction, 0, len(txns))
		for _, t := range txns {
			out = append(out, single(t))
		}
		return out, nil
	case GroupDate:
		return groupByDate(txns), nil
	case GroupNarration:
		if opts.MaxNarrationBatch > 0 && len(txns) > opts.MaxNarrationBatch {
			return nil, fmt.Errorf("%w: %d > %d", ErrTooManyToGroup, len(txns), opts.MaxNarrationBatch)
		}
		return groupByNarration(txns, opts.Threshold), nil
	default:
		return nil, fmt.Errorf("unknown group mode %q", mode)
	}
}

func single(t common.Transaction) DisplayTransaction {
	return DisplayTransaction{Transaction: t, Count: 1}
}

func groupByDate(txns []common.Transaction) []DisplayTransaction {
	var order []string
	buckets := map[string][]common.Transaction{}
	for _, t := range txns {
		key := t.Date
		if key == "" {
			key = unknownDate
		}
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], t)
	}

	out := make([]DisplayTransaction, 0, len(order))
	for _, key := range order {
		members := buckets[key]
		label := "transactions"
		if len(members) == 1 {
			label = "transaction"
		}
		g := aggregate(members, "group:date:"+key, fmt.Sprintf("%d %s", len(members), label))
		g.Date = key
		out = append(out, g)
	}
	sortByDateDesc(out)
	return out
}

func groupByNarration(txns []common.Transaction, threshold float64) []DisplayTransaction {
	normalized := make([]string, len(txns))
	for i, t := range txns {
		normalized[i] = NormalizeNarration(t.Narration)
	}

	processed := make([]bool, len(txns))
	var out []DisplayTransaction
	for i := range txns {
		if processed[i] {
			continue
		}
		processed[i] = true
		cluster := []common.Transaction{txns[i]}
		for j := i + 1; j < len(txns); j++ {
			if !processed[j] && NarrationDistance(normalized[i], normalized[j]) <= threshold {
				processed[j] = true
				cluster = append(cluster, txns[j])
			}
		}

		if len(cluster) == 1 {
			out = append(out, single(cluster[0]))
			continue
		}
		narration := fmt.Sprintf("%s (%d similar)", cluster[0].Narration, len(cluster))
		g := aggregate(cluster, fmt.Sprintf("group:narration:%d", len(out)), narration)
		g.Date = cluster[0].Date
		out = append(out, g)
	}
	sortByDateDesc(out)
	return out
}

// aggregate sums amounts and takes the last member's closing balance.
func aggregate(members []common.Transaction, id, narration string) DisplayTransaction {
	t := common.NewTransaction(members[0].Date, narration)
	t.ID = id
	withdrawal, deposit := decimal.Zero, decimal.Zero
	for _, m := range members {
		withdrawal = withdrawal.Add(m.WithdrawalAmt)
		deposit = deposit.Add(m.DepositAmt)
	}
	t.WithdrawalAmt = withdrawal
	t.DepositAmt = deposit
	t.ClosingBalance = members[len(members)-1].ClosingBalance

	return DisplayTransaction{
		Transaction: t,
		IsGrouped:   true,
		Count:       len(members),
		Members:     append([]common.Transaction(nil), members...),
	}
}

// sortByDateDesc orders canonical dates newest first. Unknown and empty
// dates go last; ties keep their order.
func sortByDateDesc(items []DisplayTransaction) {
	sort.SliceStable(items, func(i, j int) bool {
		di, iok := common.ParseCanonicalDate(items[i].Date)
		dj, jok := common.ParseCanonicalDate(items[j].Date)
		if iok != jok {
			return iok
		}
		return iok && di.After(dj)
	})
}

var (
	leadingTypeRegex = regexp.MustCompile(`^(?:upi|neft|imps|rtgs|atm|pos|card|online|payment|transfer)(?:[\s/:-]+|$)`)
	trailingRegex    = regexp.MustCompile(`\s+(?:payment|transfer|transaction|ref\s*no|refno|ref)\b.*$`)
)

// NormalizeNarration reduces a narration to the merchant-like core used for
// similarity: lower case, single spaces, without a leading transaction type
// or a trailing boilerplate suffix.
func NormalizeNarration(narration string) string {
	s := strings.Join(strings.Fields(strings.ToLower(narration)), " ")
	s = leadingTypeRegex.ReplaceAllString(s, "")
	s = trailingRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// NarrationDistance is the edit distance between a and b divided by the length of
// the longer one: 0 for identical strings, 1 for nothing in common.
func NarrationDistance(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	longer := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longer == 0 {
		return 0
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(longer)
}
