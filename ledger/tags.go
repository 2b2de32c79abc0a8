package ledger

import (
	"strings"

	"github.com/aqlanhadi/ledgr/extractor/common"
)

// NormalizeTags trims tags, drops empty ones and removes case-insensitive
// repeats, keeping the first spelling. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func AddTags(txn *common.Transaction, tags ...string) {
	txn.Tags = NormalizeTags(append(append([]string(nil), txn.Tags...), tags...))
}

// RemoveTag drops tag regardless of case.
func RemoveTag(txn *common.Transaction, tag string) {
	tag = strings.TrimSpace(tag)
	kept := make([]string, 0, len(txn.Tags))
	for _, t := range txn.Tags {
		if !strings.EqualFold(t, tag) {
			kept = append(kept, t)
		}
	}
	txn.Tags = kept
}
