// Package ledger reconciles normalized transactions: identity, duplicate
// suppression, grouped views, tags and the upload flow into storage.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/aqlanhadi/ledgr/extractor/common"
)

const (
	refPrefix  = "ref:"
	hashPrefix = "hash:"
)

// Identifier returns the natural key of a transaction. A non-blank
// reference number is authoritative; otherwise the key is a content hash of
// date, narration and amount. It never fails, so callers must reject rows
// without a date and narration beforehand.
func Identifier(txn common.Transaction) string {
	if ref := strings.TrimSpace(txn.RefNo); ref != "" {
		return refPrefix + ref
	}
	return hashPrefix + contentHash(txn)
}

func contentHash(txn common.Transaction) string {
	key := txn.Date + "|" +
		strings.ToLower(strings.TrimSpace(txn.Narration)) + "|" +
		common.FormatAmount(txn.Amount())
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// RemoveDuplicates keeps the first transaction per identifier, preserving order.
func RemoveDuplicates(txns []common.Transaction) []common.Transaction {
	seen := make(map[string]struct{}, len(txns))
	out := make([]common.Transaction, 0, len(txns))
	for _, t := range txns {
		id := Identifier(t)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, t)
	}
	return out
}

// AreTransactionsDuplicate compares reference numbers when both sides have
// one, and content hashes otherwise. It disagrees with RemoveDuplicates when
// only one side carries a reference: equal content is a duplicate here while
// the two identifiers differ.
func AreTransactionsDuplicate(a, b common.Transaction) bool {
	refA, refB := strings.TrimSpace(a.RefNo), strings.TrimSpace(b.RefNo)
	if refA != "" && refB != "" {
		return refA == refB
	}
	return contentHash(a) == contentHash(b)
}
