package tabular

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aqlanhadi/ledgr/extractor/common"
)

// Field is a canonical transaction field a source column can map to.
type Field string

const (
	FieldDate           Field = "date"
	FieldNarration      Field = "narration"
	FieldRefNo          Field = "ref_no"
	FieldValueDate      Field = "value_date"
	FieldWithdrawal     Field = "withdrawal_amt"
	FieldDeposit        Field = "deposit_amt"
	FieldClosingBalance Field = "closing_balance"
	// FieldAmount is a signed amount: negative is a withdrawal.
	FieldAmount Field = "amount"
	FieldSkip   Field = "skip"
)

var knownFields = map[Field]bool{
	FieldDate: true, FieldNarration: true, FieldRefNo: true, FieldValueDate: true,
	FieldWithdrawal: true, FieldDeposit: true, FieldClosingBalance: true,
	FieldAmount: true, FieldSkip: true,
}

// ColumnMapping assigns source columns to fields. Iteration follows the
// order in which columns were first set.
type ColumnMapping struct {
	columns []string
	fields  map[string]Field
}

func NewColumnMapping() *ColumnMapping {
	return &ColumnMapping{fields: map[string]Field{}}
}

// FromMap builds a mapping from a plain map. Columns listed in order come
// first in that order; the rest follow sorted by name.
func FromMap(m map[string]string, order []string) *ColumnMapping {
	cm := NewColumnMapping()
	for _, col := range order {
		if f, ok := m[col]; ok {
			cm.Set(col, Field(strings.TrimSpace(f)))
		}
	}
	rest := make([]string, 0, len(m))
	for col := range m {
		if _, ok := cm.fields[col]; !ok {
			rest = append(rest, col)
		}
	}
	sort.Strings(rest)
	for _, col := range rest {
		cm.Set(col, Field(strings.TrimSpace(m[col])))
	}
	return cm
}

// Set assigns or overrides the field for column.
func (m *ColumnMapping) Set(column string, field Field) {
	if _, ok := m.fields[column]; !ok {
		m.columns = append(m.columns, column)
	}
	m.fields[column] = field
}

// Field returns the field for column, or FieldSkip.
func (m *ColumnMapping) Field(column string) Field {
	if f, ok := m.fields[column]; ok {
		return f
	}
	return FieldSkip
}

func (m *ColumnMapping) Columns() []string {
	return append([]string(nil), m.columns...)
}

// Has reports whether any column maps to f.
func (m *ColumnMapping) Has(f Field) bool {
	for _, col := range m.columns {
		if m.fields[col] == f {
			return true
		}
	}
	return false
}

// ToMap is the plain wire form.
func (m *ColumnMapping) ToMap() map[string]string {
	out := make(map[string]string, len(m.columns))
	for _, col := range m.columns {
		out[col] = string(m.fields[col])
	}
	return out
}

// MappingError lists every problem found in a ColumnMapping.
type MappingError struct {
	Problems []string
}

func (e *MappingError) Error() string {
	return "invalid column mapping: " + strings.Join(e.Problems, "; ")
}

// Validate requires date and narration and rejects unknown fields.
func (m *ColumnMapping) Validate() error {
	var problems []string
	for _, col := range m.columns {
		if f := m.fields[col]; !knownFields[f] {
			problems = append(problems, fmt.Sprintf("column %q maps to unknown field %q", col, f))
		}
	}
	if !m.Has(FieldDate) {
		problems = append(problems, "no column mapped to date")
	}
	if !m.Has(FieldNarration) {
		problems = append(problems, "no column mapped to narration")
	}
	if len(problems) > 0 {
		return &MappingError{Problems: problems}
	}
	return nil
}

// Drop records why a row did not become a transaction.
type Drop struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Apply turns rows into transactions. Rows without a usable date or
// narration are dropped. The mapping must already be valid.
func Apply(rows []common.ParsedRow, mapping *ColumnMapping) ([]common.Transaction, []Drop) {
	txns := make([]common.Transaction, 0, len(rows))
	var drops []Drop

	for i, row := range rows {
		txn, reason := applyRow(row, mapping)
		if reason != "" {
			drops = append(drops, Drop{Row: i + 1, Reason: reason})
			continue
		}
		txns = append(txns, txn)
	}
	return txns, drops
}

func applyRow(row common.ParsedRow, mapping *ColumnMapping) (common.Transaction, string) {
	values := map[Field]string{}
	for _, col := range mapping.columns {
		f := mapping.fields[col]
		if f == FieldSkip {
			continue
		}
		// first non-empty column wins when several map to one field
		if v := strings.TrimSpace(row[col]); v != "" && values[f] == "" {
			values[f] = v
		}
	}

	date, ok := common.NormalizeDate(values[FieldDate])
	if !ok {
		return common.Transaction{}, fmt.Sprintf("missing or invalid date %q", values[FieldDate])
	}
	narration := strings.TrimSpace(values[FieldNarration])
	if narration == "" {
		return common.Transaction{}, "missing narration"
	}

	txn := common.NewTransaction(date, narration)
	txn.RefNo = values[FieldRefNo]
	if vd, ok := common.NormalizeDate(values[FieldValueDate]); ok {
		txn.ValueDate = vd
	}
	txn.WithdrawalAmt = common.NormalizeAmount(values[FieldWithdrawal]).Abs()
	txn.DepositAmt = common.NormalizeAmount(values[FieldDeposit]).Abs()

	if raw, ok := values[FieldAmount]; ok {
		amount := common.NormalizeAmount(raw)
		if amount.IsNegative() {
			txn.WithdrawalAmt = txn.WithdrawalAmt.Add(amount.Abs())
		} else {
			txn.DepositAmt = txn.DepositAmt.Add(amount)
		}
	}

	if raw, ok := values[FieldClosingBalance]; ok {
		balance := common.NormalizeAmount(raw)
		txn.ClosingBalance = &balance
	}
	return txn, ""
}
