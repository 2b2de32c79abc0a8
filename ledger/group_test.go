package ledger

import (
	"errors"
	"testing"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sums(items []DisplayTransaction) (decimal.Decimal, decimal.Decimal) {
	w, d := decimal.Zero, decimal.Zero
	for _, it := range items {
		w = w.Add(it.WithdrawalAmt)
		d = d.Add(it.DepositAmt)
	}
	return w, d
}

func TestGroup_None(t *testing.T) {
	in := []common.Transaction{
		txn("2024-01-01", "A", "1", ""),
		txn("2024-03-01", "B", "2", ""),
	}

	out, err := Group(in, GroupNone, DefaultOptions())

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Narration)
	assert.Equal(t, 1, out[0].Count)
	assert.False(t, out[0].IsGrouped)
}

func TestGroup_DateSumsAmounts(t *testing.T) {
	in := []common.Transaction{
		txn("2024-01-01", "ONE", "100", ""),
		txn("2024-01-01", "TWO", "50", ""),
	}

	out, err := Group(in, GroupDate, DefaultOptions())

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsGrouped)
	assert.Equal(t, 2, out[0].Count)
	assert.Equal(t, "150", out[0].WithdrawalAmt.String())
	assert.Equal(t, "2 transactions", out[0].Narration)
	assert.Equal(t, "group:date:2024-01-01", out[0].ID)
	assert.Len(t, out[0].Members, 2)
}

func TestGroup_DateOrderingAndBalance(t *testing.T) {
	first := txn("2024-01-01", "A", "10", "")
	first.ClosingBalance = common.DecimalPtr(common.MustDecimal("90"))
	last := txn("2024-01-01", "B", "", "5")
	last.ClosingBalance = common.DecimalPtr(common.MustDecimal("95"))

	in := []common.Transaction{
		first,
		txn("", "NO DATE", "1", ""),
		txn("2024-02-15", "C", "7", ""),
		last,
	}

	out, err := Group(in, GroupDate, DefaultOptions())

	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "2024-02-15", out[0].Date)
	assert.Equal(t, "1 transaction", out[0].Narration)
	assert.Equal(t, "2024-01-01", out[1].Date)
	require.NotNil(t, out[1].ClosingBalance)
	assert.Equal(t, "95", out[1].ClosingBalance.String())
	assert.Equal(t, "unknown", out[2].Date)

	inW, inD := decimal.NewFromInt(18), decimal.NewFromInt(5)
	outW, outD := sums(out)
	assert.True(t, inW.Equal(outW))
	assert.True(t, inD.Equal(outD))
}

func TestGroup_NarrationClusters(t *testing.T) {
	in := []common.Transaction{
		txn("2024-01-01", "UBER TRIP 123", "100", ""),
		txn("2024-01-03", "UBER TRIP 456", "50", ""),
		txn("2024-01-02", "SWIGGY ORDER", "20", ""),
	}

	out, err := Group(in, GroupNarration, Options{Threshold: 0.3})

	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "SWIGGY ORDER", out[0].Narration)
	assert.False(t, out[0].IsGrouped)

	uber := out[1]
	assert.True(t, uber.IsGrouped)
	assert.Equal(t, 2, uber.Count)
	assert.Equal(t, "UBER TRIP 123 (2 similar)", uber.Narration)
	assert.Equal(t, "2024-01-01", uber.Date)
	assert.Equal(t, "150", uber.WithdrawalAmt.String())
}

func TestGroup_NarrationEveryInputOnce(t *testing.T) {
	in := []common.Transaction{
		txn("2024-01-01", "UPI/ZOMATO ORDER", "1", ""),
		txn("2024-01-02", "NEFT-ACME PAYROLL", "", "1000"),
		txn("2024-01-03", "upi zomato order", "2", ""),
		txn("2024-01-04", "POS AMAZON", "3", ""),
		txn("2024-01-05", "ATM WDL", "4", ""),
		txn("2024-01-06", "ACME PAYROLL", "", "1000"),
		txn("2024-01-07", "ATM", "5", ""),
	}

	out, err := Group(in, GroupNarration, DefaultOptions())
	require.NoError(t, err)

	seen := 0
	for _, item := range out {
		if item.IsGrouped {
			seen += len(item.Members)
			assert.Equal(t, item.Count, len(item.Members))
		} else {
			seen++
		}
	}
	assert.Equal(t, len(in), seen)

	outW, outD := sums(out)
	assert.Equal(t, "15", outW.String())
	assert.Equal(t, "2000", outD.String())
}

func TestGroup_NarrationGuard(t *testing.T) {
	in := make([]common.Transaction, 4)

	_, err := Group(in, GroupNarration, Options{Threshold: 0.3, MaxNarrationBatch: 3})

	assert.True(t, errors.Is(err, ErrTooManyToGroup))
}

func TestParseGroupMode(t *testing.T) {
	mode, err := ParseGroupMode(" Date ")
	require.NoError(t, err)
	assert.Equal(t, GroupDate, mode)

	mode, err = ParseGroupMode("")
	require.NoError(t, err)
	assert.Equal(t, GroupNone, mode)

	_, err = ParseGroupMode("weekly")
	assert.Error(t, err)
}

func TestNormalizeNarration(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"UPI/ZOMATO ORDER", "zomato order"},
		{"  NEFT-ACME   Payroll ", "acme payroll"},
		{"IMPS: john doe transfer ref 1234", "john doe"},
		{"Uber trip payment", "uber trip"},
		{"UPIX SHOP", "upix shop"},
		{"atm", ""},
		{"Card swipe REF NO 99", "swipe"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeNarration(tt.in))
		})
	}
}

func TestNarrationDistance(t *testing.T) {
	assert.Equal(t, 0.0, NarrationDistance("", ""))
	assert.Equal(t, 0.0, NarrationDistance("Uber", "uber"))
	assert.InDelta(t, 3.0/13.0, NarrationDistance("uber trip 123", "uber trip 456"), 1e-9)
	assert.Equal(t, 1.0, NarrationDistance("abc", ""))
}

func TestDefaultOptions_FromConfig(t *testing.T) {
	defer viper.Reset()

	opts := DefaultOptions()
	assert.Equal(t, 0.3, opts.Threshold)
	assert.Equal(t, 500, opts.MaxNarrationBatch)

	viper.Set("grouping.narration_threshold", 0.1)
	viper.Set("grouping.max_narration_batch", 20)
	opts = DefaultOptions()
	assert.Equal(t, 0.1, opts.Threshold)
	assert.Equal(t, 20, opts.MaxNarrationBatch)
}
