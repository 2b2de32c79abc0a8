package common

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCategory is assigned to every transaction created from an upload.
const DefaultCategory = "Uncategorized"

// ParsedRow maps a normalized header to the raw cell value of one source row.
type ParsedRow map[string]string

// RowError is a recoverable problem with a single source row.
type RowError struct {
	Message string `json:"message"`
	Row     int    `json:"row,omitempty"`
}

// ParseResult is what every tabular adapter produces.
// Headers keeps the source column order.
type ParseResult struct {
	Headers []string    `json:"headers"`
	Rows    []ParsedRow `json:"rows"`
	Errors  []RowError  `json:"errors"`
}

type Transaction struct {
	ID             string           `json:"id,omitempty"`
	Date           string           `json:"date"`
	Narration      string           `json:"narration"`
	RefNo          string           `json:"ref_no,omitempty"`
	ValueDate      string           `json:"value_date,omitempty"`
	WithdrawalAmt  decimal.Decimal  `json:"withdrawal_amt"`
	DepositAmt     decimal.Decimal  `json:"deposit_amt"`
	ClosingBalance *decimal.Decimal `json:"closing_balance,omitempty"`
	Tags           []string         `json:"tags"`
	Category       string           `json:"category"`
}

// NewTransaction returns a transaction carrying the ledger defaults.
func NewTransaction(date, narration string) Transaction {
	return Transaction{
		Date:          date,
		Narration:     strings.TrimSpace(narration),
		WithdrawalAmt: decimal.Zero,
		DepositAmt:    decimal.Zero,
		Tags:          []string{},
		Category:      DefaultCategory,
	}
}

// Amount returns the withdrawal if nonzero, otherwise the deposit.
func (t Transaction) Amount() decimal.Decimal {
	if !t.WithdrawalAmt.IsZero() {
		return t.WithdrawalAmt
	}
	return t.DepositAmt
}

// Fixed deposit statuses.
const (
	StatusActive  = "Active"
	StatusClosed  = "Closed"
	StatusMatured = "Matured"
	StatusPending = "Pending"
)

type FixedDeposit struct {
	FDNumber     string           `json:"fd_number"`
	PrincipalAmt *decimal.Decimal `json:"principal_amt,omitempty"`
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty"`
	MaturityDate string           `json:"maturity_date,omitempty"`
	MaturityAmt  *decimal.Decimal `json:"maturity_amt,omitempty"`
	Status       string           `json:"status"`
}
