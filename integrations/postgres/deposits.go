package postgres

import (
	"context"
	"fmt"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// UpsertFixedDeposits writes records keyed by fd_number. Existing rows are
// updated in place; fields the new record lacks keep their stored value.
func (db *DB) UpsertFixedDeposits(ctx context.Context, records []common.FixedDeposit) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO fixed_deposits (fd_number, principal_amt, interest_rate, maturity_date, maturity_amt, status)
			VALUES ($1, $2, $3, $4::date, $5, $6)
			ON CONFLICT (fd_number) DO UPDATE SET
				principal_amt = COALESCE(EXCLUDED.principal_amt, fixed_deposits.principal_amt),
				interest_rate = COALESCE(EXCLUDED.interest_rate, fixed_deposits.interest_rate),
				maturity_date = COALESCE(EXCLUDED.maturity_date, fixed_deposits.maturity_date),
				maturity_amt = COALESCE(EXCLUDED.maturity_amt, fixed_deposits.maturity_amt),
				status = EXCLUDED.status,
				updated_at = NOW()
		`,
			r.FDNumber, nullableDecimal(r.PrincipalAmt), nullableDecimal(r.InterestRate),
			nullableString(r.MaturityDate), nullableDecimal(r.MaturityAmt), r.Status,
		)
	}

	br := db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			return written, fmt.Errorf("failed to upsert fixed deposit %s: %w", r.FDNumber, err)
		}
		written++
	}
	return written, nil
}

// ListFixedDeposits returns stored deposits ordered by maturity.
func (db *DB) ListFixedDeposits(ctx context.Context) ([]common.FixedDeposit, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT fd_number, principal_amt, interest_rate, COALESCE(maturity_date::text, ''), maturity_amt, status
		FROM fixed_deposits
		ORDER BY maturity_date NULLS LAST, fd_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fixed deposits: %w", err)
	}
	defer rows.Close()

	records := []common.FixedDeposit{}
	for rows.Next() {
		var r common.FixedDeposit
		var principal, rate, maturity decimal.NullDecimal
		if err := rows.Scan(&r.FDNumber, &principal, &rate, &r.MaturityDate, &maturity, &r.Status); err != nil {
			return nil, fmt.Errorf("failed to scan fixed deposit: %w", err)
		}
		r.PrincipalAmt = optionalDecimal(principal)
		r.InterestRate = optionalDecimal(rate)
		r.MaturityAmt = optionalDecimal(maturity)
		records = append(records, r)
	}
	return records, rows.Err()
}

func optionalDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return common.DecimalPtr(d.Decimal)
}
