package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/aqlanhadi/ledgr/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const insertTransactionSQL = `
	INSERT INTO transactions (
		identifier, date, narration, ref_no, value_date,
		withdrawal_amt, deposit_amt, closing_balance, tags, category
	) VALUES ($1, $2::date, $3, $4, $5::date, $6, $7, $8, $9, $10)
	ON CONFLICT (identifier) DO NOTHING
	RETURNING id::text
`

const selectTransactionSQL = `
	SELECT id::text, date::text, narration, ref_no, COALESCE(value_date::text, ''),
	       withdrawal_amt, deposit_amt, closing_balance, tags, category
	FROM transactions`

// UpsertTransactions inserts the batch inside one database transaction.
// Rows whose identifier is already stored are skipped and keep their tags.
// On error nothing is committed and no ids are returned.
func (db *DB) UpsertTransactions(ctx context.Context, txns []common.Transaction) ([]string, error) {
	if len(txns) == 0 {
		return []string{}, nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range txns {
		batch.Queue(insertTransactionSQL, insertArgs(t)...)
	}

	br := tx.SendBatch(ctx, batch)
	ids := make([]string, 0, len(txns))
	for range txns {
		var id string
		if err := br.QueryRow().Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			br.Close()
			return nil, fmt.Errorf("failed to insert transaction: %w", err)
		}
		ids = append(ids, id)
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("failed to insert transactions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return ids, nil
}

func insertArgs(t common.Transaction) []any {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	category := t.Category
	if category == "" {
		category = common.DefaultCategory
	}
	return []any{
		ledger.Identifier(t), t.Date, t.Narration, t.RefNo, nullableString(t.ValueDate),
		t.WithdrawalAmt, t.DepositAmt, nullableDecimal(t.ClosingBalance), tags, category,
	}
}

// ListTransactions returns stored transactions, newest first.
func (db *DB) ListTransactions(ctx context.Context, opts ledger.ListOptions) ([]common.Transaction, error) {
	query := selectTransactionSQL + `
		WHERE ($1::text = '' OR $1::text = ANY(tags))
		ORDER BY date DESC, created_at ASC
	`
	args := []any{opts.Tag}
	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txns := []common.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// GetTransaction loads one stored transaction by id.
func (db *DB) GetTransaction(ctx context.Context, id string) (common.Transaction, error) {
	t, err := scanTransaction(db.Pool.QueryRow(ctx, selectTransactionSQL+` WHERE id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return common.Transaction{}, ledger.ErrNotFound
	}
	if err != nil {
		return common.Transaction{}, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func scanTransaction(row pgx.Row) (common.Transaction, error) {
	var t common.Transaction
	var balance decimal.NullDecimal
	if err := row.Scan(
		&t.ID, &t.Date, &t.Narration, &t.RefNo, &t.ValueDate,
		&t.WithdrawalAmt, &t.DepositAmt, &balance, &t.Tags, &t.Category,
	); err != nil {
		return common.Transaction{}, err
	}
	if balance.Valid {
		t.ClosingBalance = common.DecimalPtr(balance.Decimal)
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t, nil
}

// UpdateTags replaces the tags of one transaction.
func (db *DB) UpdateTags(ctx context.Context, id string, tags []string) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE transactions SET tags = $1 WHERE id::text = $2`, ledger.NormalizeTags(tags), id)
	if err != nil {
		return fmt.Errorf("failed to update tags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}
