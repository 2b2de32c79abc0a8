package postgres

import (
	"context"
	"fmt"
)

const ddl = `
-- Transactions keyed by their natural identifier (ref:... or hash:...)
CREATE TABLE IF NOT EXISTS transactions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    identifier TEXT NOT NULL,
    date DATE NOT NULL,
    narration TEXT NOT NULL,
    ref_no TEXT NOT NULL DEFAULT '',
    value_date DATE,
    withdrawal_amt NUMERIC(18,2) NOT NULL DEFAULT 0,
    deposit_amt NUMERIC(18,2) NOT NULL DEFAULT 0,
    closing_balance NUMERIC(18,2),
    tags TEXT[] NOT NULL DEFAULT '{}',
    category TEXT NOT NULL DEFAULT 'Uncategorized',
    created_at TIMESTAMPTZ DEFAULT NOW(),

    UNIQUE(identifier)
);

CREATE TABLE IF NOT EXISTS fixed_deposits (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    fd_number TEXT NOT NULL,
    principal_amt NUMERIC(18,2),
    interest_rate NUMERIC(7,4),
    maturity_date DATE,
    maturity_amt NUMERIC(18,2),
    status TEXT NOT NULL DEFAULT 'Active',
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),

    UNIQUE(fd_number)
);

-- One row per upload batch
CREATE TABLE IF NOT EXISTS uploads (
    id UUID PRIMARY KEY,
    source TEXT NOT NULL DEFAULT '',
    total INTEGER NOT NULL,
    uploaded INTEGER NOT NULL,
    duplicates INTEGER NOT NULL,
    dropped INTEGER NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
CREATE INDEX IF NOT EXISTS idx_transactions_ref_no ON transactions(ref_no) WHERE ref_no != '';
CREATE INDEX IF NOT EXISTS idx_transactions_tags ON transactions USING GIN(tags);
`

// migrateDDL adds columns that older databases lack
const migrateDDL = `
DO $$ BEGIN
    IF NOT EXISTS (SELECT 1 FROM information_schema.columns
                   WHERE table_name = 'transactions' AND column_name = 'category') THEN
        ALTER TABLE transactions ADD COLUMN category TEXT NOT NULL DEFAULT 'Uncategorized';
    END IF;
END $$;
`

// EnsureSchema creates tables if they don't exist and runs migrations
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Run migrations for existing tables
	_, err = db.Pool.Exec(ctx, migrateDDL)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
