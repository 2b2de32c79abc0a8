package ledger

import (
	"context"

	"github.com/aqlanhadi/ledgr/extractor/common"
)

// TransactionStore persists a batch in one call. It returns the ids of rows
// that were newly inserted; rows whose identifier already exists are skipped.
type TransactionStore interface {
	UpsertTransactions(ctx context.Context, txns []common.Transaction) ([]string, error)
}

// FixedDepositStore upserts by fd_number and returns how many rows were written.
type FixedDepositStore interface {
	UpsertFixedDeposits(ctx context.Context, records []common.FixedDeposit) (int, error)
}

// UploadRecorder keeps a log of finished uploads. Optional.
type UploadRecorder interface {
	RecordUpload(ctx context.Context, result UploadResult) error
}

// ListOptions filters stored transactions. Zero values mean no filter.
type ListOptions struct {
	Limit int
	Tag   string
}

// TransactionReader reads back and edits stored transactions.
type TransactionReader interface {
	ListTransactions(ctx context.Context, opts ListOptions) ([]common.Transaction, error)
	// GetTransaction and UpdateTags return ErrNotFound for an unknown id.
	GetTransaction(ctx context.Context, id string) (common.Transaction, error)
	UpdateTags(ctx context.Context, id string, tags []string) error
}
