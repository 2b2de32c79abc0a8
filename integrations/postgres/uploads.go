package postgres

import (
	"context"
	"fmt"

	"github.com/aqlanhadi/ledgr/ledger"
)

// RecordUpload stores the outcome of one upload batch.
func (db *DB) RecordUpload(ctx context.Context, result ledger.UploadResult) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO uploads (id, source, total, uploaded, duplicates, dropped, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, result.BatchID, result.Source, result.Total, result.Uploaded, result.Duplicates, result.Dropped, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}
	return nil
}

// RecentUploads returns the latest upload batches.
func (db *DB) RecentUploads(ctx context.Context, limit int) ([]ledger.UploadResult, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id::text, source, total, uploaded, duplicates, dropped, created_at
		FROM uploads
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	results := []ledger.UploadResult{}
	for rows.Next() {
		var r ledger.UploadResult
		if err := rows.Scan(&r.BatchID, &r.Source, &r.Total, &r.Uploaded, &r.Duplicates, &r.Dropped, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
