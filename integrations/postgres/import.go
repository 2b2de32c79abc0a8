package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aqlanhadi/ledgr/extractor"
	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/aqlanhadi/ledgr/extractor/tabular"
	"github.com/aqlanhadi/ledgr/ledger"
	"github.com/rs/zerolog/log"
)

// ImportResult tracks the outcome of an import operation
type ImportResult struct {
	Processed     int      `json:"processed"`
	Skipped       int      `json:"skipped"`
	Failed        int      `json:"failed"`
	Uploaded      int      `json:"uploaded"`
	Duplicates    int      `json:"duplicates"`
	Dropped       int      `json:"dropped"`
	FixedDeposits int      `json:"fixed_deposits"`
	Errors        []string `json:"errors,omitempty"`
}

// ImportOptions configures the import behavior
type ImportOptions struct {
	// Mapping is applied to every tabular file; nil uses each file's suggestion.
	Mapping *tabular.ColumnMapping
}

// Stores is what an import writes to.
type Stores interface {
	ledger.TransactionStore
	ledger.FixedDepositStore
}

// Import handles both file and directory imports
func Import(ctx context.Context, store Stores, path string, opts ImportOptions) (*ImportResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	result := &ImportResult{}
	if !info.IsDir() {
		importFile(ctx, store, path, opts, result)
		return result, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var dataFiles []string
	for _, e := range entries {
		if !e.IsDir() && extractor.SupportedExtension(e.Name()) {
			dataFiles = append(dataFiles, filepath.Join(path, e.Name()))
		}
	}
	log.Info().Str("dir", path).Int("files", len(dataFiles)).Msg("scanning")

	for _, filePath := range dataFiles {
		importFile(ctx, store, filePath, opts, result)
	}
	return result, nil
}

// Import runs Import against this database.
func (db *DB) Import(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	return Import(ctx, db, path, opts)
}

func importFile(ctx context.Context, store Stores, filePath string, opts ImportOptions, result *ImportResult) {
	fileName := filepath.Base(filePath)
	fail := func(format string, args ...any) {
		msg := fileName + ": " + fmt.Sprintf(format, args...)
		result.Failed++
		result.Errors = append(result.Errors, msg)
		log.Warn().Msg("FAIL " + msg)
	}

	extracted, err := extractor.ProcessFile(filePath, extractor.Options{Mapping: opts.Mapping})
	if err != nil {
		fail("%v", err)
		return
	}

	if extracted.Kind == extractor.KindFixedDeposit {
		importFixedDeposits(ctx, store, fileName, extracted.FixedDeposits, result, fail)
		return
	}

	mapping := opts.Mapping
	if mapping == nil {
		mapping = tabular.FromMap(extracted.SuggestedMapping, extracted.Headers)
	}
	uploader := ledger.NewUploader(store)
	uploader.Source = fileName

	upload, err := uploader.Upload(ctx, extracted.Rows, mapping)
	switch {
	case errors.Is(err, ledger.ErrEmptyBatch):
		log.Info().Str("file", fileName).Msg("SKIP no valid transactions")
		result.Skipped++
		return
	case err != nil:
		fail("%v", err)
		return
	}

	result.Processed++
	result.Uploaded += upload.Uploaded
	result.Duplicates += upload.Duplicates
	result.Dropped += upload.Dropped
	log.Info().Str("file", fileName).Int("uploaded", upload.Uploaded).Int("duplicates", upload.Duplicates).Msg("OK")
}

func importFixedDeposits(ctx context.Context, store ledger.FixedDepositStore, fileName string, records []common.FixedDeposit, result *ImportResult, fail func(string, ...any)) {
	if len(records) == 0 {
		log.Info().Str("file", fileName).Msg("SKIP no fixed deposits found")
		result.Skipped++
		return
	}
	written, err := store.UpsertFixedDeposits(ctx, records)
	if err != nil {
		fail("%v", err)
		return
	}
	result.Processed++
	result.FixedDeposits += written
	log.Info().Str("file", fileName).Int("fixed_deposits", written).Msg("OK")
}
