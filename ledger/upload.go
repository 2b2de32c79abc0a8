package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/aqlanhadi/ledgr/extractor/tabular"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidMapping = errors.New("invalid column mapping")
	ErrEmptyBatch     = errors.New("no valid transactions to upload")
	ErrStorage        = errors.New("storage failure")
	ErrNotFound       = errors.New("transaction not found")
)

type UploadResult struct {
	BatchID    string    `json:"batch_id"`
	Source     string    `json:"source,omitempty"`
	Uploaded   int       `json:"uploaded"`
	Total      int       `json:"total"`
	Duplicates int       `json:"duplicates"`
	Dropped    int       `json:"dropped"`
	IDs        []string  `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

type Uploader struct {
	Store    TransactionStore
	Recorder UploadRecorder
	// Source labels the upload in the log, usually a filename.
	Source string
}

func NewUploader(store TransactionStore) *Uploader {
	u := &Uploader{Store: store}
	if r, ok := store.(UploadRecorder); ok {
		u.Recorder = r
	}
	return u
}

// Upload maps rows to transactions, removes duplicates across the whole
// batch and hands the result to storage in one call. A nil mapping means the
// suggested mapping is used; it must still validate.
func (u *Uploader) Upload(ctx context.Context, rows []common.ParsedRow, mapping *tabular.ColumnMapping) (UploadResult, error) {
	if mapping == nil {
		mapping = tabular.Suggest(common.ParseResult{Headers: headersOf(rows), Rows: rows})
	}
	if err := mapping.Validate(); err != nil {
		return UploadResult{}, fmt.Errorf("%w: %w", ErrInvalidMapping, err)
	}

	txns, drops := tabular.Apply(rows, mapping)
	if len(drops) > 0 {
		log.Warn().Int("dropped", len(drops)).Int("rows", len(rows)).Msg("dropped rows without date or narration")
	}
	if len(txns) == 0 {
		return UploadResult{}, ErrEmptyBatch
	}

	return u.upload(ctx, txns, len(drops))
}

// UploadTransactions dedupes already mapped transactions and stores them.
func (u *Uploader) UploadTransactions(ctx context.Context, txns []common.Transaction) (UploadResult, error) {
	if len(txns) == 0 {
		return UploadResult{}, ErrEmptyBatch
	}
	return u.upload(ctx, txns, 0)
}

func (u *Uploader) upload(ctx context.Context, txns []common.Transaction, dropped int) (UploadResult, error) {
	unique := RemoveDuplicates(txns)

	result := UploadResult{
		BatchID:   uuid.NewString(),
		Source:    u.Source,
		Total:     len(txns),
		Dropped:   dropped,
		CreatedAt: time.Now().UTC(),
	}
	logger := log.With().Str("batch_id", result.BatchID).Logger()

	ids, err := u.Store.UpsertTransactions(ctx, unique)
	if err != nil {
		if len(ids) > 0 {
			logger.Error().Err(err).Int("returned_ids", len(ids)).Msg("storage failed after returning ids, batch state unknown")
		}
		return result, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	result.IDs = ids
	result.Uploaded = len(ids)
	result.Duplicates = result.Total - result.Uploaded

	if u.Recorder != nil {
		if err := u.Recorder.RecordUpload(ctx, result); err != nil {
			logger.Warn().Err(err).Msg("could not record upload")
		}
	}
	logger.Info().
		Int("uploaded", result.Uploaded).
		Int("total", result.Total).
		Int("duplicates", result.Duplicates).
		Msg("upload complete")
	return result, nil
}

// headersOf returns the sorted union of row keys.
func headersOf(rows []common.ParsedRow) []string {
	seen := map[string]struct{}{}
	var headers []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)
	return headers
}
