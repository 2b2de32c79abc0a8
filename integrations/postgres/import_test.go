package postgres

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/aqlanhadi/ledgr/extractor/tabular"
	"github.com/aqlanhadi/ledgr/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStores struct {
	seen     map[string]bool
	deposits []common.FixedDeposit
}

func (f *fakeStores) UpsertTransactions(_ context.Context, txns []common.Transaction) ([]string, error) {
	var ids []string
	for _, t := range txns {
		id := ledger.Identifier(t)
		if f.seen[id] {
			continue
		}
		f.seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStores) UpsertFixedDeposits(_ context.Context, records []common.FixedDeposit) (int, error) {
	f.deposits = append(f.deposits, records...)
	return len(records), nil
}

const importCSV = "Date,Narration,Withdrawal,Deposit,Balance\n" +
	"01-01-2024,ATM WDL,500,,9500\n" +
	"01-01-2024,ATM WDL,500,,9000\n" +
	"02-01-2024,SALARY,,50000,59000\n" +
	",NO DATE,1,,\n"

func writeImportFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImport_File(t *testing.T) {
	store := &fakeStores{seen: map[string]bool{}}
	path := writeImportFile(t, t.TempDir(), "jan.csv", importCSV)

	result, err := Import(context.Background(), store, path, ImportOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 2, result.Uploaded)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.Dropped)
	assert.Empty(t, result.Errors)
}

func TestImport_DirectoryIsIdempotent(t *testing.T) {
	store := &fakeStores{seen: map[string]bool{}}
	dir := t.TempDir()
	writeImportFile(t, dir, "a.csv", importCSV)
	writeImportFile(t, dir, "b.csv", importCSV)
	writeImportFile(t, dir, "notes.numbers", "ignored")
	writeImportFile(t, dir, "empty.csv", "Date,Narration\n")

	result, err := Import(context.Background(), store, dir, ImportOptions{})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, result.Uploaded)
	assert.Equal(t, 4, result.Duplicates)
}

func TestImport_InvalidMappingFails(t *testing.T) {
	store := &fakeStores{seen: map[string]bool{}}
	path := writeImportFile(t, t.TempDir(), "jan.csv", importCSV)
	m := tabular.NewColumnMapping()
	m.Set("narration", tabular.FieldNarration)

	result, err := Import(context.Background(), store, path, ImportOptions{Mapping: m})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "jan.csv: "))
	assert.Contains(t, result.Errors[0], "no column mapped to date")
}

func TestImport_UnsupportedFileFails(t *testing.T) {
	store := &fakeStores{seen: map[string]bool{}}
	path := writeImportFile(t, t.TempDir(), "export.numbers", "x")

	result, err := Import(context.Background(), store, path, ImportOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
}

func TestImport_MissingPath(t *testing.T) {
	_, err := Import(context.Background(), &fakeStores{}, filepath.Join(t.TempDir(), "nope"), ImportOptions{})
	assert.Error(t, err)
}

func TestImportFixedDeposits(t *testing.T) {
	store := &fakeStores{seen: map[string]bool{}}
	result := &ImportResult{}
	records := []common.FixedDeposit{{FDNumber: "12345678", Status: common.StatusActive}}

	importFixedDeposits(context.Background(), store, "fd.pdf", records, result, func(string, ...any) {
		t.Fatal("unexpected failure")
	})
	importFixedDeposits(context.Background(), store, "empty.pdf", nil, result, nil)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.FixedDeposits)
	assert.Len(t, store.deposits, 1)
}

func TestInsertArgs(t *testing.T) {
	txn := common.NewTransaction("2024-01-01", "ATM WDL")
	txn.Tags = nil
	txn.Category = ""

	args := insertArgs(txn)

	require.Len(t, args, 10)
	assert.True(t, strings.HasPrefix(args[0].(string), "hash:"))
	assert.Nil(t, args[4].(*string))
	assert.Nil(t, args[7])
	assert.Equal(t, []string{}, args[8])
	assert.Equal(t, common.DefaultCategory, args[9])
}

func TestSchemaKeys(t *testing.T) {
	assert.Contains(t, ddl, "UNIQUE(identifier)")
	assert.Contains(t, ddl, "UNIQUE(fd_number)")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS uploads")
}
