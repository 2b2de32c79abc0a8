package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/aqlanhadi/ledgr/ledger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	txns      []common.Transaction
	seen      map[string]bool
	tags      map[string][]string
	deposits  []common.FixedDeposit
	uploads   []ledger.UploadResult
	upsertErr error
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: map[string]bool{}, tags: map[string][]string{}}
}

func (f *fakeStore) UpsertTransactions(_ context.Context, txns []common.Transaction) ([]string, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	var ids []string
	for _, t := range txns {
		key := ledger.Identifier(t)
		if f.seen[key] {
			continue
		}
		f.seen[key] = true
		t.ID = key
		f.txns = append(f.txns, t)
		ids = append(ids, key)
	}
	return ids, nil
}

func (f *fakeStore) ListTransactions(_ context.Context, opts ledger.ListOptions) ([]common.Transaction, error) {
	out := f.txns
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeStore) GetTransaction(_ context.Context, id string) (common.Transaction, error) {
	for _, t := range f.txns {
		if t.ID != id {
			continue
		}
		if tags, ok := f.tags[id]; ok {
			t.Tags = tags
		}
		return t, nil
	}
	return common.Transaction{}, ledger.ErrNotFound
}

func (f *fakeStore) UpdateTags(_ context.Context, id string, tags []string) error {
	if !f.seen[id] {
		return ledger.ErrNotFound
	}
	f.tags[id] = tags
	return nil
}

func (f *fakeStore) UpsertFixedDeposits(_ context.Context, records []common.FixedDeposit) (int, error) {
	f.deposits = append(f.deposits, records...)
	return len(records), nil
}

func (f *fakeStore) RecordUpload(_ context.Context, result ledger.UploadResult) error {
	f.uploads = append(f.uploads, result)
	return nil
}

func (f *fakeStore) ListFixedDeposits(context.Context) ([]common.FixedDeposit, error) {
	return f.deposits, nil
}

func (f *fakeStore) RecentUploads(_ context.Context, limit int) ([]ledger.UploadResult, error) {
	return f.uploads, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func newTestServer(store Store) *Server {
	cfg := DefaultConfig()
	cfg.Store = store
	return New(cfg)
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func multipartFile(t *testing.T, path, filename, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, path string, v interface{}) *http.Request {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return httptest.NewRequest(method, path, bytes.NewReader(b))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Port)
	assert.Nil(t, cfg.Store)
}

func TestHealthEndpoint(t *testing.T) {
	w := do(t, New(DefaultConfig()), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	resp := decode(t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "disabled", resp["storage"])
}

func TestHealthEndpoint_StorageDown(t *testing.T) {
	store := newFakeStore()
	store.pingErr = errors.New("connection refused")

	resp := decode(t, do(t, newTestServer(store), httptest.NewRequest(http.MethodGet, "/health", nil)))

	assert.Equal(t, "degraded", resp["status"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")

	w := do(t, New(DefaultConfig()), req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestExtractEndpoint_MethodNotAllowed(t *testing.T) {
	w := do(t, New(DefaultConfig()), httptest.NewRequest(http.MethodGet, "/extract", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestExtractEndpoint_NoFile(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xxx")

	w := do(t, New(DefaultConfig()), req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractEndpoint_CSV(t *testing.T) {
	csv := "Bank export\nDate,Narration,Withdrawal,Deposit,Balance\n01-01-2024,ATM WDL,500,,9500\n"

	w := do(t, New(DefaultConfig()), multipartFile(t, "/extract", "jan.csv", csv))

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "jan.csv", resp["filename"])
	assert.Len(t, resp["rows"], 1)
	assert.Equal(t, []interface{}{}, resp["errors"])
	mapping := resp["suggested_mapping"].(map[string]interface{})
	assert.Equal(t, "withdrawal_amt", mapping["withdrawal"])
}

func TestExtractEndpoint_WithMapping(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "jan.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Date,Narration,Withdrawal\n01-01-2024,ATM WDL,500\n,NO DATE,1\n"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("mapping", `{"date":"date","narration":"narration","withdrawal":"withdrawal_amt"}`))
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	w := do(t, New(DefaultConfig()), req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Len(t, resp["transactions"], 1)
	assert.Len(t, resp["dropped"], 1)
	assert.NotContains(t, resp, "mapping_problems")
}

func TestExtractEndpoint_UnsupportedFormat(t *testing.T) {
	w := do(t, New(DefaultConfig()), multipartFile(t, "/extract", "export.numbers", "x"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "unsupported file format")
}

func TestUpload_Contract(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)
	body := map[string]interface{}{
		"transactions": []map[string]interface{}{
			{"Txn Date": "10-01-2024", "Details": "ATM WDL", "Debit": 500},
			{"Txn Date": "10-01-2024", "Details": "ATM WDL", "Debit": 500},
			{"Txn Date": "11-01-2024", "Details": "SALARY", "Credit": "50,000.00"},
			{"Txn Date": nil, "Details": "NO DATE"},
		},
		"mapping": map[string]string{
			"Txn Date": "date", "Details": "narration", "Debit": "withdrawal_amt", "Credit": "deposit_amt",
		},
	}

	w := do(t, s, jsonRequest(t, http.MethodPost, "/upload", body))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(2), resp["uploaded"])
	assert.Equal(t, float64(3), resp["total"])
	assert.Equal(t, float64(1), resp["duplicates"])
	assert.Equal(t, float64(1), resp["dropped"])
	require.Len(t, store.txns, 2)
	assert.Equal(t, "500", store.txns[0].WithdrawalAmt.String())
	assert.Len(t, store.uploads, 1)
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name   string
		store  func() *fakeStore
		body   interface{}
		status int
	}{
		{
			name:   "invalid mapping",
			store:  newFakeStore,
			body:   map[string]interface{}{"transactions": []map[string]interface{}{{"a": "x"}}, "mapping": map[string]string{"a": "narration"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "empty batch",
			store:  newFakeStore,
			body:   map[string]interface{}{"transactions": []map[string]interface{}{}, "mapping": map[string]string{"d": "date", "n": "narration"}},
			status: http.StatusBadRequest,
		},
		{
			name: "storage failure",
			store: func() *fakeStore {
				s := newFakeStore()
				s.upsertErr = errors.New("disk full")
				return s
			},
			body:   map[string]interface{}{"transactions": []map[string]interface{}{{"d": "01-01-2024", "n": "x"}}, "mapping": map[string]string{"d": "date", "n": "narration"}},
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(tt.store()), jsonRequest(t, http.MethodPost, "/upload", tt.body))
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestUpload_BadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{"))
	w := do(t, newTestServer(newFakeStore()), req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpload_NoStore(t *testing.T) {
	w := do(t, New(DefaultConfig()), jsonRequest(t, http.MethodPost, "/upload", map[string]interface{}{}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func seededStore(t *testing.T) *fakeStore {
	t.Helper()
	store := newFakeStore()
	txns := []common.Transaction{
		common.NewTransaction("2024-01-01", "UBER TRIP 123"),
		common.NewTransaction("2024-01-02", "UBER TRIP 456"),
		common.NewTransaction("2024-01-02", "SWIGGY ORDER"),
	}
	txns[0].WithdrawalAmt = common.MustDecimal("100")
	txns[1].WithdrawalAmt = common.MustDecimal("50")
	txns[2].WithdrawalAmt = common.MustDecimal("20")
	_, err := store.UpsertTransactions(context.Background(), txns)
	require.NoError(t, err)
	return store
}

func TestListTransactions_Grouping(t *testing.T) {
	s := newTestServer(seededStore(t))

	resp := decode(t, do(t, s, httptest.NewRequest(http.MethodGet, "/transactions?group=narration", nil)))
	assert.Equal(t, float64(2), resp["count"])

	resp = decode(t, do(t, s, httptest.NewRequest(http.MethodGet, "/transactions?group=date", nil)))
	assert.Equal(t, float64(2), resp["count"])
	first := resp["transactions"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "2024-01-02", first["date"])
	assert.Equal(t, "70", first["withdrawal_amt"])

	resp = decode(t, do(t, s, httptest.NewRequest(http.MethodGet, "/transactions?limit=1", nil)))
	assert.Equal(t, float64(1), resp["count"])
}

func TestListTransactions_BadParams(t *testing.T) {
	s := newTestServer(seededStore(t))
	for _, q := range []string{"group=weekly", "threshold=2", "threshold=abc", "limit=-1"} {
		w := do(t, s, httptest.NewRequest(http.MethodGet, "/transactions?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestUpdateTags(t *testing.T) {
	store := seededStore(t)
	s := newTestServer(store)
	id := store.txns[0].ID

	w := do(t, s, jsonRequest(t, http.MethodPut, "/transactions/"+id+"/tags", map[string][]string{
		"tags": {" travel ", "Travel", "", "work"},
	}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"travel", "work"}, store.tags[id])

	w = do(t, s, jsonRequest(t, http.MethodPut, "/transactions/missing/tags", map[string][]string{"tags": {"x"}}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddAndRemoveTagEndpoints(t *testing.T) {
	store := seededStore(t)
	s := newTestServer(store)
	id := store.txns[0].ID

	w := do(t, s, jsonRequest(t, http.MethodPost, "/transactions/"+id+"/tags", map[string][]string{
		"tags": {"travel", " Work "},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"travel", "Work"}, store.tags[id])

	w = do(t, s, jsonRequest(t, http.MethodPost, "/transactions/"+id+"/tags", map[string][]string{
		"tags": {"TRAVEL", "uber"},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"travel", "Work", "uber"}, store.tags[id])

	w = do(t, s, httptest.NewRequest(http.MethodDelete, "/transactions/"+id+"/tags/work", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"travel", "uber"}, store.tags[id])

	w = do(t, s, httptest.NewRequest(http.MethodDelete, "/transactions/missing/tags/work", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadFixedDeposits_RequiresPDF(t *testing.T) {
	w := do(t, newTestServer(newFakeStore()), multipartFile(t, "/fixed-deposits", "jan.csv", "Date,Narration\n"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFixedDeposits(t *testing.T) {
	store := newFakeStore()
	store.deposits = []common.FixedDeposit{{FDNumber: "12345678", Status: common.StatusActive}}

	resp := decode(t, do(t, newTestServer(store), httptest.NewRequest(http.MethodGet, "/fixed-deposits", nil)))

	assert.Equal(t, float64(1), resp["count"])
}

func TestListUploads(t *testing.T) {
	store := newFakeStore()
	store.uploads = []ledger.UploadResult{{BatchID: "b1", Total: 3}}
	s := newTestServer(store)

	resp := decode(t, do(t, s, httptest.NewRequest(http.MethodGet, "/uploads", nil)))
	assert.Len(t, resp["uploads"], 1)

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/uploads?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "", cellString(nil))
	assert.Equal(t, "500", cellString(float64(500)))
	assert.Equal(t, "12.5", cellString(12.5))
	assert.Equal(t, "true", cellString(true))
	assert.Equal(t, "x", cellString("x"))
}

func TestRecovery(t *testing.T) {
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), RequestID(zerolog.Nop()), Recovery)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "Internal server error", resp["error"])
	assert.Equal(t, "req-42", resp["request_id"])
}
