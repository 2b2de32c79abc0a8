// Package api provides the HTTP surface of ledgr: file extraction, the
// upload contract and read/tag access to stored transactions.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aqlanhadi/ledgr/extractor"
	"github.com/aqlanhadi/ledgr/extractor/common"
	"github.com/aqlanhadi/ledgr/extractor/tabular"
	"github.com/aqlanhadi/ledgr/ledger"
	"github.com/rs/zerolog"
)

// Store is the storage the server needs. The server runs without one, but
// storage endpoints then answer 503.
type Store interface {
	ledger.TransactionStore
	ledger.TransactionReader
	ledger.FixedDepositStore
	ledger.UploadRecorder
	ListFixedDeposits(ctx context.Context) ([]common.FixedDeposit, error)
	RecentUploads(ctx context.Context, limit int) ([]ledger.UploadResult, error)
	Ping(ctx context.Context) error
}

// Config holds the API server configuration
type Config struct {
	Port           string
	Store          Store
	Logger         zerolog.Logger
	MaxUploadBytes int64
}

// DefaultConfig returns the default API configuration
func DefaultConfig() Config {
	return Config{
		Port:           ":8080",
		Logger:         zerolog.Nop(),
		MaxUploadBytes: 32 << 20,
	}
}

// Server represents the HTTP API server
type Server struct {
	config Config
	mux    *http.ServeMux
}

// New creates a new API server with the given configuration
func New(cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// registerRoutes sets up the API endpoints
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /extract", s.handleExtract)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("GET /transactions", s.handleListTransactions)
	s.mux.HandleFunc("PUT /transactions/{id}/tags", s.handleUpdateTags)
	s.mux.HandleFunc("POST /transactions/{id}/tags", s.handleAddTags)
	s.mux.HandleFunc("DELETE /transactions/{id}/tags/{tag}", s.handleRemoveTag)
	s.mux.HandleFunc("POST /fixed-deposits", s.handleUploadFixedDeposits)
	s.mux.HandleFunc("GET /fixed-deposits", s.handleListFixedDeposits)
	s.mux.HandleFunc("GET /uploads", s.handleListUploads)
}

// Handler returns the http.Handler for the server, wrapped in middleware.
// This allows the server to be used with custom http.Server configurations
func (s *Server) Handler() http.Handler {
	return chain(s.mux, RequestID(s.config.Logger), Logger, Recovery)
}

// Start starts the HTTP server and stops it when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info().Str("addr", s.config.Port).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.config.Logger.Info().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "storage": "disabled"}
	if s.config.Store != nil {
		resp["storage"] = "ok"
		if err := s.config.Store.Ping(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["storage"] = err.Error()
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// readUpload returns the bytes and name of the multipart "file" field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*bytes.Reader, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "Could not parse multipart form: "+err.Error())
		return nil, "", false
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Could not get uploaded file: "+err.Error())
		return nil, "", false
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Could not read file: "+err.Error())
		return nil, "", false
	}
	return bytes.NewReader(fileBytes), handler.Filename, true
}

// handleExtract parses an uploaded file without storing anything
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	fileReader, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	if isTrue(r.FormValue("text_only")) {
		s.handleTextOnlyExtract(w, fileReader, filename)
		return
	}

	var opts extractor.Options
	if raw := r.FormValue("mapping"); raw != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid mapping: "+err.Error())
			return
		}
		opts.Mapping = tabular.FromMap(m, nil)
	}

	result, err := extractor.ProcessReader(fileReader, filename, opts)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if result.Kind == extractor.KindFixedDeposit {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"filename":       filename,
			"fixed_deposits": result.FixedDeposits,
		})
		return
	}

	resp := map[string]interface{}{
		"filename":          filename,
		"headers":           result.Headers,
		"rows":              result.Rows,
		"errors":            nonNilErrors(result.Errors),
		"suggested_mapping": result.SuggestedMapping,
	}
	if len(result.MappingProblems) > 0 {
		resp["mapping_problems"] = result.MappingProblems
	} else if opts.Mapping != nil {
		resp["transactions"] = result.Transactions
		resp["dropped"] = result.Dropped
	}
	WriteJSON(w, http.StatusOK, resp)
}

// handleTextOnlyExtract returns the raw PDF text
func (s *Server) handleTextOnlyExtract(w http.ResponseWriter, reader *bytes.Reader, filename string) {
	doc, err := common.ExtractPDFText(reader)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Could not extract text from file: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"filename":   filename,
		"text":       doc.Text,
		"page_count": doc.PageCount,
		"metadata":   doc.Metadata,
	})
}

type uploadRequest struct {
	Transactions []map[string]interface{} `json:"transactions"`
	Mapping      map[string]string        `json:"mapping"`
	Source       string                   `json:"source"`
}

type uploadResponse struct {
	Success    bool   `json:"success"`
	BatchID    string `json:"batch_id"`
	Uploaded   int    `json:"uploaded"`
	Total      int    `json:"total"`
	Duplicates int    `json:"duplicates"`
	Dropped    int    `json:"dropped"`
}

// handleUpload maps, dedupes and stores confirmed rows
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	rows := make([]common.ParsedRow, 0, len(req.Transactions))
	for _, raw := range req.Transactions {
		rows = append(rows, toParsedRow(raw))
	}
	var mapping *tabular.ColumnMapping
	if len(req.Mapping) > 0 {
		mapping = tabular.FromMap(req.Mapping, nil)
	}

	uploader := ledger.NewUploader(s.config.Store)
	uploader.Source = req.Source
	result, err := uploader.Upload(r.Context(), rows, mapping)
	if err != nil {
		WriteError(w, uploadStatus(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, uploadResponse{
		Success:    true,
		BatchID:    result.BatchID,
		Uploaded:   result.Uploaded,
		Total:      result.Total,
		Duplicates: result.Duplicates,
		Dropped:    result.Dropped,
	})
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidMapping), errors.Is(err, ledger.ErrEmptyBatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleListTransactions returns stored transactions, optionally grouped
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	q := r.URL.Query()

	mode, err := ledger.ParseGroupMode(q.Get("group"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := ledger.DefaultOptions()
	if raw := q.Get("threshold"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			WriteError(w, http.StatusBadRequest, "threshold must be a number between 0 and 1")
			return
		}
		opts.Threshold = threshold
	}
	list := ledger.ListOptions{Tag: strings.TrimSpace(q.Get("tag"))}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		list.Limit = limit
	}

	txns, err := s.config.Store.ListTransactions(r.Context(), list)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	grouped, err := ledger.Group(txns, mode, opts)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": grouped,
		"count":        len(grouped),
	})
}

// handleUpdateTags replaces the tags of one transaction
func (s *Server) handleUpdateTags(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := r.PathValue("id")

	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	s.saveTags(w, r, id, ledger.NormalizeTags(req.Tags))
}

// handleAddTags merges tags into the existing ones
func (s *Server) handleAddTags(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	s.editTags(w, r, func(txn *common.Transaction) { ledger.AddTags(txn, req.Tags...) })
}

// handleRemoveTag drops one tag, ignoring case
func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	tag := r.PathValue("tag")
	s.editTags(w, r, func(txn *common.Transaction) { ledger.RemoveTag(txn, tag) })
}

func (s *Server) editTags(w http.ResponseWriter, r *http.Request, edit func(*common.Transaction)) {
	id := r.PathValue("id")
	txn, err := s.config.Store.GetTransaction(r.Context(), id)
	if err != nil {
		writeTagError(w, id, err)
		return
	}
	edit(&txn)
	s.saveTags(w, r, id, txn.Tags)
}

func (s *Server) saveTags(w http.ResponseWriter, r *http.Request, id string, tags []string) {
	if err := s.config.Store.UpdateTags(r.Context(), id, tags); err != nil {
		writeTagError(w, id, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"id": id, "tags": tags})
}

func writeTagError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("transaction %s not found", id))
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}

// handleUploadFixedDeposits extracts fixed deposits from a PDF and stores them
func (s *Server) handleUploadFixedDeposits(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	fileReader, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	result, err := extractor.ProcessReader(fileReader, filename, extractor.Options{})
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if result.Kind != extractor.KindFixedDeposit {
		WriteError(w, http.StatusBadRequest, "fixed deposits must be uploaded as a PDF")
		return
	}

	written, err := s.config.Store.UpsertFixedDeposits(r.Context(), result.FixedDeposits)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"fixed_deposits": result.FixedDeposits,
		"count":          written,
	})
}

func (s *Server) handleListFixedDeposits(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	records, err := s.config.Store.ListFixedDeposits(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"fixed_deposits": records, "count": len(records)})
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	uploads, err := s.config.Store.RecentUploads(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"uploads": uploads})
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.config.Store == nil {
		WriteError(w, http.StatusServiceUnavailable, "storage is not configured")
		return false
	}
	return true
}

// toParsedRow turns a JSON object into string cells.
func toParsedRow(raw map[string]interface{}) common.ParsedRow {
	row := make(common.ParsedRow, len(raw))
	for k, v := range raw {
		row[k] = cellString(v)
	}
	return row
}

func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func nonNilErrors(errs []common.RowError) []common.RowError {
	if errs == nil {
		return []common.RowError{}
	}
	return errs
}

func isTrue(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
