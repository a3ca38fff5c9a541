/*
handlers.go - HTTP API handlers for the transactions service

PURPOSE:
  Exposes CSV ingest and per-user summaries via REST. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  GET  /health                 Liveness check
  POST /upload?replace={bool}  Ingest a CSV of transactions
  GET  /summary/{user_id}      Per-user stats over an optional date range

REQUEST FLOW (upload):
  1. Check the multipart file's mimetype (reject before reading content)
  2. Spool the upload to a temp file (always removed)
  3. Validate the header set
  4. Bulk load via txn.Loader

ERROR HANDLING:
  Each taxonomy entry maps to exactly one status:
  - 415: Unsupported media type
  - 400: Empty file, header mismatch, row cast failure, malformed params
  - 422: Malformed date or start after end
  - 404: Zero matching rows for a summary
  - 500: Storage failures

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
  - txn: Validation, decoding and load semantics
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/transactions-service/logging"
	"github.com/warp/transactions-service/txn"
)

// Mimetypes accepted for CSV uploads.
var allowedMimetypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true,
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Any txn.Store
// implementation can back it; main injects the SQLite store.
type Handler struct {
	Store  txn.Store
	loader *txn.Loader
	log    zerolog.Logger
}

// NewHandler creates a new handler with the given store.
func NewHandler(store txn.Store) *Handler {
	return &Handler{
		Store:  store,
		loader: txn.NewLoader(store),
		log:    logging.WithComponent("api"),
	}
}

// =============================================================================
// INGEST
// =============================================================================

// Health reports service liveness.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Upload ingests a multipart CSV file into the transactions table.
// POST /upload?replace={bool}
// Every log line for one upload attempt, success or failure, carries the
// same load_id.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	loadID := uuid.NewString()
	log := h.log.With().Str("load_id", loadID).Logger()

	replace := false
	if v := r.URL.Query().Get("replace"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Warn().Err(err).Str("replace", v).Msg("upload rejected")
			writeError(w, http.StatusBadRequest, "Invalid replace parameter", err)
			return
		}
		replace = b
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		log.Warn().Err(err).Msg("upload rejected")
		writeError(w, http.StatusBadRequest, "Missing multipart field 'file'", err)
		return
	}
	defer file.Close()

	if !allowedCSVMimetype(header.Header.Get("Content-Type")) {
		log.Warn().Str("content_type", header.Header.Get("Content-Type")).Msg("upload rejected")
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported media type. Provide a CSV file.", nil)
		return
	}

	tmpPath, err := spoolToTemp(file)
	if err != nil {
		log.Error().Err(err).Msg("failed to spool upload")
		writeError(w, http.StatusInternalServerError, "Failed to store upload", err)
		return
	}
	defer os.Remove(tmpPath)

	if err := txn.ValidateHeadersFile(tmpPath); err != nil {
		log.Warn().Err(err).Str("filename", header.Filename).Msg("upload rejected")
		writeError(w, http.StatusBadRequest, "Invalid CSV", err)
		return
	}

	outcome, err := h.loader.Load(r.Context(), tmpPath, replace)
	if err != nil {
		if errors.Is(err, txn.ErrBadRow) || errors.Is(err, txn.ErrBadHeader) || errors.Is(err, txn.ErrEmptyFile) {
			log.Warn().Err(err).Str("filename", header.Filename).Msg("upload rejected")
			writeError(w, http.StatusBadRequest, "Failed to load CSV", err)
			return
		}
		log.Error().Err(err).Str("filename", header.Filename).Msg("csv load failed")
		writeError(w, http.StatusInternalServerError, "Failed to load CSV", err)
		return
	}

	log.Info().
		Str("filename", header.Filename).
		Int64("rows", outcome.RowsAdded).
		Float64("seconds", outcome.Seconds).
		Bool("replaced", outcome.Replaced).
		Msg("csv load completed")

	writeJSON(w, http.StatusOK, UploadResponse{
		Rows:     outcome.RowsAdded,
		Seconds:  outcome.Seconds,
		Replaced: outcome.Replaced,
	})
}

// =============================================================================
// QUERY
// =============================================================================

// Summary returns count/min/max/mean and the most purchased product for a
// user within an optional inclusive date range.
// GET /summary/{user_id}?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user_id (must be an integer)", err)
		return
	}

	rng := txn.DefaultRange()
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Invalid start date (use YYYY-MM-DD)", err)
			return
		}
		rng.Start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Invalid end date (use YYYY-MM-DD)", err)
			return
		}
		// Inclusive end: cover the whole final day
		rng.End = t.Add(24*time.Hour - time.Microsecond)
	}
	if !rng.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "start must be on or before end", txn.ErrInvalidRange)
		return
	}

	summary, err := h.Store.Summarise(r.Context(), userID, rng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarise transactions", err)
		return
	}
	if summary.Count == 0 {
		writeError(w, http.StatusNotFound, "No transactions for user in range", nil)
		return
	}

	writeJSON(w, http.StatusOK, newSummaryResponse(userID, rng, summary))
}

// =============================================================================
// HELPERS
// =============================================================================

func allowedCSVMimetype(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return allowedMimetypes[mediaType]
}

// spoolToTemp copies the uploaded part to a temp file so the validator and
// the loader can each read it from the start. The caller removes it.
func spoolToTemp(src io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*.csv")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
