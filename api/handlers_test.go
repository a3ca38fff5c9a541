package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/transactions-service/api"
	"github.com/warp/transactions-service/logging"
	"github.com/warp/transactions-service/store/sqlite"
	txnstore "github.com/warp/transactions-service/txn/store"
)

const csvHeader = "transaction_id,user_id,product_id,timestamp,transaction_amount\n"

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store)))
	t.Cleanup(srv.Close)
	return srv
}

// csvRequest builds a multipart upload with an explicit part Content-Type,
// which the default multipart writer cannot set.
func csvRequest(t *testing.T, url, body, mimetype string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="transactions.csv"`)
	partHeader.Set("Content-Type", mimetype)

	part, err := mw.CreatePart(partHeader)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func upload(t *testing.T, srv *httptest.Server, path, body, mimetype string) *http.Response {
	t.Helper()
	resp, err := srv.Client().Do(csvRequest(t, srv.URL+path, body, mimetype))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.HealthResponse](t, resp)
	assert.Equal(t, "ok", body.Status)
}

// =============================================================================
// UPLOAD
// =============================================================================

func TestUpload_Success(t *testing.T) {
	srv := newTestServer(t)

	csv := csvHeader +
		"t1,42,7,2024-01-01T10:00:00Z,9.99\n" +
		"t2,42,8,2024-01-02T10:00:00Z,20.01\n" +
		"t3,7,7,2024-01-03T10:00:00Z,5.00\n"

	resp := upload(t, srv, "/upload", csv, "text/csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.UploadResponse](t, resp)
	assert.Equal(t, int64(3), body.Rows)
	assert.False(t, body.Replaced)
	assert.Greater(t, body.Seconds, 0.0)
}

func TestUpload_AcceptedMimetypes(t *testing.T) {
	srv := newTestServer(t)

	for _, mt := range []string{"text/csv", "application/csv", "application/vnd.ms-excel", "text/csv; charset=utf-8"} {
		resp := upload(t, srv, "/upload", csvHeader+"t1,1,1,2024-01-01,1.00\n", mt)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "mimetype %q should be accepted", mt)
	}
}

func TestUpload_UnsupportedMediaType(t *testing.T) {
	srv := newTestServer(t)

	resp := upload(t, srv, "/upload", csvHeader+"t1,1,1,2024-01-01,1.00\n", "application/json")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	// Nothing was ingested.
	resp = get(t, srv, "/summary/1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpload_EmptyFile(t *testing.T) {
	srv := newTestServer(t)

	resp := upload(t, srv, "/upload", "", "text/csv")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Contains(t, body.Details, "empty")
}

func TestUpload_HeaderMismatch(t *testing.T) {
	srv := newTestServer(t)

	resp := upload(t, srv, "/upload", "transaction_id,user_id,product_id,when,amount\n", "text/csv")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Contains(t, body.Details, "timestamp")
	assert.Contains(t, body.Details, "when")
}

func TestUpload_BadRowRejectsWholeFile(t *testing.T) {
	srv := newTestServer(t)

	csv := csvHeader +
		"t1,1,1,2024-01-01,1.00\n" +
		"t2,1,1,2024-01-02,not-a-decimal\n"

	resp := upload(t, srv, "/upload", csv, "text/csv")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Contains(t, body.Details, "transaction_amount")

	// The good row must not have been persisted.
	resp = get(t, srv, "/summary/1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpload_InvalidReplaceParam(t *testing.T) {
	srv := newTestServer(t)

	resp := upload(t, srv, "/upload?replace=maybe", csvHeader+"t1,1,1,2024-01-01,1.00\n", "text/csv")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_MissingFileField(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_ReplaceDiscardsPriorRows(t *testing.T) {
	srv := newTestServer(t)

	resp := upload(t, srv, "/upload", csvHeader+
		"t1,1,1,2024-01-01,1.00\n"+
		"t2,1,1,2024-01-02,2.00\n", "text/csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = upload(t, srv, "/upload?replace=true", csvHeader+"t3,2,2,2024-02-01,3.00\n", "text/csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.UploadResponse](t, resp)
	assert.Equal(t, int64(1), body.Rows)
	assert.True(t, body.Replaced)

	// Old user's rows are gone, the new user's row is queryable.
	resp = get(t, srv, "/summary/1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = get(t, srv, "/summary/2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// SUMMARY
// =============================================================================

func seedExampleData(t *testing.T, srv *httptest.Server) {
	t.Helper()
	csv := csvHeader +
		"t1,42,7,2024-01-01T10:00:00Z,9.99\n" +
		"t2,42,8,2024-02-15T10:00:00Z,20.01\n" +
		"t3,7,7,2024-01-03T10:00:00Z,5.00\n"
	resp := upload(t, srv, "/upload?replace=true", csv, "text/csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSummary_ExampleDataset(t *testing.T) {
	srv := newTestServer(t)
	seedExampleData(t, srv)

	resp := get(t, srv, "/summary/42")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.SummaryResponse](t, resp)
	assert.Equal(t, int64(42), body.UserID)
	assert.Equal(t, int64(2), body.Count)
	require.NotNil(t, body.Min)
	require.NotNil(t, body.Max)
	require.NotNil(t, body.Mean)
	assert.Equal(t, "9.99", *body.Min)
	assert.Equal(t, "20.01", *body.Max)
	assert.Equal(t, "15.00", *body.Mean)
	require.NotNil(t, body.MostPurchasedProductID)
	assert.Equal(t, int64(7), *body.MostPurchasedProductID, "ties break toward the lowest product_id")
}

func TestSummary_DateRangeFiltering(t *testing.T) {
	srv := newTestServer(t)
	seedExampleData(t, srv)

	// Only the January transaction for user 42.
	resp := get(t, srv, "/summary/42?start=2024-01-01&end=2024-01-31")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.SummaryResponse](t, resp)
	assert.Equal(t, int64(1), body.Count)
	assert.Equal(t, "9.99", *body.Min)
	assert.Equal(t, "9.99", *body.Max)
}

func TestSummary_EndDateIsInclusive(t *testing.T) {
	srv := newTestServer(t)
	seedExampleData(t, srv)

	// t1 is on 2024-01-01; an end of that same day must still match it.
	resp := get(t, srv, "/summary/42?start=2024-01-01&end=2024-01-01")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.SummaryResponse](t, resp)
	assert.Equal(t, int64(1), body.Count)
}

func TestSummary_NoTransactionsInRange(t *testing.T) {
	srv := newTestServer(t)
	seedExampleData(t, srv)

	resp := get(t, srv, "/summary/42?start=2030-01-01&end=2030-12-31")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSummary_UnknownUser(t *testing.T) {
	srv := newTestServer(t)
	seedExampleData(t, srv)

	resp := get(t, srv, "/summary/99")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Equal(t, "No transactions for user in range", body.Error)
}

func TestSummary_InvalidUserID(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv, "/summary/bob")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSummary_MalformedDates(t *testing.T) {
	srv := newTestServer(t)
	seedExampleData(t, srv)

	for _, q := range []string{"start=01-01-2024", "end=2024-13-40", "start=yesterday"} {
		resp := get(t, srv, "/summary/42?"+q)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "query %q", q)
	}
}

func TestSummary_StartAfterEnd(t *testing.T) {
	srv := newTestServer(t)
	seedExampleData(t, srv)

	resp := get(t, srv, "/summary/42?start=2024-06-01&end=2024-01-01")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSummary_ResponseEchoesRange(t *testing.T) {
	srv := newTestServer(t)
	seedExampleData(t, srv)

	resp := get(t, srv, "/summary/42?start=2024-01-01&end=2024-03-01")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.SummaryResponse](t, resp)
	assert.Equal(t, "2024-01-01T00:00:00Z", body.Start)
	assert.Contains(t, body.End, "2024-03-01T23:59:59")
}

func TestHandler_MemoryStoreBacked(t *testing.T) {
	// The handler depends on the store interface, not the SQLite engine.
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(txnstore.NewMemory())))
	t.Cleanup(srv.Close)

	resp := upload(t, srv, "/upload", csvHeader+"t1,42,7,2024-01-01T10:00:00Z,9.99\n", "text/csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, srv, "/summary/42")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.SummaryResponse](t, resp)
	assert.Equal(t, int64(1), body.Count)
	assert.Equal(t, "9.99", *body.Min)
}

func TestUpload_RejectionLogsCarryLoadID(t *testing.T) {
	var buf bytes.Buffer
	prev := *logging.L()
	logging.SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { logging.SetLogger(prev) })

	// Built after SetLogger so the handler captures the test logger.
	// Invoked directly so all log writes finish before the buffer is read.
	h := api.NewHandler(txnstore.NewMemory())
	rr := httptest.NewRecorder()
	h.Upload(rr, csvRequest(t, "/upload", csvHeader+"t1,1,1,2024-01-01,not-a-decimal\n", "text/csv"))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var rejected map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) == nil && entry["message"] == "upload rejected" {
			rejected = entry
		}
	}
	require.NotNil(t, rejected, "a failed upload must emit a rejection log line")
	assert.NotEmpty(t, rejected["load_id"], "failure logs carry the upload's load_id")
}

func TestUpload_ThenSummaryAccumulates(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp := upload(t, srv, "/upload", csvHeader+fmt.Sprintf("t%d,5,5,2024-01-0%d,10.00\n", i+1, i+1), "text/csv")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := get(t, srv, "/summary/5")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.SummaryResponse](t, resp)
	assert.Equal(t, int64(2), body.Count)
}
