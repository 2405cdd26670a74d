package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/docstat"
	"github.com/brunobiangulo/docstat/parser/parsertest"
)

func newTestServer(t *testing.T, maxFileSize int64, srvCfg docstat.ServerConfig) http.Handler {
	t.Helper()
	cfg := docstat.DefaultConfig()
	cfg.History = false
	cfg.MaxFileSize = maxFileSize
	engine, err := docstat.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	h := newHandler(engine, cfg.MaxFileSize)
	return buildHandler(h.routes(), srvCfg)
}

func uploadRequest(t *testing.T, path, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestAnalyzeEndpoint(t *testing.T) {
	h := newTestServer(t, 1<<20, docstat.ServerConfig{})

	rec := serve(h, uploadRequest(t, "/analyze", "test.pdf", parsertest.TextPDF("Test Document")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res docstat.Result
	decode(t, rec, &res)
	assert.Equal(t, "test.pdf", res.FileName)
	assert.Equal(t, 2, res.Statistics.WordCount)
	assert.Equal(t, 0, res.Statistics.ImageCount)
}

func TestAnalyzeEndpointErrors(t *testing.T) {
	h := newTestServer(t, 1024, docstat.ServerConfig{})

	tests := []struct {
		name   string
		file   string
		data   []byte
		status int
	}{
		{"unsupported", "notes.txt", []byte("hello"), http.StatusUnsupportedMediaType},
		{"malformed pdf", "bad.pdf", []byte("not a pdf"), http.StatusUnprocessableEntity},
		{"malformed docx", "bad.docx", []byte("not a zip"), http.StatusUnprocessableEntity},
		{"too large", "big.pdf", make([]byte, 2048), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, uploadRequest(t, "/analyze", tt.file, tt.data))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var body map[string]string
			decode(t, rec, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAnalyzeEndpointMissingFile(t *testing.T) {
	h := newTestServer(t, 1024, docstat.ServerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpointsDisabled(t *testing.T) {
	h := newTestServer(t, 1024, docstat.ServerConfig{})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/analyses", nil),
		httptest.NewRequest(http.MethodGet, "/analyses/abc", nil),
		httptest.NewRequest(http.MethodGet, "/analyses/abc/similar", nil),
		httptest.NewRequest(http.MethodDelete, "/analyses/abc", nil),
		httptest.NewRequest(http.MethodGet, "/summary", nil),
		httptest.NewRequest(http.MethodGet, "/report.xlsx", nil),
	} {
		rec := serve(h, req)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, "%s %s", req.Method, req.URL.Path)
	}
}

func TestSimilarRejectsBadK(t *testing.T) {
	h := newTestServer(t, 1024, docstat.ServerConfig{})

	for _, k := range []string{"0", "101", "x"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/analyses/abc/similar?k="+k, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "k=%s", k)
	}
}

func TestSessionFlow(t *testing.T) {
	h := newTestServer(t, 1<<20, docstat.ServerConfig{})

	var view struct {
		State  string          `json:"state"`
		Result *docstat.Result `json:"result"`
		Size   string          `json:"size"`
		Error  string          `json:"error"`
	}

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &view)
	assert.Equal(t, "idle", view.State)
	assert.Nil(t, view.Result)

	pdf := parsertest.TextPDF("Test Document")
	rec = serve(h, uploadRequest(t, "/session/analyze", "test.pdf", pdf))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &view)
	assert.Equal(t, "result", view.State)
	require.NotNil(t, view.Result)
	assert.Equal(t, 2, view.Result.Statistics.WordCount)
	assert.NotEmpty(t, view.Size)

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/session/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	view.Result = nil
	decode(t, rec, &view)
	assert.Equal(t, "idle", view.State)
	assert.Nil(t, view.Result)

	rec = serve(h, uploadRequest(t, "/session/analyze", "bad.docx", []byte("nope")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	decode(t, rec, &view)
	assert.Equal(t, "idle", view.State, "a failed analysis returns to idle")
	assert.Equal(t, "the document could not be read", view.Error)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/session", nil))
	view.Error = ""
	decode(t, rec, &view)
	assert.Equal(t, "idle", view.State)
	assert.Equal(t, "the document could not be read", view.Error, "the error stays until the next file")
}

func TestHealthAndAuth(t *testing.T) {
	h := newTestServer(t, 1024, docstat.ServerConfig{APIKey: "secret"})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health skips auth")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = serve(h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, 1024, docstat.ServerConfig{CORSOrigins: "https://a.example, https://b.example"})

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "https://b.example")
	rec := serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://b.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// captureLogs routes the default logger into a buffer for one test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// logEntry returns the first JSON log line with the given message.
func logEntry(t *testing.T, buf *bytes.Buffer, msg string) map[string]interface{} {
	t.Helper()
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		if entry["msg"] == msg {
			return entry
		}
	}
	t.Fatalf("no %q log entry in:\n%s", msg, buf.String())
	return nil
}

func TestRequestLog(t *testing.T) {
	logs := captureLogs(t)
	h := newTestServer(t, 1<<20, docstat.ServerConfig{})

	pdf := parsertest.TextPDF("Test Document")
	req := uploadRequest(t, "/analyze", "../secret/report.pdf", pdf)
	req.Header.Set("X-Request-ID", "req-42")
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	entry := logEntry(t, logs, "request")
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "report.pdf", entry["file"])
	assert.Equal(t, float64(len(pdf)), entry["file_size"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, float64(rec.Body.Len()), entry["bytes"])
	assert.Equal(t, "/analyze", entry["path"])
}

func TestRequestIDGenerated(t *testing.T) {
	captureLogs(t)
	h := newTestServer(t, 1024, docstat.ServerConfig{})

	first := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil)).Header().Get("X-Request-ID")
	second := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil)).Header().Get("X-Request-ID")
	assert.Len(t, first, 36)
	assert.NotEqual(t, first, second)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 65))
	got := serve(h, req).Header().Get("X-Request-ID")
	assert.Len(t, got, 36, "overlong caller ids are replaced")
}

func TestUnauthorizedIsLogged(t *testing.T) {
	logs := captureLogs(t)
	h := newTestServer(t, 1024, docstat.ServerConfig{APIKey: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/analyses", nil)
	req.Header.Set("X-Request-ID", "req-7")
	req.Header.Set("Authorization", "Bearer secre")
	rec := serve(h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	entry := logEntry(t, logs, "rejected request without valid API key")
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "req-7", entry["request_id"])
	assert.Equal(t, "/analyses", entry["path"])

	entry = logEntry(t, logs, "request")
	assert.Equal(t, float64(http.StatusUnauthorized), entry["status"])
}

func TestRecoveryLogsRequest(t *testing.T) {
	logs := captureLogs(t)
	h := requestMiddleware(recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		noteUpload(r, "crash.docx", 10)
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	req.Header.Set("X-Request-ID", "req-9")
	rec := serve(h, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	entry := logEntry(t, logs, "panic recovered")
	assert.Equal(t, "req-9", entry["request_id"])
	assert.Equal(t, "crash.docx", entry["file"])
	assert.Equal(t, "boom", entry["error"])

	entry = logEntry(t, logs, "request")
	assert.Equal(t, float64(http.StatusInternalServerError), entry["status"])
}
