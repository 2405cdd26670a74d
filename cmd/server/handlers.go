package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/docstat"
	"github.com/brunobiangulo/docstat/report"
	"github.com/brunobiangulo/docstat/session"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type handler struct {
	engine    docstat.Engine
	session   *session.Session
	maxUpload int64
}

func newHandler(e docstat.Engine, maxFileSize int64) *handler {
	limit := maxFileSize
	if limit <= 0 {
		limit = 1 << 30
	}
	return &handler{
		engine:    e,
		session:   session.New(e),
		maxUpload: limit,
	}
}

// routes registers every endpoint on a new mux.
func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /analyze", h.handleAnalyze)
	mux.HandleFunc("GET /analyses", h.handleListAnalyses)
	mux.HandleFunc("GET /analyses/{id}", h.handleGetAnalysis)
	mux.HandleFunc("GET /analyses/{id}/similar", h.handleSimilar)
	mux.HandleFunc("DELETE /analyses/{id}", h.handleDeleteAnalysis)
	mux.HandleFunc("GET /summary", h.handleSummary)
	mux.HandleFunc("GET /report.xlsx", h.handleReport)
	mux.HandleFunc("GET /session", h.handleSession)
	mux.HandleFunc("POST /session/analyze", h.handleSessionAnalyze)
	mux.HandleFunc("POST /session/reset", h.handleSessionReset)
	mux.HandleFunc("GET /health", h.handleHealth)

	return mux
}

// POST /analyze
// Accepts a multipart upload in the "file" field.
func (h *handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	name, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	res, err := h.engine.Analyze(ctx, data, name)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /analyses?limit=N
func (h *handler) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	results, err := h.engine.ListAnalyses(r.Context(), limit)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": results,
	})
}

// GET /analyses/{id}
func (h *handler) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.GetAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /analyses/{id}/similar?k=N
func (h *handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	k, err := queryInt(r, "k", 5)
	if err != nil || k < 1 || k > 100 {
		writeError(w, http.StatusBadRequest, "k must be between 1 and 100")
		return
	}

	similar, err := h.engine.SimilarAnalyses(r.Context(), r.PathValue("id"), k)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"similar": similar,
	})
}

// DELETE /analyses/{id}
func (h *handler) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.DeleteAnalysis(r.Context(), id); err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /summary
func (h *handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.engine.Summary(r.Context())
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GET /report.xlsx
func (h *handler) handleReport(w http.ResponseWriter, r *http.Request) {
	results, err := h.engine.ListAnalyses(r.Context(), 0)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, results); err != nil {
		writeError(w, http.StatusInternalServerError, "report failed")
		slog.Error("report error", "error", err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="docstat-report.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// sessionView is the JSON shape of the interactive session.
type sessionView struct {
	State  session.State   `json:"state"`
	Result *docstat.Result `json:"result,omitempty"`
	Size   string          `json:"size,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func viewOf(snap session.Snapshot) sessionView {
	v := sessionView{State: snap.State, Result: snap.Result}
	if snap.Result != nil {
		v.Size = report.FormatSize(snap.Result.FileSize)
	}
	if snap.Err != nil {
		v.Error = userMessage(snap.Err)
	}
	return v
}

// GET /session
func (h *handler) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(h.session.Snapshot()))
}

// POST /session/analyze
func (h *handler) handleSessionAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	name, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	if _, err := h.session.Analyze(ctx, data, name); err != nil {
		if errors.Is(err, session.ErrBusy) {
			writeError(w, http.StatusConflict, "an analysis is already in progress")
			return
		}
		status, _ := classifyError(err)
		writeJSON(w, status, viewOf(h.session.Snapshot()))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(h.session.Snapshot()))
}

// POST /session/reset
func (h *handler) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Reset(); err != nil {
		writeError(w, http.StatusConflict, "cannot reset while an analysis is in progress")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(h.session.Snapshot()))
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"history": h.engine.HistoryEnabled(),
	})
}

// readUpload returns the uploaded file's base name and bytes, writing an
// error response and returning ok=false when the upload is unusable.
func (h *handler) readUpload(w http.ResponseWriter, r *http.Request) (name string, data []byte, ok bool) {
	// Multipart framing needs some headroom over the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return "", nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart field 'file'")
		return "", nil, false
	}
	defer file.Close()

	data, err = io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		slog.Error("reading upload", append(infoFrom(r.Context()).logAttrs(), "error", err)...)
		return "", nil, false
	}

	// Sanitise filename to prevent path traversal in logs and history.
	name = filepath.Base(header.Filename)
	noteUpload(r, name, len(data))
	return name, data, true
}

// classifyError maps engine errors to an HTTP status and a message safe to
// show to the user.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, docstat.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported file format: choose a PDF or DOCX file"
	case errors.Is(err, docstat.ErrMalformedDocument):
		return http.StatusUnprocessableEntity, "the document could not be read"
	case errors.Is(err, docstat.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "file too large"
	case errors.Is(err, docstat.ErrAnalysisNotFound):
		return http.StatusNotFound, "analysis not found"
	case errors.Is(err, docstat.ErrHistoryDisabled):
		return http.StatusNotImplemented, "history is disabled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "analysis timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func userMessage(err error) string {
	_, msg := classifyError(err)
	return msg
}

func writeAnalysisError(w http.ResponseWriter, err error) {
	status, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	} else {
		slog.Debug("request rejected", "status", status, "error", err)
	}
	writeError(w, status, msg)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
