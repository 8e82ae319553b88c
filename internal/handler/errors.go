package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/docexam/internal/document"
	"github.com/pavelanni/docexam/internal/exam"
	appI18n "github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/report"
	"github.com/pavelanni/docexam/internal/store"
)

// Error codes of the JSON error envelope.
const (
	CodeExtractionFailed = "EXTRACTION_FAILED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeModelUnavailable = "MODEL_UNAVAILABLE"
	CodeUpstreamError    = "UPSTREAM_ERROR"
	CodeInvalidState     = "INVALID_STATE"
	CodeExportFailed     = "EXPORT_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternal         = "INTERNAL_ERROR"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// classify maps an error to its HTTP status, code and message ID.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, document.ErrExtraction):
		return http.StatusUnprocessableEntity, CodeExtractionFailed, "ErrExtraction"
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited, "ErrRateLimited"
	case errors.Is(err, llm.ErrModelUnavailable):
		return http.StatusServiceUnavailable, CodeModelUnavailable, "ErrModelUnavailable"
	case errors.Is(err, llm.ErrUpstream):
		return http.StatusBadGateway, CodeUpstreamError, "ErrUpstream"
	case errors.Is(err, exam.ErrState):
		return http.StatusConflict, CodeInvalidState, "ErrInvalidState"
	case errors.Is(err, report.ErrExport):
		return http.StatusConflict, CodeExportFailed, "ErrExport"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "ErrNotFound"
	default:
		return http.StatusInternalServerError, CodeInternal, "ErrUpstream"
	}
}

// apiErrorFor builds the envelope body for err in the request's language.
func apiErrorFor(r *http.Request, err error) (int, apiError) {
	status, code, msgID := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	} else {
		slog.Warn("request failed", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}
	return status, apiError{Code: code, Message: appI18n.T(r.Context(), msgID)}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, e := apiErrorFor(r, err)
	writeJSON(w, status, errorEnvelope{Error: e})
}

// writeCode writes an envelope for a failure that has no underlying error.
func writeCode(w http.ResponseWriter, r *http.Request, status int, code, msgID string) {
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: appI18n.T(r.Context(), msgID)}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
