package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/courier-analytics/api/internal/analytics"
	"github.com/courier-analytics/api/internal/ingest"
	"github.com/courier-analytics/api/internal/middleware"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

type ErrorEnvelope struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"requestId"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	WriteJSON(w, status, ErrorEnvelope{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

// WriteFailure maps err onto a status and error code. Unrecognised errors are
// logged and reported as internal errors without their text.
func WriteFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		verr     *model.ValidationError
		upstream *store.UpstreamError
		maxErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		WriteError(w, r, http.StatusBadRequest, "validation_error", verr.Error(), verr.Fields)
	case errors.As(err, &maxErr):
		WriteError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large", nil)
	case errors.Is(err, ErrMalformedBody):
		WriteError(w, r, http.StatusBadRequest, "invalid_body", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, "not_found", "Resource was not found", nil)
	case errors.Is(err, store.ErrConflict):
		WriteError(w, r, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, ingest.ErrDecode):
		WriteError(w, r, http.StatusBadRequest, "unreadable_file", err.Error(), nil)
	case errors.Is(err, ingest.ErrTooManyRows):
		WriteError(w, r, http.StatusBadRequest, "too_many_rows", err.Error(), nil)
	case errors.Is(err, ingest.ErrUnknownKind), errors.Is(err, ingest.ErrNoRecords),
		errors.Is(err, analytics.ErrInvalidInput), errors.Is(err, store.ErrUnfilteredWrite):
		WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.As(err, &upstream):
		status := upstream.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		logger.Error("store_failure", "status", upstream.Status, "code", upstream.Code, "error", err,
			"request_id", middleware.RequestIDFromContext(r.Context()))
		WriteError(w, r, status, "upstream_error", upstream.Message, map[string]string{"code": upstream.Code})
	default:
		logger.Error("request_failed", "path", r.URL.Path, "error", err,
			"request_id", middleware.RequestIDFromContext(r.Context()))
		WriteError(w, r, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
	}
}
