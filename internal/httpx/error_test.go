package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courier-analytics/api/internal/analytics"
	"github.com/courier-analytics/api/internal/ingest"
	"github.com/courier-analytics/api/internal/middleware"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

func TestWriteFailureMapsErrorKinds(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("courier: %w", store.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", &store.ConflictError{Table: "couriers", Constraint: "couriers_full_name_key"}, http.StatusConflict, "conflict"},
		{"upstream keeps status", &store.UpstreamError{Status: 503, Code: "57P03", Message: "starting up"}, http.StatusServiceUnavailable, "upstream_error"},
		{"upstream without status", &store.UpstreamError{Message: "eof"}, http.StatusBadGateway, "upstream_error"},
		{"decode", fmt.Errorf("%w: empty file", ingest.ErrDecode), http.StatusBadRequest, "unreadable_file"},
		{"validation", &model.ValidationError{Fields: []model.FieldError{{Field: "name", Message: "name is required"}}}, http.StatusBadRequest, "validation_error"},
		{"analytics input", fmt.Errorf("%w: bad limit", analytics.ErrInvalidInput), http.StatusBadRequest, "validation_error"},
		{"malformed body", fmt.Errorf("%w: eof", ErrMalformedBody), http.StatusBadRequest, "invalid_body"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/couriers", nil)
			req = req.WithContext(middleware.WithRequestID(req.Context(), "req-1"))
			rr := httptest.NewRecorder()

			WriteFailure(rr, req, logger, tc.err)

			assert.Equal(t, tc.status, rr.Code)
			var env ErrorEnvelope
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
			assert.Equal(t, tc.code, env.Error.Code)
			assert.Equal(t, "req-1", env.RequestID)
		})
	}
}

func TestUpstreamMessageIsPreserved(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	WriteFailure(rr, req, slog.New(slog.NewTextHandler(io.Discard, nil)), &store.UpstreamError{Status: 400, Code: "22P02", Message: "invalid input syntax for type uuid"})

	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "invalid input syntax for type uuid", env.Error.Message)
}
