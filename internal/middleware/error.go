package middleware

import (
	"encoding/json"
	"net/http"
)

// The envelope mirrors httpx.ErrorEnvelope; httpx depends on this package
// for the request id, so the shape is repeated here.
type errorEnvelope struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"requestId"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error:     errorBody{Code: code, Message: message},
		RequestID: RequestIDFromContext(r.Context()),
	})
}
