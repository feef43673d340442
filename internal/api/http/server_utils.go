package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"castgate/internal/domain"
)

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeStreamError maps request-validation errors to HTTP status codes at
// the gateway boundary. These errors never propagate past the handler.
func writeStreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", "unknown or expired token")
	case errors.Is(err, domain.ErrMalformedRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed range")
	case errors.Is(err, domain.ErrRangeNotSatisfiable):
		writeError(w, http.StatusBadRequest, "invalid_request", "range out of bounds")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "media not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
