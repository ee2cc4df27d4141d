// Package httputil centralizes JSON encoding and error mapping for the HTTP
// transport so handlers stay thin.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "certgate/pkg/domain-errors"
)

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to an HTTP response. Internal and
// unavailable errors omit the description; the detailed reason belongs in
// the audit trail and logs, not in the caller-facing body.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := errorResponse{Error: string(code)}

	var status int
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		status = http.StatusBadRequest
		resp.ErrorDescription = description(err)
	case dErrors.CodeNotFound:
		status = http.StatusNotFound
		resp.ErrorDescription = description(err)
	case dErrors.CodeUnauthorized:
		status = http.StatusUnauthorized
	case dErrors.CodeConflict:
		status = http.StatusConflict
		resp.ErrorDescription = description(err)
	case dErrors.CodeUnavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	WriteJSON(w, status, resp)
}

func description(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// Decode reads a JSON body into T, logging and answering bad_request on
// failure. The bool result reports whether the handler should continue.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "failed to decode request body", "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return v, false
	}
	return v, true
}
