package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "Operation failed: script exited with code 1: ..."}
//
// The browser form shows the error string as-is, so the message is the
// whole contract. Validation problems are 400; every failure after
// validation is a 500 whose message starts with "Operation failed: ".

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/autopr/internal/apperror"
)

// OperationFailedPrefix starts every 500 message produced from a known error.
const OperationFailedPrefix = "Operation failed: "

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE writing the body. Once Encode
// writes, the headers are sent and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// If encoding fails, the headers are already sent, so we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// The service layer returns errors wrapping apperror sentinels; this is the
// only place they become status codes. errors.Is walks the whole chain, so
// fmt.Errorf("...: %w", apperror.ExecutionFailed(...)) still matches.
//
// The service has already scrubbed credentials out of the message.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if errors.Is(err, apperror.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: appErr.Message})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: OperationFailedPrefix + err.Error()})
		return
	}

	// Unknown error: return a generic 500
	// NEVER expose internal error details to the client in production!
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: OperationFailedPrefix + "an internal error occurred",
	})
}
