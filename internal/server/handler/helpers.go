// Package handler implements the JSON API endpoints. Handlers translate
// HTTP requests into manager/discovery/store calls and map internal errors
// onto status codes; unknown internal failures become a 500 with a short
// message, never a stack trace.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// decodeBody parses a JSON request body into dst. Unknown fields are
// ignored; an empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes: configuration errors
// are the caller's fault, everything else is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTickerMissing),
		errors.Is(err, domain.ErrUnknownVenue),
		errors.Is(err, domain.ErrNotMonitored):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
