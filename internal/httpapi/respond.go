package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/karunya-health/vaani/internal/session"
)

// errorBody is the envelope for every non-2xx response.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encoding failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Success: false, Error: msg})
}

// respondSessionError maps session store errors onto HTTP statuses: unknown
// and expired sessions are both 404, anything else is a 500.
func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrExpired):
		respondError(w, http.StatusNotFound, "session expired")
	default:
		slog.Error("session operation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody parses a JSON request body into v. Returns false after writing
// a 400 when the body is missing or malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
