package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleGetSession returns a read-only snapshot of the session record.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.store.Snapshot(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

type deleteSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

// handleDeleteSession ends and removes a session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(id); err != nil {
		respondSessionError(w, err)
		return
	}
	s.audit.SessionEnd(r.Context(), id, "deleted")
	s.metrics.ActiveSessions.Add(r.Context(), -1)
	respondJSON(w, http.StatusOK, deleteSessionResponse{Success: true, SessionID: id})
}
