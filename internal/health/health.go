// Package health answers the operational question "can Vaani take calls".
// Liveness (/healthz) is the process itself; readiness (/readyz) also
// probes the dependencies the conversation pipeline needs, the hospital
// backend and the session store among them. Both respond with a JSON body
// carrying a top-level "status" and a per-probe "checks" map.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds each readiness probe.
const checkTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil when the
// dependency can serve a call and an error saying why not otherwise.
type Checker struct {
	// Name keys the probe's verdict in the response ("his", "sessions").
	Name string

	// Check probes the dependency. It must honour ctx.
	Check func(ctx context.Context) error
}

// report is the response body shared by both endpoints.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the liveness and readiness endpoints. The probe set is
// fixed at construction; safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a Handler over the given probes, evaluated in order on every
// readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz answers liveness: serving the request is the proof.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz answers readiness: 200 only when every probe passes, 503 with
// the failing probes named otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
