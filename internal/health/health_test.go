package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) report {
	t.Helper()
	var rep report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rep
}

func TestHealthzAlwaysOK(t *testing.T) {
	h := New()

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rep := decodeReport(t, rec); rep.Status != "ok" {
		t.Errorf("body status = %q, want ok", rep.Status)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyzAllProbesPass(t *testing.T) {
	h := New(
		Checker{Name: "his", Check: func(context.Context) error { return nil }},
		Checker{Name: "sessions", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	rep := decodeReport(t, rec)
	if rep.Status != "ok" {
		t.Errorf("body status = %q", rep.Status)
	}
	for _, name := range []string{"his", "sessions"} {
		if rep.Checks[name] != "ok" {
			t.Errorf("%s = %q, want ok", name, rep.Checks[name])
		}
	}
}

func TestReadyzNamesTheFailingProbe(t *testing.T) {
	h := New(
		Checker{Name: "his", Check: func(context.Context) error {
			return errors.New("circuit breaker open")
		}},
		Checker{Name: "sessions", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	rep := decodeReport(t, rec)
	if rep.Status != "fail" {
		t.Errorf("body status = %q, want fail", rep.Status)
	}
	if rep.Checks["his"] != "fail: circuit breaker open" {
		t.Errorf("his = %q", rep.Checks["his"])
	}
	if rep.Checks["sessions"] != "ok" {
		t.Errorf("sessions = %q, a healthy probe must still be reported", rep.Checks["sessions"])
	}
}

func TestReadyzWithoutProbes(t *testing.T) {
	h := New()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rep := decodeReport(t, rec); rep.Status != "ok" {
		t.Errorf("body status = %q", rep.Status)
	}
}

func TestReadyzHonoursRequestContext(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
