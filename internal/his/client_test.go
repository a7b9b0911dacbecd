package his

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/karunya-health/vaani/internal/config"
	"github.com/karunya-health/vaani/internal/resilience"
)

// fastRetry keeps tests quick: one retry, no real backoff.
var fastRetry = resilience.RetryPolicy{Name: "test", MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetryPolicy(fastRetry)}, opts...)
	c, err := New(config.HISConfig{
		BaseURL:  srv.URL,
		Username: "agent@hospital.test",
		Password: "secret",
	}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func loginHandler(logins *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := logins.Add(1)
		fmt.Fprintf(w, `{"accessToken":"tok%d"}`, n)
	}
}

func TestSearchPatientsUnwrapsEnvelope(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", loginHandler(&logins))
	mux.HandleFunc("GET /patients/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok1" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("query"); got != "9876543210" {
			t.Errorf("query = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]string{
				{"_id": "abc", "patientId": "HIS-2026-001", "firstName": "Asha", "lastName": "Rao"},
			},
		})
	})

	c, _ := newTestClient(t, mux)
	patients, err := c.SearchPatients(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("SearchPatients: %v", err)
	}
	if len(patients) != 1 || patients[0].PatientID != "HIS-2026-001" {
		t.Errorf("patients = %+v", patients)
	}
	if patients[0].FullName() != "Asha Rao" {
		t.Errorf("FullName = %q", patients[0].FullName())
	}
	if logins.Load() != 1 {
		t.Errorf("logins = %d, want 1", logins.Load())
	}
}

func TestSearchPatientsEmptyQuerySkipsCall(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	patients, err := c.SearchPatients(context.Background(), "   ")
	if err != nil || patients != nil {
		t.Errorf("got %v, %v", patients, err)
	}
}

func TestStaleTokenReauthsOnce(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", loginHandler(&logins))
	mux.HandleFunc("GET /departments", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    []map[string]string{{"_id": "d1", "name": "Cardiology"}},
		})
	})

	c, _ := newTestClient(t, mux)
	depts, err := c.Departments(context.Background())
	if err != nil {
		t.Fatalf("Departments: %v", err)
	}
	if len(depts) != 1 || depts[0].Name != "Cardiology" {
		t.Errorf("depts = %+v", depts)
	}
	if logins.Load() != 2 {
		t.Errorf("logins = %d, want 2 (initial + re-auth)", logins.Load())
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var logins, calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", loginHandler(&logins))
	mux.HandleFunc("GET /patients/{id}", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false,"error":"patient not found"}`)
	})

	c, _ := newTestClient(t, mux)
	_, err := c.GetPatient(context.Background(), "missing")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != FailureNotFound {
		t.Fatalf("err = %v, want not_found APIError", err)
	}
	if apiErr.Message != "patient not found" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 404)", calls.Load())
	}
	if KindOf(err) != FailureNotFound {
		t.Errorf("KindOf = %v", KindOf(err))
	}
}

func TestServerErrorIsRetried(t *testing.T) {
	var logins, calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", loginHandler(&logins))
	mux.HandleFunc("GET /opd/queue", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	})

	c, _ := newTestClient(t, mux)
	if _, err := c.OPDQueue(context.Background()); err != nil {
		t.Fatalf("OPDQueue: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestPolicyBlocksBeforeTransport(t *testing.T) {
	var hit atomic.Bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.Store(true)
	}))

	err := c.do(context.Background(), http.MethodDelete, "/patients/abc", nil, nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != FailureForbidden {
		t.Fatalf("err = %v, want forbidden APIError", err)
	}
	if hit.Load() {
		t.Error("blocked call must never reach the backend")
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", loginHandler(&logins))
	mux.HandleFunc("GET /departments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "test", MaxFailures: 2, ResetTimeout: time.Hour, HalfOpenMax: 1,
	})
	c, _ := newTestClient(t, mux, WithBreaker(breaker))

	// Two attempts per call with fastRetry, so one call trips the breaker.
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("want error from failing backend")
	}
	if err := c.Ping(context.Background()); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if c.BreakerState() != "open" {
		t.Errorf("BreakerState = %q, want open", c.BreakerState())
	}
}

func TestMalformedResponse(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", loginHandler(&logins))
	mux.HandleFunc("GET /lab/tests", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>gateway error</html>`)
	})

	c, _ := newTestClient(t, mux)
	_, err := c.LabTests(context.Background())
	if KindOf(err) != FailureMalformed {
		t.Errorf("KindOf = %v, want malformed_response", KindOf(err))
	}
}

func TestPortalUsesCallerToken(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", loginHandler(&logins))
	mux.HandleFunc("GET /patient/appointments/slots", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer caller-token" {
			t.Errorf("Authorization = %q, want caller token", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				{"time": "10:00", "available": true},
				{"time": "10:30", "available": false},
			},
		})
	})

	c, _ := newTestClient(t, mux)
	slots, err := c.Portal("caller-token").Slots(context.Background(), "doc1", "2026-09-01")
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(slots) != 2 || !slots[0].Available || slots[1].Available {
		t.Errorf("slots = %+v", slots)
	}
	if logins.Load() != 0 {
		t.Errorf("portal call must not trigger service login, logins = %d", logins.Load())
	}
}
