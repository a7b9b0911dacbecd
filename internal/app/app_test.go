package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/karunya-health/vaani/internal/audit"
	"github.com/karunya-health/vaani/internal/config"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/resilience"
)

var fastRetry = resilience.RetryPolicy{Name: "test", MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

// TestAppLifecycle exercises the wired application once end to end. One App
// per test binary: the telemetry provider registers process-global
// Prometheus collectors.
func TestAppLifecycle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"accessToken":"svc-token"}`)
	})
	mux.HandleFunc("GET /departments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":[{"_id":"d1","name":"Cardiology"}]}`)
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	hisCfg := config.HISConfig{
		BaseURL:  backend.URL,
		Username: "agent@hospital.test",
		Password: "secret",
	}
	client, err := his.New(hisCfg, his.WithRetryPolicy(fastRetry))
	if err != nil {
		t.Fatalf("his.New: %v", err)
	}

	cfg := &config.Config{
		Server:   config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		HIS:      hisCfg,
		Hospital: config.HospitalConfig{Name: "Karunya General Hospital"},
	}

	ctx := context.Background()
	a, err := New(ctx, cfg, nil,
		WithHISClient(client),
		WithAuditStore(audit.NewMemoryStore(64)),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	router := a.Router()

	post := func(t *testing.T, path string, body map[string]any) (*httptest.ResponseRecorder, map[string]any) {
		t.Helper()
		buf, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		out := map[string]any{}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
		return rec, out
	}

	var sessionID string

	t.Run("call start greets with the hospital name", func(t *testing.T) {
		rec, out := post(t, "/voice/call", map[string]any{"caller_id": "caller-1", "channel": "phone"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		sessionID, _ = out["session_id"].(string)
		if sessionID == "" {
			t.Fatal("no session_id in response")
		}
		if text, _ := out["response_text"].(string); !strings.Contains(text, "Karunya General Hospital") {
			t.Errorf("greeting %q does not name the hospital", text)
		}
	})

	t.Run("turn runs the rule classifier when no llm is wired", func(t *testing.T) {
		rec, out := post(t, "/conversation/process", map[string]any{
			"session_id": sessionID,
			"user_input": "I want to book an appointment",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if intent, _ := out["intent"].(string); intent != "BOOK_APPOINTMENT" {
			t.Errorf("intent = %q, want BOOK_APPOINTMENT", intent)
		}
		// Rule confidence 0.7 sits under the default 0.75 booking
		// threshold, so the guardrails ask before the workflow starts.
		if text, _ := out["response_text"].(string); !strings.Contains(strings.ToLower(text), "confirm") {
			t.Errorf("reply %q should ask for confirmation", text)
		}
	})

	t.Run("readiness reports the backend", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET /health = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("hot reload applies safety changes", func(t *testing.T) {
		updated := *cfg
		updated.Safety = config.SafetyConfig{
			IntentOverrides: map[string]float64{"BOOK_APPOINTMENT": 0.65},
		}
		updated.HIS.DeniedEndpoints = []string{"DELETE /*"}
		a.ApplyConfig(cfg, &updated)

		rec, out := post(t, "/conversation/process", map[string]any{
			"session_id": sessionID,
			"user_input": "I want to book an appointment",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		// The lowered override now admits the 0.7 rule confidence, so the
		// booking workflow speaks instead of the confirmation gate.
		if text, _ := out["response_text"].(string); !strings.Contains(text, "patient ID") {
			t.Errorf("reply %q should start the booking workflow after the threshold drop", text)
		}
	})
}
