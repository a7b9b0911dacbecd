package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/karunya-health/vaani/internal/config"
	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/resilience"
	"github.com/karunya-health/vaani/internal/session"
)

var fastRetry = resilience.RetryPolicy{Name: "test", MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

// envelope writes the backend's success wrapper.
func envelope(w http.ResponseWriter, data any) {
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

// hospitalBackend is a fake HIS with one patient, one department, one
// doctor, and a slot sheet. It records booking payloads for assertions.
type hospitalBackend struct {
	mux *http.ServeMux

	appointmentBody  map[string]any
	portalBody       map[string]any
	emergencyBody    map[string]any
	patientBody      map[string]any
	portalAuthHeader string
}

func newHospitalBackend() *hospitalBackend {
	b := &hospitalBackend{mux: http.NewServeMux()}

	b.mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"accessToken":"svc-token"}`)
	})
	b.mux.HandleFunc("GET /patients/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == "9876543210" {
			envelope(w, []map[string]string{{"_id": "p1", "patientId": "HIS-2026-042", "firstName": "Asha", "lastName": "Rao"}})
			return
		}
		envelope(w, []map[string]string{})
	})
	b.mux.HandleFunc("GET /departments", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]string{
			{"_id": "d1", "name": "Cardiology"},
			{"_id": "d2", "name": "Orthopedics"},
		})
	})
	b.mux.HandleFunc("GET /departments/d1/doctors", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]any{
			{"_id": "doc1", "profile": map[string]string{"firstName": "Meera", "lastName": "Iyer"}},
		})
	})
	b.mux.HandleFunc("POST /opd/appointments", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&b.appointmentBody)
		envelope(w, map[string]any{"_id": "a1", "appointmentNumber": "APT-1024", "tokenNumber": 17})
	})
	b.mux.HandleFunc("POST /patients", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&b.patientBody)
		envelope(w, map[string]string{"_id": "pnew", "patientId": "HIS-2026-100"})
	})
	b.mux.HandleFunc("POST /emergency/cases", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&b.emergencyBody)
		envelope(w, map[string]string{"_id": "e1", "status": "waiting"})
	})

	b.mux.HandleFunc("GET /patient/appointments/departments", func(w http.ResponseWriter, r *http.Request) {
		b.portalAuthHeader = r.Header.Get("Authorization")
		envelope(w, []map[string]string{{"_id": "d1", "name": "Cardiology"}})
	})
	b.mux.HandleFunc("GET /patient/appointments/doctors", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]string{{"_id": "doc1", "firstName": "Meera", "lastName": "Iyer"}})
	})
	b.mux.HandleFunc("GET /patient/appointments/slots", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]any{
			{"time": "10:00", "available": true},
			{"time": "10:30", "available": false},
			{"time": "11:00", "available": true},
		})
	})
	b.mux.HandleFunc("POST /patient/appointments", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&b.portalBody)
		envelope(w, map[string]string{"_id": "pa1", "appointmentNumber": "APT-7"})
	})
	b.mux.HandleFunc("GET /patient/appointments", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]any{
			{
				"_id": "pa0", "appointmentNumber": "APT-5", "status": "scheduled",
				"scheduledDate": "2026-09-01T00:00:00Z", "scheduledTime": "09:30",
				"doctor": map[string]string{"_id": "doc1", "firstName": "Meera", "lastName": "Iyer"},
			},
			{"_id": "pa2", "appointmentNumber": "APT-2", "status": "completed"},
		})
	})

	return b
}

func newTestEngine(t *testing.T, cfg session.StoreConfig) (*Engine, *session.Store, *hospitalBackend) {
	t.Helper()
	backend := newHospitalBackend()
	srv := httptest.NewServer(backend.mux)
	t.Cleanup(srv.Close)

	client, err := his.New(config.HISConfig{
		BaseURL:  srv.URL,
		Username: "agent@hospital.test",
		Password: "secret",
	}, his.WithRetryPolicy(fastRetry))
	if err != nil {
		t.Fatalf("his.New: %v", err)
	}

	store := session.NewStore(cfg)
	return NewDefaultEngine(store, client, "Karunya Hospital"), store, backend
}

func turn(t *testing.T, e *Engine, sid, input string, intent dialog.Intent, entities map[string]string) Reply {
	t.Helper()
	if entities == nil {
		entities = map[string]string{}
	}
	reply, err := e.HandleTurn(context.Background(), sid, input, dialog.IntentResult{
		Intent:     intent,
		Confidence: 0.9,
		Entities:   entities,
	})
	if err != nil {
		t.Fatalf("HandleTurn(%q): %v", input, err)
	}
	return reply
}

func TestGreetingByTimeOfDay(t *testing.T) {
	morning := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	if got := Greeting("Karunya Hospital", morning); !strings.HasPrefix(got, "Good morning") {
		t.Errorf("9am greeting = %q", got)
	}
	afternoon := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	if got := Greeting("Karunya Hospital", afternoon); !strings.HasPrefix(got, "Good afternoon") {
		t.Errorf("1pm greeting = %q", got)
	}
	evening := time.Date(2026, 8, 25, 19, 0, 0, 0, time.UTC)
	if got := Greeting("Karunya Hospital", evening); !strings.HasPrefix(got, "Good evening") {
		t.Errorf("7pm greeting = %q", got)
	}
}

func TestAppointmentBookingHappyPath(t *testing.T) {
	e, store, backend := newTestEngine(t, session.StoreConfig{})
	sid := store.Create("+919876543210", session.ChannelPhone)

	r := turn(t, e, sid, "I want to book an appointment with cardiology tomorrow, my number is 9876543210",
		dialog.IntentBookAppointment, map[string]string{
			"phone":          "9876543210",
			"department":     "cardiology",
			"preferred_date": "tomorrow",
		})
	if !strings.Contains(r.Response, "Dr. Meera Iyer") {
		t.Fatalf("expected doctor offer, got %q", r.Response)
	}

	r = turn(t, e, sid, "Dr. Meera please", dialog.IntentProvideInformation, nil)
	if !strings.Contains(r.Response, "Shall I book this?") {
		t.Fatalf("expected confirmation prompt, got %q", r.Response)
	}

	r = turn(t, e, sid, "yes", dialog.IntentConfirmYes, nil)
	if !strings.Contains(r.Response, "APT-1024") || !strings.Contains(r.Response, "Token: 17") {
		t.Fatalf("expected booking confirmation, got %q", r.Response)
	}
	if !r.IsComplete {
		t.Error("booking should complete the workflow")
	}

	body := backend.appointmentBody
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	if body["patient"] != "p1" || body["department"] != "d1" || body["doctor"] != "doc1" {
		t.Errorf("appointment body = %v", body)
	}
	if body["scheduledDate"] != tomorrow || body["type"] != "opd" {
		t.Errorf("appointment body = %v", body)
	}

	snap, err := store.Snapshot(sid)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.CurrentWorkflow != "" {
		t.Errorf("workflow not cleared after completion: %q", snap.CurrentWorkflow)
	}
	for i, tn := range snap.Turns {
		if tn.ID != i+1 {
			t.Errorf("turn %d has id %d", i, tn.ID)
		}
	}
}

func TestEmergencyOverridesActiveWorkflow(t *testing.T) {
	e, store, backend := newTestEngine(t, session.StoreConfig{})
	sid := store.Create("caller", session.ChannelPhone)

	turn(t, e, sid, "book an appointment, phone 9876543210", dialog.IntentBookAppointment,
		map[string]string{"phone": "9876543210", "department": "cardiology"})

	r := turn(t, e, sid, "my father is having chest pain, this is an emergency",
		dialog.IntentReportEmergency, map[string]string{
			"patient_name":   "Ravi Rao",
			"emergency_type": "chest pain",
		})
	if !r.RequiresHuman || !r.IsComplete {
		t.Errorf("emergency reply = %+v", r)
	}
	if !strings.Contains(r.Response, EmergencyNumber) {
		t.Errorf("expected ambulance number in %q", r.Response)
	}
	if backend.emergencyBody["triageLevel"] != "red" || backend.emergencyBody["source"] != "voice_agent" {
		t.Errorf("emergency case body = %v", backend.emergencyBody)
	}

	snap, _ := store.Snapshot(sid)
	if snap.CurrentWorkflow != "" {
		t.Errorf("workflow should be cleared after emergency, got %q", snap.CurrentWorkflow)
	}
	if !snap.RequiresHuman {
		t.Error("session should be flagged for human hand-off")
	}
}

func TestInvalidPhoneBecomesPrompt(t *testing.T) {
	e, store, _ := newTestEngine(t, session.StoreConfig{})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "register me", dialog.IntentRegisterPatient, map[string]string{
		"first_name":    "Asha",
		"last_name":     "Rao",
		"phone":         "12345",
		"date_of_birth": "15 January 1985",
		"gender":        "female",
	})
	if !strings.Contains(r.Response, "10-digit mobile number") {
		t.Fatalf("expected phone prompt, got %q", r.Response)
	}
	if r.RequiresHuman || r.IsComplete {
		t.Errorf("validation failure must stay conversational: %+v", r)
	}
}

func TestRepeatedFailuresAreCounted(t *testing.T) {
	e, store, _ := newTestEngine(t, session.StoreConfig{})
	sid := store.Create("caller", session.ChannelPhone)

	for i := 0; i < 3; i++ {
		turn(t, e, sid, "mumble mumble", dialog.IntentUnclear, nil)
	}
	snap, _ := store.Snapshot(sid)
	if snap.FailedIntents != 3 {
		t.Errorf("FailedIntents = %d, want 3", snap.FailedIntents)
	}

	// A usable turn resets the streak.
	turn(t, e, sid, "hello", dialog.IntentGreeting, nil)
	snap, _ = store.Snapshot(sid)
	if snap.FailedIntents != 0 {
		t.Errorf("FailedIntents = %d after greeting, want 0", snap.FailedIntents)
	}
}

func TestExpiredSessionRejectsTurn(t *testing.T) {
	e, store, _ := newTestEngine(t, session.StoreConfig{IdleTimeout: 10 * time.Millisecond})
	sid := store.Create("caller", session.ChannelPhone)

	time.Sleep(20 * time.Millisecond)
	_, err := e.HandleTurn(context.Background(), sid, "hello", dialog.IntentResult{Intent: dialog.IntentGreeting})
	if !errors.Is(err, session.ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestUnknownSessionRejectsTurn(t *testing.T) {
	e, _, _ := newTestEngine(t, session.StoreConfig{})
	_, err := e.HandleTurn(context.Background(), "no-such-session", "hello", dialog.IntentResult{Intent: dialog.IntentGreeting})
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGoodbyeEndsSession(t *testing.T) {
	e, store, _ := newTestEngine(t, session.StoreConfig{})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "thanks, bye", dialog.IntentGoodbye, nil)
	if !r.IsComplete {
		t.Error("goodbye should complete")
	}
	snap, _ := store.Snapshot(sid)
	if snap.Active {
		t.Error("session should be inactive after goodbye")
	}
}

func TestContinuationWithoutWorkflow(t *testing.T) {
	e, store, _ := newTestEngine(t, session.StoreConfig{})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "yes", dialog.IntentConfirmYes, nil)
	if !strings.Contains(r.Response, "not sure what you're referring to") {
		t.Errorf("got %q", r.Response)
	}
}

func TestTurnCapDeactivatesSession(t *testing.T) {
	e, store, _ := newTestEngine(t, session.StoreConfig{MaxTurns: 2})
	sid := store.Create("caller", session.ChannelPhone)

	turn(t, e, sid, "hello", dialog.IntentGreeting, nil)
	turn(t, e, sid, "hello again", dialog.IntentGreeting, nil)
	r := turn(t, e, sid, "one more", dialog.IntentGreeting, nil)
	if !r.RequiresHuman || !r.IsComplete {
		t.Errorf("capped reply = %+v", r)
	}

	snap, _ := store.Snapshot(sid)
	if snap.Active {
		t.Error("session should be inactive at the turn cap")
	}
	if len(snap.Turns) != 2 {
		t.Errorf("turns = %d, want 2", len(snap.Turns))
	}
}

func TestHandedOffSessionIsFrozen(t *testing.T) {
	e, store, _ := newTestEngine(t, session.StoreConfig{})
	sid := store.Create("caller", session.ChannelPhone)

	turn(t, e, sid, "get me a person", dialog.IntentEscalateToHuman, nil)
	r := turn(t, e, sid, "book an appointment", dialog.IntentBookAppointment,
		map[string]string{"phone": "9876543210"})
	if !strings.Contains(r.Response, "staff member will assist you") {
		t.Errorf("frozen session ran a workflow: %q", r.Response)
	}

	// Turns keep accumulating for the audit trail.
	snap, _ := store.Snapshot(sid)
	if len(snap.Turns) != 2 {
		t.Errorf("turns = %d, want 2", len(snap.Turns))
	}
}

func TestBedAvailabilityCounts(t *testing.T) {
	e, store, backend := newTestEngine(t, session.StoreConfig{})
	backend.mux.HandleFunc("GET /beds/availability", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]any{"general": map[string]int{"total": 10, "occupied": 7, "available": 3}})
	})
	backend.mux.HandleFunc("GET /beds", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "available" {
			t.Errorf("status = %q", r.URL.Query().Get("status"))
		}
		envelope(w, []map[string]string{
			{"_id": "b1", "type": "general"},
			{"_id": "b2", "type": "general"},
			{"_id": "b3", "type": "icu"},
		})
	})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "do you have beds free", dialog.IntentCheckBedAvailability, nil)
	if !strings.Contains(r.Response, "3 beds available") ||
		!strings.Contains(r.Response, "2 general ward beds") ||
		!strings.Contains(r.Response, "1 ICU beds") {
		t.Errorf("got %q", r.Response)
	}
}
