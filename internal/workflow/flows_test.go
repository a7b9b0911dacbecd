package workflow

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/session"
)

func TestCheckinForTodaysAppointment(t *testing.T) {
	e, store, backend := newTestEngine(t, session.StoreConfig{})
	today := time.Now().Format("2006-01-02")
	backend.mux.HandleFunc("GET /opd/appointments", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("patient") != "p1" || q.Get("status") != "scheduled" || q.Get("date") != today {
			t.Errorf("query = %v", q)
		}
		envelope(w, []map[string]any{{"_id": "apt1", "scheduledTime": "10:00", "status": "scheduled"}})
	})
	backend.mux.HandleFunc("PUT /opd/appointments/apt1/checkin", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]any{"tokenNumber": 5, "queuePosition": 2, "estimatedWait": "15"})
	})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "I've arrived, phone 9876543210", dialog.IntentOPDCheckin,
		map[string]string{"phone": "9876543210"})
	if !strings.Contains(r.Response, "token number is 5") ||
		!strings.Contains(r.Response, "number 2 in the queue") ||
		!strings.Contains(r.Response, "about 15 minutes") {
		t.Fatalf("got %q", r.Response)
	}
	if !r.IsComplete {
		t.Error("check-in should complete")
	}
}

func TestCheckinWithoutAppointmentOffersBooking(t *testing.T) {
	e, store, backend := newTestEngine(t, session.StoreConfig{})
	backend.mux.HandleFunc("GET /opd/appointments", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]any{})
	})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "check in please", dialog.IntentOPDCheckin, map[string]string{"phone": "9876543210"})
	if !strings.Contains(r.Response, "couldn't find an appointment for you today") {
		t.Fatalf("got %q", r.Response)
	}
	if r.IsComplete {
		t.Error("flow should wait for the booking offer answer")
	}
}

func TestQueueStatus(t *testing.T) {
	e, store, backend := newTestEngine(t, session.StoreConfig{})
	backend.mux.HandleFunc("GET /opd/queue", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]any{{"tokenNumber": 1}, {"tokenNumber": 2}, {"tokenNumber": 3}})
	})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "how long is the queue", dialog.IntentOPDQueueStatus, nil)
	if !strings.Contains(r.Response, "3 patients in the OPD queue") {
		t.Fatalf("got %q", r.Response)
	}
}

func TestLabBookingHandsOffWithCatalogue(t *testing.T) {
	e, store, backend := newTestEngine(t, session.StoreConfig{})
	backend.mux.HandleFunc("GET /lab/tests", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]any{
			{"_id": "t1", "name": "Complete Blood Count", "code": "CBC", "price": 350.0},
			{"_id": "t2", "name": "Lipid Profile", "code": "LIP", "price": 600.0},
		})
	})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "book a blood count test, phone 9876543210", dialog.IntentBookLabTest,
		map[string]string{"phone": "9876543210", "test_name": "blood count"})
	if !strings.Contains(r.Response, "Complete Blood Count") ||
		!strings.Contains(r.Response, "doctor's prescription") {
		t.Fatalf("got %q", r.Response)
	}
	if !r.RequiresHuman {
		t.Error("lab booking always hands off")
	}
}

func TestLabStatusCounts(t *testing.T) {
	e, store, backend := newTestEngine(t, session.StoreConfig{})
	backend.mux.HandleFunc("GET /lab/orders", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("patient"); got != "p1" {
			t.Errorf("patient query = %q, want p1", got)
		}
		envelope(w, []map[string]any{
			{"_id": "o1", "testName": "CBC", "status": "completed"},
			{"_id": "o2", "testName": "Lipid", "status": "pending"},
			{"_id": "o3", "testName": "HbA1c", "status": "completed"},
		})
	})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "are my results ready", dialog.IntentCheckLabStatus,
		map[string]string{"phone": "9876543210"})
	if !strings.Contains(r.Response, "2 lab results ready") ||
		!strings.Contains(r.Response, "1 tests still in progress") {
		t.Fatalf("got %q", r.Response)
	}
}

func TestBillStatusTotalsBalance(t *testing.T) {
	e, store, backend := newTestEngine(t, session.StoreConfig{})
	backend.mux.HandleFunc("GET /billing/patient/p1", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]any{
			{"_id": "b1", "totalAmount": 1500.0, "paidAmount": 500.0, "status": "pending"},
			{"_id": "b2", "totalAmount": 800.0, "paidAmount": 800.0, "status": "paid"},
			{"_id": "b3", "totalAmount": 300.0, "paidAmount": 0.0, "status": "pending"},
		})
	})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "how much do I owe, phone 9876543210", dialog.IntentCheckBillStatus,
		map[string]string{"phone": "9876543210"})
	if !strings.Contains(r.Response, "2 pending bills") ||
		!strings.Contains(r.Response, "Rs. 1300.00") {
		t.Fatalf("got %q", r.Response)
	}
}

func TestStatusInquiryResumesAfterIdentifier(t *testing.T) {
	e, store, backend := newTestEngine(t, session.StoreConfig{})
	backend.mux.HandleFunc("GET /lab/orders", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]any{{"_id": "o1", "testName": "CBC", "status": "completed"}})
	})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "check my results", dialog.IntentCheckLabStatus, nil)
	if !strings.Contains(r.Response, "patient ID or registered phone number") {
		t.Fatalf("got %q", r.Response)
	}
	snap, _ := store.Snapshot(sid)
	if snap.CurrentWorkflow != "status" {
		t.Fatalf("workflow = %q", snap.CurrentWorkflow)
	}

	// The follow-up phone answer resumes the same inquiry.
	r = turn(t, e, sid, "9876543210", dialog.IntentProvideInformation,
		map[string]string{"phone": "9876543210"})
	if !strings.Contains(r.Response, "1 lab results ready") {
		t.Fatalf("got %q", r.Response)
	}
}

func TestEscalateToHuman(t *testing.T) {
	e, store, _ := newTestEngine(t, session.StoreConfig{})
	sid := store.Create("caller", session.ChannelPhone)

	r := turn(t, e, sid, "let me talk to a person", dialog.IntentEscalateToHuman, nil)
	if !r.RequiresHuman || !strings.Contains(r.Response, "reception desk") {
		t.Fatalf("got %+v", r)
	}
}
