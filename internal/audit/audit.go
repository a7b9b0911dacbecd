// Package audit records the compliance trail of every receptionist action:
// session lifecycle, intent classifications, backend calls, escalations and
// sensitive-data sightings. Detail values are PII-masked before they leave
// this package; events flagged sensitive are sealed with AES-256-GCM instead
// of stored in the clear.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karunya-health/vaani/internal/safety"
)

// EventType names one kind of auditable action.
type EventType string

const (
	EventSessionStart      EventType = "session_start"
	EventSessionEnd        EventType = "session_end"
	EventIntentClassified  EventType = "intent_classified"
	EventAPICall           EventType = "api_call"
	EventPatientLookup     EventType = "patient_lookup"
	EventPatientCreate     EventType = "patient_create"
	EventAppointmentBook   EventType = "appointment_book"
	EventEmergencyReported EventType = "emergency_reported"
	EventHumanEscalation   EventType = "human_escalation"
	EventAuthFailure       EventType = "auth_failure"
	EventSensitiveData     EventType = "sensitive_data_detected"
)

// Event is one audit trail entry. Exactly one of Details and Sealed is set:
// sensitive events carry their payload only in sealed form.
type Event struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Type      EventType         `json:"event_type"`
	Details   map[string]string `json:"details,omitempty"`
	Sealed    *Envelope         `json:"sealed,omitempty"`
	Time      time.Time         `json:"time"`
}

// Store persists audit events. Implementations must be safe for concurrent
// use; Record must not block the calling turn longer than the context allows.
type Store interface {
	Record(ctx context.Context, ev Event) error
	SessionEvents(ctx context.Context, sessionID string) ([]Event, error)
	Close()
}

// Logger builds, masks and persists audit events. A nil *Logger is a valid
// no-op so call sites never need nil checks.
type Logger struct {
	store  Store
	sealer *Sealer
}

// NewLogger returns a logger writing to store. sealer may be nil, in which
// case sensitive payloads are dropped rather than stored unsealed.
func NewLogger(store Store, sealer *Sealer) *Logger {
	return &Logger{store: store, sealer: sealer}
}

// Record masks and persists one event. Failures are logged, never returned:
// the audit trail must not take a caller's turn down with it.
func (l *Logger) Record(ctx context.Context, sessionID string, t EventType, details map[string]string) {
	if l == nil {
		return
	}
	ev := Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      t,
		Details:   maskDetails(details),
		Time:      time.Now().UTC(),
	}
	l.write(ctx, ev)
}

// RecordSensitive persists an event whose payload must not be readable at
// rest. The details are masked, serialised and sealed; without a sealer only
// the event type and session survive.
func (l *Logger) RecordSensitive(ctx context.Context, sessionID string, t EventType, details map[string]string) {
	if l == nil {
		return
	}
	ev := Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      t,
		Time:      time.Now().UTC(),
	}
	if l.sealer != nil {
		payload, err := json.Marshal(maskDetails(details))
		if err == nil {
			sealed, serr := l.sealer.Seal(string(payload))
			if serr == nil {
				ev.Sealed = &sealed
			} else {
				err = serr
			}
		}
		if err != nil {
			slog.Error("audit payload not sealed", "session_id", sessionID, "event_type", t, "error", err)
		}
	}
	l.write(ctx, ev)
}

func (l *Logger) write(ctx context.Context, ev Event) {
	if l.store != nil {
		if err := l.store.Record(ctx, ev); err != nil {
			slog.Error("audit event not recorded", "session_id", ev.SessionID, "event_type", ev.Type, "error", err)
		}
	}
	slog.Info("audit event",
		"audit_id", ev.ID,
		"session_id", ev.SessionID,
		"event_type", ev.Type,
		"sealed", ev.Sealed != nil,
	)
}

// SessionEvents returns the trail for one session, oldest first.
func (l *Logger) SessionEvents(ctx context.Context, sessionID string) ([]Event, error) {
	if l == nil || l.store == nil {
		return nil, nil
	}
	return l.store.SessionEvents(ctx, sessionID)
}

// SessionStart records the opening of a call.
func (l *Logger) SessionStart(ctx context.Context, sessionID, callerID, channel string) {
	l.Record(ctx, sessionID, EventSessionStart, map[string]string{
		"caller_id": callerID,
		"channel":   channel,
	})
}

// SessionEnd records the close of a call with its reason ("normal",
// "expired", "deleted", "turn_cap").
func (l *Logger) SessionEnd(ctx context.Context, sessionID, reason string) {
	l.Record(ctx, sessionID, EventSessionEnd, map[string]string{"reason": reason})
}

// Intent records one classification outcome.
func (l *Logger) Intent(ctx context.Context, sessionID, intent string, confidence float64) {
	l.Record(ctx, sessionID, EventIntentClassified, map[string]string{
		"intent":     intent,
		"confidence": strconv.FormatFloat(confidence, 'f', 2, 64),
	})
}

// APICall records one backend request made on the caller's behalf.
func (l *Logger) APICall(ctx context.Context, sessionID, method, endpoint string, status int, success bool) {
	l.Record(ctx, sessionID, EventAPICall, map[string]string{
		"method":   method,
		"endpoint": endpoint,
		"status":   strconv.Itoa(status),
		"success":  strconv.FormatBool(success),
	})
}

// PatientLookup records a search over patient records. The criteria are
// sealed: even masked, a name plus partial phone identifies a person.
func (l *Logger) PatientLookup(ctx context.Context, sessionID string, criteria map[string]string, found int) {
	details := make(map[string]string, len(criteria)+1)
	for k, v := range criteria {
		details[k] = v
	}
	details["results"] = strconv.Itoa(found)
	l.RecordSensitive(ctx, sessionID, EventPatientLookup, details)
}

// Emergency records a reported emergency.
func (l *Logger) Emergency(ctx context.Context, sessionID, emergencyType string) {
	l.Record(ctx, sessionID, EventEmergencyReported, map[string]string{"emergency_type": emergencyType})
}

// Escalation records a hand-off to a human agent.
func (l *Logger) Escalation(ctx context.Context, sessionID, reason string) {
	l.Record(ctx, sessionID, EventHumanEscalation, map[string]string{"reason": reason})
}

// SensitiveData records that a caller spoke data we refuse to hold
// (card numbers, Aadhaar, passwords). Only the kinds are stored.
func (l *Logger) SensitiveData(ctx context.Context, sessionID string, kinds []string) {
	if len(kinds) == 0 {
		return
	}
	l.Record(ctx, sessionID, EventSensitiveData, map[string]string{
		"data_types": strings.Join(kinds, ","),
	})
}

func maskDetails(details map[string]string) map[string]string {
	if details == nil {
		return nil
	}
	masked := make(map[string]string, len(details))
	for k, v := range details {
		masked[k] = safety.Mask(v)
	}
	return masked
}
