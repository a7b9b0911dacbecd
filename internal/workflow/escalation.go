package workflow

import (
	"context"
	"log/slog"

	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/session"
)

// Escalation handles emergency reports and requests for a human. An
// emergency always gets the same directions whether or not a case could be
// filed; the backend call must never delay the response.
type Escalation struct {
	client *his.Client
}

func NewEscalation(client *his.Client) *Escalation {
	return &Escalation{client: client}
}

func (e *Escalation) Name() string { return "escalation" }

func (e *Escalation) SupportedIntents() []dialog.Intent {
	return []dialog.Intent{dialog.IntentEscalateToHuman, dialog.IntentReportEmergency}
}

func (e *Escalation) Execute(ctx context.Context, wc Context, intent dialog.Intent, entities map[string]string) Result {
	if intent == dialog.IntentReportEmergency {
		return e.emergency(ctx, wc, entities)
	}

	slog.Info("escalation requested",
		"session_id", wc.SessionID,
		"reason", entities["reason"],
		"turns", wc.TurnCount,
		"workflow", wc.Workflow)
	return Result{
		Success: true,
		Response: "I'll connect you with our reception desk right away. Please hold while I transfer your call. " +
			"If you're at the hospital, you can also approach the main reception counter directly.",
		IsComplete:    true,
		RequiresHuman: true,
	}
}

func (e *Escalation) emergency(ctx context.Context, wc Context, entities map[string]string) Result {
	emergencyType := entities["emergency_type"]
	slog.Error("emergency reported", "session_id", wc.SessionID, "emergency_type", emergencyType)

	patientName := entities["patient_name"]
	if patientName == "" {
		patientName = entities["first_name"]
	}

	var calls []session.APICall
	if patientName != "" {
		complaint := emergencyType
		if complaint == "" {
			complaint = "Emergency - details pending"
		}
		_, err := e.client.CreateEmergencyCase(ctx, his.NewEmergencyCase{
			PatientName:    patientName,
			ChiefComplaint: complaint,
			TriageLevel:    "red",
			Source:         "voice_agent",
		})
		calls = append(calls, session.APICall{Method: "POST", Endpoint: "/emergency/cases", Success: err == nil})
		if err != nil {
			slog.Error("emergency case creation failed", "session_id", wc.SessionID, "error", err)
		} else {
			return Result{
				Success: true,
				Response: "I've alerted our emergency team. Please bring the patient to the Emergency entrance immediately. " +
					"If you're not at the hospital, call " + EmergencyNumber + " for an ambulance. Our emergency team is being notified.",
				IsComplete:    true,
				RequiresHuman: true,
				APICalls:      calls,
			}
		}
	}

	return Result{
		Success: true,
		Response: "I understand this is an emergency. Please come directly to the Emergency entrance of the hospital. " +
			"If you're not nearby, call " + EmergencyNumber + " for an ambulance immediately. " +
			"I'm alerting our emergency team now. Stay on the line if you need further assistance.",
		IsComplete:    true,
		RequiresHuman: true,
		APICalls:      calls,
	}
}

func (e *Escalation) Continue(ctx context.Context, wc Context, newEntities, allEntities map[string]string, isConfirmation, isDenial bool) Result {
	return e.Execute(ctx, wc, dialog.IntentEscalateToHuman, mergedEntities(wc, allEntities, newEntities))
}
