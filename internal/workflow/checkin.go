package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/session"
)

// Checkin checks callers in for today's scheduled OPD appointment and
// answers queue questions.
type Checkin struct {
	client *his.Client

	// now is swappable in tests so "today" is deterministic.
	now func() time.Time
}

func NewCheckin(client *his.Client) *Checkin {
	return &Checkin{client: client, now: time.Now}
}

func (c *Checkin) Name() string { return "checkin" }

func (c *Checkin) SupportedIntents() []dialog.Intent {
	return []dialog.Intent{dialog.IntentOPDCheckin, dialog.IntentOPDQueueStatus}
}

func (c *Checkin) Execute(ctx context.Context, wc Context, intent dialog.Intent, entities map[string]string) Result {
	if intent == dialog.IntentOPDQueueStatus {
		return c.queueStatus(ctx)
	}
	return c.checkin(ctx, wc, entities)
}

func (c *Checkin) checkin(ctx context.Context, wc Context, entities map[string]string) Result {
	appointmentID := wc.pick(entities, "appointment_id")
	var calls []session.APICall

	if appointmentID == "" {
		patientID, searchCalls := resolvePatientID(ctx, c.client, wc, entities)
		calls = append(calls, searchCalls...)
		if patientID == "" {
			return Result{
				Success:      true,
				Response:     "To check you in, please provide your patient ID or registered phone number.",
				UpdatedState: map[string]any{"step": "need_identifier"},
				APICalls:     calls,
			}
		}

		today := c.now().Format("2006-01-02")
		appointments, err := c.client.Appointments(ctx, his.AppointmentFilter{
			Patient: patientID,
			Status:  "scheduled",
			Date:    today,
		})
		calls = append(calls, session.APICall{Method: "GET", Endpoint: "/opd/appointments", Success: err == nil})
		if err != nil {
			slog.Error("appointment lookup failed", "session_id", wc.SessionID, "error", err)
			return Result{
				Response:      "I'm having trouble looking up your appointment. Let me connect you with the reception desk.",
				RequiresHuman: true,
				APICalls:      calls,
				Err:           err,
			}
		}

		switch {
		case len(appointments) == 0:
			return Result{
				Success:      true,
				Response:     "I couldn't find an appointment for you today. Would you like to book a new appointment?",
				UpdatedState: map[string]any{"step": "no_appointment", "patient_id": patientID},
				APICalls:     calls,
			}
		case len(appointments) == 1:
			appointmentID = appointments[0].ID
		default:
			times := make([]string, 0, len(appointments))
			for _, a := range appointments {
				t := a.ScheduledTime
				if t == "" {
					t = "unknown time"
				}
				times = append(times, t)
			}
			return Result{
				Success: true,
				Response: fmt.Sprintf("I found %d appointments today at %s. Which one would you like to check in for?",
					len(appointments), strings.Join(times, ", ")),
				UpdatedState: map[string]any{"step": "select_appointment", "patient_id": patientID},
				APICalls:     calls,
			}
		}
	}

	result, err := c.client.CheckInAppointment(ctx, appointmentID)
	calls = append(calls, session.APICall{Method: "PUT", Endpoint: "/opd/appointments/" + appointmentID + "/checkin", Success: err == nil})
	if err != nil {
		slog.Error("check-in failed", "session_id", wc.SessionID, "error", err)
		return Result{
			Response:      "I couldn't complete the check-in. Please visit the reception desk for assistance.",
			RequiresHuman: true,
			APICalls:      calls,
			Err:           err,
		}
	}

	response := fmt.Sprintf("Check-in complete! Your token number is %d.", result.TokenNumber)
	if result.QueuePosition > 0 {
		response += fmt.Sprintf(" You are number %d in the queue.", result.QueuePosition)
	}
	if result.EstimatedWait != "" {
		response += fmt.Sprintf(" Estimated wait time is about %s minutes.", result.EstimatedWait)
	}
	response += " Please have a seat in the waiting area. Is there anything else I can help with?"

	return Result{
		Success:    true,
		Response:   response,
		IsComplete: true,
		APICalls:   calls,
	}
}

func (c *Checkin) queueStatus(ctx context.Context) Result {
	queue, err := c.client.OPDQueue(ctx)
	calls := []session.APICall{{Method: "GET", Endpoint: "/opd/queue", Success: err == nil}}
	if err != nil {
		return Result{
			Response: "I couldn't check the queue status. Please ask at the reception desk.",
			APICalls: calls,
			Err:      err,
		}
	}
	if len(queue) == 0 {
		return Result{
			Success:    true,
			Response:   "The OPD queue is currently empty. There should be no wait time.",
			IsComplete: true,
			APICalls:   calls,
		}
	}
	return Result{
		Success: true,
		Response: fmt.Sprintf("There are currently %d patients in the OPD queue. "+
			"Average wait time is approximately 15-20 minutes.", len(queue)),
		IsComplete: true,
		APICalls:   calls,
	}
}

func (c *Checkin) Continue(ctx context.Context, wc Context, newEntities, allEntities map[string]string, isConfirmation, isDenial bool) Result {
	if wc.step() == "no_appointment" && isConfirmation {
		return Result{
			Success:      true,
			Response:     "Alright, let's book one. Which department would you like to visit?",
			UpdatedState: map[string]any{"step": "booking_offered"},
		}
	}
	return c.checkin(ctx, wc, mergedEntities(wc, allEntities, newEntities))
}
