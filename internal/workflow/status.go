package workflow

import (
	"context"
	"fmt"

	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/session"
)

// Status answers read-only questions: lab results, bills, and upcoming
// appointments.
type Status struct {
	client *his.Client
}

func NewStatus(client *his.Client) *Status {
	return &Status{client: client}
}

func (s *Status) Name() string { return "status" }

func (s *Status) SupportedIntents() []dialog.Intent {
	return []dialog.Intent{
		dialog.IntentCheckLabStatus,
		dialog.IntentCheckBillStatus,
		dialog.IntentCheckAppointmentStatus,
		dialog.IntentGeneralStatusInquiry,
	}
}

func (s *Status) Execute(ctx context.Context, wc Context, intent dialog.Intent, entities map[string]string) Result {
	patientID, calls := resolvePatientID(ctx, s.client, wc, entities)
	if patientID == "" {
		return Result{
			Success:      true,
			Response:     "To check your status, please provide your patient ID or registered phone number.",
			UpdatedState: map[string]any{"step": "need_patient", "inquiry": string(intent)},
			APICalls:     calls,
		}
	}

	switch intent {
	case dialog.IntentCheckLabStatus:
		return s.labStatus(ctx, patientID, calls)
	case dialog.IntentCheckBillStatus:
		return s.billStatus(ctx, patientID, calls)
	case dialog.IntentCheckAppointmentStatus:
		return s.appointmentStatus(ctx, patientID, calls)
	}
	return Result{
		Success: true,
		Response: "What would you like to check? I can help with appointment status, " +
			"lab results, or billing information.",
		UpdatedState:    map[string]any{"step": "which_status"},
		UpdatedEntities: map[string]string{"patient_id": patientID},
		APICalls:        calls,
	}
}

func (s *Status) labStatus(ctx context.Context, patientID string, calls []session.APICall) Result {
	orders, err := s.client.LabOrders(ctx, patientID)
	calls = append(calls, session.APICall{Method: "GET", Endpoint: "/lab/orders", Success: err == nil})
	if err != nil {
		return Result{
			Response: "I couldn't check your lab status. Please visit the lab or call the lab directly.",
			APICalls: calls,
			Err:      err,
		}
	}
	if len(orders) == 0 {
		return Result{
			Success:    true,
			Response:   "I don't see any recent lab orders on your record. Is there anything else I can help with?",
			IsComplete: true,
			APICalls:   calls,
		}
	}

	var pending, completed int
	for _, o := range orders {
		switch o.Status {
		case "pending", "in_progress":
			pending++
		case "completed":
			completed++
		}
	}

	response := ""
	if completed > 0 {
		response = fmt.Sprintf("You have %d lab results ready", completed)
	}
	if pending > 0 {
		if response != "" {
			response += ". "
		}
		response += fmt.Sprintf("%d tests still in progress", pending)
	}
	if completed > 0 {
		response += ". You can collect your reports from the lab."
	}
	return Result{
		Success:         true,
		Response:        response + " Is there anything else I can help with?",
		IsComplete:      true,
		UpdatedEntities: map[string]string{"patient_id": patientID},
		APICalls:        calls,
	}
}

func (s *Status) billStatus(ctx context.Context, patientID string, calls []session.APICall) Result {
	bills, err := s.client.PatientBills(ctx, patientID)
	calls = append(calls, session.APICall{Method: "GET", Endpoint: "/billing/patient/" + patientID, Success: err == nil})
	if err != nil {
		return Result{
			Response: "I couldn't check your billing status. Please visit the billing counter.",
			APICalls: calls,
			Err:      err,
		}
	}
	if len(bills) == 0 {
		return Result{
			Success:    true,
			Response:   "You don't have any pending bills at the moment. Is there anything else I can help with?",
			IsComplete: true,
			APICalls:   calls,
		}
	}

	var pendingCount int
	var totalDue float64
	for _, b := range bills {
		if b.Status != "paid" {
			pendingCount++
			totalDue += b.Total - b.Paid
		}
	}
	if totalDue <= 0 {
		return Result{
			Success:    true,
			Response:   "All your bills have been paid. Is there anything else I can help with?",
			IsComplete: true,
			APICalls:   calls,
		}
	}
	return Result{
		Success: true,
		Response: fmt.Sprintf("You have %d pending bills with a total balance of Rs. %.2f. "+
			"You can make payment at the billing counter. Is there anything else I can help with?", pendingCount, totalDue),
		IsComplete:      true,
		UpdatedEntities: map[string]string{"patient_id": patientID},
		APICalls:        calls,
	}
}

func (s *Status) appointmentStatus(ctx context.Context, patientID string, calls []session.APICall) Result {
	appointments, err := s.client.Appointments(ctx, his.AppointmentFilter{Patient: patientID})
	calls = append(calls, session.APICall{Method: "GET", Endpoint: "/opd/appointments", Success: err == nil})
	if err != nil {
		return Result{
			Response: "I couldn't check your appointment status. Please ask at the reception.",
			APICalls: calls,
			Err:      err,
		}
	}

	var next *his.Appointment
	for i := range appointments {
		if appointments[i].Status == "scheduled" {
			next = &appointments[i]
			break
		}
	}
	if next == nil {
		return Result{
			Success:    true,
			Response:   "You don't have any upcoming appointments. Would you like to book one?",
			IsComplete: true,
			APICalls:   calls,
		}
	}

	dept := ""
	if next.Department != nil {
		dept = next.Department.Name
	}
	return Result{
		Success: true,
		Response: fmt.Sprintf("Your next appointment is on %s at %s in %s. Is there anything else I can help with?",
			next.ScheduledDate, next.ScheduledTime, dept),
		IsComplete:      true,
		UpdatedEntities: map[string]string{"patient_id": patientID},
		APICalls:        calls,
	}
}

func (s *Status) Continue(ctx context.Context, wc Context, newEntities, allEntities map[string]string, isConfirmation, isDenial bool) Result {
	intent := dialog.Intent(wc.stateString("inquiry"))
	if !intent.Known() {
		intent = dialog.IntentGeneralStatusInquiry
	}
	return s.Execute(ctx, wc, intent, mergedEntities(wc, allEntities, newEntities))
}
