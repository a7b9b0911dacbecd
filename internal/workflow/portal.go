package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/session"
)

var (
	confirmWords = []string{"yes", "yeah", "yep", "sure", "ok", "okay", "confirm", "book", "please", "do it", "go ahead"}
	denyWords    = []string{"no", "nope", "cancel", "stop", "don't", "not now"}

	hourPattern = regexp.MustCompile(`\b(\d{1,2})\b`)
)

// Portal books appointments for authenticated patient-portal users with
// their own bearer token: department, doctor, date, slot, confirm. The
// caller's identity comes from the token, so no patient lookup happens.
type Portal struct {
	client *his.Client
}

func NewPortal(client *his.Client) *Portal {
	return &Portal{client: client}
}

func (p *Portal) Name() string { return "portal" }

func (p *Portal) SupportedIntents() []dialog.Intent {
	return []dialog.Intent{
		dialog.IntentBookAppointment,
		dialog.IntentRescheduleAppointment,
		dialog.IntentCancelAppointment,
		dialog.IntentCheckAppointmentStatus,
		dialog.IntentGeneralStatusInquiry,
	}
}

func (p *Portal) Execute(ctx context.Context, wc Context, intent dialog.Intent, entities map[string]string) Result {
	if wc.PatientToken == "" {
		return Result{Response: "Please log in to the patient portal to manage appointments."}
	}
	api := p.client.Portal(wc.PatientToken)

	switch intent {
	case dialog.IntentBookAppointment:
		return p.book(ctx, wc, api, entities)
	case dialog.IntentCheckAppointmentStatus, dialog.IntentGeneralStatusInquiry:
		return p.listAppointments(ctx, api)
	case dialog.IntentCancelAppointment:
		return Result{
			Success: true,
			Response: "To cancel an appointment, please go to your Appointments page where you can " +
				"see all your bookings and cancel any scheduled appointment.",
			IsComplete: true,
		}
	}
	return Result{
		Success:  true,
		Response: "I can help you book appointments, view your scheduled appointments, or cancel them. What would you like to do?",
	}
}

func (p *Portal) book(ctx context.Context, wc Context, api *his.PortalClient, entities map[string]string) Result {
	var calls []session.APICall

	// Department.
	departmentID := wc.pick(entities, "department_id")
	departmentName := wc.pick(entities, "department")
	if departmentID == "" {
		departments, err := api.Departments(ctx)
		calls = append(calls, session.APICall{Method: "GET", Endpoint: "/patient/appointments/departments", Success: err == nil})
		if err != nil || len(departments) == 0 {
			if err != nil {
				slog.Warn("portal department fetch failed", "session_id", wc.SessionID, "error", err)
			}
			return Result{
				Success: true,
				Response: "Which department would you like to visit? " +
					"For example: General Medicine, Cardiology, or Orthopedics.",
				UpdatedState: map[string]any{"step": "need_department"},
				APICalls:     calls,
			}
		}
		names := make([]string, 0, 5)
		for _, d := range departments {
			names = append(names, d.Name)
			if len(names) == 5 {
				break
			}
		}
		return Result{
			Success:  true,
			Response: fmt.Sprintf("Which department would you like to visit? We have: %s.", strings.Join(names, ", ")),
			UpdatedState: map[string]any{
				"step":                  "select_department",
				"available_departments": departments,
			},
			APICalls: calls,
		}
	}

	// Doctor.
	doctorID := wc.pick(entities, "doctor_id")
	doctorName := wc.pick(entities, "doctor_name")
	if doctorID == "" {
		doctors, err := api.Doctors(ctx, departmentID)
		calls = append(calls, session.APICall{Method: "GET", Endpoint: "/patient/appointments/doctors", Success: err == nil})
		if err != nil || len(doctors) == 0 {
			return Result{
				Response: "I couldn't find doctors for that department. Please try another department.",
				UpdatedState: map[string]any{
					"step": "need_department",
				},
				APICalls: calls,
				Err:      err,
			}
		}
		names := make([]string, 0, 3)
		for _, d := range doctors {
			names = append(names, "Dr. "+d.FullName())
			if len(names) == 3 {
				break
			}
		}
		return Result{
			Success:  true,
			Response: fmt.Sprintf("We have these doctors in %s: %s. Who would you like to see?", departmentName, strings.Join(names, ", ")),
			UpdatedState: map[string]any{
				"step":              "select_doctor",
				"available_doctors": doctors,
				"department_id":     departmentID,
				"department":        departmentName,
			},
			APICalls: calls,
		}
	}

	// Date.
	rawDate := wc.pick(entities, "preferred_date")
	if rawDate == "" {
		rawDate = wc.stateString("scheduled_date")
	}
	if rawDate == "" {
		return Result{
			Success:  true,
			Response: "When would you like the appointment? You can say today, tomorrow, or a specific date.",
			UpdatedState: map[string]any{
				"step":          "need_date",
				"department_id": departmentID,
				"department":    departmentName,
				"doctor_id":     doctorID,
				"doctor_name":   doctorName,
			},
			APICalls: calls,
		}
	}
	date := formatDate(rawDate)
	if date == "" {
		return Result{
			Success:      true,
			Response:     "I couldn't understand that date. Please say it as day, month, year, or say today or tomorrow.",
			UpdatedState: map[string]any{"step": "need_date"},
			APICalls:     calls,
		}
	}

	// Time slot.
	preferredTime := wc.pick(entities, "preferred_time")
	if preferredTime == "" {
		preferredTime = wc.stateString("scheduled_time")
	}
	if preferredTime == "" {
		slots, err := api.Slots(ctx, doctorID, date)
		calls = append(calls, session.APICall{Method: "GET", Endpoint: "/patient/appointments/slots", Success: err == nil})
		if err != nil {
			slog.Warn("portal slot fetch failed", "session_id", wc.SessionID, "error", err)
		} else {
			var available []string
			for _, s := range slots {
				if s.Available {
					available = append(available, s.Time)
				}
			}
			if len(available) == 0 {
				return Result{
					Success:  true,
					Response: fmt.Sprintf("Sorry, no slots are available on %s. Would you like to try another date?", date),
					UpdatedState: map[string]any{
						"step":          "need_date",
						"department_id": departmentID,
						"department":    departmentName,
						"doctor_id":     doctorID,
						"doctor_name":   doctorName,
					},
					APICalls: calls,
				}
			}
			shown := available
			if len(shown) > 5 {
				shown = shown[:5]
			}
			return Result{
				Success:  true,
				Response: fmt.Sprintf("Available times on %s: %s. Which time works for you?", date, strings.Join(shown, ", ")),
				UpdatedState: map[string]any{
					"step":           "select_time",
					"scheduled_date": date,
					"department_id":  departmentID,
					"department":     departmentName,
					"doctor_id":      doctorID,
					"doctor_name":    doctorName,
				},
				APICalls: calls,
			}
		}
	}

	// Confirm, then book.
	if entities["confirmed"] == "" && !wc.stateBool("confirmed") {
		summary := "Let me confirm: Appointment"
		if doctorName != "" {
			summary += " with Dr. " + doctorName
		}
		summary += fmt.Sprintf(" in %s on %s", departmentName, date)
		if preferredTime != "" {
			summary += " at " + preferredTime
		}
		summary += ". Shall I book this?"
		return Result{
			Success:  true,
			Response: summary,
			UpdatedState: map[string]any{
				"step":           "awaiting_confirmation",
				"department_id":  departmentID,
				"department":     departmentName,
				"doctor_id":      doctorID,
				"doctor_name":    doctorName,
				"scheduled_date": date,
				"scheduled_time": preferredTime,
			},
			APICalls: calls,
		}
	}

	if preferredTime == "" {
		preferredTime = "10:00"
	}
	booking := his.PortalBooking{
		DoctorID:     doctorID,
		DepartmentID: departmentID,
		Date:         date,
		Time:         preferredTime,
		Notes:        "Booked via Voice Assistant",
	}
	appt, err := api.Book(ctx, booking)
	calls = append(calls, session.APICall{Method: "POST", Endpoint: "/patient/appointments", Success: err == nil})
	if err != nil {
		slog.Error("portal booking failed", "session_id", wc.SessionID, "error", err)
		return Result{
			Response: "I couldn't complete the booking. Please try the Book Appointment page, or tell me another time.",
			APICalls: calls,
			Err:      err,
		}
	}

	aptNumber := appt.AppointmentNumber
	if aptNumber == "" {
		aptNumber = appt.ID
	}
	return Result{
		Success: true,
		Response: fmt.Sprintf("Great! Your appointment is confirmed! Appointment ID: %s. "+
			"You can view it in your appointments. Is there anything else I can help with?", aptNumber),
		IsComplete:      true,
		UpdatedEntities: map[string]string{"appointment_id": appt.ID},
		APICalls:        calls,
	}
}

func (p *Portal) listAppointments(ctx context.Context, api *his.PortalClient) Result {
	appointments, err := api.Appointments(ctx)
	calls := []session.APICall{{Method: "GET", Endpoint: "/patient/appointments", Success: err == nil}}
	if err != nil {
		return Result{
			Response: "I couldn't fetch your appointments. Please check the Appointments page.",
			APICalls: calls,
			Err:      err,
		}
	}
	if len(appointments) == 0 {
		return Result{
			Success:    true,
			Response:   "You don't have any appointments scheduled. Would you like to book one?",
			IsComplete: true,
			APICalls:   calls,
		}
	}

	var upcoming []his.PortalAppointment
	for _, a := range appointments {
		if a.Status == "scheduled" {
			upcoming = append(upcoming, a)
		}
	}
	if len(upcoming) == 0 {
		return Result{
			Success:    true,
			Response:   "All your appointments are completed. Would you like to book a new one?",
			IsComplete: true,
			APICalls:   calls,
		}
	}

	next := upcoming[0]
	date := next.ScheduledDate
	if len(date) > 10 {
		date = date[:10]
	}
	response := fmt.Sprintf("You have %d upcoming appointment(s). Next one is", len(upcoming))
	if next.Doctor != nil {
		response += " with Dr. " + next.Doctor.FullName()
	}
	response += " on " + date
	if next.ScheduledTime != "" {
		response += " at " + next.ScheduledTime
	}
	response += ". Would you like to book another appointment?"
	return Result{Success: true, Response: response, IsComplete: true, APICalls: calls}
}

func (p *Portal) Continue(ctx context.Context, wc Context, newEntities, allEntities map[string]string, isConfirmation, isDenial bool) Result {
	if wc.PatientToken == "" {
		return Result{Response: "Your session has expired. Please log in again."}
	}
	api := p.client.Portal(wc.PatientToken)

	merged := mergedEntities(wc, allEntities, newEntities)
	input := strings.ToLower(strings.TrimSpace(wc.RawInput))

	switch wc.step() {
	case "select_department":
		if departments, ok := wc.State["available_departments"].([]his.Department); ok {
			if d, found := matchDepartment(departments, input); found {
				merged["department_id"] = d.ID
				merged["department"] = d.Name
			}
		}
	case "select_doctor":
		if doctors, ok := wc.State["available_doctors"].([]his.PortalDoctor); ok {
			for _, d := range doctors {
				first := strings.ToLower(d.FirstName)
				last := strings.ToLower(d.LastName)
				if (first != "" && strings.Contains(input, first)) || (last != "" && strings.Contains(input, last)) {
					merged["doctor_id"] = d.ID
					merged["doctor_name"] = d.FullName()
					break
				}
			}
		}
	case "need_date":
		if merged["preferred_date"] == "" && containsWord(input, []string{"today", "tomorrow", "next"}) {
			merged["preferred_date"] = input
		}
	case "select_time":
		if merged["preferred_time"] == "" {
			merged["preferred_time"] = extractTime(wc.RawInput)
		}
	case "awaiting_confirmation":
		confirmed := isConfirmation || containsWord(input, confirmWords)
		denied := isDenial || containsWord(input, denyWords)
		if denied {
			return Result{
				Success:      true,
				Response:     "No problem. Would you like to choose a different time or doctor?",
				UpdatedState: map[string]any{"step": "restart"},
			}
		}
		if confirmed {
			merged["confirmed"] = "yes"
		}
	}

	return p.book(ctx, wc, api, merged)
}

// extractTime pulls a time of day out of free text: an explicit clock time,
// or a bare hour turned into H:00.
func extractTime(raw string) string {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	if strings.Contains(trimmed, ":") || strings.Contains(lower, "am") || strings.Contains(lower, "pm") {
		return trimmed
	}
	if m := hourPattern.FindStringSubmatch(trimmed); m != nil {
		if hour, err := strconv.Atoi(m[1]); err == nil && hour >= 1 && hour <= 23 {
			return fmt.Sprintf("%d:00", hour)
		}
	}
	return ""
}
