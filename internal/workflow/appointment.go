package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/session"
	"github.com/karunya-health/vaani/internal/validate"
)

// Appointment books OPD appointments for callers on the phone and web
// channels: resolve the patient, pick a department, optionally a doctor,
// a date, then confirm and create. Rescheduling and cancellation are
// handed to staff.
type Appointment struct {
	client *his.Client
}

func NewAppointment(client *his.Client) *Appointment {
	return &Appointment{client: client}
}

func (a *Appointment) Name() string { return "appointment" }

func (a *Appointment) SupportedIntents() []dialog.Intent {
	return []dialog.Intent{
		dialog.IntentBookAppointment,
		dialog.IntentRescheduleAppointment,
		dialog.IntentCancelAppointment,
	}
}

func (a *Appointment) Execute(ctx context.Context, wc Context, intent dialog.Intent, entities map[string]string) Result {
	switch intent {
	case dialog.IntentRescheduleAppointment:
		return Result{
			Success: true,
			Response: "To reschedule an appointment, I'll connect you with our reception desk " +
				"who can check the doctor's availability. Please hold.",
			RequiresHuman: true,
			IsComplete:    true,
		}
	case dialog.IntentCancelAppointment:
		return Result{
			Success: true,
			Response: "To cancel an appointment, I'll connect you with our reception desk. " +
				"They will confirm your identity and cancel it for you.",
			RequiresHuman: true,
			IsComplete:    true,
		}
	}
	return a.book(ctx, wc, entities)
}

// book advances the booking by one question per turn. Everything gathered
// so far rides in the flow state so a follow-up answer resumes where the
// caller left off.
func (a *Appointment) book(ctx context.Context, wc Context, entities map[string]string) Result {
	var calls []session.APICall

	// Patient.
	patientID := wc.pick(entities, "patient_id")
	if patientID == "" {
		phone := wc.pick(entities, "phone")
		if phone == "" {
			return Result{
				Success:      true,
				Response:     "To book an appointment, please provide your patient ID or registered phone number.",
				UpdatedState: map[string]any{"step": "need_patient_id"},
			}
		}
		outcome := validate.Phone(phone)
		if !outcome.OK() {
			return Result{
				Success:      true,
				Response:     outcome.Message + " Or you can give me your patient ID.",
				UpdatedState: map[string]any{"step": "need_patient_id"},
			}
		}

		patients, err := a.client.SearchPatients(ctx, outcome.Value)
		calls = append(calls, session.APICall{Method: "GET", Endpoint: "/patients/search", Success: err == nil})
		switch {
		case err != nil:
			// Search trouble is not fatal; keep collecting and let the
			// final create surface any real problem.
			slog.Warn("patient search failed during booking", "session_id", wc.SessionID, "error", err)
		case len(patients) == 0:
			return Result{
				Success: true,
				Response: "I couldn't find a patient with that phone number. " +
					"Would you like to register as a new patient first?",
				UpdatedState: map[string]any{"step": "no_patient_found", "phone": outcome.Value},
				APICalls:     calls,
			}
		default:
			patientID = patients[0].ID
		}
	}

	// Department.
	departmentID := wc.stateString("department_id")
	departmentName := wc.stateString("department")
	if deptInput := wc.pick(entities, "department"); deptInput != "" && departmentID == "" {
		departments, err := a.client.Departments(ctx)
		calls = append(calls, session.APICall{Method: "GET", Endpoint: "/departments", Success: err == nil})
		if err != nil {
			return Result{
				Response:      "I'm having trouble reaching our scheduling system. Let me connect you to the reception desk.",
				RequiresHuman: true,
				APICalls:      calls,
				Err:           err,
			}
		}
		if d, ok := matchDepartment(departments, deptInput); ok {
			departmentID, departmentName = d.ID, d.Name
		} else {
			names := make([]string, 0, 5)
			for _, d := range departments {
				names = append(names, d.Name)
				if len(names) == 5 {
					break
				}
			}
			return Result{
				Success:      true,
				Response:     fmt.Sprintf("I couldn't find that department. We have: %s. Which one would you like?", strings.Join(names, ", ")),
				UpdatedState: map[string]any{"step": "select_department", "patient_id": patientID},
				APICalls:     calls,
			}
		}
	}
	if departmentID == "" {
		return Result{
			Success: true,
			Response: "Which department would you like to visit? " +
				"For example, Cardiology, Orthopedics, or General Medicine.",
			UpdatedState: map[string]any{"step": "need_department", "patient_id": patientID},
			APICalls:     calls,
		}
	}

	// Doctor, optional. Offered once; booking proceeds without one if the
	// caller doesn't pick.
	doctorID := wc.stateString("doctor_id")
	doctorName := wc.stateString("doctor_name")
	if doctorID == "" {
		if doctors, ok := wc.State["available_doctors"].([]his.Doctor); ok {
			if d, ok := matchDoctor(doctors, wc.RawInput); ok {
				doctorID, doctorName = d.ID, d.FullName()
			} else if len(doctors) == 1 && containsWord(strings.ToLower(wc.RawInput), []string{"yes", "book"}) {
				doctorID, doctorName = doctors[0].ID, doctors[0].FullName()
			}
		}
	}
	if doctorID == "" && !wc.stateBool("doctor_offered") {
		doctors, err := a.client.DepartmentDoctors(ctx, departmentID)
		calls = append(calls, session.APICall{Method: "GET", Endpoint: "/departments/" + departmentID + "/doctors", Success: err == nil})
		if err != nil {
			// Booking works without a named doctor.
			slog.Warn("doctor lookup failed, continuing without", "session_id", wc.SessionID, "error", err)
		} else if len(doctors) > 0 {
			names := make([]string, 0, 3)
			for _, d := range doctors {
				names = append(names, "Dr. "+d.FullName())
				if len(names) == 3 {
					break
				}
			}
			return Result{
				Success:  true,
				Response: fmt.Sprintf("We have these doctors in %s: %s. Would you like to see a specific doctor?", departmentName, strings.Join(names, ", ")),
				UpdatedState: map[string]any{
					"step":              "select_doctor",
					"patient_id":        patientID,
					"department_id":     departmentID,
					"department":        departmentName,
					"available_doctors": doctors,
					"doctor_offered":    true,
				},
				APICalls: calls,
			}
		}
	}

	// Date.
	date := ""
	if raw := wc.pick(entities, "preferred_date"); raw != "" {
		date = formatDate(raw)
	}
	if date == "" {
		date = wc.stateString("scheduled_date")
	}
	if date == "" {
		return Result{
			Success:  true,
			Response: "When would you like the appointment? You can say tomorrow, a weekday, or a specific date.",
			UpdatedState: map[string]any{
				"step":           "need_date",
				"patient_id":     patientID,
				"department_id":  departmentID,
				"department":     departmentName,
				"doctor_id":      doctorID,
				"doctor_name":    doctorName,
				"doctor_offered": true,
			},
			APICalls: calls,
		}
	}

	// Confirm, then create.
	if entities["confirmed"] == "" && !wc.stateBool("confirmed") {
		summary := fmt.Sprintf("Let me confirm: Appointment in %s", departmentName)
		if doctorName != "" {
			summary += " with Dr. " + doctorName
		}
		summary += fmt.Sprintf(" on %s. Shall I book this?", date)
		return Result{
			Success:  true,
			Response: summary,
			UpdatedState: map[string]any{
				"step":           "awaiting_confirmation",
				"patient_id":     patientID,
				"department_id":  departmentID,
				"department":     departmentName,
				"doctor_id":      doctorID,
				"doctor_name":    doctorName,
				"doctor_offered": true,
				"scheduled_date": date,
			},
			APICalls: calls,
		}
	}

	na := his.NewAppointment{
		Patient:        patientID,
		Department:     departmentID,
		ScheduledDate:  date,
		Type:           "opd",
		Doctor:         doctorID,
		ChiefComplaint: wc.pick(entities, "chief_complaint"),
	}
	appt, err := a.client.CreateAppointment(ctx, na)
	calls = append(calls, session.APICall{Method: "POST", Endpoint: "/opd/appointments", Success: err == nil})
	if err != nil {
		slog.Error("appointment creation failed", "session_id", wc.SessionID, "error", err)
		return Result{
			Response:      "I couldn't book the appointment just now. Shall I connect you to the reception desk?",
			RequiresHuman: true,
			APICalls:      calls,
			Err:           err,
		}
	}

	return Result{
		Success: true,
		Response: fmt.Sprintf("Your appointment is confirmed! Appointment number: %s, Token: %d. "+
			"Please arrive 15 minutes before your scheduled time. Is there anything else I can help with?",
			appt.AppointmentNumber, appt.TokenNumber),
		IsComplete:      true,
		UpdatedEntities: map[string]string{"patient_id": patientID, "appointment_id": appt.ID},
		APICalls:        calls,
	}
}

func (a *Appointment) Continue(ctx context.Context, wc Context, newEntities, allEntities map[string]string, isConfirmation, isDenial bool) Result {
	merged := mergedEntities(wc, allEntities, newEntities)

	if wc.step() == "awaiting_confirmation" {
		if isConfirmation {
			merged["confirmed"] = "yes"
			return a.book(ctx, wc, merged)
		}
		if isDenial {
			return Result{
				Success:      true,
				Response:     "No problem. Would you like to choose a different date or department?",
				UpdatedState: map[string]any{"step": "restart", "confirmed": false},
			}
		}
	}
	if wc.step() == "no_patient_found" {
		if isConfirmation {
			// Registration owns the rest of this conversation; the phone
			// number that failed the lookup rides along.
			return Result{
				Success:         true,
				Redirect:        dialog.IntentRegisterPatient,
				UpdatedEntities: map[string]string{"phone": wc.stateString("phone")},
			}
		}
		if isDenial {
			return Result{
				Success:    true,
				Response:   "Alright. Is there anything else I can help you with?",
				IsComplete: true,
			}
		}
	}

	return a.book(ctx, wc, merged)
}

// matchDepartment finds a department whose name contains the input or vice
// versa, case-insensitively.
func matchDepartment(departments []his.Department, input string) (his.Department, bool) {
	needle := strings.ToLower(strings.TrimSpace(input))
	for _, d := range departments {
		name := strings.ToLower(d.Name)
		if strings.Contains(name, needle) || strings.Contains(needle, name) {
			return d, true
		}
	}
	return his.Department{}, false
}

// matchDoctor matches the caller's words against first, last, and full
// names of the doctors on offer.
func matchDoctor(doctors []his.Doctor, input string) (his.Doctor, bool) {
	needle := strings.ToLower(input)
	for _, d := range doctors {
		first := strings.ToLower(d.Profile.FirstName)
		last := strings.ToLower(d.Profile.LastName)
		full := strings.ToLower(d.FullName())
		if (first != "" && strings.Contains(needle, first)) ||
			(last != "" && strings.Contains(needle, last)) ||
			(full != "" && strings.Contains(needle, full)) {
			return d, true
		}
	}
	return his.Doctor{}, false
}
