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

// Registration handles new patient registration and record lookup. It
// collects the required fields one question at a time, validates phone and
// date of birth, and reads the details back before creating the record.
type Registration struct {
	client *his.Client
}

func NewRegistration(client *his.Client) *Registration {
	return &Registration{client: client}
}

// registrationFields are the session-bag keys the flow collects; they are
// dropped wholesale when the caller rejects the read-back.
var registrationFields = []string{
	"first_name", "last_name", "phone", "date_of_birth", "gender", "email", "address",
}

func (r *Registration) Name() string { return "registration" }

func (r *Registration) SupportedIntents() []dialog.Intent {
	return []dialog.Intent{dialog.IntentRegisterPatient, dialog.IntentFindPatient, dialog.IntentUpdatePatient}
}

func (r *Registration) Execute(ctx context.Context, wc Context, intent dialog.Intent, entities map[string]string) Result {
	switch intent {
	case dialog.IntentFindPatient:
		return r.find(ctx, wc, entities)
	case dialog.IntentRegisterPatient:
		return r.register(ctx, wc, entities)
	}
	return Result{
		Response: "Patient record changes need identity verification at the front desk. " +
			"Please visit reception with a photo ID, or I can connect you with them now.",
		RequiresHuman: true,
		IsComplete:    true,
		Success:       true,
	}
}

func (r *Registration) find(ctx context.Context, wc Context, entities map[string]string) Result {
	phone := wc.pick(entities, "phone")
	patientID := wc.pick(entities, "patient_id")
	name := wc.pick(entities, "first_name")
	if name == "" {
		name = wc.pick(entities, "name")
	}

	if phone == "" && patientID == "" && name == "" {
		return Result{
			Success:      true,
			Response:     "To find your record, please provide your patient ID, phone number, or name.",
			UpdatedState: map[string]any{"step": "waiting_for_identifier"},
		}
	}

	query := name
	if patientID != "" {
		query = patientID
	}
	if phone != "" {
		if outcome := validate.Phone(phone); outcome.OK() {
			query = outcome.Value
		}
	}

	patients, err := r.client.SearchPatients(ctx, query)
	calls := []session.APICall{{Method: "GET", Endpoint: "/patients/search", Success: err == nil}}
	if err != nil {
		return Result{
			Response: "I'm having trouble searching our records. Please try again, " +
				"or I can connect you to the reception desk.",
			APICalls: calls,
			Err:      err,
		}
	}

	switch {
	case len(patients) == 0:
		return Result{
			Success:      true,
			Response:     "I couldn't find a patient record with that information. Would you like to register as a new patient?",
			UpdatedState: map[string]any{"step": "offer_registration", "phone": query},
			APICalls:     calls,
		}
	case len(patients) == 1:
		p := patients[0]
		return Result{
			Success:    true,
			Response:   fmt.Sprintf("I found your record. You are %s, Patient ID: %s. How can I help you today?", p.FullName(), p.PatientID),
			IsComplete: true,
			UpdatedEntities: map[string]string{
				"patient_id":   p.ID,
				"patient_uhid": p.PatientID,
			},
			APICalls: calls,
		}
	default:
		names := make([]string, 0, 3)
		for _, p := range patients {
			names = append(names, p.FullName())
			if len(names) == 3 {
				break
			}
		}
		return Result{
			Success:      true,
			Response:     fmt.Sprintf("I found %d patients. Could you confirm which one? %s?", len(patients), strings.Join(names, ", ")),
			UpdatedState: map[string]any{"step": "disambiguate"},
			APICalls:     calls,
		}
	}
}

func (r *Registration) register(ctx context.Context, wc Context, entities map[string]string) Result {
	if missing := dialog.MissingRequired(dialog.IntentRegisterPatient, entities); len(missing) > 0 {
		return Result{
			Success:      true,
			Response:     dialog.FollowUpPrompt(dialog.IntentRegisterPatient, missing[0]),
			UpdatedState: map[string]any{"step": "collecting_info"},
		}
	}

	phone := validate.Phone(entities["phone"])
	if !phone.OK() {
		return Result{
			Success:      true,
			Response:     "The phone number doesn't seem valid. Please provide a 10-digit mobile number.",
			UpdatedState: map[string]any{"step": "fix_phone"},
		}
	}

	dob := validate.Date(entities["date_of_birth"], validate.DateOptions{MaxFutureDays: -1})
	if !dob.OK() {
		return Result{
			Success:      true,
			Response:     "I couldn't understand the date of birth. Please say it as day, month, year. For example, 15 January 1985.",
			UpdatedState: map[string]any{"step": "fix_dob"},
		}
	}

	gender := validate.Gender(entities["gender"])
	if !gender.OK() {
		return Result{
			Success:      true,
			Response:     gender.Message,
			UpdatedState: map[string]any{"step": "fix_gender"},
		}
	}

	if entities["confirmed"] == "" && !wc.stateBool("confirmed") {
		summary := fmt.Sprintf("Let me confirm the details:\nName: %s %s\nPhone: %s\nDate of Birth: %s\nGender: %s\n\nIs this correct?",
			entities["first_name"], entities["last_name"], phone.Value, dob.Value, gender.Value)
		return Result{
			Success:  true,
			Response: summary,
			UpdatedState: map[string]any{
				"step":            "awaiting_confirmation",
				"validated_phone": phone.Value,
				"validated_dob":   dob.Value,
				"first_name":      entities["first_name"],
				"last_name":       entities["last_name"],
				"gender":          entities["gender"],
				"email":           entities["email"],
				"address":         entities["address"],
			},
		}
	}

	np := his.NewPatient{
		FirstName:   entities["first_name"],
		LastName:    entities["last_name"],
		Phone:       phone.Value,
		DateOfBirth: dob.Value,
		Gender:      gender.Value,
		Email:       entities["email"],
	}
	if entities["address"] != "" {
		np.Address = &his.PatientAddress{Street: entities["address"]}
	}

	patient, err := r.client.CreatePatient(ctx, np)
	calls := []session.APICall{{Method: "POST", Endpoint: "/patients", Success: err == nil}}
	if err != nil {
		slog.Error("patient creation failed", "session_id", wc.SessionID, "error", err)
		return Result{
			Response:      "I encountered an issue creating your record. Let me transfer you to the reception desk for assistance.",
			RequiresHuman: true,
			APICalls:      calls,
			Err:           err,
		}
	}

	return Result{
		Success: true,
		Response: fmt.Sprintf("Registration complete! Your patient ID is %s. Please save this number for future visits. How else can I help you today?",
			patient.PatientID),
		IsComplete: true,
		UpdatedEntities: map[string]string{
			"patient_id":   patient.ID,
			"patient_uhid": patient.PatientID,
		},
		APICalls: calls,
	}
}

func (r *Registration) Continue(ctx context.Context, wc Context, newEntities, allEntities map[string]string, isConfirmation, isDenial bool) Result {
	merged := mergedEntities(wc, allEntities, newEntities)

	switch wc.step() {
	case "awaiting_confirmation":
		if isConfirmation {
			merged["confirmed"] = "yes"
			if merged["phone"] == "" {
				merged["phone"] = wc.stateString("validated_phone")
			}
			if merged["date_of_birth"] == "" {
				merged["date_of_birth"] = wc.stateString("validated_dob")
			}
			return r.register(ctx, wc, merged)
		}
		if isDenial {
			// Starting over means forgetting the fields too, not just the
			// step marker; otherwise the rejected read-back reassembles
			// itself from the session bag on the next turn.
			return Result{
				Success:         true,
				Response:        "No problem. Let's start over. What is the patient's first name?",
				ResetState:      true,
				UpdatedState:    map[string]any{"step": "collecting_info"},
				ClearedEntities: registrationFields,
			}
		}
	case "offer_registration":
		if isConfirmation {
			return Result{
				Success:      true,
				Response:     "Let's register you as a new patient. What is your first name?",
				UpdatedState: map[string]any{"step": "collecting_info"},
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

	return r.register(ctx, wc, merged)
}
