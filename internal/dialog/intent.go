// Package dialog classifies caller utterances into intents and entities.
// The primary classifier prompts a language model; a rule-based classifier
// covers the cases where no model is configured or the model is down.
package dialog

import "strings"

// Intent is one label from the closed vocabulary. The classifier never
// invents labels outside this set.
type Intent string

const (
	IntentGreeting Intent = "GREETING"
	IntentGoodbye  Intent = "GOODBYE"
	IntentHelp     Intent = "HELP"
	IntentUnclear  Intent = "UNCLEAR"

	IntentRegisterPatient Intent = "REGISTER_PATIENT"
	IntentFindPatient     Intent = "FIND_PATIENT"
	IntentUpdatePatient   Intent = "UPDATE_PATIENT"

	IntentBookAppointment        Intent = "BOOK_APPOINTMENT"
	IntentRescheduleAppointment  Intent = "RESCHEDULE_APPOINTMENT"
	IntentCancelAppointment      Intent = "CANCEL_APPOINTMENT"
	IntentCheckAppointmentStatus Intent = "CHECK_APPOINTMENT_STATUS"

	IntentOPDCheckin     Intent = "OPD_CHECKIN"
	IntentOPDQueueStatus Intent = "OPD_QUEUE_STATUS"

	IntentRequestAdmission     Intent = "REQUEST_ADMISSION"
	IntentCheckBedAvailability Intent = "CHECK_BED_AVAILABILITY"
	IntentRequestBedAllocation Intent = "REQUEST_BED_ALLOCATION"

	IntentBookLabTest    Intent = "BOOK_LAB_TEST"
	IntentCheckLabStatus Intent = "CHECK_LAB_STATUS"

	IntentCheckBillStatus      Intent = "CHECK_BILL_STATUS"
	IntentGeneralStatusInquiry Intent = "GENERAL_STATUS_INQUIRY"

	IntentReportEmergency Intent = "REPORT_EMERGENCY"
	IntentEscalateToHuman Intent = "ESCALATE_TO_HUMAN"

	IntentConfirmYes         Intent = "CONFIRM_YES"
	IntentConfirmNo          Intent = "CONFIRM_NO"
	IntentProvideInformation Intent = "PROVIDE_INFORMATION"
)

var allIntents = map[Intent]struct{}{
	IntentGreeting: {}, IntentGoodbye: {}, IntentHelp: {}, IntentUnclear: {},
	IntentRegisterPatient: {}, IntentFindPatient: {}, IntentUpdatePatient: {},
	IntentBookAppointment: {}, IntentRescheduleAppointment: {}, IntentCancelAppointment: {}, IntentCheckAppointmentStatus: {},
	IntentOPDCheckin: {}, IntentOPDQueueStatus: {},
	IntentRequestAdmission: {}, IntentCheckBedAvailability: {}, IntentRequestBedAllocation: {},
	IntentBookLabTest: {}, IntentCheckLabStatus: {},
	IntentCheckBillStatus: {}, IntentGeneralStatusInquiry: {},
	IntentReportEmergency: {}, IntentEscalateToHuman: {},
	IntentConfirmYes: {}, IntentConfirmNo: {}, IntentProvideInformation: {},
}

// Known reports whether the label is part of the vocabulary.
func (i Intent) Known() bool {
	_, ok := allIntents[i]
	return ok
}

// Continuation reports whether the intent always flows into an active
// workflow rather than starting a new one.
func (i Intent) Continuation() bool {
	switch i {
	case IntentConfirmYes, IntentConfirmNo, IntentProvideInformation:
		return true
	}
	return false
}

// IntentResult is one classification of one utterance.
type IntentResult struct {
	Intent          Intent
	Confidence      float64
	Entities        map[string]string
	RequiredMissing []string
}

// IntentConfig lists the entities a workflow needs before it can act on an
// intent, and the prompt used to ask for each one.
type IntentConfig struct {
	Required        []string
	Optional        []string
	FollowUpPrompts map[string]string
}

// Configs holds the per-intent entity requirements.
var Configs = map[Intent]IntentConfig{
	IntentRegisterPatient: {
		Required: []string{"first_name", "last_name", "phone", "date_of_birth", "gender"},
		Optional: []string{"email", "address", "emergency_contact", "blood_group"},
		FollowUpPrompts: map[string]string{
			"first_name":    "What is the patient's first name?",
			"last_name":     "And the last name?",
			"phone":         "What is the phone number?",
			"date_of_birth": "What is the date of birth?",
			"gender":        "What is the gender - Male, Female, or Other?",
		},
	},
	IntentBookAppointment: {
		Required: []string{"patient_identifier", "department"},
		Optional: []string{"doctor_name", "preferred_date", "preferred_time", "chief_complaint"},
		FollowUpPrompts: map[string]string{
			"patient_identifier": "Please provide your patient ID or registered phone number.",
			"department":         "Which department would you like to visit? For example, Cardiology, Orthopedics, General Medicine.",
			"preferred_date":     "When would you like to schedule the appointment?",
		},
	},
	IntentOPDCheckin: {
		Required: []string{"patient_identifier"},
		Optional: []string{"appointment_number"},
		FollowUpPrompts: map[string]string{
			"patient_identifier": "Please provide your patient ID or registered phone number to check in.",
		},
	},
	IntentCheckBedAvailability: {
		Optional: []string{"ward_type", "bed_type"},
	},
	IntentRequestBedAllocation: {
		Required: []string{"patient_identifier"},
		Optional: []string{"ward_type", "bed_type"},
		FollowUpPrompts: map[string]string{
			"patient_identifier": "Please provide the patient ID for bed allocation.",
		},
	},
	IntentBookLabTest: {
		Required: []string{"patient_identifier"},
		Optional: []string{"test_name"},
		FollowUpPrompts: map[string]string{
			"patient_identifier": "Please provide your patient ID or phone number.",
			"test_name":          "Which lab test would you like to book?",
		},
	},
	IntentCheckLabStatus: {
		Required: []string{"patient_identifier"},
		FollowUpPrompts: map[string]string{
			"patient_identifier": "Please provide your patient ID or phone number to check lab status.",
		},
	},
	IntentCheckBillStatus: {
		Required: []string{"patient_identifier"},
		Optional: []string{"bill_number"},
		FollowUpPrompts: map[string]string{
			"patient_identifier": "Please provide your patient ID or phone number.",
		},
	},
	IntentEscalateToHuman: {
		Optional: []string{"reason"},
	},
}

// MissingRequired returns the required entities of intent not yet present
// with a non-empty value in entities.
func MissingRequired(intent Intent, entities map[string]string) []string {
	cfg, ok := Configs[intent]
	if !ok {
		return nil
	}
	var missing []string
	for _, field := range cfg.Required {
		if entities[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// FollowUpPrompt returns the question to ask for one missing field.
func FollowUpPrompt(intent Intent, field string) string {
	if p, ok := Configs[intent].FollowUpPrompts[field]; ok {
		return p
	}
	return "Could you tell me your " + strings.ReplaceAll(field, "_", " ") + "?"
}
