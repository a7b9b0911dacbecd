package dialog

import (
	"context"
	"testing"
)

func classify(t *testing.T, text string) IntentResult {
	t.Helper()
	res, err := NewRuleClassifier(nil).Classify(context.Background(), text, nil)
	if err != nil {
		t.Fatalf("Classify(%q): %v", text, err)
	}
	return res
}

func TestRulePriorityOrder(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"there's been an accident, send an ambulance", IntentReportEmergency},
		{"I want to speak to a person", IntentEscalateToHuman},
		{"hello there", IntentGreeting},
		{"thanks, bye", IntentGoodbye},

		// Status words win over action words.
		{"check my appointment please", IntentGeneralStatusInquiry},
		{"are my lab results ready", IntentGeneralStatusInquiry},

		{"I want to book an appointment", IntentBookAppointment},
		{"register me as a new patient", IntentRegisterPatient},
		{"I have arrived for my visit", IntentOPDCheckin},
		{"do you have a bed free", IntentCheckBedAvailability},
		{"I need a blood sample taken", IntentBookLabTest},
		{"how much do I owe", IntentCheckBillStatus},

		{"yes", IntentConfirmYes},
		{"okay", IntentConfirmYes},
		{"nope", IntentConfirmNo},

		{"completely incomprehensible rambling that goes on and on without keywords", IntentUnclear},
	}
	for _, tt := range tests {
		if got := classify(t, tt.text); got.Intent != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.text, got.Intent, tt.want)
		}
	}
}

func TestRuleEmergencyConfidence(t *testing.T) {
	res := classify(t, "this is an emergency")
	if res.Intent != IntentReportEmergency || res.Confidence != 0.9 {
		t.Errorf("got %v/%v", res.Intent, res.Confidence)
	}
}

func TestRuleDepartmentExtraction(t *testing.T) {
	res := classify(t, "Cardiology")
	if res.Intent != IntentProvideInformation || res.Entities["department"] != "Cardiology" {
		t.Errorf("got %v %v", res.Intent, res.Entities)
	}

	res = classify(t, "something for the heart")
	if res.Entities["department"] != "Cardiology" {
		t.Errorf("alias not resolved: %v", res.Entities)
	}
}

func TestRuleDateExtraction(t *testing.T) {
	res := classify(t, "25/12/2026")
	if res.Intent != IntentProvideInformation || res.Entities["date"] != "25/12/2026" {
		t.Errorf("got %v %v", res.Intent, res.Entities)
	}
	if res.Entities["preferred_date"] != "25/12/2026" {
		t.Errorf("preferred_date missing: %v", res.Entities)
	}

	res = classify(t, "Tomorrow")
	if res.Entities["date"] != "Tomorrow" {
		t.Errorf("relative date: %v", res.Entities)
	}
}

func TestRuleTimeExtraction(t *testing.T) {
	res := classify(t, "10:30 am")
	if res.Entities["time"] != "10:30 am" || res.Entities["preferred_time"] != "10:30 am" {
		t.Errorf("got %v", res.Entities)
	}
}

func TestRulePhoneExtraction(t *testing.T) {
	res := classify(t, "98765 432-10")
	if res.Entities["phone"] != "9876543210" {
		t.Errorf("got %v", res.Entities)
	}
}

func TestRuleNameExtraction(t *testing.T) {
	res := classify(t, "Asha Rao")
	if res.Intent != IntentProvideInformation || res.Entities["name"] != "Asha Rao" {
		t.Errorf("got %v %v", res.Intent, res.Entities)
	}
}

func TestRuleShortValueFallback(t *testing.T) {
	res := classify(t, "male")
	if res.Intent != IntentProvideInformation || res.Entities["value"] != "male" {
		t.Errorf("got %v %v", res.Intent, res.Entities)
	}
	if res.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", res.Confidence)
	}
}
