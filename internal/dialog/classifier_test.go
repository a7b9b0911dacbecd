package dialog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/karunya-health/vaani/internal/resilience"
)

var noRetry = WithRetry(resilience.RetryPolicy{Name: "test", MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Intent
		conf float64
	}{
		{
			"plain json",
			`{"intent":"BOOK_APPOINTMENT","confidence":0.95,"entities":{"department":"Cardiology"}}`,
			IntentBookAppointment, 0.95,
		},
		{
			"fenced block",
			"Here you go:\n```json\n{\"intent\":\"GREETING\",\"confidence\":0.9,\"entities\":{}}\n```",
			IntentGreeting, 0.9,
		},
		{
			"fence without language tag",
			"```\n{\"intent\":\"CONFIRM_YES\",\"confidence\":0.8,\"entities\":{}}\n```",
			IntentConfirmYes, 0.8,
		},
		{"garbage", "I think the user wants an appointment", IntentUnclear, 0.3},
		{"empty", "", IntentUnclear, 0.3},
		{
			"unknown intent label",
			`{"intent":"ORDER_PIZZA","confidence":0.99,"entities":{}}`,
			IntentUnclear, 0.3,
		},
	}
	for _, tt := range tests {
		got := parseClassification(tt.raw)
		if got.Intent != tt.want || got.Confidence != tt.conf {
			t.Errorf("%s: got %v/%v, want %v/%v", tt.name, got.Intent, got.Confidence, tt.want, tt.conf)
		}
	}
}

func TestParseClassificationStringifiesScalars(t *testing.T) {
	got := parseClassification(`{"intent":"PROVIDE_INFORMATION","confidence":0.9,"entities":{"phone":"9876543210","age":42,"nested":{"x":1}}}`)
	if got.Entities["phone"] != "9876543210" {
		t.Errorf("phone = %q", got.Entities["phone"])
	}
	if got.Entities["age"] != "42" {
		t.Errorf("age = %q", got.Entities["age"])
	}
	if _, ok := got.Entities["nested"]; ok {
		t.Error("nested objects should be dropped, not stringified")
	}
}

func TestLLMClassifierUsesModelReply(t *testing.T) {
	llm := &fakeLLM{reply: `{"intent":"REGISTER_PATIENT","confidence":0.92,"entities":{"first_name":"Asha"},"required_missing_fields":["last_name"]}`}
	res, err := NewLLMClassifier(llm, noRetry).Classify(context.Background(), "register me, I'm Asha", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != IntentRegisterPatient || res.Entities["first_name"] != "Asha" {
		t.Errorf("res = %+v", res)
	}
	if len(res.RequiredMissing) != 1 || res.RequiredMissing[0] != "last_name" {
		t.Errorf("RequiredMissing = %v", res.RequiredMissing)
	}
}

func TestClassifierFallsBackToRules(t *testing.T) {
	llm := &fakeLLM{err: errors.New("provider down")}
	c := NewClassifier(llm, nil, noRetry)

	res, err := c.Classify(context.Background(), "I want to book an appointment", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != IntentBookAppointment {
		t.Errorf("Intent = %v, want BOOK_APPOINTMENT from rules", res.Intent)
	}
	if llm.calls == 0 {
		t.Error("primary should have been tried first")
	}
}

func TestNilLLMMeansRulesOnly(t *testing.T) {
	c := NewClassifier(nil, nil)
	res, err := c.Classify(context.Background(), "hello", nil)
	if err != nil || res.Intent != IntentGreeting {
		t.Errorf("got %v, %v", res, err)
	}
}

func TestMissingRequired(t *testing.T) {
	missing := MissingRequired(IntentBookAppointment, map[string]string{"department": "Cardiology"})
	if len(missing) != 1 || missing[0] != "patient_identifier" {
		t.Errorf("missing = %v", missing)
	}

	if m := MissingRequired(IntentGreeting, nil); m != nil {
		t.Errorf("greeting has no requirements, got %v", m)
	}
}

func TestFollowUpPrompt(t *testing.T) {
	if got := FollowUpPrompt(IntentRegisterPatient, "first_name"); got != "What is the patient's first name?" {
		t.Errorf("got %q", got)
	}
	if got := FollowUpPrompt(IntentRegisterPatient, "blood_group"); got != "Could you tell me your blood group?" {
		t.Errorf("got %q", got)
	}
}
