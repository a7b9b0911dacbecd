package dialog

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/karunya-health/vaani/internal/validate"
)

// Keyword tables for the rule classifier. Matching order matters: status
// queries run before action keywords so "check my appointment" is a status
// question, not a booking.
var (
	emergencyWords = []string{"emergency", "urgent", "accident", "heart attack", "stroke", "unconscious", "bleeding", "ambulance"}
	handoffWords   = []string{"speak to", "human", "person", "transfer", "operator", "receptionist"}
	greetingWords  = []string{"hello", "hi", "good morning", "good afternoon", "good evening", "namaste"}
	goodbyeWords   = []string{"bye", "goodbye", "thank you", "thanks"}
	statusWords    = []string{"status", "result", "report", "check my", "where is"}

	affirmations = []string{"yes", "yeah", "yep", "correct", "right", "ok", "okay", "sure"}
	denials      = []string{"no", "nope", "cancel", "wrong", "incorrect"}

	datePattern  = regexp.MustCompile(`\b\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}\b`)
	timePattern  = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?:\s?[ap]m)?\b`)
	phonePattern = regexp.MustCompile(`\b(\d{10})\b`)
	phoneNoise   = regexp.MustCompile(`[\s\-.]`)

	relativeDates = []string{"today", "tomorrow", "next week", "next monday", "next tuesday", "next wednesday", "next thursday", "next friday", "next saturday", "next sunday"}

	stopwords = map[string]struct{}{
		"i": {}, "a": {}, "the": {}, "is": {}, "my": {}, "for": {},
		"to": {}, "and": {}, "or": {}, "in": {}, "on": {}, "at": {},
	}
)

// actionRules are the step-five keyword buckets, checked in order.
var actionRules = []struct {
	intent     Intent
	confidence float64
	words      []string
}{
	{IntentBookAppointment, 0.7, []string{"appointment", "book", "schedule"}},
	{IntentRegisterPatient, 0.7, []string{"register", "new patient"}},
	{IntentOPDCheckin, 0.7, []string{"check in", "arrived", "here for"}},
	{IntentCheckBedAvailability, 0.6, []string{"bed", "room", "admission"}},
	{IntentBookLabTest, 0.6, []string{"lab", "test", "blood"}},
	{IntentCheckBillStatus, 0.6, []string{"bill", "payment", "owe"}},
}

// RuleClassifier is the deterministic fallback: keyword tables plus a few
// regex extractors, checked in a fixed priority order with the first match
// winning.
type RuleClassifier struct {
	departments *validate.DepartmentResolver
}

// NewRuleClassifier builds the fallback classifier. departments may be nil,
// in which case a resolver over the standard list is used.
func NewRuleClassifier(departments *validate.DepartmentResolver) *RuleClassifier {
	if departments == nil {
		departments = validate.NewDepartmentResolver(nil)
	}
	return &RuleClassifier{departments: departments}
}

// Classify never fails; the worst outcome is UNCLEAR.
func (rc *RuleClassifier) Classify(_ context.Context, text string, _ map[string]any) (IntentResult, error) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if containsAny(lower, emergencyWords) {
		return result(IntentReportEmergency, 0.9, nil), nil
	}
	if containsAny(lower, handoffWords) {
		return result(IntentEscalateToHuman, 0.8, nil), nil
	}
	if containsAny(lower, greetingWords) {
		return result(IntentGreeting, 0.8, nil), nil
	}
	if containsAny(lower, goodbyeWords) {
		return result(IntentGoodbye, 0.8, nil), nil
	}
	if containsAny(lower, statusWords) {
		return result(IntentGeneralStatusInquiry, 0.7, nil), nil
	}

	for _, rule := range actionRules {
		if containsAny(lower, rule.words) {
			return result(rule.intent, rule.confidence, nil), nil
		}
	}

	if exactMatch(lower, affirmations) {
		return result(IntentConfirmYes, 0.85, nil), nil
	}
	if exactMatch(lower, denials) {
		return result(IntentConfirmNo, 0.85, nil), nil
	}

	if dept, ok := rc.departments.ResolveExact(lower); ok {
		return result(IntentProvideInformation, 0.85, map[string]string{"department": dept}), nil
	}

	if m := datePattern.FindString(trimmed); m != "" {
		return result(IntentProvideInformation, 0.85, map[string]string{"date": m, "preferred_date": m}), nil
	}
	if containsAny(lower, relativeDates) {
		return result(IntentProvideInformation, 0.85, map[string]string{"date": trimmed, "preferred_date": trimmed}), nil
	}

	if m := timePattern.FindString(trimmed); m != "" {
		return result(IntentProvideInformation, 0.85, map[string]string{"time": m, "preferred_time": m}), nil
	}

	if m := phonePattern.FindString(phoneNoise.ReplaceAllString(trimmed, "")); m != "" {
		return result(IntentProvideInformation, 0.8, map[string]string{"phone": m}), nil
	}

	words := strings.Fields(trimmed)
	if len(words) > 0 && len(words) <= 3 && looksLikeName(words) {
		return result(IntentProvideInformation, 0.7, map[string]string{"name": trimmed}), nil
	}
	if len(words) > 0 && len(words) <= 3 {
		return result(IntentProvideInformation, 0.5, map[string]string{"value": trimmed}), nil
	}

	return result(IntentUnclear, 0.3, nil), nil
}

func result(intent Intent, confidence float64, entities map[string]string) IntentResult {
	if entities == nil {
		entities = map[string]string{}
	}
	return IntentResult{Intent: intent, Confidence: confidence, Entities: entities}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func exactMatch(text string, words []string) bool {
	for _, w := range words {
		if text == w {
			return true
		}
	}
	return false
}

// looksLikeName accepts short phrases where every non-stopword starts with an
// upper-case letter ("Asha Rao", "Dr. Sharma").
func looksLikeName(words []string) bool {
	for _, w := range words {
		if _, stop := stopwords[strings.ToLower(w)]; stop {
			continue
		}
		r := []rune(w)
		if len(r) == 0 || !unicode.IsUpper(r[0]) {
			return false
		}
	}
	return true
}
