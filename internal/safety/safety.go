// Package safety gates every classified intent before a workflow may act on
// it: emergency and hand-off keyword scans, confidence banding with
// per-intent thresholds, auto-escalation triggers, and PII masking for
// anything that reaches a log line or audit record.
package safety

import (
	"fmt"
	"log/slog"
	"strings"
)

// Action is the safety verdict for one classified turn.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionConfirm  Action = "confirm"
	ActionClarify  Action = "clarify"
	ActionEscalate Action = "escalate"
	ActionBlock    Action = "block"
)

// Confidence band boundaries. At or above High the intent is acted on
// directly; the Medium band defers to the per-intent threshold; the Low band
// asks the caller to rephrase; below Low they are asked to repeat.
const (
	defaultHigh   = 0.85
	defaultMedium = 0.65
	defaultLow    = 0.40
)

// Escalation triggers independent of any single turn.
const (
	maxTurnsBeforeEscalation = 15
	maxIntentFailures        = 3
)

const escalationMessage = "I've been trying to help but it seems complex. Let me connect you with a human receptionist who can assist you better."

// defaultIntentThresholds replaces the global bands for intents where a
// wrong guess is expensive. REPORT_EMERGENCY is deliberately permissive.
var defaultIntentThresholds = map[string]float64{
	"REGISTER_PATIENT":       0.80,
	"BOOK_APPOINTMENT":       0.75,
	"REPORT_EMERGENCY":       0.50,
	"REQUEST_BED_ALLOCATION": 0.80,
	"CANCEL_APPOINTMENT":     0.85,
}

var defaultEmergencyKeywords = []string{
	"emergency", "urgent", "accident", "heart attack", "stroke",
	"bleeding", "unconscious", "chest pain", "breathing problem",
	"seizure", "collapse", "dying", "critical", "ambulance",
}

var defaultHandoffKeywords = []string{
	"human", "person", "real person", "speak to someone",
	"transfer", "operator", "receptionist", "manager",
	"not working", "useless", "stupid bot", "talk to human",
}

// intentActions turns an intent name into the phrase used in confirmation
// prompts ("Just to confirm, did you want to ...?").
var intentActions = map[string]string{
	"REGISTER_PATIENT":       "register as a new patient",
	"FIND_PATIENT":           "look up your patient record",
	"BOOK_APPOINTMENT":       "book an appointment",
	"RESCHEDULE_APPOINTMENT": "reschedule your appointment",
	"CANCEL_APPOINTMENT":     "cancel your appointment",
	"OPD_CHECKIN":            "check in for your appointment",
	"CHECK_BED_AVAILABILITY": "check bed availability",
	"REQUEST_BED_ALLOCATION": "request a bed",
	"BOOK_LAB_TEST":          "book a lab test",
	"CHECK_LAB_STATUS":       "check your lab results",
	"CHECK_BILL_STATUS":      "check your bill status",
}

// Config tunes a [Guardrails]. Zero values fall back to the built-in policy.
type Config struct {
	HighConfidence   float64
	MediumConfidence float64
	LowConfidence    float64

	// IntentThresholds is merged over the built-in per-intent minimums.
	IntentThresholds map[string]float64

	// ExtraEmergencyKeywords and ExtraHandoffKeywords extend the built-in
	// scan lists.
	ExtraEmergencyKeywords []string
	ExtraHandoffKeywords   []string
}

// Guardrails evaluates the safety policy. Read-only after construction and
// safe for concurrent use; hot reload swaps the whole value.
type Guardrails struct {
	high, medium, low float64
	thresholds        map[string]float64
	emergencyKeywords []string
	handoffKeywords   []string
}

// New builds a [Guardrails] from cfg.
func New(cfg Config) *Guardrails {
	g := &Guardrails{
		high:   cfg.HighConfidence,
		medium: cfg.MediumConfidence,
		low:    cfg.LowConfidence,
	}
	if g.high == 0 {
		g.high = defaultHigh
	}
	if g.medium == 0 {
		g.medium = defaultMedium
	}
	if g.low == 0 {
		g.low = defaultLow
	}

	g.thresholds = make(map[string]float64, len(defaultIntentThresholds)+len(cfg.IntentThresholds))
	for k, v := range defaultIntentThresholds {
		g.thresholds[k] = v
	}
	for k, v := range cfg.IntentThresholds {
		g.thresholds[k] = v
	}

	g.emergencyKeywords = append(append([]string{}, defaultEmergencyKeywords...), cfg.ExtraEmergencyKeywords...)
	g.handoffKeywords = append(append([]string{}, defaultHandoffKeywords...), cfg.ExtraHandoffKeywords...)
	return g
}

// Decision is the outcome of [Guardrails.Evaluate].
type Decision struct {
	Action Action

	// Message is spoken to the caller for confirm/clarify/escalate
	// decisions. Empty for allow, and deliberately empty for emergency
	// overrides so the emergency workflow speaks instead.
	Message string

	// IntentOverride replaces the classified intent when a keyword scan
	// fires (REPORT_EMERGENCY or ESCALATE_TO_HUMAN).
	IntentOverride string

	// LogText is the masked raw text, the only form that may be logged.
	LogText string
}

// TurnContext carries the per-session counters the policy needs.
type TurnContext struct {
	TurnCount     int
	FailedIntents int
}

// Evaluate runs the full safety policy for one turn. Evaluation order:
// emergency keywords, hand-off keywords, confidence gate, auto-escalation.
// A keyword-forced emergency always wins over the confidence gate, so a
// whispered "chest pain" is never answered with "could you repeat that".
func (g *Guardrails) Evaluate(intent string, confidence float64, rawText string, tc TurnContext) Decision {
	d := Decision{Action: ActionAllow, LogText: Mask(rawText)}

	if hit, keyword := g.CheckEmergency(rawText); hit {
		slog.Warn("emergency keyword detected", "keyword", keyword)
		d.Action = ActionEscalate
		d.IntentOverride = "REPORT_EMERGENCY"
		return d
	}

	if g.CheckHandoff(rawText) {
		slog.Info("human hand-off requested")
		d.Action = ActionEscalate
		d.IntentOverride = "ESCALATE_TO_HUMAN"
		return d
	}

	if action, msg := g.gateConfidence(intent, confidence); action != ActionAllow {
		// A gated turn counts as a failed intent. When this one would tip
		// the consecutive count over the limit, stop asking the caller to
		// rephrase and hand off instead.
		if tc.FailedIntents+1 >= maxIntentFailures || tc.TurnCount >= maxTurnsBeforeEscalation {
			d.Action = ActionEscalate
			d.Message = escalationMessage
			return d
		}
		d.Action = action
		d.Message = msg
		return d
	}

	if tc.TurnCount >= maxTurnsBeforeEscalation || tc.FailedIntents >= maxIntentFailures {
		d.Action = ActionEscalate
		d.Message = escalationMessage
		return d
	}

	return d
}

// gateConfidence applies the band policy. A confidence exactly equal to a
// boundary resolves upward (0.85 is HIGH, a threshold match is allow).
func (g *Guardrails) gateConfidence(intent string, confidence float64) (Action, string) {
	threshold, ok := g.thresholds[intent]
	if !ok {
		threshold = g.medium
	}

	switch {
	case confidence >= g.high:
		return ActionAllow, ""
	case confidence >= g.medium:
		if confidence >= threshold {
			return ActionAllow, ""
		}
		return ActionConfirm, fmt.Sprintf("Just to confirm, did you want to %s?", intentAction(intent))
	case confidence >= g.low:
		return ActionClarify, "I'm not quite sure I understood. Could you please tell me again what you'd like to do?"
	default:
		return ActionClarify, "I'm sorry, I didn't catch that. Could you please repeat?"
	}
}

// CheckEmergency reports whether text contains an emergency indicator and
// which keyword fired.
func (g *Guardrails) CheckEmergency(text string) (bool, string) {
	lower := strings.ToLower(text)
	for _, kw := range g.emergencyKeywords {
		if strings.Contains(lower, kw) {
			return true, kw
		}
	}
	return false, ""
}

// CheckHandoff reports whether the caller is asking for a human.
func (g *Guardrails) CheckHandoff(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range g.handoffKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ValidateBeforeAction is the final gate before a mutating backend call.
// Cancellations need an appointment identifier or an explicit confirmation;
// patient creation must have its minimum fields even after a confirmation.
func (g *Guardrails) ValidateBeforeAction(intent string, entities map[string]string, confirmed bool) (Action, string) {
	switch intent {
	case "CANCEL_APPOINTMENT":
		if entities["appointment_id"] == "" && !confirmed {
			return ActionConfirm, "I want to make sure I cancel the right appointment. Could you confirm the appointment details?"
		}
	case "REGISTER_PATIENT":
		if confirmed {
			var missing []string
			for _, f := range []string{"first_name", "last_name", "phone"} {
				if entities[f] == "" {
					missing = append(missing, f)
				}
			}
			if len(missing) > 0 {
				return ActionClarify, fmt.Sprintf("I still need your %s to complete registration.", strings.Join(missing, ", "))
			}
		}
	}
	return ActionAllow, ""
}

func intentAction(intent string) string {
	if a, ok := intentActions[intent]; ok {
		return a
	}
	return "proceed with that"
}
