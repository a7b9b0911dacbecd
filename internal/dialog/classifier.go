package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/karunya-health/vaani/internal/resilience"
	"github.com/karunya-health/vaani/internal/validate"
)

// Classifier converts one utterance plus conversation context into an
// [IntentResult].
type Classifier interface {
	Classify(ctx context.Context, text string, convCtx map[string]any) (IntentResult, error)
}

// LLM is the single completion call the classifier needs from a language
// model provider.
type LLM interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const classifyTimeout = 30 * time.Second

// systemPrompt pins the receptionist persona and the strict JSON contract.
const systemPrompt = `You are an AI voice receptionist for a hospital. You help callers with
patient registration, finding patient records, booking, rescheduling or
cancelling appointments, OPD check-in, bed availability and allocation, lab
test booking, and status inquiries for appointments, bills and lab results.

Rules:
1. Never invent patient IDs, appointment numbers or doctor names.
2. Ask for clarification when information is missing.
3. Be concise; this is a phone call.
4. For emergencies, always classify as REPORT_EMERGENCY.

You MUST respond with a single JSON object:
{
  "intent": "<INTENT_NAME>",
  "confidence": <0.0-1.0>,
  "entities": {"<entity_name>": "<value>"},
  "required_missing_fields": ["<field>"]
}

Valid intents: GREETING, GOODBYE, HELP, UNCLEAR, REGISTER_PATIENT,
FIND_PATIENT, UPDATE_PATIENT, BOOK_APPOINTMENT, RESCHEDULE_APPOINTMENT,
CANCEL_APPOINTMENT, CHECK_APPOINTMENT_STATUS, OPD_CHECKIN, OPD_QUEUE_STATUS,
REQUEST_ADMISSION, CHECK_BED_AVAILABILITY, REQUEST_BED_ALLOCATION,
BOOK_LAB_TEST, CHECK_LAB_STATUS, CHECK_BILL_STATUS, GENERAL_STATUS_INQUIRY,
REPORT_EMERGENCY, ESCALATE_TO_HUMAN, CONFIRM_YES, CONFIRM_NO,
PROVIDE_INFORMATION.

Entities to extract when present: first_name, last_name, phone, patient_id,
date_of_birth, gender, department, doctor_name, preferred_date,
preferred_time, chief_complaint, test_name.`

// LLMClassifier prompts a language model and parses its JSON reply.
type LLMClassifier struct {
	llm     LLM
	retry   resilience.RetryPolicy
	timeout time.Duration
}

// LLMOption tunes an [LLMClassifier].
type LLMOption func(*LLMClassifier)

// WithRetry replaces the retry budget.
func WithRetry(p resilience.RetryPolicy) LLMOption {
	return func(lc *LLMClassifier) { lc.retry = p }
}

// WithTimeout replaces the per-classification deadline.
func WithTimeout(d time.Duration) LLMOption {
	return func(lc *LLMClassifier) { lc.timeout = d }
}

// NewLLMClassifier wraps llm with the standard retry budget and timeout.
func NewLLMClassifier(llm LLM, opts ...LLMOption) *LLMClassifier {
	lc := &LLMClassifier{llm: llm, retry: resilience.LLMRetry, timeout: classifyTimeout}
	for _, opt := range opts {
		opt(lc)
	}
	return lc
}

// Classify issues one classification prompt. Context and the active workflow
// name ride along so the model can resolve multi-turn references.
func (lc *LLMClassifier) Classify(ctx context.Context, text string, convCtx map[string]any) (IntentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, lc.timeout)
	defer cancel()

	prompt := buildPrompt(text, convCtx)
	raw, err := resilience.Retry(ctx, lc.retry, func() (string, error) {
		return lc.llm.Complete(ctx, systemPrompt, prompt)
	})
	if err != nil {
		return IntentResult{}, fmt.Errorf("llm classification: %w", err)
	}

	res := parseClassification(raw)
	slog.Debug("utterance classified",
		"intent", res.Intent,
		"confidence", res.Confidence,
		"entities", len(res.Entities))
	return res, nil
}

func buildPrompt(text string, convCtx map[string]any) string {
	ctxJSON, err := json.MarshalIndent(convCtx, "", "  ")
	if err != nil || convCtx == nil {
		ctxJSON = []byte("{}")
	}
	workflow := "None"
	if convCtx != nil {
		if w, ok := convCtx["current_workflow"].(string); ok && w != "" {
			workflow = w
		}
	}
	return fmt.Sprintf(`Given the conversation context and the caller's latest message, classify the intent and extract entities.

## Conversation Context
%s

## Active Workflow
%s

## Caller's Message
%q

Respond with the JSON format specified in your system prompt.`, ctxJSON, workflow, text)
}

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// parseClassification decodes the model reply. Replies wrapped in fenced
// code blocks are unwrapped first; anything unparseable, and any intent
// outside the vocabulary, degrades to UNCLEAR at 0.3.
func parseClassification(raw string) IntentResult {
	jsonStr := raw
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		jsonStr = m[1]
	}

	var payload struct {
		Intent          string         `json:"intent"`
		Confidence      float64        `json:"confidence"`
		Entities        map[string]any `json:"entities"`
		RequiredMissing []string       `json:"required_missing_fields"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		slog.Warn("unparseable classifier reply", "error", err)
		return IntentResult{Intent: IntentUnclear, Confidence: 0.3, Entities: map[string]string{}}
	}

	intent := Intent(payload.Intent)
	if !intent.Known() {
		slog.Warn("classifier produced unknown intent", "intent", payload.Intent)
		return IntentResult{Intent: IntentUnclear, Confidence: 0.3, Entities: map[string]string{}}
	}

	entities := make(map[string]string, len(payload.Entities))
	for k, v := range payload.Entities {
		switch val := v.(type) {
		case string:
			if val != "" {
				entities[k] = val
			}
		case float64, bool:
			entities[k] = fmt.Sprint(val)
		}
	}

	return IntentResult{
		Intent:          intent,
		Confidence:      payload.Confidence,
		Entities:        entities,
		RequiredMissing: payload.RequiredMissing,
	}
}

// NewClassifier composes the LLM classifier with the rule fallback. With a
// nil llm the rules run alone. The fallback group gives the LLM its own
// circuit breaker so a flapping provider stops being consulted at all.
func NewClassifier(llm LLM, departments *validate.DepartmentResolver, opts ...LLMOption) Classifier {
	rules := NewRuleClassifier(departments)
	if llm == nil {
		slog.Info("no llm configured, using rule-based classification only")
		return rules
	}

	group := resilience.NewFallbackGroup[Classifier](NewLLMClassifier(llm, opts...), "llm", resilience.FallbackConfig{})
	group.AddFallback("rules", rules)
	return &fallbackClassifier{group: group}
}

type fallbackClassifier struct {
	group *resilience.FallbackGroup[Classifier]
}

func (fc *fallbackClassifier) Classify(ctx context.Context, text string, convCtx map[string]any) (IntentResult, error) {
	return resilience.ExecuteWithResult(fc.group, func(c Classifier) (IntentResult, error) {
		return c.Classify(ctx, text, convCtx)
	})
}
