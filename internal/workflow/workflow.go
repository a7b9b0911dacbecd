// Package workflow contains the multi-turn conversation flows that turn
// classified intents into backend actions: registration, appointment
// booking, check-in, beds, labs, status inquiries and escalation. The
// Engine routes each turn to the right flow and commits the outcome to the
// session.
package workflow

import (
	"context"
	"strings"

	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/session"
	"github.com/karunya-health/vaani/internal/validate"
)

// Context is the slice of session state a workflow sees for one turn.
// Workflows never touch the session directly; the engine builds this view
// under the session lock and commits the Result afterwards.
type Context struct {
	SessionID    string
	Channel      session.Channel
	PatientToken string

	// RawInput is the caller's verbatim utterance, used by flows that
	// match menu selections ("Dr. Sharma", "the second one") against
	// options they offered on a previous turn.
	RawInput  string
	TurnCount int

	// Workflow names the active flow, empty when none.
	Workflow string

	// State is the active flow's private bag, cleared when the flow
	// completes.
	State map[string]any

	// Collected is the entity bag accumulated across the whole session.
	Collected map[string]string
}

// pick resolves an entity by precedence: this turn's entities, then the
// session bag, then the flow's own state.
func (c Context) pick(entities map[string]string, key string) string {
	if v := entities[key]; v != "" {
		return v
	}
	if v := c.Collected[key]; v != "" {
		return v
	}
	if v, ok := c.State[key].(string); ok && v != "" {
		return v
	}
	return ""
}

// stateString reads a string out of the flow state bag.
func (c Context) stateString(key string) string {
	v, _ := c.State[key].(string)
	return v
}

// stateBool reads a bool out of the flow state bag.
func (c Context) stateBool(key string) bool {
	v, _ := c.State[key].(bool)
	return v
}

// step returns the flow's current step marker.
func (c Context) step() string { return c.stateString("step") }

// Result is what a workflow hands back to the engine for one turn.
type Result struct {
	Success  bool
	Response string

	// IsComplete ends the flow; the engine clears the workflow slot.
	IsComplete bool

	// RequiresHuman promises a hand-off to staff.
	RequiresHuman bool

	// UpdatedState is shallow-merged into the flow state bag, unless
	// ResetState is set, in which case it replaces the bag outright.
	UpdatedState map[string]any
	ResetState   bool

	// UpdatedEntities is merged into the session entity bag. Used for
	// values that must outlive the flow, like a resolved patient id.
	UpdatedEntities map[string]string

	// ClearedEntities lists session-bag keys dropped before the merge.
	// Used when a caller rejects a read-back: the collected values must
	// not resurface on the next turn.
	ClearedEntities []string

	// Redirect hands the rest of the turn to the flow owning this intent.
	// The engine starts that flow fresh with the session bag plus this
	// result's entity updates and commits the target flow's result instead.
	Redirect dialog.Intent

	// APICalls lists the backend calls made this turn, for the turn log.
	APICalls []session.APICall

	// Err carries the backend failure behind an apologetic Response.
	// The caller never hears it; it feeds logs and the failure counter.
	Err error
}

// Workflow is one multi-turn conversation flow.
type Workflow interface {
	// Name identifies the flow in the session's workflow slot.
	Name() string

	// SupportedIntents lists the intents that start this flow.
	SupportedIntents() []dialog.Intent

	// Execute starts or re-enters the flow with a fresh intent.
	Execute(ctx context.Context, wc Context, intent dialog.Intent, entities map[string]string) Result

	// Continue feeds a follow-up turn into an already active flow.
	// newEntities carries only this turn's extraction; allEntities is the
	// session bag including it.
	Continue(ctx context.Context, wc Context, newEntities, allEntities map[string]string, isConfirmation, isDenial bool) Result
}

// mergedEntities flattens the flow state's string values under the session
// bag under this turn's entities, newest winning. Mirrors how flows resume
// with everything collected so far.
func mergedEntities(wc Context, all, latest map[string]string) map[string]string {
	merged := make(map[string]string, len(wc.State)+len(all)+len(latest))
	for k, v := range wc.State {
		if s, ok := v.(string); ok && s != "" {
			merged[k] = s
		}
	}
	for k, v := range all {
		if v != "" {
			merged[k] = v
		}
	}
	for k, v := range latest {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

// resolvePatientID finds the backend patient id from the entities or the
// session, falling back to a phone search. A failed search is not fatal;
// the flow just asks for an identifier.
func resolvePatientID(ctx context.Context, client *his.Client, wc Context, entities map[string]string) (string, []session.APICall) {
	if id := wc.pick(entities, "patient_id"); id != "" {
		return id, nil
	}

	phone := wc.pick(entities, "phone")
	if phone == "" {
		return "", nil
	}
	outcome := validate.Phone(phone)
	if !outcome.OK() {
		return "", nil
	}

	patients, err := client.SearchPatients(ctx, outcome.Value)
	call := session.APICall{Method: "GET", Endpoint: "/patients/search", Success: err == nil}
	if err != nil || len(patients) == 0 {
		return "", []session.APICall{call}
	}
	return patients[0].ID, []session.APICall{call}
}

// formatDate normalises a spoken date to YYYY-MM-DD, empty when it cannot
// be understood. Appointment dates may not be in the past.
func formatDate(raw string) string {
	outcome := validate.Date(raw, validate.DateOptions{DisallowPast: true})
	if !outcome.OK() {
		return ""
	}
	return outcome.Value
}

// containsWord reports whether any of words appears in text.
func containsWord(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
