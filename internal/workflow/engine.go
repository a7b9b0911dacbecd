package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/session"
)

// EmergencyNumber is the national ambulance number quoted to callers who
// are not at the hospital.
const EmergencyNumber = "108"

// portalIntents are the intents the portal flow takes over when the caller
// is an authenticated portal user.
var portalIntents = map[dialog.Intent]struct{}{
	dialog.IntentBookAppointment:        {},
	dialog.IntentRescheduleAppointment:  {},
	dialog.IntentCancelAppointment:      {},
	dialog.IntentCheckAppointmentStatus: {},
	dialog.IntentGeneralStatusInquiry:   {},
}

// Reply is the engine's answer for one turn, ready for the HTTP layer.
type Reply struct {
	Response      string
	Intent        dialog.Intent
	Entities      map[string]string
	IsComplete    bool
	RequiresHuman bool
	NextPrompt    string
	Context       map[string]any
}

// Engine routes classified turns to workflows and commits the outcome to
// the session: state merge, turn append, workflow clear on completion.
// The whole turn runs under the session lock, so concurrent turns on the
// same session serialise.
type Engine struct {
	store    *session.Store
	hospital string
	portal   Workflow
	byIntent map[dialog.Intent]Workflow
}

// NewEngine builds an engine over the given flows. portal handles the
// authenticated patient-portal channel and is routed separately from the
// intent table.
func NewEngine(store *session.Store, hospital string, portal Workflow, flows ...Workflow) *Engine {
	byIntent := make(map[dialog.Intent]Workflow)
	for _, f := range flows {
		for _, intent := range f.SupportedIntents() {
			byIntent[intent] = f
		}
	}
	return &Engine{store: store, hospital: hospital, portal: portal, byIntent: byIntent}
}

// NewDefaultEngine wires the full set of receptionist flows over one
// backend client.
func NewDefaultEngine(store *session.Store, client *his.Client, hospital string) *Engine {
	return NewEngine(store, hospital,
		NewPortal(client),
		NewRegistration(client),
		NewAppointment(client),
		NewCheckin(client),
		NewBed(client),
		NewLab(client),
		NewStatus(client),
		NewEscalation(client),
	)
}

// Greeting is the time-of-day opener used when a call starts.
func Greeting(hospital string, now time.Time) string {
	var part string
	switch h := now.Hour(); {
	case h < 12:
		part = "Good morning"
	case h < 17:
		part = "Good afternoon"
	default:
		part = "Good evening"
	}
	return fmt.Sprintf("%s! Thank you for calling %s. How may I help you today?", part, hospital)
}

// HandleTurn processes one caller utterance against the session. Session
// lookup errors pass through unchanged so the HTTP layer can map unknown
// and expired sessions.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, input string, cls dialog.IntentResult) (Reply, error) {
	var reply Reply
	err := e.store.WithSession(sessionID, func(s *session.Session) error {
		reply = e.handle(ctx, s, input, cls)
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// handle runs one turn with the session lock held.
func (e *Engine) handle(ctx context.Context, s *session.Session, input string, cls dialog.IntentResult) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("workflow panicked", "session_id", s.ID, "intent", cls.Intent, "panic", r)
			reply = e.commit(s, input, cls, Result{
				Response:      "I'm sorry, something went wrong on my end. Let me connect you with our reception desk.",
				RequiresHuman: true,
				Err:           fmt.Errorf("workflow panic: %v", r),
			})
		}
	}()

	wc := Context{
		SessionID:    s.ID,
		Channel:      s.Channel,
		PatientToken: s.Entities["patient_token"],
		RawInput:     input,
		TurnCount:    s.TurnCount(),
		Workflow:     s.CurrentWorkflow,
		State:        s.WorkflowState,
		Collected:    s.Entities,
	}
	res := e.route(ctx, s, wc, cls)
	if res.Redirect != "" {
		res = e.redirect(ctx, s, wc, cls, res)
	}
	return e.commit(s, input, cls, res)
}

// redirect hands the turn from one flow to the flow owning res.Redirect.
// The redirecting flow's entity updates are banked first so the target
// starts with everything collected so far.
func (e *Engine) redirect(ctx context.Context, s *session.Session, wc Context, cls dialog.IntentResult, res Result) Result {
	flow, ok := e.byIntent[res.Redirect]
	if !ok {
		slog.Error("redirect to unrouted intent", "session_id", s.ID, "intent", res.Redirect)
		return res
	}
	s.MergeEntities(res.UpdatedEntities)
	s.SetWorkflow(flow.Name(), nil)
	wc.Workflow, wc.State, wc.Collected = s.CurrentWorkflow, s.WorkflowState, s.Entities

	entities := make(map[string]string, len(s.Entities)+len(cls.Entities))
	for k, v := range s.Entities {
		entities[k] = v
	}
	for k, v := range cls.Entities {
		if v != "" {
			entities[k] = v
		}
	}
	return flow.Execute(ctx, wc, res.Redirect, entities)
}

// route picks the flow for this turn and runs it.
func (e *Engine) route(ctx context.Context, s *session.Session, wc Context, cls dialog.IntentResult) Result {
	intent := cls.Intent

	// After a hand-off has been promised the session is frozen: turns are
	// still recorded for the audit trail, but nothing runs against the
	// backend anymore.
	if s.RequiresHuman && intent != dialog.IntentGoodbye {
		return Result{
			Success:       true,
			Response:      "A staff member will assist you shortly. Please stay on the line.",
			RequiresHuman: true,
		}
	}

	switch intent {
	case dialog.IntentGreeting:
		return Result{Success: true, Response: Greeting(e.hospital, time.Now())}
	case dialog.IntentGoodbye:
		return Result{
			Success:    true,
			Response:   fmt.Sprintf("Thank you for calling %s. Take care, goodbye!", e.hospital),
			IsComplete: true,
		}
	case dialog.IntentHelp:
		return Result{Success: true, Response: "I can help you register as a patient, book or check appointments, " +
			"check in for your OPD visit, check bed availability, book lab tests, and check lab results or bills. " +
			"What would you like to do?"}
	}

	// Authenticated portal callers stay in the portal flow: every turn of
	// an active portal workflow continues it, whatever the classifier says.
	onPortal := s.Channel == session.ChannelPortal && wc.PatientToken != ""
	if onPortal && s.CurrentWorkflow == e.portal.Name() {
		return e.portal.Continue(ctx, wc, cls.Entities, s.Entities, intent == dialog.IntentConfirmYes, intent == dialog.IntentConfirmNo)
	}

	if intent == dialog.IntentUnclear && s.CurrentWorkflow == "" {
		return Result{
			Response: "I'm sorry, I didn't quite catch that. You can ask me to book an appointment, " +
				"register as a patient, or check a status. What would you like to do?",
			Err: errors.New("unusable classification"),
		}
	}

	if intent.Continuation() || intent == dialog.IntentUnclear {
		active := e.activeFlow(s.CurrentWorkflow)
		if active == nil {
			return Result{
				Response: "I'm not sure what you're referring to. Could you tell me what you'd like to do?",
				Err:      errors.New("continuation without active workflow"),
			}
		}
		return active.Continue(ctx, wc, cls.Entities, s.Entities,
			intent == dialog.IntentConfirmYes, intent == dialog.IntentConfirmNo)
	}

	if _, portalIntent := portalIntents[intent]; onPortal && portalIntent {
		s.SetWorkflow(e.portal.Name(), nil)
		wc.Workflow, wc.State = s.CurrentWorkflow, s.WorkflowState
		return e.portal.Execute(ctx, wc, intent, cls.Entities)
	}

	flow, ok := e.byIntent[intent]
	if !ok {
		return Result{
			Response: "I'm not sure how to help with that. Would you like me to connect you with a human receptionist?",
			Err:      fmt.Errorf("no workflow for intent %s", intent),
		}
	}

	// A repeated intent folds into the running flow instead of restarting
	// it; a different intent replaces the flow and its state.
	if s.CurrentWorkflow == flow.Name() {
		return flow.Continue(ctx, wc, cls.Entities, s.Entities, false, false)
	}
	s.SetWorkflow(flow.Name(), nil)
	wc.Workflow, wc.State = s.CurrentWorkflow, s.WorkflowState
	return flow.Execute(ctx, wc, intent, cls.Entities)
}

// activeFlow resolves the named workflow, portal included.
func (e *Engine) activeFlow(name string) Workflow {
	if name == "" {
		return nil
	}
	if e.portal != nil && name == e.portal.Name() {
		return e.portal
	}
	for _, f := range e.byIntent {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// commit applies a flow result to the session and shapes the reply: merge
// entities and state, append the turn, clear the workflow when the flow
// completed, end the session on goodbye or turn cap.
func (e *Engine) commit(s *session.Session, input string, cls dialog.IntentResult, res Result) Reply {
	for _, k := range res.ClearedEntities {
		delete(s.Entities, k)
	}
	s.MergeEntities(res.UpdatedEntities)
	if res.ResetState {
		s.SetWorkflow(s.CurrentWorkflow, res.UpdatedState)
	} else {
		s.UpdateWorkflowState(res.UpdatedState)
	}

	turn := session.Turn{
		UserInput: input,
		Intent:    string(cls.Intent),
		Entities:  cls.Entities,
		Response:  res.Response,
		APICalls:  res.APICalls,
	}
	full := false
	if err := e.store.Append(s, turn); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionFull):
			full = true
		case errors.Is(err, session.ErrInactive) && s.TurnCount() >= e.store.MaxTurns():
			// The cap deactivated the session on the previous turn.
			full = true
		default:
			slog.Warn("turn not recorded", "session_id", s.ID, "error", err)
		}
	}

	if res.Err != nil {
		s.FailedIntents++
		slog.Warn("turn failed", "session_id", s.ID, "intent", cls.Intent, "failed_intents", s.FailedIntents, "error", res.Err)
	} else {
		s.FailedIntents = 0
	}

	if res.IsComplete {
		s.ClearWorkflow()
	}
	if res.RequiresHuman {
		s.RequiresHuman = true
	}
	if cls.Intent == dialog.IntentGoodbye {
		s.Active = false
	}

	reply := Reply{
		Response:      res.Response,
		Intent:        cls.Intent,
		Entities:      cls.Entities,
		IsComplete:    res.IsComplete,
		RequiresHuman: res.RequiresHuman || s.RequiresHuman,
		Context:       snapshotContext(s),
	}
	if full {
		reply.Response = res.Response + " We've covered a lot this call; let me connect you with our reception desk to continue."
		reply.IsComplete = true
		reply.RequiresHuman = true
		s.RequiresHuman = true
	}
	if !reply.IsComplete {
		if missing := dialog.MissingRequired(cls.Intent, s.Entities); len(missing) > 0 {
			reply.NextPrompt = dialog.FollowUpPrompt(cls.Intent, missing[0])
		}
	}
	return reply
}

// snapshotContext is the per-turn context echoed back to API clients.
func snapshotContext(s *session.Session) map[string]any {
	entities := make(map[string]string, len(s.Entities))
	for k, v := range s.Entities {
		entities[k] = v
	}
	return map[string]any{
		"caller_id":          s.CallerID,
		"channel":            string(s.Channel),
		"turn_count":         s.TurnCount(),
		"current_workflow":   s.CurrentWorkflow,
		"collected_entities": entities,
		"requires_human":     s.RequiresHuman,
	}
}
