package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/observe"
	"github.com/karunya-health/vaani/internal/safety"
	"github.com/karunya-health/vaani/internal/session"
)

type processRequest struct {
	SessionID   string         `json:"session_id"`
	UserInput   string         `json:"user_input"`
	Context     map[string]any `json:"context,omitempty"`
	ReturnAudio bool           `json:"return_audio,omitempty"`
}

type processResponse struct {
	SessionID     string            `json:"session_id"`
	Intent        string            `json:"intent"`
	Entities      map[string]string `json:"entities"`
	ResponseText  string            `json:"response_text"`
	AudioBase64   string            `json:"audio_base64,omitempty"`
	Context       map[string]any    `json:"context"`
	IsComplete    bool              `json:"is_complete"`
	RequiresHuman bool              `json:"requires_human"`
	NextPrompt    string            `json:"next_prompt,omitempty"`
}

// handleProcess runs one conversation turn: classify, gate through safety,
// execute the workflow, and optionally voice the reply.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.UserInput == "" {
		respondError(w, http.StatusBadRequest, "user_input is required")
		return
	}

	ctx, span := observe.StartSpan(r.Context(), "conversation.turn",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()
	turnStart := time.Now()

	snap, err := s.store.Snapshot(req.SessionID)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	if kinds := safety.DetectSensitive(req.UserInput); len(kinds) > 0 {
		s.audit.SensitiveData(ctx, req.SessionID, kinds)
	}

	cls := s.classify(r, snap, req)
	span.SetAttributes(attribute.String("intent", string(cls.Intent)))
	s.metrics.RecordIntent(ctx, string(cls.Intent), "classifier")
	s.audit.Intent(ctx, req.SessionID, string(cls.Intent), cls.Confidence)

	decision := s.guards.Load().Evaluate(string(cls.Intent), cls.Confidence, req.UserInput, safety.TurnContext{
		TurnCount:     snap.TurnCount(),
		FailedIntents: snap.FailedIntents,
	})

	switch decision.Action {
	case safety.ActionConfirm, safety.ActionClarify, safety.ActionBlock:
		s.respondGated(w, r, req, cls, decision)
		return
	case safety.ActionEscalate:
		s.metrics.RecordEscalation(ctx, escalationReason(decision))
		s.audit.Escalation(ctx, req.SessionID, escalationReason(decision))
		if decision.IntentOverride != "" {
			if decision.IntentOverride == string(dialog.IntentReportEmergency) {
				s.audit.Emergency(ctx, req.SessionID, "keyword")
			}
			cls.Intent = dialog.Intent(decision.IntentOverride)
			cls.Confidence = 1.0
		} else {
			cls.Intent = dialog.IntentEscalateToHuman
		}
	}

	reply, err := s.engine.HandleTurn(ctx, req.SessionID, req.UserInput, cls)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	// The auto-escalation message wins over whatever the flow said: the
	// caller hears one consistent hand-off promise.
	if decision.Action == safety.ActionEscalate && decision.Message != "" {
		reply.Response = decision.Message
	} else if !reply.RequiresHuman {
		// Emergency and hand-off wording is fixed; everything else may be
		// rephrased for tone.
		reply.Response = s.polisher.Polish(ctx, reply.Response)
	}
	s.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())

	resp := processResponse{
		SessionID:     req.SessionID,
		Intent:        string(reply.Intent),
		Entities:      reply.Entities,
		ResponseText:  reply.Response,
		Context:       reply.Context,
		IsComplete:    reply.IsComplete,
		RequiresHuman: reply.RequiresHuman,
		NextPrompt:    reply.NextPrompt,
	}
	if req.ReturnAudio {
		resp.AudioBase64 = s.synthesizeReply(ctx, req.SessionID, reply.Response)
	}
	respondJSON(w, http.StatusOK, resp)
}

// classify runs the intent classifier with the session context. An
// unusable classifier degrades to UNCLEAR so the safety layer asks the
// caller to rephrase instead of failing the call.
func (s *Server) classify(r *http.Request, snap *session.Session, req processRequest) dialog.IntentResult {
	start := time.Now()
	cls, err := s.classifier.Classify(r.Context(), req.UserInput, conversationContext(snap, req.Context))
	s.metrics.ClassifyDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		slog.Error("classification failed", "session_id", req.SessionID, "error", err)
		return dialog.IntentResult{Intent: dialog.IntentUnclear, Confidence: 0, Entities: map[string]string{}}
	}
	return cls
}

// respondGated handles confirm/clarify/block verdicts: the turn is recorded
// as unresolved (no workflow runs, the failed-intent counter advances) and
// the safety message is the whole reply.
func (s *Server) respondGated(w http.ResponseWriter, r *http.Request, req processRequest, cls dialog.IntentResult, d safety.Decision) {
	ctx := r.Context()
	s.metrics.RecordSafetyBlock(ctx, string(d.Action))

	err := s.store.AppendUnresolved(req.SessionID, session.Turn{
		UserInput: req.UserInput,
		Intent:    string(cls.Intent),
		Entities:  cls.Entities,
		Response:  d.Message,
	})
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionFull), errors.Is(err, session.ErrInactive):
		slog.Warn("gated turn not recorded", "session_id", req.SessionID, "error", err)
	default:
		respondSessionError(w, err)
		return
	}

	snap, err := s.store.Snapshot(req.SessionID)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	resp := processResponse{
		SessionID:    req.SessionID,
		Intent:       string(cls.Intent),
		Entities:     cls.Entities,
		ResponseText: d.Message,
		Context:      sessionContext(snap),
	}
	if req.ReturnAudio {
		resp.AudioBase64 = s.synthesizeReply(ctx, req.SessionID, d.Message)
	}
	respondJSON(w, http.StatusOK, resp)
}

func escalationReason(d safety.Decision) string {
	switch d.IntentOverride {
	case string(dialog.IntentReportEmergency):
		return "emergency_keyword"
	case string(dialog.IntentEscalateToHuman):
		return "handoff_keyword"
	default:
		return "auto_escalation"
	}
}

// conversationContext builds the classifier context: the client-supplied
// bag first, then session state on top so internal fields always win.
func conversationContext(snap *session.Session, client map[string]any) map[string]any {
	cc := make(map[string]any, len(client)+6)
	for k, v := range client {
		cc[k] = v
	}
	for k, v := range sessionContext(snap) {
		cc[k] = v
	}
	if recent := snap.RecentTurns(3); len(recent) > 0 {
		turns := make([]map[string]string, 0, len(recent))
		for _, t := range recent {
			turns = append(turns, map[string]string{
				"caller":       safety.Mask(t.UserInput),
				"receptionist": t.Response,
			})
		}
		cc["recent_turns"] = turns
	}
	return cc
}

// sessionContext is the state echo shared by all conversational responses.
// Shape matches what the workflow engine reports after a turn.
func sessionContext(snap *session.Session) map[string]any {
	entities := make(map[string]string, len(snap.Entities))
	for k, v := range snap.Entities {
		entities[k] = v
	}
	return map[string]any{
		"caller_id":          snap.CallerID,
		"channel":            string(snap.Channel),
		"turn_count":         snap.TurnCount(),
		"current_workflow":   snap.CurrentWorkflow,
		"collected_entities": entities,
		"requires_human":     snap.RequiresHuman,
	}
}
