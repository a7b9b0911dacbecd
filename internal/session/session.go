// Package session holds per-caller conversation state: the ordered turn log,
// the merged entity bag, and the active workflow with its private state.
// Sessions live in memory only and expire on idle timeout.
package session

import (
	"time"
)

// Channel tags how the caller reached the receptionist.
type Channel string

const (
	ChannelPhone  Channel = "phone"
	ChannelWeb    Channel = "web"
	ChannelPortal Channel = "patient_portal"
	ChannelTest   Channel = "test"
)

// APICall records one outbound backend call made during a turn.
type APICall struct {
	Method   string `json:"method"`
	Endpoint string `json:"endpoint"`
	Success  bool   `json:"success"`
	Status   int    `json:"status"`
}

// Turn is one user-utterance/response pair. Turns are immutable once
// appended; IDs are contiguous from 1.
type Turn struct {
	ID        int               `json:"turn_id"`
	Timestamp time.Time         `json:"timestamp"`
	UserInput string            `json:"user_input"`
	Intent    string            `json:"intent"`
	Entities  map[string]string `json:"entities,omitempty"`
	Response  string            `json:"response"`
	APICalls  []APICall         `json:"api_calls,omitempty"`
}

// Session is a single continuous caller interaction. All mutation happens
// through [Store.WithSession], which holds the per-session lock.
type Session struct {
	ID           string    `json:"session_id"`
	CallerID     string    `json:"caller_id"`
	Channel      Channel   `json:"channel"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	Active       bool      `json:"is_active"`

	Turns []Turn `json:"turns"`

	// Entities is the merged entity bag accumulated across turns.
	// Merging never deletes keys; empty incoming values are ignored.
	Entities map[string]string `json:"collected_entities"`

	// CurrentWorkflow names the active workflow, empty when none.
	CurrentWorkflow string `json:"current_workflow,omitempty"`

	// WorkflowState is the active workflow's private bag. Owned by the
	// workflow; the engine only merges and clears it.
	WorkflowState map[string]any `json:"workflow_state,omitempty"`

	// FailedIntents counts consecutive unusable classifications, feeding
	// the safety auto-escalation trigger.
	FailedIntents int `json:"failed_intents,omitempty"`

	// RequiresHuman freezes the session once a hand-off has been promised.
	RequiresHuman bool `json:"requires_human,omitempty"`
}

// TurnCount returns the number of turns taken so far.
func (s *Session) TurnCount() int { return len(s.Turns) }

// MergeEntities folds new entities into the session bag. Values overwrite
// only when the incoming value is non-empty.
func (s *Session) MergeEntities(entities map[string]string) {
	if len(entities) == 0 {
		return
	}
	if s.Entities == nil {
		s.Entities = make(map[string]string, len(entities))
	}
	for k, v := range entities {
		if v != "" {
			s.Entities[k] = v
		}
	}
}

// SetWorkflow activates a workflow with the given initial state.
func (s *Session) SetWorkflow(name string, initialState map[string]any) {
	s.CurrentWorkflow = name
	if initialState == nil {
		initialState = map[string]any{}
	}
	s.WorkflowState = initialState
}

// UpdateWorkflowState shallow-merges updates into the workflow state bag.
func (s *Session) UpdateWorkflowState(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	if s.WorkflowState == nil {
		s.WorkflowState = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		s.WorkflowState[k] = v
	}
}

// ClearWorkflow drops the active workflow and its state.
func (s *Session) ClearWorkflow() {
	s.CurrentWorkflow = ""
	s.WorkflowState = map[string]any{}
}

// RecentTurns returns up to n most recent turns, oldest first. Used to give
// the classifier short-range conversational context.
func (s *Session) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}
	if len(s.Turns) <= n {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-n:]
}
