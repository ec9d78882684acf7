// Package event defines the progress events a conversation run streams to
// its client: tool progress steps, nested sub-agent steps, incremental text
// and the terminal done payload.
package event

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sweetpotato0/physio-agent/message"
)

// Type identifies an event on the wire.
type Type string

const (
	TypeStep            Type = "step"
	TypeStepComplete    Type = "step_complete"
	TypeSubstep         Type = "substep"
	TypeSubstepComplete Type = "substep_complete"
	TypeTextDelta       Type = "text_delta"
	TypeDone            Type = "done"
)

// Action is a client-side effect requested by the model during a run. The
// backend records it and forwards it in the done payload; it never executes
// locally.
type Action struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Event is a single progress event. Which fields are meaningful depends on
// Type; MarshalJSON emits exactly the fields each type carries.
type Event struct {
	Type Type
	// ID correlates a step with its step_complete (and substep likewise).
	ID    string
	Label string
	Tool  string
	// CallID scopes substeps to the parent tool call that spawned them.
	CallID string
	// Text carries one assistant text fragment for text_delta.
	Text string
	// Done payload.
	Content    string
	Actions    []Action
	ToolThread []*message.Message
}

// NewStep starts a progress step for a tool call.
func NewStep(label, tool string) Event {
	return Event{Type: TypeStep, ID: uuid.NewString(), Label: label, Tool: tool}
}

// Complete returns the closing counterpart of a step or substep, keeping
// its correlation id and tool and marking the label finished.
func (e Event) Complete() Event {
	done := e
	done.Label = e.Label + " complete"
	switch e.Type {
	case TypeSubstep:
		done.Type = TypeSubstepComplete
	default:
		done.Type = TypeStepComplete
	}
	return done
}

// NewSubstep starts a nested progress step scoped to a parent tool call.
func NewSubstep(callID, label, tool string) Event {
	return Event{Type: TypeSubstep, ID: uuid.NewString(), CallID: callID, Label: label, Tool: tool}
}

// NewTextDelta wraps one fragment of assistant text.
func NewTextDelta(text string) Event {
	return Event{Type: TypeTextDelta, Text: text}
}

// NewDone builds the terminal event. Actions and thread are never nil on the
// wire; clients rely on empty arrays.
func NewDone(content string, actions []Action, thread []*message.Message) Event {
	if actions == nil {
		actions = []Action{}
	}
	if thread == nil {
		thread = []*message.Message{}
	}
	return Event{Type: TypeDone, Content: content, Actions: actions, ToolThread: thread}
}

// MarshalJSON renders the wire shape for each event type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeTextDelta:
		return json.Marshal(struct {
			Type Type   `json:"type"`
			Text string `json:"text"`
		}{e.Type, e.Text})
	case TypeSubstep, TypeSubstepComplete:
		return json.Marshal(struct {
			Type   Type   `json:"type"`
			ID     string `json:"id"`
			CallID string `json:"callId"`
			Label  string `json:"label"`
			Tool   string `json:"tool"`
		}{e.Type, e.ID, e.CallID, e.Label, e.Tool})
	case TypeDone:
		actions := e.Actions
		if actions == nil {
			actions = []Action{}
		}
		thread := e.ToolThread
		if thread == nil {
			thread = []*message.Message{}
		}
		return json.Marshal(struct {
			Type       Type               `json:"type"`
			Content    string             `json:"content"`
			Actions    []Action           `json:"actions"`
			ToolThread []*message.Message `json:"toolThread"`
		}{e.Type, e.Content, actions, thread})
	default: // step, step_complete
		return json.Marshal(struct {
			Type  Type   `json:"type"`
			ID    string `json:"id"`
			Label string `json:"label"`
			Tool  string `json:"tool"`
		}{e.Type, e.ID, e.Label, e.Tool})
	}
}
