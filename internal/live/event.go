// Package live consumes the investigation event WebSocket and accumulates
// streamed agent events into an in-memory activity feed.
package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type is the kind of a live event.
type Type string

// Event types sent on the channel.
const (
	AgentActivity          Type = "agent_activity"
	ApprovalRequired       Type = "approval_required"
	InvestigationCompleted Type = "investigation_completed"
	InvestigationCreated   Type = "investigation_created"
	TigerIdentified        Type = "tiger_identified"
)

// Types lists every known event type in display order.
var Types = []Type{
	InvestigationCreated,
	AgentActivity,
	ApprovalRequired,
	TigerIdentified,
	InvestigationCompleted,
}

// ErrUnknownEvent is returned by Decode for a type it does not know.
var ErrUnknownEvent = errors.New("live: unknown event type")

// Event is one decoded message. Exactly one payload pointer is set,
// matching Type.
type Event struct {
	Type            Type
	Timestamp       time.Time
	InvestigationID string
	Data            json.RawMessage // payload as received

	Activity       *Activity
	Approval       *Approval
	Completion     *Completion
	Creation       *Creation
	Identification *Identification
}

// Activity is the payload of agent_activity.
type Activity struct {
	InvestigationID string  `json:"investigation_id"`
	Agent           string  `json:"agent"`
	Action          string  `json:"action,omitempty"`
	Message         string  `json:"message"`
	Progress        float64 `json:"progress,omitempty"` // percent, 0-100
}

// Approval is the payload of approval_required.
type Approval struct {
	InvestigationID string `json:"investigation_id"`
	ApprovalID      string `json:"approval_id"`
	Agent           string `json:"agent,omitempty"`
	Action          string `json:"action"`
	Description     string `json:"description,omitempty"`
}

// Completion is the payload of investigation_completed.
type Completion struct {
	InvestigationID  string `json:"investigation_id"`
	Status           string `json:"status,omitempty"`
	Summary          string `json:"summary,omitempty"`
	TigersIdentified int    `json:"tigers_identified,omitempty"`
}

// Creation is the payload of investigation_created.
type Creation struct {
	InvestigationID string `json:"investigation_id"`
	Title           string `json:"title"`
	CreatedBy       string `json:"created_by,omitempty"`
}

// Identification is the payload of tiger_identified.
type Identification struct {
	InvestigationID string  `json:"investigation_id"`
	TigerID         string  `json:"tiger_id"`
	TigerName       string  `json:"tiger_name,omitempty"`
	Confidence      float64 `json:"confidence"`
	Model           string  `json:"model,omitempty"`
}

type envelope struct {
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Decode parses one WebSocket message. Unknown types return an error
// wrapping ErrUnknownEvent together with the partially decoded event.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	ev := Event{Type: env.Type, Timestamp: env.Timestamp, Data: env.Data}
	if len(env.Data) == 0 {
		ev.Data = json.RawMessage("{}")
	}

	var target any
	switch env.Type {
	case AgentActivity:
		ev.Activity = &Activity{}
		target = ev.Activity
	case ApprovalRequired:
		ev.Approval = &Approval{}
		target = ev.Approval
	case InvestigationCompleted:
		ev.Completion = &Completion{}
		target = ev.Completion
	case InvestigationCreated:
		ev.Creation = &Creation{}
		target = ev.Creation
	case TigerIdentified:
		ev.Identification = &Identification{}
		target = ev.Identification
	default:
		return ev, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if err := json.Unmarshal(ev.Data, target); err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	ev.InvestigationID = ev.investigation()
	return ev, nil
}

// investigation returns the id carried by the typed payload.
func (ev Event) investigation() string {
	switch {
	case ev.Activity != nil:
		return ev.Activity.InvestigationID
	case ev.Approval != nil:
		return ev.Approval.InvestigationID
	case ev.Completion != nil:
		return ev.Completion.InvestigationID
	case ev.Creation != nil:
		return ev.Creation.InvestigationID
	case ev.Identification != nil:
		return ev.Identification.InvestigationID
	}
	return ""
}

// Encode renders ev in the wire envelope.
func Encode(ev Event) ([]byte, error) {
	data := ev.Data
	if len(data) == 0 {
		var err error
		if data, err = json.Marshal(ev.payload()); err != nil {
			return nil, fmt.Errorf("encode %s: %w", ev.Type, err)
		}
	}
	return json.Marshal(envelope{Type: ev.Type, Timestamp: ev.Timestamp.UTC(), Data: data})
}

func (ev Event) payload() any {
	switch {
	case ev.Activity != nil:
		return ev.Activity
	case ev.Approval != nil:
		return ev.Approval
	case ev.Completion != nil:
		return ev.Completion
	case ev.Creation != nil:
		return ev.Creation
	case ev.Identification != nil:
		return ev.Identification
	}
	return struct{}{}
}
