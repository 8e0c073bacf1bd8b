// Package relay republishes live investigation events and console lifecycle
// events to an MQTT broker.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/tigerwatch/internal/live"
)

// TopicPrefix is the parent topic of live event topics; each event type is
// published under TopicPrefix + "/" + type.
const TopicPrefix = "tigerwatch/events"

// TopicSystem is the topic for console lifecycle events.
const TopicSystem = "tigerwatch/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish relays a live event. Failures are reported, never fatal.
	Publish(event live.Event) error

	// PublishSystem sends a console lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a console lifecycle event (STARTUP, HEARTBEAT, SHUTDOWN).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // pre-formatted JSON; returned verbatim by FormatSystemPayload
	Retained   bool
}

// EventTopic returns the topic a live event is published on.
func EventTopic(t live.Type) string {
	return TopicPrefix + "/" + string(t)
}

// Payload is the MQTT message body for a live event.
type Payload struct {
	Event EventPayload `json:"event"`
}

// EventPayload carries the relayed event.
type EventPayload struct {
	Type            string          `json:"type"`
	Timestamp       string          `json:"timestamp"`
	InvestigationID string          `json:"investigation_id,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// FormatPayload builds the JSON body for a live event.
func FormatPayload(event live.Event) ([]byte, error) {
	data := event.Data
	if len(data) == 0 {
		encoded, err := live.Encode(event)
		if err != nil {
			return nil, fmt.Errorf("encode event: %w", err)
		}
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(encoded, &env); err != nil {
			return nil, fmt.Errorf("encode event: %w", err)
		}
		data = env.Data
	}
	return json.Marshal(Payload{Event: EventPayload{
		Type:            string(event.Type),
		Timestamp:       event.Timestamp.UTC().Format(time.RFC3339),
		InvestigationID: event.InvestigationID,
		Data:            data,
	}})
}

// SystemPayload is the body of simple system events (OFFLINE, RECONNECTED)
// that carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload builds the JSON body for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{System: SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}})
}

// Nop is a Publisher that drops everything. Used when no broker is set.
type Nop struct{}

func (Nop) Publish(live.Event) error        { return nil }
func (Nop) PublishSystem(SystemEvent) error { return nil }
func (Nop) Close() error                    { return nil }
func (Nop) IsConnected() bool               { return false }
