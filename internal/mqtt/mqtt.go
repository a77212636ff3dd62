// Package mqtt bridges the panel to an MQTT broker: detector commands in,
// channel transitions and system lifecycle events out.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/warning-panel/internal/panel"
)

// TopicCommands is the MQTT topic the detector publishes hazard commands on.
const TopicCommands = "roadside/panel/commands"

// TopicEvents is the MQTT topic for channel transitions.
const TopicEvents = "roadside/panel/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "roadside/panel/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishTransition sends a channel transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishTransition(tr panel.Transition) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Panel PanelPayload `json:"panel"`
}

// PanelPayload contains the transition details.
type PanelPayload struct {
	Timestamp string `json:"timestamp"`
	Channel   int    `json:"channel"`
	Event     string `json:"event"`
	From      string `json:"from"`
	To        string `json:"to"`
	Error     string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a channel transition.
func FormatPayload(tr panel.Transition) ([]byte, error) {
	payload := Payload{
		Panel: PanelPayload{
			Timestamp: tr.At.UTC().Format(time.RFC3339),
			Channel:   int(tr.Channel),
			Event:     tr.Trigger.String(),
			From:      tr.From.String(),
			To:        tr.To.String(),
		},
	}
	if tr.Err != nil {
		payload.Panel.Error = tr.Err.Error()
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
