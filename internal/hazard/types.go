// Package hazard turns raw per-channel presence samples from the detector
// into debounced SIGNAL / END_SIGNAL edges.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package hazard

import "time"

// EdgeType is the kind of debounced transition.
type EdgeType string

const (
	EdgeSignal    EdgeType = "SIGNAL"
	EdgeEndSignal EdgeType = "END_SIGNAL"
)

// Presence is a single raw detector sample for one channel.
type Presence struct {
	Channel int
	Present bool
	Time    time.Time
}

// Edge is a debounced transition to be forwarded to the panel.
type Edge struct {
	Channel int
	Type    EdgeType
	Time    time.Time
}

// channelState tracks debounce state for a single channel.
type channelState struct {
	// Current stable (debounced) presence
	stable bool
	// Whether a change is waiting out the debounce period
	pending      bool
	pendingSince time.Time
}

// Counts tracks emitted edges for one channel since startup.
type Counts struct {
	Signal    int
	EndSignal int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    map[int]Counts
}
