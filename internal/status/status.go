// Package status provides a thread-safe status tracker for the warning-panel daemon.
// It is read by the HTTP handlers and the MQTT heartbeat.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/warning-panel/internal/panel"
)

// Config contains daemon configuration for display.
type Config struct {
	Channels    []int
	PeriodMs    int64
	DebounceMs  int64
	HeartbeatMs int64
	Driver      string
	Broker      string
	HTTPAddr    string
}

// Channel is the tracked view of one warning channel.
type Channel struct {
	ID         int
	State      panel.State
	Actions    panel.ActionCounts
	Faults     int
	LastError  string
	LastChange time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Channels      []Channel
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Signaling returns the number of channels currently blinking.
func (s Snapshot) Signaling() int {
	n := 0
	for _, c := range s.Channels {
		if c.State == panel.StateSignaling {
			n++
		}
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu            sync.RWMutex
	channels      map[int]*Channel
	startTime     time.Time
	mqttConnected bool
	cfg           Config
}

// NewTracker creates a Tracker with the given start time and config.
// Every configured channel starts out OFF.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	t := &Tracker{
		channels:  make(map[int]*Channel),
		startTime: startTime,
		cfg:       cfg,
	}
	for _, id := range cfg.Channels {
		t.channels[id] = &Channel{ID: id, State: panel.StateOff}
	}
	return t
}

func (t *Tracker) channel(id int) *Channel {
	c, ok := t.channels[id]
	if !ok {
		c = &Channel{ID: id, State: panel.StateOff}
		t.channels[id] = c
	}
	return c
}

// Record applies a channel transition.
func (t *Tracker) Record(tr panel.Transition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.channel(int(tr.Channel))
	c.State = tr.To
	c.LastChange = tr.At
	if tr.To == panel.StateSignaling {
		c.Actions.Start++
	} else {
		c.Actions.Stop++
	}
	if tr.Err != nil {
		c.Faults++
		c.LastError = tr.Err.Error()
	}
}

// RecordFault notes a hardware fault outside a transition, such as one
// raised by a blink task.
func (t *Tracker) RecordFault(id panel.ChannelID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.channel(int(id))
	c.Faults++
	if err != nil {
		c.LastError = err.Error()
	}
}

// Sync overwrites state and action counts with the panel's own view.
func (t *Tracker) Sync(infos []panel.ChannelInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, info := range infos {
		c := t.channel(int(info.ID))
		c.State = info.State
		c.Actions = info.Actions
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.mqttConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state, channels in id
// order. The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := Snapshot{
		Channels:      make([]Channel, 0, len(t.channels)),
		StartTime:     t.startTime,
		MQTTConnected: t.mqttConnected,
		Config:        t.cfg,
	}
	for _, c := range t.channels {
		s.Channels = append(s.Channels, *c)
	}
	s.Config.Channels = append([]int(nil), t.cfg.Channels...)
	t.mu.RUnlock()

	sort.Slice(s.Channels, func(i, j int) bool { return s.Channels[i].ID < s.Channels[j].ID })
	s.Now = time.Now()
	return s
}
