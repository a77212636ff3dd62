package hazard

import (
	"sort"
	"time"
)

// Debouncer tracks presence per channel and detects debounced edges.
// It is not safe for concurrent use; the daemon drives it from its main loop.
type Debouncer struct {
	debounce      time.Duration
	channels      map[int]*channelState
	counts        map[int]Counts
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewDebouncer creates a debouncer. A change must persist for debounce before
// an edge is emitted; zero emits on the first differing sample.
// The startTime is used for calculating uptime in heartbeat data.
func NewDebouncer(debounce time.Duration, startTime time.Time) *Debouncer {
	return &Debouncer{
		debounce:      debounce,
		channels:      make(map[int]*channelState),
		counts:        make(map[int]Counts),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process takes a presence sample and returns the edge it completes, if any.
// Every channel starts out absent, matching an idle panel.
func (d *Debouncer) Process(p Presence) *Edge {
	ch := d.channel(p.Channel)

	if p.Present == ch.stable {
		// Back to stable before the debounce elapsed
		ch.pending = false
		return nil
	}

	if !ch.pending {
		ch.pending = true
		ch.pendingSince = p.Time
		if d.debounce > 0 {
			return nil
		}
	}

	return d.settle(p.Channel, ch, p.Time)
}

// Flush promotes every pending change whose debounce period has elapsed by
// now, so an edge is not held back waiting for the next sample. Edges are
// returned in channel order.
func (d *Debouncer) Flush(now time.Time) []Edge {
	ids := make([]int, 0, len(d.channels))
	for id, ch := range d.channels {
		if ch.pending {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	var edges []Edge
	for _, id := range ids {
		if e := d.settle(id, d.channels[id], now); e != nil {
			edges = append(edges, *e)
		}
	}
	return edges
}

func (d *Debouncer) settle(id int, ch *channelState, now time.Time) *Edge {
	if now.Sub(ch.pendingSince) < d.debounce {
		return nil
	}
	ch.stable = !ch.stable
	ch.pending = false

	c := d.counts[id]
	e := &Edge{Channel: id, Time: now}
	if ch.stable {
		e.Type = EdgeSignal
		c.Signal++
	} else {
		e.Type = EdgeEndSignal
		c.EndSignal++
	}
	d.counts[id] = c
	return e
}

func (d *Debouncer) channel(id int) *channelState {
	ch, ok := d.channels[id]
	if !ok {
		ch = &channelState{}
		d.channels[id] = ch
	}
	return ch
}

// Present returns the debounced presence of a channel.
func (d *Debouncer) Present(id int) bool {
	if ch, ok := d.channels[id]; ok {
		return ch.stable
	}
	return false
}

// Counts returns a copy of the per-channel edge counts.
func (d *Debouncer) Counts() map[int]Counts {
	out := make(map[int]Counts, len(d.counts))
	for id, c := range d.counts {
		out[id] = c
	}
	return out
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (d *Debouncer) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.Counts(),
	}
}
