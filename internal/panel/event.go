package panel

import "fmt"

// EventKind is the type of a queued event.
type EventKind int

const (
	EventSignal EventKind = iota
	EventEndSignal
	EventStop
	// EventShutdown ends the dispatch loop. It carries no channel.
	EventShutdown
)

func (k EventKind) String() string {
	switch k {
	case EventSignal:
		return "signal"
	case EventEndSignal:
		return "end-signal"
	case EventStop:
		return "stop"
	case EventShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// trigger maps a channel event to its state machine trigger.
func (k EventKind) trigger() (Trigger, bool) {
	switch k {
	case EventSignal:
		return TriggerStartSignal, true
	case EventEndSignal:
		return TriggerStopSignal, true
	case EventStop:
		return TriggerStopMachine, true
	}
	return 0, false
}

// Event is a unit of work for the dispatcher.
type Event struct {
	Kind    EventKind
	Channel ChannelID
}

func eventsFor(kind EventKind, ids []ChannelID) []Event {
	evs := make([]Event, 0, len(ids))
	for _, id := range ids {
		evs = append(evs, Event{Kind: kind, Channel: id})
	}
	return evs
}
