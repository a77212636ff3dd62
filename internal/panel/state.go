// Package panel schedules independent blinking state machines, one per
// warning-panel output line, behind a single serialized event dispatcher.
package panel

import (
	"fmt"
	"time"
)

// ChannelID identifies a channel. It is also the GPIO pin the channel drives.
type ChannelID int

// State is the logical state of a channel.
type State int

const (
	StateOff State = iota
	StateSignaling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateSignaling:
		return "SIGNALING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Trigger requests a state change.
type Trigger int

const (
	TriggerStartSignal Trigger = iota
	TriggerStopSignal
	TriggerStopMachine
)

func (t Trigger) String() string {
	switch t {
	case TriggerStartSignal:
		return "start_signal"
	case TriggerStopSignal:
		return "stop_signal"
	case TriggerStopMachine:
		return "stop_machine"
	default:
		return fmt.Sprintf("Trigger(%d)", int(t))
	}
}

// next returns the destination of t from s. ok is false when s does not
// accept t; the caller ignores the trigger in that case.
func next(s State, t Trigger) (to State, ok bool) {
	switch s {
	case StateOff:
		switch t {
		case TriggerStartSignal:
			return StateSignaling, true
		case TriggerStopMachine:
			return StateStopped, true
		}
	case StateSignaling:
		switch t {
		case TriggerStopSignal:
			return StateOff, true
		case TriggerStopMachine:
			return StateStopped, true
		}
	}
	return s, false
}

// Transition describes an applied state change.
type Transition struct {
	Channel ChannelID
	Trigger Trigger
	From    State
	To      State
	At      time.Time
	// Err is the hardware fault raised by the on-enter action, if any.
	// The state change itself is never rolled back.
	Err error
}

// ActionCounts counts on-enter action invocations of a machine.
type ActionCounts struct {
	Start int
	Stop  int
}

// Observer is notified of transitions and blink faults. Calls happen on the
// dispatcher or blink goroutines and must not block.
type Observer interface {
	Transitioned(tr Transition)
	BlinkFaulted(ch ChannelID, err error)
}

type nopObserver struct{}

func (nopObserver) Transitioned(Transition) {}
func (nopObserver) BlinkFaulted(ChannelID, error) {}
