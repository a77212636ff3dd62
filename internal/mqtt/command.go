package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadCommand is returned for command payloads that cannot be acted on.
var ErrBadCommand = errors.New("mqtt: bad command")

// Command event names.
const (
	CommandSignal    = "signal"
	CommandEndSignal = "end-signal"
)

// Command is a detector message received on TopicCommands. Exactly one of
// Event and Present is set: Event names a direct panel event, Present is a
// raw presence sample that still needs debouncing.
type Command struct {
	Channels []int `json:"channels"`
	Event    string `json:"event,omitempty"`
	Present  *bool  `json:"present,omitempty"`
}

// ParseCommand decodes and validates a command payload.
func ParseCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	if len(c.Channels) == 0 {
		return Command{}, fmt.Errorf("%w: no channels", ErrBadCommand)
	}
	switch {
	case c.Event != "" && c.Present != nil:
		return Command{}, fmt.Errorf("%w: both event and present set", ErrBadCommand)
	case c.Present != nil:
		return c, nil
	case c.Event == CommandSignal, c.Event == CommandEndSignal:
		return c, nil
	case c.Event == "":
		return Command{}, fmt.Errorf("%w: neither event nor present set", ErrBadCommand)
	default:
		return Command{}, fmt.Errorf("%w: unknown event %q", ErrBadCommand, c.Event)
	}
}
