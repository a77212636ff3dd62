package panel

import "errors"

var (
	// ErrUnknownChannel is returned when an id is not registered.
	ErrUnknownChannel = errors.New("panel: unknown channel")

	// ErrInvalidChannel is returned for non-positive channel ids.
	ErrInvalidChannel = errors.New("panel: invalid channel id")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("panel: dispatcher already started")

	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("panel: dispatcher not started")
)
