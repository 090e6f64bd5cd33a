package visit

import "errors"

var (
	// ErrUnauthorized means the actor's role is not in the permitted set for
	// the visit's current stage.
	ErrUnauthorized = errors.New("actor role not permitted for this transition")

	// ErrInvalidTransition means the requested stage is not a legal successor
	// of the current stage.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrTerminalState means the visit is discharged or cancelled and accepts
	// no further transitions.
	ErrTerminalState = errors.New("visit is in a terminal stage")

	// ErrNotFound means no visit exists with the given identity.
	ErrNotFound = errors.New("visit not found")
)
