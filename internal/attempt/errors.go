package attempt

import "errors"

var (
	// ErrAlreadyActive is returned when another attempt in the same
	// competition is already in progress. Exactly one of two racing
	// StartAttempt calls wins; the loser gets this, never a race.
	ErrAlreadyActive = errors.New("another attempt is already in progress")

	// ErrNotFound is returned by command-style calls for an unknown
	// attempt. Query-style calls degrade to a neutral answer instead.
	ErrNotFound = errors.New("attempt not found")

	// ErrTooLateToChange is returned when a weight change arrives inside
	// the safety window before the attempt goes live.
	ErrTooLateToChange = errors.New("too late to change the requested weight")

	// ErrInconsistentState is returned when an operation does not apply
	// to the attempt's current lifecycle state.
	ErrInconsistentState = errors.New("operation not valid for attempt state")
)
