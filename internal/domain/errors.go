package domain

import (
	"errors"
	"fmt"
)

// ErrNothingPending is returned when a confirm/cancel arrives with no staged mutation.
var ErrNothingPending = errors.New("no command awaiting confirmation")

// UnrecognizedCommandError asks the caller for clarification; it never mutates state.
type UnrecognizedCommandError struct {
	Input  string
	Reason string
}

func (e UnrecognizedCommandError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unrecognized command %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("unrecognized command %q", e.Input)
}

// AmbiguousProjectReferenceError reports a project name the registry does not know.
type AmbiguousProjectReferenceError struct {
	Reference string
	Known     []string
}

func (e AmbiguousProjectReferenceError) Error() string {
	return fmt.Sprintf("project %q is not registered", e.Reference)
}

// InvalidTransitionError rejects a schedule-day status change.
type InvalidTransitionError struct {
	Date   string
	From   DayStatus
	To     DayStatus
	Reason string
}

func (e InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid schedule transition for %s: %s -> %s", e.Date, orNone(e.From), e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// TierConflictError is returned when a second project would hold the ALWAYS tier.
type TierConflictError struct {
	ProjectID string
	HolderID  string
}

func (e TierConflictError) Error() string {
	return fmt.Sprintf("project %s cannot take tier always: already held by %s", e.ProjectID, e.HolderID)
}

// ProgressRegressionError rejects a status snapshot that lowers progress on the same item.
type ProgressRegressionError struct {
	ProjectID string
	ItemID    string
	From      int
	To        int
}

func (e ProgressRegressionError) Error() string {
	return fmt.Sprintf("progress for %s item %s cannot decrease (%d -> %d)", e.ProjectID, e.ItemID, e.From, e.To)
}

func orNone(s DayStatus) string {
	if s == "" {
		return "none"
	}
	return string(s)
}
