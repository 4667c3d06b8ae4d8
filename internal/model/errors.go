package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSlotUnavailable   = errors.New("slot is not available")
	// ErrCancelIncomplete means the local row is gone but the remote event survived.
	ErrCancelIncomplete = errors.New("cancellation incomplete: calendar event not deleted")
)

// ValidationError describes user input that cannot be accepted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var (
	ErrUnparseableDateTime = &ValidationError{Field: "date_time", Reason: "not recognized"}
	ErrSlotInPast          = &ValidationError{Field: "date_time", Reason: "in the past"}
	ErrInvalidPhone        = &ValidationError{Field: "phone", Reason: "expected +<9-15 digits>"}
)

// RemoteCalendarError wraps a failed call to the calendar back end.
type RemoteCalendarError struct {
	Op  string
	Err error
}

func (e *RemoteCalendarError) Error() string {
	return fmt.Sprintf("calendar %s: %v", e.Op, e.Err)
}

func (e *RemoteCalendarError) Unwrap() error {
	return e.Err
}
