// Package calendar keeps the salon's shared calendar in step with confirmed
// appointments.
package calendar

import (
	"context"
	"time"
)

// Event is the calendar-side view of an appointment.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	// Tags are stored as private properties on the remote event.
	Tags map[string]string
}

// Remote is the calendar back end.
type Remote interface {
	// IsFree reports whether no event overlaps [start, end).
	IsFree(ctx context.Context, start, end time.Time) (bool, error)
	// AddEvent creates the event and returns its remote id.
	AddEvent(ctx context.Context, ev Event) (string, error)
	// DeleteEvent removes an event. Deleting an event that no longer exists succeeds.
	DeleteEvent(ctx context.Context, eventID string) error
}
