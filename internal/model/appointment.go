package model

import (
	"fmt"
	"time"
)

// DateTimeLayout is the canonical textual form of an appointment start.
const DateTimeLayout = "02.01.06 15:04:05"

// CreatedAtLayout is how creation timestamps are persisted.
const CreatedAtLayout = "2006-01-02 15:04:05"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// ParseStatus rejects anything that is not a known status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending:
		return StatusPending, nil
	case StatusConfirmed:
		return StatusConfirmed, nil
	default:
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
}

// Label returns the user-facing name of the status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "ожидает подтверждения"
	case StatusConfirmed:
		return "подтверждена"
	default:
		return string(s)
	}
}

type Appointment struct {
	ID              int64
	UserID          int64
	Service         string
	DateTime        string // canonical layout, empty until a slot is chosen
	Status          Status
	CreatedAt       time.Time
	CalendarEventID string // empty when no remote event exists
	Reminded        bool
}

// HasDateTime reports whether a slot has been attached.
func (a *Appointment) HasDateTime() bool {
	return a.DateTime != ""
}

// StartTime parses the stored date/time in loc.
func (a *Appointment) StartTime(loc *time.Location) (time.Time, error) {
	return ParseDateTime(a.DateTime, loc)
}

// ParseDateTime parses a canonical date/time string in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateTimeLayout, s, loc)
}

// ReminderCandidate is a confirmed, not yet reminded appointment.
type ReminderCandidate struct {
	ID       int64
	UserID   int64
	Service  string
	DateTime string
}

// CalendarCleanup records a remote event whose local appointment is gone.
type CalendarCleanup struct {
	EventID       string
	UserID        int64
	AppointmentID int64
	CreatedAt     time.Time
}
