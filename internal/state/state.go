// Package state keeps the per-user dialog step between Telegram updates.
package state

import (
	"context"
)

type Step string

const (
	StepIdle          Step = "idle"
	StepRegFirstName  Step = "reg_first_name"
	StepRegLastName   Step = "reg_last_name"
	StepRegPhone      Step = "reg_phone"
	StepAwaitDateTime Step = "await_datetime"
)

// UserState is the dialog position of one user plus the fields collected so far.
type UserState struct {
	UserID        int64  `json:"user_id"`
	Step          Step   `json:"step"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	AppointmentID int64  `json:"appointment_id,omitempty"`
}

// Idle returns the state of a user with no dialog in progress.
func Idle(userID int64) *UserState {
	return &UserState{UserID: userID, Step: StepIdle}
}

// Repository stores dialog state. GetState returns nil, nil for unknown users.
type Repository interface {
	GetState(ctx context.Context, userID int64) (*UserState, error)
	SetState(ctx context.Context, state *UserState) error
	ClearState(ctx context.Context, userID int64) error
}
