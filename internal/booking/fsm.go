// Package booking drives an appointment from draft to confirmed or canceled.
package booking

import (
	"fmt"

	"salonbot/internal/model"
)

// State is the lifecycle position of an appointment. Gone means the row was
// deleted; it is terminal.
type State string

const (
	StateNew       State = "new"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateGone      State = "gone"
)

// FSM holds the legal lifecycle transitions.
type FSM struct {
	transitions map[State][]State
}

func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateNew:       {StatePending},
			StatePending:   {StateConfirmed, StateGone},
			StateConfirmed: {StateGone},
			StateGone:      {},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Check returns model.ErrInvalidTransition for an illegal move.
func (f *FSM) Check(from, to State) error {
	if !f.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, model.ErrInvalidTransition)
	}
	return nil
}

// StateOf maps a stored status onto the lifecycle.
func StateOf(status model.Status) (State, error) {
	switch status {
	case model.StatusPending:
		return StatePending, nil
	case model.StatusConfirmed:
		return StateConfirmed, nil
	default:
		return "", fmt.Errorf("unknown appointment status %q", status)
	}
}
