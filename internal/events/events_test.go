package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var got []Event
	bus.Subscribe(CalendarSyncFailed, func(e Event) error {
		got = append(got, e)
		return nil
	})
	bus.Subscribe(CalendarSyncFailed, func(Event) error { return errors.New("notify failed") })

	err := bus.Publish(Event{Type: CalendarSyncFailed, AppointmentID: 7, UserID: 42})
	assert.EqualError(t, err, "notify failed")
	if assert.Len(t, got, 1) {
		assert.Equal(t, int64(7), got[0].AppointmentID)
		assert.False(t, got[0].CreatedAt.IsZero())
	}

	assert.NoError(t, bus.Publish(Event{Type: CalendarSynced}))
}
