package events

import (
	"sync"
	"time"
)

const (
	// CalendarSynced fires after a confirmed appointment got its remote event.
	CalendarSynced = "calendar.synced"
	// CalendarSyncFailed fires when the remote event could not be created.
	CalendarSyncFailed = "calendar.sync_failed"
)

// Event is an in-process notification about an appointment.
type Event struct {
	Type          string
	AppointmentID int64
	UserID        int64
	EventID       string
	Err           error
	CreatedAt     time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the subscribers of the event type synchronously and returns
// the first handler error.
func (b *EventBus) Publish(event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
