package calendar

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryCalendar is an in-process Remote used when no Google calendar is
// configured and in tests.
type MemoryCalendar struct {
	mu     sync.Mutex
	events map[string]Event
	nextID int
}

func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{events: make(map[string]Event)}
}

func (m *MemoryCalendar) IsFree(_ context.Context, start, end time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.Start.Before(end) && start.Before(ev.End) {
			return false, nil
		}
	}
	return true, nil
}

func (m *MemoryCalendar) AddEvent(_ context.Context, ev Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := "mem-" + strconv.Itoa(m.nextID)
	m.events[id] = ev
	return id, nil
}

func (m *MemoryCalendar) DeleteEvent(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, eventID)
	return nil
}

// Event returns a stored event by id.
func (m *MemoryCalendar) Event(eventID string) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	return ev, ok
}

func (m *MemoryCalendar) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
