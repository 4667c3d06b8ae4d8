package booking

import (
	"context"
	"sync"
	"time"

	"salonbot/internal/calendar"
	"salonbot/internal/events"
	"salonbot/internal/extractor"
	"salonbot/internal/model"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockStore) CreatePending(ctx context.Context, userID int64, service string) (int64, error) {
	args := m.Called(ctx, userID, service)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) SetDateTime(ctx context.Context, appointmentID, userID int64, dateTime string) error {
	args := m.Called(ctx, appointmentID, userID, dateTime)
	return args.Error(0)
}

func (m *mockStore) GetByID(ctx context.Context, appointmentID, userID int64) (*model.Appointment, error) {
	args := m.Called(ctx, appointmentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Appointment), args.Error(1)
}

func (m *mockStore) ListByUser(ctx context.Context, userID int64) ([]model.Appointment, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Appointment), args.Error(1)
}

func (m *mockStore) Confirm(ctx context.Context, appointmentID, userID int64) (model.Status, error) {
	args := m.Called(ctx, appointmentID, userID)
	return args.Get(0).(model.Status), args.Error(1)
}

func (m *mockStore) CancelPending(ctx context.Context, appointmentID, userID int64) error {
	args := m.Called(ctx, appointmentID, userID)
	return args.Error(0)
}

func (m *mockStore) CancelConfirmed(ctx context.Context, appointmentID, userID int64) (string, error) {
	args := m.Called(ctx, appointmentID, userID)
	return args.String(0), args.Error(1)
}

func (m *mockStore) AttachCalendarEvent(ctx context.Context, appointmentID int64, eventID string) error {
	args := m.Called(ctx, appointmentID, eventID)
	return args.Error(0)
}

func (m *mockStore) GetCleanup(ctx context.Context, appointmentID, userID int64) (*model.CalendarCleanup, error) {
	args := m.Called(ctx, appointmentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CalendarCleanup), args.Error(1)
}

func (m *mockStore) ResolveCleanup(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

type mockCalendar struct {
	mock.Mock
}

func (m *mockCalendar) SlotEnd(start time.Time) time.Time {
	return start.Add(time.Hour)
}

func (m *mockCalendar) IsFree(ctx context.Context, start, end time.Time) (bool, error) {
	args := m.Called(ctx, start, end)
	return args.Bool(0), args.Error(1)
}

func (m *mockCalendar) AddEvent(ctx context.Context, b calendar.Booking) (string, error) {
	args := m.Called(ctx, b)
	return args.String(0), args.Error(1)
}

func (m *mockCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractDateTime(ctx context.Context, text string) (extractor.Result, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(extractor.Result), args.Error(1)
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
