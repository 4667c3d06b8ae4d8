package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"salonbot/internal/calendar"
	"salonbot/internal/events"
	"salonbot/internal/extractor"
	"salonbot/internal/metrics"
	"salonbot/internal/model"

	"github.com/rs/zerolog"
)

// Store is the persistence the state machine relies on.
type Store interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	CreatePending(ctx context.Context, userID int64, service string) (int64, error)
	SetDateTime(ctx context.Context, appointmentID, userID int64, dateTime string) error
	GetByID(ctx context.Context, appointmentID, userID int64) (*model.Appointment, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Appointment, error)
	Confirm(ctx context.Context, appointmentID, userID int64) (model.Status, error)
	CancelPending(ctx context.Context, appointmentID, userID int64) error
	CancelConfirmed(ctx context.Context, appointmentID, userID int64) (string, error)
	AttachCalendarEvent(ctx context.Context, appointmentID int64, eventID string) error
	GetCleanup(ctx context.Context, appointmentID, userID int64) (*model.CalendarCleanup, error)
	ResolveCleanup(ctx context.Context, eventID string) error
}

// Calendar is the calendar sync adapter.
type Calendar interface {
	SlotEnd(start time.Time) time.Time
	IsFree(ctx context.Context, start, end time.Time) (bool, error)
	AddEvent(ctx context.Context, b calendar.Booking) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

type Extractor interface {
	ExtractDateTime(ctx context.Context, text string) (extractor.Result, error)
}

type Publisher interface {
	Publish(event events.Event) error
}

// Service is the booking state machine. The store is the source of truth;
// the calendar only answers availability and mirrors confirmed appointments.
type Service struct {
	store     Store
	calendar  Calendar
	extractor Extractor
	bus       Publisher
	fsm       *FSM
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

func NewService(store Store, cal Calendar, ext Extractor, bus Publisher, loc *time.Location, logger *zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if bus == nil {
		bus = events.NewEventBus()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:     store,
		calendar:  cal,
		extractor: ext,
		bus:       bus,
		fsm:       NewFSM(),
		loc:       loc,
		now:       time.Now,
		logger:    logger.With().Str("component", "booking").Logger(),
	}
}

// StartBooking creates a pending appointment for the service code, retiring
// any earlier pending one.
func (s *Service) StartBooking(ctx context.Context, userID int64, serviceCode string) (int64, error) {
	if err := s.fsm.Check(StateNew, StatePending); err != nil {
		return 0, err
	}
	id, err := s.store.CreatePending(ctx, userID, model.ServiceName(serviceCode))
	if err != nil {
		return 0, fmt.Errorf("start booking: %w", err)
	}
	metrics.IncAppointmentCreated()
	zerolog.Ctx(ctx).Info().Int64("user_id", userID).Int64("appointment_id", id).Str("service", serviceCode).Msg("Pending appointment created")
	return id, nil
}

// PendingAppointmentID returns the user's live pending appointment.
func (s *Service) PendingAppointmentID(ctx context.Context, userID int64) (int64, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u.PendingAppointmentID == nil {
		return 0, model.ErrNotFound
	}
	return *u.PendingAppointmentID, nil
}

// ProposeSlot extracts a date/time from rawText, checks the calendar and
// attaches the slot. It returns the canonical date/time string.
func (s *Service) ProposeSlot(ctx context.Context, appointmentID, userID int64, rawText string) (string, error) {
	a, err := s.store.GetByID(ctx, appointmentID, userID)
	if err != nil {
		return "", err
	}
	if a.Status != model.StatusPending {
		return "", fmt.Errorf("propose slot on %s appointment: %w", a.Status, model.ErrInvalidTransition)
	}

	res, err := s.extractor.ExtractDateTime(ctx, rawText)
	if errors.Is(err, extractor.ErrNotFound) {
		return "", model.ErrUnparseableDateTime
	}
	if err != nil {
		return "", fmt.Errorf("extract date/time: %w", err)
	}

	canonical, err := NormalizeDateTime(res.Date, res.Time)
	if err != nil {
		return "", err
	}
	start, err := model.ParseDateTime(canonical, s.loc)
	if err != nil {
		return "", model.ErrUnparseableDateTime
	}
	if !start.After(s.now()) {
		return "", model.ErrSlotInPast
	}

	free, err := s.calendar.IsFree(ctx, start, s.calendar.SlotEnd(start))
	if err != nil {
		return "", err
	}
	if !free {
		return "", model.ErrSlotUnavailable
	}

	if err := s.store.SetDateTime(ctx, appointmentID, userID, canonical); err != nil {
		return "", err
	}
	zerolog.Ctx(ctx).Info().Int64("appointment_id", appointmentID).Str("date_time", canonical).Msg("Slot attached")
	return canonical, nil
}

// Confirm rechecks the slot against the calendar, moves the appointment to
// confirmed and mirrors it into the calendar in the background. Calendar
// failures after the confirmation do not undo it; they are published as
// events.CalendarSyncFailed.
func (s *Service) Confirm(ctx context.Context, appointmentID, userID int64) error {
	a, err := s.store.GetByID(ctx, appointmentID, userID)
	if err != nil {
		return err
	}
	if a.Status != model.StatusPending || !a.HasDateTime() {
		return fmt.Errorf("confirm %s appointment %d: %w", a.Status, appointmentID, model.ErrInvalidTransition)
	}
	start, err := a.StartTime(s.loc)
	if err != nil {
		return fmt.Errorf("stored date/time %q: %w", a.DateTime, err)
	}

	// Another booking may have taken the slot since it was proposed.
	free, err := s.calendar.IsFree(ctx, start, s.calendar.SlotEnd(start))
	if err != nil {
		return err
	}
	if !free {
		return model.ErrSlotUnavailable
	}

	if _, err := s.store.Confirm(ctx, appointmentID, userID); err != nil {
		return err
	}
	metrics.IncAppointmentConfirmed()
	zerolog.Ctx(ctx).Info().Int64("appointment_id", appointmentID).Msg("Appointment confirmed")

	s.wg.Add(1)
	go s.syncCalendar(context.WithoutCancel(ctx), appointmentID, userID)
	return nil
}

func (s *Service) syncCalendar(ctx context.Context, appointmentID, userID int64) {
	defer s.wg.Done()

	l := s.logger.With().Int64("appointment_id", appointmentID).Int64("user_id", userID).Logger()
	fail := func(err error) {
		l.Error().Err(err).Msg("Calendar sync failed")
		_ = s.bus.Publish(events.Event{
			Type:          events.CalendarSyncFailed,
			AppointmentID: appointmentID,
			UserID:        userID,
			Err:           err,
		})
	}

	a, err := s.store.GetByID(ctx, appointmentID, userID)
	if errors.Is(err, model.ErrNotFound) {
		l.Info().Msg("Appointment canceled before calendar sync")
		return
	}
	if err != nil {
		fail(err)
		return
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		fail(err)
		return
	}
	start, err := a.StartTime(s.loc)
	if err != nil {
		fail(fmt.Errorf("stored date/time %q: %w", a.DateTime, err))
		return
	}

	eventID, err := s.calendar.AddEvent(ctx, calendar.Booking{
		AppointmentID: a.ID,
		UserID:        u.ID,
		ServiceName:   a.Service,
		Start:         start,
		ClientName:    u.FullName(),
		Phone:         u.Phone,
		DeepLink:      u.DeepLink(),
	})
	if err != nil {
		fail(err)
		return
	}

	if err := s.store.AttachCalendarEvent(ctx, appointmentID, eventID); err != nil {
		// The appointment is gone or unwritable; do not leave the event behind.
		if delErr := s.calendar.DeleteEvent(ctx, eventID); delErr != nil {
			l.Error().Err(delErr).Str("event_id", eventID).Msg("Orphaned calendar event")
		}
		if errors.Is(err, model.ErrNotFound) {
			l.Info().Msg("Appointment canceled during calendar sync")
			return
		}
		fail(err)
		return
	}

	_ = s.bus.Publish(events.Event{
		Type:          events.CalendarSynced,
		AppointmentID: appointmentID,
		UserID:        userID,
		EventID:       eventID,
	})
}

// Wait blocks until background calendar syncs finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) CancelPending(ctx context.Context, appointmentID, userID int64) error {
	if err := s.store.CancelPending(ctx, appointmentID, userID); err != nil {
		return err
	}
	metrics.IncAppointmentCancelled(string(StatePending))
	zerolog.Ctx(ctx).Info().Int64("appointment_id", appointmentID).Msg("Pending appointment canceled")
	return nil
}

// CancelConfirmed removes the appointment locally and then its calendar event.
// When the remote deletion fails the error wraps model.ErrCancelIncomplete and
// RetryCalendarCleanup can finish the job.
func (s *Service) CancelConfirmed(ctx context.Context, appointmentID, userID int64) error {
	eventID, err := s.store.CancelConfirmed(ctx, appointmentID, userID)
	if err != nil {
		return err
	}
	metrics.IncAppointmentCancelled(string(StateConfirmed))
	zerolog.Ctx(ctx).Info().Int64("appointment_id", appointmentID).Str("event_id", eventID).Msg("Confirmed appointment canceled")

	if eventID == "" {
		return nil
	}
	return s.deleteRemote(ctx, eventID)
}

// Cancel dispatches on the current status of the appointment.
func (s *Service) Cancel(ctx context.Context, appointmentID, userID int64) error {
	a, err := s.store.GetByID(ctx, appointmentID, userID)
	if err != nil {
		return err
	}
	from, err := StateOf(a.Status)
	if err != nil {
		return err
	}
	if err := s.fsm.Check(from, StateGone); err != nil {
		return err
	}

	switch from {
	case StatePending:
		return s.CancelPending(ctx, appointmentID, userID)
	case StateConfirmed:
		return s.CancelConfirmed(ctx, appointmentID, userID)
	default:
		return fmt.Errorf("cancel from %s: %w", from, model.ErrInvalidTransition)
	}
}

// RetryCalendarCleanup retries the remote deletion left over by a canceled
// appointment. It only talks to the calendar.
func (s *Service) RetryCalendarCleanup(ctx context.Context, appointmentID, userID int64) error {
	c, err := s.store.GetCleanup(ctx, appointmentID, userID)
	if err != nil {
		return err
	}
	return s.deleteRemote(ctx, c.EventID)
}

func (s *Service) deleteRemote(ctx context.Context, eventID string) error {
	if err := s.calendar.DeleteEvent(ctx, eventID); err != nil {
		return fmt.Errorf("%w: %w", model.ErrCancelIncomplete, err)
	}
	if err := s.store.ResolveCleanup(ctx, eventID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("event_id", eventID).Msg("Failed to resolve calendar cleanup")
	}
	return nil
}

// Appointment returns one appointment of the user.
func (s *Service) Appointment(ctx context.Context, appointmentID, userID int64) (*model.Appointment, error) {
	return s.store.GetByID(ctx, appointmentID, userID)
}

func (s *Service) ListAppointments(ctx context.Context, userID int64) ([]model.Appointment, error) {
	return s.store.ListByUser(ctx, userID)
}
