package calendar

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"salonbot/internal/metrics"
	"salonbot/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

type AdapterConfig struct {
	// Workers bounds concurrent remote calls. Default: 4.
	Workers int64
	// Timeout bounds one remote call including the wait for a worker. Default: 15s.
	Timeout time.Duration
	// EventDuration is the fixed appointment length. Default: 1h.
	EventDuration time.Duration
	Location      *time.Location
}

// Booking carries what the calendar needs to know about an appointment.
type Booking struct {
	AppointmentID int64
	UserID        int64
	ServiceName   string
	Start         time.Time
	ClientName    string
	Phone         string
	DeepLink      string
}

// Adapter runs remote calendar calls on a bounded set of workers with a
// per-call timeout. Every failure comes back as *model.RemoteCalendarError.
type Adapter struct {
	remote   Remote
	sem      *semaphore.Weighted
	timeout  time.Duration
	duration time.Duration
	loc      *time.Location
	logger   zerolog.Logger
}

func NewAdapter(remote Remote, cfg AdapterConfig, logger *zerolog.Logger) *Adapter {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.EventDuration <= 0 {
		cfg.EventDuration = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Adapter{
		remote:   remote,
		sem:      semaphore.NewWeighted(cfg.Workers),
		timeout:  cfg.Timeout,
		duration: cfg.EventDuration,
		loc:      cfg.Location,
		logger:   logger.With().Str("component", "calendar").Logger(),
	}
}

// SlotEnd returns when an appointment starting at start ends.
func (a *Adapter) SlotEnd(start time.Time) time.Time {
	return start.Add(a.duration)
}

// IsFree reports whether the window has no remote events.
func (a *Adapter) IsFree(ctx context.Context, start, end time.Time) (bool, error) {
	var free bool
	err := a.call(ctx, "list", func(ctx context.Context) error {
		var err error
		free, err = a.remote.IsFree(ctx, start, end)
		return err
	})
	if err != nil {
		return false, err
	}
	return free, nil
}

// AddEvent creates the remote event for a confirmed appointment.
func (a *Adapter) AddEvent(ctx context.Context, b Booking) (string, error) {
	start := b.Start.In(a.loc)
	ev := Event{
		Summary:     b.ServiceName,
		Description: Description(b),
		Start:       start,
		End:         a.SlotEnd(start),
		TimeZone:    a.loc.String(),
		Tags: map[string]string{
			"appointment_id": strconv.FormatInt(b.AppointmentID, 10),
			"user_id":        strconv.FormatInt(b.UserID, 10),
		},
	}

	var eventID string
	err := a.call(ctx, "insert", func(ctx context.Context) error {
		var err error
		eventID, err = a.remote.AddEvent(ctx, ev)
		return err
	})
	if err != nil {
		return "", err
	}
	a.logger.Info().
		Int64("appointment_id", b.AppointmentID).
		Str("event_id", eventID).
		Msg("Calendar event created")
	return eventID, nil
}

func (a *Adapter) DeleteEvent(ctx context.Context, eventID string) error {
	err := a.call(ctx, "delete", func(ctx context.Context) error {
		return a.remote.DeleteEvent(ctx, eventID)
	})
	if err == nil {
		a.logger.Info().Str("event_id", eventID).Msg("Calendar event deleted")
	}
	return err
}

// call dispatches fn to a worker and waits for it or the timeout. A call that
// outlives its timeout keeps its worker slot until the remote returns.
func (a *Adapter) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return a.fail(op, fmt.Errorf("no free worker: %w", err))
	}

	done := make(chan error, 1)
	go func() {
		defer a.sem.Release(1)
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return a.fail(op, err)
		}
		metrics.IncCalendarCall(op, nil)
		return nil
	case <-ctx.Done():
		return a.fail(op, ctx.Err())
	}
}

func (a *Adapter) fail(op string, err error) error {
	metrics.IncCalendarCall(op, err)
	a.logger.Error().Err(err).Str("op", op).Msg("Calendar call failed")
	return &model.RemoteCalendarError{Op: op, Err: err}
}

// Description is the event body shown to salon staff.
func Description(b Booking) string {
	return fmt.Sprintf("Имя: %s\nТелефон: %s\nTelegram: %s", b.ClientName, b.Phone, b.DeepLink)
}
