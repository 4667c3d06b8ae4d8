package bot

import (
	"context"

	"salonbot/internal/audit"
	"salonbot/internal/events"
	"salonbot/internal/model"
	"salonbot/internal/reminders"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) StopReceivingUpdates() {
	c.api.StopReceivingUpdates()
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// BookingService is the appointment lifecycle as seen from the chat.
type BookingService interface {
	StartBooking(ctx context.Context, userID int64, serviceCode string) (int64, error)
	PendingAppointmentID(ctx context.Context, userID int64) (int64, error)
	ProposeSlot(ctx context.Context, appointmentID, userID int64, rawText string) (string, error)
	Confirm(ctx context.Context, appointmentID, userID int64) error
	CancelPending(ctx context.Context, appointmentID, userID int64) error
	Cancel(ctx context.Context, appointmentID, userID int64) error
	RetryCalendarCleanup(ctx context.Context, appointmentID, userID int64) error
	Appointment(ctx context.Context, appointmentID, userID int64) (*model.Appointment, error)
	ListAppointments(ctx context.Context, userID int64) ([]model.Appointment, error)
}

type UserStore interface {
	RegisterUser(ctx context.Context, u *model.User) error
	IsRegistered(ctx context.Context, id int64) (bool, error)
}

type AccessChecker interface {
	Middleware(ctx context.Context, userID int64) error
	AdminMiddleware(userID int64) error
	AdminIDs() []int64
}

type Exporter interface {
	Export(ctx context.Context) (*audit.Report, error)
}

type ReminderTrigger interface {
	RunOnce(ctx context.Context) (reminders.PassResult, error)
}

type EventSubscriber interface {
	Subscribe(eventType string, handler events.EventHandler)
}
