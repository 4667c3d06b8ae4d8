package bot

import (
	"context"
	"fmt"
	"html"

	"salonbot/internal/events"
	"salonbot/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SendReminder delivers a reminder to the appointment owner. A non-nil error
// leaves the appointment for the next scheduler pass.
func (b *Bot) SendReminder(_ context.Context, c model.ReminderCandidate) error {
	msg := tgbotapi.NewMessage(c.UserID, formatReminderMessage(c))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.tg.Send(msg); err != nil {
		return fmt.Errorf("send reminder to %d: %w", c.UserID, err)
	}
	return nil
}

func formatReminderMessage(c model.ReminderCandidate) string {
	return fmt.Sprintf("Напоминание! Ваша запись на <b>%s</b> начинается через ~2 часа.\nДата и время: %s",
		html.EscapeString(c.Service), c.DateTime)
}

func (b *Bot) subscribe(bus EventSubscriber) {
	bus.Subscribe(events.CalendarSyncFailed, b.onCalendarSyncFailed)
	bus.Subscribe(events.CalendarSynced, func(e events.Event) error {
		b.logger.Debug().Int64("appointment_id", e.AppointmentID).Str("event_id", e.EventID).Msg("Calendar synced")
		return nil
	})
}

// onCalendarSyncFailed tells the client the booking stands and alerts admins.
func (b *Bot) onCalendarSyncFailed(e events.Event) error {
	text := "Ваша запись подтверждена, но календарь салона сейчас не обновился. " +
		"Администратор внесёт её вручную."
	if _, err := b.tg.Send(tgbotapi.NewMessage(e.UserID, text)); err != nil {
		return fmt.Errorf("notify user %d: %w", e.UserID, err)
	}

	alert := fmt.Sprintf("Запись #%d (пользователь %d) не попала в календарь: %v", e.AppointmentID, e.UserID, e.Err)
	for _, id := range b.access.AdminIDs() {
		b.send(tgbotapi.NewMessage(id, alert))
	}
	return nil
}
