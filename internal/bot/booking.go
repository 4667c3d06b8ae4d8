package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"salonbot/internal/model"
	"salonbot/internal/state"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func servicesKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, s := range model.Services {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(s.Name, "service_"+s.Code))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) sendServices(chatID int64) {
	kb := servicesKeyboard()
	b.replyHTML(chatID, "Выберите услугу:", &kb)
}

func (b *Bot) handleServiceChoice(ctx context.Context, chatID, userID int64, code string) {
	id, err := b.booking.StartBooking(ctx, userID, code)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.setState(ctx, &state.UserState{UserID: userID, Step: state.StepAwaitDateTime, AppointmentID: id})
	b.replyHTML(chatID, fmt.Sprintf(
		"Вы выбрали услугу: <b>%s</b>.\n\nВведите удобные дату и время (например: «25.01.2025 в 14:30»).",
		html.EscapeString(model.ServiceName(code))), nil)
}

// handleFreeText treats any other text as a date/time for the appointment the
// dialog is waiting on. When the dialog state has expired the store's pending
// pointer is used instead.
func (b *Bot) handleFreeText(ctx context.Context, chatID, userID int64, st *state.UserState, text string) {
	id := st.AppointmentID
	if st.Step != state.StepAwaitDateTime || id == 0 {
		var err error
		id, err = b.booking.PendingAppointmentID(ctx, userID)
		if errors.Is(err, model.ErrNotFound) {
			b.reply(chatID, menuHintText)
			return
		}
		if err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
		b.setState(ctx, &state.UserState{UserID: userID, Step: state.StepAwaitDateTime, AppointmentID: id})
	}

	canonical, err := b.booking.ProposeSlot(ctx, id, userID, text)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Да", fmt.Sprintf("confirm_%d", id)),
		tgbotapi.NewInlineKeyboardButtonData("Нет", fmt.Sprintf("cancel_%d", id)),
	))
	b.replyHTML(chatID, fmt.Sprintf("Вы выбрали дату и время: <b>%s</b>\nПодтверждаете запись?", canonical), &kb)
}

func (b *Bot) handleConfirm(ctx context.Context, chatID, userID, appointmentID int64) {
	if err := b.booking.Confirm(ctx, appointmentID, userID); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.clearState(ctx, userID)

	a, err := b.booking.Appointment(ctx, appointmentID, userID)
	if err != nil {
		b.reply(chatID, "Запись подтверждена!")
		return
	}
	b.replyHTML(chatID, fmt.Sprintf("Отлично! Ваша запись на <b>%s</b> в %s подтверждена.",
		html.EscapeString(a.Service), a.DateTime), nil)
}

func (b *Bot) handleCancelPending(ctx context.Context, chatID, userID, appointmentID int64) {
	if err := b.booking.CancelPending(ctx, appointmentID, userID); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.clearState(ctx, userID)
	b.reply(chatID, "Вы отменили текущую запись. Можете заново выбрать услугу.")
}

func (b *Bot) handleCancelAppointment(ctx context.Context, chatID, userID, appointmentID int64) {
	err := b.booking.Cancel(ctx, appointmentID, userID)
	if errors.Is(err, model.ErrCancelIncomplete) {
		zerolog.Ctx(ctx).Error().Err(err).Int64("appointment_id", appointmentID).Msg("Calendar cleanup pending")
		b.sendRetryCleanup(chatID, appointmentID)
		return
	}
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.clearState(ctx, userID)
	b.reply(chatID, "Запись отменена.")
}

func (b *Bot) handleRetryCleanup(ctx context.Context, chatID, userID, appointmentID int64) {
	err := b.booking.RetryCalendarCleanup(ctx, appointmentID, userID)
	switch {
	case errors.Is(err, model.ErrCancelIncomplete):
		zerolog.Ctx(ctx).Error().Err(err).Int64("appointment_id", appointmentID).Msg("Calendar cleanup retry failed")
		b.sendRetryCleanup(chatID, appointmentID)
	case errors.Is(err, model.ErrNotFound):
		b.reply(chatID, "Календарь салона уже обновлён.")
	case err != nil:
		b.replyError(ctx, chatID, err)
	default:
		b.reply(chatID, "Событие удалено из календаря салона.")
	}
}

func (b *Bot) sendRetryCleanup(chatID, appointmentID int64) {
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Повторить", fmt.Sprintf("retry_cleanup_%d", appointmentID)),
	))
	b.replyHTML(chatID, "Запись отменена, но удалить её из календаря салона не удалось. Попробуйте повторить позже.", &kb)
}

func (b *Bot) handleMyAppointments(ctx context.Context, chatID, userID int64) {
	list, err := b.booking.ListAppointments(ctx, userID)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "У вас пока нет записей.")
		return
	}

	for i := range list {
		a := &list[i]
		callback := fmt.Sprintf("cancel_%d", a.ID)
		if a.Status == model.StatusConfirmed {
			callback = fmt.Sprintf("cancel_app_%d", a.ID)
		}
		kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Отменить", callback),
		))
		b.replyHTML(chatID, formatAppointment(a), &kb)
	}
}

func formatAppointment(a *model.Appointment) string {
	dt := a.DateTime
	if dt == "" {
		dt = "—"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Услуга:</b> %s\n", html.EscapeString(a.Service))
	fmt.Fprintf(&sb, "<b>Дата/Время:</b> %s\n", dt)
	fmt.Fprintf(&sb, "<b>Статус:</b> %s\n", a.Status.Label())
	fmt.Fprintf(&sb, "<b>Создано:</b> %s", a.CreatedAt.Format(model.CreatedAtLayout))
	return sb.String()
}
