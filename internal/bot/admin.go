package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleExport(ctx context.Context, chatID, userID int64) {
	if err := b.access.AdminMiddleware(userID); err != nil {
		b.deny(ctx, chatID, err)
		return
	}
	if b.exporter == nil {
		b.reply(chatID, "Экспорт не настроен.")
		return
	}

	rep, err := b.exporter.Export(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Export failed")
		b.reply(chatID, genericErrorText)
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: rep.Filename, Bytes: rep.Data})
	doc.Caption = fmt.Sprintf("Выгрузка: пользователей %d, записей %d, незавершённых удалений %d",
		rep.Rows["users"], rep.Rows["appointments"], rep.Rows["calendar_cleanups"])
	b.send(doc)
	zerolog.Ctx(ctx).Info().Int64("admin_id", userID).Str("file", rep.Filename).Msg("Export sent")
}

func (b *Bot) handleRemindNow(ctx context.Context, chatID, userID int64) {
	if err := b.access.AdminMiddleware(userID); err != nil {
		b.deny(ctx, chatID, err)
		return
	}
	if b.reminders == nil {
		b.reply(chatID, "Напоминания не настроены.")
		return
	}

	res, err := b.reminders.RunOnce(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Manual reminder pass failed")
		b.reply(chatID, genericErrorText)
		return
	}
	b.reply(chatID, fmt.Sprintf("Проверка напоминаний выполнена: кандидатов %d, отправлено %d, ошибок %d.",
		res.Candidates, res.Sent, res.Failed))
}
