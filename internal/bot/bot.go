// Package bot is the Telegram front end of the salon: registration, the
// booking dialog, listings, admin commands and outbound notifications.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"salonbot/internal/access"
	"salonbot/internal/model"
	"salonbot/internal/state"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	btnBook           = "Записаться"
	btnMyAppointments = "Мои записи"
	btnHelp           = "Помощь"

	helpText = "Нажмите «Записаться», выберите услугу и напишите удобные дату и время, " +
		"например «25.01.2025 в 14:30». Свои записи и отмена находятся в разделе «Мои записи»."
	genericErrorText = "Произошла ошибка. Попробуйте позже."
	menuHintText     = "Выберите действие в меню или введите /start для начала работы."
)

var mainMenu = func() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnBook),
			tgbotapi.NewKeyboardButton(btnMyAppointments),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}()

// Deps are the collaborators of the bot. Exporter and Events may be nil.
type Deps struct {
	Booking  BookingService
	Users    UserStore
	State    state.Repository
	Access   AccessChecker
	Exporter Exporter
	Events   EventSubscriber
	// Workers bounds concurrently handled updates. Default: 8.
	Workers int64
}

// Bot is a Telegram bot wrapper for the booking flow.
type Bot struct {
	tg        telegramClient
	booking   BookingService
	users     UserStore
	state     state.Repository
	access    AccessChecker
	exporter  Exporter
	reminders ReminderTrigger
	workers   *semaphore.Weighted
	logger    zerolog.Logger
}

func New(token string, debug bool, deps Deps, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return newBot(&realTelegramClient{api: api}, deps, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, deps Deps, logger *zerolog.Logger) (*Bot, error) {
	return newBot(tg, deps, logger)
}

func newBot(tg telegramClient, deps Deps, logger *zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, errors.New("telegram client is nil")
	}
	if deps.Booking == nil || deps.Users == nil || deps.State == nil || deps.Access == nil {
		return nil, errors.New("bot: booking, users, state and access are required")
	}
	if deps.Workers <= 0 {
		deps.Workers = 8
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	b := &Bot{
		tg:       tg,
		booking:  deps.Booking,
		users:    deps.Users,
		state:    deps.State,
		access:   deps.Access,
		exporter: deps.Exporter,
		workers:  semaphore.NewWeighted(deps.Workers),
		logger:   logger.With().Str("component", "bot").Logger(),
	}
	if deps.Events != nil {
		b.subscribe(deps.Events)
	}
	return b, nil
}

// UseReminders enables /remind_now.
func (b *Bot) UseReminders(t ReminderTrigger) {
	b.reminders = t
}

// Start polls updates until ctx is done, then waits for in-flight handlers.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Bot authorized")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := b.workers.Acquire(ctx, 1); err != nil {
				b.tg.StopReceivingUpdates()
				return
			}
			wg.Add(1)
			go func(update tgbotapi.Update) {
				defer wg.Done()
				defer b.workers.Release(1)
				defer func() {
					if r := recover(); r != nil {
						b.logger.Error().Interface("panic", r).Int("update_id", update.UpdateID).Msg("Update handler panicked")
					}
				}()

				requestID := uuid.New().String()
				l := b.logger.With().Str("request_id", requestID).Logger()
				b.handleUpdate(l.WithContext(context.WithoutCancel(ctx)), &update)
			}(update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("Handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if strings.HasPrefix(text, "/start") {
		b.handleStart(ctx, chatID, userID)
		return
	}

	st := b.getState(ctx, userID)
	if isRegistrationStep(st.Step) {
		b.handleRegistration(ctx, msg, st, text)
		return
	}

	if err := b.access.Middleware(ctx, userID); err != nil {
		b.deny(ctx, chatID, err)
		return
	}

	switch {
	case strings.EqualFold(text, btnBook) || strings.HasPrefix(text, "/book"):
		b.sendServices(chatID)
	case strings.EqualFold(text, btnMyAppointments) || strings.HasPrefix(text, "/my"):
		b.handleMyAppointments(ctx, chatID, userID)
	case strings.EqualFold(text, btnHelp) || strings.HasPrefix(text, "/help"):
		b.reply(chatID, helpText)
	case strings.HasPrefix(text, "/export"):
		b.handleExport(ctx, chatID, userID)
	case strings.HasPrefix(text, "/remind_now"):
		b.handleRemindNow(ctx, chatID, userID)
	case strings.HasPrefix(text, "/cancel"):
		b.clearState(ctx, userID)
		b.sendMenu(chatID, "Операция отменена.")
	case strings.HasPrefix(text, "/"):
		b.reply(chatID, menuHintText)
	default:
		b.handleFreeText(ctx, chatID, userID, st, text)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	_ = b.answerCallback(cq.ID)

	data := cq.Data
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID

	if err := b.access.Middleware(ctx, userID); err != nil {
		b.deny(ctx, chatID, err)
		return
	}

	switch {
	case strings.HasPrefix(data, "service_"):
		b.handleServiceChoice(ctx, chatID, userID, strings.TrimPrefix(data, "service_"))
	case strings.HasPrefix(data, "confirm_"):
		if id, ok := parseID(data, "confirm_"); ok {
			b.handleConfirm(ctx, chatID, userID, id)
		}
	case strings.HasPrefix(data, "cancel_app_"):
		if id, ok := parseID(data, "cancel_app_"); ok {
			b.handleCancelAppointment(ctx, chatID, userID, id)
		}
	case strings.HasPrefix(data, "cancel_"):
		if id, ok := parseID(data, "cancel_"); ok {
			b.handleCancelPending(ctx, chatID, userID, id)
		}
	case strings.HasPrefix(data, "retry_cleanup_"):
		if id, ok := parseID(data, "retry_cleanup_"); ok {
			b.handleRetryCleanup(ctx, chatID, userID, id)
		}
	default:
		zerolog.Ctx(ctx).Debug().Str("data", data).Msg("Unknown callback")
	}
}

func (b *Bot) getState(ctx context.Context, userID int64) *state.UserState {
	st, err := b.state.GetState(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Failed to load dialog state")
		return state.Idle(userID)
	}
	if st == nil {
		return state.Idle(userID)
	}
	return st
}

func (b *Bot) setState(ctx context.Context, st *state.UserState) {
	if err := b.state.SetState(ctx, st); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", st.UserID).Msg("Failed to save dialog state")
	}
}

func (b *Bot) clearState(ctx context.Context, userID int64) {
	if err := b.state.ClearState(ctx, userID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Failed to clear dialog state")
	}
}

func (b *Bot) deny(ctx context.Context, chatID int64, err error) {
	if access.IsAccessDenied(err) {
		b.reply(chatID, err.Error())
		return
	}
	zerolog.Ctx(ctx).Error().Err(err).Msg("Access check failed")
	b.reply(chatID, genericErrorText)
}

func (b *Bot) sendMenu(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenu
	b.send(msg)
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyHTML(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	b.send(msg)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tg.Send(c); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send message")
	}
}

func (b *Bot) answerCallback(id string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, ""))
	return err
}

// userMessage maps a booking error onto what the user is told.
func userMessage(err error) string {
	var calErr *model.RemoteCalendarError
	switch {
	case errors.Is(err, model.ErrUnparseableDateTime):
		return "Не удалось понять дату/время. Попробуйте снова, например «25.01.2025 в 14:30»."
	case errors.Is(err, model.ErrSlotInPast):
		return "Это время уже прошло. Укажите дату и время в будущем."
	case errors.Is(err, model.ErrSlotUnavailable):
		return "К сожалению, выбранное время уже занято. Попробуйте указать другое время."
	case errors.Is(err, model.ErrInvalidTransition):
		return "Эта запись уже подтверждена/отменена или недоступна."
	case errors.Is(err, model.ErrNotFound):
		return "Запись не найдена."
	case errors.As(err, &calErr):
		return "Календарь салона сейчас недоступен. Попробуйте позже."
	default:
		return genericErrorText
	}
}

func (b *Bot) replyError(ctx context.Context, chatID int64, err error) {
	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr),
		errors.Is(err, model.ErrSlotUnavailable),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrNotFound):
		zerolog.Ctx(ctx).Info().Err(err).Msg("Request rejected")
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("Request failed")
	}
	b.reply(chatID, userMessage(err))
}

func parseID(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
