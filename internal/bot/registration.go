package bot

import (
	"context"
	"regexp"
	"strings"

	"salonbot/internal/model"
	"salonbot/internal/state"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

var phonePattern = regexp.MustCompile(`^\+\d{9,15}$`)

func isRegistrationStep(s state.Step) bool {
	switch s {
	case state.StepRegFirstName, state.StepRegLastName, state.StepRegPhone:
		return true
	default:
		return false
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID, userID int64) {
	registered, err := b.users.IsRegistered(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Failed to check registration")
		b.reply(chatID, genericErrorText)
		return
	}
	if registered {
		b.clearState(ctx, userID)
		b.sendMenu(chatID, "Добро пожаловать! Выберите действие:")
		return
	}

	b.setState(ctx, &state.UserState{UserID: userID, Step: state.StepRegFirstName})
	b.reply(chatID, "Привет! Начнём регистрацию. Как вас зовут (имя)?")
}

func (b *Bot) handleRegistration(ctx context.Context, msg *tgbotapi.Message, st *state.UserState, text string) {
	chatID := msg.Chat.ID
	if strings.HasPrefix(text, "/cancel") {
		b.clearState(ctx, st.UserID)
		b.reply(chatID, "Регистрация прервана. Введите /start, чтобы начать заново.")
		return
	}

	switch st.Step {
	case state.StepRegFirstName:
		if text == "" {
			b.reply(chatID, "Пожалуйста, введите имя.")
			return
		}
		st.FirstName = text
		st.Step = state.StepRegLastName
		b.setState(ctx, st)
		b.reply(chatID, "Введите фамилию.")

	case state.StepRegLastName:
		if text == "" {
			b.reply(chatID, "Пожалуйста, введите фамилию.")
			return
		}
		st.LastName = text
		st.Step = state.StepRegPhone
		b.setState(ctx, st)
		b.reply(chatID, "Введите номер телефона в формате +79991234567.")

	case state.StepRegPhone:
		phone, err := normalizePhone(text)
		if err != nil {
			b.reply(chatID, "Неверный формат номера. Укажите в формате +79991234567.")
			return
		}
		u := &model.User{
			ID:            st.UserID,
			Username:      msg.From.UserName,
			FirstName:     st.FirstName,
			LastName:      st.LastName,
			Phone:         phone,
			NotifyEnabled: true,
		}
		if err := b.users.RegisterUser(ctx, u); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", u.ID).Msg("Failed to register user")
			b.reply(chatID, genericErrorText)
			return
		}
		b.clearState(ctx, st.UserID)
		zerolog.Ctx(ctx).Info().Int64("user_id", u.ID).Msg("User registered")
		b.sendMenu(chatID, "Регистрация успешно завершена! Выберите действие:")
	}
}

// normalizePhone strips common separators and checks for +<9-15 digits>.
func normalizePhone(raw string) (string, error) {
	repl := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "", ".", "")
	s := repl.Replace(strings.TrimSpace(raw))
	if !phonePattern.MatchString(s) {
		return "", model.ErrInvalidPhone
	}
	return s, nil
}
