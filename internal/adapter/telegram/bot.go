package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Serg19772026/English-Trainer/internal/application"
	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/Serg19772026/English-Trainer/internal/observability"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type Bot struct {
	api       *tgbotapi.BotAPI
	service   *application.BotService
	i18n      domain.I18nPort
	synth     domain.SynthesizerPort // nil sends prompts as text
	transcode transcodeFunc
	commands  map[string]CommandHandler
	cancel    context.CancelFunc
	log       zerolog.Logger
}

// NewBot connects to Telegram. synth may be nil, in which case prompts are
// sent as text messages.
func NewBot(token string, service *application.BotService, i18n domain.I18nPort, synth domain.SynthesizerPort) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return newBot(api, service, i18n, synth), nil
}

func newBot(api *tgbotapi.BotAPI, service *application.BotService, i18n domain.I18nPort, synth domain.SynthesizerPort) *Bot {
	bot := &Bot{
		api:      api,
		service:  service,
		i18n:     i18n,
		synth:    synth,
		commands: make(map[string]CommandHandler),
		log:      observability.WithComponent("telegram"),
	}
	bot.transcode = bot.ffmpeg

	// Register commands
	bot.registerCommands()

	return bot
}

func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.log.Info().Str("account", b.api.Self.UserName).Msg("Authorized")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.api.StopReceivingUpdates()
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	userID := b.getUserID(update)
	if userID == "" {
		return
	}

	lang := b.service.GetUserLanguage(ctx, userID)

	// Handle commands
	if update.Message != nil && update.Message.IsCommand() {
		b.handleCommand(ctx, update.Message, lang)
		return
	}

	// Handle voice messages
	if update.Message != nil && update.Message.Voice != nil {
		b.handleVoice(ctx, update.Message, lang)
		return
	}

	// Handle callback queries (button presses)
	if update.CallbackQuery != nil && update.CallbackQuery.Message != nil {
		b.handleCallback(ctx, update.CallbackQuery, lang)
		return
	}

	// Anything else gets the help text
	if update.Message != nil && update.Message.Text != "" {
		b.sendMessage(update.Message.Chat.ID, b.i18n.Get(lang, "help.message"))
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	cmd := msg.Command()

	handler, exists := b.commands[cmd]
	if !exists {
		b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "error.unknown_command"))
		return
	}

	handler(ctx, msg)
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery, lang domain.Language) {
	alert := b.routeCallback(ctx, callback, lang)
	b.answerCallback(callback.ID, alert)
}

// routeCallback runs a button press and returns the alert to show, if any
func (b *Bot) routeCallback(ctx context.Context, callback *tgbotapi.CallbackQuery, lang domain.Language) string {
	userID := strconv.FormatInt(callback.From.ID, 10)
	msg := callback.Message
	data := callback.Data
	log := b.log.With().Str("user_id", userID).Str("callback", data).Logger()

	switch {
	// Handle language selection
	case strings.HasPrefix(data, "lang:"):
		newLang := domain.Language(strings.TrimPrefix(data, "lang:"))

		// practice keeps running, only its card changes language
		if state, _ := b.service.GetCurrentState(ctx, userID); state == domain.StatePracticing {
			if err := b.service.SetUserLanguage(ctx, userID, newLang); err != nil {
				log.Error().Err(err).Msg("Failed to set language")
				return b.i18n.Get(lang, "error.generic")
			}
			b.editMessageWithKeyboard(msg, b.i18n.Get(newLang, "language.changed"), nil)
			if card, err := b.service.Card(ctx, userID, msg.Chat.ID); err == nil {
				b.ShowCard(ctx, card)
			}
			return ""
		}

		if err := b.service.HandleStart(ctx, userID, newLang); err != nil {
			log.Error().Err(err).Msg("Failed to set language")
			return b.i18n.Get(lang, "error.generic")
		}
		b.editMessageWithKeyboard(msg, b.i18n.Get(newLang, "language.changed"), nil)
		b.sendTopicSelection(msg.Chat.ID, newLang)

	// Handle topic selection
	case strings.HasPrefix(data, "topic:"):
		topic, sentences, err := b.service.HandleTopicSelection(ctx, userID, strings.TrimPrefix(data, "topic:"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to select topic")
			return b.i18n.Get(lang, "error.invalid_input")
		}
		b.editSentenceSelection(msg, lang, topic, sentences)

	// Handle sentence selection
	case strings.HasPrefix(data, "sentence:"):
		card, err := b.service.HandleSentenceSelection(ctx, userID, msg.Chat.ID, strings.TrimPrefix(data, "sentence:"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to select sentence")
			return b.i18n.Get(lang, "error.generic")
		}
		card.MessageID = msg.MessageID
		b.drawCard(card)
		if err := b.service.SetCardMessage(ctx, userID, msg.MessageID); err != nil {
			log.Warn().Err(err).Msg("Failed to store card message")
		}

	case data == "practice":
		if err := b.service.PracticeSentence(ctx, userID, msg.Chat.ID); err != nil {
			return b.practiceAlert(log, lang, err)
		}

	case strings.HasPrefix(data, "word:"):
		idx, err := strconv.Atoi(strings.TrimPrefix(data, "word:"))
		if err != nil {
			return b.i18n.Get(lang, "error.invalid_input")
		}
		if err := b.service.PracticeWord(ctx, userID, msg.Chat.ID, idx); err != nil {
			return b.practiceAlert(log, lang, err)
		}

	case data == "translation":
		if _, err := b.service.ToggleTranslation(ctx, userID); err != nil {
			log.Error().Err(err).Msg("Failed to toggle translation")
			return b.i18n.Get(lang, "error.generic")
		}
		card, err := b.service.Card(ctx, userID, msg.Chat.ID)
		if err != nil {
			return b.practiceAlert(log, lang, err)
		}
		card.MessageID = msg.MessageID
		b.drawCard(card)

	// Handle navigation
	case data == "back:topics":
		if err := b.service.BackToTopics(ctx, userID); err != nil {
			log.Error().Err(err).Msg("Failed to leave practice")
			return b.i18n.Get(lang, "error.generic")
		}
		b.editTopicSelection(msg, lang)

	case data == "back:sentences":
		topic, sentences, err := b.service.BackToSentences(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to return to sentences")
			b.editTopicSelection(msg, lang)
			return ""
		}
		b.editSentenceSelection(msg, lang, topic, sentences)
	}

	return ""
}

func (b *Bot) practiceAlert(log zerolog.Logger, lang domain.Language, err error) string {
	if errors.Is(err, domain.ErrNoSession) {
		return b.i18n.Get(lang, "error.session_expired")
	}
	log.Error().Err(err).Msg("Practice request failed")
	return b.i18n.Get(lang, "error.invalid_input")
}

func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID
	log := b.log.With().Str("user_id", userID).Logger()

	state, err := b.service.GetCurrentState(ctx, userID)
	if err != nil || state != domain.StatePracticing {
		b.sendMessage(chatID, b.i18n.Get(lang, "error.unexpected_voice"))
		return
	}

	observability.RecordVoiceBytes(int64(msg.Voice.FileSize))

	// Process voice message (download and convert to WAV)
	audioReader, err := b.processVoiceMessage(ctx, msg.Voice.FileID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to process voice message")
		b.sendMessage(chatID, b.i18n.Get(lang, "error.audio_conversion"))
		return
	}

	err = b.service.HandleVoice(ctx, userID, audioReader)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotListening):
		b.sendMessage(chatID, b.i18n.Get(lang, "practice.not_listening"))
	default:
		// the card already shows the recognition error
		log.Warn().Err(err).Msg("Voice message not transcribed")
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendLanguageSelection(chatID int64, currentLang domain.Language) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🇬🇧 English", "lang:en"),
			tgbotapi.NewInlineKeyboardButtonData("🇷🇺 Русский", "lang:ru"),
		),
	)

	msg := tgbotapi.NewMessage(chatID, b.i18n.Get(currentLang, "language.select"))
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send language selection")
	}
}

func (b *Bot) sendTopicSelection(chatID int64, lang domain.Language) {
	msg := tgbotapi.NewMessage(chatID, b.i18n.Get(lang, "topic.select"))
	msg.ReplyMarkup = topicKeyboard(b.i18n, lang, b.service.Topics())
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send topics")
	}
}

func (b *Bot) editTopicSelection(msg *tgbotapi.Message, lang domain.Language) {
	keyboard := topicKeyboard(b.i18n, lang, b.service.Topics())
	b.editMessageWithKeyboard(msg, b.i18n.Get(lang, "topic.select"), &keyboard)
}

func (b *Bot) editSentenceSelection(msg *tgbotapi.Message, lang domain.Language, topic domain.Topic, sentences []domain.Sentence) {
	keyboard := sentenceKeyboard(b.i18n, lang, sentences)
	text := b.i18n.Get(lang, "sentence.select", topic.Icon, b.i18n.TopicTitle(lang, topic))
	b.editMessageWithKeyboard(msg, text, &keyboard)
}

func (b *Bot) editMessageWithKeyboard(msg *tgbotapi.Message, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(msg.Chat.ID, msg.MessageID, text)
	edit.ReplyMarkup = keyboard
	if _, err := b.api.Send(edit); err != nil && !isNotModified(err) {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Failed to edit message")
	}
}

func (b *Bot) answerCallback(callbackID, alert string) {
	callback := tgbotapi.NewCallback(callbackID, "")
	if alert != "" {
		callback = tgbotapi.NewCallbackWithAlert(callbackID, alert)
	}
	if _, err := b.api.Request(callback); err != nil {
		b.log.Error().Err(err).Msg("Failed to answer callback")
	}
}

func (b *Bot) getUserID(update tgbotapi.Update) string {
	if update.Message != nil && update.Message.From != nil {
		return strconv.FormatInt(update.Message.From.ID, 10)
	}
	if update.CallbackQuery != nil && update.CallbackQuery.From != nil {
		return strconv.FormatInt(update.CallbackQuery.From.ID, 10)
	}
	return ""
}

// isNotModified reports whether Telegram rejected an edit that changes nothing
func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
