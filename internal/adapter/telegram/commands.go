package telegram

import (
	"context"
	"errors"
	"strconv"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type CommandHandler func(ctx context.Context, msg *tgbotapi.Message)

// registerCommands registers all bot commands
func (b *Bot) registerCommands() {
	// Register command handlers
	b.commands = map[string]CommandHandler{
		"start":    b.commandStart,
		"help":     b.commandHelp,
		"language": b.commandLanguage,
		"card":     b.commandCard,
	}

	// Set bot commands for Telegram UI
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "Choose a topic"},
		{Command: "card", Description: "Show the practice card"},
		{Command: "language", Description: "Change language"},
		{Command: "help", Description: "Show help"},
	}

	cmdConfig := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cmdConfig); err != nil {
		b.log.Error().Err(err).Msg("Failed to set bot commands")
	}
}

func (b *Bot) commandStart(ctx context.Context, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	lang := b.service.GetUserLanguage(ctx, userID)

	if err := b.service.HandleStart(ctx, userID, lang); err != nil {
		b.log.Error().Err(err).Str("user_id", userID).Msg("Failed to handle start")
		b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "error.generic"))
		return
	}

	// Send welcome message
	b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "welcome.message"))

	// Show topic selection
	b.sendTopicSelection(msg.Chat.ID, lang)
}

func (b *Bot) commandHelp(ctx context.Context, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	lang := b.service.GetUserLanguage(ctx, userID)
	b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "help.message"))
}

func (b *Bot) commandLanguage(ctx context.Context, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	lang := b.service.GetUserLanguage(ctx, userID)
	b.sendLanguageSelection(msg.Chat.ID, lang)
}

// commandCard sends the practice card again as a new message, which becomes
// the one kept up to date
func (b *Bot) commandCard(ctx context.Context, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	lang := b.service.GetUserLanguage(ctx, userID)

	card, err := b.service.Card(ctx, userID, msg.Chat.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNoSession) {
			b.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load card")
		}
		b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "error.session_expired"))
		return
	}

	text, keyboard := renderCard(b.i18n, card)
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyMarkup = keyboard

	sent, err := b.api.Send(out)
	if err != nil {
		b.log.Error().Err(err).Str("user_id", userID).Msg("Failed to send card")
		return
	}
	if err := b.service.SetCardMessage(ctx, userID, sent.MessageID); err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to store card message")
	}
}
