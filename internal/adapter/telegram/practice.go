package telegram

import (
	"context"
	"fmt"
	"html"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// chatSpeaker plays prompts as voice notes captioned with the prompt text,
// or as plain text when no synthesizer is configured. Playback ends once
// Telegram accepted the message.
type chatSpeaker struct {
	bot    *Bot
	chatID int64
}

func (s chatSpeaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// prompts are English text regardless of the interface language
	caption := s.bot.i18n.Get(domain.LangEnglish, "practice.prompt", "<b>"+html.EscapeString(text)+"</b>")

	if s.bot.synth == nil {
		msg := tgbotapi.NewMessage(s.chatID, caption)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableNotification = true
		if _, err := s.bot.api.Send(msg); err != nil {
			return fmt.Errorf("send prompt: %w", err)
		}
		return nil
	}

	audio, err := s.bot.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize prompt: %w", err)
	}
	ogg, err := s.bot.encodeVoice(ctx, audio)
	if err != nil {
		return err
	}

	voice := tgbotapi.NewVoice(s.chatID, tgbotapi.FileBytes{Name: "prompt.ogg", Bytes: ogg})
	voice.Caption = caption
	voice.ParseMode = tgbotapi.ModeHTML
	voice.DisableNotification = true
	if _, err := s.bot.api.Send(voice); err != nil {
		return fmt.Errorf("send voice prompt: %w", err)
	}
	return nil
}

// Speaker implements domain.PracticeView
func (b *Bot) Speaker(chatID int64) domain.Speaker {
	return chatSpeaker{bot: b, chatID: chatID}
}

// ShowCard implements domain.PracticeView. Cards not yet on screen are skipped.
func (b *Bot) ShowCard(ctx context.Context, card domain.PracticeCard) {
	if card.MessageID == 0 {
		return
	}
	b.drawCard(card)
}

func (b *Bot) drawCard(card domain.PracticeCard) {
	text, keyboard := renderCard(b.i18n, card)

	edit := tgbotapi.NewEditMessageText(card.ChatID, card.MessageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = &keyboard
	if _, err := b.api.Send(edit); err != nil && !isNotModified(err) {
		b.log.Error().
			Err(err).
			Int64("chat_id", card.ChatID).
			Int("message_id", card.MessageID).
			Msg("Failed to draw practice card")
	}
}
