package telegram

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const wordsPerRow = 4

// renderCard formats the practice card as HTML with its keyboard
func renderCard(i18n domain.I18nPort, card domain.PracticeCard) (string, tgbotapi.InlineKeyboardMarkup) {
	lang := card.Language
	snap := card.Snapshot

	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("<b>%s %s</b>\n", html.EscapeString(card.Topic.Icon), html.EscapeString(i18n.TopicTitle(lang, card.Topic))))
	sb.WriteString(i18n.StatusLabel(lang, snap.Status))
	sb.WriteString("\n\n")

	// Sentence, word by word
	words := make([]string, len(card.Words))
	for i, w := range card.Words {
		words[i] = markWord(snap, i, w)
	}
	sb.WriteString(strings.Join(words, " "))
	sb.WriteString("\n")

	if card.ShowTranslation && card.Sentence.Translation != "" {
		sb.WriteString(fmt.Sprintf("<i>%s</i>\n", html.EscapeString(card.Sentence.Translation)))
	}

	sb.WriteString("\n")
	sb.WriteString(i18n.Get(lang, "card.progress", len(snap.Matched), len(card.Words)))
	sb.WriteString("\n")

	if snap.Wrong && snap.NearMiss > 0 {
		sb.WriteString(i18n.Get(lang, "card.near_miss", int(math.Round(snap.NearMiss*100))))
		sb.WriteString("\n")
	}

	if snap.Error != nil {
		switch snap.Error.Kind {
		case domain.ErrorKindPlayback:
			sb.WriteString(i18n.Get(lang, "error.playback"))
		default:
			sb.WriteString(i18n.Get(lang, "error.recognition", html.EscapeString(snap.Error.Message)))
		}
		sb.WriteString("\n")
	}

	// Tell the learner what to say
	if card.Restored {
		sb.WriteString(i18n.Get(lang, "practice.restored"))
		sb.WriteString("\n")
	}
	if snap.Listening {
		if snap.Focused >= 0 && snap.Focused < len(card.Words) {
			sb.WriteString(i18n.Get(lang, "practice.say_word", html.EscapeString(card.Words[snap.Focused])))
		} else {
			sb.WriteString(i18n.Get(lang, "practice.say_now"))
		}
		sb.WriteString("\n")
	}

	if len(card.Sentence.Tips) > 0 {
		sb.WriteString("\n")
		sb.WriteString(i18n.Get(lang, "card.tips"))
		sb.WriteString("\n")
		for _, tip := range card.Sentence.Tips {
			sb.WriteString(fmt.Sprintf("• %s\n", html.EscapeString(tip)))
		}
	}

	return strings.TrimRight(sb.String(), "\n"), cardKeyboard(i18n, card)
}

// markWord decorates word idx with its matching state
func markWord(snap domain.Snapshot, idx int, word string) string {
	w := html.EscapeString(word)
	switch {
	case idx == snap.IsolatedSuccess:
		return "🎯<b>" + w + "</b>"
	case idx == snap.Focused:
		// highlight the characters heard so far
		n := min(snap.CharMatchCount, utf8.RuneCountInString(word))
		if n == 0 {
			return "👉<u>" + w + "</u>"
		}
		runes := []rune(word)
		return "👉<u><b>" + html.EscapeString(string(runes[:n])) + "</b>" + html.EscapeString(string(runes[n:])) + "</u>"
	case idx == snap.LastMatched:
		return "✨<b>" + w + "</b>"
	case snap.IsMatched(idx):
		return "<b>" + w + "</b>"
	default:
		return w
	}
}

func cardKeyboard(i18n domain.I18nPort, card domain.PracticeCard) tgbotapi.InlineKeyboardMarkup {
	lang := card.Language
	snap := card.Snapshot

	var rows [][]tgbotapi.InlineKeyboardButton

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(i18n.Get(lang, "practice.sentence"), "practice"),
	))

	// Word buttons
	var row []tgbotapi.InlineKeyboardButton
	for i, w := range card.Words {
		label := w
		switch {
		case i == snap.IsolatedSuccess:
			label = "🎯 " + w
		case snap.IsMatched(i):
			label = "✅ " + w
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "word:"+strconv.Itoa(i)))
		if len(row) == wordsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	if card.Sentence.Translation != "" {
		key := "practice.translation_off"
		if card.ShowTranslation {
			key = "practice.translation_on"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.Get(lang, key), "translation"),
		))
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ "+i18n.Get(lang, "nav.back"), "back:sentences"),
		tgbotapi.NewInlineKeyboardButtonData("📚 "+i18n.Get(lang, "nav.topics"), "back:topics"),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// topicKeyboard lists topics two per row
func topicKeyboard(i18n domain.I18nPort, lang domain.Language, topics []domain.Topic) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(topics); i += 2 {
		row := []tgbotapi.InlineKeyboardButton{topicButton(i18n, lang, topics[i])}
		if i+1 < len(topics) {
			row = append(row, topicButton(i18n, lang, topics[i+1]))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func topicButton(i18n domain.I18nPort, lang domain.Language, t domain.Topic) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(
		strings.TrimSpace(t.Icon+" "+i18n.TopicTitle(lang, t)),
		"topic:"+t.ID,
	)
}

// sentenceKeyboard lists the picked sentences one per row
func sentenceKeyboard(i18n domain.I18nPort, lang domain.Language, sentences []domain.Sentence) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range sentences {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(s.Text, "sentence:"+s.ID),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ "+i18n.Get(lang, "nav.topics"), "back:topics"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
