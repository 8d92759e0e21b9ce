package bot

import (
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"medbot/internal/conversation"
)

const (
	// captionLimit is the longest caption Telegram accepts on a photo
	captionLimit = 1024
	sendAttempts = 3

	labelShareContact = "📱 Надіслати контакт"
)

// reply sends the engine's replies in order
func (b *Bot) reply(chatID int64, replies []conversation.Reply) {
	for _, r := range replies {
		for _, c := range render(chatID, r) {
			b.send(c)
		}
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

// send delivers one message, retrying transient network failures
func (b *Bot) send(c tgbotapi.Chattable) {
	if b.api == nil {
		return // For testing
	}

	for attempt := 1; attempt <= sendAttempts; attempt++ {
		_, err := b.api.Send(c)
		if err == nil {
			return
		}
		if !shouldRetry(err) || attempt == sendAttempts {
			b.logger.Error("Failed to send message", zap.Error(err), zap.Int("attempt", attempt))
			return
		}
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}
}

// render converts a reply into one or more Telegram messages
func render(chatID int64, r conversation.Reply) []tgbotapi.Chattable {
	parseMode := ""
	if r.HTML {
		parseMode = tgbotapi.ModeHTML
	}
	markup := replyMarkup(r)

	switch {
	case r.Document != nil:
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: r.Document.Name, Bytes: r.Document.Data})
		doc.Caption = r.Text
		doc.ParseMode = parseMode
		doc.ReplyMarkup = markup
		return []tgbotapi.Chattable{doc}

	case len(r.Photo) > 0:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "photo.jpg", Bytes: r.Photo})
		if utf8.RuneCountInString(r.Text) <= captionLimit {
			photo.Caption = r.Text
			photo.ParseMode = parseMode
			photo.ReplyMarkup = markup
			return []tgbotapi.Chattable{photo}
		}

		// Long details follow the photo as a separate message
		msg := tgbotapi.NewMessage(chatID, r.Text)
		msg.ParseMode = parseMode
		msg.ReplyMarkup = markup
		return []tgbotapi.Chattable{photo, msg}

	default:
		msg := tgbotapi.NewMessage(chatID, r.Text)
		msg.ParseMode = parseMode
		msg.ReplyMarkup = markup
		return []tgbotapi.Chattable{msg}
	}
}

func replyMarkup(r conversation.Reply) interface{} {
	switch {
	case len(r.Choices) > 0:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(r.Choices))
		for _, row := range r.Choices {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, c := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Data))
			}
			rows = append(rows, buttons)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)

	case r.RequestContact || len(r.Keyboard) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(r.Keyboard)+1)
		if r.RequestContact {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(labelShareContact)))
		}
		for _, row := range r.Keyboard {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, buttons)
		}
		keyboard := tgbotapi.NewReplyKeyboard(rows...)
		keyboard.ResizeKeyboard = true
		return keyboard

	case r.RemoveKeyboard:
		return tgbotapi.NewRemoveKeyboard(false)
	}
	return nil
}
