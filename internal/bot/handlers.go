package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"medbot/internal/conversation"
)

const (
	msgPanic          = "Під час обробки запиту сталася помилка. Спробуйте ще раз."
	msgSlowDown       = "Забагато повідомлень. Зачекайте, будь ласка, кілька секунд."
	msgDownloadFailed = "Не вдалося завантажити фото. Спробуйте надіслати його ще раз."
)

// HandleUpdate routes a single update to the message or callback handler
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// handleMessage processes a single message
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}
	chatID := message.Chat.ID

	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage",
				zap.Any("panic", r),
				zap.Int64("user_id", message.From.ID))
			b.sendText(chatID, msgPanic)
		}
	}()

	userID := message.From.ID
	if !b.limiter.Allow(userID) {
		b.logger.Warn("Rate limit", zap.Int64("user_id", userID))
		b.sendText(chatID, msgSlowDown)
		return
	}

	unlock := b.lockUser(userID)
	defer unlock()

	in := conversation.Input{
		UserID:   userID,
		Username: message.From.UserName,
	}

	switch {
	case message.IsCommand():
		in.Command = message.Command()
		in.Args = message.CommandArguments()
	default:
		in.Text = message.Text
	}

	if message.Contact != nil {
		in.Contact = message.Contact.PhoneNumber
	}
	if message.Document != nil {
		in.FileAttached = true
	}

	if size, ok := largestPhoto(message.Photo); ok {
		photo, err := b.downloadFile(ctx, size.FileID)
		if err != nil {
			b.logger.Error("Failed to download photo", zap.Error(err), zap.Int64("user_id", userID))
			b.sendText(chatID, msgDownloadFailed)
			return
		}
		in.Photo = photo
	}

	b.logger.Debug("Message received",
		zap.Int64("user_id", userID),
		zap.String("command", in.Command),
		zap.Bool("photo", len(in.Photo) > 0),
		zap.Bool("document", in.FileAttached))

	b.reply(chatID, b.engine.Handle(ctx, in))
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery",
				zap.Any("panic", r),
				zap.Int64("user_id", query.From.ID))
		}
	}()

	// Answer the callback query to remove loading state
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err))
	}

	if query.Message == nil || query.Message.Chat == nil {
		return
	}

	userID := query.From.ID
	if !b.limiter.Allow(userID) {
		b.logger.Warn("Rate limit", zap.Int64("user_id", userID))
		return
	}

	unlock := b.lockUser(userID)
	defer unlock()

	replies := b.engine.Handle(ctx, conversation.Input{
		UserID:   userID,
		Username: query.From.UserName,
		Text:     query.Data,
	})
	b.reply(query.Message.Chat.ID, replies)
}

// lockUser serializes updates of one user so their session is not raced
func (b *Bot) lockUser(userID int64) func() {
	return b.userLocks.lock(userID)
}
