package bot

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"medbot/internal/conversation"
	"medbot/internal/models"
)

// botAPI is the subset of the Telegram client the bot uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// Engine is the conversation engine the bot feeds updates into
type Engine interface {
	Handle(ctx context.Context, in conversation.Input) []conversation.Reply
	Lookup(ctx context.Context, code string) (conversation.LookupResult, error)
	Search(ctx context.Context, query string) ([]models.DrugRecord, error)
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

// Bot represents the Telegram bot wrapper
type Bot struct {
	api        botAPI
	token      string
	name       string
	engine     Engine
	limiter    *userLimiter
	httpClient *http.Client
	userLocks  userLocks
	logger     *zap.Logger
}

// Options tune the transport around the engine
type Options struct {
	// Name identifies the bot in logs
	Name string
	// RatePerSecond and Burst bound how fast one user may send updates; zero disables limiting
	RatePerSecond float64
	Burst         int
	// DownloadTimeout bounds a single photo download
	DownloadTimeout time.Duration
}
