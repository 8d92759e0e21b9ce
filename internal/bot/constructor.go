package bot

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultDownloadTimeout = 30 * time.Second

// NewBot creates a new Telegram bot
func NewBot(token string, engine Engine, opts Options, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created",
		zap.String("bot_username", api.Self.UserName),
		zap.String("profile", opts.Name))

	return newBot(api, token, engine, opts, logger), nil
}

func newBot(api botAPI, token string, engine Engine, opts Options, logger *zap.Logger) *Bot {
	timeout := opts.DownloadTimeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}

	var limiter *userLimiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = newUserLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Bot{
		api:        api,
		token:      token,
		name:       opts.Name,
		engine:     engine,
		limiter:    limiter,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("bot", opts.Name)),
	}
}
