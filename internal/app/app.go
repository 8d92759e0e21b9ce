package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"medbot/internal/barcode"
	"medbot/internal/bot"
	"medbot/internal/config"
	"medbot/internal/conversation"
	"medbot/internal/face"
	"medbot/internal/mailer"
	"medbot/internal/session"
	"medbot/internal/storage"
	"medbot/internal/storage/ch"
	"medbot/internal/storage/mongodb"
	"medbot/internal/storage/stubs"
	"medbot/internal/validators"
)

const connectTimeout = 15 * time.Second

// App represents the application
type App struct {
	profile  conversation.Profile
	config   *config.Config
	logger   *zap.Logger
	repo     storage.Repository
	activity storage.ActivityLog
	sessions session.Store
	engine   *conversation.Engine
	bot      *bot.Bot
	server   *http.Server
}

// updateHandler receives updates posted to the webhook endpoint
type updateHandler interface {
	HandleWebhookUpdate(update tgbotapi.Update)
}

// New creates and initializes a new application instance for one of the bots
func New(profile conversation.Profile) (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("bot", profile.String()))
	if envErr != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	return NewWithConfig(profile, cfg, logger)
}

// NewWithConfig wires the application from an already loaded configuration
func NewWithConfig(profile conversation.Profile, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{profile: profile, config: cfg, logger: logger}

	logger.Info("Starting medicine bot", zap.String("mode", cfg.Mode()))

	if err := a.initStorage(); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initSessions(); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initEngine(); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initBot(); err != nil {
		a.closeAll()
		return nil, err
	}
	a.initHTTPServer()

	return a, nil
}

// initStorage connects the repository and the activity log
func (a *App) initStorage() error {
	if a.config.UseMockDB {
		a.logger.Info("Using mock database")
		db := stubs.NewMockDB()
		a.repo = db
		a.activity = db
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	a.logger.Info("Connecting to MongoDB", zap.String("database", a.config.Mongo.Database))
	repo, err := mongodb.NewDB(ctx, a.config.Mongo.URI, a.config.Mongo.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	a.repo = repo
	if err := repo.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}

	chCfg := a.config.ClickHouse
	a.logger.Info("Connecting to ClickHouse",
		zap.String("host", chCfg.Host),
		zap.Int("port", chCfg.Port),
		zap.String("database", chCfg.Database),
		zap.String("user", chCfg.User),
		zap.Bool("tls", chCfg.UseTLS))
	activity, err := ch.NewActivityDB(chCfg.Host, chCfg.Port, chCfg.Database, chCfg.User, chCfg.Password, chCfg.UseTLS)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	a.activity = activity
	if err := activity.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}

	a.logger.Info("Database initialized successfully")
	return nil
}

// initSessions picks Redis when configured, otherwise process memory
func (a *App) initSessions() error {
	if a.config.Redis.Addr == "" {
		a.logger.Info("Keeping sessions in memory")
		a.sessions = session.NewMemoryStore()
		return nil
	}

	store := session.NewRedisStore(a.config.Redis.Addr, a.config.Redis.Password, a.config.Redis.DB, a.config.SessionTTL)
	a.sessions = store

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	a.logger.Info("Keeping sessions in Redis",
		zap.String("addr", a.config.Redis.Addr),
		zap.Duration("ttl", a.config.SessionTTL))
	return nil
}

func (a *App) initEngine() error {
	deps := conversation.Deps{
		Repository: a.repo,
		Activity:   a.activity,
		Sessions:   a.sessions,
		Decoder:    barcode.NewDecoder(),
		Detector:   validators.NewWhatlangDetector(),
		Logger:     a.logger,
	}

	if a.config.FaceCascadePath != "" {
		classifier, err := face.NewClassifier(a.config.FaceCascadePath)
		if err != nil {
			return err
		}
		deps.Faces = classifier
	} else if a.profile == conversation.AdminBot {
		a.logger.Warn("FACE_CASCADE_PATH is not set, admin registration will fail")
	}

	if a.config.SMTP.Host != "" {
		deps.Feedback = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     a.config.SMTP.Host,
			Port:     a.config.SMTP.Port,
			Username: a.config.SMTP.Username,
			Password: a.config.SMTP.Password,
			From:     a.config.SMTP.From,
			To:       a.config.FeedbackTo,
		})
	} else {
		a.logger.Info("SMTP relay is not configured, feedback is logged")
		deps.Feedback = mailer.NewLogSender(a.logger)
	}

	a.engine = conversation.New(deps, conversation.Config{
		Profile:        a.profile,
		SuperuserIDs:   a.config.SuperuserIDs,
		TargetLanguage: a.config.TargetLanguage,
		SearchLimit:    a.config.SearchLimit,
	})
	return nil
}

// initBot initializes the Telegram bot
func (a *App) initBot() error {
	telegramBot, err := bot.NewBot(a.config.TelegramToken, a.engine, bot.Options{
		Name:          a.profile.String(),
		RatePerSecond: a.config.RateLimitPerSecond,
		Burst:         a.config.RateLimitBurst,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	a.logger.Info("Bot created successfully", zap.Int64s("superusers", a.config.SuperuserIDs))

	a.bot = telegramBot
	return nil
}

// initHTTPServer initializes the HTTP server for health checks, webhook and the Mini App
func (a *App) initHTTPServer() {
	mux := newMux(a.profile, a.config.Mode(), a.bot, a.logger)
	bot.NewHTTPServer(a.bot, a.config.WebhookMode).RegisterRoutes(mux)

	a.server = &http.Server{
		Addr:         ":" + strconv.Itoa(a.config.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

func newMux(profile conversation.Profile, mode string, updates updateHandler, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Medicine %s bot is running (mode: %s)", profile, mode)
	})

	// Webhook endpoint (only used in webhook mode)
	mux.HandleFunc("/telegram-webhook", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			logger.Warn("Error decoding webhook update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// Process update in background to respond quickly to Telegram
		go updates.HandleWebhookUpdate(update)

		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(ctx, a.config.WebhookURL); err != nil {
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
	} else {
		go func() {
			if err := a.bot.Start(ctx); err != nil {
				a.logger.Error("Polling stopped with error", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()

	a.logger.Info("Shutting down...")
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	err := a.closeAll()
	if err != nil {
		a.logger.Error("Error closing resources", zap.Error(err))
	} else {
		a.logger.Info("Shutdown complete")
	}
	a.logger.Sync()
	return err
}

// closeAll releases the stores; the mock backs both interfaces and is closed once
func (a *App) closeAll() error {
	var errs []error
	if a.sessions != nil {
		errs = append(errs, a.sessions.Close())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	if a.activity != nil && any(a.activity) != any(a.repo) {
		errs = append(errs, a.activity.Close())
	}
	return errors.Join(errs...)
}
