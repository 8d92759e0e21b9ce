package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// MongoConfig holds the document store connection
type MongoConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
}

// ClickHouseConfig holds the activity log connection
type ClickHouseConfig struct {
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT" validate:"gte=0,lte=65535"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	User     string `yaml:"user" envconfig:"USER"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	UseTLS   bool   `yaml:"use_tls" envconfig:"USE_TLS"`
}

// RedisConfig holds the session store connection; an empty address keeps sessions in memory
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB" validate:"gte=0"`
}

// SMTPConfig holds the feedback relay; an empty host logs feedback instead of mailing it
type SMTPConfig struct {
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT" validate:"gte=0,lte=65535"`
	Username string `yaml:"username" envconfig:"USERNAME"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	From     string `yaml:"from" envconfig:"FROM" validate:"omitempty,email"`
}

// Config holds the application configuration
type Config struct {
	TelegramToken string  `yaml:"telegram_token" envconfig:"TELEGRAM_BOT_TOKEN" validate:"required"`
	SuperuserIDs  []int64 `yaml:"superuser_ids" envconfig:"SUPERUSER_IDS" validate:"dive,gt=0"`

	// Bot mode configuration
	WebhookMode bool   `yaml:"webhook_mode" envconfig:"WEBHOOK_MODE"`
	WebhookURL  string `yaml:"webhook_url" envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
	Port        int    `yaml:"port" envconfig:"PORT" validate:"gte=1,lte=65535"`

	UseMockDB  bool             `yaml:"use_mock_db" envconfig:"USE_MOCK_DB"`
	Mongo      MongoConfig      `yaml:"mongo" envconfig:"MONGO"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse" envconfig:"CLICKHOUSE"`

	Redis      RedisConfig   `yaml:"redis" envconfig:"REDIS"`
	SessionTTL time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL" validate:"gte=0"`

	SMTP       SMTPConfig `yaml:"smtp" envconfig:"SMTP"`
	FeedbackTo []string   `yaml:"feedback_to" envconfig:"FEEDBACK_TO" validate:"dive,email"`

	RateLimitPerSecond float64 `yaml:"rate_limit_per_second" envconfig:"RATE_LIMIT_PER_SECOND" validate:"gte=0"`
	RateLimitBurst     int     `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" validate:"gte=0"`

	TargetLanguage  string `yaml:"target_language" envconfig:"TARGET_LANGUAGE" validate:"len=2"`
	SearchLimit     int    `yaml:"search_limit" envconfig:"SEARCH_LIMIT" validate:"gte=1,lte=50"`
	FaceCascadePath string `yaml:"face_cascade_path" envconfig:"FACE_CASCADE_PATH"`

	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT" validate:"oneof=json console"`
}

// LoadFromEnv loads configuration from the YAML file named by CONFIG_PATH (if any)
// overlaid with environment variables
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

// Load reads an optional YAML file, applies environment overrides, defaults and validation
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills defaults, checks cross-field rules and validates the result
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}

	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	if cfg.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	if cfg.WebhookMode {
		cfg.WebhookURL = strings.TrimRight(strings.TrimSpace(cfg.WebhookURL), "/")
		if cfg.WebhookURL == "" {
			return errors.New("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	if !cfg.UseMockDB {
		if cfg.Mongo.URI == "" {
			return errors.New("MONGO_URI is required when USE_MOCK_DB is not set")
		}
		if cfg.ClickHouse.Host == "" {
			return errors.New("CLICKHOUSE_HOST is required when USE_MOCK_DB is not set")
		}
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "medicines"
	}
	if cfg.ClickHouse.Port == 0 {
		cfg.ClickHouse.Port = 9000 // Default ClickHouse native port
	}
	if cfg.ClickHouse.Database == "" {
		cfg.ClickHouse.Database = "default"
	}
	if cfg.ClickHouse.User == "" {
		cfg.ClickHouse.User = "default"
	}

	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	if cfg.SMTP.Host != "" {
		if cfg.SMTP.Port == 0 {
			cfg.SMTP.Port = 587
		}
		if cfg.SMTP.From == "" {
			return errors.New("SMTP_FROM is required when SMTP_HOST is set")
		}
		if len(cfg.FeedbackTo) == 0 {
			return errors.New("FEEDBACK_TO is required when SMTP_HOST is set")
		}
	}

	if cfg.RateLimitPerSecond > 0 && cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 3
	}

	cfg.TargetLanguage = strings.ToLower(strings.TrimSpace(cfg.TargetLanguage))
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "uk"
	}
	if cfg.SearchLimit == 0 {
		cfg.SearchLimit = 10
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}

	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Mode returns the update delivery mode for logs and the status page
func (c *Config) Mode() string {
	if c.WebhookMode {
		return "webhook"
	}
	return "polling"
}
