package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/pauljones0/bfmr-deal-bot/internal/validator"
)

type Config struct {
	ProjectID         string `env:"GOOGLE_CLOUD_PROJECT,required" validate:"required"`
	Port              string `env:"PORT" envDefault:"8080"`
	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL" validate:"omitempty,url"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat         string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`

	Board   Board
	Browser Browser
	Reserve Reserve

	RulesPath         string        `env:"RULES_PATH" envDefault:"config/rules.json"`
	HybridDiscovery   bool          `env:"HYBRID_DISCOVERY" envDefault:"true"`
	ProcessedTTL      time.Duration `env:"PROCESSED_TTL" envDefault:"6h"`
	OrderSyncInterval time.Duration `env:"ORDER_SYNC_INTERVAL" envDefault:"30m" validate:"gt=0"`
	MaxStoredOutcomes int           `env:"MAX_STORED_OUTCOMES" envDefault:"5000" validate:"gt=0"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
}

// Board holds credentials and endpoints for the deal board.
type Board struct {
	APIBaseURL string `env:"BFMR_API_BASE_URL" envDefault:"https://api.bfmr.com/api/v2" validate:"url"`
	APIKey     string `env:"BFMR_API_KEY,required" json:"-"`
	APISecret  string `env:"BFMR_API_SECRET,required" json:"-"`
	WebBaseURL string `env:"BFMR_WEB_BASE_URL" envDefault:"https://www.bfmr.com" validate:"url"`
	Email      string `env:"BFMR_EMAIL,required" validate:"email"`
	Password   string `env:"BFMR_PASSWORD,required" json:"-"`
}

type Browser struct {
	ProfileDir  string        `env:"BROWSER_PROFILE_DIR" envDefault:"browser-data"`
	Headless    bool          `env:"HEADLESS" envDefault:"true"`
	StepTimeout time.Duration `env:"STEP_TIMEOUT" envDefault:"45s" validate:"gt=0"`
}

type Reserve struct {
	BatchSize           int           `env:"RESERVE_BATCH_SIZE" envDefault:"2" validate:"gte=1"`
	Delay               time.Duration `env:"RESERVE_DELAY" envDefault:"2s"`
	MaxAttempts         int           `env:"RESERVE_MAX_ATTEMPTS" envDefault:"10" validate:"gte=1"`
	FatalLoginThreshold int           `env:"FATAL_LOGIN_THRESHOLD" envDefault:"3" validate:"gte=1"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, using process environment", "error", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env.Parse: %w", err)
	}
	if err := validator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.DiscordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, Discord notifications will be skipped")
	}
	return &cfg, nil
}
