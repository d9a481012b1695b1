package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config keeps runtime settings for the API, the chat bot and the scheduler.
type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	HTTPAddr       string
	JWTSecret      string
	TokenTTL       time.Duration
	TelegramToken  string
	ReportInterval time.Duration
	ReportAt       string
	UndoWindow     time.Duration
	Debug          bool
}

// BotEnabled reports whether a Telegram token was configured.
func (c Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

// Load reads configuration from .env, an optional tasktrack.yaml and environment variables.
func Load() (Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("tasktrack")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_url", "tasktrack.db")
	v.SetDefault("http_addr", ":3000")
	v.SetDefault("token_ttl_hours", 72)
	v.SetDefault("report_interval_hours", "5")
	v.SetDefault("undo_window_seconds", 10)
	v.SetDefault("debug", false)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		DatabaseDriver: strings.ToLower(strings.TrimSpace(v.GetString("database_driver"))),
		DatabaseURL:    strings.TrimSpace(v.GetString("database_url")),
		HTTPAddr:       strings.TrimSpace(v.GetString("http_addr")),
		JWTSecret:      strings.TrimSpace(v.GetString("jwt_secret")),
		TokenTTL:       time.Duration(v.GetInt("token_ttl_hours")) * time.Hour,
		TelegramToken:  strings.TrimSpace(v.GetString("telegram_token")),
		ReportInterval: parseInterval(strings.TrimSpace(v.GetString("report_interval_hours"))),
		ReportAt:       strings.TrimSpace(v.GetString("report_at")),
		UndoWindow:     time.Duration(v.GetInt("undo_window_seconds")) * time.Second,
		Debug:          v.GetBool("debug"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "tasktrack.db"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 72 * time.Hour
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}
	if cfg.UndoWindow < 0 {
		cfg.UndoWindow = 0
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return cfg, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := strconv.ParseFloat(raw, 64)
	if err != nil || hours <= 0 {
		return 0
	}
	return time.Duration(hours * float64(time.Hour))
}
