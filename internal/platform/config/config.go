package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	minBotSecretLength   = 16
	minAdminSecretLength = 32
)

type Config struct {
	AppEnv         string `env:"APP_ENV" default:"development"`
	Port           string `env:"PORT" default:"8080"`
	AppURL         string `env:"APP_URL" default:"http://localhost:8080"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisURL       string `env:"REDIS_URL"`
	BotSecretToken string `env:"BOT_SECRET_TOKEN"`
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`
	LogLevel       string `env:"LOG_LEVEL" default:"info"`
	LogFormat      string `env:"LOG_FORMAT" default:"text"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"1000"`

	StatsSyncInterval time.Duration `env:"STATS_SYNC_INTERVAL" default:"30s"`

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"5"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"10"`
}

// IsDevelopment reports whether the app runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv != "production"
}

// BotLinkConfig configures the bot-side relay client.
type BotLinkConfig struct {
	RelayURL       string `env:"RELAY_URL" default:"ws://localhost:8080/ws"`
	BotSecretToken string `env:"BOT_SECRET_TOKEN"`
	DiscordToken   string `env:"DISCORD_TOKEN"`
	LogLevel       string `env:"LOG_LEVEL" default:"info"`
	LogFormat      string `env:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	loadDotEnv()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func LoadBotLink() (*BotLinkConfig, error) {
	loadDotEnv()

	var cfg BotLinkConfig
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if cfg.BotSecretToken == "" {
		return nil, errors.New("BOT_SECRET_TOKEN is required")
	}
	if cfg.DiscordToken == "" {
		return nil, errors.New("DISCORD_TOKEN is required")
	}
	u, err := url.Parse(cfg.RelayURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("RELAY_URL must be a ws:// or wss:// URL, got %q", cfg.RelayURL)
	}

	return &cfg, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
}

func validate(cfg *Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"BOT_SECRET_TOKEN", cfg.BotSecretToken},
		{"ADMIN_JWT_SECRET", cfg.AdminJWTSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.BotSecretToken) < minBotSecretLength {
		return fmt.Errorf("BOT_SECRET_TOKEN must be at least %d characters", minBotSecretLength)
	}
	if len(cfg.AdminJWTSecret) < minAdminSecretLength {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least %d characters", minAdminSecretLength)
	}

	if cfg.MaxWebSocketConnections <= 0 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be positive")
	}
	if cfg.StatsSyncInterval <= 0 {
		return errors.New("STATS_SYNC_INTERVAL must be positive")
	}
	if cfg.APIRateLimit <= 0 || cfg.APIRateBurst <= 0 {
		return errors.New("API_RATE_LIMIT and API_RATE_BURST must be positive")
	}

	if _, err := url.Parse(cfg.AppURL); err != nil {
		return fmt.Errorf("APP_URL is not a valid URL: %w", err)
	}

	if cfg.AppEnv == "production" && cfg.DatabaseURL != "" {
		if mode := sslMode(cfg.DatabaseURL); mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
