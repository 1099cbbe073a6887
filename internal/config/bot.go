package config

import (
	"log/slog"

	"github.com/joho/godotenv"
)

// Bot holds all configuration for the alert relay bot.
type Bot struct {
	BindAddr string

	// Telegram
	TelegramToken  string
	TelegramChatID string

	// Snapshot service
	SnapshotBaseURL string
	MinImageBytes   int
	ChartTheme      string

	// Webhook
	WebhookSecret string

	// UI.Vision RPA bridge
	UIVisionURL   string
	UIVisionMacro string
	AutoTrade     bool
	TradeExpiry   int
	TradeSize     int

	// Trade log
	TradeLogDir string

	// Logging
	LogLevel string
	LogFile  string
}

// LoadBot reads alert-bot configuration from environment variables and an
// optional .env file.
func LoadBot() (*Bot, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Bot{
		BindAddr: getEnvOrDefault("BOT_BIND_ADDR", "0.0.0.0:5000"),

		TelegramToken:  getEnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnvOrDefault("TELEGRAM_CHAT_ID", ""),

		SnapshotBaseURL: getEnvOrDefault("SNAPSHOT_BASE_URL", "http://127.0.0.1:5001"),
		MinImageBytes:   getEnvIntOrDefault("SNAPSHOT_MIN_IMAGE_BYTES", 2000),
		ChartTheme:      getEnvOrDefault("BOT_CHART_THEME", "dark"),

		WebhookSecret: getEnvOrDefault("WEBHOOK_SECRET", ""),

		UIVisionURL:   getEnvOrDefault("UIVISION_URL", ""),
		UIVisionMacro: getEnvOrDefault("UIVISION_MACRO", "quotex_trade"),
		AutoTrade:     getEnvBoolOrDefault("AUTO_TRADE", false),
		TradeExpiry:   getEnvIntOrDefault("TRADE_EXPIRY_MIN", 1),
		TradeSize:     getEnvIntOrDefault("TRADE_SIZE", 1),

		TradeLogDir: getEnvOrDefault("TRADELOG_DIR", "./tradelog"),

		LogLevel: getEnvOrDefault("BOT_LOG_LEVEL", "info"),
		LogFile:  getEnvOrDefault("BOT_LOG_FILE", "./logs/alertbot.log"),
	}

	return cfg, nil
}
