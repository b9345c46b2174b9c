package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	Port         int
	LogLevel     string
	DevMode      bool

	// Trade inference
	QuoteCurrency        string  // settlement currency balances are valued in
	DustThresholdUSD     float64 // min notional delta treated as a real trade
	CycleInterval        time.Duration
	AlertGlobalThreshold float64 // percent move that triggers a price alert

	// OKX credentials
	OKXBaseURL    string
	OKXWSURL      string
	OKXAPIKey     string
	OKXAPISecret  string
	OKXPassphrase string

	// Telegram notifier (optional)
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath: getEnv("DATABASE_PATH", "./data/coinwatch.db"),
		Port:         getEnvAsInt("GO_PORT", 8001),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DevMode:      getEnvAsBool("DEV_MODE", false),

		QuoteCurrency:        getEnv("QUOTE_CURRENCY", "USDT"),
		DustThresholdUSD:     getEnvAsFloat("DUST_THRESHOLD_USD", 1.0),
		CycleInterval:        time.Duration(getEnvAsInt("CYCLE_INTERVAL_SECONDS", 60)) * time.Second,
		AlertGlobalThreshold: getEnvAsFloat("ALERT_GLOBAL_THRESHOLD_PCT", 5.0),

		OKXBaseURL:    getEnv("OKX_BASE_URL", "https://www.okx.com"),
		OKXWSURL:      getEnv("OKX_WS_URL", "wss://ws.okx.com:8443/ws/v5/private"),
		OKXAPIKey:     getEnv("OKX_API_KEY", ""),
		OKXAPISecret:  getEnv("OKX_API_SECRET_KEY", ""),
		OKXPassphrase: getEnv("OKX_API_PASSPHRASE", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.DustThresholdUSD < 0 {
		return fmt.Errorf("DUST_THRESHOLD_USD must not be negative")
	}
	if c.CycleInterval < time.Second {
		return fmt.Errorf("CYCLE_INTERVAL_SECONDS must be at least 1")
	}

	// Note: OKX credentials optional; without them the engine can still run
	// against a replayed snapshot source in tests.

	return nil
}

// TelegramEnabled reports whether the Telegram notifier is configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
