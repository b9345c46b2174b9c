package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "USDT", cfg.QuoteCurrency)
	assert.Equal(t, 1.0, cfg.DustThresholdUSD)
	assert.Equal(t, 60*time.Second, cfg.CycleInterval)
	assert.Equal(t, 5.0, cfg.AlertGlobalThreshold)
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("GO_PORT", "9000")
	t.Setenv("QUOTE_CURRENCY", "USDC")
	t.Setenv("DUST_THRESHOLD_USD", "2.5")
	t.Setenv("CYCLE_INTERVAL_SECONDS", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "USDC", cfg.QuoteCurrency)
	assert.Equal(t, 2.5, cfg.DustThresholdUSD)
	assert.Equal(t, 30*time.Second, cfg.CycleInterval)
}

func TestLoad_RejectsSubSecondCycleInterval(t *testing.T) {
	t.Setenv("CYCLE_INTERVAL_SECONDS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CYCLE_INTERVAL_SECONDS")
}

func TestConfig_TelegramEnabled(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.TelegramEnabled())
}
