package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/coinwatch/internal/domain"
)

func TestTelegram_Alert_SendsToConfiguredChat(t *testing.T) {
	var got sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tg := NewTelegram("token", "12345", zerolog.Nop())
	tg.baseURL = server.URL

	require.NoError(t, tg.Alert(context.Background(), "BTC moved +6.00%"))
	assert.Equal(t, "12345", got.ChatID)
	assert.Equal(t, "BTC moved +6.00%", got.Text)
}

func TestTelegram_Alert_APIErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	tg := NewTelegram("token", "12345", zerolog.Nop())
	tg.baseURL = server.URL

	err := tg.Alert(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestFormatTradeEvent_Buy(t *testing.T) {
	msg := FormatTradeEvent(domain.TradeEvent{
		Kind:       domain.TradeBuy,
		Asset:      "ETH",
		Delta:      1.5,
		Price:      3000,
		TradeValue: 4500,
		Position: &domain.Position{
			Asset:               "ETH",
			AvgBuyPrice:         3000,
			TotalCost:           4500,
			EntryCapitalPercent: 12.5,
		},
		ObservedAt: time.Now(),
	})

	assert.Contains(t, msg, "BUY ETH")
	assert.Contains(t, msg, "$4500.00")
	assert.Contains(t, msg, "12.5% of portfolio")
}

func TestFormatTradeEvent_PartialSell(t *testing.T) {
	msg := FormatTradeEvent(domain.TradeEvent{
		Kind:       domain.TradePartialSell,
		Asset:      "SOL",
		Delta:      -40,
		Price:      150,
		TradeValue: 6000,
		Position: &domain.Position{
			Asset:         "SOL",
			AvgBuyPrice:   130,
			RealizedValue: 6000,
		},
	})

	assert.Contains(t, msg, "PARTIAL SELL SOL")
	assert.Contains(t, msg, "Realized so far: $6000.00")
}

func TestFormatTradeEvent_CloseShowsPnL(t *testing.T) {
	msg := FormatTradeEvent(domain.TradeEvent{
		Kind:  domain.TradeClose,
		Asset: "SOL",
		Closed: &domain.ClosedTrade{
			Asset:        "SOL",
			AvgBuyPrice:  13,
			AvgSellPrice: 16,
			PnL:          3000,
			PnLPercent:   23.08,
			DurationDays: 10,
		},
	})

	assert.Contains(t, msg, "CLOSE SOL")
	assert.Contains(t, msg, "PnL: $3000.00 (23.08%)")
	assert.Contains(t, msg, "10.0 days")
}
