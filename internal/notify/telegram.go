package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/domain"
)

// Telegram delivers trade events and alerts to a single chat via the
// Telegram Bot API. Fire and forget: the engine never retries deliveries.
type Telegram struct {
	baseURL string
	chatID  string
	client  *http.Client
	log     zerolog.Logger
}

// NewTelegram creates a new Telegram notifier
func NewTelegram(token, chatID string, log zerolog.Logger) *Telegram {
	return &Telegram{
		baseURL: "https://api.telegram.org/bot" + token,
		chatID:  chatID,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.With().Str("notifier", "telegram").Logger(),
	}
}

// Notify delivers a trade event summary
func (t *Telegram) Notify(ctx context.Context, event domain.TradeEvent) error {
	return t.sendMessage(ctx, FormatTradeEvent(event))
}

// Alert delivers a plain-text alert
func (t *Telegram) Alert(ctx context.Context, text string) error {
	return t.sendMessage(ctx, text)
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/sendMessage", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result sendMessageResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram error: %s", result.Description)
	}

	t.log.Debug().Msg("Message delivered")
	return nil
}
