package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/domain"
)

// Sink receives trade events and price alerts
type Sink interface {
	Notify(ctx context.Context, event domain.TradeEvent) error
	Alert(ctx context.Context, text string) error
}

// LogSink writes notifications to the log. Used when no external
// notifier is configured.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a log-only notification sink
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{
		log: log.With().Str("notifier", "log").Logger(),
	}
}

// Notify logs a trade event summary
func (s *LogSink) Notify(ctx context.Context, event domain.TradeEvent) error {
	s.log.Info().
		Str("kind", string(event.Kind)).
		Str("asset", event.Asset).
		Float64("price", event.Price).
		Float64("value", event.TradeValue).
		Msg(FormatTradeEvent(event))
	return nil
}

// Alert logs an alert message
func (s *LogSink) Alert(ctx context.Context, text string) error {
	s.log.Info().Msg(text)
	return nil
}
