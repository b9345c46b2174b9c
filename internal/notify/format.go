package notify

import (
	"fmt"
	"strings"

	"github.com/aristath/coinwatch/internal/domain"
)

// FormatTradeEvent renders a trade event as a human-readable message.
func FormatTradeEvent(event domain.TradeEvent) string {
	switch event.Kind {
	case domain.TradeBuy:
		return formatBuy(event)
	case domain.TradePartialSell:
		return formatPartialSell(event)
	case domain.TradeClose:
		return formatClose(event)
	default:
		return fmt.Sprintf("%s %s %s", event.Kind, event.Asset, formatAmount(event.Delta))
	}
}

func formatBuy(event domain.TradeEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🟢 BUY %s\n", event.Asset)
	fmt.Fprintf(&b, "Amount: %s @ $%.6g\n", formatAmount(event.Delta), event.Price)
	fmt.Fprintf(&b, "Value: $%.2f", event.TradeValue)
	if pos := event.Position; pos != nil {
		fmt.Fprintf(&b, "\nAvg buy price: $%.6g", pos.AvgBuyPrice)
		fmt.Fprintf(&b, "\nTotal invested: $%.2f", pos.TotalCost)
		if pos.EntryCapitalPercent > 0 {
			fmt.Fprintf(&b, "\nEntry capital: %.1f%% of portfolio", pos.EntryCapitalPercent)
		}
	}
	return b.String()
}

func formatPartialSell(event domain.TradeEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🟠 PARTIAL SELL %s\n", event.Asset)
	fmt.Fprintf(&b, "Amount: %s @ $%.6g\n", formatAmount(-event.Delta), event.Price)
	fmt.Fprintf(&b, "Value: $%.2f", event.TradeValue)
	if pos := event.Position; pos != nil {
		fmt.Fprintf(&b, "\nAvg buy price: $%.6g", pos.AvgBuyPrice)
		fmt.Fprintf(&b, "\nRealized so far: $%.2f", pos.RealizedValue)
	}
	return b.String()
}

func formatClose(event domain.TradeEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔴 CLOSE %s\n", event.Asset)
	if trade := event.Closed; trade != nil {
		emoji := "📈"
		if trade.PnL < 0 {
			emoji = "📉"
		}
		fmt.Fprintf(&b, "Avg buy: $%.6g -> Avg sell: $%.6g\n", trade.AvgBuyPrice, trade.AvgSellPrice)
		fmt.Fprintf(&b, "%s PnL: $%.2f (%.2f%%)\n", emoji, trade.PnL, trade.PnLPercent)
		fmt.Fprintf(&b, "Held for %s", formatDuration(trade.DurationDays))
	}
	return b.String()
}

func formatAmount(amount float64) string {
	return fmt.Sprintf("%.8g", amount)
}

func formatDuration(days float64) string {
	if days < 1.0/24 {
		return fmt.Sprintf("%.0f minutes", days*24*60)
	}
	if days < 2 {
		return fmt.Sprintf("%.1f hours", days*24)
	}
	return fmt.Sprintf("%.1f days", days)
}
