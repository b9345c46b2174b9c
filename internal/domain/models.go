package domain

import "time"

// TradeKind classifies an inferred trade event
type TradeKind string

const (
	TradeBuy         TradeKind = "BUY"
	TradePartialSell TradeKind = "PARTIAL_SELL"
	TradeClose       TradeKind = "CLOSE"
)

// BalanceSnapshot is a point-in-time read of held quantities per asset.
// Immutable once captured.
type BalanceSnapshot struct {
	AsOf       time.Time          `json:"as_of"`
	Quantities map[string]float64 `json:"quantities"`
}

// PriceQuote is the ticker for one instrument, supplied per cycle
type PriceQuote struct {
	InstID    string  `json:"inst_id"`
	LastPrice float64 `json:"last_price"`
	Open24h   float64 `json:"open_24h"`
	Change24h float64 `json:"change_24h"`
	Volume24h float64 `json:"vol_24h"`
}

// Position is one open lot: the continuous life of a holding from its first
// buy until the close. AvgBuyPrice is always TotalCost / TotalAmountBought
// and only changes on buys.
type Position struct {
	Asset               string    `json:"asset"`
	TotalAmountBought   float64   `json:"total_amount_bought"`
	TotalCost           float64   `json:"total_cost"`
	AvgBuyPrice         float64   `json:"avg_buy_price"`
	TotalAmountSold     float64   `json:"total_amount_sold"`
	RealizedValue       float64   `json:"realized_value"`
	OpenDate            time.Time `json:"open_date"`
	HighestPrice        float64   `json:"highest_price"`
	LowestPrice         float64   `json:"lowest_price"`
	EntryCapitalPercent float64   `json:"entry_capital_pct"`
	LastUpdated         time.Time `json:"last_updated"`
}

// ClosedTrade is the append-only archive record produced when a position is
// fully closed
type ClosedTrade struct {
	ID                  int64     `json:"id"`
	Asset               string    `json:"asset"`
	AvgBuyPrice         float64   `json:"avg_buy_price"`
	AvgSellPrice        float64   `json:"avg_sell_price"`
	Quantity            float64   `json:"quantity"`
	PnL                 float64   `json:"pnl"`
	PnLPercent          float64   `json:"pnl_pct"`
	DurationDays        float64   `json:"duration_days"`
	HighestPrice        float64   `json:"highest_price"`
	LowestPrice         float64   `json:"lowest_price"`
	EntryCapitalPercent float64   `json:"entry_capital_pct"`
	ClosedAt            time.Time `json:"closed_at"`
}

// TradeEvent is the engine's output for one inferred trade
type TradeEvent struct {
	Kind       TradeKind    `json:"kind"`
	Asset      string       `json:"asset"`
	Delta      float64      `json:"delta"`
	Price      float64      `json:"price"`
	TradeValue float64      `json:"trade_value"`
	Position   *Position    `json:"position,omitempty"` // nil after a close
	Closed     *ClosedTrade `json:"closed,omitempty"`   // set on close only
	ObservedAt time.Time    `json:"observed_at"`
}

// AssetPerformance aggregates the closed-trade archive for one asset
type AssetPerformance struct {
	Asset         string  `json:"asset"`
	RealizedPnL   float64 `json:"realized_pnl"`
	TradeCount    int     `json:"trade_count"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	AvgDuration   float64 `json:"avg_duration_days"`
}

// InstrumentID builds the quote key for an asset, e.g. BTC -> BTC-USDT
func InstrumentID(asset, quoteCurrency string) string {
	return asset + "-" + quoteCurrency
}

// PortfolioValue values a snapshot against current quotes. The quote currency
// itself is valued 1:1; assets with no quote this cycle contribute nothing.
func PortfolioValue(s BalanceSnapshot, quotes map[string]PriceQuote, quoteCurrency string) float64 {
	total := 0.0
	for asset, qty := range s.Quantities {
		if asset == quoteCurrency {
			total += qty
			continue
		}
		if q, ok := quotes[InstrumentID(asset, quoteCurrency)]; ok {
			total += qty * q.LastPrice
		}
	}
	return total
}
