package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/coinwatch/internal/domain"
	"github.com/aristath/coinwatch/internal/ledger"
)

// Classifier turns a significant balance delta into a Buy, PartialSell or
// Close event and applies the corresponding ledger mutation. The close
// decision uses the held quantity the snapshot reports, not a locally
// derived residual, so repeated rounding cannot drift a position past its
// own close.
type Classifier struct {
	positions     *ledger.PositionRepository
	trades        *ledger.TradeRepository
	dustThreshold float64
	log           zerolog.Logger
	now           func() time.Time
}

// NewClassifier creates a new trade event classifier
func NewClassifier(
	positions *ledger.PositionRepository,
	trades *ledger.TradeRepository,
	dustThreshold float64,
	log zerolog.Logger,
) *Classifier {
	return &Classifier{
		positions:     positions,
		trades:        trades,
		dustThreshold: dustThreshold,
		log:           log.With().Str("component", "classifier").Logger(),
		now:           time.Now,
	}
}

// Classify applies one delta to the ledger and returns the resulting trade
// event. portfolioValueBefore is the total portfolio value prior to this
// cycle's trades, used to freeze EntryCapitalPercent at lot opening. Returns
// nil (no event) for orphan sells.
func (c *Classifier) Classify(delta Delta, portfolioValueBefore float64) (*domain.TradeEvent, error) {
	if delta.Amount > 0 {
		return c.applyBuy(delta, portfolioValueBefore)
	}
	return c.applySell(delta)
}

func (c *Classifier) applyBuy(delta Delta, portfolioValueBefore float64) (*domain.TradeEvent, error) {
	now := c.now()

	// Cost basis accumulates in decimal so repeated buy/sell cycles cannot
	// drift the weighted average.
	amount := decimal.NewFromFloat(delta.Amount)
	price := decimal.NewFromFloat(delta.Price)
	tradeValue := amount.Mul(price).InexactFloat64()

	pos, err := c.positions.GetByAsset(delta.Asset)
	if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}

	if pos == nil {
		// First buy opens a brand-new lot; prior closed-lot history stays in
		// the archive and is not linked to it.
		entryCapitalPercent := 0.0
		if portfolioValueBefore > 0 {
			entryCapitalPercent = tradeValue / portfolioValueBefore * 100
		}

		pos = &domain.Position{
			Asset:               delta.Asset,
			TotalAmountBought:   delta.Amount,
			TotalCost:           tradeValue,
			AvgBuyPrice:         delta.Price,
			OpenDate:            now,
			HighestPrice:        delta.Price,
			LowestPrice:         delta.Price,
			EntryCapitalPercent: entryCapitalPercent,
			LastUpdated:         now,
		}
	} else {
		bought := decimal.NewFromFloat(pos.TotalAmountBought).Add(amount)
		cost := decimal.NewFromFloat(pos.TotalCost).Add(amount.Mul(price))
		pos.TotalAmountBought = bought.InexactFloat64()
		pos.TotalCost = cost.InexactFloat64()
		pos.AvgBuyPrice = cost.Div(bought).InexactFloat64()
		if delta.Price > pos.HighestPrice {
			pos.HighestPrice = delta.Price
		}
		if delta.Price < pos.LowestPrice {
			pos.LowestPrice = delta.Price
		}
		pos.LastUpdated = now
	}

	if err := c.positions.Upsert(*pos); err != nil {
		return nil, fmt.Errorf("failed to persist position: %w", err)
	}

	c.log.Info().
		Str("asset", delta.Asset).
		Float64("amount", delta.Amount).
		Float64("price", delta.Price).
		Float64("avg_buy_price", pos.AvgBuyPrice).
		Msg("Buy detected")

	return &domain.TradeEvent{
		Kind:       domain.TradeBuy,
		Asset:      delta.Asset,
		Delta:      delta.Amount,
		Price:      delta.Price,
		TradeValue: tradeValue,
		Position:   pos,
		ObservedAt: now,
	}, nil
}

func (c *Classifier) applySell(delta Delta) (*domain.TradeEvent, error) {
	now := c.now()

	pos, err := c.positions.GetByAsset(delta.Asset)
	if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}
	if pos == nil {
		// No cost basis to attribute; never fabricate one.
		c.log.Warn().
			Str("asset", delta.Asset).
			Float64("amount", delta.Amount).
			Msg("Sell signal for untracked asset, ignoring")
		return nil, nil
	}

	soldAmount := -delta.Amount
	sold := decimal.NewFromFloat(soldAmount)
	price := decimal.NewFromFloat(delta.Price)
	pos.RealizedValue = decimal.NewFromFloat(pos.RealizedValue).Add(sold.Mul(price)).InexactFloat64()
	pos.TotalAmountSold = decimal.NewFromFloat(pos.TotalAmountSold).Add(sold).InexactFloat64()
	pos.LastUpdated = now

	if delta.Held*delta.Price < c.dustThreshold {
		return c.applyClose(delta, pos, now)
	}

	// Position stays open; avg buy price is untouched by sells.
	if err := c.positions.Upsert(*pos); err != nil {
		return nil, fmt.Errorf("failed to persist position: %w", err)
	}

	c.log.Info().
		Str("asset", delta.Asset).
		Float64("sold", soldAmount).
		Float64("price", delta.Price).
		Float64("remaining", delta.Held).
		Msg("Partial sell detected")

	return &domain.TradeEvent{
		Kind:       domain.TradePartialSell,
		Asset:      delta.Asset,
		Delta:      delta.Amount,
		Price:      delta.Price,
		TradeValue: soldAmount * delta.Price,
		Position:   pos,
		ObservedAt: now,
	}, nil
}

func (c *Classifier) applyClose(delta Delta, pos *domain.Position, now time.Time) (*domain.TradeEvent, error) {
	realized := decimal.NewFromFloat(pos.RealizedValue)
	invested := decimal.NewFromFloat(pos.AvgBuyPrice).Mul(decimal.NewFromFloat(pos.TotalAmountBought))
	pnlD := realized.Sub(invested)
	pnl := pnlD.InexactFloat64()

	pnlPercent := 0.0
	if invested.IsPositive() {
		pnlPercent = pnlD.Div(invested).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	avgSellPrice := 0.0
	if pos.TotalAmountSold > 0 {
		avgSellPrice = realized.Div(decimal.NewFromFloat(pos.TotalAmountSold)).InexactFloat64()
	}

	closed := domain.ClosedTrade{
		Asset:               pos.Asset,
		AvgBuyPrice:         pos.AvgBuyPrice,
		AvgSellPrice:        avgSellPrice,
		Quantity:            pos.TotalAmountBought,
		PnL:                 pnl,
		PnLPercent:          pnlPercent,
		DurationDays:        now.Sub(pos.OpenDate).Hours() / 24,
		HighestPrice:        pos.HighestPrice,
		LowestPrice:         pos.LowestPrice,
		EntryCapitalPercent: pos.EntryCapitalPercent,
		ClosedAt:            now,
	}

	// Archive first, then delete: a crash in between leaves the position
	// open with its record already archived, which the next close attempt
	// reconciles, rather than losing the trade entirely.
	id, err := c.trades.Append(closed)
	if err != nil {
		return nil, fmt.Errorf("failed to archive closed trade: %w", err)
	}
	closed.ID = id

	if err := c.positions.Delete(pos.Asset); err != nil {
		return nil, fmt.Errorf("failed to delete closed position: %w", err)
	}

	c.log.Info().
		Str("asset", pos.Asset).
		Float64("pnl", pnl).
		Float64("pnl_pct", pnlPercent).
		Float64("duration_days", closed.DurationDays).
		Msg("Position closed")

	return &domain.TradeEvent{
		Kind:       domain.TradeClose,
		Asset:      pos.Asset,
		Delta:      delta.Amount,
		Price:      delta.Price,
		TradeValue: -delta.Amount * delta.Price,
		Closed:     &closed,
		ObservedAt: now,
	}, nil
}
