package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/domain"
)

// TradeRepository handles the closed-trade archive. Append-only: rows are
// written once when a position closes and never mutated.
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// Append adds a closed trade to the archive and returns its ID
func (r *TradeRepository) Append(trade domain.ClosedTrade) (int64, error) {
	trade.Asset = normalizeAsset(trade.Asset)

	closedAt := trade.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now()
	}

	result, err := r.db.Exec(`
		INSERT INTO closed_trades
		(asset, avg_buy_price, avg_sell_price, quantity, pnl, pnl_pct,
		 duration_days, highest_price, lowest_price, entry_capital_pct, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.Asset,
		trade.AvgBuyPrice,
		trade.AvgSellPrice,
		trade.Quantity,
		trade.PnL,
		trade.PnLPercent,
		trade.DurationDays,
		trade.HighestPrice,
		trade.LowestPrice,
		trade.EntryCapitalPercent,
		closedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append closed trade: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get closed trade id: %w", err)
	}

	r.log.Info().
		Str("asset", trade.Asset).
		Float64("pnl", trade.PnL).
		Float64("pnl_pct", trade.PnLPercent).
		Msg("Closed trade archived")

	return id, nil
}

// GetRecent returns the most recent closed trades, newest first
func (r *TradeRepository) GetRecent(limit int) ([]domain.ClosedTrade, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, asset, avg_buy_price, avg_sell_price, quantity, pnl, pnl_pct,
		       duration_days, highest_price, lowest_price, entry_capital_pct, closed_at
		FROM closed_trades
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.ClosedTrade
	for rows.Next() {
		trade, err := scanClosedTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closed trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closed trades: %w", err)
	}

	return trades, nil
}

// GetPerformance aggregates archived trades for one asset: realized PnL,
// win/loss counts and average holding duration
func (r *TradeRepository) GetPerformance(asset string) (*domain.AssetPerformance, error) {
	asset = normalizeAsset(asset)

	var perf domain.AssetPerformance
	perf.Asset = asset

	err := r.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(pnl), 0),
		       COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN pnl <= 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(duration_days), 0)
		FROM closed_trades
		WHERE asset = ?
	`, asset).Scan(
		&perf.TradeCount,
		&perf.RealizedPnL,
		&perf.WinningTrades,
		&perf.LosingTrades,
		&perf.AvgDuration,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate performance: %w", err)
	}

	return &perf, nil
}

// GetTotalRealizedPnL sums realized PnL across the whole archive
func (r *TradeRepository) GetTotalRealizedPnL() (float64, error) {
	var total float64
	err := r.db.QueryRow("SELECT COALESCE(SUM(pnl), 0) FROM closed_trades").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	return total, nil
}

func scanClosedTrade(rows *sql.Rows) (domain.ClosedTrade, error) {
	var trade domain.ClosedTrade
	var closedAt string
	var highest, lowest, entryPct sql.NullFloat64

	err := rows.Scan(
		&trade.ID,
		&trade.Asset,
		&trade.AvgBuyPrice,
		&trade.AvgSellPrice,
		&trade.Quantity,
		&trade.PnL,
		&trade.PnLPercent,
		&trade.DurationDays,
		&highest,
		&lowest,
		&entryPct,
		&closedAt,
	)
	if err != nil {
		return trade, err
	}

	if highest.Valid {
		trade.HighestPrice = highest.Float64
	}
	if lowest.Valid {
		trade.LowestPrice = lowest.Float64
	}
	if entryPct.Valid {
		trade.EntryCapitalPercent = entryPct.Float64
	}
	if t, err := time.Parse(time.RFC3339, closedAt); err == nil {
		trade.ClosedAt = t
	}

	return trade, nil
}
