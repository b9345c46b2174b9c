package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/domain"
)

// PositionRepository handles open-position database operations. One row per
// asset currently held above the dust threshold.
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// GetAll returns all open positions
func (r *PositionRepository) GetAll() ([]domain.Position, error) {
	rows, err := r.db.Query(`
		SELECT asset, total_amount_bought, total_cost, avg_buy_price,
		       total_amount_sold, realized_value, open_date,
		       highest_price, lowest_price, entry_capital_pct, last_updated
		FROM positions
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// GetByAsset returns the open position for an asset, or nil when no lot exists
func (r *PositionRepository) GetByAsset(asset string) (*domain.Position, error) {
	rows, err := r.db.Query(`
		SELECT asset, total_amount_bought, total_cost, avg_buy_price,
		       total_amount_sold, realized_value, open_date,
		       highest_price, lowest_price, entry_capital_pct, last_updated
		FROM positions WHERE asset = ?
	`, normalizeAsset(asset))
	if err != nil {
		return nil, fmt.Errorf("failed to query position by asset: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil // no open lot
	}

	pos, err := scanPosition(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}

	return &pos, nil
}

// GetCount returns the number of open positions
func (r *PositionRepository) GetCount() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get position count: %w", err)
	}
	return count, nil
}

// Upsert inserts or updates a position
func (r *PositionRepository) Upsert(pos domain.Position) error {
	pos.Asset = normalizeAsset(pos.Asset)

	lastUpdated := pos.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO positions
		(asset, total_amount_bought, total_cost, avg_buy_price,
		 total_amount_sold, realized_value, open_date,
		 highest_price, lowest_price, entry_capital_pct, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		pos.Asset,
		pos.TotalAmountBought,
		pos.TotalCost,
		pos.AvgBuyPrice,
		pos.TotalAmountSold,
		pos.RealizedValue,
		pos.OpenDate.Format(time.RFC3339),
		pos.HighestPrice,
		pos.LowestPrice,
		pos.EntryCapitalPercent,
		lastUpdated.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Str("asset", pos.Asset).Msg("Position upserted")
	return nil
}

// Delete removes the position for an asset
func (r *PositionRepository) Delete(asset string) error {
	asset = normalizeAsset(asset)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec("DELETE FROM positions WHERE asset = ?", asset)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.log.Info().Str("asset", asset).Int64("rows_affected", rowsAffected).Msg("Position deleted")
	return nil
}

// UpdateWatermarks widens the high/low price watermarks for an asset. A price
// inside the current range leaves the row untouched.
func (r *PositionRepository) UpdateWatermarks(asset string, price float64) error {
	asset = normalizeAsset(asset)
	now := time.Now().Format(time.RFC3339)

	result, err := r.db.Exec(`
		UPDATE positions SET
			highest_price = MAX(highest_price, ?),
			lowest_price = MIN(lowest_price, ?),
			last_updated = ?
		WHERE asset = ? AND (? > highest_price OR ? < lowest_price)
	`, price, price, now, asset, price, price)
	if err != nil {
		return fmt.Errorf("failed to update watermarks: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		r.log.Debug().Str("asset", asset).Float64("price", price).Msg("Watermarks widened")
	}
	return nil
}

// scanPosition scans a database row into a Position
func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var pos domain.Position
	var openDate, lastUpdated string
	var highest, lowest, entryPct sql.NullFloat64

	err := rows.Scan(
		&pos.Asset,
		&pos.TotalAmountBought,
		&pos.TotalCost,
		&pos.AvgBuyPrice,
		&pos.TotalAmountSold,
		&pos.RealizedValue,
		&openDate,
		&highest,
		&lowest,
		&entryPct,
		&lastUpdated,
	)
	if err != nil {
		return pos, err
	}

	if highest.Valid {
		pos.HighestPrice = highest.Float64
	}
	if lowest.Valid {
		pos.LowestPrice = lowest.Float64
	}
	if entryPct.Valid {
		pos.EntryCapitalPercent = entryPct.Float64
	}

	if t, err := time.Parse(time.RFC3339, openDate); err == nil {
		pos.OpenDate = t
	}
	if t, err := time.Parse(time.RFC3339, lastUpdated); err == nil {
		pos.LastUpdated = t
	}

	return pos, nil
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
