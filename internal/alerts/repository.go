package alerts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// MarkRepository stores the reference prices movement alerts are measured
// against. A mark only moves when its alert fires or when a new asset
// appears, so repeated small drift accumulates until it crosses the
// threshold once.
type MarkRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMarkRepository creates a new mark repository
func NewMarkRepository(db *sql.DB, log zerolog.Logger) *MarkRepository {
	return &MarkRepository{
		db:  db,
		log: log.With().Str("repo", "marks").Logger(),
	}
}

// Get returns the stored mark for a key, or 0 when none exists
func (r *MarkRepository) Get(key string) (float64, error) {
	var price float64
	err := r.db.QueryRow("SELECT price FROM price_marks WHERE asset = ?", key).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load mark: %w", err)
	}
	return price, nil
}

// Set overwrites the mark for a key
func (r *MarkRepository) Set(key string, price float64) error {
	_, err := r.db.Exec(`
		INSERT INTO price_marks (asset, price, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(asset) DO UPDATE SET price = excluded.price, updated_at = excluded.updated_at
	`, key, price, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save mark: %w", err)
	}
	return nil
}
