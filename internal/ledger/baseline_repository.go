package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/domain"
)

// BaselineRepository persists the last accepted balance snapshot - the
// baseline every diff runs against. Single-row, idempotent overwrite.
type BaselineRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBaselineRepository creates a new baseline repository
func NewBaselineRepository(db *sql.DB, log zerolog.Logger) *BaselineRepository {
	return &BaselineRepository{
		db:  db,
		log: log.With().Str("repo", "baseline").Logger(),
	}
}

// Load returns the stored baseline, or nil when none has ever been persisted
// (cold start)
func (r *BaselineRepository) Load() (*domain.BalanceSnapshot, error) {
	var asOf, quantitiesJSON string
	err := r.db.QueryRow("SELECT as_of, quantities FROM baseline WHERE id = 1").
		Scan(&asOf, &quantitiesJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}

	var quantities map[string]float64
	if err := json.Unmarshal([]byte(quantitiesJSON), &quantities); err != nil {
		return nil, fmt.Errorf("failed to parse baseline quantities: %w", err)
	}

	snapshot := domain.BalanceSnapshot{Quantities: quantities}
	if t, err := time.Parse(time.RFC3339, asOf); err == nil {
		snapshot.AsOf = t
	}

	return &snapshot, nil
}

// Save overwrites the baseline with a new snapshot
func (r *BaselineRepository) Save(snapshot domain.BalanceSnapshot) error {
	quantitiesJSON, err := json.Marshal(snapshot.Quantities)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline quantities: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO baseline (id, as_of, quantities) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET as_of = excluded.as_of, quantities = excluded.quantities
	`, snapshot.AsOf.Format(time.RFC3339), string(quantitiesJSON))
	if err != nil {
		return fmt.Errorf("failed to save baseline: %w", err)
	}

	r.log.Debug().Int("assets", len(snapshot.Quantities)).Msg("Baseline persisted")
	return nil
}
