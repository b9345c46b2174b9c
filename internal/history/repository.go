package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Bucket identifies a sampling resolution of portfolio value history
type Bucket string

const (
	BucketHourly Bucket = "hourly"
	BucketDaily  Bucket = "daily"
)

// retention per bucket, in samples
var retention = map[Bucket]int{
	BucketHourly: 72,
	BucketDaily:  35,
}

// Sample is one recorded portfolio value
type Sample struct {
	Label      string    `json:"label"`
	TotalValue float64   `json:"total_value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Repository stores portfolio value history. One row per bucket+label;
// re-recording within the same label overwrites it, so an hour or day always
// carries its latest observed value.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new history repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// Record upserts a sample and prunes the bucket to its retention window
func (r *Repository) Record(bucket Bucket, label string, totalValue float64) error {
	now := time.Now().Format(time.RFC3339)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO portfolio_history (bucket, label, total_value, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(bucket, label) DO UPDATE SET
			total_value = excluded.total_value,
			recorded_at = excluded.recorded_at
	`, string(bucket), label, totalValue, now)
	if err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}

	keep := retention[bucket]
	if keep > 0 {
		_, err = tx.Exec(`
			DELETE FROM portfolio_history
			WHERE bucket = ? AND id NOT IN (
				SELECT id FROM portfolio_history
				WHERE bucket = ?
				ORDER BY label DESC
				LIMIT ?
			)
		`, string(bucket), string(bucket), keep)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Str("bucket", string(bucket)).Str("label", label).Float64("total", totalValue).Msg("Sample recorded")
	return nil
}

// GetAll returns a bucket's samples, oldest first
func (r *Repository) GetAll(bucket Bucket) ([]Sample, error) {
	rows, err := r.db.Query(`
		SELECT label, total_value, recorded_at
		FROM portfolio_history
		WHERE bucket = ?
		ORDER BY label ASC
	`, string(bucket))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var recordedAt string
		if err := rows.Scan(&s.Label, &s.TotalValue, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, recordedAt); err == nil {
			s.RecordedAt = t
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}

	return samples, nil
}
