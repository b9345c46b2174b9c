package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/domain"
	"github.com/aristath/coinwatch/internal/engine"
	"github.com/aristath/coinwatch/internal/ledger"
)

// WatermarkJob widens the high/low price watermarks of open positions from
// current quotes, so the close report reflects the full price range seen
// during the lot's life, not just prices at trade moments.
type WatermarkJob struct {
	source        engine.SnapshotSource
	positions     *ledger.PositionRepository
	quoteCurrency string
	log           zerolog.Logger
}

// NewWatermarkJob creates a new watermark job
func NewWatermarkJob(
	source engine.SnapshotSource,
	positions *ledger.PositionRepository,
	quoteCurrency string,
	log zerolog.Logger,
) *WatermarkJob {
	return &WatermarkJob{
		source:        source,
		positions:     positions,
		quoteCurrency: quoteCurrency,
		log:           log.With().Str("job", "watermarks").Logger(),
	}
}

// Name returns the job name
func (j *WatermarkJob) Name() string {
	return "watermarks"
}

// Run updates watermarks for all open positions
func (j *WatermarkJob) Run() error {
	positions, err := j.positions.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	quotes, err := j.source.FetchQuotes(context.Background())
	if err != nil {
		return fmt.Errorf("failed to fetch quotes: %w", err)
	}

	for _, pos := range positions {
		quote, ok := quotes[domain.InstrumentID(pos.Asset, j.quoteCurrency)]
		if !ok || quote.LastPrice <= 0 {
			continue
		}
		if err := j.positions.UpdateWatermarks(pos.Asset, quote.LastPrice); err != nil {
			j.log.Error().Err(err).Str("asset", pos.Asset).Msg("Watermark update failed")
		}
	}

	return nil
}
