package alerts

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/domain"
	"github.com/aristath/coinwatch/internal/engine"
)

// totalKey is the reserved mark key for whole-portfolio value. Exchange
// asset codes are plain uppercase symbols, so the colon cannot collide.
const totalKey = "TOTAL:PORTFOLIO"

// Alerter delivers plain-text alert messages. Best effort.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Monitor watches per-asset prices and total portfolio value for moves
// beyond a percent threshold since the last fired alert
type Monitor struct {
	source          engine.SnapshotSource
	marks           *MarkRepository
	alerter         Alerter
	quoteCurrency   string
	globalThreshold float64            // percent
	overrides       map[string]float64 // per-asset threshold overrides
	log             zerolog.Logger
}

// MonitorConfig holds movement monitor configuration
type MonitorConfig struct {
	Source          engine.SnapshotSource
	Marks           *MarkRepository
	Alerter         Alerter
	QuoteCurrency   string
	GlobalThreshold float64
	Overrides       map[string]float64
	Log             zerolog.Logger
}

// NewMonitor creates a new movement monitor
func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{
		source:          cfg.Source,
		marks:           cfg.Marks,
		alerter:         cfg.Alerter,
		quoteCurrency:   cfg.QuoteCurrency,
		globalThreshold: cfg.GlobalThreshold,
		overrides:       cfg.Overrides,
		log:             cfg.Log.With().Str("component", "movement_monitor").Logger(),
	}
}

// Name returns the job name
func (m *Monitor) Name() string {
	return "price_movements"
}

// Run checks current prices and portfolio value against stored marks
func (m *Monitor) Run() error {
	ctx := context.Background()

	snapshot, err := m.source.FetchBalances(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balances: %w", err)
	}
	quotes, err := m.source.FetchQuotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch quotes: %w", err)
	}

	total := domain.PortfolioValue(snapshot, quotes, m.quoteCurrency)
	if err := m.checkTotal(ctx, total); err != nil {
		m.log.Error().Err(err).Msg("Portfolio movement check failed")
	}

	for asset := range snapshot.Quantities {
		if asset == m.quoteCurrency {
			continue
		}
		quote, ok := quotes[domain.InstrumentID(asset, m.quoteCurrency)]
		if !ok || quote.LastPrice <= 0 {
			continue
		}
		if err := m.checkAsset(ctx, asset, quote.LastPrice); err != nil {
			m.log.Error().Err(err).Str("asset", asset).Msg("Asset movement check failed")
		}
	}

	return nil
}

func (m *Monitor) checkTotal(ctx context.Context, total float64) error {
	mark, err := m.marks.Get(totalKey)
	if err != nil {
		return err
	}
	if mark == 0 {
		return m.marks.Set(totalKey, total)
	}

	changePct := (total - mark) / mark * 100
	if math.Abs(changePct) < m.globalThreshold {
		return nil
	}

	m.log.Info().Float64("change_pct", changePct).Msg("Portfolio moved past threshold")
	if m.alerter != nil {
		text := fmt.Sprintf("Portfolio moved %+.2f%%: $%.2f -> $%.2f", changePct, mark, total)
		if err := m.alerter.Alert(ctx, text); err != nil {
			m.log.Error().Err(err).Msg("Portfolio alert delivery failed")
		}
	}

	// Reset the mark once the alert fired to avoid repeats on every check
	return m.marks.Set(totalKey, total)
}

func (m *Monitor) checkAsset(ctx context.Context, asset string, price float64) error {
	mark, err := m.marks.Get(asset)
	if err != nil {
		return err
	}
	if mark == 0 {
		return m.marks.Set(asset, price)
	}

	threshold := m.globalThreshold
	if override, ok := m.overrides[asset]; ok {
		threshold = override
	}

	changePct := (price - mark) / mark * 100
	if math.Abs(changePct) < threshold {
		return nil
	}

	m.log.Info().Str("asset", asset).Float64("change_pct", changePct).Msg("Asset moved past threshold")
	if m.alerter != nil {
		text := fmt.Sprintf("%s moved %+.2f%%: $%.4f -> $%.4f", asset, changePct, mark, price)
		if err := m.alerter.Alert(ctx, text); err != nil {
			m.log.Error().Err(err).Str("asset", asset).Msg("Asset alert delivery failed")
		}
	}

	return m.marks.Set(asset, price)
}
