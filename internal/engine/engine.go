package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/domain"
	"github.com/aristath/coinwatch/internal/ledger"
)

// SnapshotSource supplies balance snapshots and price quotes
type SnapshotSource interface {
	FetchBalances(ctx context.Context) (domain.BalanceSnapshot, error)
	FetchQuotes(ctx context.Context) (map[string]domain.PriceQuote, error)
}

// Notifier receives emitted trade events for delivery. Best effort: a
// delivery failure never affects the ledger.
type Notifier interface {
	Notify(ctx context.Context, event domain.TradeEvent) error
}

// Engine owns the reconciliation cycle: fetch, diff, classify, mutate,
// persist, notify. All ledger and baseline mutations happen inside the
// guarded cycle; nothing else writes them.
type Engine struct {
	source   SnapshotSource
	differ   *Differ
	class    *Classifier
	baseline *ledger.BaselineRepository
	notifier Notifier
	log      zerolog.Logger

	quoteCurrency string

	// Single-slot run guard: a trigger that finds the slot occupied is
	// dropped, never queued. The next timer tick reconciles against the
	// latest truth anyway.
	slot chan struct{}

	lastCycle   atomic.Int64 // unix seconds of last completed cycle
	cycleCount  atomic.Int64
	droppedRuns atomic.Int64
}

// Config holds engine configuration
type Config struct {
	Source        SnapshotSource
	Differ        *Differ
	Classifier    *Classifier
	Baseline      *ledger.BaselineRepository
	Notifier      Notifier
	QuoteCurrency string
	Log           zerolog.Logger
}

// New creates a new reconcile engine
func New(cfg Config) *Engine {
	e := &Engine{
		source:        cfg.Source,
		differ:        cfg.Differ,
		class:         cfg.Classifier,
		baseline:      cfg.Baseline,
		notifier:      cfg.Notifier,
		quoteCurrency: cfg.QuoteCurrency,
		log:           cfg.Log.With().Str("component", "engine").Logger(),
		slot:          make(chan struct{}, 1),
	}
	e.slot <- struct{}{}
	return e
}

// TryRunCycle runs one reconciliation cycle unless one is already in flight,
// in which case the trigger is dropped and (false, nil) is returned. Safe to
// call concurrently from the timer and the push stream.
func (e *Engine) TryRunCycle(ctx context.Context, trigger string) (bool, error) {
	select {
	case <-e.slot:
	default:
		e.droppedRuns.Add(1)
		e.log.Debug().Str("trigger", trigger).Msg("Cycle already running, trigger dropped")
		return false, nil
	}
	defer func() { e.slot <- struct{}{} }()

	start := time.Now()
	e.log.Debug().Str("trigger", trigger).Msg("Starting reconcile cycle")

	if err := e.runCycle(ctx); err != nil {
		e.log.Error().Err(err).Str("trigger", trigger).Msg("Reconcile cycle failed")
		return true, err
	}

	e.lastCycle.Store(time.Now().Unix())
	e.cycleCount.Add(1)
	e.log.Debug().Dur("duration", time.Since(start)).Msg("Reconcile cycle completed")
	return true, nil
}

// runCycle executes one fetch-diff-classify-persist-notify pass. Runs
// entirely inside the slot guard.
func (e *Engine) runCycle(ctx context.Context) error {
	snapshot, err := e.source.FetchBalances(ctx)
	if err != nil {
		return fmt.Errorf("balance fetch failed: %w", err)
	}

	quotes, err := e.source.FetchQuotes(ctx)
	if err != nil {
		return fmt.Errorf("quote fetch failed: %w", err)
	}

	prev, err := e.baseline.Load()
	if err != nil {
		return fmt.Errorf("baseline load failed: %w", err)
	}

	if prev == nil {
		// Cold start: the very first observation only establishes the
		// baseline. Interpreting it as trades would flood buy events for
		// every existing holding.
		if err := e.baseline.Save(snapshot); err != nil {
			return fmt.Errorf("baseline save failed: %w", err)
		}
		e.log.Info().Int("assets", len(snapshot.Quantities)).Msg("Cold start, baseline established")
		return nil
	}

	deltas := e.differ.Diff(*prev, snapshot, quotes)

	var events []domain.TradeEvent
	if len(deltas) > 0 {
		// Portfolio value before this cycle's trades, for freezing the
		// entry capital fraction of newly opened lots.
		valueBefore := domain.PortfolioValue(*prev, quotes, e.quoteCurrency)

		for _, delta := range deltas {
			event, err := e.class.Classify(delta, valueBefore)
			if err != nil {
				// Log-only: deltas classified earlier in this loop are
				// already durably applied, so the baseline below must still
				// advance or the next cycle would re-apply them.
				e.log.Error().Err(err).
					Str("asset", delta.Asset).
					Float64("amount", delta.Amount).
					Msg("Classification failed, delta dropped")
				continue
			}
			if event != nil {
				events = append(events, *event)
			}
		}
	}

	// Baseline advances unconditionally so the next diff always runs against
	// the most recent observation.
	if err := e.baseline.Save(snapshot); err != nil {
		return fmt.Errorf("baseline save failed: %w", err)
	}

	for _, event := range events {
		if e.notifier == nil {
			continue
		}
		if err := e.notifier.Notify(ctx, event); err != nil {
			// Ledger truth is independent of notification success.
			e.log.Error().Err(err).
				Str("asset", event.Asset).
				Str("kind", string(event.Kind)).
				Msg("Trade event delivery failed")
		}
	}

	return nil
}

// Status describes the engine for the status endpoint
type Status struct {
	LastCycleAt time.Time `json:"last_cycle_at"`
	CycleCount  int64     `json:"cycle_count"`
	DroppedRuns int64     `json:"dropped_runs"`
}

// Status returns cycle counters
func (e *Engine) Status() Status {
	var last time.Time
	if ts := e.lastCycle.Load(); ts > 0 {
		last = time.Unix(ts, 0)
	}
	return Status{
		LastCycleAt: last,
		CycleCount:  e.cycleCount.Load(),
		DroppedRuns: e.droppedRuns.Load(),
	}
}
