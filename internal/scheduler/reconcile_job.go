package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/engine"
)

// ReconcileJob is the periodic trigger for the reconcile engine. The push
// stream is the other trigger source; both go through the engine's run
// guard, so firing while a cycle is in flight just drops the tick.
type ReconcileJob struct {
	engine *engine.Engine
	log    zerolog.Logger
}

// NewReconcileJob creates a new reconcile job
func NewReconcileJob(eng *engine.Engine, log zerolog.Logger) *ReconcileJob {
	return &ReconcileJob{
		engine: eng,
		log:    log.With().Str("job", "reconcile").Logger(),
	}
}

// Name returns the job name
func (j *ReconcileJob) Name() string {
	return "reconcile"
}

// Run executes one reconcile cycle
func (j *ReconcileJob) Run() error {
	ran, err := j.engine.TryRunCycle(context.Background(), "timer")
	if !ran {
		j.log.Debug().Msg("Skipped, cycle in flight")
		return nil
	}
	return err
}
