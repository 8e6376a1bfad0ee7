package clinic

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const reconcileRunTimeout = 20 * time.Second

// Reconciler periodically re-derives doctor availability from the day-off
// policy. It runs once eagerly when started and then on every tick; a failed
// run is logged and the next tick retries.
type Reconciler struct {
	svc      *Service
	interval time.Duration
	log      zerolog.Logger
}

func NewReconciler(svc *Service, interval time.Duration, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		svc:      svc,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopping")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, reconcileRunTimeout)
	defer cancel()

	start := time.Now()
	changed, err := r.svc.ReconcileAvailability(runCtx)
	if err != nil {
		r.log.Error().Err(err).Msg("availability reconcile failed")
		return
	}
	r.log.Info().Int("changed", changed).Dur("elapsed", time.Since(start)).Msg("availability reconcile complete")
}
