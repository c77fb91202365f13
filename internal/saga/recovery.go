package saga

import (
	"context"
	"log"
	"time"

	"github.com/example/agri-procurement/internal/domain/order"
)

// Reconciler is the recovery sweep for sagas whose process died between a
// remote step and the next local commit. Orders stuck in
// InventoryReserved or PaymentProcessed past the staleness threshold are
// compensated using the reservation and payment ids persisted with each
// step. They are never resumed: re-driving a step that may have partially
// succeeded remotely risks a double charge, while compensation is
// idempotent downstream.
type Reconciler struct {
	orchestrator *Orchestrator
	staleness    time.Duration
	interval     time.Duration
}

func NewReconciler(orchestrator *Orchestrator, staleness, interval time.Duration) *Reconciler {
	return &Reconciler{
		orchestrator: orchestrator,
		staleness:    staleness,
		interval:     interval,
	}
}

// Run sweeps on a fixed interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				log.Printf("[Reconciler] Sweep failed: %v", err)
			}
		}
	}
}

// Sweep compensates every stalled saga it finds and returns how many it
// finalized. Each order is handled independently; a conflict on one (for
// example a request thread finishing the saga concurrently) does not stop
// the rest.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.staleness)
	stalled, err := r.orchestrator.orders.ListStalled(ctx,
		[]order.SagaStatus{order.SagaInventoryReserved, order.SagaPaymentProcessed}, cutoff)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, ord := range stalled {
		log.Printf("[Reconciler] Order %s stalled in %s since %s, compensating",
			ord.ID, ord.SagaStatus, ord.UpdatedAt.Format(time.RFC3339))
		if err := r.orchestrator.compensate(ctx, ord, "saga stalled in "+string(ord.SagaStatus)); err != nil {
			log.Printf("[Reconciler] Failed to compensate order %s: %v", ord.ID, err)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		log.Printf("[Reconciler] Compensated %d stalled sagas", recovered)
	}
	return recovered, nil
}
