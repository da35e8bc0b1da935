package risk

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/graph"
)

// SimulationRunner wraps Timeline.CompareImpact with the persisted
// SimulationRun lifecycle and observer notifications described for
// timeline comparisons: a Pending row is created up front, then moved
// to Completed with its deltas or Failed with the captured error — no
// partial results are ever persisted.
type SimulationRunner struct {
	tenantID string
	store    domain.Store
	observer domain.Observer
	timeline *Timeline
}

func NewSimulationRunner(tenantID string, store domain.Store, observer domain.Observer, builder *graph.Builder) *SimulationRunner {
	return &SimulationRunner{
		tenantID: tenantID,
		store:    store,
		observer: observer,
		timeline: NewTimeline(tenantID, store, builder),
	}
}

func (r *SimulationRunner) Run(ctx context.Context, regulationID string, beforeDate, afterDate time.Time) (domain.SimulationRun, error) {
	run := domain.SimulationRun{
		ID:           uuid.NewString(),
		TenantID:     r.tenantID,
		RegulationID: regulationID,
		Status:       domain.SimulationPending,
		BeforeDate:   beforeDate,
		AfterDate:    afterDate,
		CreatedAt:    time.Now(),
	}
	run, err := r.store.CreateSimulationRun(ctx, run)
	if err != nil {
		return domain.SimulationRun{}, domain.Upstream("creating simulation run", err)
	}

	r.publish(ctx, domain.EventSimulationStart, map[string]any{"simulationId": run.ID, "regulationId": regulationID})

	onProgress := func(regID string, index, total int) {
		r.publish(ctx, domain.EventSimulationProgress, map[string]any{
			"simulationId": run.ID,
			"regulationId": regID,
			"fraction":     float64(index) / float64(total),
		})
	}
	deltas, err := r.timeline.CompareImpact(ctx, regulationID, beforeDate, afterDate, onProgress)
	if err != nil {
		if failErr := r.store.FailSimulationRun(ctx, run.ID, err.Error()); failErr != nil {
			return domain.SimulationRun{}, domain.Upstream("recording simulation failure", failErr)
		}
		r.publish(ctx, domain.EventSimulationError, map[string]any{"simulationId": run.ID, "error": err.Error()})
		run.Status = domain.SimulationFailed
		run.ErrorMessage = err.Error()
		return run, err
	}

	if err := r.store.CompleteSimulationRun(ctx, run.ID, deltas); err != nil {
		return domain.SimulationRun{}, domain.Upstream("recording simulation completion", err)
	}

	run.Status = domain.SimulationCompleted
	run.Deltas = deltas
	r.publish(ctx, domain.EventSimulationComplete, map[string]any{"simulationId": run.ID, "deltaCount": len(deltas)})
	return run, nil
}

func (r *SimulationRunner) publish(ctx context.Context, kind domain.EventKind, payload map[string]any) {
	if r.observer == nil {
		return
	}
	r.observer.Publish(ctx, r.tenantID, domain.Event{
		TenantID:  r.tenantID,
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
