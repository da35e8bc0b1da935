package domain

import (
	"context"
	"time"
)

// Store is everything the core requires from persistence. Adapters
// implement it; the core never imports an adapter package directly.
type Store interface {
	FindTenant(ctx context.Context, id string) (Tenant, error)
	FindRegulation(ctx context.Context, tenantID, id string) (Regulation, error)
	FindDepartment(ctx context.Context, tenantID, id string) (Department, error)
	FindBudget(ctx context.Context, tenantID, id string) (Budget, error)
	FindService(ctx context.Context, tenantID, id string) (Service, error)
	FindKPI(ctx context.Context, tenantID, id string) (KPI, error)

	// ActiveEntitiesByType backs the per-type prefetch the propagation
	// engine uses to resolve display names without one lookup per node.
	ActiveEntitiesByType(ctx context.Context, tenantID string, nodeType NodeType) ([]NamedEntity, error)

	ActiveEdges(ctx context.Context, tenantID string) ([]ImpactEdge, error)
	ActiveRegulations(ctx context.Context, tenantID string) ([]Regulation, error)
	RegulationsActiveBefore(ctx context.Context, tenantID string, before time.Time, excludingID string) ([]Regulation, error)

	ReplaceRegulationImpacts(ctx context.Context, regulationID string, impacts []RegulationImpact) error
	UpsertRiskScore(ctx context.Context, score RiskScore) error
	AppendAuditLog(ctx context.Context, entry AuditEntry) error

	CreateSimulationRun(ctx context.Context, run SimulationRun) (SimulationRun, error)
	CompleteSimulationRun(ctx context.Context, id string, deltas []ImpactDelta) error
	FailSimulationRun(ctx context.Context, id string, errMessage string) error
}

// Observer is the fire-and-forget notification sink the core publishes
// to. Delivery failures must never affect a propagation result.
type Observer interface {
	Publish(ctx context.Context, tenantID string, event Event)
}
