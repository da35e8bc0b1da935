// Package risk aggregates per-regulation propagation results into
// per-entity risk scores, department rankings, and timeline deltas.
package risk

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/graph"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/propagation"
)

var severityMultiplier = map[domain.Severity]float64{
	domain.SeverityCritical: 2.0,
	domain.SeverityHigh:     1.5,
	domain.SeverityMedium:   1.0,
	domain.SeverityLow:      0.5,
}

func multiplierFor(s domain.Severity) float64 {
	if m, ok := severityMultiplier[s]; ok {
		return m
	}
	return 1.0
}

// CalculationResult is one aggregated row: an entity's exposure across
// every active regulation.
type CalculationResult struct {
	EntityType        domain.NodeType
	EntityID          string
	BaseRiskScore     float64
	AdjustedRiskScore float64
	RiskLevel         domain.RiskLevel
	RiskFactors       map[string]float64
}

// DepartmentRanking enriches a CalculationResult with the department's
// name and code.
type DepartmentRanking struct {
	CalculationResult
	Name string
	Code string
}

// Aggregator runs one propagation per active regulation and combines
// the results into per-entity risk scores.
type Aggregator struct {
	tenantID    string
	store       domain.Store
	builder     *graph.Builder
	concurrency int
}

// NewAggregator builds an Aggregator whose per-regulation propagation
// fan-out is bounded by concurrency. concurrency <= 0 picks the
// automatic default of min(8, NumCPU()).
func NewAggregator(tenantID string, store domain.Store, builder *graph.Builder, concurrency int) *Aggregator {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
		if concurrency > 8 {
			concurrency = 8
		}
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Aggregator{tenantID: tenantID, store: store, builder: builder, concurrency: concurrency}
}

type regulationRun struct {
	regulation domain.Regulation
	result     propagation.Result
}

// regulationImpactsFrom converts one propagation run's reachable nodes
// into the derived rows ReplaceRegulationImpacts persists, so every
// recalculation leaves a fresh, queryable impact record behind it
// instead of only the aggregated risk score.
func regulationImpactsFrom(tenantID, regulationID string, result propagation.Result) []domain.RegulationImpact {
	out := make([]domain.RegulationImpact, 0, len(result.Nodes))
	for _, node := range result.Nodes {
		path := make([]string, 0, len(node.Path))
		for _, edge := range node.Path {
			path = append(path, edge.ID)
		}
		out = append(out, domain.RegulationImpact{
			RegulationID: regulationID,
			TenantID:     tenantID,
			NodeType:     node.Type,
			NodeID:       node.ID,
			ImpactScore:  node.ImpactScore,
			ImpactLevel:  propagation.ImpactToRiskLevel(node.ImpactScore),
			Path:         path,
		})
	}
	return out
}

// CalculateAllRisks implements calculateAllRisks: one fresh
// propagation per active regulation at depth cap 10, seeded by
// severity, then aggregated per node with totalRisk += nodeScore *
// severityMultiplier[regSeverity].
func (a *Aggregator) CalculateAllRisks(ctx context.Context) ([]CalculationResult, error) {
	regulations, err := a.store.ActiveRegulations(ctx, a.tenantID)
	if err != nil {
		return nil, domain.Upstream("loading active regulations", err)
	}
	if len(regulations) == 0 {
		return nil, nil
	}

	runs := make([]regulationRun, len(regulations))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(a.concurrency)

	for i, reg := range regulations {
		i, reg := i, reg
		group.Go(func() error {
			engine := propagation.NewEngine(a.tenantID, propagation.Config{MaxDepth: 10, ImpactThreshold: 0.01, IncludeIndirect: true}, a.builder, a.store)
			seed := propagation.Seed{
				SourceType:    domain.NodeRegulation,
				SourceID:      reg.ID,
				InitialImpact: propagation.SeverityToInitialImpact(reg.Severity),
			}
			result, err := engine.Propagate(gctx, seed)
			if err != nil {
				return err
			}
			if err := a.store.ReplaceRegulationImpacts(gctx, reg.ID, regulationImpactsFrom(a.tenantID, reg.ID, result)); err != nil {
				return domain.Upstream("persisting regulation impacts", err)
			}
			runs[i] = regulationRun{regulation: reg, result: result}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	totalRisk := make(map[string]float64)
	factors := make(map[string]map[string]float64)
	entityRef := make(map[string]struct {
		Type domain.NodeType
		ID   string
	})

	for _, run := range runs {
		mult := multiplierFor(run.regulation.Severity)
		for key, node := range run.result.Nodes {
			contribution := node.ImpactScore * mult
			totalRisk[key] += contribution
			if factors[key] == nil {
				factors[key] = make(map[string]float64)
			}
			factors[key][run.regulation.ID] += contribution
			entityRef[key] = struct {
				Type domain.NodeType
				ID   string
			}{Type: node.Type, ID: node.ID}
		}
	}

	regulationsCount := float64(len(regulations))
	out := make([]CalculationResult, 0, len(totalRisk))
	for key, total := range totalRisk {
		ref := entityRef[key]
		base := total / regulationsCount
		out = append(out, CalculationResult{
			EntityType:        ref.Type,
			EntityID:          ref.ID,
			BaseRiskScore:     base,
			AdjustedRiskScore: total,
			RiskLevel:         propagation.ImpactToRiskLevel(base),
			RiskFactors:       factors[key],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AdjustedRiskScore > out[j].AdjustedRiskScore
	})
	return out, nil
}

// GetDepartmentRiskRanking filters CalculateAllRisks to DEPARTMENT
// nodes, enriches each with its name and code, and returns it sorted
// descending by adjusted risk score.
func (a *Aggregator) GetDepartmentRiskRanking(ctx context.Context) ([]DepartmentRanking, error) {
	all, err := a.CalculateAllRisks(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]DepartmentRanking, 0)
	for _, r := range all {
		if r.EntityType != domain.NodeDepartment {
			continue
		}
		dept, err := a.store.FindDepartment(ctx, a.tenantID, r.EntityID)
		if err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				continue
			}
			return nil, domain.Upstream("loading department for ranking", err)
		}
		out = append(out, DepartmentRanking{CalculationResult: r, Name: dept.DisplayName(), Code: dept.Code})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AdjustedRiskScore > out[j].AdjustedRiskScore
	})
	return out, nil
}
