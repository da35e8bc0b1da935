package propagation

import (
	"context"
	"math"
	"testing"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/cache"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/graph"
)

type stubStore struct {
	domain.Store
	edges []domain.ImpactEdge
}

func (s stubStore) ActiveEdges(ctx context.Context, tenantID string) ([]domain.ImpactEdge, error) {
	return s.edges, nil
}

func (s stubStore) ActiveEntitiesByType(ctx context.Context, tenantID string, nodeType domain.NodeType) ([]domain.NamedEntity, error) {
	return nil, nil
}

func newEngine(t *testing.T, edges []domain.ImpactEdge, cfg Config) *Engine {
	t.Helper()
	store := stubStore{edges: edges}
	c := cache.New()
	t.Cleanup(c.Shutdown)
	builder := graph.NewBuilder(store, c)
	return NewEngine("t1", cfg, builder, store)
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTrivialIsolation(t *testing.T) {
	e := newEngine(t, nil, DefaultConfig())
	res, err := e.Propagate(context.Background(), Seed{SourceType: domain.NodeRegulation, SourceID: "R1", InitialImpact: 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalAffected != 0 {
		t.Fatalf("expected totalAffected=0, got %d", res.TotalAffected)
	}
	src := res.Nodes[domain.NodeKey(domain.NodeRegulation, "R1")]
	if src == nil || src.Depth != 0 || src.ImpactScore != 1.0 {
		t.Fatalf("expected source node at depth 0 score 1.0, got %+v", src)
	}
	if len(res.Edges) != 0 {
		t.Fatalf("expected no edges")
	}
}

func TestDirectTwoHop(t *testing.T) {
	edges := []domain.ImpactEdge{
		{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D1", ImpactWeight: 0.5, ImpactType: domain.ImpactDirect, Active: true},
		{TenantID: "t1", SourceType: domain.NodeDepartment, SourceID: "D1", TargetType: domain.NodeBudget, TargetID: "B1", ImpactWeight: 0.8, ImpactType: domain.ImpactDirect, Active: true},
	}
	e := newEngine(t, edges, DefaultConfig())
	res, err := e.Propagate(context.Background(), Seed{SourceType: domain.NodeRegulation, SourceID: "R1", InitialImpact: 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d1 := res.Nodes[domain.NodeKey(domain.NodeDepartment, "D1")]
	if d1 == nil || !almostEqual(d1.ImpactScore, 0.5) || d1.Depth != 1 {
		t.Fatalf("expected D1 score 0.5 depth 1, got %+v", d1)
	}
	b1 := res.Nodes[domain.NodeKey(domain.NodeBudget, "B1")]
	if b1 == nil || !almostEqual(b1.ImpactScore, 0.36) || b1.Depth != 2 {
		t.Fatalf("expected B1 score 0.36 depth 2, got %+v", b1)
	}
	if res.TotalAffected != 2 {
		t.Fatalf("expected totalAffected=2, got %d", res.TotalAffected)
	}
}

func TestThresholdCutoff(t *testing.T) {
	edges := []domain.ImpactEdge{
		{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D1", ImpactWeight: 0.5, ImpactType: domain.ImpactDirect, Active: true},
		{TenantID: "t1", SourceType: domain.NodeDepartment, SourceID: "D1", TargetType: domain.NodeBudget, TargetID: "B1", ImpactWeight: 0.8, ImpactType: domain.ImpactDirect, Active: true},
	}
	cfg := DefaultConfig()
	cfg.ImpactThreshold = 0.4
	e := newEngine(t, edges, cfg)
	res, err := e.Propagate(context.Background(), Seed{SourceType: domain.NodeRegulation, SourceID: "R1", InitialImpact: 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalAffected != 1 {
		t.Fatalf("expected totalAffected=1, got %d", res.TotalAffected)
	}
	if _, ok := res.Nodes[domain.NodeKey(domain.NodeBudget, "B1")]; ok {
		t.Fatalf("expected B1 excluded by threshold")
	}
}

func TestCycleSafety(t *testing.T) {
	edges := []domain.ImpactEdge{
		{TenantID: "t1", SourceType: domain.NodeDepartment, SourceID: "A", TargetType: domain.NodeDepartment, TargetID: "B", ImpactWeight: 0.9, ImpactType: domain.ImpactDirect, Active: true},
		{TenantID: "t1", SourceType: domain.NodeDepartment, SourceID: "B", TargetType: domain.NodeDepartment, TargetID: "A", ImpactWeight: 0.9, ImpactType: domain.ImpactDirect, Active: true},
	}
	e := newEngine(t, edges, DefaultConfig())
	res, err := e.Propagate(context.Background(), Seed{SourceType: domain.NodeDepartment, SourceID: "A", InitialImpact: 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Nodes) != 2 {
		t.Fatalf("expected exactly 2 nodes, got %d", len(res.Nodes))
	}
	seen := make(map[string]int)
	for _, e := range res.Edges {
		seen[e.SourceKey()+"->"+e.TargetKey()]++
	}
	for k, count := range seen {
		if count != 1 {
			t.Fatalf("edge %s visited %d times, expected at most once", k, count)
		}
	}
}

func TestIndirectSuppression(t *testing.T) {
	edges := []domain.ImpactEdge{
		{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeService, TargetID: "S1", ImpactWeight: 0.8, ImpactType: domain.ImpactDirect, Active: true},
		{TenantID: "t1", SourceType: domain.NodeService, SourceID: "S1", TargetType: domain.NodeService, TargetID: "S2", ImpactWeight: 0.8, ImpactType: domain.ImpactIndirect, Active: true},
	}
	cfgOn := DefaultConfig()
	cfgOn.IncludeIndirect = true
	eOn := newEngine(t, edges, cfgOn)
	resOn, _ := eOn.Propagate(context.Background(), Seed{SourceType: domain.NodeRegulation, SourceID: "R1", InitialImpact: 1.0})
	if _, ok := resOn.Nodes[domain.NodeKey(domain.NodeService, "S2")]; !ok {
		t.Fatalf("expected S2 included when includeIndirect=true")
	}

	cfgOff := DefaultConfig()
	cfgOff.IncludeIndirect = false
	eOff := newEngine(t, edges, cfgOff)
	resOff, _ := eOff.Propagate(context.Background(), Seed{SourceType: domain.NodeRegulation, SourceID: "R1", InitialImpact: 1.0})
	if _, ok := resOff.Nodes[domain.NodeKey(domain.NodeService, "S2")]; ok {
		t.Fatalf("expected S2 excluded when includeIndirect=false")
	}
}

func TestConditionEvaluationRequiredShortCircuits(t *testing.T) {
	if evaluateCondition(map[string]any{"required": false, "threshold": 10.0}) {
		t.Fatalf("expected required=false to fail regardless of threshold")
	}
	if !evaluateCondition(map[string]any{"required": true, "threshold": 0.0}) {
		t.Fatalf("expected required=true to pass regardless of threshold")
	}
	if !evaluateCondition(map[string]any{"threshold": 1.0}) {
		t.Fatalf("expected positive threshold to pass")
	}
	if evaluateCondition(map[string]any{"threshold": 0.0}) {
		t.Fatalf("expected zero threshold to fail")
	}
	if !evaluateCondition(nil) {
		t.Fatalf("expected nil condition to pass")
	}
}

func TestNameResolutionFallsBackToID(t *testing.T) {
	edges := []domain.ImpactEdge{
		{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D1", ImpactWeight: 0.5, ImpactType: domain.ImpactDirect, Active: true},
	}
	e := newEngine(t, edges, DefaultConfig())
	res, _ := e.Propagate(context.Background(), Seed{SourceType: domain.NodeRegulation, SourceID: "R1", InitialImpact: 1.0})
	d1 := res.Nodes[domain.NodeKey(domain.NodeDepartment, "D1")]
	if d1.DisplayName != "D1" {
		t.Fatalf("expected fallback display name D1, got %s", d1.DisplayName)
	}
}

func TestPropagateRespectsCancellation(t *testing.T) {
	edges := []domain.ImpactEdge{
		{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D1", ImpactWeight: 0.5, ImpactType: domain.ImpactDirect, Active: true},
	}
	e := newEngine(t, edges, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Propagate(ctx, Seed{SourceType: domain.NodeRegulation, SourceID: "R1", InitialImpact: 1.0})
	if !domain.IsKind(err, domain.KindCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if !res.Cancelled {
		t.Fatalf("expected result.Cancelled=true")
	}
}
