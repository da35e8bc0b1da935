package risk

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/cache"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/graph"
)

type memStore struct {
	domain.Store
	regulations     []domain.Regulation
	edges           []domain.ImpactEdge
	departments     map[string]domain.Department
	replacedImpacts map[string][]domain.RegulationImpact
	// mu guards replacedImpacts: CalculateAllRisks calls
	// ReplaceRegulationImpacts from concurrent goroutines.
	mu sync.Mutex
}

func (m *memStore) ReplaceRegulationImpacts(ctx context.Context, regulationID string, impacts []domain.RegulationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replacedImpacts == nil {
		m.replacedImpacts = make(map[string][]domain.RegulationImpact)
	}
	m.replacedImpacts[regulationID] = impacts
	return nil
}

func (m *memStore) ActiveRegulations(ctx context.Context, tenantID string) ([]domain.Regulation, error) {
	return m.regulations, nil
}

func (m *memStore) ActiveEdges(ctx context.Context, tenantID string) ([]domain.ImpactEdge, error) {
	return m.edges, nil
}

func (m *memStore) ActiveEntitiesByType(ctx context.Context, tenantID string, nodeType domain.NodeType) ([]domain.NamedEntity, error) {
	return nil, nil
}

func (m *memStore) FindDepartment(ctx context.Context, tenantID, id string) (domain.Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return domain.Department{}, domain.NotFound("department not found")
	}
	return d, nil
}

func (m *memStore) RegulationsActiveBefore(ctx context.Context, tenantID string, before time.Time, excludingID string) ([]domain.Regulation, error) {
	out := make([]domain.Regulation, 0)
	for _, r := range m.regulations {
		if r.ID == excludingID {
			continue
		}
		if r.EffectiveDate.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) FindRegulation(ctx context.Context, tenantID, id string) (domain.Regulation, error) {
	for _, r := range m.regulations {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Regulation{}, domain.NotFound("regulation not found")
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCalculateAllRisksScenario(t *testing.T) {
	store := &memStore{
		regulations: []domain.Regulation{
			{ID: "R1", TenantID: "t1", Severity: domain.SeverityCritical, EffectiveDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "R2", TenantID: "t1", Severity: domain.SeverityMedium, EffectiveDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		},
		edges: []domain.ImpactEdge{
			{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D1", ImpactWeight: 1.0, ImpactType: domain.ImpactDirect, Active: true},
			{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R2", TargetType: domain.NodeDepartment, TargetID: "D1", ImpactWeight: 1.0, ImpactType: domain.ImpactDirect, Active: true},
		},
		departments: map[string]domain.Department{
			"D1": {ID: "D1", TenantID: "t1", Code: "D1", Name: "Finance"},
		},
	}
	c := cache.New()
	defer c.Shutdown()
	builder := graph.NewBuilder(store, c)

	agg := NewAggregator("t1", store, builder, 0)
	results, err := agg.CalculateAllRisks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var d1 *CalculationResult
	for i := range results {
		if results[i].EntityType == domain.NodeDepartment && results[i].EntityID == "D1" {
			d1 = &results[i]
		}
	}
	if d1 == nil {
		t.Fatalf("expected D1 in results")
	}
	if !almostEqual(d1.AdjustedRiskScore, 2.5) {
		t.Fatalf("expected adjustedRisk 2.5, got %v", d1.AdjustedRiskScore)
	}
	if !almostEqual(d1.BaseRiskScore, 1.25) {
		t.Fatalf("expected baseRisk 1.25, got %v", d1.BaseRiskScore)
	}
	if d1.RiskLevel != domain.RiskCritical {
		t.Fatalf("expected riskLevel Critical, got %v", d1.RiskLevel)
	}

	for _, reg := range store.regulations {
		impacts, ok := store.replacedImpacts[reg.ID]
		if !ok {
			t.Fatalf("expected regulation impacts to be persisted for %s", reg.ID)
		}
		found := false
		for _, imp := range impacts {
			if imp.NodeType == domain.NodeDepartment && imp.NodeID == "D1" {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected D1 impact row for regulation %s, got %+v", reg.ID, impacts)
		}
	}
}

func TestGetDepartmentRiskRankingEnriches(t *testing.T) {
	store := &memStore{
		regulations: []domain.Regulation{
			{ID: "R1", TenantID: "t1", Severity: domain.SeverityHigh, EffectiveDate: time.Now()},
		},
		edges: []domain.ImpactEdge{
			{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D1", ImpactWeight: 1.0, ImpactType: domain.ImpactDirect, Active: true},
		},
		departments: map[string]domain.Department{
			"D1": {ID: "D1", TenantID: "t1", Code: "FIN", Name: "Finance"},
		},
	}
	c := cache.New()
	defer c.Shutdown()
	builder := graph.NewBuilder(store, c)
	agg := NewAggregator("t1", store, builder, 0)

	ranking, err := agg.GetDepartmentRiskRanking(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranking) != 1 || ranking[0].Code != "FIN" {
		t.Fatalf("expected enriched D1 ranking, got %+v", ranking)
	}
}
