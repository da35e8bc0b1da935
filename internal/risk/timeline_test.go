package risk

import (
	"context"
	"testing"
	"time"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/cache"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/graph"
)

func TestCompareImpactReturnsSortedDeltas(t *testing.T) {
	before := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	after := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{
		regulations: []domain.Regulation{
			{ID: "R1", TenantID: "t1", Severity: domain.SeverityCritical, EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "R2", TenantID: "t1", Severity: domain.SeverityHigh, EffectiveDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		},
		edges: []domain.ImpactEdge{
			{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D1", ImpactWeight: 1.0, ImpactType: domain.ImpactDirect, Active: true},
			{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R2", TargetType: domain.NodeDepartment, TargetID: "D1", ImpactWeight: 1.0, ImpactType: domain.ImpactDirect, Active: true},
		},
		departments: map[string]domain.Department{},
	}
	c := cache.New()
	defer c.Shutdown()
	builder := graph.NewBuilder(store, c)
	tl := NewTimeline("t1", store, builder)

	var progressed []string
	onProgress := func(regulationID string, index, total int) {
		progressed = append(progressed, regulationID)
	}

	deltas, err := tl.CompareImpact(context.Background(), "R2", before, after, onProgress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deltas) == 0 {
		t.Fatalf("expected at least one delta")
	}
	if len(progressed) != 1 || progressed[0] != "R1" {
		t.Fatalf("expected progress callback once for R1, got %v", progressed)
	}
	for _, d := range deltas {
		if d.NodeID == "D1" {
			return
		}
	}
	t.Fatalf("expected D1 delta present, got %+v", deltas)
}

func TestCompareImpactMissingRegulationNotFound(t *testing.T) {
	store := &memStore{departments: map[string]domain.Department{}}
	c := cache.New()
	defer c.Shutdown()
	builder := graph.NewBuilder(store, c)
	tl := NewTimeline("t1", store, builder)

	_, err := tl.CompareImpact(context.Background(), "missing", time.Now(), time.Now(), nil)
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
