package graph

import (
	"context"
	"testing"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/cache"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
)

type fakeStore struct {
	domain.Store
	edges   []domain.ImpactEdge
	calls   int
	failErr error
}

func (f *fakeStore) ActiveEdges(ctx context.Context, tenantID string) ([]domain.ImpactEdge, error) {
	f.calls++
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.edges, nil
}

func TestBuildBucketsEdgesAndCaches(t *testing.T) {
	store := &fakeStore{edges: []domain.ImpactEdge{
		{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D1", Active: true},
		{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D2", Active: false},
	}}
	c := cache.New()
	defer c.Shutdown()

	b := NewBuilder(store, c)

	g, err := b.Build(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Edges) != 1 {
		t.Fatalf("expected 1 active edge bucketed, got %d", len(g.Edges))
	}
	key := domain.NodeKey(domain.NodeRegulation, "R1")
	if len(g.Outgoing[key]) != 1 {
		t.Fatalf("expected 1 outgoing edge for %s", key)
	}

	// Second call should hit the cache, not the store.
	if _, err := b.Build(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error on cached build: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected store to be called once, got %d", store.calls)
	}
}

func TestBuildPropagatesStoreFailure(t *testing.T) {
	store := &fakeStore{failErr: domain.Upstream("boom", nil)}
	c := cache.New()
	defer c.Shutdown()

	b := NewBuilder(store, c)
	_, err := b.Build(context.Background(), "t1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.KindUpstream) {
		t.Fatalf("expected upstream kind, got %v", err)
	}
}

func TestBuildInvalidationTriggersRebuild(t *testing.T) {
	store := &fakeStore{edges: []domain.ImpactEdge{
		{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D1", Active: true},
	}}
	c := cache.New()
	defer c.Shutdown()
	b := NewBuilder(store, c)

	if _, err := b.Build(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.InvalidateEdge("t1")
	if _, err := b.Build(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("expected rebuild after invalidation, calls=%d", store.calls)
	}
}

func TestBuildInvalidationIsTenantScoped(t *testing.T) {
	storeA := &fakeStore{edges: []domain.ImpactEdge{
		{TenantID: "t1", SourceType: domain.NodeRegulation, SourceID: "R1", TargetType: domain.NodeDepartment, TargetID: "D1", Active: true},
	}}
	storeB := &fakeStore{edges: []domain.ImpactEdge{
		{TenantID: "t2", SourceType: domain.NodeRegulation, SourceID: "R2", TargetType: domain.NodeDepartment, TargetID: "D2", Active: true},
	}}
	c := cache.New()
	defer c.Shutdown()

	// Both tenants share the underlying cache but are built through
	// separate stores here purely to count calls per tenant.
	bA := NewBuilder(storeA, c)
	bB := NewBuilder(storeB, c)

	if _, err := bA.Build(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := bB.Build(context.Background(), "t2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.InvalidateEdge("t1")

	if _, err := bA.Build(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := bB.Build(context.Background(), "t2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if storeA.calls != 2 {
		t.Fatalf("expected tenant t1 to rebuild after its own invalidation, calls=%d", storeA.calls)
	}
	if storeB.calls != 1 {
		t.Fatalf("expected tenant t2's cached graph to survive tenant t1's invalidation, calls=%d", storeB.calls)
	}
}
