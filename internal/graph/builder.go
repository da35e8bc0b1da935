// Package graph builds and caches the per-tenant dependency graph the
// propagation engine traverses.
package graph

import (
	"context"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/cache"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
)

// Graph is the immutable, tenant-scoped view of every active edge,
// bucketed into outgoing and incoming adjacency indexes keyed by node.
type Graph struct {
	Outgoing map[string][]domain.ImpactEdge
	Incoming map[string][]domain.ImpactEdge
	Edges    []domain.ImpactEdge
}

// Builder loads active edges from a Store and caches the resulting
// Graph under a tenant-scoped key.
type Builder struct {
	store domain.Store
	cache *cache.Cache
}

func NewBuilder(store domain.Store, c *cache.Cache) *Builder {
	return &Builder{store: store, cache: c}
}

// Build returns the tenant's dependency graph, serving from cache on
// hit and otherwise fetching, bucketing, and caching it under a
// tenant-scoped dependency-graph tag with the cache's configured graph
// TTL, so invalidating it for one tenant never evicts another tenant's
// cached graph.
func (b *Builder) Build(ctx context.Context, tenantID string) (Graph, error) {
	if v, ok := b.cache.Get(tenantID, cache.DependencyGraphKey()); ok {
		return v.(Graph), nil
	}

	edges, err := b.store.ActiveEdges(ctx, tenantID)
	if err != nil {
		return Graph{}, domain.Upstream("loading active edges", err)
	}

	g := Graph{
		Outgoing: make(map[string][]domain.ImpactEdge),
		Incoming: make(map[string][]domain.ImpactEdge),
		Edges:    make([]domain.ImpactEdge, 0, len(edges)),
	}
	for _, e := range edges {
		if !e.Active {
			continue
		}
		sk, tk := e.SourceKey(), e.TargetKey()
		g.Outgoing[sk] = append(g.Outgoing[sk], e)
		g.Incoming[tk] = append(g.Incoming[tk], e)
		g.Edges = append(g.Edges, e)
	}

	b.cache.Set(tenantID, cache.DependencyGraphKey(), g, cache.SetOptions{
		TTL:  b.cache.DependencyGraphTTL(),
		Tags: []string{cache.DependencyGraphTagFor(tenantID)},
	})
	return g, nil
}
