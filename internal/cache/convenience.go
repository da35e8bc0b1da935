package cache

import "fmt"

// InvalidateRegulation unions the tag set a regulation mutation must
// sweep: the regulation's own tag, the dependency graph, every cached
// risk score, and any cached impact analysis. Every tag is scoped to
// tenant so this never touches another tenant's cached entries.
func (c *Cache) InvalidateRegulation(tenant, regulationID string) int {
	return c.InvalidateByTags([]string{
		ScopedTag(tenant, fmt.Sprintf("regulation:%s", regulationID)),
		DependencyGraphTagFor(tenant),
		ScopedTag(tenant, "risk-scores"),
		ScopedTag(tenant, "impact-analysis"),
	})
}

// InvalidateEntity unions the tag set an entity mutation must sweep.
func (c *Cache) InvalidateEntity(tenant string, nodeType, id string) int {
	return c.InvalidateByTags([]string{
		ScopedTag(tenant, fmt.Sprintf("entity:%s:%s", nodeType, id)),
		DependencyGraphTagFor(tenant),
		ScopedTag(tenant, "risk-scores"),
	})
}

// InvalidateEdge invalidates the dependency graph; any edge mutation
// must be followed by a graph rebuild on the next propagation.
func (c *Cache) InvalidateEdge(tenant string) int {
	return c.InvalidateByTag(DependencyGraphTagFor(tenant))
}
