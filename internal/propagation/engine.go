// Package propagation implements the breadth-first, weighted-impact
// traversal of a tenant's dependency graph.
package propagation

import (
	"context"
	"time"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/graph"
)

var allNodeTypes = []domain.NodeType{
	domain.NodeRegulation,
	domain.NodeDepartment,
	domain.NodeBudget,
	domain.NodeService,
	domain.NodeKPI,
}

// Engine runs one propagation per construction. It owns no state
// across runs; every Propagate call gets its own visited set, node
// map, and edge list, so concurrent runs never share mutable state.
type Engine struct {
	tenantID string
	config   Config
	builder  *graph.Builder
	store    domain.Store
}

func NewEngine(tenantID string, config Config, builder *graph.Builder, store domain.Store) *Engine {
	return &Engine{tenantID: tenantID, config: config.withDefaults(), builder: builder, store: store}
}

type frontierItem struct {
	key    string
	impact float64
	depth  int
}

// Propagate runs the breadth-first expansion described by the
// algorithm: load the cached graph, seed the source node, then expand
// frontier nodes edge by edge, applying threshold/depth cutoffs, edge
// type rules, and cycle-safe visited tracking.
func (e *Engine) Propagate(ctx context.Context, seed Seed) (Result, error) {
	start := time.Now()
	seed = seed.withDefaults()

	g, err := e.builder.Build(ctx, e.tenantID)
	if err != nil {
		return Result{}, err
	}

	names := e.prefetchNames(ctx)

	sourceKey := domain.NodeKey(seed.SourceType, seed.SourceID)
	nodes := make(map[string]*NodeResult)
	nodes[sourceKey] = &NodeResult{
		ID:          seed.SourceID,
		Type:        seed.SourceType,
		DisplayName: resolveName(names, sourceKey, seed.SourceID),
		ImpactScore: seed.InitialImpact,
		Depth:       0,
	}

	visitedEdges := make(map[string]struct{})
	edges := make([]domain.ImpactEdge, 0)
	frontier := []frontierItem{{key: sourceKey, impact: seed.InitialImpact, depth: 0}}

	cancelled := false

outer:
	for len(frontier) > 0 {
		item := frontier[0]
		frontier = frontier[1:]

		for _, edge := range g.Outgoing[item.key] {
			select {
			case <-ctx.Done():
				cancelled = true
				break outer
			default:
			}

			if !edge.Active {
				continue
			}
			if edge.ImpactType == domain.ImpactIndirect && !e.config.IncludeIndirect {
				continue
			}
			if edge.ImpactType == domain.ImpactConditional && !evaluateCondition(edge.Condition) {
				continue
			}

			next := item.impact * edge.ImpactWeight * typeMultiplier[edge.ImpactType] * severityWeight[edge.TargetType]
			if next < e.config.ImpactThreshold {
				continue
			}

			newDepth := item.depth + 1
			if newDepth > e.config.MaxDepth {
				continue
			}

			visitKey := edge.SourceKey() + "->" + edge.TargetKey()
			if _, seen := visitedEdges[visitKey]; seen {
				continue
			}
			visitedEdges[visitKey] = struct{}{}

			edges = append(edges, edge)

			targetKey := edge.TargetKey()
			if existing, ok := nodes[targetKey]; ok {
				if next > existing.ImpactScore {
					existing.ImpactScore = next
				}
				existing.Path = append(existing.Path, edge)
			} else {
				nodes[targetKey] = &NodeResult{
					ID:          edge.TargetID,
					Type:        edge.TargetType,
					DisplayName: resolveName(names, targetKey, edge.TargetID),
					ImpactScore: next,
					Depth:       newDepth,
					Path:        []domain.ImpactEdge{edge},
				}
			}

			if newDepth < e.config.MaxDepth {
				frontier = append(frontier, frontierItem{key: targetKey, impact: next, depth: newDepth})
			}
		}
	}

	maxDepthObserved := 0
	for _, n := range nodes {
		if n.Depth > maxDepthObserved {
			maxDepthObserved = n.Depth
		}
	}

	result := Result{
		SourceID:      seed.SourceID,
		SourceType:    seed.SourceType,
		TotalAffected: len(nodes) - 1,
		MaxDepth:      maxDepthObserved,
		Nodes:         nodes,
		Edges:         edges,
		ExecutionTime: time.Since(start),
		Cancelled:     cancelled,
	}

	if cancelled {
		return result, domain.Cancelled("propagation cancelled")
	}
	return result, nil
}

// prefetchNames loads every active entity of every node type once, so
// display-name resolution never issues a store call per discovered
// node.
func (e *Engine) prefetchNames(ctx context.Context) map[string]string {
	names := make(map[string]string)
	for _, t := range allNodeTypes {
		entities, err := e.store.ActiveEntitiesByType(ctx, e.tenantID, t)
		if err != nil {
			continue
		}
		for _, ent := range entities {
			names[domain.NodeKey(ent.Type, ent.ID)] = ent.Name
		}
	}
	return names
}

func resolveName(names map[string]string, key, fallbackID string) string {
	if name, ok := names[key]; ok && name != "" {
		return name
	}
	return fallbackID
}
