package propagation

import (
	"time"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
)

// Config tunes a single propagation run. withDefaults only patches
// MaxDepth (on <= 0) and a negative ImpactThreshold; ImpactThreshold's
// zero value is kept as is. ImpactThreshold's documented default of
// 0.01 and IncludeIndirect's documented default of true are both
// legitimate explicit zero values (an all-inclusive threshold, an
// indirect-impact opt-out) that this type can't tell apart from
// "omitted". A caller that wants those defaults applied to an omitted
// field must disambiguate before building a Config (the HTTP adapter
// does this with *float64/*bool wire fields).
type Config struct {
	MaxDepth        int
	ImpactThreshold float64
	IncludeIndirect bool
}

// DefaultConfig matches the recognized configuration defaults.
func DefaultConfig() Config {
	return Config{MaxDepth: 10, ImpactThreshold: 0.01, IncludeIndirect: true}
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultConfig().MaxDepth
	}
	if c.ImpactThreshold < 0 {
		c.ImpactThreshold = DefaultConfig().ImpactThreshold
	}
	return c
}

// Seed names the node propagation starts from and the impact it
// carries before any edge is traversed.
type Seed struct {
	SourceType    domain.NodeType
	SourceID      string
	InitialImpact float64
}

func (s Seed) withDefaults() Seed {
	if s.InitialImpact == 0 {
		s.InitialImpact = 1.0
	}
	return s
}

// NodeResult is one entry in a Result's node map.
type NodeResult struct {
	ID          string
	Type        domain.NodeType
	DisplayName string
	ImpactScore float64
	Depth       int
	Path        []domain.ImpactEdge
}

// Result is everything one propagate call produces.
type Result struct {
	SourceID      string
	SourceType    domain.NodeType
	TotalAffected int
	MaxDepth      int
	Nodes         map[string]*NodeResult
	Edges         []domain.ImpactEdge
	ExecutionTime time.Duration
	Cancelled     bool
}
