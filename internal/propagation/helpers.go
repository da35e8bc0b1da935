package propagation

import "github.com/YASSERRMD/regulatory-impact-chain/internal/domain"

var typeMultiplier = map[domain.ImpactType]float64{
	domain.ImpactDirect:      1.0,
	domain.ImpactIndirect:    0.6,
	domain.ImpactConditional: 0.3,
}

var severityWeight = map[domain.NodeType]float64{
	domain.NodeRegulation: 1.2,
	domain.NodeDepartment: 1.0,
	domain.NodeBudget:     0.9,
	domain.NodeService:    0.8,
	domain.NodeKPI:        0.7,
}

// SeverityToInitialImpact maps a regulation's severity to the initial
// impact a risk-aggregation seed uses.
func SeverityToInitialImpact(s domain.Severity) float64 {
	switch s {
	case domain.SeverityCritical:
		return 1.0
	case domain.SeverityHigh:
		return 0.8
	case domain.SeverityMedium:
		return 0.5
	case domain.SeverityLow:
		return 0.3
	default:
		return 0.5
	}
}

// ImpactToRiskLevel buckets a score into a categorical risk level.
func ImpactToRiskLevel(score float64) domain.RiskLevel {
	switch {
	case score >= 0.9:
		return domain.RiskCritical
	case score >= 0.7:
		return domain.RiskHigh
	case score >= 0.5:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// evaluateCondition implements the short-circuit rule: required (if
// present) decides the outcome; otherwise threshold (if present)
// decides; otherwise the edge passes unconditionally.
func evaluateCondition(condition map[string]any) bool {
	if condition == nil {
		return true
	}
	if v, ok := condition["required"]; ok {
		b, _ := v.(bool)
		return b
	}
	if v, ok := condition["threshold"]; ok {
		return toFloat(v) > 0
	}
	return true
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
