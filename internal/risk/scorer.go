// Package risk assigns deterministic risk scores to observed flows.
// Scoring is additive over independent factors evaluated in a fixed order,
// so the same flow always produces the same score, factor list, and summary.
package risk

import (
	"fmt"
	"strings"

	"github.com/kubeseg/analyzer/internal/model"
)

// Factor names, listed in evaluation order.
const (
	FactorCrossNamespace        = "cross_namespace"
	FactorSensitiveDestination  = "sensitive_destination"
	FactorProductionDestination = "production_destination"
	FactorTrustBoundaryAllow    = "trust_boundary_allow"
	FactorLowTrustSource        = "low_trust_source"
)

// Default factor weights. The exact constants are calibration choices; the
// level thresholds below are what downstream consumers depend on.
const (
	weightCrossNamespace        = 25
	weightSensitiveDestination  = 30
	weightProductionDestination = 20
	weightTrustBoundaryAllow    = 15
	weightLowTrustSource        = 10

	maxScore = 100
)

// Level thresholds: scores below thresholdMedium are low, and so on up.
const (
	thresholdMedium   = 40
	thresholdHigh     = 60
	thresholdCritical = 80
)

// sensitiveRoles are label values on the destination's "role" label that
// mark it as a data-sensitive workload.
var sensitiveRoles = map[string]bool{
	"db":           true,
	"database":     true,
	"secret-store": true,
	"vault":        true,
}

// Trust tiers by namespace naming convention. Unknown namespaces sit in the
// middle tier so that only explicit low-trust sources and production
// destinations create a boundary.
const (
	tierLow  = 1
	tierMid  = 2
	tierProd = 3
)

// Scorer evaluates flows against the factor set. The zero value is not
// usable; construct with NewScorer.
type Scorer struct{}

// NewScorer returns a scorer with the default weights.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score evaluates every factor against the flow in a fixed order and returns
// the assessment. Each factor is applied at most once; the score is the sum
// of triggered weights capped at 100.
func (s *Scorer) Score(f model.Flow) model.RiskAssessment {
	var (
		score   int
		factors []string
		descs   []string
	)
	add := func(name string, weight int, desc string) {
		score += weight
		factors = append(factors, name)
		descs = append(descs, desc)
	}

	if f.SrcNamespace != f.DstNamespace {
		add(FactorCrossNamespace, weightCrossNamespace, "cross-namespace traffic")
	}
	if role, ok := sensitiveRole(f.DstLabels); ok {
		add(FactorSensitiveDestination, weightSensitiveDestination,
			fmt.Sprintf("destination has sensitive role %q", role))
	}
	if isProduction(f.DstNamespace, f.DstLabels) {
		add(FactorProductionDestination, weightProductionDestination,
			"destination in production tier")
	}
	if f.Verdict == model.VerdictAllow && trustTier(f.SrcNamespace, f.SrcLabels) < trustTier(f.DstNamespace, f.DstLabels) {
		add(FactorTrustBoundaryAllow, weightTrustBoundaryAllow,
			"allowed flow crosses a trust boundary")
	}
	if trustTier(f.SrcNamespace, f.SrcLabels) == tierLow {
		add(FactorLowTrustSource, weightLowTrustSource,
			fmt.Sprintf("source namespace %q is low-trust", f.SrcNamespace))
	}

	if score > maxScore {
		score = maxScore
	}

	return model.RiskAssessment{
		Flow:    f,
		Score:   score,
		Level:   LevelFor(score),
		Factors: factors,
		Summary: strings.Join(descs, "; "),
	}
}

// LevelFor maps a score to its categorical level.
func LevelFor(score int) model.RiskLevel {
	switch {
	case score >= thresholdCritical:
		return model.RiskLevelCritical
	case score >= thresholdHigh:
		return model.RiskLevelHigh
	case score >= thresholdMedium:
		return model.RiskLevelMedium
	default:
		return model.RiskLevelLow
	}
}

// Risky reports whether an assessment meets the medium-or-above bar used by
// gap analysis.
func Risky(a model.RiskAssessment) bool {
	return a.Score >= thresholdMedium
}

func sensitiveRole(lbls map[string]string) (string, bool) {
	role, ok := lbls["role"]
	if !ok || !sensitiveRoles[role] {
		return "", false
	}
	return role, true
}

func isProduction(namespace string, lbls map[string]string) bool {
	if namespace == "prod" || namespace == "production" || strings.HasPrefix(namespace, "prod-") {
		return true
	}
	env := lbls["env"]
	return env == "prod" || env == "production"
}

func trustTier(namespace string, lbls map[string]string) int {
	if isProduction(namespace, lbls) {
		return tierProd
	}
	switch {
	case namespace == "dev" || namespace == "development" || strings.HasPrefix(namespace, "dev-"),
		namespace == "test" || namespace == "testing" || strings.HasPrefix(namespace, "test-"),
		namespace == "sandbox":
		return tierLow
	}
	if env := lbls["env"]; env == "dev" || env == "test" {
		return tierLow
	}
	return tierMid
}
