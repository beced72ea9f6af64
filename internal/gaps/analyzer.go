// Package gaps implements segmentation gap analysis: classifying observed
// flows as risky or unprotected and synthesizing least-privilege policy
// suggestions for the unprotected ones.
package gaps

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/kubeseg/analyzer/internal/match"
	"github.com/kubeseg/analyzer/internal/model"
	"github.com/kubeseg/analyzer/internal/risk"
)

// Analyzer runs gap analysis over an immutable snapshot of flows and
// policies. It holds no mutable state between calls; concurrent Analyze
// calls are safe.
type Analyzer struct {
	scorer *risk.Scorer
	log    logr.Logger
}

// AnalyzerConfig contains configuration for the analyzer.
type AnalyzerConfig struct {
	// Logger for logging
	Logger logr.Logger
}

// NewAnalyzer creates a new gap analyzer.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	return &Analyzer{
		scorer: risk.NewScorer(),
		log:    cfg.Logger.WithName("gap-analyzer"),
	}
}

// Analyze classifies every allow-verdict flow and synthesizes suggestions.
// Deny-verdict flows are already enforced and are skipped. The result slices
// are non-nil even when empty, so an empty input set serializes to empty
// collections rather than an error.
func (a *Analyzer) Analyze(flows []model.Flow, policies []model.NetworkPolicy) model.GapsResult {
	result := model.GapsResult{
		RiskyFlows:        []model.RiskAssessment{},
		UnprotectedFlows:  []model.UnprotectedFlow{},
		SuggestedPolicies: []model.SuggestedPolicy{},
	}

	for _, f := range flows {
		if f.Verdict != model.VerdictAllow {
			continue
		}

		assessment := a.scorer.Score(f)
		if risk.Risky(assessment) {
			result.RiskyFlows = append(result.RiskyFlows, assessment)
		}

		if !match.FlowCovered(f, policies) {
			result.UnprotectedFlows = append(result.UnprotectedFlows, model.UnprotectedFlow{
				Flow:   f,
				Reason: unprotectedReason(f, policies),
			})
		}
	}

	result.SuggestedPolicies = suggestPolicies(result.UnprotectedFlows)

	a.log.V(1).Info("Gap analysis complete",
		"flows", len(flows),
		"policies", len(policies),
		"risky", len(result.RiskyFlows),
		"unprotected", len(result.UnprotectedFlows),
		"suggestions", len(result.SuggestedPolicies),
	)

	return result
}

// unprotectedReason names the missing coverage. A destination with no policy
// in effect at all is called out separately from one whose policies simply
// have no matching rule.
func unprotectedReason(f model.Flow, policies []model.NetworkPolicy) string {
	if !match.PolicyInEffect(f, policies) {
		return fmt.Sprintf(
			"No policy in effect for workload '%s/%s'; traffic from '%s/%s' on %s:%d is implicitly allowed",
			f.DstNamespace, f.DstWorkload, f.SrcNamespace, f.SrcWorkload, f.Protocol, f.Port,
		)
	}
	return fmt.Sprintf(
		"No policy in namespace '%s' protects destination pod '%s' from source '%s/%s' on %s:%d",
		f.DstNamespace, f.DstWorkload, f.SrcNamespace, f.SrcWorkload, f.Protocol, f.Port,
	)
}
