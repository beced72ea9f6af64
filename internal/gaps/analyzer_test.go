package gaps

import (
	"strings"
	"testing"

	"github.com/go-logr/logr"

	"github.com/kubeseg/analyzer/internal/model"
)

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(AnalyzerConfig{Logger: logr.Discard()})
}

func TestAnalyzer_Analyze_CoveredFlowIsNotUnprotected(t *testing.T) {
	flow := model.Flow{
		SrcNamespace: "prod",
		SrcWorkload:  "frontend-1",
		SrcLabels:    map[string]string{"app": "frontend"},
		DstNamespace: "prod",
		DstWorkload:  "db-1",
		DstLabels:    map[string]string{"app": "db"},
		Port:         5432,
		Protocol:     model.ProtocolTCP,
		Verdict:      model.VerdictAllow,
	}
	policy := model.NetworkPolicy{
		Name:        "db-allow-frontend",
		Namespace:   "prod",
		PodSelector: map[string]string{"app": "db"},
		Ingress: []model.IngressRule{
			{
				From:  []model.Selector{{MatchLabels: map[string]string{"app": "frontend"}}},
				Ports: []model.PortProtocol{{Port: 5432, Protocol: model.ProtocolTCP}},
			},
		},
	}

	result := newTestAnalyzer().Analyze([]model.Flow{flow}, []model.NetworkPolicy{policy})

	if len(result.UnprotectedFlows) != 0 {
		t.Errorf("expected no unprotected flows, got %d", len(result.UnprotectedFlows))
	}
	if len(result.SuggestedPolicies) != 0 {
		t.Errorf("expected no suggestions, got %d", len(result.SuggestedPolicies))
	}
}

func TestAnalyzer_Analyze_UnprotectedAndRisky(t *testing.T) {
	flow := model.Flow{
		SrcNamespace: "dev",
		SrcWorkload:  "svc-a-7d9f",
		SrcLabels:    map[string]string{"app": "svc-a"},
		DstNamespace: "prod",
		DstWorkload:  "db-1",
		DstLabels:    map[string]string{"app": "postgres", "role": "db"},
		Port:         5432,
		Protocol:     model.ProtocolTCP,
		Verdict:      model.VerdictAllow,
	}

	result := newTestAnalyzer().Analyze([]model.Flow{flow}, nil)

	if len(result.RiskyFlows) != 1 {
		t.Fatalf("expected 1 risky flow, got %d", len(result.RiskyFlows))
	}
	if result.RiskyFlows[0].Level != model.RiskLevelCritical {
		t.Errorf("expected critical level, got %s", result.RiskyFlows[0].Level)
	}

	if len(result.UnprotectedFlows) != 1 {
		t.Fatalf("expected 1 unprotected flow, got %d", len(result.UnprotectedFlows))
	}
	reason := result.UnprotectedFlows[0].Reason
	if !strings.Contains(reason, "No policy in effect") {
		t.Errorf("expected no-policy-in-effect reason, got %q", reason)
	}

	if len(result.SuggestedPolicies) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(result.SuggestedPolicies))
	}
	sp := result.SuggestedPolicies[0]
	if sp.Namespace != "prod" {
		t.Errorf("expected suggestion in prod, got %s", sp.Namespace)
	}
	if sp.Policy == nil || len(sp.Policy.Spec.Ingress) != 1 {
		t.Fatalf("expected policy with one ingress rule, got %+v", sp.Policy)
	}
	// Cross-namespace source needs a namespace selector.
	peer := sp.Policy.Spec.Ingress[0].From[0]
	if peer.NamespaceSelector == nil {
		t.Fatal("expected namespace selector for cross-namespace source")
	}
	if got := peer.NamespaceSelector.MatchLabels["kubernetes.io/metadata.name"]; got != "dev" {
		t.Errorf("expected namespace selector for dev, got %q", got)
	}
}

func TestAnalyzer_Analyze_DenyFlowsSkipped(t *testing.T) {
	flow := model.Flow{
		SrcNamespace: "dev",
		SrcWorkload:  "svc-a",
		DstNamespace: "prod",
		DstWorkload:  "db-1",
		DstLabels:    map[string]string{"role": "db"},
		Port:         5432,
		Protocol:     model.ProtocolTCP,
		Verdict:      model.VerdictDeny,
	}

	result := newTestAnalyzer().Analyze([]model.Flow{flow}, nil)

	if len(result.RiskyFlows) != 0 || len(result.UnprotectedFlows) != 0 {
		t.Errorf("expected denied flow to be skipped, got %d risky, %d unprotected",
			len(result.RiskyFlows), len(result.UnprotectedFlows))
	}
}

func TestAnalyzer_Analyze_PolicyInEffectButNotCovering(t *testing.T) {
	flow := model.Flow{
		SrcNamespace: "prod",
		SrcWorkload:  "batch-1",
		SrcLabels:    map[string]string{"app": "batch"},
		DstNamespace: "prod",
		DstWorkload:  "db-1",
		DstLabels:    map[string]string{"app": "db"},
		Port:         5432,
		Protocol:     model.ProtocolTCP,
		Verdict:      model.VerdictAllow,
	}
	policy := model.NetworkPolicy{
		Name:        "db-allow-frontend",
		Namespace:   "prod",
		PodSelector: map[string]string{"app": "db"},
		Ingress: []model.IngressRule{
			{From: []model.Selector{{MatchLabels: map[string]string{"app": "frontend"}}}},
		},
	}

	result := newTestAnalyzer().Analyze([]model.Flow{flow}, []model.NetworkPolicy{policy})

	if len(result.UnprotectedFlows) != 1 {
		t.Fatalf("expected 1 unprotected flow, got %d", len(result.UnprotectedFlows))
	}
	reason := result.UnprotectedFlows[0].Reason
	if !strings.Contains(reason, "No policy in namespace 'prod'") {
		t.Errorf("expected rule-gap reason, got %q", reason)
	}
}

func TestAnalyzer_Analyze_EmptyInputs(t *testing.T) {
	result := newTestAnalyzer().Analyze(nil, nil)
	if result.RiskyFlows == nil || result.UnprotectedFlows == nil || result.SuggestedPolicies == nil {
		t.Error("expected non-nil empty slices")
	}
}
