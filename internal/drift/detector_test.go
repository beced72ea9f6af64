package drift

import (
	"strings"
	"testing"

	"github.com/go-logr/logr"

	"github.com/kubeseg/analyzer/internal/model"
)

func newTestDetector() *Detector {
	return NewDetector(DetectorConfig{Logger: logr.Discard()})
}

func frontendToDBIntent() model.IntentRule {
	return model.IntentRule{
		ID:           "allow-frontend-to-db",
		Source:       model.Selector{MatchLabels: map[string]string{"app": "frontend"}},
		Destination:  model.Selector{Namespace: "prod", MatchLabels: map[string]string{"app": "db"}},
		AllowedPorts: []model.PortProtocol{{Port: 5432, Protocol: model.ProtocolTCP}},
		Description:  "Frontend may query the primary database",
	}
}

func dbPolicy() model.NetworkPolicy {
	return model.NetworkPolicy{
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
}

func TestDetector_Detect_AlignedIntent(t *testing.T) {
	intents := []model.IntentRule{frontendToDBIntent()}
	policies := []model.NetworkPolicy{dbPolicy()}

	result := newTestDetector().Detect(intents, policies)

	if len(result.MissingPolicies) != 0 {
		t.Errorf("expected no missing policies, got %v", result.MissingPolicies)
	}
	if len(result.OverPermissive) != 0 {
		t.Errorf("expected no over-permissive items, got %v", result.OverPermissive)
	}
	if len(result.PerNamespaceSummary) != 1 {
		t.Fatalf("expected 1 namespace summary, got %d", len(result.PerNamespaceSummary))
	}
	s := result.PerNamespaceSummary[0]
	if s.Namespace != "prod" || s.IntentCount != 1 || s.AlignedCount != 1 || s.DriftCount != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestDetector_Detect_MissingPolicy(t *testing.T) {
	intents := []model.IntentRule{frontendToDBIntent()}

	result := newTestDetector().Detect(intents, nil)

	if len(result.MissingPolicies) != 1 {
		t.Fatalf("expected 1 missing policy, got %d", len(result.MissingPolicies))
	}
	item := result.MissingPolicies[0]
	if item.Kind != model.DriftMissingPolicy {
		t.Errorf("expected kind missing_policy, got %s", item.Kind)
	}
	if item.IntentID != "allow-frontend-to-db" {
		t.Errorf("expected intent id, got %q", item.IntentID)
	}
	if item.Namespace != "prod" {
		t.Errorf("expected namespace prod, got %q", item.Namespace)
	}
	if !strings.Contains(item.SuggestedAction, "5432/TCP") {
		t.Errorf("expected suggested action to name the ports, got %q", item.SuggestedAction)
	}

	s := result.PerNamespaceSummary[0]
	if s.AlignedCount != 0 || s.DriftCount != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestDetector_Detect_PortMismatchIsMissing(t *testing.T) {
	intents := []model.IntentRule{frontendToDBIntent()}
	policy := dbPolicy()
	policy.Ingress[0].Ports = []model.PortProtocol{{Port: 6379, Protocol: model.ProtocolTCP}}

	result := newTestDetector().Detect(intents, []model.NetworkPolicy{policy})

	if len(result.MissingPolicies) != 1 {
		t.Errorf("expected port mismatch to leave the intent uncovered, got %v", result.MissingPolicies)
	}
}

func TestDetector_Detect_EmptyRulePortsCoverIntent(t *testing.T) {
	intents := []model.IntentRule{frontendToDBIntent()}
	policy := dbPolicy()
	policy.Ingress[0].Ports = nil

	result := newTestDetector().Detect(intents, []model.NetworkPolicy{policy})

	if len(result.MissingPolicies) != 0 {
		t.Errorf("expected all-ports rule to cover the intent, got %v", result.MissingPolicies)
	}
}

func TestDetector_Detect_WildcardSourceAlwaysOverPermissive(t *testing.T) {
	// Even when an intent targets the same destination, a wildcard source
	// selector is flagged.
	intents := []model.IntentRule{frontendToDBIntent()}
	policy := model.NetworkPolicy{
		Name:        "db-allow-all",
		Namespace:   "prod",
		PodSelector: map[string]string{"app": "db"},
		Ingress: []model.IngressRule{
			{From: []model.Selector{{}}},
		},
	}

	result := newTestDetector().Detect(intents, []model.NetworkPolicy{policy})

	if len(result.OverPermissive) != 1 {
		t.Fatalf("expected 1 over-permissive item, got %d", len(result.OverPermissive))
	}
	item := result.OverPermissive[0]
	if item.Kind != model.DriftOverPermissive {
		t.Errorf("expected kind over_permissive, got %s", item.Kind)
	}
	if item.PolicyName != "db-allow-all" {
		t.Errorf("expected policy name, got %q", item.PolicyName)
	}
	if !strings.Contains(item.Description, "wildcard source selector") {
		t.Errorf("expected wildcard description, got %q", item.Description)
	}
}

func TestDetector_Detect_EmptyFromIsWildcard(t *testing.T) {
	policy := model.NetworkPolicy{
		Name:        "db-open",
		Namespace:   "prod",
		PodSelector: map[string]string{"app": "db"},
		Ingress:     []model.IngressRule{{}},
	}

	result := newTestDetector().Detect(nil, []model.NetworkPolicy{policy})

	if len(result.OverPermissive) != 1 {
		t.Errorf("expected empty From to be flagged as wildcard, got %v", result.OverPermissive)
	}
}

func TestDetector_Detect_GrantBeyondIntent(t *testing.T) {
	intents := []model.IntentRule{frontendToDBIntent()}
	policy := dbPolicy()
	policy.Ingress = append(policy.Ingress, model.IngressRule{
		From:  []model.Selector{{MatchLabels: map[string]string{"app": "batch"}}},
		Ports: []model.PortProtocol{{Port: 5432, Protocol: model.ProtocolTCP}},
	})

	result := newTestDetector().Detect(intents, []model.NetworkPolicy{policy})

	if len(result.OverPermissive) != 1 {
		t.Fatalf("expected 1 over-permissive item, got %d", len(result.OverPermissive))
	}
	if !strings.Contains(result.OverPermissive[0].Description, "app=batch") {
		t.Errorf("expected description to name the grant, got %q", result.OverPermissive[0].Description)
	}
}

func TestDetector_Detect_PortsBeyondIntentFlagged(t *testing.T) {
	intents := []model.IntentRule{frontendToDBIntent()}
	policy := dbPolicy()
	policy.Ingress[0].Ports = append(policy.Ingress[0].Ports,
		model.PortProtocol{Port: 22, Protocol: model.ProtocolTCP})

	result := newTestDetector().Detect(intents, []model.NetworkPolicy{policy})

	if len(result.OverPermissive) != 1 {
		t.Errorf("expected rule with extra port to be flagged, got %v", result.OverPermissive)
	}
	// The rule no longer exactly matches the intent's port set, but it still
	// contains it, so the intent itself is not missing.
	if len(result.MissingPolicies) != 0 {
		t.Errorf("expected intent still covered, got %v", result.MissingPolicies)
	}
}

func TestDetector_Detect_SummaryIncludesPolicyOnlyNamespaces(t *testing.T) {
	policy := dbPolicy()
	policy.Namespace = "staging"
	policy.Ingress[0].From = []model.Selector{{MatchLabels: map[string]string{"app": "frontend"}}}

	result := newTestDetector().Detect([]model.IntentRule{frontendToDBIntent()}, []model.NetworkPolicy{policy})

	got := make(map[string]model.NamespaceSummary)
	for _, s := range result.PerNamespaceSummary {
		got[s.Namespace] = s
	}
	if _, ok := got["staging"]; !ok {
		t.Error("expected staging in summary from its policy")
	}
	if s := got["prod"]; s.IntentCount != 1 {
		t.Errorf("expected prod intent count 1, got %+v", s)
	}
}

func TestDetector_Detect_EmptyInputs(t *testing.T) {
	result := newTestDetector().Detect(nil, nil)
	if result.MissingPolicies == nil || result.OverPermissive == nil || result.PerNamespaceSummary == nil {
		t.Error("expected non-nil empty slices")
	}
}
