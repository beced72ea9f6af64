package gaps

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kubeseg/analyzer/internal/model"
)

func unprotected(srcNS, srcPod string, srcLabels map[string]string, dstNS, dstPod string, dstLabels map[string]string, port int) model.UnprotectedFlow {
	return model.UnprotectedFlow{
		Flow: model.Flow{
			SrcNamespace: srcNS,
			SrcWorkload:  srcPod,
			SrcLabels:    srcLabels,
			DstNamespace: dstNS,
			DstWorkload:  dstPod,
			DstLabels:    dstLabels,
			Port:         port,
			Protocol:     model.ProtocolTCP,
			Verdict:      model.VerdictAllow,
		},
	}
}

func TestSuggestPolicies_MergesByDestination(t *testing.T) {
	dbLabels := map[string]string{"app": "db"}
	flows := []model.UnprotectedFlow{
		unprotected("prod", "frontend-1", map[string]string{"app": "frontend"}, "prod", "db-1", dbLabels, 5432),
		unprotected("prod", "reporting-1", map[string]string{"app": "reporting"}, "prod", "db-1", dbLabels, 5432),
	}

	suggestions := suggestPolicies(flows)

	if len(suggestions) != 1 {
		t.Fatalf("expected 1 merged suggestion, got %d", len(suggestions))
	}
	sp := suggestions[0]
	if len(sp.Policy.Spec.Ingress) != 2 {
		t.Fatalf("expected 2 ingress rules (one per source), got %d", len(sp.Policy.Spec.Ingress))
	}
	if len(sp.Remediates) != 2 {
		t.Errorf("expected 2 remediated flows, got %v", sp.Remediates)
	}
	if sp.Policy.Name != "protect-prod-db" {
		t.Errorf("expected name protect-prod-db, got %s", sp.Policy.Name)
	}
}

func TestSuggestPolicies_SameSourcePortsCollapse(t *testing.T) {
	apiLabels := map[string]string{"app": "api"}
	srcLabels := map[string]string{"app": "frontend"}
	flows := []model.UnprotectedFlow{
		unprotected("prod", "frontend-1", srcLabels, "prod", "api-1", apiLabels, 8080),
		unprotected("prod", "frontend-2", srcLabels, "prod", "api-2", apiLabels, 9090),
	}

	suggestions := suggestPolicies(flows)

	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	ingress := suggestions[0].Policy.Spec.Ingress
	if len(ingress) != 1 {
		t.Fatalf("expected one rule with both ports, got %d rules", len(ingress))
	}
	if len(ingress[0].Ports) != 2 {
		t.Errorf("expected 2 ports in the rule, got %d", len(ingress[0].Ports))
	}
	if ingress[0].Ports[0].Port.IntValue() != 8080 || ingress[0].Ports[1].Port.IntValue() != 9090 {
		t.Errorf("expected ports [8080 9090], got %v", ingress[0].Ports)
	}
}

func TestSuggestPolicies_DistinctDestinationsSplit(t *testing.T) {
	flows := []model.UnprotectedFlow{
		unprotected("prod", "cron-1", map[string]string{"app": "cron"}, "prod", "db-1", map[string]string{"app": "db"}, 5432),
		unprotected("prod", "cron-1", map[string]string{"app": "cron"}, "prod", "cache-1", map[string]string{"app": "cache"}, 6379),
	}

	suggestions := suggestPolicies(flows)

	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}
	// Output is sorted by destination group key.
	if suggestions[0].Policy.Name != "protect-prod-cache" || suggestions[1].Policy.Name != "protect-prod-db" {
		t.Errorf("unexpected suggestion order: %s, %s", suggestions[0].Policy.Name, suggestions[1].Policy.Name)
	}
}

func TestSuggestPolicies_DeterministicAcrossInputOrder(t *testing.T) {
	flows := []model.UnprotectedFlow{
		unprotected("dev", "a-1", map[string]string{"app": "a"}, "prod", "db-1", map[string]string{"app": "db"}, 5432),
		unprotected("staging", "b-1", map[string]string{"app": "b"}, "prod", "db-1", map[string]string{"app": "db"}, 5432),
		unprotected("dev", "a-1", map[string]string{"app": "a"}, "prod", "cache-1", map[string]string{"app": "cache"}, 6379),
	}
	reversed := []model.UnprotectedFlow{flows[2], flows[1], flows[0]}

	first := suggestPolicies(flows)
	second := suggestPolicies(reversed)

	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical suggestions regardless of input order")
	}
	for i := range first {
		if first[i].YAML != second[i].YAML {
			t.Errorf("suggestion %d YAML differs across input orderings", i)
		}
	}
}

func TestSuggestPolicies_YAMLRendering(t *testing.T) {
	flows := []model.UnprotectedFlow{
		unprotected("prod", "frontend-1", map[string]string{"app": "frontend"}, "prod", "db-1", map[string]string{"app": "db"}, 5432),
	}

	suggestions := suggestPolicies(flows)
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	y := suggestions[0].YAML
	for _, want := range []string{
		"apiVersion: networking.k8s.io/v1",
		"kind: NetworkPolicy",
		"name: protect-prod-db",
		"namespace: prod",
		"app: frontend",
		"port: 5432",
	} {
		if !strings.Contains(y, want) {
			t.Errorf("expected YAML to contain %q:\n%s", want, y)
		}
	}
}

func TestPolicyName(t *testing.T) {
	tests := []struct {
		labels map[string]string
		want   string
	}{
		{map[string]string{"app": "db"}, "protect-prod-db"},
		{map[string]string{"role": "vault"}, "protect-prod-vault"},
		{nil, "protect-prod-workloads"},
	}
	for _, tt := range tests {
		if got := policyName("prod", tt.labels); got != tt.want {
			t.Errorf("policyName(prod, %v): expected %s, got %s", tt.labels, tt.want, got)
		}
	}
}

func TestLabelFingerprint(t *testing.T) {
	a := labelFingerprint(map[string]string{"b": "2", "a": "1"})
	if a != "a=1,b=2" {
		t.Errorf("expected sorted fingerprint, got %q", a)
	}
	if labelFingerprint(nil) != "" {
		t.Error("expected empty fingerprint for nil labels")
	}
}
