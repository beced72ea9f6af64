package gaps

import (
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/yaml"

	"github.com/kubeseg/analyzer/internal/model"
)

// namespaceNameLabel is the well-known label carrying a namespace's name,
// used to scope cross-namespace ingress sources.
const namespaceNameLabel = "kubernetes.io/metadata.name"

// ruleKey identifies one ingress grant: an exact source (namespace plus
// label fingerprint) and one port/protocol pair. Suggestions are de-duplicated
// and ordered by this key.
type ruleKey struct {
	srcNamespace string
	srcLabels    string
	port         int
	protocol     model.Protocol
}

// destGroup accumulates the unprotected flows sharing one destination
// selector.
type destGroup struct {
	namespace  string
	labels     map[string]string
	rules      map[ruleKey]map[string]string
	remediates []string
	seen       map[string]bool
}

// suggestPolicies merges unprotected flows into least-privilege policy
// suggestions: one suggestion per distinct destination (namespace, label
// set), with ingress rules de-duplicated by (source selector, port,
// protocol). Output ordering is independent of input ordering.
func suggestPolicies(unprotected []model.UnprotectedFlow) []model.SuggestedPolicy {
	groups := make(map[string]*destGroup)

	for _, uf := range unprotected {
		f := uf.Flow
		key := f.DstNamespace + "|" + labelFingerprint(f.DstLabels)
		g, ok := groups[key]
		if !ok {
			g = &destGroup{
				namespace: f.DstNamespace,
				labels:    f.DstLabels,
				rules:     make(map[ruleKey]map[string]string),
				seen:      make(map[string]bool),
			}
			groups[key] = g
		}

		rk := ruleKey{
			srcNamespace: f.SrcNamespace,
			srcLabels:    labelFingerprint(f.SrcLabels),
			port:         f.Port,
			protocol:     f.Protocol,
		}
		if _, dup := g.rules[rk]; !dup {
			g.rules[rk] = f.SrcLabels
		}

		ref := fmt.Sprintf("%s:%d/%s", f.Ref(), f.Port, f.Protocol)
		if !g.seen[ref] {
			g.seen[ref] = true
			g.remediates = append(g.remediates, ref)
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	suggestions := make([]model.SuggestedPolicy, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		policy := buildPolicy(g)
		out, err := yaml.Marshal(policy)
		if err != nil {
			// Marshaling a fully-constructed NetworkPolicy cannot fail; keep
			// the structured body either way.
			out = nil
		}
		sort.Strings(g.remediates)
		suggestions = append(suggestions, model.SuggestedPolicy{
			Namespace:    g.namespace,
			TargetLabels: g.labels,
			Policy:       policy,
			YAML:         string(out),
			Remediates:   g.remediates,
		})
	}
	return suggestions
}

// buildPolicy renders a destination group as a Kubernetes NetworkPolicy. The
// target selector is the exact destination label set; each ingress rule
// grants exactly one observed source on its observed ports.
func buildPolicy(g *destGroup) *networkingv1.NetworkPolicy {
	keys := make([]ruleKey, 0, len(g.rules))
	for rk := range g.rules {
		keys = append(keys, rk)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].srcNamespace != keys[j].srcNamespace {
			return keys[i].srcNamespace < keys[j].srcNamespace
		}
		if keys[i].srcLabels != keys[j].srcLabels {
			return keys[i].srcLabels < keys[j].srcLabels
		}
		if keys[i].port != keys[j].port {
			return keys[i].port < keys[j].port
		}
		return keys[i].protocol < keys[j].protocol
	})

	// Consecutive keys with the same source collapse into one rule holding
	// the union of their ports.
	var (
		ingress []networkingv1.NetworkPolicyIngressRule
		prev    *ruleKey
	)
	for _, rk := range keys {
		rk := rk
		proto := corev1.Protocol(rk.protocol)
		port := intstr.FromInt32(int32(rk.port))
		npPort := networkingv1.NetworkPolicyPort{Protocol: &proto, Port: &port}

		if prev != nil && prev.srcNamespace == rk.srcNamespace && prev.srcLabels == rk.srcLabels {
			ingress[len(ingress)-1].Ports = append(ingress[len(ingress)-1].Ports, npPort)
			prev = &rk
			continue
		}

		peer := networkingv1.NetworkPolicyPeer{
			PodSelector: &metav1.LabelSelector{MatchLabels: g.rules[rk]},
		}
		if rk.srcNamespace != g.namespace {
			peer.NamespaceSelector = &metav1.LabelSelector{
				MatchLabels: map[string]string{namespaceNameLabel: rk.srcNamespace},
			}
		}
		ingress = append(ingress, networkingv1.NetworkPolicyIngressRule{
			From:  []networkingv1.NetworkPolicyPeer{peer},
			Ports: []networkingv1.NetworkPolicyPort{npPort},
		})
		prev = &rk
	}

	return &networkingv1.NetworkPolicy{
		TypeMeta: metav1.TypeMeta{
			APIVersion: networkingv1.SchemeGroupVersion.String(),
			Kind:       "NetworkPolicy",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      policyName(g.namespace, g.labels),
			Namespace: g.namespace,
		},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{MatchLabels: g.labels},
			PolicyTypes: []networkingv1.PolicyType{networkingv1.PolicyTypeIngress},
			Ingress:     ingress,
		},
	}
}

// policyName derives a readable suggestion name from the destination.
func policyName(namespace string, lbls map[string]string) string {
	target := lbls["app"]
	if target == "" {
		target = lbls["role"]
	}
	if target == "" {
		target = "workloads"
	}
	return "protect-" + namespace + "-" + target
}

// labelFingerprint renders a label set as a stable sorted string, used as a
// grouping and de-duplication key.
func labelFingerprint(lbls map[string]string) string {
	if len(lbls) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbls))
	for k := range lbls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+lbls[k])
	}
	return strings.Join(parts, ",")
}
