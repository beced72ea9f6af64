package ingest

import (
	"encoding/json"
	"fmt"

	networkingv1 "k8s.io/api/networking/v1"
	"sigs.k8s.io/yaml"

	"github.com/kubeseg/analyzer/internal/model"
)

// wireSelector is a bare match_labels selector as it appears in policy
// documents.
type wireSelector struct {
	MatchLabels map[string]string `json:"match_labels"`
}

type wirePort struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
}

type wireIngressRule struct {
	FromPodSelectors []wireSelector `json:"from_pod_selectors"`
	FromNSSelectors  []wireSelector `json:"from_ns_selectors"`
	Ports            []wirePort     `json:"ports"`
}

type wireEgressRule struct {
	ToPodSelectors []wireSelector `json:"to_pod_selectors"`
	ToNSSelectors  []wireSelector `json:"to_ns_selectors"`
	Ports          []wirePort     `json:"ports"`
}

// wirePolicy is the flat policy document shape used by the mock data and
// exports. Kind is probed to detect Kubernetes or Cilium documents mixed
// into the same list.
type wirePolicy struct {
	Kind        string            `json:"kind"`
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace"`
	PodSelector map[string]string `json:"pod_selector"`
	Ingress     []wireIngressRule `json:"ingress"`
	Egress      []wireEgressRule  `json:"egress"`
}

// LoadPolicies reads a YAML list of policy documents. Each item may be a
// flat wire policy, a networking.k8s.io/v1 NetworkPolicy, or a
// CiliumNetworkPolicy; the three forms can be mixed in one file.
func (l *Loader) LoadPolicies(path string) ([]model.NetworkPolicy, []error, error) {
	data, err := readOptional(path)
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		return []model.NetworkPolicy{}, nil, nil
	}

	var raw []json.RawMessage
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	policies := make([]model.NetworkPolicy, 0, len(raw))
	var recordErrs []error
	for i, doc := range raw {
		p, err := parsePolicyDocument(doc)
		if err != nil {
			recordErrs = append(recordErrs, fmt.Errorf("policies[%d]: %w", i, err))
			continue
		}
		if err := p.Validate(); err != nil {
			recordErrs = append(recordErrs, fmt.Errorf("policies[%d]: %w", i, err))
			continue
		}
		policies = append(policies, p)
	}
	return policies, recordErrs, nil
}

func parsePolicyDocument(doc json.RawMessage) (model.NetworkPolicy, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil {
		return model.NetworkPolicy{}, err
	}

	switch probe.Kind {
	case "NetworkPolicy":
		var np networkingv1.NetworkPolicy
		if err := json.Unmarshal(doc, &np); err != nil {
			return model.NetworkPolicy{}, err
		}
		return fromKubernetesPolicy(&np), nil
	case "CiliumNetworkPolicy", "CiliumClusterwideNetworkPolicy":
		return fromCiliumDocument(doc)
	case "":
		var w wirePolicy
		if err := json.Unmarshal(doc, &w); err != nil {
			return model.NetworkPolicy{}, err
		}
		return fromWirePolicy(w), nil
	default:
		return model.NetworkPolicy{}, fmt.Errorf("unsupported policy kind %q", probe.Kind)
	}
}

func fromWirePolicy(w wirePolicy) model.NetworkPolicy {
	p := model.NetworkPolicy{
		Name:        w.Name,
		Namespace:   w.Namespace,
		PodSelector: w.PodSelector,
	}
	for _, r := range w.Ingress {
		rule := model.IngressRule{
			From:  append(podSelectors(r.FromPodSelectors), namespaceSelectors(r.FromNSSelectors)...),
			Ports: convertWirePorts(r.Ports),
		}
		p.Ingress = append(p.Ingress, rule)
	}
	for _, r := range w.Egress {
		rule := model.EgressRule{
			To:    append(podSelectors(r.ToPodSelectors), namespaceSelectors(r.ToNSSelectors)...),
			Ports: convertWirePorts(r.Ports),
		}
		p.Egress = append(p.Egress, rule)
	}
	return p
}

func podSelectors(sels []wireSelector) []model.Selector {
	out := make([]model.Selector, 0, len(sels))
	for _, s := range sels {
		out = append(out, model.Selector{MatchLabels: s.MatchLabels})
	}
	return out
}

// namespaceSelectors converts namespace selectors into namespace-constrained
// selectors. The namespace name is carried either under the conventional
// "name" key or the kubernetes.io/metadata.name label.
func namespaceSelectors(sels []wireSelector) []model.Selector {
	out := make([]model.Selector, 0, len(sels))
	for _, s := range sels {
		name := s.MatchLabels["name"]
		if name == "" {
			name = s.MatchLabels["kubernetes.io/metadata.name"]
		}
		out = append(out, model.Selector{Namespace: name})
	}
	return out
}

func convertWirePorts(ports []wirePort) []model.PortProtocol {
	out := make([]model.PortProtocol, 0, len(ports))
	for _, p := range ports {
		proto := model.Protocol(p.Protocol)
		if proto == "" {
			proto = model.ProtocolTCP
		}
		out = append(out, model.PortProtocol{Port: p.Port, Protocol: proto})
	}
	return out
}

// fromKubernetesPolicy converts a networking.k8s.io/v1 NetworkPolicy. Only
// matchLabels selectors are honored; matchExpressions have no counterpart in
// the engine's selector model and are ignored.
func fromKubernetesPolicy(np *networkingv1.NetworkPolicy) model.NetworkPolicy {
	p := model.NetworkPolicy{
		Name:        np.Name,
		Namespace:   np.Namespace,
		PodSelector: np.Spec.PodSelector.MatchLabels,
	}
	for _, r := range np.Spec.Ingress {
		rule := model.IngressRule{Ports: convertKubernetesPorts(r.Ports)}
		for _, peer := range r.From {
			rule.From = append(rule.From, convertPeer(peer))
		}
		p.Ingress = append(p.Ingress, rule)
	}
	for _, r := range np.Spec.Egress {
		rule := model.EgressRule{Ports: convertKubernetesPorts(r.Ports)}
		for _, peer := range r.To {
			rule.To = append(rule.To, convertPeer(peer))
		}
		p.Egress = append(p.Egress, rule)
	}
	return p
}

func convertPeer(peer networkingv1.NetworkPolicyPeer) model.Selector {
	sel := model.Selector{}
	if peer.PodSelector != nil {
		sel.MatchLabels = peer.PodSelector.MatchLabels
	}
	if peer.NamespaceSelector != nil {
		name := peer.NamespaceSelector.MatchLabels["kubernetes.io/metadata.name"]
		if name == "" {
			name = peer.NamespaceSelector.MatchLabels["name"]
		}
		sel.Namespace = name
	}
	return sel
}

func convertKubernetesPorts(ports []networkingv1.NetworkPolicyPort) []model.PortProtocol {
	out := make([]model.PortProtocol, 0, len(ports))
	for _, p := range ports {
		pp := model.PortProtocol{Protocol: model.ProtocolTCP}
		if p.Protocol != nil {
			pp.Protocol = model.Protocol(*p.Protocol)
		}
		if p.Port != nil {
			pp.Port = p.Port.IntValue()
		}
		out = append(out, pp)
	}
	return out
}
