package ingest

import (
	"encoding/json"
	"strconv"
	"strings"

	ciliumv2 "github.com/cilium/cilium/pkg/k8s/apis/cilium.io/v2"
	"github.com/cilium/cilium/pkg/policy/api"

	"github.com/kubeseg/analyzer/internal/model"
)

// ciliumNamespaceKey is the label Cilium uses to pin a selector to a
// namespace, after source prefixes are stripped.
const ciliumNamespaceKey = "io.kubernetes.pod.namespace"

// fromCiliumDocument converts a CiliumNetworkPolicy (or clusterwide variant)
// into the engine's policy model. Only endpoint selectors and L4 ports are
// carried over; CIDR, entity, FQDN, and L7 constructs have no counterpart in
// the engine and are dropped. When a policy carries multiple rule specs the
// first spec's endpoint selector becomes the target selector.
func fromCiliumDocument(doc json.RawMessage) (model.NetworkPolicy, error) {
	var cnp ciliumv2.CiliumNetworkPolicy
	if err := json.Unmarshal(doc, &cnp); err != nil {
		return model.NetworkPolicy{}, err
	}

	var rules api.Rules
	if cnp.Spec != nil {
		rules = append(rules, cnp.Spec)
	}
	rules = append(rules, cnp.Specs...)

	p := model.NetworkPolicy{
		Name:      cnp.Name,
		Namespace: cnp.Namespace,
	}

	for _, r := range rules {
		if p.PodSelector == nil {
			p.PodSelector = ciliumSelector(r.EndpointSelector).MatchLabels
		}
		for _, ing := range r.Ingress {
			rule := model.IngressRule{Ports: convertCiliumPorts(ing.ToPorts)}
			for _, es := range ing.FromEndpoints {
				rule.From = append(rule.From, ciliumSelector(es))
			}
			p.Ingress = append(p.Ingress, rule)
		}
		for _, eg := range r.Egress {
			rule := model.EgressRule{Ports: convertCiliumPorts(eg.ToPorts)}
			for _, es := range eg.ToEndpoints {
				rule.To = append(rule.To, ciliumSelector(es))
			}
			p.Egress = append(p.Egress, rule)
		}
	}

	return p, nil
}

// ciliumSelector converts an endpoint selector, stripping Cilium label
// source prefixes and hoisting the namespace label into the namespace
// constraint.
func ciliumSelector(es api.EndpointSelector) model.Selector {
	if es.LabelSelector == nil {
		return model.Selector{}
	}
	sel := model.Selector{}
	for k, v := range es.MatchLabels {
		key := stripLabelSource(k)
		if key == ciliumNamespaceKey {
			sel.Namespace = v
			continue
		}
		if sel.MatchLabels == nil {
			sel.MatchLabels = make(map[string]string)
		}
		sel.MatchLabels[key] = v
	}
	return sel
}

// stripLabelSource removes Cilium label source prefixes (any, k8s) in both
// the colon and extended dot forms.
func stripLabelSource(key string) string {
	for _, prefix := range []string{"any.", "k8s.", "any:", "k8s:"} {
		if strings.HasPrefix(key, prefix) {
			return strings.TrimPrefix(key, prefix)
		}
	}
	return key
}

// convertCiliumPorts flattens Cilium port rules into (port, protocol) pairs.
// Named ports are skipped; protocol ANY expands to TCP and UDP.
func convertCiliumPorts(prs api.PortRules) []model.PortProtocol {
	var out []model.PortProtocol
	for _, pr := range prs {
		for _, pp := range pr.Ports {
			port, err := strconv.Atoi(pp.Port)
			if err != nil {
				continue
			}
			switch pp.Protocol {
			case api.ProtoAny, "":
				out = append(out,
					model.PortProtocol{Port: port, Protocol: model.ProtocolTCP},
					model.PortProtocol{Port: port, Protocol: model.ProtocolUDP},
				)
			default:
				out = append(out, model.PortProtocol{
					Port:     port,
					Protocol: model.Protocol(strings.ToUpper(string(pp.Protocol))),
				})
			}
		}
	}
	return out
}
