package match

import (
	"github.com/kubeseg/analyzer/internal/model"
)

// CoveringPolicy returns the name of the first policy whose ingress rules
// authorize the flow. A flow is covered when a policy's target selector
// matches the destination workload and at least one ingress rule matches the
// source workload and the flow's port/protocol. An empty port list on a rule
// allows all ports.
func CoveringPolicy(f model.Flow, policies []model.NetworkPolicy) (string, bool) {
	for _, p := range policies {
		if !Matches(p.TargetSelector(), f.DstNamespace, f.DstLabels) {
			continue
		}
		for _, rule := range p.Ingress {
			if ingressRuleMatches(rule, f) {
				return p.Name, true
			}
		}
	}
	return "", false
}

// FlowCovered reports whether any policy's ingress authorizes the flow.
func FlowCovered(f model.Flow, policies []model.NetworkPolicy) bool {
	_, ok := CoveringPolicy(f, policies)
	return ok
}

// PolicyInEffect reports whether any policy's target selector matches the
// flow's destination at all. When false the destination runs with no policy
// in effect: the ecosystem default-allows all traffic to it, and such flows
// are reported as unprotected rather than policy-violating.
func PolicyInEffect(f model.Flow, policies []model.NetworkPolicy) bool {
	for _, p := range policies {
		if Matches(p.TargetSelector(), f.DstNamespace, f.DstLabels) {
			return true
		}
	}
	return false
}

// EgressCovered is the egress-side mirror of FlowCovered: some policy
// targets the source workload and one of its egress rules authorizes the
// destination and port. Used when suggestions must also constrain egress.
func EgressCovered(f model.Flow, policies []model.NetworkPolicy) bool {
	for _, p := range policies {
		if !Matches(p.TargetSelector(), f.SrcNamespace, f.SrcLabels) {
			continue
		}
		for _, rule := range p.Egress {
			if egressRuleMatches(rule, f) {
				return true
			}
		}
	}
	return false
}

func ingressRuleMatches(rule model.IngressRule, f model.Flow) bool {
	if !MatchesAny(rule.From, f.SrcNamespace, f.SrcLabels) {
		return false
	}
	return portAllowed(rule.Ports, f.Port, f.Protocol)
}

func egressRuleMatches(rule model.EgressRule, f model.Flow) bool {
	if !MatchesAny(rule.To, f.DstNamespace, f.DstLabels) {
		return false
	}
	return portAllowed(rule.Ports, f.Port, f.Protocol)
}

// portAllowed reports whether the port list permits (port, protocol). An
// empty list permits everything.
func portAllowed(ports []model.PortProtocol, port int, protocol model.Protocol) bool {
	if len(ports) == 0 {
		return true
	}
	for _, pp := range ports {
		if pp.Port == port && pp.Protocol == protocol {
			return true
		}
	}
	return false
}

// PortsSubset reports whether every (port, protocol) pair in want is present
// in have. An empty have list allows all ports and therefore contains any
// want set.
func PortsSubset(want, have []model.PortProtocol) bool {
	if len(have) == 0 {
		return true
	}
	for _, w := range want {
		if !portAllowed(have, w.Port, w.Protocol) {
			return false
		}
	}
	return true
}
