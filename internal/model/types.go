// Package model defines the data types shared by the segmentation analysis
// engine: observed flows, enforced network policies, declared intent rules,
// and the result structures produced by gap analysis and drift detection.
package model

import (
	networkingv1 "k8s.io/api/networking/v1"
)

// Protocol is the L4 protocol of a flow or rule port.
type Protocol string

const (
	// ProtocolTCP represents TCP traffic
	ProtocolTCP Protocol = "TCP"
	// ProtocolUDP represents UDP traffic
	ProtocolUDP Protocol = "UDP"
	// ProtocolSCTP represents SCTP traffic
	ProtocolSCTP Protocol = "SCTP"
)

// Verdict is the observed policy decision for a flow.
type Verdict string

const (
	// VerdictAllow indicates the flow was allowed
	VerdictAllow Verdict = "allow"
	// VerdictDeny indicates the flow was denied
	VerdictDeny Verdict = "deny"
)

// Flow is a single observed network flow between two workloads. Flows are
// created at the ingest boundary and treated as immutable snapshots during
// analysis.
type Flow struct {
	SrcNamespace string            `json:"src_ns"`
	SrcWorkload  string            `json:"src_pod"`
	SrcLabels    map[string]string `json:"src_labels"`
	DstNamespace string            `json:"dst_ns"`
	DstWorkload  string            `json:"dst_pod"`
	DstLabels    map[string]string `json:"dst_labels"`
	Port         int               `json:"port"`
	Protocol     Protocol          `json:"protocol"`
	Verdict      Verdict           `json:"verdict"`
}

// Ref returns a stable human-readable reference for the flow, used in
// reasons, suggestions, and log lines.
func (f Flow) Ref() string {
	return f.SrcNamespace + "/" + f.SrcWorkload + "->" + f.DstNamespace + "/" + f.DstWorkload
}

// Selector identifies a set of workloads by an optional namespace constraint
// plus a label subset match. An empty MatchLabels set is the wildcard: it
// matches every workload within the namespace constraint, or everywhere when
// no namespace is set.
type Selector struct {
	Namespace   string            `json:"namespace,omitempty"`
	MatchLabels map[string]string `json:"match_labels,omitempty"`
}

// IsWildcard reports whether the selector has no label constraints.
func (s Selector) IsWildcard() bool {
	return len(s.MatchLabels) == 0
}

// PortProtocol is a single allowed (port, protocol) pair.
type PortProtocol struct {
	Port     int      `json:"port"`
	Protocol Protocol `json:"protocol"`
}

// IngressRule allows traffic from any of the From selectors on the listed
// ports. An empty Ports list allows all ports.
type IngressRule struct {
	From  []Selector     `json:"from"`
	Ports []PortProtocol `json:"ports,omitempty"`
}

// EgressRule allows traffic to any of the To selectors on the listed ports.
// An empty Ports list allows all ports.
type EgressRule struct {
	To    []Selector     `json:"to"`
	Ports []PortProtocol `json:"ports,omitempty"`
}

// NetworkPolicy is the engine's view of an enforced segmentation policy.
// PodSelector picks the workloads inside Namespace that the policy applies
// to; an empty PodSelector applies to every workload in the namespace.
type NetworkPolicy struct {
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace"`
	PodSelector map[string]string `json:"pod_selector"`
	Ingress     []IngressRule     `json:"ingress,omitempty"`
	Egress      []EgressRule      `json:"egress,omitempty"`
}

// TargetSelector returns the selector identifying the workloads this policy
// applies to.
func (p NetworkPolicy) TargetSelector() Selector {
	return Selector{Namespace: p.Namespace, MatchLabels: p.PodSelector}
}

// IntentRule is a declared security intent: traffic from Source to
// Destination on AllowedPorts should be permitted, and nothing beyond it.
// Intent is independent of enforcement; drift detection compares it against
// the enforced policy set.
type IntentRule struct {
	ID           string         `json:"id"`
	Source       Selector       `json:"src_selector"`
	Destination  Selector       `json:"dst_selector"`
	AllowedPorts []PortProtocol `json:"allowed_ports"`
	Description  string         `json:"description"`
}

// RiskLevel is the categorical severity derived from a risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskAssessment is the scored evaluation of a single flow. Factors lists
// the triggered signal names in evaluation order; Summary is the
// human-readable rendering of the same factors.
type RiskAssessment struct {
	Flow    Flow      `json:"flow"`
	Score   int       `json:"risk_score"`
	Level   RiskLevel `json:"risk_level"`
	Factors []string  `json:"factors"`
	Summary string    `json:"summary"`
}

// UnprotectedFlow is an allowed flow that no enforced policy covers.
type UnprotectedFlow struct {
	Flow   Flow   `json:"flow"`
	Reason string `json:"reason"`
}

// SuggestedPolicy is a synthesized least-privilege policy covering one or
// more unprotected flows that share a destination. Policy is the structured
// body in the Kubernetes NetworkPolicy wire format; YAML is its serialized
// form; Remediates lists the flows the suggestion covers.
type SuggestedPolicy struct {
	Namespace    string                      `json:"namespace"`
	TargetLabels map[string]string           `json:"target_labels"`
	Policy       *networkingv1.NetworkPolicy `json:"policy"`
	YAML         string                      `json:"yaml"`
	Remediates   []string                    `json:"remediates"`
}

// GapsResult is the output of a gap analysis run.
type GapsResult struct {
	RiskyFlows        []RiskAssessment  `json:"risky_flows"`
	UnprotectedFlows  []UnprotectedFlow `json:"unprotected_flows"`
	SuggestedPolicies []SuggestedPolicy `json:"suggested_policies"`
}

// DriftKind classifies a divergence between intent and enforcement.
type DriftKind string

const (
	// DriftMissingPolicy means no enforced policy covers an intent rule
	DriftMissingPolicy DriftKind = "missing_policy"
	// DriftOverPermissive means a policy authorizes traffic no intent implies
	DriftOverPermissive DriftKind = "over_permissive"
)

// DriftItem is a single detected divergence. IntentID is set for
// missing_policy items, PolicyName for over_permissive items.
type DriftItem struct {
	Kind            DriftKind `json:"type"`
	IntentID        string    `json:"intent_id,omitempty"`
	PolicyName      string    `json:"policy_name,omitempty"`
	Namespace       string    `json:"namespace"`
	Description     string    `json:"description"`
	SuggestedAction string    `json:"suggested_action"`
}

// NamespaceSummary aggregates drift state for one namespace.
type NamespaceSummary struct {
	Namespace    string `json:"namespace"`
	IntentCount  int    `json:"intent_count"`
	AlignedCount int    `json:"aligned_count"`
	DriftCount   int    `json:"drift_count"`
}

// DriftResult is the output of a drift detection run.
type DriftResult struct {
	MissingPolicies     []DriftItem        `json:"missing_policies"`
	OverPermissive      []DriftItem        `json:"over_permissive"`
	PerNamespaceSummary []NamespaceSummary `json:"per_namespace_summary"`
}
