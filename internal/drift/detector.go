// Package drift compares declared intent rules against the enforced policy
// set and reports divergence: intents with no covering policy, and policies
// that authorize traffic no intent implies.
package drift

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/kubeseg/analyzer/internal/match"
	"github.com/kubeseg/analyzer/internal/model"
)

// Detector runs drift detection over an immutable snapshot of intents and
// policies. Concurrent Detect calls are safe.
type Detector struct {
	log logr.Logger
}

// DetectorConfig contains configuration for the detector.
type DetectorConfig struct {
	// Logger for logging
	Logger logr.Logger
}

// NewDetector creates a new drift detector.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{log: cfg.Logger.WithName("drift-detector")}
}

// Detect runs both drift passes and folds them into the per-namespace
// summary. Result slices are non-nil even when empty.
func (d *Detector) Detect(intents []model.IntentRule, policies []model.NetworkPolicy) model.DriftResult {
	missing := d.findMissing(intents, policies)
	overPermissive := d.findOverPermissive(intents, policies)

	result := model.DriftResult{
		MissingPolicies:     missing,
		OverPermissive:      overPermissive,
		PerNamespaceSummary: summarize(intents, policies, missing, overPermissive),
	}

	d.log.V(1).Info("Drift detection complete",
		"intents", len(intents),
		"policies", len(policies),
		"missing", len(missing),
		"overPermissive", len(overPermissive),
	)

	return result
}

// findMissing reports every intent rule for which no enforced policy covers
// the declared traffic.
func (d *Detector) findMissing(intents []model.IntentRule, policies []model.NetworkPolicy) []model.DriftItem {
	missing := []model.DriftItem{}

	for _, intent := range intents {
		covered := false
		for _, p := range policies {
			if intentCoveredByPolicy(intent, p) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		missing = append(missing, model.DriftItem{
			Kind:        model.DriftMissingPolicy,
			IntentID:    intent.ID,
			Namespace:   intent.Destination.Namespace,
			Description: intent.Description,
			SuggestedAction: fmt.Sprintf(
				"Create a policy allowing %s -> %s on ports %s",
				selectorString(intent.Source), selectorString(intent.Destination), portsString(intent.AllowedPorts),
			),
		})
	}

	return missing
}

// intentCoveredByPolicy reports whether one policy fully covers an intent:
// the policy's target selector covers the intent destination, some ingress
// rule's source selector covers the intent source, and the intent's ports
// are a subset of the rule's (an empty rule port list covers all ports).
func intentCoveredByPolicy(intent model.IntentRule, p model.NetworkPolicy) bool {
	if intent.Destination.Namespace != "" && p.Namespace != intent.Destination.Namespace {
		return false
	}
	if !match.Covers(model.Selector{MatchLabels: p.PodSelector}, intent.Destination) {
		return false
	}

	for _, rule := range p.Ingress {
		if !sourceCovered(rule.From, intent.Source) {
			continue
		}
		if match.PortsSubset(intent.AllowedPorts, rule.Ports) {
			return true
		}
	}
	return false
}

// sourceCovered reports whether any of the rule's source selectors covers
// the intent source. An empty From list is the wildcard.
func sourceCovered(from []model.Selector, source model.Selector) bool {
	if len(from) == 0 {
		return true
	}
	for _, sel := range from {
		if match.Covers(sel, source) {
			return true
		}
	}
	return false
}

// findOverPermissive flags ingress grants that exceed declared intent.
// Wildcard source selectors are always flagged: an empty-label selector is a
// red signal regardless of any intent targeting the destination. A
// non-wildcard grant is flagged when no intent targeting the same
// destination implies its (selector, port) combination.
func (d *Detector) findOverPermissive(intents []model.IntentRule, policies []model.NetworkPolicy) []model.DriftItem {
	items := []model.DriftItem{}

	for _, p := range policies {
		for _, rule := range p.Ingress {
			from := rule.From
			if len(from) == 0 {
				// Empty From authorizes any source.
				from = []model.Selector{{}}
			}
			for _, sel := range from {
				if sel.IsWildcard() && sel.Namespace == "" {
					items = append(items, model.DriftItem{
						Kind:       model.DriftOverPermissive,
						PolicyName: p.Name,
						Namespace:  p.Namespace,
						Description: fmt.Sprintf(
							"Policy '%s' allows traffic from any workload (wildcard source selector)", p.Name,
						),
						SuggestedAction: fmt.Sprintf(
							"Restrict policy '%s' to the source selector declared by intent", p.Name,
						),
					})
					continue
				}
				if grantImplied(sel, rule.Ports, p, intents) {
					continue
				}
				items = append(items, model.DriftItem{
					Kind:       model.DriftOverPermissive,
					PolicyName: p.Name,
					Namespace:  p.Namespace,
					Description: fmt.Sprintf(
						"Policy '%s' allows traffic from %s that is not covered by any intent",
						p.Name, selectorString(sel),
					),
					SuggestedAction: fmt.Sprintf(
						"Restrict policy '%s' to the source selector declared by intent, or add a matching intent rule", p.Name,
					),
				})
			}
		}
	}

	return items
}

// grantImplied reports whether some intent targeting the policy's
// destination implies the grant (source selector covered, rule ports within
// the intent's allowance).
func grantImplied(sel model.Selector, rulePorts []model.PortProtocol, p model.NetworkPolicy, intents []model.IntentRule) bool {
	for _, intent := range intents {
		if intent.Destination.Namespace != "" && p.Namespace != intent.Destination.Namespace {
			continue
		}
		if !match.Covers(model.Selector{MatchLabels: p.PodSelector}, intent.Destination) {
			continue
		}
		if !match.Covers(sel, intent.Source) {
			continue
		}
		if len(rulePorts) == 0 {
			return true
		}
		if match.PortsSubset(rulePorts, intent.AllowedPorts) {
			return true
		}
	}
	return false
}

// summarize folds the two drift passes into per-namespace counts. A
// namespace appears when any intent targets it or any policy lives in it.
func summarize(intents []model.IntentRule, policies []model.NetworkPolicy, missing, overPermissive []model.DriftItem) []model.NamespaceSummary {
	namespaces := make(map[string]bool)
	intentCount := make(map[string]int)
	alignedCount := make(map[string]int)
	driftCount := make(map[string]int)

	missingByID := make(map[string]bool, len(missing))
	for _, item := range missing {
		missingByID[item.IntentID] = true
	}

	for _, intent := range intents {
		ns := intent.Destination.Namespace
		namespaces[ns] = true
		intentCount[ns]++
		if !missingByID[intent.ID] {
			alignedCount[ns]++
		}
	}
	for _, p := range policies {
		namespaces[p.Namespace] = true
	}
	for _, item := range missing {
		driftCount[item.Namespace]++
	}
	for _, item := range overPermissive {
		driftCount[item.Namespace]++
	}

	keys := make([]string, 0, len(namespaces))
	for ns := range namespaces {
		keys = append(keys, ns)
	}
	sort.Strings(keys)

	summaries := make([]model.NamespaceSummary, 0, len(keys))
	for _, ns := range keys {
		summaries = append(summaries, model.NamespaceSummary{
			Namespace:    ns,
			IntentCount:  intentCount[ns],
			AlignedCount: alignedCount[ns],
			DriftCount:   driftCount[ns],
		})
	}
	return summaries
}

func selectorString(sel model.Selector) string {
	var parts []string
	if sel.Namespace != "" {
		parts = append(parts, "namespace="+sel.Namespace)
	}
	keys := make([]string, 0, len(sel.MatchLabels))
	for k := range sel.MatchLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+sel.MatchLabels[k])
	}
	if len(parts) == 0 {
		return "{any}"
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func portsString(ports []model.PortProtocol) string {
	if len(ports) == 0 {
		return "[all]"
	}
	parts := make([]string, 0, len(ports))
	for _, pp := range ports {
		parts = append(parts, fmt.Sprintf("%d/%s", pp.Port, pp.Protocol))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
