// Package match implements selector matching and policy coverage resolution.
// Both are pure functions over immutable inputs with no shared state and no
// caching across calls.
package match

import (
	"k8s.io/apimachinery/pkg/labels"

	"github.com/kubeseg/analyzer/internal/model"
)

// Matches reports whether a workload identified by namespace and label set
// satisfies the selector. A selector with a namespace constraint only
// matches workloads in that namespace; its label set must be a subset of the
// workload's labels. An empty label set is the wildcard and matches any
// labels within the namespace constraint.
func Matches(sel model.Selector, namespace string, lbls map[string]string) bool {
	if sel.Namespace != "" && sel.Namespace != namespace {
		return false
	}
	return labels.SelectorFromSet(labels.Set(sel.MatchLabels)).Matches(labels.Set(lbls))
}

// MatchesAny reports whether any selector in the list matches the workload.
// An empty list is treated as the wildcard.
func MatchesAny(sels []model.Selector, namespace string, lbls map[string]string) bool {
	if len(sels) == 0 {
		return true
	}
	for _, sel := range sels {
		if Matches(sel, namespace, lbls) {
			return true
		}
	}
	return false
}

// Covers reports whether selector a authorizes at least the workloads
// selector b identifies: a is the wildcard, or a's namespace constraint is
// absent-or-equal and a's label requirements are implied by b's. Used by
// drift detection to compare policy selectors against intent selectors.
func Covers(a, b model.Selector) bool {
	if a.Namespace != "" && b.Namespace != "" && a.Namespace != b.Namespace {
		return false
	}
	if a.IsWildcard() {
		return true
	}
	for k, v := range a.MatchLabels {
		if bv, ok := b.MatchLabels[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
