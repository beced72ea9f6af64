package model

import (
	"fmt"
	"strings"

	utilvalidation "k8s.io/apimachinery/pkg/util/validation"
)

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	// KindMalformedSelector indicates a selector referencing a syntactically
	// invalid namespace or label.
	KindMalformedSelector ErrorKind = "MalformedSelector"
	// KindMissingField indicates a record missing a required field.
	KindMissingField ErrorKind = "MissingField"
	// KindInvalidValue indicates a field with a value outside its allowed set.
	KindInvalidValue ErrorKind = "InvalidValue"
	// KindAmbiguousPolicyTarget is reserved; overlapping policy targets are
	// legal and this kind is not produced in normal flow.
	KindAmbiguousPolicyTarget ErrorKind = "AmbiguousPolicyTarget"
)

// ValidationError reports a structurally invalid input record. The engine
// never panics on bad input; the ingest boundary surfaces these and the
// caller decides whether to abort or skip the record.
type ValidationError struct {
	Kind   ErrorKind
	Record string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: field %q: %s", e.Kind, e.Record, e.Field, e.Reason)
}

func missing(record, field string) *ValidationError {
	return &ValidationError{Kind: KindMissingField, Record: record, Field: field, Reason: "required field is empty"}
}

// validNamespace checks namespace syntax. Empty is allowed where the caller
// treats it as a wildcard; callers requiring a namespace check that first.
func validNamespace(ns string) bool {
	return ns == "" || len(utilvalidation.IsDNS1123Label(ns)) == 0
}

func validateLabels(record, field string, lbls map[string]string) error {
	for k, v := range lbls {
		if errs := utilvalidation.IsQualifiedName(k); len(errs) > 0 {
			return &ValidationError{
				Kind:   KindMalformedSelector,
				Record: record,
				Field:  field,
				Reason: fmt.Sprintf("invalid label key %q: %s", k, strings.Join(errs, "; ")),
			}
		}
		if errs := utilvalidation.IsValidLabelValue(v); len(errs) > 0 {
			return &ValidationError{
				Kind:   KindMalformedSelector,
				Record: record,
				Field:  field,
				Reason: fmt.Sprintf("invalid label value %q for key %q: %s", v, k, strings.Join(errs, "; ")),
			}
		}
	}
	return nil
}

// Validate checks selector syntax. A selector with no namespace and no
// labels is the legal wildcard.
func (s Selector) Validate(record, field string) error {
	if !validNamespace(s.Namespace) {
		return &ValidationError{
			Kind:   KindMalformedSelector,
			Record: record,
			Field:  field + ".namespace",
			Reason: fmt.Sprintf("namespace %q is not a valid DNS-1123 label", s.Namespace),
		}
	}
	return validateLabels(record, field+".match_labels", s.MatchLabels)
}

func validPortProtocol(record, field string, pp PortProtocol) error {
	if pp.Port <= 0 || pp.Port > 65535 {
		return &ValidationError{
			Kind:   KindInvalidValue,
			Record: record,
			Field:  field + ".port",
			Reason: fmt.Sprintf("port %d is out of range", pp.Port),
		}
	}
	switch pp.Protocol {
	case ProtocolTCP, ProtocolUDP, ProtocolSCTP:
		return nil
	default:
		return &ValidationError{
			Kind:   KindInvalidValue,
			Record: record,
			Field:  field + ".protocol",
			Reason: fmt.Sprintf("protocol %q is not one of TCP, UDP, SCTP", pp.Protocol),
		}
	}
}

// Validate checks that the flow has every required field and enumerated
// values within range.
func (f Flow) Validate() error {
	record := "flow " + f.Ref()
	if f.SrcNamespace == "" {
		return missing(record, "src_ns")
	}
	if f.DstNamespace == "" {
		return missing(record, "dst_ns")
	}
	if f.SrcWorkload == "" {
		return missing(record, "src_pod")
	}
	if f.DstWorkload == "" {
		return missing(record, "dst_pod")
	}
	if !validNamespace(f.SrcNamespace) {
		return &ValidationError{Kind: KindMalformedSelector, Record: record, Field: "src_ns",
			Reason: fmt.Sprintf("namespace %q is not a valid DNS-1123 label", f.SrcNamespace)}
	}
	if !validNamespace(f.DstNamespace) {
		return &ValidationError{Kind: KindMalformedSelector, Record: record, Field: "dst_ns",
			Reason: fmt.Sprintf("namespace %q is not a valid DNS-1123 label", f.DstNamespace)}
	}
	if err := validateLabels(record, "src_labels", f.SrcLabels); err != nil {
		return err
	}
	if err := validateLabels(record, "dst_labels", f.DstLabels); err != nil {
		return err
	}
	if err := validPortProtocol(record, "", PortProtocol{Port: f.Port, Protocol: f.Protocol}); err != nil {
		return err
	}
	switch f.Verdict {
	case VerdictAllow, VerdictDeny:
	default:
		return &ValidationError{Kind: KindInvalidValue, Record: record, Field: "verdict",
			Reason: fmt.Sprintf("verdict %q is not one of allow, deny", f.Verdict)}
	}
	return nil
}

// Validate checks policy structure: name and namespace present, selectors
// and rule ports well formed.
func (p NetworkPolicy) Validate() error {
	record := fmt.Sprintf("policy %q", p.Name)
	if p.Name == "" {
		return missing("policy", "name")
	}
	if p.Namespace == "" {
		return missing(record, "namespace")
	}
	if !validNamespace(p.Namespace) {
		return &ValidationError{Kind: KindMalformedSelector, Record: record, Field: "namespace",
			Reason: fmt.Sprintf("namespace %q is not a valid DNS-1123 label", p.Namespace)}
	}
	if err := validateLabels(record, "pod_selector", p.PodSelector); err != nil {
		return err
	}
	for i, rule := range p.Ingress {
		field := fmt.Sprintf("ingress[%d]", i)
		for j, sel := range rule.From {
			if err := sel.Validate(record, fmt.Sprintf("%s.from[%d]", field, j)); err != nil {
				return err
			}
		}
		for j, pp := range rule.Ports {
			if err := validPortProtocol(record, fmt.Sprintf("%s.ports[%d]", field, j), pp); err != nil {
				return err
			}
		}
	}
	for i, rule := range p.Egress {
		field := fmt.Sprintf("egress[%d]", i)
		for j, sel := range rule.To {
			if err := sel.Validate(record, fmt.Sprintf("%s.to[%d]", field, j)); err != nil {
				return err
			}
		}
		for j, pp := range rule.Ports {
			if err := validPortProtocol(record, fmt.Sprintf("%s.ports[%d]", field, j), pp); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks an intent rule. Intents may come from any producer,
// including generated ones, and all go through the same checks.
func (r IntentRule) Validate() error {
	record := fmt.Sprintf("intent %q", r.ID)
	if r.ID == "" {
		return missing("intent", "id")
	}
	if err := r.Source.Validate(record, "src_selector"); err != nil {
		return err
	}
	if err := r.Destination.Validate(record, "dst_selector"); err != nil {
		return err
	}
	for i, pp := range r.AllowedPorts {
		if err := validPortProtocol(record, fmt.Sprintf("allowed_ports[%d]", i), pp); err != nil {
			return err
		}
	}
	return nil
}
