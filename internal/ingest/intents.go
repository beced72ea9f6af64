package ingest

import (
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/kubeseg/analyzer/internal/model"
)

// flexSelector accepts the two selector shapes intent producers emit: the
// structured {namespace, match_labels} form, and the bare label map form
// used by older data and generated rules.
type flexSelector model.Selector

func (s *flexSelector) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	_, hasLabels := fields["match_labels"]
	_, hasNamespace := fields["namespace"]
	if hasLabels || hasNamespace {
		var structured struct {
			Namespace   string            `json:"namespace"`
			MatchLabels map[string]string `json:"match_labels"`
		}
		if err := json.Unmarshal(data, &structured); err != nil {
			return err
		}
		s.Namespace = structured.Namespace
		s.MatchLabels = structured.MatchLabels
		return nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if len(flat) > 0 {
		s.MatchLabels = flat
	}
	return nil
}

type wireIntent struct {
	ID           string       `json:"id"`
	SrcSelector  flexSelector `json:"src_selector"`
	DstSelector  flexSelector `json:"dst_selector"`
	AllowedPorts []wirePort   `json:"allowed_ports"`
	Description  string       `json:"description"`
}

// LoadIntents reads a YAML list of intent rules. Intents from any producer,
// including generated ones, pass through the same validation as hand-written
// rules.
func (l *Loader) LoadIntents(path string) ([]model.IntentRule, []error, error) {
	data, err := readOptional(path)
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		return []model.IntentRule{}, nil, nil
	}

	var wire []wireIntent
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	intents := make([]model.IntentRule, 0, len(wire))
	var recordErrs []error
	for i, w := range wire {
		r := model.IntentRule{
			ID:           w.ID,
			Source:       model.Selector(w.SrcSelector),
			Destination:  model.Selector(w.DstSelector),
			AllowedPorts: convertWirePorts(w.AllowedPorts),
			Description:  w.Description,
		}
		if err := r.Validate(); err != nil {
			recordErrs = append(recordErrs, fmt.Errorf("intents[%d]: %w", i, err))
			continue
		}
		intents = append(intents, r)
	}
	return intents, recordErrs, nil
}
