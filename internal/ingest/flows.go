package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kubeseg/analyzer/internal/model"
)

// wireFlow mirrors the flow records produced by collectors and mock data.
// Protocol and verdict casing varies between producers and is normalized
// here.
type wireFlow struct {
	SrcNS     string            `json:"src_ns"`
	SrcPod    string            `json:"src_pod"`
	SrcLabels map[string]string `json:"src_labels"`
	DstNS     string            `json:"dst_ns"`
	DstPod    string            `json:"dst_pod"`
	DstLabels map[string]string `json:"dst_labels"`
	Port      int               `json:"port"`
	Protocol  string            `json:"protocol"`
	Verdict   string            `json:"verdict"`
}

func convertWireFlow(w wireFlow) model.Flow {
	return model.Flow{
		SrcNamespace: w.SrcNS,
		SrcWorkload:  w.SrcPod,
		SrcLabels:    w.SrcLabels,
		DstNamespace: w.DstNS,
		DstWorkload:  w.DstPod,
		DstLabels:    w.DstLabels,
		Port:         w.Port,
		Protocol:     model.Protocol(strings.ToUpper(w.Protocol)),
		Verdict:      model.Verdict(strings.ToLower(w.Verdict)),
	}
}

// ParseFlow parses and validates a single flow record.
func ParseFlow(data []byte) (model.Flow, error) {
	var w wireFlow
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Flow{}, fmt.Errorf("failed to parse flow: %w", err)
	}
	f := convertWireFlow(w)
	if err := f.Validate(); err != nil {
		return model.Flow{}, err
	}
	return f, nil
}

// LoadFlows reads a JSON list of flow records. The returned error slice
// holds per-record validation failures for skipped records; the error return
// is set only for file-level failures.
func (l *Loader) LoadFlows(path string) ([]model.Flow, []error, error) {
	data, err := readOptional(path)
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		return []model.Flow{}, nil, nil
	}

	var wire []wireFlow
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	flows := make([]model.Flow, 0, len(wire))
	var recordErrs []error
	for i, w := range wire {
		f := convertWireFlow(w)
		if err := f.Validate(); err != nil {
			recordErrs = append(recordErrs, fmt.Errorf("flows[%d]: %w", i, err))
			continue
		}
		flows = append(flows, f)
	}
	return flows, recordErrs, nil
}
