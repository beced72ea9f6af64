// Package ingest is the data boundary of the analyzer. It loads snapshot
// files (flows, enforced policies, intent rules), converts the duck-typed
// wire records into the explicit model types, and validates every record.
// Invalid records are reported individually so the caller can abort or
// skip-and-continue; a missing snapshot file is an empty collection, not an
// error.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/kubeseg/analyzer/internal/model"
)

// Default snapshot file names inside a data directory.
const (
	FlowsFile    = "flows.json"
	PoliciesFile = "network_policies.yaml"
	IntentsFile  = "intent.yaml"
)

// Snapshot is one immutable set of analysis inputs. Analyses run against a
// snapshot without coordination; nothing mutates it after load.
type Snapshot struct {
	Flows    []model.Flow
	Policies []model.NetworkPolicy
	Intents  []model.IntentRule
}

// Loader reads snapshot directories.
type Loader struct {
	log logr.Logger
}

// LoaderConfig contains configuration for the loader.
type LoaderConfig struct {
	// Logger for logging
	Logger logr.Logger
}

// NewLoader creates a new snapshot loader.
func NewLoader(cfg LoaderConfig) *Loader {
	return &Loader{log: cfg.Logger.WithName("ingest")}
}

// LoadSnapshot loads flows, policies, and intents from dir. Structurally
// invalid records are skipped and logged; file-level failures (unreadable or
// unparsable files) abort the load.
func (l *Loader) LoadSnapshot(dir string) (*Snapshot, error) {
	snap := &Snapshot{}

	flows, recordErrs, err := l.LoadFlows(filepath.Join(dir, FlowsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load flows: %w", err)
	}
	l.logSkipped(FlowsFile, recordErrs)
	snap.Flows = flows

	policies, recordErrs, err := l.LoadPolicies(filepath.Join(dir, PoliciesFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	l.logSkipped(PoliciesFile, recordErrs)
	snap.Policies = policies

	intents, recordErrs, err := l.LoadIntents(filepath.Join(dir, IntentsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load intents: %w", err)
	}
	l.logSkipped(IntentsFile, recordErrs)
	snap.Intents = intents

	l.log.Info("Snapshot loaded",
		"dir", dir,
		"flows", len(snap.Flows),
		"policies", len(snap.Policies),
		"intents", len(snap.Intents),
	)

	return snap, nil
}

func (l *Loader) logSkipped(file string, recordErrs []error) {
	for _, err := range recordErrs {
		l.log.Info("Skipping invalid record", "file", file, "reason", err.Error())
	}
}

// readOptional returns the file contents, or (nil, nil) when the file does
// not exist.
func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
