// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package debugdump renders the in-memory hop/aggregate graph to YAML, the
// optional debug artifact the original tool's dump_objects produced under a
// deterministic filename. It is never on the success path: a run with no
// debug directory configured never imports this package's cost.
package debugdump

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"grimm.is/stitcher/internal/stitch/model"
)

// hopSnapshot is the YAML-serializable view of one hop; it carries no
// pointers so encoding never has to deal with the graph's cycles.
type hopSnapshot struct {
	URN              string `yaml:"urn"`
	RequestedRange   string `yaml:"requested_range"`
	SuggestedTag     string `yaml:"suggested_tag"`
	ManifestTag      int    `yaml:"manifest_tag,omitempty"`
	VlansUnavailable string `yaml:"vlans_unavailable,omitempty"`
	ImportFrom       string `yaml:"import_from,omitempty"`
}

type aggregateSnapshot struct {
	URN              string        `yaml:"urn"`
	URL              string        `yaml:"url"`
	Family           string        `yaml:"family"`
	State            string        `yaml:"state"`
	AllocateAttempts int           `yaml:"allocate_attempts"`
	DependsOn        []string      `yaml:"depends_on,omitempty"`
	Hops             []hopSnapshot `yaml:"hops"`
}

type graphSnapshot struct {
	CorrelationID string              `yaml:"correlation_id"`
	Cycle         int                 `yaml:"cycle"`
	Aggregates    []aggregateSnapshot `yaml:"aggregates"`
}

// Snapshot builds the serializable view of reg for one outer-loop cycle.
func Snapshot(correlationID string, cycle int, reg *model.Registry) graphSnapshot {
	snap := graphSnapshot{CorrelationID: correlationID, Cycle: cycle}
	for _, a := range reg.Aggregates() {
		as := aggregateSnapshot{
			URN: a.URN, URL: a.URL, Family: a.Family.String(),
			State: a.State.String(), AllocateAttempts: a.AllocateAttempts,
		}
		for dep := range a.DependsOn {
			as.DependsOn = append(as.DependsOn, dep)
		}
		sort.Strings(as.DependsOn)
		for _, h := range a.Hops {
			hs := hopSnapshot{
				URN:              h.URN,
				RequestedRange:   h.RequestedRange.String(),
				SuggestedTag:     h.SuggestedTag.String(),
				VlansUnavailable: h.VlansUnavailable.String(),
			}
			if h.HasManifestTag {
				hs.ManifestTag = h.ManifestTag
			}
			if h.ImportFrom != nil {
				hs.ImportFrom = h.ImportFrom.URN
			}
			as.Hops = append(as.Hops, hs)
		}
		snap.Aggregates = append(snap.Aggregates, as)
	}
	return snap
}

// WriteCycle marshals reg's state to YAML and writes it to
// <dir>/cycle-<cycle>-graph.yaml, the deterministic filename debug tooling
// expects.
func WriteCycle(dir, correlationID string, cycle int, reg *model.Registry) error {
	data, err := yaml.Marshal(Snapshot(correlationID, cycle, reg))
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "cycle-"+strconv.Itoa(cycle)+"-graph.yaml")
	return os.WriteFile(path, data, 0o644)
}
