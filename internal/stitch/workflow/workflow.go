// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package workflow ingests the dependency map the path-computation service
// returns alongside an expanded request (its workflow_data()) and wires it
// onto the in-memory hop/aggregate graph in internal/stitch/model.
package workflow

import (
	"encoding/json"
	"fmt"
	"sort"

	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/stitch/model"
)

// Dependency is one entry in a link's dependency list: a hop, the
// aggregate it lives at, whether it imports its VLAN tag from the hop it
// depends on, and that hop's own nested dependencies.
type Dependency struct {
	HopURN       string       `json:"hop_urn"`
	AggregateURL string       `json:"aggregate_url"`
	AggregateURN string       `json:"aggregate_urn"`
	ImportVLANs  bool         `json:"import_vlans"`
	Dependencies []Dependency `json:"dependencies"`
}

// Map is the decoded workflow_data() response: one dependency list per
// link id.
type Map map[string][]Dependency

// wireEntry mirrors the PCS's on-the-wire shape for one link:
// {"dependencies": [...]}.
type wireEntry struct {
	Dependencies []Dependency `json:"dependencies"`
}

// DecodeJSON parses the raw workflow_data() JSON document (one
// {"dependencies": [...]} object per link id) into a Map.
func DecodeJSON(data []byte) (Map, error) {
	var wire map[string]wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("workflow: decode: %w", err)
	}
	m := make(Map, len(wire))
	for linkID, entry := range wire {
		m[linkID] = entry.Dependencies
	}
	return m, nil
}

// Parser ingests a Map into a model.Registry, deriving hop-to-hop and
// aggregate-to-aggregate dependency edges.
type Parser struct {
	reg *model.Registry

	// importFlags tracks which hops carry import_vlans=true, since Hop
	// only exposes the resolved ImportFrom pointer, not the raw workflow
	// flag the dependency map carried.
	importFlags map[*model.Hop]bool
}

// NewParser returns a Parser writing into reg.
func NewParser(reg *model.Registry) *Parser {
	return &Parser{reg: reg, importFlags: make(map[*model.Hop]bool)}
}

// Parse ingests wf, resolving every referenced hop against the paths
// already registered in reg (from the expanded request document) and
// attaching aggregate info, dependency edges, and import-from pointers.
func (p *Parser) Parse(wf Map) error {
	linkIDs := make([]string, 0, len(wf))
	for id := range wf {
		linkIDs = append(linkIDs, id)
	}
	sort.Strings(linkIDs)

	for _, linkID := range linkIDs {
		path, ok := p.reg.FindPath(linkID)
		if !ok {
			return errors.Errorf(errors.KindInputMalformed, "no path found in expanded request with link id %q", linkID)
		}
		if err := p.parseDeps(wf[linkID], path); err != nil {
			return err
		}
	}

	for _, linkID := range linkIDs {
		path, _ := p.reg.FindPath(linkID)
		if err := p.resolveImports(path); err != nil {
			return err
		}
		p.addAggregateDeps(path)
	}
	return p.reg.MaterializeTransitiveClosure()
}

func (p *Parser) parseDeps(deps []Dependency, path *model.Path) error {
	for _, d := range deps {
		hop, ok := p.reg.FindHop(path.LinkID, d.HopURN)
		if !ok {
			return errors.Errorf(errors.KindInputMalformed, "no hop found with urn %q on path %q", d.HopURN, path.LinkID)
		}
		p.attachAggregate(hop, d)
		if err := p.parseHopDeps(d.Dependencies, hop, path); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseHopDeps(deps []Dependency, hop *model.Hop, path *model.Path) error {
	for _, d := range deps {
		dep, ok := p.reg.FindHop(path.LinkID, d.HopURN)
		if !ok {
			return errors.Errorf(errors.KindInputMalformed, "no dependent hop found with urn %q on path %q", d.HopURN, path.LinkID)
		}
		p.attachAggregate(dep, d)
		p.reg.AddDependency(hop, dep)
	}
	return nil
}

// attachAggregate resolves the aggregate named in d and attaches it (and
// the import_vlans flag) to hop, unless hop already has an aggregate.
func (p *Parser) attachAggregate(hop *model.Hop, d Dependency) {
	if hop.Aggregate != nil {
		return
	}
	agg := p.reg.FindOrCreateAggregate(d.AggregateURN, d.AggregateURL)
	if agg.URL == "" {
		agg.URL = d.AggregateURL
	}
	hop.Aggregate = agg
	agg.Hops = append(agg.Hops, hop)
	p.importFlags[hop] = d.ImportVLANs
}

// resolveImports assigns ImportFrom for every hop on path that was marked
// import_vlans=true: the hop inherits from the unique dependency hop on a
// different aggregate. Ties (more than one qualifying dependency) are
// broken deterministically by URN ordering.
func (p *Parser) resolveImports(path *model.Path) error {
	for _, hop := range path.Hops {
		if !p.importFlags[hop] {
			continue
		}
		var candidates []*model.Hop
		for _, dep := range hop.DependsOn {
			if dep.Aggregate != hop.Aggregate {
				candidates = append(candidates, dep)
			}
		}
		if len(candidates) == 0 {
			return errors.Errorf(errors.KindInputMalformed, "hop %q marked import_vlans but has no cross-aggregate dependency to import from", hop.URN)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].URN < candidates[j].URN })
		hop.ImportFrom = candidates[0]
	}
	return nil
}

// addAggregateDeps derives aggregate-to-aggregate edges from the hop-level
// dependencies just parsed for path: agg depends on depAgg iff some hop at
// agg depends on some hop at depAgg.
func (p *Parser) addAggregateDeps(path *model.Path) {
	for _, hop := range path.Hops {
		for _, dep := range hop.DependsOn {
			if hop.Aggregate == nil || dep.Aggregate == nil || hop.Aggregate == dep.Aggregate {
				continue
			}
			hop.Aggregate.DependsOn[dep.Aggregate.URN] = dep.Aggregate
		}
	}
}
