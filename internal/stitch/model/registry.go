// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package model

import (
	"fmt"

	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/vlan"
)

func parseCarriedSet(text string) (vlan.Set, error) {
	return vlan.Parse(text)
}

// hopCarryKey identifies a hop by path+URN for carry-forward matching,
// since hop URNs are only unique within one path.
func hopCarryKey(h *Hop) string {
	pathID := ""
	if h.Path != nil {
		pathID = h.Path.LinkID
	}
	return pathID + "\x00" + h.URN
}

// Registry is the in-memory aggregate/hop/path graph for one PCS cycle. It
// is keyed by URN with synonym lookup, and flushed between outer-loop
// retries except for a small set of fields that are forwarded (see
// SnapshotForCarryForward and ApplyCarryForward).
type Registry struct {
	aggregates map[string]*Aggregate // keyed by URN and by every synonym
	canonical  []*Aggregate          // insertion order, one entry per aggregate
	paths      map[string]*Path
	// hops is keyed by (path-id, hop-urn): hop URNs are not guaranteed
	// globally unique across paths in the source material, only unique
	// within one path.
	hops map[hopKey]*Hop
}

type hopKey struct {
	pathID string
	urn    string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		aggregates: make(map[string]*Aggregate),
		paths:      make(map[string]*Path),
		hops:       make(map[hopKey]*Hop),
	}
}

// FindAggregate resolves urn (or one of its synonyms, if already known) to
// an Aggregate.
func (r *Registry) FindAggregate(urn string) (*Aggregate, bool) {
	a, ok := r.aggregates[urn]
	return a, ok
}

// AddAggregate registers a new aggregate, indexing it by URN and every
// synonym. It errors if urn (or a synonym) is already registered to a
// different aggregate.
func (r *Registry) AddAggregate(a *Aggregate) error {
	for _, key := range append([]string{a.URN}, a.Synonyms...) {
		if existing, ok := r.aggregates[key]; ok && existing != a {
			return errors.Errorf(errors.KindInputMalformed, "aggregate key %q already registered to a different aggregate", key)
		}
	}
	if a.DependsOn == nil {
		a.DependsOn = make(map[string]*Aggregate)
	}
	for _, key := range append([]string{a.URN}, a.Synonyms...) {
		r.aggregates[key] = a
	}
	r.canonical = append(r.canonical, a)
	return nil
}

// Aggregates returns every registered aggregate in insertion order.
func (r *Registry) Aggregates() []*Aggregate {
	return append([]*Aggregate(nil), r.canonical...)
}

// FindOrCreateAggregate resolves urn to an Aggregate, creating one with the
// given URL if it isn't registered yet.
func (r *Registry) FindOrCreateAggregate(urn, url string) *Aggregate {
	if a, ok := r.aggregates[urn]; ok {
		return a
	}
	a := &Aggregate{URN: urn, URL: url, DependsOn: make(map[string]*Aggregate)}
	r.aggregates[urn] = a
	r.canonical = append(r.canonical, a)
	return a
}

// AddPath registers path, indexed by its link id.
func (r *Registry) AddPath(p *Path) {
	r.paths[p.LinkID] = p
}

// FindPath resolves a link id to its Path.
func (r *Registry) FindPath(linkID string) (*Path, bool) {
	p, ok := r.paths[linkID]
	return p, ok
}

// AddHop registers a hop, indexed by (path id, hop URN), and attaches it to
// its path and aggregate. h.Path must already be set.
func (r *Registry) AddHop(h *Hop) {
	if h.Path != nil {
		r.hops[hopKey{h.Path.LinkID, h.URN}] = h
		h.Path.Hops = append(h.Path.Hops, h)
	}
	if h.Aggregate != nil {
		h.Aggregate.Hops = append(h.Aggregate.Hops, h)
	}
}

// FindHop resolves a hop URN scoped to the given path id, since hop URNs
// are only guaranteed unique within one path.
func (r *Registry) FindHop(pathID, urn string) (*Hop, bool) {
	h, ok := r.hops[hopKey{pathID, urn}]
	return h, ok
}

// AddDependency records that from depends on to, both at the hop level and,
// derived, at the aggregate level: a.DependsOn[b] iff some hop at a depends
// on some hop at b.
func (r *Registry) AddDependency(from, to *Hop) {
	from.DependsOn = append(from.DependsOn, to)
	if from.Aggregate != nil && to.Aggregate != nil && from.Aggregate != to.Aggregate {
		from.Aggregate.DependsOn[to.Aggregate.URN] = to.Aggregate
	}
}

// MaterializeTransitiveClosure expands every aggregate's DependsOn set to
// its full transitive closure and reports a DependencyCycle error if the
// resulting graph is not a DAG (data model invariant 3).
func (r *Registry) MaterializeTransitiveClosure() error {
	for _, a := range r.canonical {
		visited := make(map[string]bool)
		if err := closure(a, a.DependsOn, visited, make(map[string]bool)); err != nil {
			return err
		}
	}
	return nil
}

func closure(root *Aggregate, deps map[string]*Aggregate, seen, onStack map[string]bool) error {
	for _, dep := range listValues(deps) {
		if dep.URN == root.URN {
			return errors.Errorf(errors.KindDependencyCycle, "aggregate %s depends on itself transitively", root.URN)
		}
		if onStack[dep.URN] {
			return errors.Errorf(errors.KindDependencyCycle, "dependency cycle detected through aggregate %s", dep.URN)
		}
		if seen[dep.URN] {
			for k, v := range dep.DependsOn {
				root.DependsOn[k] = v
			}
			continue
		}
		seen[dep.URN] = true
		onStack[dep.URN] = true
		if err := closure(root, dep.DependsOn, seen, onStack); err != nil {
			return err
		}
		onStack[dep.URN] = false
		for k, v := range dep.DependsOn {
			root.DependsOn[k] = v
		}
	}
	return nil
}

func listValues(m map[string]*Aggregate) []*Aggregate {
	out := make([]*Aggregate, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// SnapshotForCarryForward captures the fields the outer loop forwards into
// the next PCS cycle: each hop's VlansUnavailable, and each aggregate's
// Family/UserRequested/APIVersion.
func (r *Registry) SnapshotForCarryForward() map[string]any {
	snap := make(map[string]any, len(r.canonical))
	for _, a := range r.canonical {
		hopTags := make(map[string]string)
		for _, h := range a.Hops {
			hopTags[hopCarryKey(h)] = h.VlansUnavailable.String()
		}
		snap[a.URN] = aggregateCarry{
			Family:        a.Family,
			UserRequested: a.UserRequested,
			APIVersion:    a.APIVersion,
			HopUnavailable: hopTags,
		}
	}
	return snap
}

type aggregateCarry struct {
	Family         Family
	UserRequested  bool
	APIVersion     string
	HopUnavailable map[string]string
}

// ApplyCarryForward restores forwarded state captured by a prior registry's
// SnapshotForCarryForward into the matching (by URN) aggregates/hops of r.
// Aggregates or hops with no match in snap are left untouched; it is not an
// error for the new PCS response to introduce or drop aggregates.
func ApplyCarryForward(r *Registry, snap map[string]any) error {
	for _, a := range r.canonical {
		raw, ok := snap[a.URN]
		if !ok {
			continue
		}
		c, ok := raw.(aggregateCarry)
		if !ok {
			return fmt.Errorf("model: carry-forward snapshot for %s has unexpected type %T", a.URN, raw)
		}
		a.Family = c.Family
		a.UserRequested = c.UserRequested
		a.APIVersion = c.APIVersion
		for _, h := range a.Hops {
			text, ok := c.HopUnavailable[hopCarryKey(h)]
			if !ok {
				continue
			}
			set, err := parseCarriedSet(text)
			if err != nil {
				return err
			}
			h.VlansUnavailable = set
		}
	}
	return nil
}
