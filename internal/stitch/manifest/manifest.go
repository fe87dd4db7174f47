// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package manifest builds the single combined manifest document a
// successful run emits: templated off the last-completed aggregate's own
// manifest, spliced with every other aggregate's nodes and hop elements,
// with each top-level link's interface_ref children drawn from whichever
// aggregate reserved that endpoint and its property capacities carried
// through from the original user request unchanged.
package manifest

import (
	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/rspec"
	"grimm.is/stitcher/internal/stitch/model"
)

// Combine builds the final manifest from every reserved aggregate's own
// manifest document (manifests, keyed by aggregate URN). reg is the
// fully-reserved registry, used only for aggregate ordering; request is the
// original user request, whose link Property elements are carried through
// unchanged. lastCompleted names the aggregate whose own manifest is used
// as the template for document-level attributes (the source's "use the
// last completed aggregate's manifest as the base document" mechanism); it
// may be nil, in which case the request's own attributes are used.
//
// Construction is deterministic and idempotent: node and link ordering
// follows reg.Aggregates() and request.Links in registration order, never
// map iteration.
func Combine(reg *model.Registry, request *rspec.Document, manifests map[string][]byte, lastCompleted *model.Aggregate) (*rspec.Document, error) {
	parsed := make(map[string]*rspec.Document, len(manifests))
	for urn, raw := range manifests {
		doc, err := rspec.Unmarshal(raw)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindAggregateFatal, "parsing manifest for aggregate %s", urn)
		}
		parsed[urn] = doc
	}

	out := &rspec.Document{Type: templateType(request, parsed, lastCompleted)}

	seenNode := make(map[string]bool)
	for _, agg := range reg.Aggregates() {
		doc, ok := parsed[agg.URN]
		if !ok {
			continue
		}
		for _, n := range doc.Nodes {
			if seenNode[n.ClientID] {
				continue
			}
			seenNode[n.ClientID] = true
			out.Nodes = append(out.Nodes, n)
		}
	}

	orderedAggURNs := make([]string, 0, len(reg.Aggregates()))
	for _, agg := range reg.Aggregates() {
		orderedAggURNs = append(orderedAggURNs, agg.URN)
	}

	for _, reqLink := range request.Links {
		link, err := combineLink(reqLink, orderedAggURNs, parsed)
		if err != nil {
			return nil, err
		}
		out.Links = append(out.Links, link)
	}

	out.Stitching = combineStitching(reg, parsed)

	return out, nil
}

// templateType picks the document-level type attribute from the
// last-completed aggregate's own manifest, if one was reserved and parses,
// falling back to the original request's.
func templateType(request *rspec.Document, parsed map[string]*rspec.Document, lastCompleted *model.Aggregate) string {
	if lastCompleted != nil {
		if doc, ok := parsed[lastCompleted.URN]; ok && doc.Type != "" {
			return doc.Type
		}
	}
	return request.Type
}

// combineLink rebuilds one top-level link: interface_ref children are
// collected from whichever aggregate manifest actually defines that link
// (by client id), and property capacities are carried through from the
// user's original request unchanged.
func combineLink(reqLink rspec.Link, orderedAggURNs []string, parsed map[string]*rspec.Document) (rspec.Link, error) {
	out := rspec.Link{
		ClientID:   reqLink.ClientID,
		Type:       reqLink.Type,
		Property:   reqLink.Property,
		SharedVLAN: reqLink.SharedVLAN,
	}

	seenRef := make(map[string]bool)
	for _, urn := range orderedAggURNs {
		doc, ok := parsed[urn]
		if !ok {
			continue
		}
		for _, l := range doc.Links {
			if l.ClientID != reqLink.ClientID {
				continue
			}
			for _, ref := range l.InterfaceRef {
				if seenRef[ref.ClientID] {
					continue
				}
				seenRef[ref.ClientID] = true
				out.InterfaceRef = append(out.InterfaceRef, ref)
			}
		}
	}
	if len(out.InterfaceRef) == 0 {
		// No aggregate manifest echoed this link (e.g. single-aggregate
		// pass-through); fall back to the original request's references.
		out.InterfaceRef = reqLink.InterfaceRef
	}
	if len(out.InterfaceRef) < 2 {
		return out, errors.Errorf(errors.KindAggregateFatal, "combined manifest link %s has fewer than two interface_ref children", reqLink.ClientID)
	}
	return out, nil
}

// combineStitching merges every aggregate's stitching paths, keeping one
// path per link id and, within a path, one hop per hop id, preferring
// whichever aggregate's manifest defines the hop (hops are aggregate-local
// segments so each hop id appears in exactly one aggregate's manifest).
func combineStitching(reg *model.Registry, parsed map[string]*rspec.Document) *rspec.Stitching {
	pathsByID := make(map[string]*rspec.Path)
	var order []string

	for _, agg := range reg.Aggregates() {
		doc, ok := parsed[agg.URN]
		if !ok || doc.Stitching == nil {
			continue
		}
		for _, p := range doc.Stitching.Paths {
			existing, ok := pathsByID[p.ID]
			if !ok {
				cp := p
				pathsByID[p.ID] = &cp
				order = append(order, p.ID)
				continue
			}
			existing.Hops = mergeHops(existing.Hops, p.Hops)
		}
	}
	if len(order) == 0 {
		return nil
	}

	st := &rspec.Stitching{}
	for _, id := range order {
		st.Paths = append(st.Paths, *pathsByID[id])
	}
	return st
}

func mergeHops(into []rspec.Hop, add []rspec.Hop) []rspec.Hop {
	seen := make(map[string]bool, len(into))
	for _, h := range into {
		seen[h.ID] = true
	}
	for _, h := range add {
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		into = append(into, h)
	}
	return into
}
