// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package requestnorm implements the must-call-PCS check and the
// structural pre-normalisation §4.9 requires before any link is sent to
// the path-computation service: every "vlan" link spanning more than one
// aggregate must carry exactly two property elements, one in each
// direction, synthesising the mirror or the configured default capacity
// when the user's request omits one. It also implements the fixedEndpoint
// option's synthetic terminal node, for a link that needs a second
// endpoint before it can be treated as stitched.
package requestnorm

import (
	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/rspec"
)

const linkTypeVLAN = "vlan"

// fakeAggregateURN, fakeNodeClientID and fakeInterfaceClientID name the
// synthetic terminal node InsertFixedEndpoint adds.
const (
	fakeAggregateURN      = "urn:publicid:IDN+fake+authority+am"
	fakeNodeClientID      = "fake"
	fakeInterfaceClientID = "fake:if0"
)

// MustCallPCS reports whether doc contains at least one "vlan" link
// spanning two or more distinct aggregates without a shared-vlan marker.
// Aggregates are resolved by following each link's interface_ref children
// to their owning node's component_manager_id.
func MustCallPCS(doc *rspec.Document) (bool, error) {
	for i := range doc.Links {
		spans, err := linkSpansMultipleAggregates(doc, &doc.Links[i])
		if err != nil {
			return false, err
		}
		if spans && doc.Links[i].Type == linkTypeVLAN && !sharedVLAN(&doc.Links[i]) {
			return true, nil
		}
	}
	return false, nil
}

func sharedVLAN(l *rspec.Link) bool {
	return l.SharedVLAN != nil
}

// linkSpansMultipleAggregates resolves every interface_ref on l to its
// owning aggregate and reports whether more than one distinct aggregate is
// involved.
func linkSpansMultipleAggregates(doc *rspec.Document, l *rspec.Link) (bool, error) {
	seen := make(map[string]bool)
	for _, ref := range l.InterfaceRef {
		cm, ok := doc.ComponentManagerFor(ref.ClientID)
		if !ok {
			return false, errors.Errorf(errors.KindInputMalformed, "link %s references unknown interface %s", l.ClientID, ref.ClientID)
		}
		seen[cm] = true
	}
	return len(seen) >= 2, nil
}

// InsertFixedEndpoint adds a synthetic terminal node (and interface) to doc
// and attaches it to every link whose interface_refs currently resolve to
// exactly one real aggregate, giving that link the second endpoint later
// stitching logic requires. Gated on the fixedEndpoint config option; a
// link already spanning two or more aggregates is left untouched.
func InsertFixedEndpoint(doc *rspec.Document, defaultCapacityBPS int64) error {
	doc.Nodes = append(doc.Nodes, rspec.Node{
		ClientID:           fakeNodeClientID,
		ComponentManagerID: fakeAggregateURN,
		Interfaces:         []rspec.Interface{{ClientID: fakeInterfaceClientID}},
	})

	for i := range doc.Links {
		l := &doc.Links[i]
		aggregates := make(map[string]bool)
		for _, ref := range l.InterfaceRef {
			cm, ok := doc.ComponentManagerFor(ref.ClientID)
			if !ok {
				return errors.Errorf(errors.KindInputMalformed, "link %s references unknown interface %s", l.ClientID, ref.ClientID)
			}
			aggregates[cm] = true
		}
		if len(aggregates) != 1 || len(l.InterfaceRef) == 0 {
			continue
		}

		src := l.InterfaceRef[0].ClientID
		l.InterfaceRef = append(l.InterfaceRef, rspec.InterfaceRef{ClientID: fakeInterfaceClientID})
		if len(l.Property) == 0 {
			l.Property = append(l.Property,
				rspec.Property{SourceID: src, DestID: fakeInterfaceClientID, Capacity: defaultCapacityBPS},
				rspec.Property{SourceID: fakeInterfaceClientID, DestID: src, Capacity: defaultCapacityBPS},
			)
		}
	}
	return nil
}

// Normalize mutates doc in place: every "vlan" link spanning ≥2 aggregates
// without a shared-vlan marker gets exactly two property elements (one per
// direction), synthesising a missing mirror or the default capacity.
// Contradictory source/dest pairs (the same (source,dest) appearing twice
// with different capacities) are a fatal input error.
func Normalize(doc *rspec.Document, defaultCapacityBPS int64) error {
	for i := range doc.Links {
		l := &doc.Links[i]
		spans, err := linkSpansMultipleAggregates(doc, l)
		if err != nil {
			return err
		}
		if !spans || l.Type != linkTypeVLAN || sharedVLAN(l) {
			continue
		}
		if err := normalizeProperties(l, defaultCapacityBPS); err != nil {
			return err
		}
	}
	return nil
}

// normalizeProperties ensures l has exactly two property elements, one in
// each direction between its first two distinct endpoints, synthesising
// whichever is missing.
func normalizeProperties(l *rspec.Link, defaultCapacityBPS int64) error {
	if len(l.InterfaceRef) < 2 {
		return errors.Errorf(errors.KindInputMalformed, "vlan link %s has fewer than two endpoints", l.ClientID)
	}
	src, dst := l.InterfaceRef[0].ClientID, l.InterfaceRef[1].ClientID

	var forward, reverse *rspec.Property
	for i := range l.Property {
		p := &l.Property[i]
		switch {
		case p.SourceID == src && p.DestID == dst:
			if forward != nil && forward.Capacity != 0 && p.Capacity != 0 && forward.Capacity != p.Capacity {
				return errors.Errorf(errors.KindInputMalformed, "link %s has contradictory %s->%s capacities", l.ClientID, src, dst)
			}
			forward = p
		case p.SourceID == dst && p.DestID == src:
			if reverse != nil && reverse.Capacity != 0 && p.Capacity != 0 && reverse.Capacity != p.Capacity {
				return errors.Errorf(errors.KindInputMalformed, "link %s has contradictory %s->%s capacities", l.ClientID, dst, src)
			}
			reverse = p
		default:
			return errors.Errorf(errors.KindInputMalformed, "link %s has a property not between its two endpoints: %s->%s", l.ClientID, p.SourceID, p.DestID)
		}
	}

	if forward == nil {
		forward = mirrorOrDefault(reverse, src, dst, defaultCapacityBPS)
		l.Property = append(l.Property, *forward)
		forward = &l.Property[len(l.Property)-1]
	} else if forward.Capacity == 0 {
		forward.Capacity = capacityOrDefault(reverse, defaultCapacityBPS)
	}

	if reverse == nil {
		reverse = mirrorOrDefault(forward, dst, src, defaultCapacityBPS)
		l.Property = append(l.Property, *reverse)
	} else if reverse.Capacity == 0 {
		reverse.Capacity = capacityOrDefault(forward, defaultCapacityBPS)
	}

	return nil
}

func mirrorOrDefault(other *rspec.Property, src, dst string, defaultCapacityBPS int64) *rspec.Property {
	p := &rspec.Property{SourceID: src, DestID: dst, Capacity: defaultCapacityBPS}
	if other != nil && other.Capacity != 0 {
		p.Capacity = other.Capacity
		p.Latency = other.Latency
		p.PacketLoss = other.PacketLoss
	}
	return p
}

func capacityOrDefault(other *rspec.Property, defaultCapacityBPS int64) int64 {
	if other != nil && other.Capacity != 0 {
		return other.Capacity
	}
	return defaultCapacityBPS
}
