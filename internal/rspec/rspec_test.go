// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rspec

import (
	"strings"
	"testing"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	d := &Document{
		Nodes: []Node{{ClientID: "node1", ComponentManagerID: "urn:publicid:IDN+example+authority+cm", Interfaces: []Interface{{ClientID: "node1:if0"}}}},
		Links: []Link{{
			ClientID:     "link1",
			Type:         "vlan",
			InterfaceRef: []InterfaceRef{{ClientID: "node1:if0"}, {ClientID: "node2:if0"}},
			Property:     []Property{{SourceID: "node1:if0", DestID: "node2:if0", Capacity: 20000000}},
		}},
		Stitching: &Stitching{Paths: []Path{{
			ID: "link1",
			Hops: []Hop{{ID: "hop1", LinkID: "link1", SuggestedVLANRange: "any", VLANRangeAvailability: "100-200"}},
		}}},
	}

	data, err := Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.HasPrefix(string(data), "<?xml") {
		t.Fatalf("expected xml declaration, got %s", data[:20])
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.Nodes) != 1 || got.Nodes[0].ClientID != "node1" {
		t.Fatalf("node not round-tripped: %+v", got.Nodes)
	}
	path := got.FindPath("link1")
	if path == nil {
		t.Fatal("expected path link1 to round-trip")
	}
	if hop := path.FindHop("hop1"); hop == nil || hop.VLANRangeAvailability != "100-200" {
		t.Fatalf("hop not round-tripped: %+v", hop)
	}
}

func TestComponentManagerFor(t *testing.T) {
	d := &Document{Nodes: []Node{{
		ClientID:           "node1",
		ComponentManagerID: "urn:publicid:IDN+site+authority+cm",
		Interfaces:         []Interface{{ClientID: "node1:if0"}},
	}}}

	cm, ok := d.ComponentManagerFor("node1:if0")
	if !ok || cm != "urn:publicid:IDN+site+authority+cm" {
		t.Fatalf("got cm=%q ok=%v", cm, ok)
	}
	if _, ok := d.ComponentManagerFor("missing"); ok {
		t.Fatal("expected lookup miss for unknown interface")
	}
}
