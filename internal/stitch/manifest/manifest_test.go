// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package manifest

import (
	"testing"

	"grimm.is/stitcher/internal/rspec"
	"grimm.is/stitcher/internal/stitch/model"
)

func mustMarshal(t *testing.T, d *rspec.Document) []byte {
	t.Helper()
	b, err := rspec.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestCombineSplicesNodesAndDedupesInterfaceRefs(t *testing.T) {
	reg := model.NewRegistry()
	a := &model.Aggregate{URN: "urn:a", DependsOn: map[string]*model.Aggregate{}}
	b := &model.Aggregate{URN: "urn:b", DependsOn: map[string]*model.Aggregate{}}
	if err := reg.AddAggregate(a); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddAggregate(b); err != nil {
		t.Fatal(err)
	}

	manifestA := &rspec.Document{
		Nodes: []rspec.Node{{ClientID: "nodeA", ComponentManagerID: "urn:a"}},
		Links: []rspec.Link{{ClientID: "link1", InterfaceRef: []rspec.InterfaceRef{{ClientID: "nodeA:if0"}}}},
	}
	manifestB := &rspec.Document{
		Nodes: []rspec.Node{{ClientID: "nodeB", ComponentManagerID: "urn:b"}},
		Links: []rspec.Link{{ClientID: "link1", InterfaceRef: []rspec.InterfaceRef{{ClientID: "nodeB:if0"}}}},
	}

	request := &rspec.Document{
		Links: []rspec.Link{{
			ClientID: "link1",
			Property: []rspec.Property{
				{SourceID: "nodeA:if0", DestID: "nodeB:if0", Capacity: 20_000_000},
				{SourceID: "nodeB:if0", DestID: "nodeA:if0", Capacity: 20_000_000},
			},
		}},
	}

	manifests := map[string][]byte{
		"urn:a": mustMarshal(t, manifestA),
		"urn:b": mustMarshal(t, manifestB),
	}

	out, err := Combine(reg, request, manifests, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Nodes) != 2 {
		t.Fatalf("expected 2 nodes (one per aggregate), got %d", len(out.Nodes))
	}
	if len(out.Links) != 1 {
		t.Fatalf("expected 1 combined link, got %d", len(out.Links))
	}
	if len(out.Links[0].InterfaceRef) != 2 {
		t.Fatalf("expected combined link to have both interface_refs, got %d", len(out.Links[0].InterfaceRef))
	}
	if len(out.Links[0].Property) != 2 {
		t.Fatalf("expected property capacities carried through from request, got %d", len(out.Links[0].Property))
	}
}

func TestCombineIsIdempotent(t *testing.T) {
	reg := model.NewRegistry()
	a := &model.Aggregate{URN: "urn:a", DependsOn: map[string]*model.Aggregate{}}
	if err := reg.AddAggregate(a); err != nil {
		t.Fatal(err)
	}
	manifestA := &rspec.Document{
		Nodes: []rspec.Node{{ClientID: "nodeA", ComponentManagerID: "urn:a"}},
		Links: []rspec.Link{{ClientID: "link1", InterfaceRef: []rspec.InterfaceRef{{ClientID: "nodeA:if0"}, {ClientID: "nodeA:if1"}}}},
	}
	request := &rspec.Document{Links: []rspec.Link{{ClientID: "link1"}}}
	manifests := map[string][]byte{"urn:a": mustMarshal(t, manifestA)}

	first, err := Combine(reg, request, manifests, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Combine(reg, request, manifests, nil)
	if err != nil {
		t.Fatal(err)
	}
	b1, _ := rspec.Marshal(first)
	b2, _ := rspec.Marshal(second)
	if string(b1) != string(b2) {
		t.Error("expected Combine to be idempotent for identical inputs")
	}
}

func TestCombineMergesStitchingPathsAcrossAggregates(t *testing.T) {
	reg := model.NewRegistry()
	a := &model.Aggregate{URN: "urn:a", DependsOn: map[string]*model.Aggregate{}}
	b := &model.Aggregate{URN: "urn:b", DependsOn: map[string]*model.Aggregate{}}
	if err := reg.AddAggregate(a); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddAggregate(b); err != nil {
		t.Fatal(err)
	}

	manifestA := &rspec.Document{
		Stitching: &rspec.Stitching{Paths: []rspec.Path{{ID: "link1", Hops: []rspec.Hop{{ID: "urn:a:hop1", SuggestedVLANRange: "100"}}}}},
	}
	manifestB := &rspec.Document{
		Stitching: &rspec.Stitching{Paths: []rspec.Path{{ID: "link1", Hops: []rspec.Hop{{ID: "urn:b:hop1", SuggestedVLANRange: "100"}}}}},
	}
	request := &rspec.Document{Links: []rspec.Link{{ClientID: "link1", InterfaceRef: []rspec.InterfaceRef{{ClientID: "x"}, {ClientID: "y"}}}}}
	manifests := map[string][]byte{"urn:a": mustMarshal(t, manifestA), "urn:b": mustMarshal(t, manifestB)}

	out, err := Combine(reg, request, manifests, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Stitching == nil || len(out.Stitching.Paths) != 1 {
		t.Fatalf("expected one merged path, got %+v", out.Stitching)
	}
	if len(out.Stitching.Paths[0].Hops) != 2 {
		t.Fatalf("expected both hops merged into the path, got %d", len(out.Stitching.Paths[0].Hops))
	}
}

func TestCombineTemplatesTypeFromLastCompletedAggregate(t *testing.T) {
	reg := model.NewRegistry()
	a := &model.Aggregate{URN: "urn:a", DependsOn: map[string]*model.Aggregate{}}
	b := &model.Aggregate{URN: "urn:b", DependsOn: map[string]*model.Aggregate{}}
	if err := reg.AddAggregate(a); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddAggregate(b); err != nil {
		t.Fatal(err)
	}

	manifestA := &rspec.Document{Type: "geni.net/resources/rspec/3"}
	manifestB := &rspec.Document{Type: "geni.net/resources/rspec/3"}
	request := &rspec.Document{Type: "request"}
	manifests := map[string][]byte{
		"urn:a": mustMarshal(t, manifestA),
		"urn:b": mustMarshal(t, manifestB),
	}

	out, err := Combine(reg, request, manifests, b)
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != manifestB.Type {
		t.Errorf("expected combined manifest's Type templated from the last-completed aggregate, got %q", out.Type)
	}
}

func TestCombineFallsBackToRequestTypeWithNoLastCompleted(t *testing.T) {
	reg := model.NewRegistry()
	a := &model.Aggregate{URN: "urn:a", DependsOn: map[string]*model.Aggregate{}}
	if err := reg.AddAggregate(a); err != nil {
		t.Fatal(err)
	}
	manifestA := &rspec.Document{Type: "geni.net/resources/rspec/3"}
	request := &rspec.Document{Type: "request"}
	manifests := map[string][]byte{"urn:a": mustMarshal(t, manifestA)}

	out, err := Combine(reg, request, manifests, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != request.Type {
		t.Errorf("expected combined manifest's Type to fall back to the request's, got %q", out.Type)
	}
}
