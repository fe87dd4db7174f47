// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package model

import (
	"testing"

	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/vlan"
)

func TestAddDependencyDerivesAggregateEdges(t *testing.T) {
	r := NewRegistry()
	a := &Aggregate{URN: "urn:a", DependsOn: map[string]*Aggregate{}}
	b := &Aggregate{URN: "urn:b", DependsOn: map[string]*Aggregate{}}
	if err := r.AddAggregate(a); err != nil {
		t.Fatal(err)
	}
	if err := r.AddAggregate(b); err != nil {
		t.Fatal(err)
	}

	hopA := &Hop{URN: "urn:a:hop1", Aggregate: a}
	hopB := &Hop{URN: "urn:b:hop1", Aggregate: b}
	r.AddHop(hopA)
	r.AddHop(hopB)
	r.AddDependency(hopA, hopB)

	if _, ok := a.DependsOn["urn:b"]; !ok {
		t.Fatal("expected aggregate a to depend on b")
	}
	if err := r.MaterializeTransitiveClosure(); err != nil {
		t.Fatalf("unexpected cycle error: %v", err)
	}
}

func TestMaterializeTransitiveClosureDetectsCycle(t *testing.T) {
	r := NewRegistry()
	a := &Aggregate{URN: "urn:a", DependsOn: map[string]*Aggregate{}}
	b := &Aggregate{URN: "urn:b", DependsOn: map[string]*Aggregate{}}
	r.AddAggregate(a)
	r.AddAggregate(b)
	a.DependsOn["urn:b"] = b
	b.DependsOn["urn:a"] = a

	err := r.MaterializeTransitiveClosure()
	if err == nil {
		t.Fatal("expected dependency cycle error")
	}
	if errors.GetKind(err) != errors.KindDependencyCycle {
		t.Errorf("expected KindDependencyCycle, got %v", errors.GetKind(err))
	}
}

func TestCarryForwardRoundTrip(t *testing.T) {
	r1 := NewRegistry()
	a1 := &Aggregate{URN: "urn:a", DependsOn: map[string]*Aggregate{}, Family: FamilyOrca, UserRequested: true, APIVersion: "2"}
	r1.AddAggregate(a1)
	h1 := &Hop{URN: "urn:a:hop1", Aggregate: a1}
	unavailable, _ := vlan.Parse("100-105")
	h1.VlansUnavailable = unavailable
	r1.AddHop(h1)

	snap := r1.SnapshotForCarryForward()

	r2 := NewRegistry()
	a2 := &Aggregate{URN: "urn:a", DependsOn: map[string]*Aggregate{}}
	r2.AddAggregate(a2)
	h2 := &Hop{URN: "urn:a:hop1", Aggregate: a2}
	r2.AddHop(h2)

	if err := ApplyCarryForward(r2, snap); err != nil {
		t.Fatalf("ApplyCarryForward: %v", err)
	}
	if a2.Family != FamilyOrca || !a2.UserRequested || a2.APIVersion != "2" {
		t.Errorf("aggregate fields not carried forward: %+v", a2)
	}
	if h2.VlansUnavailable.String() != "100-105" {
		t.Errorf("hop vlans_unavailable not carried forward: %s", h2.VlansUnavailable.String())
	}
}

func TestReservedRequiresManifestDoc(t *testing.T) {
	a := &Aggregate{State: StateReserved}
	if a.Reserved() {
		t.Fatal("aggregate without a manifest document must not report Reserved")
	}
	a.ManifestDoc = []byte("<manifest/>")
	if !a.Reserved() {
		t.Fatal("aggregate with state RESERVED and a manifest document must report Reserved")
	}
}
