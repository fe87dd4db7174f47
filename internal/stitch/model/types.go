// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package model holds the in-memory graph the stitcher builds from a
// PCS-expanded request: hops, paths, and aggregates, wired together by the
// dependency edges the workflow ingester derives.
package model

import "grimm.is/stitcher/internal/vlan"

// Family classifies an aggregate by its reservation RPC dialect. The core
// doesn't implement any family's wire protocol itself (that's amclient's
// job) but needs to know which family it's talking to: DCN aggregates pause
// between outer-loop cycles differently, and orca-based aggregates support
// the dual ExoSM/local URL split.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyDCN
	FamilyOrca
	FamilyProtoGENI
)

func (f Family) String() string {
	switch f {
	case FamilyDCN:
		return "dcn"
	case FamilyOrca:
		return "orca"
	case FamilyProtoGENI:
		return "protogeni"
	default:
		return "unknown"
	}
}

// State is an aggregate's position in the reservation FSM.
type State int

const (
	StateReady State = iota
	StateSubmitting
	StateReserved
	StateVLANUnavailable
	StateRecoverableFailure
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateSubmitting:
		return "SUBMITTING"
	case StateReserved:
		return "RESERVED"
	case StateVLANUnavailable:
		return "VLAN_UNAVAILABLE"
	case StateRecoverableFailure:
		return "RECOVERABLE_FAILURE"
	case StateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s ends a single submission attempt (the launcher
// stops waiting on this aggregate and recomputes readiness).
func (s State) Terminal() bool {
	switch s {
	case StateReserved, StateFatal:
		return true
	default:
		return false
	}
}

// Hop is one end of one link at one aggregate on one path.
type Hop struct {
	URN string

	Path      *Path
	Aggregate *Aggregate

	// RequestedRange is what tags are acceptable to the user's request.
	RequestedRange vlan.Set
	// SuggestedTag is the single tag the client proposes to the aggregate,
	// possibly vlan.Any().
	SuggestedTag vlan.Set
	// ManifestTag is the tag the aggregate actually assigned, set only
	// after a successful reservation at this hop's aggregate.
	ManifestTag    int
	HasManifestTag bool
	// ManifestRange is what the aggregate says remains acceptable after
	// reservation.
	ManifestRange vlan.Set

	// ImportFrom is the hop whose manifest tag this hop must adopt, or nil
	// if this hop is free to choose its own tag.
	ImportFrom *Hop

	// VlansUnavailable accumulates tags rejected by the aggregate across
	// local retries and outer-loop cycles. Monotone non-decreasing for the
	// life of one outer-loop run.
	VlansUnavailable vlan.Set

	// ExcludeFromPCS marks a hop that should be omitted entirely from the
	// next PCS routing-profile options (rather than merely excluding tags).
	ExcludeFromPCS bool

	// DependsOn lists the other hops this hop's tag assignment depends on,
	// in the order the workflow ingester added them.
	DependsOn []*Hop
}

// ClearManifest resets everything a reservation produced, used when a hop's
// aggregate is deleted after a fatal or escalated outer-loop cycle.
func (h *Hop) ClearManifest() {
	h.HasManifestTag = false
	h.ManifestTag = 0
	h.ManifestRange = vlan.Set{}
}

// CandidateRange is the set of tags this hop may still propose: requested
// minus whatever has already been rejected.
func (h *Hop) CandidateRange() vlan.Set {
	return h.RequestedRange.Difference(h.VlansUnavailable)
}

// Path is an ordered list of hops forming one end-to-end circuit,
// identified by the request's link id.
type Path struct {
	LinkID string
	Hops   []*Hop
}

// Aggregate is a reservation target: one site the stitcher must contact.
type Aggregate struct {
	URN        string
	Synonyms   []string
	URL        string
	AltURL     string // e.g. an orca aggregate's ExoSM endpoint
	IsExoSM    bool   // true if URL currently points at the shared ExoSM endpoint
	Family     Family
	APIVersion string

	// UserRequested marks an aggregate the user's own request named
	// directly, as opposed to one the PCS introduced as an intermediate
	// stitching hop.
	UserRequested bool

	Hops []*Hop

	// DependsOn is the set of aggregates this one's hops depend on, keyed
	// by URN for O(1) membership tests.
	DependsOn map[string]*Aggregate

	State            State
	AllocateAttempts int

	// ManifestDoc is the raw manifest document returned by a successful
	// reservation. Cleared on delete.
	ManifestDoc []byte
}

// Reserved reports whether a is in state RESERVED, which per the data
// model's invariant 6 is equivalent to holding a manifest document.
func (a *Aggregate) Reserved() bool {
	return a.State == StateReserved && a.ManifestDoc != nil
}

// DependenciesSatisfied reports whether every aggregate a depends on is
// RESERVED.
func (a *Aggregate) DependenciesSatisfied() bool {
	for _, dep := range a.DependsOn {
		if !dep.Reserved() {
			return false
		}
	}
	return true
}

// ImportsSatisfied reports whether every hop at a that imports from another
// hop has had its source hop assigned a manifest tag.
func (a *Aggregate) ImportsSatisfied() bool {
	for _, h := range a.Hops {
		if h.ImportFrom != nil && !h.ImportFrom.HasManifestTag {
			return false
		}
	}
	return true
}

// ClearReservation resets a's reservation outcome (manifest, state, and its
// hops' manifest tags) without touching the fields the outer loop carries
// forward between PCS cycles (VlansUnavailable, Family, UserRequested,
// APIVersion).
func (a *Aggregate) ClearReservation() {
	a.ManifestDoc = nil
	a.State = StateReady
	a.AllocateAttempts = 0
	for _, h := range a.Hops {
		h.ClearManifest()
	}
}
