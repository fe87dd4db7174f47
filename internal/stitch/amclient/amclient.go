// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package amclient is the aggregate manager RPC contract: getversion,
// reserve, and delete, plus the error-kind classification the reservation
// FSM needs to decide its next transition. The wire transport (GENI AM API
// XML-RPC in the reference deployment) is an out-of-scope collaborator —
// Client is an interface here; this package owns only the vocabulary both
// sides share and the structured-first/regex-fallback error classification
// policy described in the source's open questions.
package amclient

import (
	"context"
	"regexp"

	"grimm.is/stitcher/internal/stitch/model"
)

// ErrorKind classifies a reserve() failure for the reservation FSM.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindVLANUnavailable
	ErrorKindBusyTransient
	ErrorKindPermission
	ErrorKindMalformed
	ErrorKindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindVLANUnavailable:
		return "VLAN_UNAVAILABLE"
	case ErrorKindBusyTransient:
		return "BUSY_TRANSIENT"
	case ErrorKindPermission:
		return "PERMISSION"
	case ErrorKindMalformed:
		return "MALFORMED"
	case ErrorKindTimeout:
		return "TIMEOUT"
	default:
		return "NONE"
	}
}

// VersionInfo is getversion's result.
type VersionInfo struct {
	AMType      []string
	APIVersions map[string]string // api version -> endpoint URL
}

// ReserveError carries the classified failure from a reserve() call,
// including which hops and tags were rejected when the kind is
// ErrorKindVLANUnavailable.
type ReserveError struct {
	Kind          ErrorKind
	Message       string
	OffendingHops []string
	OffendingTags []int
}

func (e *ReserveError) Error() string { return e.Message }

// Client is the per-aggregate RPC contract.
type Client interface {
	GetVersion(ctx context.Context, url string) (VersionInfo, error)
	Reserve(ctx context.Context, url string, sliceCred string, req []byte) (manifest []byte, rerr *ReserveError, err error)
	Delete(ctx context.Context, url string, sliceName string) error
}

// ClassifyFamily maps getversion's am_type list to the reservation
// capability variant the core dispatches on (§4.5's "choose the variant at
// getversion time").
func ClassifyFamily(v VersionInfo) model.Family {
	for _, t := range v.AMType {
		switch t {
		case "dcn", "dragon":
			return model.FamilyDCN
		case "orca":
			return model.FamilyOrca
		case "protogeni", "pg":
			return model.FamilyProtoGENI
		}
	}
	return model.FamilyUnknown
}

// SupportsAPIv2 reports whether v advertises API version 2, which the core
// requires (v1-only aggregates are rejected outright per §4.5).
func SupportsAPIv2(v VersionInfo) bool {
	_, ok := v.APIVersions["2"]
	return ok
}

// familyVLANUnavailablePatterns gives each aggregate family's
// regex fallback for recognizing a VLAN-unavailable condition from a free-text
// error message, used only when the aggregate didn't return a structured
// error code (see ClassifyReserveFailure).
var familyVLANUnavailablePatterns = map[model.Family]*regexp.Regexp{
	model.FamilyDCN:       regexp.MustCompile(`(?i)vlan\s+tag\s+\d+\s+(not available|unavailable|in use)`),
	model.FamilyOrca:      regexp.MustCompile(`(?i)requested vlan .* (not available|already in use)`),
	model.FamilyProtoGENI: regexp.MustCompile(`(?i)no vlan (tag )?available|vlan.*unavailable`),
}

// ClassifyReserveFailure resolves the ErrorKind for a failed reserve() call.
// Structured codes (when structuredKind != ErrorKindNone, i.e. the
// aggregate told us explicitly) always take precedence; only when the
// aggregate gave us nothing but a message do we fall back to the family's
// regex.
func ClassifyReserveFailure(family model.Family, structuredKind ErrorKind, message string) ErrorKind {
	if structuredKind != ErrorKindNone {
		return structuredKind
	}
	if pattern, ok := familyVLANUnavailablePatterns[family]; ok && pattern.MatchString(message) {
		return ErrorKindVLANUnavailable
	}
	return ErrorKindMalformed
}
