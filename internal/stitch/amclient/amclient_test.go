// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package amclient

import (
	"testing"

	"grimm.is/stitcher/internal/stitch/model"
)

func TestClassifyFamily(t *testing.T) {
	cases := []struct {
		types []string
		want  model.Family
	}{
		{[]string{"protogeni"}, model.FamilyProtoGENI},
		{[]string{"orca"}, model.FamilyOrca},
		{[]string{"dcn"}, model.FamilyDCN},
		{[]string{"something-else"}, model.FamilyUnknown},
	}
	for _, c := range cases {
		got := ClassifyFamily(VersionInfo{AMType: c.types})
		if got != c.want {
			t.Errorf("ClassifyFamily(%v) = %v, want %v", c.types, got, c.want)
		}
	}
}

func TestSupportsAPIv2(t *testing.T) {
	if SupportsAPIv2(VersionInfo{APIVersions: map[string]string{"1": "url"}}) {
		t.Error("v1-only aggregate should not report APIv2 support")
	}
	if !SupportsAPIv2(VersionInfo{APIVersions: map[string]string{"1": "url", "2": "url2"}}) {
		t.Error("aggregate advertising v2 should report support")
	}
}

func TestClassifyReserveFailurePrefersStructuredCode(t *testing.T) {
	got := ClassifyReserveFailure(model.FamilyProtoGENI, ErrorKindBusyTransient, "vlan tag 100 not available")
	if got != ErrorKindBusyTransient {
		t.Errorf("expected structured code to win, got %v", got)
	}
}

func TestClassifyReserveFailureFallsBackToRegexPerFamily(t *testing.T) {
	got := ClassifyReserveFailure(model.FamilyDCN, ErrorKindNone, "VLAN tag 120 not available on this path")
	if got != ErrorKindVLANUnavailable {
		t.Errorf("expected regex fallback to classify as VLAN unavailable, got %v", got)
	}
}

func TestClassifyReserveFailureUnrecognizedMessageIsMalformed(t *testing.T) {
	got := ClassifyReserveFailure(model.FamilyOrca, ErrorKindNone, "completely unrelated failure text")
	if got != ErrorKindMalformed {
		t.Errorf("expected malformed fallback, got %v", got)
	}
}
