// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistryExposesCounters(t *testing.T) {
	r := NewRegistry()
	r.PCSCalls.Inc()
	r.AggregateAttempts.WithLabelValues("reserved").Inc()
	r.VLANConflictsLocal.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	for _, want := range []string{
		"stitcher_pcs_calls_total 1",
		`stitcher_aggregate_attempts_total{outcome="reserved"} 1`,
		"stitcher_vlan_conflicts_local_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}
