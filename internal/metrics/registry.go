// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes Prometheus counters for the stitching orchestrator:
// PCS call volume, per-aggregate reservation outcomes, and VLAN negotiation
// conflicts, mounted the same way the teacher mounts promhttp.Handler() on
// its own status API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every counter/gauge the orchestrator updates over the
// lifetime of one process. It is safe for concurrent use; the prometheus
// client library itself serializes updates per metric.
type Registry struct {
	reg *prometheus.Registry

	PCSCalls                  prometheus.Counter
	PCSFailures                prometheus.Counter
	AggregateAttempts          *prometheus.CounterVec // labeled by outcome
	VLANConflictsLocal         prometheus.Counter
	VLANConflictsEscalated     prometheus.Counter
	DeleteFailures             prometheus.Counter
	OuterLoopCycles            prometheus.Counter
	AggregatesInFlight         prometheus.Gauge
	ReservationDurationSeconds prometheus.Histogram
}

// NewRegistry builds a Registry with every metric registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		PCSCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stitcher_pcs_calls_total",
			Help: "Number of ComputePath calls issued to the path-computation service.",
		}),
		PCSFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stitcher_pcs_failures_total",
			Help: "Number of ComputePath calls that returned a fatal or timeout error.",
		}),
		AggregateAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stitcher_aggregate_attempts_total",
			Help: "Aggregate reservation attempts, labeled by the state each attempt ended in.",
		}, []string{"outcome"}),
		VLANConflictsLocal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stitcher_vlan_conflicts_local_total",
			Help: "VLAN rejections recovered by picking another local tag.",
		}),
		VLANConflictsEscalated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stitcher_vlan_conflicts_escalated_total",
			Help: "VLAN rejections that exhausted a hop's candidate set and escalated to the outer loop.",
		}),
		DeleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stitcher_delete_failures_total",
			Help: "Best-effort deletes of partial reservations that failed.",
		}),
		OuterLoopCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stitcher_outer_loop_cycles_total",
			Help: "Number of outer-loop PCS re-invocation cycles across all runs.",
		}),
		AggregatesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stitcher_aggregates_in_flight",
			Help: "Aggregates currently in the SUBMITTING state.",
		}),
		ReservationDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stitcher_reservation_duration_seconds",
			Help:    "Wall-clock time for a single aggregate reserve() RPC.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		r.PCSCalls, r.PCSFailures, r.AggregateAttempts, r.VLANConflictsLocal,
		r.VLANConflictsEscalated, r.DeleteFailures, r.OuterLoopCycles,
		r.AggregatesInFlight, r.ReservationDurationSeconds,
	)
	return r
}

// Handler returns the HTTP handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
