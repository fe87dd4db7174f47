// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package orchestrator implements the stitcher's outer loop: bound the
// number of path-computation service re-invocations, carry learned VLAN
// exclusions and aggregate type information forward between cycles, drive
// the launcher once per cycle, and on a path-level escalation tear down
// and retry. On success it hands the reserved registry to
// internal/stitch/manifest for combined-manifest construction.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"grimm.is/stitcher/internal/config"
	"grimm.is/stitcher/internal/ctlplane"
	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/logging"
	"grimm.is/stitcher/internal/metrics"
	"grimm.is/stitcher/internal/rspec"
	"grimm.is/stitcher/internal/stitch"
	"grimm.is/stitcher/internal/stitch/amclient"
	"grimm.is/stitcher/internal/stitch/cred"
	"grimm.is/stitcher/internal/stitch/debugdump"
	"grimm.is/stitcher/internal/stitch/launcher"
	"grimm.is/stitcher/internal/stitch/manifest"
	"grimm.is/stitcher/internal/stitch/model"
	"grimm.is/stitcher/internal/stitch/reservation"
	"grimm.is/stitcher/internal/stitch/requestnorm"
	"grimm.is/stitcher/internal/stitch/scs"
	"grimm.is/stitcher/internal/stitch/workflow"
	"grimm.is/stitcher/internal/vlan"
)

// DefaultInterCyclePause is the backoff between outer-loop cycles after a
// VLAN escalation, for non-DCN aggregates.
const DefaultInterCyclePause = 5 * time.Second

// DefaultDCNPostDeletePause is the longer pause DCN aggregates need to free
// resources before a retry is likely to succeed.
const DefaultDCNPostDeletePause = 30 * time.Second

// Outcome is the final result of one Run call.
type Outcome struct {
	// Manifest is the combined manifest document, set only on success.
	Manifest *rspec.Document
	// ReservedAggregates lists the URL/URN of every aggregate reserved, in
	// registry order, for the amlist.txt artifact.
	ReservedAggregates []AggregateRecord
	// Cycles is how many ComputePath calls were issued.
	Cycles int
	// CorrelationID identifies this run in every log line and debug dump it
	// produced, for tying them back together after the fact.
	CorrelationID string
	// Err is the surfaced fatal error, if the run did not succeed.
	Err error
}

// AggregateRecord names one reserved aggregate for the amlist.txt output.
type AggregateRecord struct {
	URL string
	URN string
}

// Orchestrator drives the outer loop for one slice request.
type Orchestrator struct {
	Config   *config.Config
	SCS      *scs.Driver
	AMClient amclient.Client
	Cred     cred.Source
	Logger   *logging.Logger
	Metrics  *metrics.Registry

	// Status, if set, is kept up to date with the current cycle and
	// registry so a concurrent ctlplane.Client can observe run progress.
	Status *ctlplane.Server

	// DebugDir, if set, receives one cycle-<n>-graph.yaml dump of the
	// hop/aggregate graph per outer-loop cycle.
	DebugDir string

	MaxConcurrent int

	InterCyclePause    time.Duration
	DCNPostDeletePause time.Duration

	// sleep and versionProbe are overridable in tests.
	sleep        func(time.Duration)
	versionProbe map[string]amclient.VersionInfo
}

// New returns an Orchestrator with default pause intervals.
func New(cfg *config.Config, scsDriver *scs.Driver, amClient amclient.Client, credSource cred.Source, logger *logging.Logger, metricsReg *metrics.Registry) *Orchestrator {
	return &Orchestrator{
		Config:             cfg,
		SCS:                scsDriver,
		AMClient:           amClient,
		Cred:               credSource,
		Logger:             logger,
		Metrics:            metricsReg,
		InterCyclePause:    DefaultInterCyclePause,
		DCNPostDeletePause: DefaultDCNPostDeletePause,
		sleep:              time.Sleep,
		versionProbe:       make(map[string]amclient.VersionInfo),
	}
}

// Run drives request through must-call-PCS normalisation, then the outer
// loop, to a final manifest or a surfaced fatal error.
func (o *Orchestrator) Run(ctx context.Context, sliceURN string, request *rspec.Document) Outcome {
	correlationID := uuid.New().String()
	if o.Logger != nil {
		o.Logger = o.Logger.With("correlation_id", correlationID, "slice", sliceURN)
	}

	if o.Config.FixedEndpoint {
		if err := requestnorm.InsertFixedEndpoint(request, o.Config.DefaultCapacityBPS); err != nil {
			return Outcome{CorrelationID: correlationID, Err: err}
		}
	}
	if err := requestnorm.Normalize(request, o.Config.DefaultCapacityBPS); err != nil {
		return Outcome{CorrelationID: correlationID, Err: err}
	}

	must, err := requestnorm.MustCallPCS(request)
	if err != nil {
		return Outcome{CorrelationID: correlationID, Err: err}
	}
	if !must {
		out := o.singleAggregatePassthrough(ctx, sliceURN, request)
		out.CorrelationID = correlationID
		return out
	}

	var priorErr error
	var carry map[string]any
	var lastReg *model.Registry

	for cycle := 1; cycle <= o.maxSCSCalls(); cycle++ {
		if o.Metrics != nil {
			o.Metrics.OuterLoopCycles.Inc()
		}
		if o.Status != nil {
			o.Status.SetCycle(sliceURN, cycle, o.maxSCSCalls())
		}
		if o.Logger != nil {
			o.Logger.Info("outer loop cycle starting", "cycle", cycle, "max_cycles", o.maxSCSCalls())
		}

		options := scs.Options{}
		if lastReg != nil {
			options = scs.BuildOptions(lastReg, o.Config.ExcludeHop, o.Config.IncludeHop)
		}

		result, err := o.SCS.ComputePath(ctx, sliceURN, request, options)
		if o.Metrics != nil {
			o.Metrics.PCSCalls.Inc()
		}
		if err != nil {
			if o.Metrics != nil {
				o.Metrics.PCSFailures.Inc()
			}
			return Outcome{Cycles: cycle, CorrelationID: correlationID, Err: errors.Compose(priorErr, err)}
		}

		reg := model.NewRegistry()
		if err := buildGraphFromRequest(reg, result.ExpandedRequest); err != nil {
			return Outcome{Cycles: cycle, CorrelationID: correlationID, Err: errors.Compose(priorErr, err)}
		}
		if err := workflow.NewParser(reg).Parse(result.Workflow); err != nil {
			return Outcome{Cycles: cycle, CorrelationID: correlationID, Err: errors.Compose(priorErr, err)}
		}
		if carry != nil {
			if err := model.ApplyCarryForward(reg, carry); err != nil {
				return Outcome{Cycles: cycle, CorrelationID: correlationID, Err: errors.Compose(priorErr, err)}
			}
		}

		if err := o.resolveAggregateURLs(reg); err != nil {
			return Outcome{Cycles: cycle, CorrelationID: correlationID, Err: errors.Compose(priorErr, err)}
		}
		if err := o.decorateAggregates(ctx, reg); err != nil {
			return Outcome{Cycles: cycle, CorrelationID: correlationID, Err: errors.Compose(priorErr, err)}
		}

		if o.Status != nil {
			o.Status.SetRegistry(reg)
		}
		if o.DebugDir != "" {
			if err := debugdump.WriteCycle(o.DebugDir, correlationID, cycle, reg); err != nil && o.Logger != nil {
				o.Logger.Warn("debug dump failed", "cycle", cycle, "error", err)
			}
		}

		if o.Config.NoReservation {
			return Outcome{Manifest: result.ExpandedRequest, Cycles: cycle, CorrelationID: correlationID}
		}

		eng := reservation.NewEngine(o.AMClient, o.Cred, o.buildAggregateRequest, o.Logger, o.Metrics)
		lnch := launcher.NewLauncher(eng, o.Logger, o.MaxConcurrent)
		res := lnch.Run(ctx, sliceURN, reg)

		if res.Err != nil {
			o.deleteReserved(ctx, reg)
			return Outcome{Cycles: cycle, CorrelationID: correlationID, Err: errors.Compose(priorErr, res.Err)}
		}

		if res.Escalate {
			o.deleteReserved(ctx, reg)
			priorErr = errors.Compose(priorErr, res.Err)
			carry = reg.SnapshotForCarryForward()
			lastReg = reg
			o.pause(reg)
			continue
		}

		// res.Success: every aggregate RESERVED.
		manifests := make(map[string][]byte, len(reg.Aggregates()))
		var records []AggregateRecord
		for _, a := range reg.Aggregates() {
			if a.ManifestDoc != nil {
				manifests[a.URN] = a.ManifestDoc
				records = append(records, AggregateRecord{URL: a.URL, URN: a.URN})
			}
		}
		combined, err := manifest.Combine(reg, request, manifests, res.LastCompleted)
		if err != nil {
			return Outcome{Cycles: cycle, CorrelationID: correlationID, Err: errors.Compose(priorErr, err)}
		}
		return Outcome{Manifest: combined, ReservedAggregates: records, Cycles: cycle, CorrelationID: correlationID}
	}

	return Outcome{Cycles: o.maxSCSCalls(), CorrelationID: correlationID, Err: errors.Compose(priorErr, errors.Errorf(errors.KindPCSFailure, "exceeded maximum of %d path-computation service calls", o.maxSCSCalls()))}
}

func (o *Orchestrator) maxSCSCalls() int {
	if o.Config.MaxSCSCalls > 0 {
		return o.Config.MaxSCSCalls
	}
	return config.DefaultMaxSCSCalls
}

// singleAggregatePassthrough handles §8's S1 scenario: a request with no
// link crossing aggregates never needs the PCS. The sole aggregate is
// reserved directly and its manifest passed through unchanged.
func (o *Orchestrator) singleAggregatePassthrough(ctx context.Context, sliceURN string, request *rspec.Document) Outcome {
	if len(request.Nodes) == 0 {
		return Outcome{Err: errors.New(errors.KindInputMalformed, "request has no nodes")}
	}
	cmURN := request.Nodes[0].ComponentManagerID
	url, _ := o.Config.URLForURN([]string{cmURN})

	reg := model.NewRegistry()
	agg := &model.Aggregate{URN: cmURN, URL: url, UserRequested: true, DependsOn: map[string]*model.Aggregate{}}
	if err := reg.AddAggregate(agg); err != nil {
		return Outcome{Err: err}
	}
	if err := o.resolveAggregateURLs(reg); err != nil {
		return Outcome{Err: err}
	}
	if err := o.decorateAggregates(ctx, reg); err != nil {
		return Outcome{Err: err}
	}

	if o.Config.NoReservation {
		return Outcome{Manifest: request}
	}

	build := func(*model.Aggregate) (*rspec.Document, error) { return request, nil }
	eng := reservation.NewEngine(o.AMClient, o.Cred, build, o.Logger, o.Metrics)
	out := eng.Submit(ctx, sliceURN, agg)
	if out.Err != nil {
		return Outcome{Err: out.Err}
	}

	doc, err := rspec.Unmarshal(agg.ManifestDoc)
	if err != nil {
		return Outcome{Err: errors.Wrap(err, errors.KindAggregateFatal, "parsing single-aggregate manifest")}
	}
	return Outcome{Manifest: doc, ReservedAggregates: []AggregateRecord{{URL: agg.URL, URN: agg.URN}}, Cycles: 0}
}

// resolveAggregateURLs fills in a URL for every aggregate the workflow
// named but didn't supply one for, from configuration nicknames, then from
// the PCS's own aggregate list. A still-missing URL is a fatal input error
// (the source requires a URL from configuration, credentials, or the
// registry before any RPC is attempted).
func (o *Orchestrator) resolveAggregateURLs(reg *model.Registry) error {
	return stitch.ResolveURLs(context.Background(), o.Config, o.SCS, reg)
}

// decorateAggregates issues one getversion probe per aggregate per
// process (cached across outer-loop cycles by URN), classifying family and
// API version and rejecting v1-only aggregates outright.
func (o *Orchestrator) decorateAggregates(ctx context.Context, reg *model.Registry) error {
	for _, a := range reg.Aggregates() {
		info, ok := o.versionProbe[a.URN]
		if !ok {
			var err error
			info, err = o.AMClient.GetVersion(ctx, a.URL)
			if err != nil {
				return errors.Wrapf(err, errors.KindAggregateFatal, "getversion failed for aggregate %s", a.URN)
			}
			o.versionProbe[a.URN] = info
		}
		if !amclient.SupportsAPIv2(info) {
			return errors.Errorf(errors.KindAggregateFatal, "aggregate %s does not advertise API v2", a.URN)
		}
		a.Family = amclient.ClassifyFamily(info)
		a.APIVersion = "2"
	}
	stitch.ApplyExoSMPolicy(o.Config, reg)
	return nil
}

// buildAggregateRequest composes the per-aggregate reservation request
// document from the hops currently attached to agg, grouped by path.
func (o *Orchestrator) buildAggregateRequest(agg *model.Aggregate) (*rspec.Document, error) {
	byPath := make(map[string][]rspec.Hop)
	var pathOrder []string
	for _, h := range agg.Hops {
		if h.Path == nil {
			continue
		}
		if _, ok := byPath[h.Path.LinkID]; !ok {
			pathOrder = append(pathOrder, h.Path.LinkID)
		}
		byPath[h.Path.LinkID] = append(byPath[h.Path.LinkID], rspec.Hop{
			ID:                 h.URN,
			LinkID:             h.Path.LinkID,
			SuggestedVLANRange: h.SuggestedTag.String(),
		})
	}
	sort.Strings(pathOrder)

	doc := &rspec.Document{Stitching: &rspec.Stitching{}}
	for _, linkID := range pathOrder {
		doc.Stitching.Paths = append(doc.Stitching.Paths, rspec.Path{ID: linkID, Hops: byPath[linkID]})
	}
	return doc, nil
}

// deleteReserved issues a best-effort delete for every RESERVED aggregate
// in reg, collecting but not propagating failures (KindDeleteFailure never
// masks the primary error).
func (o *Orchestrator) deleteReserved(ctx context.Context, reg *model.Registry) {
	for _, a := range reg.Aggregates() {
		if !a.Reserved() {
			continue
		}
		if err := o.AMClient.Delete(ctx, a.URL, a.URN); err != nil {
			if o.Metrics != nil {
				o.Metrics.DeleteFailures.Inc()
			}
			if o.Logger != nil {
				o.Logger.Warn("delete failed", "aggregate", a.URN, "error", err)
			}
		}
		a.ClearReservation()
	}
}

// pause sleeps the inter-cycle backoff, using the longer DCN-aware
// interval if any aggregate in reg is a DCN-family aggregate.
func (o *Orchestrator) pause(reg *model.Registry) {
	d := o.InterCyclePause
	for _, a := range reg.Aggregates() {
		if a.Family == model.FamilyDCN {
			d = o.DCNPostDeletePause
			break
		}
	}
	o.sleepFn()(d)
}

func (o *Orchestrator) sleepFn() func(time.Duration) {
	if o.sleep != nil {
		return o.sleep
	}
	return time.Sleep
}

// buildGraphFromRequest registers one model.Path and model.Hop per
// stitching path/hop in the expanded request, with RequestedRange/
// SuggestedTag parsed from vlanRangeAvailability/suggestedVLANRange
// (empty or "any" meaning ANY).
func buildGraphFromRequest(reg *model.Registry, doc *rspec.Document) error {
	if doc.Stitching == nil {
		return nil
	}
	for _, p := range doc.Stitching.Paths {
		path := &model.Path{LinkID: p.ID}
		reg.AddPath(path)
		for _, rh := range p.Hops {
			requested, err := parseVLANField(rh.VLANRangeAvailability)
			if err != nil {
				return errors.Wrapf(err, errors.KindInputMalformed, "hop %s vlanRangeAvailability", rh.ID)
			}
			suggested, err := parseVLANField(rh.SuggestedVLANRange)
			if err != nil {
				return errors.Wrapf(err, errors.KindInputMalformed, "hop %s suggestedVLANRange", rh.ID)
			}
			hop := &model.Hop{
				URN:            rh.ID,
				Path:           path,
				RequestedRange: requested,
				SuggestedTag:   suggested,
				ExcludeFromPCS: false,
			}
			reg.AddHop(hop)
		}
	}
	return nil
}

func parseVLANField(text string) (vlan.Set, error) {
	if text == "" {
		return vlan.Any(), nil
	}
	return vlan.Parse(text)
}
