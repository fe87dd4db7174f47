// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package reservation implements the per-aggregate reservation state
// machine: READY -> SUBMITTING -> {RESERVED, VLAN_UNAVAILABLE,
// RECOVERABLE_FAILURE, FATAL}. One Engine drives one aggregate through
// exactly one submission attempt per Submit call; the launcher decides
// when an aggregate is ready and whether a returned outcome warrants
// another attempt.
package reservation

import (
	"context"
	"math"
	"strings"
	"time"

	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/logging"
	"grimm.is/stitcher/internal/metrics"
	"grimm.is/stitcher/internal/rspec"
	"grimm.is/stitcher/internal/stitch/amclient"
	"grimm.is/stitcher/internal/stitch/cred"
	"grimm.is/stitcher/internal/stitch/model"
	"grimm.is/stitcher/internal/vlan"
)

// DefaultMaxAllocateAttempts is the source's hardcoded local-retry cap.
const DefaultMaxAllocateAttempts = 3

// DefaultBackoffBase is the starting exponential backoff delay for a
// transient aggregate failure.
const DefaultBackoffBase = 2 * time.Second

// DefaultBackoffCap bounds the exponential backoff.
const DefaultBackoffCap = 30 * time.Second

// RequestBuilder composes the per-aggregate reservation request document
// from the hops currently attached to agg. Building that document from the
// broader user request is the caller's job (the orchestrator supplies its
// buildAggregateRequest); the engine only needs the result.
type RequestBuilder func(agg *model.Aggregate) (*rspec.Document, error)

// Engine drives aggregates through one submission attempt at a time.
type Engine struct {
	AMClient            amclient.Client
	Cred                cred.Source
	BuildRequest        RequestBuilder
	Logger              *logging.Logger
	Metrics             *metrics.Registry
	MaxAllocateAttempts int
	BackoffBase         time.Duration
	BackoffCap          time.Duration

	// sleep is overridable in tests so backoff doesn't slow the suite down.
	sleep func(time.Duration)
}

// NewEngine returns an Engine with the source's default retry/backoff
// constants.
func NewEngine(amClient amclient.Client, credSource cred.Source, build RequestBuilder, logger *logging.Logger, reg *metrics.Registry) *Engine {
	return &Engine{
		AMClient:            amClient,
		Cred:                credSource,
		BuildRequest:        build,
		Logger:              logger,
		Metrics:             reg,
		MaxAllocateAttempts: DefaultMaxAllocateAttempts,
		BackoffBase:         DefaultBackoffBase,
		BackoffCap:          DefaultBackoffCap,
		sleep:               time.Sleep,
	}
}

// Outcome is what one Submit call produces for the scheduler to apply to
// the shared graph. The scheduler (launcher) is the only goroutine that
// touches agg/hop fields outside of Submit itself; Submit is safe to run
// concurrently across independent aggregates because each call only
// mutates the one Aggregate (and its own hops) passed to it.
type Outcome struct {
	Aggregate *model.Aggregate
	// Escalate is set when a hop's candidate VLAN range was exhausted:
	// the launcher must halt and hand control back to the outer loop for
	// a PCS re-invocation with the accumulated exclusions.
	Escalate bool
	Err      error
}

// Submit runs exactly one submission attempt for agg, assumed already
// selected by the scheduler as READY with all dependencies RESERVED and
// all imported hops assigned. It mutates agg and its hops in place and
// returns the outcome for the scheduler to fold into the graph.
func (e *Engine) Submit(ctx context.Context, sliceURN string, agg *model.Aggregate) Outcome {
	agg.State = model.StateSubmitting
	agg.AllocateAttempts++

	if e.Metrics != nil {
		e.Metrics.AggregatesInFlight.Inc()
		defer func() {
			e.Metrics.AggregatesInFlight.Dec()
			e.Metrics.AggregateAttempts.WithLabelValues(strings.ToLower(agg.State.String())).Inc()
		}()
	}

	if err := e.assignSuggestedTags(agg); err != nil {
		if errors.GetKind(err) == errors.KindVLANUnavailableEscalated {
			agg.State = model.StateVLANUnavailable
			return Outcome{Aggregate: agg, Escalate: true, Err: err}
		}
		agg.State = model.StateFatal
		return Outcome{Aggregate: agg, Err: err}
	}

	req, err := e.BuildRequest(agg)
	if err != nil {
		agg.State = model.StateFatal
		return Outcome{Aggregate: agg, Err: errors.Wrapf(err, errors.KindAggregateFatal, "building reservation request for %s", agg.URN)}
	}

	sliceCred, err := e.Cred.SliceCredential(ctx, sliceURN)
	if err != nil {
		agg.State = model.StateFatal
		return Outcome{Aggregate: agg, Err: errors.Wrapf(err, errors.KindAggregateFatal, "resolving slice credential for %s", agg.URN)}
	}

	reqBytes, err := rspec.Marshal(req)
	if err != nil {
		agg.State = model.StateFatal
		return Outcome{Aggregate: agg, Err: errors.Wrapf(err, errors.KindAggregateFatal, "marshaling reservation request for %s", agg.URN)}
	}

	start := time.Now()
	manifestBytes, rerr, err := e.AMClient.Reserve(ctx, agg.URL, sliceCred, reqBytes)
	if e.Metrics != nil {
		e.Metrics.ReservationDurationSeconds.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		return e.handleTransportError(agg, err)
	}
	if rerr != nil {
		return e.handleReserveError(agg, rerr)
	}

	return e.handleSuccess(agg, manifestBytes)
}

// assignSuggestedTags implements the READY->SUBMITTING pre-submission step:
// imported hops adopt their parent's manifest tag and narrow their
// requested range to the parent's manifest range; free hops with an ANY
// suggestion pick deterministically from their candidate set.
func (e *Engine) assignSuggestedTags(agg *model.Aggregate) error {
	for _, h := range agg.Hops {
		if h.ImportFrom != nil {
			if !h.ImportFrom.HasManifestTag {
				return errors.Errorf(errors.KindAggregateFatal, "hop %s imports from %s which has no manifest tag yet", h.URN, h.ImportFrom.URN)
			}
			tag, err := vlan.New(h.ImportFrom.ManifestTag)
			if err != nil {
				return err
			}
			h.SuggestedTag = tag
			h.RequestedRange = h.RequestedRange.Intersect(h.ImportFrom.ManifestRange)
			continue
		}
		if h.SuggestedTag.IsAny() {
			tag, err := h.CandidateRange().PickLeast()
			if err != nil {
				return errors.Wrapf(err, errors.KindVLANUnavailableEscalated, "hop %s has no candidate tags remaining", h.URN)
			}
			set, err := vlan.New(tag)
			if err != nil {
				return err
			}
			h.SuggestedTag = set
		}
	}
	return nil
}

func (e *Engine) handleSuccess(agg *model.Aggregate, manifestBytes []byte) Outcome {
	doc, err := rspec.Unmarshal(manifestBytes)
	if err != nil {
		agg.State = model.StateFatal
		return Outcome{Aggregate: agg, Err: errors.Wrapf(err, errors.KindAggregateFatal, "parsing manifest from %s", agg.URN)}
	}
	if err := ExtractManifestTags(doc, agg); err != nil {
		agg.State = model.StateFatal
		return Outcome{Aggregate: agg, Err: err}
	}
	agg.ManifestDoc = manifestBytes
	agg.State = model.StateReserved
	return Outcome{Aggregate: agg}
}

func (e *Engine) handleReserveError(agg *model.Aggregate, rerr *amclient.ReserveError) Outcome {
	if rerr.Kind == amclient.ErrorKindVLANUnavailable {
		return e.handleVLANUnavailable(agg, rerr)
	}
	if rerr.Kind == amclient.ErrorKindBusyTransient {
		return e.handleTransient(agg, errors.New(errors.KindAggregateTransient, rerr.Message))
	}
	// Permission and Malformed are both immediately fatal.
	agg.State = model.StateFatal
	return Outcome{Aggregate: agg, Err: errors.Errorf(errors.KindAggregateFatal, "aggregate %s: %s (%s)", agg.URN, rerr.Message, rerr.Kind)}
}

func (e *Engine) handleVLANUnavailable(agg *model.Aggregate, rerr *amclient.ReserveError) Outcome {
	offenders := make(map[string]*model.Hop, len(rerr.OffendingHops))
	for _, urn := range rerr.OffendingHops {
		for _, h := range agg.Hops {
			if h.URN == urn {
				offenders[urn] = h
			}
		}
	}
	tagSet, err := vlan.New(rerr.OffendingTags...)
	if err != nil {
		agg.State = model.StateFatal
		return Outcome{Aggregate: agg, Err: errors.Wrap(err, errors.KindAggregateFatal, "malformed offending-tag list from aggregate")}
	}

	escalate := false
	for _, h := range offenders {
		h.VlansUnavailable = h.VlansUnavailable.Union(tagSet)
		if h.ImportFrom == nil {
			// Drop the rejected suggestion so the next attempt picks afresh
			// from the narrowed candidate range.
			h.SuggestedTag = vlan.Any()
		}
		if h.CandidateRange().IsEmpty() {
			escalate = true
		}
	}

	if escalate {
		agg.State = model.StateVLANUnavailable
		if e.Metrics != nil {
			e.Metrics.VLANConflictsEscalated.Inc()
		}
		return Outcome{
			Aggregate: agg,
			Escalate:  true,
			Err:       errors.Errorf(errors.KindVLANUnavailableEscalated, "aggregate %s: no candidate VLAN tags remain for one or more hops", agg.URN),
		}
	}

	if e.Metrics != nil {
		e.Metrics.VLANConflictsLocal.Inc()
	}
	agg.State = model.StateReady
	return Outcome{Aggregate: agg}
}

func (e *Engine) handleTransient(agg *model.Aggregate, cause error) Outcome {
	if agg.AllocateAttempts >= e.MaxAllocateAttempts {
		agg.State = model.StateFatal
		return Outcome{Aggregate: agg, Err: errors.Wrapf(cause, errors.KindAggregateFatal, "aggregate %s exceeded %d allocate attempts", agg.URN, e.MaxAllocateAttempts)}
	}
	agg.State = model.StateRecoverableFailure
	delay := backoffDelay(e.BackoffBase, e.BackoffCap, agg.AllocateAttempts)
	e.sleepFn()(delay)
	agg.State = model.StateReady
	return Outcome{Aggregate: agg}
}

func (e *Engine) handleTransportError(agg *model.Aggregate, err error) Outcome {
	return e.handleTransient(agg, errors.Wrap(err, errors.KindAggregateTransient, "aggregate RPC transport error"))
}

func (e *Engine) sleepFn() func(time.Duration) {
	if e.sleep != nil {
		return e.sleep
	}
	return time.Sleep
}

// backoffDelay computes the exponential backoff for the given attempt
// count (1-indexed), capped at cap.
func backoffDelay(base, capDelay time.Duration, attempt int) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d > capDelay {
		return capDelay
	}
	return d
}

// ExtractManifestTags reads agg's manifest document and records, for each
// of agg's hops, the tag the aggregate actually assigned and the residual
// range it reports as still available (data model invariant 4).
func ExtractManifestTags(manifest *rspec.Document, agg *model.Aggregate) error {
	for _, h := range agg.Hops {
		if h.Path == nil {
			continue
		}
		path := manifest.FindPath(h.Path.LinkID)
		if path == nil {
			return errors.Errorf(errors.KindAggregateFatal, "manifest from %s missing path %q", agg.URN, h.Path.LinkID)
		}
		mh := path.FindHop(h.URN)
		if mh == nil {
			return errors.Errorf(errors.KindAggregateFatal, "manifest from %s missing hop %q", agg.URN, h.URN)
		}
		tagSet, err := vlan.Parse(mh.SuggestedVLANRange)
		if err != nil || tagSet.IsAny() {
			return errors.Errorf(errors.KindAggregateFatal, "manifest hop %q has no concrete assigned tag (got %q)", h.URN, mh.SuggestedVLANRange)
		}
		tag, err := tagSet.PickLeast()
		if err != nil {
			return errors.Wrapf(err, errors.KindAggregateFatal, "manifest hop %q assigned tag is unparseable", h.URN)
		}
		if !h.RequestedRange.IsAny() && !h.RequestedRange.Contains(tag) {
			return errors.Errorf(errors.KindAggregateFatal, "manifest hop %q assigned tag %d outside requested range %s", h.URN, tag, h.RequestedRange.String())
		}
		h.ManifestTag = tag
		h.HasManifestTag = true
		if mh.VLANRangeAvailability != "" {
			residual, err := vlan.Parse(mh.VLANRangeAvailability)
			if err != nil {
				return errors.Wrapf(err, errors.KindAggregateFatal, "manifest hop %q has unparseable residual range", h.URN)
			}
			h.ManifestRange = residual
		}
	}
	return nil
}
