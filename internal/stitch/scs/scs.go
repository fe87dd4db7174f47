// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package scs is the path-computation service driver: it builds the
// per-cycle routing-profile options from the current hop/aggregate graph,
// invokes the PCS, and surfaces the expanded request together with the
// ingestible workflow map. The PCS RPC transport itself is an out-of-scope
// collaborator (Client is an interface); this package owns the options it
// sends and the timeout/error classification around the call.
package scs

import (
	"context"
	"sort"
	"time"

	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/rspec"
	"grimm.is/stitcher/internal/stitch/model"
	"grimm.is/stitcher/internal/stitch/workflow"
)

// PathProfile is one path's routing-profile entry: URNs or "urn=tags"
// exclusions, plus inclusions.
type PathProfile struct {
	HopExclusionList []string `json:"hop_exclusion_list"`
	HopInclusionList []string `json:"hop_inclusion_list"`
}

// Options is the geni_routing_profile option map, keyed by path id.
type Options map[string]PathProfile

// Result is what a ComputePath call surfaces to the outer loop.
type Result struct {
	ExpandedRequest *rspec.Document
	Workflow        workflow.Map
}

// Client is the PCS RPC transport. Implementations speak whatever wire
// protocol the configured PCS endpoint requires (XML-RPC in the reference
// deployment); this package never depends on a concrete transport.
type Client interface {
	ComputePath(ctx context.Context, sliceURN string, req *rspec.Document, options Options) (Result, error)
	ListAggregates(ctx context.Context, fresh bool) (map[string]string, error)
}

// Driver builds routing-profile options from the current graph and drives
// one ComputePath call with a bounded timeout.
type Driver struct {
	Client  Client
	Timeout time.Duration

	// ExtraExclude/ExtraInclude are user-configured hop URNs
	// (config.ExcludeHop/IncludeHop) applied to every path on every call.
	ExtraExclude []string
	ExtraInclude []string
}

// NewDriver returns a Driver with the given transport and timeout.
func NewDriver(client Client, timeout time.Duration, extraExclude, extraInclude []string) *Driver {
	return &Driver{Client: client, Timeout: timeout, ExtraExclude: extraExclude, ExtraInclude: extraInclude}
}

// BuildOptions derives the routing-profile options for the next ComputePath
// call from reg: every hop marked ExcludeFromPCS or with a non-empty
// VlansUnavailable contributes an exclusion entry to its path, plus the
// driver's configured extra excludes/includes applied to every path.
func BuildOptions(reg *model.Registry, extraExclude, extraInclude []string) Options {
	opts := make(Options)
	for _, a := range reg.Aggregates() {
		for _, h := range a.Hops {
			if h.Path == nil {
				continue
			}
			profile := opts[h.Path.LinkID]
			if h.ExcludeFromPCS {
				profile.HopExclusionList = append(profile.HopExclusionList, h.URN)
			} else if !h.VlansUnavailable.IsEmpty() {
				profile.HopExclusionList = append(profile.HopExclusionList, h.URN+"="+h.VlansUnavailable.String())
			}
			opts[h.Path.LinkID] = profile
		}
	}

	// Apply user-configured excludes/includes to every known path.
	for linkID, profile := range opts {
		profile.HopExclusionList = append(profile.HopExclusionList, extraExclude...)
		profile.HopInclusionList = append(profile.HopInclusionList, extraInclude...)
		sort.Strings(profile.HopExclusionList)
		sort.Strings(profile.HopInclusionList)
		opts[linkID] = profile
	}
	return opts
}

// ComputePath invokes the PCS within the driver's configured timeout. Every
// failure is returned as KindPCSFailure; a timeout differs from other
// transport errors only in its message ("timed out after ..."). The outer
// loop ends the run on either, so a timeout is not counted against its
// retry budget as a failed attempt.
func (d *Driver) ComputePath(ctx context.Context, sliceURN string, req *rspec.Document, extraOpts Options) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	res, err := d.Client.ComputePath(ctx, sliceURN, req, extraOpts)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, errors.Wrapf(err, errors.KindPCSFailure, "path-computation service call timed out after %s", d.Timeout)
		}
		return Result{}, errors.Wrapf(err, errors.KindPCSFailure, "path-computation service call failed")
	}
	return res, nil
}

// ListAggregates resolves the PCS's known aggregate URN->URL map.
func (d *Driver) ListAggregates(ctx context.Context, fresh bool) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	m, err := d.Client.ListAggregates(ctx, fresh)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindPCSFailure, "list aggregates failed")
	}
	return m, nil
}
