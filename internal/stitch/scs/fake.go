// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package scs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/rspec"
	"grimm.is/stitcher/internal/stitch/workflow"
)

func decodeAggregatesJSON(data []byte) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FakeClient implements Client by reading canned responses from a
// directory instead of contacting a real PCS, for the fakeModeDir
// configuration option. Each outer-loop cycle reads the next pair of files
// in sequence: cycle-<n>-rspec.xml and cycle-<n>-workflow.json, where n
// starts at 1. This lets test fixtures exercise the S4/S5 outer-loop retry
// scenarios (§8) without a live PCS.
type FakeClient struct {
	Dir   string
	calls int
}

// NewFakeClient returns a FakeClient reading canned responses from dir.
func NewFakeClient(dir string) *FakeClient {
	return &FakeClient{Dir: dir}
}

// ComputePath reads the next canned cycle's rspec and workflow files.
func (f *FakeClient) ComputePath(ctx context.Context, sliceURN string, req *rspec.Document, options Options) (Result, error) {
	f.calls++
	rspecPath := filepath.Join(f.Dir, fmt.Sprintf("cycle-%d-rspec.xml", f.calls))
	workflowPath := filepath.Join(f.Dir, fmt.Sprintf("cycle-%d-workflow.json", f.calls))

	rspecData, err := os.ReadFile(rspecPath)
	if err != nil {
		return Result{}, errors.Wrapf(err, errors.KindPCSFailure, "fake mode: no canned response for cycle %d at %s", f.calls, rspecPath)
	}
	doc, err := rspec.Unmarshal(rspecData)
	if err != nil {
		return Result{}, errors.Wrapf(err, errors.KindPCSFailure, "fake mode: malformed canned rspec at %s", rspecPath)
	}

	wfData, err := os.ReadFile(workflowPath)
	if err != nil {
		return Result{}, errors.Wrapf(err, errors.KindPCSFailure, "fake mode: no canned workflow for cycle %d at %s", f.calls, workflowPath)
	}
	wf, err := workflow.DecodeJSON(wfData)
	if err != nil {
		return Result{}, errors.Wrapf(err, errors.KindPCSFailure, "fake mode: malformed canned workflow at %s", workflowPath)
	}

	return Result{ExpandedRequest: doc, Workflow: wf}, nil
}

// ListAggregates reads a static aggregates.json file (urn -> url) from the
// fake mode directory, if present; an absent file yields an empty map
// rather than an error, since fake mode is meant to run without any
// aggregate contact at all unless a fixture supplies one.
func (f *FakeClient) ListAggregates(ctx context.Context, fresh bool) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(f.Dir, "aggregates.json"))
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindPCSFailure, "fake mode: reading aggregates.json")
	}
	m, err := decodeAggregatesJSON(data)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindPCSFailure, "fake mode: malformed aggregates.json")
	}
	return m, nil
}
