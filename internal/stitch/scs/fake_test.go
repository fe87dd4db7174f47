// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package scs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const canonicalRspec = `<?xml version="1.0" encoding="UTF-8"?>
<rspec><node client_id="n1" component_manager_id="urn:publicid:IDN+a+authority+cm"/></rspec>`

const canonicalWorkflow = `{"link1": {"dependencies": []}}`

func TestFakeClientReadsSequentialCycles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cycle-1-rspec.xml"), []byte(canonicalRspec), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cycle-1-workflow.json"), []byte(canonicalWorkflow), 0644); err != nil {
		t.Fatal(err)
	}

	fc := NewFakeClient(dir)
	res, err := fc.ComputePath(context.Background(), "urn:slice", nil, nil)
	if err != nil {
		t.Fatalf("ComputePath: %v", err)
	}
	if len(res.ExpandedRequest.Nodes) != 1 {
		t.Errorf("expected 1 node in canned rspec, got %d", len(res.ExpandedRequest.Nodes))
	}
	if _, ok := res.Workflow["link1"]; !ok {
		t.Errorf("expected link1 in canned workflow, got %v", res.Workflow)
	}
}

func TestFakeClientMissingCycleIsPCSFailure(t *testing.T) {
	fc := NewFakeClient(t.TempDir())
	if _, err := fc.ComputePath(context.Background(), "urn:slice", nil, nil); err == nil {
		t.Fatal("expected error for missing canned response")
	}
}

func TestFakeClientListAggregatesDefaultsToEmpty(t *testing.T) {
	fc := NewFakeClient(t.TempDir())
	m, err := fc.ListAggregates(context.Background(), false)
	if err != nil {
		t.Fatalf("ListAggregates: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected empty map, got %v", m)
	}
}
