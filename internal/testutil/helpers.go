// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package testutil holds small helpers shared across the stitcher's test
// suites.
package testutil

import (
	"os"
	"testing"
)

// RequireNetwork skips the test unless STITCHER_NETWORK_TEST is set. Tests
// that would otherwise dial a real PCS or aggregate endpoint use this so the
// default `go test ./...` run stays hermetic.
func RequireNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("STITCHER_NETWORK_TEST") == "" {
		t.Skip("skipping test: requires STITCHER_NETWORK_TEST environment")
	}
}
