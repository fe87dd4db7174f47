// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package amlist writes the `<slicehrn>-amlist.txt` artifact: a small,
// deliberately not-XML side file listing every aggregate a run actually
// reserved, for tools that need to issue a follow-up deleteslice without
// re-parsing the combined manifest.
package amlist

import (
	"fmt"
	"io"
	"time"

	"grimm.is/stitcher/internal/stitch/orchestrator"
)

// Write renders records as the amlist.txt body: two comment lines (slice
// URN, UTC allocation timestamp) followed by one "url,urn" line per
// reserved aggregate, in the order records lists them (the orchestrator
// supplies registry order).
func Write(w io.Writer, sliceURN string, records []orchestrator.AggregateRecord, allocatedAt time.Time) error {
	if _, err := fmt.Fprintf(w, "# slice: %s\n", sliceURN); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# allocated: %s\n", allocatedAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%s,%s\n", r.URL, r.URN); err != nil {
			return err
		}
	}
	return nil
}
