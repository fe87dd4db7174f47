// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package stitch hosts the small amount of top-level glue that doesn't
// belong to any one subpackage: resolving an aggregate's URL when the PCS
// workflow named it but supplied no endpoint, and swapping an orca-family
// aggregate between its shared ExoSM controller and its local one.
package stitch

import (
	"context"
	"sort"

	"grimm.is/stitcher/internal/config"
	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/stitch/model"
	"grimm.is/stitcher/internal/stitch/scs"
)

// ResolveURLs fills in a URL for every aggregate in reg that doesn't have
// one yet: first from the config's aggregate nickname table (matched
// against the aggregate's URN or any of its synonyms), then from the PCS's
// own ListAggregates call as a last resort. An aggregate left without a URL
// after both is a fatal input error — the source requires a URL from
// configuration, credentials, or the registry before any RPC is attempted.
func ResolveURLs(ctx context.Context, cfg *config.Config, scsDriver *scs.Driver, reg *model.Registry) error {
	var missing []*model.Aggregate
	for _, a := range reg.Aggregates() {
		if a.URL == "" {
			if url, ok := cfg.URLForURN(append([]string{a.URN}, a.Synonyms...)); ok {
				a.URL = url
				continue
			}
			missing = append(missing, a)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if scsDriver == nil {
		return errors.Errorf(errors.KindInputMalformed, "aggregate %s has no URL and no PCS is configured to look one up", missing[0].URN)
	}
	known, err := scsDriver.ListAggregates(ctx, false)
	if err != nil {
		return err
	}
	var stillMissing []string
	for _, a := range missing {
		if url, ok := known[a.URN]; ok {
			a.URL = url
			continue
		}
		stillMissing = append(stillMissing, a.URN)
	}
	if len(stillMissing) > 0 {
		sort.Strings(stillMissing)
		return errors.Errorf(errors.KindInputMalformed, "no URL configured or discoverable for aggregates: %v", stillMissing)
	}
	return nil
}

// ApplyExoSMPolicy swaps every orca-family aggregate in reg between its
// shared ExoSM endpoint and its local one, per the config's noExoSM/useExoSM
// flags (noExoSM takes precedence if both are set). An aggregate with no
// AltURL recorded is left alone: the stitcher never learned its alternate
// endpoint, so there is nothing to swap to.
func ApplyExoSMPolicy(cfg *config.Config, reg *model.Registry) {
	if !cfg.NoExoSM && !cfg.UseExoSM {
		return
	}
	for _, a := range reg.Aggregates() {
		if a.Family != model.FamilyOrca || a.AltURL == "" {
			continue
		}
		switch {
		case cfg.NoExoSM && a.IsExoSM:
			a.URL, a.AltURL = a.AltURL, a.URL
			a.IsExoSM = false
		case cfg.UseExoSM && !cfg.NoExoSM && !a.IsExoSM:
			a.URL, a.AltURL = a.AltURL, a.URL
			a.IsExoSM = true
		}
	}
}
