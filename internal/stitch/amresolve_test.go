// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package stitch

import (
	"context"
	"testing"

	"grimm.is/stitcher/internal/config"
	"grimm.is/stitcher/internal/rspec"
	"grimm.is/stitcher/internal/stitch/model"
	"grimm.is/stitcher/internal/stitch/scs"
)

func TestResolveURLsUsesNicknameTableBeforePCS(t *testing.T) {
	cfg := &config.Config{AggregateNicknames: []config.AggregateNickname{{Name: "a", URN: "urn:a", URL: "https://a.example.org/am"}}}
	reg := model.NewRegistry()
	agg := &model.Aggregate{URN: "urn:a", DependsOn: map[string]*model.Aggregate{}}
	if err := reg.AddAggregate(agg); err != nil {
		t.Fatal(err)
	}
	if err := ResolveURLs(context.Background(), cfg, nil, reg); err != nil {
		t.Fatal(err)
	}
	if agg.URL != "https://a.example.org/am" {
		t.Fatalf("expected nickname URL, got %q", agg.URL)
	}
}

type listOnlySCSClient struct{ known map[string]string }

func (c *listOnlySCSClient) ComputePath(ctx context.Context, sliceURN string, req *rspec.Document, options scs.Options) (scs.Result, error) {
	return scs.Result{}, nil
}
func (c *listOnlySCSClient) ListAggregates(ctx context.Context, fresh bool) (map[string]string, error) {
	return c.known, nil
}

func TestResolveURLsFallsBackToPCSAggregateList(t *testing.T) {
	cfg := &config.Config{}
	driver := scs.NewDriver(&listOnlySCSClient{known: map[string]string{"urn:a": "https://a.example.org/am"}}, 0, nil, nil)
	reg := model.NewRegistry()
	agg := &model.Aggregate{URN: "urn:a", DependsOn: map[string]*model.Aggregate{}}
	if err := reg.AddAggregate(agg); err != nil {
		t.Fatal(err)
	}
	if err := ResolveURLs(context.Background(), cfg, driver, reg); err != nil {
		t.Fatal(err)
	}
	if agg.URL != "https://a.example.org/am" {
		t.Fatalf("expected PCS-discovered URL, got %q", agg.URL)
	}
}

func TestResolveURLsErrorsWhenUnresolvable(t *testing.T) {
	cfg := &config.Config{}
	reg := model.NewRegistry()
	agg := &model.Aggregate{URN: "urn:a", DependsOn: map[string]*model.Aggregate{}}
	if err := reg.AddAggregate(agg); err != nil {
		t.Fatal(err)
	}
	if err := ResolveURLs(context.Background(), cfg, nil, reg); err == nil {
		t.Fatal("expected an error when no URL can be resolved and no PCS is configured")
	}
}

func TestApplyExoSMPolicySwapsToLocalEndpoint(t *testing.T) {
	cfg := &config.Config{NoExoSM: true}
	reg := model.NewRegistry()
	agg := &model.Aggregate{
		URN: "urn:a", URL: "https://exosm.example.org/am", AltURL: "https://local.example.org/am",
		Family: model.FamilyOrca, IsExoSM: true, DependsOn: map[string]*model.Aggregate{},
	}
	if err := reg.AddAggregate(agg); err != nil {
		t.Fatal(err)
	}
	ApplyExoSMPolicy(cfg, reg)
	if agg.URL != "https://local.example.org/am" || agg.IsExoSM {
		t.Fatalf("expected swap to local endpoint, got url=%q isExoSM=%v", agg.URL, agg.IsExoSM)
	}
}

func TestApplyExoSMPolicyIgnoresNonOrcaAggregates(t *testing.T) {
	cfg := &config.Config{NoExoSM: true}
	reg := model.NewRegistry()
	agg := &model.Aggregate{
		URN: "urn:a", URL: "https://pg.example.org/am", AltURL: "https://alt.example.org/am",
		Family: model.FamilyProtoGENI, DependsOn: map[string]*model.Aggregate{},
	}
	if err := reg.AddAggregate(agg); err != nil {
		t.Fatal(err)
	}
	ApplyExoSMPolicy(cfg, reg)
	if agg.URL != "https://pg.example.org/am" {
		t.Fatalf("expected protogeni aggregate untouched, got %q", agg.URL)
	}
}
