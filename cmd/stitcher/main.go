// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command stitcher reserves a multi-aggregate network slice described by an
// RSpec request document, stitching VLAN circuits across aggregate
// boundaries via a path-computation service. It writes the combined
// manifest and the reserved-aggregate list to disk.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"grimm.is/stitcher/internal/config"
	"grimm.is/stitcher/internal/ctlplane"
	"grimm.is/stitcher/internal/logging"
	"grimm.is/stitcher/internal/metrics"
	"grimm.is/stitcher/internal/rspec"
	"grimm.is/stitcher/internal/stitch/amclient"
	"grimm.is/stitcher/internal/stitch/amlist"
	"grimm.is/stitcher/internal/stitch/cred"
	"grimm.is/stitcher/internal/stitch/orchestrator"
	"grimm.is/stitcher/internal/stitch/scs"
)

func main() {
	configPath := flag.String("config", "", "Path to HCL config file")
	requestPath := flag.String("request", "", "Path to the RSpec request document")
	sliceURN := flag.String("slice", "", "Slice URN to reserve")
	outPath := flag.String("out", "manifest.xml", "Path to write the combined manifest")
	amlistPath := flag.String("amlist", "", "Path to write the amlist.txt artifact (defaults to <slice-hrn>-amlist.txt)")
	ctlsock := flag.String("ctlsock", "", "Unix socket to expose run status on (disabled if empty)")
	debug := flag.Bool("debug", false, "Enable debug-level logging")
	debugDir := flag.String("debug-dir", "", "Write a per-cycle graph dump (YAML) to this directory (disabled if empty)")
	flag.Parse()

	args := flag.Args()
	subcmd := "reserve"
	if len(args) > 0 {
		subcmd = args[0]
	}

	if subcmd == "status" {
		if err := runStatus(*ctlsock); err != nil {
			log.Fatalf("status: %v", err)
		}
		return
	}

	if subcmd != "reserve" {
		log.Fatalf("unknown command %q (want reserve or status)", subcmd)
	}
	if *requestPath == "" || *sliceURN == "" {
		log.Fatal("usage: stitcher -request <rspec.xml> -slice <urn> [-config <file>]")
	}

	level := logging.LevelInfo
	if *debug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{Level: level})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	requestBytes, err := os.ReadFile(*requestPath)
	if err != nil {
		log.Fatalf("reading request: %v", err)
	}
	request, err := rspec.Unmarshal(requestBytes)
	if err != nil {
		log.Fatalf("parsing request: %v", err)
	}

	scsClient, amClient, credSource, err := buildClients(cfg)
	if err != nil {
		log.Fatalf("wiring clients: %v", err)
	}

	metricsReg := metrics.NewRegistry()
	timeout := time.Duration(cfg.SSLTimeoutSeconds) * time.Second
	driver := scs.NewDriver(scsClient, timeout, cfg.ExcludeHop, cfg.IncludeHop)

	o := orchestrator.New(cfg, driver, amClient, credSource, logger, metricsReg)
	if *debugDir != "" {
		if err := os.MkdirAll(*debugDir, 0o755); err != nil {
			log.Fatalf("creating debug dir: %v", err)
		}
		o.DebugDir = *debugDir
	}

	if *ctlsock != "" {
		o.Status = ctlplane.NewServer()
		closer, err := o.Status.Listen(*ctlsock)
		if err != nil {
			log.Fatalf("opening status socket: %v", err)
		}
		defer closer()
	}

	ctx := context.Background()
	out := o.Run(ctx, *sliceURN, request)
	if out.Err != nil {
		log.Fatalf("reservation failed after %d cycle(s): %v", out.Cycles, out.Err)
	}

	manifestBytes, err := rspec.Marshal(out.Manifest)
	if err != nil {
		log.Fatalf("marshalling manifest: %v", err)
	}
	if err := os.WriteFile(*outPath, manifestBytes, 0o644); err != nil {
		log.Fatalf("writing manifest: %v", err)
	}

	listPath := *amlistPath
	if listPath == "" {
		listPath = sliceHRN(*sliceURN) + "-amlist.txt"
	}
	listFile, err := os.Create(listPath)
	if err != nil {
		log.Fatalf("creating amlist: %v", err)
	}
	defer listFile.Close()
	if err := amlist.Write(listFile, *sliceURN, out.ReservedAggregates, time.Now()); err != nil {
		log.Fatalf("writing amlist: %v", err)
	}

	logger.Info("reservation complete", "correlation_id", out.CorrelationID, "cycles", out.Cycles, "aggregates", len(out.ReservedAggregates), "manifest", *outPath, "amlist", listPath)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{MaxSCSCalls: config.DefaultMaxSCSCalls, DefaultCapacityBPS: config.DefaultCapacityBPS}, nil
	}
	return config.LoadFile(path)
}

// buildClients wires the PCS and aggregate-manager transports. Real network
// transports for both are out of scope for this module (interfaces only);
// a fakeModeDir run is the only wiring supported directly by this binary.
// A production deployment links its own scs.Client/amclient.Client against
// the real RPC endpoints and constructs the orchestrator the same way.
func buildClients(cfg *config.Config) (scs.Client, amclient.Client, cred.Source, error) {
	if cfg.FakeModeDir != "" {
		return scs.NewFakeClient(cfg.FakeModeDir), amclient.NewFakeClient(cfg.FakeModeDir), cred.Static{Credential: "fake-mode-credential"}, nil
	}
	return nil, nil, nil, errNoRealTransport
}

var errNoRealTransport = errors.New("no real PCS/aggregate transport is linked into this binary; set fake_mode_dir in the config to run against canned fixtures")

func runStatus(sock string) error {
	client, err := ctlplane.Dial(sock)
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return err
	}
	log.Printf("slice %s: cycle %d/%d", status.SliceURN, status.Cycle, status.MaxCycles)
	for _, a := range status.Aggregates {
		log.Printf("  %-40s %-20s attempts=%d url=%s", a.URN, a.State, a.AllocateAttempts, a.URL)
	}
	return nil
}

// sliceHRN extracts the human-readable name from a slice URN
// (urn:publicid:IDN+authority+slice+hrn), falling back to the full URN if
// it doesn't parse as expected.
func sliceHRN(sliceURN string) string {
	for i := len(sliceURN) - 1; i >= 0; i-- {
		if sliceURN[i] == '+' {
			return sliceURN[i+1:]
		}
	}
	return sliceURN
}
