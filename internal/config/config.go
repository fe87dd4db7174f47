// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the stitcher's own HCL configuration file: the
// options enumerated in the original spec's External Interfaces section
// (scsURL, ssltimeout, fakeModeDir, noReservation, excludehop, includehop,
// defaultCapacity, noExoSM/useExoSM, maxSCSCalls, fixedEndpoint) plus a small
// table of aggregate nicknames used to resolve URNs the PCS workflow names
// but doesn't supply a URL for.
package config

// AggregateNickname maps a short name to an aggregate's URN and URL, mirroring
// the omni_config aggregate_nicknames table the original implementation
// consults when the SCS workflow references an aggregate it has no URL for.
type AggregateNickname struct {
	Name string `hcl:"name,label"`
	URN  string `hcl:"urn"`
	URL  string `hcl:"url"`
}

// Config is the stitcher's top-level configuration.
type Config struct {
	// SCSURL is the path-computation service endpoint.
	SCSURL string `hcl:"scs_url"`
	// SSLTimeoutSeconds is the single configurable timeout knob shared by
	// every external RPC (PCS and aggregate calls alike).
	SSLTimeoutSeconds int `hcl:"ssl_timeout_seconds,optional"`
	// FakeModeDir, if set, reads canned PCS responses from disk instead of
	// contacting a real PCS, and skips credential/slice validation.
	FakeModeDir string `hcl:"fake_mode_dir,optional"`
	// NoReservation stops after the expanded request is computed: emit it,
	// contact no aggregates.
	NoReservation bool `hcl:"no_reservation,optional"`
	// ExcludeHop and IncludeHop are applied to every path's routing profile
	// on every PCS call, in addition to any vlans_unavailable-derived
	// exclusions.
	ExcludeHop []string `hcl:"exclude_hop,optional"`
	IncludeHop []string `hcl:"include_hop,optional"`
	// DefaultCapacityBPS is used to synthesize a link property's capacity
	// when the user's request omits one.
	DefaultCapacityBPS int64 `hcl:"default_capacity_bps,optional"`
	// NoExoSM forces orca-family aggregates off their shared ExoSM endpoint
	// onto their local one; UseExoSM does the opposite. At most one should
	// be set; NoExoSM takes precedence if both are.
	NoExoSM  bool `hcl:"no_exosm,optional"`
	UseExoSM bool `hcl:"use_exosm,optional"`
	// MaxSCSCalls bounds how many times the outer loop may re-invoke the PCS
	// for a single run.
	MaxSCSCalls int `hcl:"max_scs_calls,optional"`
	// FixedEndpoint inserts a synthetic terminal node to satisfy
	// single-endpoint stitched links.
	FixedEndpoint bool `hcl:"fixed_endpoint,optional"`

	AggregateNicknames []AggregateNickname `hcl:"aggregate_nickname,block"`
}

// DefaultSSLTimeoutSeconds is used when the config omits ssl_timeout_seconds.
const DefaultSSLTimeoutSeconds = 60

// DefaultMaxSCSCalls is the original implementation's MAX_SCS_CALLS.
const DefaultMaxSCSCalls = 5

// DefaultCapacityBPS is used when the config omits default_capacity_bps.
const DefaultCapacityBPS = 20000000 // 20 Mbps, matching the original's default

// applyDefaults fills in zero-valued optional fields.
func (c *Config) applyDefaults() {
	if c.SSLTimeoutSeconds == 0 {
		c.SSLTimeoutSeconds = DefaultSSLTimeoutSeconds
	}
	if c.MaxSCSCalls == 0 {
		c.MaxSCSCalls = DefaultMaxSCSCalls
	}
	if c.DefaultCapacityBPS == 0 {
		c.DefaultCapacityBPS = DefaultCapacityBPS
	}
}

// LookupNickname resolves a nickname to (urn, url), reporting whether it was found.
func (c *Config) LookupNickname(name string) (urn, url string, ok bool) {
	for _, n := range c.AggregateNicknames {
		if n.Name == name {
			return n.URN, n.URL, true
		}
	}
	return "", "", false
}

// URLForURN resolves an aggregate URN (or one of its synonyms) to a
// configured URL by scanning the nickname table's URN field, mirroring the
// original's "omni_config AM nicknames" fallback lookup.
func (c *Config) URLForURN(urnSynonyms []string) (string, bool) {
	for _, n := range c.AggregateNicknames {
		for _, syn := range urnSynonyms {
			if n.URN == syn && n.URL != "" {
				return n.URL, true
			}
		}
	}
	return "", false
}
